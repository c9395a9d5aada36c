package db

import (
	"time"

	"gorm.io/gorm"
)

// Vacation 记录用户的休假窗口
// 窗口内的日期在连胜判定中按中性日处理，不加分也不断链
type Vacation struct {
	gorm.Model
	UserID    string `gorm:"index"`
	StartDate time.Time
	EndDate   time.Time
	Reason    string
}

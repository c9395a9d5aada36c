package db

import (
	"time"

	"gorm.io/gorm"
)

// CompletionFact 是每个(习惯,日期)的规范完成事实
// Habit + LogDate 采用唯一索引，保证幂等；ProgressCount 为当日累计量
// FirstLoggedAt/LastLoggedAt 仅供分析，不参与任何判定
// SyncPending 标记该事实尚未镜像到远端，进程重启后据此续传
type CompletionFact struct {
	gorm.Model
	HabitID       uint      `gorm:"index;index:idx_completion_fact_unique,unique"`
	Habit         Habit     `gorm:"constraint:OnDelete:CASCADE"`
	LogDate       time.Time `gorm:"index:idx_completion_fact_unique,unique"`
	ProgressCount int
	FirstLoggedAt *time.Time
	LastLoggedAt  *time.Time
	SyncPending   bool `gorm:"index"`
	SyncAttempts  int
}

// TableName 重写确保唯一索引作用到 habit_id + log_date
func (CompletionFact) TableName() string {
	return "completion_facts"
}

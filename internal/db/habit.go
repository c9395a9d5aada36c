package db

import (
	"time"

	"gorm.io/gorm"
)

// Habit 定义了习惯模型
// 调度通过 SchedulePattern 描述，例如 daily / weekdays:mon,wed / interval:3 / weekly:4 / monthly:10
// Goal 为单日目标量，完成判定只看 progress_count >= goal
// BaselineCount 仅用于展示统计，绝不参与完成判定
// Status 使用 active/inactive 控制是否纳入当日应做集合
// StartDate/EndDate 划定生效窗口，窗口外一律不应做
type Habit struct {
	gorm.Model
	Name            string
	Description     string
	SchedulePattern string
	Goal            int
	BaselineCount   int
	TypeTag         string
	Status          string
	StartDate       *time.Time
	EndDate         *time.Time
}

// HabitSkip 记录用户显式豁免的日期
// Habit + SkipDate 采用唯一索引，保证同一天只豁免一次
// 豁免日不计入应做集合，与单纯漏掉不同
type HabitSkip struct {
	gorm.Model
	HabitID  uint      `gorm:"index;index:idx_habit_skip_unique,unique"`
	Habit    Habit     `gorm:"constraint:OnDelete:CASCADE"`
	SkipDate time.Time `gorm:"index:idx_habit_skip_unique,unique"`
	Reason   string
}

// TableName 重写确保唯一索引作用到 habit_id + skip_date
func (HabitSkip) TableName() string {
	return "habit_skips"
}

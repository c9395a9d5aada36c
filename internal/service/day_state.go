package service

import (
	"fmt"
	"time"

	"github.com/chloHabitto/habitto/internal/db"
	"github.com/chloHabitto/habitto/internal/schedule"
)

// DayState 是某个日历日在派生计算中的分类
type DayState int

const (
	// DayComplete 当日全部应做且未豁免的习惯均已达标
	DayComplete DayState = iota
	// DayNeutralSkip 当日没有应做习惯，或应做习惯全部被豁免，或落在休假窗口内
	DayNeutralSkip
	// DayBreak 当日存在应做且未豁免、却未达标的习惯
	DayBreak
)

// Evaluator 把习惯定义、投影与调度解析器拼成单日判定
// 纯读方：只消费投影快照与定义，绝不回写任何存储
type Evaluator struct {
	habits    *HabitService
	cache     *ProjectionCache
	vacations *VacationService
}

// NewEvaluator 构造 Evaluator
func NewEvaluator(habits *HabitService, cache *ProjectionCache, vacations *VacationService) *Evaluator {
	return &Evaluator{habits: habits, cache: cache, vacations: vacations}
}

// DayStanding 汇总某日应做习惯的达成情况
type DayStanding struct {
	Due         int
	Unsatisfied int
}

// Standing 统计指定日期的应做集合及未达标数量
// 应做 = 调度判定应做 且 未被显式豁免；周配额习惯只有在本周已无松弛时才计入应做
func (e *Evaluator) Standing(date time.Time) (DayStanding, error) {
	habits, err := e.habits.ListActive()
	if err != nil {
		return DayStanding{}, fmt.Errorf("standing for %s: %w", dateKey(date), err)
	}

	var standing DayStanding
	for _, habit := range habits {
		required, satisfied, err := e.habitStanding(habit, date)
		if err != nil {
			return DayStanding{}, err
		}
		if !required {
			continue
		}
		standing.Due++
		if !satisfied {
			standing.Unsatisfied++
		}
	}

	return standing, nil
}

// StateFor 返回指定日期的分类，供连胜引擎逐日回溯
func (e *Evaluator) StateFor(userID string, date time.Time) (DayState, error) {
	onVacation, err := e.vacations.ActiveOn(userID, date)
	if err != nil {
		return DayBreak, err
	}
	if onVacation {
		return DayNeutralSkip, nil
	}

	standing, err := e.Standing(date)
	if err != nil {
		return DayBreak, err
	}

	if standing.Due == 0 {
		return DayNeutralSkip, nil
	}
	if standing.Unsatisfied == 0 {
		return DayComplete, nil
	}
	return DayBreak, nil
}

// habitStanding 判定单个习惯在指定日期是否应做、是否达标
func (e *Evaluator) habitStanding(habit db.Habit, date time.Time) (required, satisfied bool, err error) {
	view := e.cache.GetOrRebuild(habit.ID)
	key := dateKey(date)
	completedOnDate := view.Completed(key)

	ctx := schedule.DayContext{
		CompletedOnDate:  completedOnDate,
		CompletedInMonth: completedDaysInMonthBefore(view, date),
	}

	if !schedule.IsDue(habit, date, ctx) {
		return false, false, nil
	}

	skipped, err := e.habits.IsSkipped(habit.ID, date)
	if err != nil {
		return false, false, err
	}
	if skipped {
		return false, false, nil
	}

	pattern := schedule.Parse(habit.SchedulePattern)
	if pattern.Kind == schedule.KindWeeklyQuota {
		inWeek := completedDaysInWeekThrough(view, date)
		satisfied = completedOnDate || inWeek >= pattern.Quota
		if satisfied {
			return true, true, nil
		}
		// 配额未满时，仅当本周剩余天数不足以再松弛才算必做
		remaining := pattern.Quota - inWeek
		return daysRemainingInISOWeek(date) <= remaining, false, nil
	}

	return true, completedOnDate, nil
}

// completedDaysInMonthBefore 统计当月在指定日期之前已完成的天数
func completedDaysInMonthBefore(view ProjectionView, date time.Time) int {
	day := normalizeToDate(date)
	cursor := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, day.Location())

	count := 0
	for cursor.Before(day) {
		if view.Completed(dateKey(cursor)) {
			count++
		}
		cursor = cursor.AddDate(0, 0, 1)
	}
	return count
}

// completedDaysInWeekThrough 统计 ISO 周内截至指定日期（含）已完成的天数
func completedDaysInWeekThrough(view ProjectionView, date time.Time) int {
	day := normalizeToDate(date)
	cursor := isoWeekStart(day)

	count := 0
	for !cursor.After(day) {
		if view.Completed(dateKey(cursor)) {
			count++
		}
		cursor = cursor.AddDate(0, 0, 1)
	}
	return count
}

// isoWeekStart 返回日期所在 ISO 周的周一
func isoWeekStart(day time.Time) time.Time {
	weekday := int(day.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	return day.AddDate(0, 0, -(weekday - 1))
}

// daysRemainingInISOWeek 返回 ISO 周剩余天数，含当日
func daysRemainingInISOWeek(date time.Time) int {
	weekday := int(normalizeToDate(date).Weekday())
	if weekday == 0 {
		weekday = 7
	}
	return 7 - weekday + 1
}

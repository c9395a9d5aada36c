package service

import (
	"fmt"
	"time"
)

// maxStreakWindowDays 限定回溯窗口，避免超长历史拖慢计算
const maxStreakWindowDays = 3650

// StreakService 负责连胜计算
// 从今天起逐日回溯：完成日计数，中性日跳过，断链日终止
// 连胜永远按需从投影重算，不作为完成事实的权威来源存储
type StreakService struct {
	evaluator *Evaluator
	habits    *HabitService
}

// NewStreakService 构造 StreakService
func NewStreakService(evaluator *Evaluator, habits *HabitService) *StreakService {
	return &StreakService{evaluator: evaluator, habits: habits}
}

// ComputeStreak 计算截至 today 的连续完成天数
// today 未完成不追溯断链：跳过当日继续回看，昨天以前的断链日才终止
func (s *StreakService) ComputeStreak(userID string, today time.Time) (int, error) {
	earliest, ok, err := s.earliestStartDate()
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}

	day := normalizeToDate(today)
	floor := day.AddDate(0, 0, -maxStreakWindowDays)
	if earliest.After(floor) {
		floor = earliest
	}

	streak := 0
	for !day.Before(floor) {
		state, err := s.evaluator.StateFor(userID, day)
		if err != nil {
			return 0, fmt.Errorf("compute streak at %s: %w", dateKey(day), err)
		}

		switch state {
		case DayComplete:
			streak++
		case DayNeutralSkip:
			// 不计数也不断链
		case DayBreak:
			if !day.Equal(normalizeToDate(today)) {
				return streak, nil
			}
			// 今天还没做完不算断链，继续回看昨天
		}

		day = day.AddDate(0, 0, -1)
	}

	return streak, nil
}

// earliestStartDate 返回启用习惯中最早的生效日期，作为回溯下界
// 停用的习惯不进应做集合，不应该拿它们撑大回溯窗口
func (s *StreakService) earliestStartDate() (time.Time, bool, error) {
	habits, err := s.habits.ListActive()
	if err != nil {
		return time.Time{}, false, fmt.Errorf("earliest start date: %w", err)
	}
	if len(habits) == 0 {
		return time.Time{}, false, nil
	}

	var earliest time.Time
	for i, habit := range habits {
		start := normalizeToDate(habit.CreatedAt)
		if habit.StartDate != nil {
			start = normalizeToDate(*habit.StartDate)
		}
		if i == 0 || start.Before(earliest) {
			earliest = start
		}
	}
	return earliest, true, nil
}

package schedule

import (
	"strconv"
	"strings"
	"time"

	"github.com/chloHabitto/habitto/internal/db"
)

// Kind 表示调度模式的类别
type Kind int

const (
	// KindDaily 每天都应做
	KindDaily Kind = iota
	// KindWeekdays 仅指定星期应做
	KindWeekdays
	// KindInterval 每 N 天应做一次
	KindInterval
	// KindWeeklyQuota 每周 K 次，按日全部视为应做，配额由调用方统计
	KindWeeklyQuota
	// KindMonthlyQuota 每月 K 次，按剩余天数推算是否必须今天做
	KindMonthlyQuota
	// KindUnknown 无法识别的模式，按应做兜底，避免习惯从应做集合里消失
	KindUnknown
)

// Pattern 是解析后的调度模式
type Pattern struct {
	Kind     Kind
	Weekdays map[time.Weekday]bool
	Interval int
	Quota    int
	Raw      string
}

// DayContext 提供配额类判定所需的外部计数
// 由调用方从投影算出，解析器本身不做任何 I/O
type DayContext struct {
	// CompletedOnDate 当日是否已完成，已完成的日期回看时永远视为应做
	CompletedOnDate bool
	// CompletedInMonth 当月已完成的天数
	CompletedInMonth int
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday,
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
}

// Parse 解析调度模式字符串，永不报错
// 无法识别的输入降级为 KindUnknown，由 IsDue 按应做兜底
func Parse(raw string) Pattern {
	trimmed := strings.TrimSpace(strings.ToLower(raw))
	pattern := Pattern{Raw: raw}

	switch {
	case trimmed == "daily" || trimmed == "":
		pattern.Kind = KindDaily
		return pattern
	case trimmed == "weekday" || trimmed == "weekdays":
		pattern.Kind = KindWeekdays
		pattern.Weekdays = map[time.Weekday]bool{
			time.Monday: true, time.Tuesday: true, time.Wednesday: true,
			time.Thursday: true, time.Friday: true,
		}
		return pattern
	case trimmed == "weekend" || trimmed == "weekends":
		pattern.Kind = KindWeekdays
		pattern.Weekdays = map[time.Weekday]bool{time.Saturday: true, time.Sunday: true}
		return pattern
	}

	name, arg, found := strings.Cut(trimmed, ":")
	if !found {
		pattern.Kind = KindUnknown
		return pattern
	}

	switch name {
	case "weekdays":
		days := make(map[time.Weekday]bool)
		for _, part := range strings.Split(arg, ",") {
			weekday, ok := weekdayNames[strings.TrimSpace(part)]
			if !ok {
				pattern.Kind = KindUnknown
				return pattern
			}
			days[weekday] = true
		}
		if len(days) == 0 {
			pattern.Kind = KindUnknown
			return pattern
		}
		pattern.Kind = KindWeekdays
		pattern.Weekdays = days
		return pattern
	case "interval":
		n, err := strconv.Atoi(strings.TrimSpace(arg))
		if err != nil || n <= 0 {
			pattern.Kind = KindUnknown
			return pattern
		}
		pattern.Kind = KindInterval
		pattern.Interval = n
		return pattern
	case "weekly":
		k, err := strconv.Atoi(strings.TrimSpace(arg))
		if err != nil || k <= 0 {
			pattern.Kind = KindUnknown
			return pattern
		}
		pattern.Kind = KindWeeklyQuota
		pattern.Quota = k
		return pattern
	case "monthly":
		k, err := strconv.Atoi(strings.TrimSpace(arg))
		if err != nil || k <= 0 {
			pattern.Kind = KindUnknown
			return pattern
		}
		pattern.Kind = KindMonthlyQuota
		pattern.Quota = k
		return pattern
	default:
		pattern.Kind = KindUnknown
		return pattern
	}
}

// IsDue 判断习惯在指定日期是否应做，纯函数，永不报错
// 判定顺序：生效窗口 → 状态 → 模式；无法识别的模式按应做兜底
func IsDue(habit db.Habit, date time.Time, ctx DayContext) bool {
	day := truncateToDay(date)

	if habit.Status == "inactive" {
		return false
	}
	if habit.StartDate != nil && day.Before(truncateToDay(*habit.StartDate)) {
		return false
	}
	if habit.EndDate != nil && day.After(truncateToDay(*habit.EndDate)) {
		return false
	}

	pattern := Parse(habit.SchedulePattern)

	switch pattern.Kind {
	case KindDaily:
		return true
	case KindWeekdays:
		return pattern.Weekdays[day.Weekday()]
	case KindInterval:
		anchor := truncateToDay(habit.CreatedAt)
		if habit.StartDate != nil {
			anchor = truncateToDay(*habit.StartDate)
		}
		days := daysBetween(anchor, day)
		if days < 0 {
			return false
		}
		return days%pattern.Interval == 0
	case KindWeeklyQuota:
		// 窗口内每天都视为应做，周配额由调用方按 ISO 周统计完成数来收口
		return true
	case KindMonthlyQuota:
		if ctx.CompletedOnDate {
			// 已完成的日期回看时永远应做，保证重复评估幂等
			return true
		}
		remaining := pattern.Quota - ctx.CompletedInMonth
		if remaining <= 0 {
			return false
		}
		return daysRemainingInMonth(day) <= remaining
	default:
		// 未识别的模式按应做兜底，宁可多提醒也不能让习惯凭空消失
		return true
	}
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// daysBetween 返回两个日历日的天数差
// 只看日期分量并折算到 UTC 计算，夏令时造成的 23/25 小时天不会影响结果
func daysBetween(from, to time.Time) int {
	a := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	b := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a) / (24 * time.Hour))
}

// daysRemainingInMonth 返回当月剩余天数，含当日
func daysRemainingInMonth(day time.Time) int {
	firstOfNext := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	return daysBetween(day, firstOfNext)
}

package service

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chloHabitto/habitto/internal/db"
	"github.com/sirupsen/logrus"
)

var (
	// ErrProjectionStale 在投影重建失败、降级使用旧视图时返回
	ErrProjectionStale = errors.New("projection rebuild failed, serving last known view")
)

// DayRecord 是投影中单日的复合记录
// 三个字段来自同一条完成事实，一次装配，结构上杜绝三张表各填各的失步缺陷
type DayRecord struct {
	Progress   int
	Completed  bool
	Timestamps []time.Time
}

// ProjectionView 是单个习惯的读取优化视图，整体从完成事实重建
type ProjectionView struct {
	HabitID uint
	Goal    int
	Days    map[string]DayRecord
}

// Progress 返回日期键对应的累计量，缺失为 0
func (v ProjectionView) Progress(key string) int {
	return v.Days[key].Progress
}

// Completed 返回日期键是否达成目标
func (v ProjectionView) Completed(key string) bool {
	return v.Days[key].Completed
}

// ProgressMap 以 dateKey→int 形式导出累计量
func (v ProjectionView) ProgressMap() map[string]int {
	out := make(map[string]int, len(v.Days))
	for key, record := range v.Days {
		out[key] = record.Progress
	}
	return out
}

// CompletedMap 以 dateKey→bool 形式导出完成状态
func (v ProjectionView) CompletedMap() map[string]bool {
	out := make(map[string]bool, len(v.Days))
	for key, record := range v.Days {
		out[key] = record.Completed
	}
	return out
}

// TimestampMap 以 dateKey→[]time.Time 形式导出打点时间
func (v ProjectionView) TimestampMap() map[string][]time.Time {
	out := make(map[string][]time.Time, len(v.Days))
	for key, record := range v.Days {
		out[key] = record.Timestamps
	}
	return out
}

// ProjectionCache 缓存各习惯的投影视图
// 写路径只经 Coordinator；读方在任意时刻看到的要么是旧快照要么是新快照
type ProjectionCache struct {
	mu       sync.RWMutex
	views    map[uint]ProjectionView
	progress *ProgressService
	habits   *HabitService
}

// NewProjectionCache 构造 ProjectionCache
func NewProjectionCache(progress *ProgressService, habits *HabitService) *ProjectionCache {
	return &ProjectionCache{
		views:    make(map[uint]ProjectionView),
		progress: progress,
		habits:   habits,
	}
}

// buildDayRecord 由同一条事实装配完整的单日记录
// 完成判定只比较 goal，习惯上携带的任何展示量都不得掺和进来
func buildDayRecord(fact db.CompletionFact, goal int) DayRecord {
	record := DayRecord{
		Progress:  fact.ProgressCount,
		Completed: goal > 0 && fact.ProgressCount >= goal,
	}
	if fact.FirstLoggedAt != nil {
		record.Timestamps = append(record.Timestamps, *fact.FirstLoggedAt)
	}
	if fact.LastLoggedAt != nil && (fact.FirstLoggedAt == nil || !fact.LastLoggedAt.Equal(*fact.FirstLoggedAt)) {
		record.Timestamps = append(record.Timestamps, *fact.LastLoggedAt)
	}
	return record
}

// Rebuild 从完成事实整体重建习惯的投影
// 底层不可读时降级返回上一份视图并记录可恢复错误，宁可陈旧也不对外呈现空状态
func (c *ProjectionCache) Rebuild(habitID uint) (ProjectionView, error) {
	habit, err := c.habits.Get(habitID)
	if err != nil {
		return c.fallback(habitID, fmt.Errorf("%w: load habit %d: %v", ErrProjectionStale, habitID, err))
	}

	facts, err := c.progress.ListFacts(habitID)
	if err != nil {
		return c.fallback(habitID, fmt.Errorf("%w: list facts for habit %d: %v", ErrProjectionStale, habitID, err))
	}

	view := ProjectionView{
		HabitID: habitID,
		Goal:    habit.Goal,
		Days:    make(map[string]DayRecord, len(facts)),
	}
	for _, fact := range facts {
		view.Days[dateKey(fact.LogDate)] = buildDayRecord(fact, habit.Goal)
	}

	c.mu.Lock()
	c.views[habitID] = view
	c.mu.Unlock()

	return view, nil
}

func (c *ProjectionCache) fallback(habitID uint, err error) (ProjectionView, error) {
	logrus.Errorf("projection rebuild degraded: %v", err)

	c.mu.RLock()
	prev, ok := c.views[habitID]
	c.mu.RUnlock()
	if !ok {
		prev = ProjectionView{HabitID: habitID, Days: map[string]DayRecord{}}
	}
	return prev, err
}

// Patch 在单次变更后增量更新单日记录，等效于对该日期的定向重建
// 克隆后整体替换，读方不会看到撕裂的中间状态
// 缓存缺失（典型是进程重启后的首次变更）时先从完成事实整体重建再打补丁，
// 绝不用单日快照冒充全量投影
func (c *ProjectionCache) Patch(habitID uint, fact db.CompletionFact, goal int) ProjectionView {
	if _, ok := c.Get(habitID); !ok {
		c.Rebuild(habitID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	prev, ok := c.views[habitID]
	if !ok {
		prev = ProjectionView{HabitID: habitID, Goal: goal, Days: map[string]DayRecord{}}
	}

	next := ProjectionView{
		HabitID: habitID,
		Goal:    goal,
		Days:    make(map[string]DayRecord, len(prev.Days)+1),
	}
	for key, record := range prev.Days {
		next.Days[key] = record
	}
	next.Days[dateKey(fact.LogDate)] = buildDayRecord(fact, goal)

	c.views[habitID] = next
	return next
}

// Get 返回缓存中的视图快照
func (c *ProjectionCache) Get(habitID uint) (ProjectionView, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	view, ok := c.views[habitID]
	return view, ok
}

// GetOrRebuild 返回缓存视图，缺失时触发整体重建
func (c *ProjectionCache) GetOrRebuild(habitID uint) ProjectionView {
	if view, ok := c.Get(habitID); ok {
		return view
	}
	view, _ := c.Rebuild(habitID)
	return view
}

// Invalidate 移除缓存视图，下次读取时触发重建
// 习惯定义（如目标量）变更后必须调用，否则完成判定会按旧目标算
func (c *ProjectionCache) Invalidate(habitID uint) {
	c.mu.Lock()
	delete(c.views, habitID)
	c.mu.Unlock()
}

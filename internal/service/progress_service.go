package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/chloHabitto/habitto/internal/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrDurability 在本地持久化写入失败时返回，必须上抛给调用方
	ErrDurability = errors.New("local durable write failed")
)

// dateFormat 是日期键的统一格式
const dateFormat = "2006-01-02"

// ProgressService 负责完成事实的规范存储
// 每个(习惯,日期)至多一行，写入落盘确认后才返回，本层不做任何重试
type ProgressService struct {
	db *gorm.DB
}

// NewProgressService 构造 ProgressService
func NewProgressService(gdb *gorm.DB) *ProgressService {
	return &ProgressService{db: gdb}
}

// SetProgress 幂等写入当日累计量：存在则覆盖，不存在则创建
// newCount 为绝对值而非增量；写入失败是硬错误，绝不静默吞掉
func (s *ProgressService) SetProgress(habitID uint, date time.Time, newCount int) (*db.CompletionFact, error) {
	if newCount < 0 {
		return nil, fmt.Errorf("progress count must not be negative: %d", newCount)
	}

	logDate := normalizeToDate(date)
	now := time.Now()

	fact := db.CompletionFact{
		HabitID:       habitID,
		LogDate:       logDate,
		ProgressCount: newCount,
		FirstLoggedAt: &now,
		LastLoggedAt:  &now,
		SyncPending:   true,
		SyncAttempts:  0,
	}

	if err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "habit_id"}, {Name: "log_date"}},
		DoUpdates: clause.AssignmentColumns([]string{"progress_count", "last_logged_at", "sync_pending", "sync_attempts", "updated_at"}),
	}).Create(&fact).Error; err != nil {
		return nil, fmt.Errorf("%w: upsert completion fact: %v", ErrDurability, err)
	}

	if err := s.db.Where("habit_id = ? AND log_date = ?", habitID, logDate).First(&fact).Error; err != nil {
		return nil, fmt.Errorf("%w: reload completion fact: %v", ErrDurability, err)
	}

	return &fact, nil
}

// GetProgress 返回当日累计量，不存在时为 0
func (s *ProgressService) GetProgress(habitID uint, date time.Time) (int, error) {
	var fact db.CompletionFact
	err := s.db.Where("habit_id = ? AND log_date = ?", habitID, normalizeToDate(date)).First(&fact).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get progress: %w", err)
	}
	return fact.ProgressCount, nil
}

// ListFacts 返回习惯的全部完成事实，按日期升序
func (s *ProgressService) ListFacts(habitID uint) ([]db.CompletionFact, error) {
	var facts []db.CompletionFact
	if err := s.db.Where("habit_id = ?", habitID).
		Order("log_date ASC").
		Find(&facts).Error; err != nil {
		return nil, fmt.Errorf("list completion facts: %w", err)
	}
	return facts, nil
}

// CountFacts 返回本地完成事实总数，用于冷启动判断
func (s *ProgressService) CountFacts() (int64, error) {
	var count int64
	if err := s.db.Model(&db.CompletionFact{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count completion facts: %w", err)
	}
	return count, nil
}

// ListPending 返回尚未镜像到远端的完成事实，进程启动后据此续传
func (s *ProgressService) ListPending() ([]db.CompletionFact, error) {
	var facts []db.CompletionFact
	if err := s.db.Where("sync_pending = ?", true).
		Order("updated_at ASC").
		Find(&facts).Error; err != nil {
		return nil, fmt.Errorf("list pending facts: %w", err)
	}
	return facts, nil
}

// MarkSynced 清除镜像待办标记
// 仅当行未被后续写入更新过时才清除，避免把新的待办状态冲掉
func (s *ProgressService) MarkSynced(factID uint, lastLoggedAt *time.Time) error {
	query := s.db.Model(&db.CompletionFact{}).Where("id = ?", factID)
	if lastLoggedAt != nil {
		query = query.Where("last_logged_at <= ?", *lastLoggedAt)
	}
	if err := query.Update("sync_pending", false).Error; err != nil {
		return fmt.Errorf("mark fact synced: %w", err)
	}
	return nil
}

// MarkSyncFailed 累计镜像失败次数，保留待办标记等待下次续传
func (s *ProgressService) MarkSyncFailed(factID uint) error {
	if err := s.db.Model(&db.CompletionFact{}).
		Where("id = ?", factID).
		Update("sync_attempts", gorm.Expr("sync_attempts + 1")).Error; err != nil {
		return fmt.Errorf("mark fact sync failed: %w", err)
	}
	return nil
}

// ImportFact 写入一条来自远端冷启动加载的事实，保留其原始时间戳
// 导入的数据已在远端，不再标记待镜像
func (s *ProgressService) ImportFact(habitID uint, date time.Time, progressCount int, lastLoggedAt *time.Time) error {
	fact := db.CompletionFact{
		HabitID:       habitID,
		LogDate:       normalizeToDate(date),
		ProgressCount: progressCount,
		FirstLoggedAt: lastLoggedAt,
		LastLoggedAt:  lastLoggedAt,
		SyncPending:   false,
	}

	if err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "habit_id"}, {Name: "log_date"}},
		DoNothing: true,
	}).Create(&fact).Error; err != nil {
		return fmt.Errorf("import completion fact: %w", err)
	}
	return nil
}

// HeatmapEntry 表示热力图中的单日达标数据
type HeatmapEntry struct {
	LogDate   time.Time
	HabitID   uint
	HabitName string
	HabitType string
}

// HeatmapRange 返回指定区间内所有习惯的达标日数据
// 只统计 progress_count >= goal 的日子，展示量不参与判定
func (s *ProgressService) HeatmapRange(start, end time.Time) ([]HeatmapEntry, error) {
	if end.Before(start) {
		return nil, fmt.Errorf("invalid range: end before start")
	}

	normalizedStart := normalizeToDate(start)
	normalizedEnd := normalizeToDate(end)

	var rows []HeatmapEntry
	if err := s.db.Model(&db.CompletionFact{}).
		Select("completion_facts.log_date AS log_date, completion_facts.habit_id AS habit_id, habits.name AS habit_name, habits.type_tag AS habit_type").
		Joins("JOIN habits ON habits.id = completion_facts.habit_id").
		Where("completion_facts.log_date BETWEEN ? AND ?", normalizedStart, normalizedEnd).
		Where("completion_facts.progress_count >= habits.goal").
		Order("completion_facts.log_date ASC, habits.name ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list heatmap entries: %w", err)
	}

	return rows, nil
}

func normalizeToDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// dateKey 返回日期的字符串键
func dateKey(t time.Time) string {
	return normalizeToDate(t).Format(dateFormat)
}

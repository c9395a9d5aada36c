package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chloHabitto/habitto/internal/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrHabitNotFound 在指定习惯不存在时返回
	ErrHabitNotFound = errors.New("habit not found")
	// ErrHabitInvalidGoal 当目标量配置异常时返回
	ErrHabitInvalidGoal = errors.New("invalid habit goal configuration")
)

// HabitService 负责习惯定义的增删改查与豁免日管理
// 核心派生计算只读习惯定义，定义的变更全部收口在这里
// SchedulePattern 为自由文本，未识别的模式由解析器按应做兜底，故这里不校验
type HabitService struct {
	db *gorm.DB
}

// HabitFilter 描述列表过滤条件
type HabitFilter struct {
	Status  string
	TypeTag string
	Search  string
}

// HabitInput 定义创建/更新习惯时可配置字段
type HabitInput struct {
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

// NewHabitService 构造 HabitService
func NewHabitService(gdb *gorm.DB) *HabitService {
	return &HabitService{db: gdb}
}

// List 返回习惯集合，支持基本筛选
func (s *HabitService) List(filter HabitFilter) ([]db.Habit, error) {
	var habits []db.Habit

	query := s.db.Model(&db.Habit{})

	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.TypeTag != "" {
		query = query.Where("type_tag = ?", filter.TypeTag)
	}
	if filter.Search != "" {
		like := fmt.Sprintf("%%%s%%", strings.TrimSpace(filter.Search))
		query = query.Where("name LIKE ? OR description LIKE ?", like, like)
	}

	if err := query.Order("created_at DESC").Find(&habits).Error; err != nil {
		return nil, fmt.Errorf("list habits: %w", err)
	}

	return habits, nil
}

// ListActive 返回当前启用的习惯，供应做集合与派生计算使用
func (s *HabitService) ListActive() ([]db.Habit, error) {
	return s.List(HabitFilter{Status: "active"})
}

// Get 根据 ID 获取习惯
func (s *HabitService) Get(id uint) (*db.Habit, error) {
	var habit db.Habit
	if err := s.db.First(&habit, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrHabitNotFound
		}
		return nil, fmt.Errorf("get habit: %w", err)
	}
	return &habit, nil
}

// Create 新建习惯
func (s *HabitService) Create(input HabitInput) (*db.Habit, error) {
	if err := validateHabitInput(input); err != nil {
		return nil, err
	}

	habit := db.Habit{
		Name:            strings.TrimSpace(input.Name),
		Description:     strings.TrimSpace(input.Description),
		SchedulePattern: strings.TrimSpace(input.SchedulePattern),
		Goal:            input.Goal,
		BaselineCount:   input.BaselineCount,
		TypeTag:         strings.TrimSpace(input.TypeTag),
		Status:          normalizeStatus(input.Status),
		StartDate:       input.StartDate,
		EndDate:         input.EndDate,
	}

	if err := s.db.Create(&habit).Error; err != nil {
		return nil, fmt.Errorf("create habit: %w", err)
	}
	return &habit, nil
}

// Update 更新习惯
func (s *HabitService) Update(id uint, input HabitInput) (*db.Habit, error) {
	if err := validateHabitInput(input); err != nil {
		return nil, err
	}

	var existing db.Habit
	if err := s.db.First(&existing, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrHabitNotFound
		}
		return nil, fmt.Errorf("find habit: %w", err)
	}

	existing.Name = strings.TrimSpace(input.Name)
	existing.Description = strings.TrimSpace(input.Description)
	existing.SchedulePattern = strings.TrimSpace(input.SchedulePattern)
	existing.Goal = input.Goal
	existing.BaselineCount = input.BaselineCount
	existing.TypeTag = strings.TrimSpace(input.TypeTag)
	existing.Status = normalizeStatus(input.Status)
	existing.StartDate = input.StartDate
	existing.EndDate = input.EndDate

	if err := s.db.Save(&existing).Error; err != nil {
		return nil, fmt.Errorf("update habit: %w", err)
	}
	return &existing, nil
}

// Delete 删除习惯，级联清理完成事实与豁免日
func (s *HabitService) Delete(id uint) error {
	if err := s.db.Where("habit_id = ?", id).Delete(&db.CompletionFact{}).Error; err != nil {
		return fmt.Errorf("delete habit facts: %w", err)
	}
	if err := s.db.Where("habit_id = ?", id).Delete(&db.HabitSkip{}).Error; err != nil {
		return fmt.Errorf("delete habit skips: %w", err)
	}
	if err := s.db.Delete(&db.Habit{}, id).Error; err != nil {
		return fmt.Errorf("delete habit: %w", err)
	}
	return nil
}

// AddSkip 幂等登记豁免日：同一天重复登记只更新原因
func (s *HabitService) AddSkip(habitID uint, date time.Time, reason string) (*db.HabitSkip, error) {
	skip := db.HabitSkip{
		HabitID:  habitID,
		SkipDate: normalizeToDate(date),
		Reason:   strings.TrimSpace(reason),
	}

	if err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "habit_id"}, {Name: "skip_date"}},
		DoUpdates: clause.AssignmentColumns([]string{"reason", "updated_at"}),
	}).Create(&skip).Error; err != nil {
		return nil, fmt.Errorf("upsert habit skip: %w", err)
	}

	if err := s.db.Where("habit_id = ? AND skip_date = ?", habitID, skip.SkipDate).First(&skip).Error; err != nil {
		return nil, fmt.Errorf("reload habit skip: %w", err)
	}

	return &skip, nil
}

// RemoveSkip 取消豁免日，不存在时静默成功
func (s *HabitService) RemoveSkip(habitID uint, date time.Time) error {
	if err := s.db.Where("habit_id = ? AND skip_date = ?", habitID, normalizeToDate(date)).
		Delete(&db.HabitSkip{}).Error; err != nil {
		return fmt.Errorf("delete habit skip: %w", err)
	}
	return nil
}

// ListSkips 返回习惯的全部豁免日
func (s *HabitService) ListSkips(habitID uint) ([]db.HabitSkip, error) {
	var skips []db.HabitSkip
	if err := s.db.Where("habit_id = ?", habitID).
		Order("skip_date ASC").
		Find(&skips).Error; err != nil {
		return nil, fmt.Errorf("list habit skips: %w", err)
	}
	return skips, nil
}

// IsSkipped 判断指定日期是否被显式豁免
func (s *HabitService) IsSkipped(habitID uint, date time.Time) (bool, error) {
	var count int64
	if err := s.db.Model(&db.HabitSkip{}).
		Where("habit_id = ? AND skip_date = ?", habitID, normalizeToDate(date)).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("check habit skip: %w", err)
	}
	return count > 0, nil
}

func validateHabitInput(input HabitInput) error {
	if input.Goal <= 0 {
		return fmt.Errorf("%w: goal must be positive", ErrHabitInvalidGoal)
	}

	if strings.TrimSpace(input.Name) == "" {
		return fmt.Errorf("habit name is required")
	}

	return nil
}

func normalizeStatus(status string) string {
	status = strings.TrimSpace(strings.ToLower(status))
	if status != "inactive" {
		return "active"
	}
	return "inactive"
}

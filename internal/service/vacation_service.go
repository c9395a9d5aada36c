package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/chloHabitto/habitto/internal/db"
	"gorm.io/gorm"
)

// VacationService 负责休假窗口的维护
// 窗口内的日期在连胜判定中按中性日处理
type VacationService struct {
	db *gorm.DB
}

// VacationInput 定义创建休假窗口的输入
type VacationInput struct {
	UserID    string
	StartDate time.Time
	EndDate   time.Time
	Reason    string
}

// NewVacationService 构造 VacationService
func NewVacationService(gdb *gorm.DB) *VacationService {
	return &VacationService{db: gdb}
}

// List 返回用户的全部休假窗口
func (s *VacationService) List(userID string) ([]db.Vacation, error) {
	var vacations []db.Vacation
	if err := s.db.Where("user_id = ?", userID).
		Order("start_date ASC").
		Find(&vacations).Error; err != nil {
		return nil, fmt.Errorf("list vacations: %w", err)
	}
	return vacations, nil
}

// Create 新建休假窗口
func (s *VacationService) Create(input VacationInput) (*db.Vacation, error) {
	start := normalizeToDate(input.StartDate)
	end := normalizeToDate(input.EndDate)
	if end.Before(start) {
		return nil, fmt.Errorf("invalid vacation range: end before start")
	}

	vacation := db.Vacation{
		UserID:    input.UserID,
		StartDate: start,
		EndDate:   end,
		Reason:    strings.TrimSpace(input.Reason),
	}

	if err := s.db.Create(&vacation).Error; err != nil {
		return nil, fmt.Errorf("create vacation: %w", err)
	}
	return &vacation, nil
}

// Delete 删除休假窗口
func (s *VacationService) Delete(id uint) error {
	if err := s.db.Delete(&db.Vacation{}, id).Error; err != nil {
		return fmt.Errorf("delete vacation: %w", err)
	}
	return nil
}

// ActiveOn 判断指定日期是否落在某个休假窗口内
func (s *VacationService) ActiveOn(userID string, date time.Time) (bool, error) {
	day := normalizeToDate(date)
	var count int64
	if err := s.db.Model(&db.Vacation{}).
		Where("user_id = ?", userID).
		Where("start_date <= ? AND end_date >= ?", day, day).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("check vacation: %w", err)
	}
	return count > 0, nil
}

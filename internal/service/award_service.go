package service

import (
	"fmt"
	"time"

	"github.com/chloHabitto/habitto/internal/db"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AwardService 维护按日奖励台账
// 一天至多一行，重复评估无副作用；总奖励永远由行数重算，绝不增量累加
type AwardService struct {
	db         *gorm.DB
	evaluator  *Evaluator
	unitReward int
}

// NewAwardService 构造 AwardService
func NewAwardService(gdb *gorm.DB, evaluator *Evaluator, unitReward int) *AwardService {
	return &AwardService{db: gdb, evaluator: evaluator, unitReward: unitReward}
}

// Evaluate 评估某日是否达成入账条件并幂等落账
// 应做集合为空的日子按无条件达成处理；条件不再成立时撤销已有入账
func (s *AwardService) Evaluate(userID string, date time.Time) (bool, int, error) {
	standing, err := s.evaluator.Standing(date)
	if err != nil {
		return false, 0, fmt.Errorf("evaluate award: %w", err)
	}

	granted := standing.Due == 0 || standing.Unsatisfied == 0
	grantDate := normalizeToDate(date)

	if granted {
		entry := db.AwardLedgerEntry{
			UserID:       userID,
			GrantDate:    grantDate,
			RewardAmount: s.unitReward,
			GrantedAt:    time.Now(),
		}
		if err := s.db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "grant_date"}},
			DoNothing: true,
		}).Create(&entry).Error; err != nil {
			return false, 0, fmt.Errorf("insert award ledger entry: %w", err)
		}
		return true, s.unitReward, nil
	}

	// 条件不再成立：撤销该日入账，台账与事实保持一致
	result := s.db.Where("user_id = ? AND grant_date = ?", userID, grantDate).
		Delete(&db.AwardLedgerEntry{})
	if result.Error != nil {
		return false, 0, fmt.Errorf("revoke award ledger entry: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		logrus.Infof("award for user %s on %s revoked", userID, dateKey(grantDate))
	}

	return false, 0, nil
}

// TotalReward 返回累计奖励与入账天数
// 总额 = 行数 × 单价，每次读取都重算，重复触发评估不会虚增
func (s *AwardService) TotalReward(userID string) (int, int, error) {
	var count int64
	if err := s.db.Model(&db.AwardLedgerEntry{}).
		Where("user_id = ?", userID).
		Count(&count).Error; err != nil {
		return 0, 0, fmt.Errorf("count award ledger entries: %w", err)
	}
	return int(count) * s.unitReward, int(count), nil
}

// ListEntries 返回用户的全部入账记录，按日期升序
func (s *AwardService) ListEntries(userID string) ([]db.AwardLedgerEntry, error) {
	var entries []db.AwardLedgerEntry
	if err := s.db.Where("user_id = ?", userID).
		Order("grant_date ASC").
		Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("list award ledger entries: %w", err)
	}
	return entries, nil
}

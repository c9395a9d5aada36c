package db

import (
	"time"

	"gorm.io/gorm"
)

// AwardLedgerEntry 表示某天达成全部应做习惯后的一次奖励入账
// UserID + GrantDate 采用唯一索引，同一天最多一行
// 总奖励永远由行数乘单价重算，绝不做增量累加
type AwardLedgerEntry struct {
	gorm.Model
	UserID       string    `gorm:"index;index:idx_award_ledger_unique,unique"`
	GrantDate    time.Time `gorm:"index:idx_award_ledger_unique,unique"`
	RewardAmount int
	GrantedAt    time.Time
}

// TableName 重写确保唯一索引作用到 user_id + grant_date
func (AwardLedgerEntry) TableName() string {
	return "award_ledger_entries"
}

package models

import "time"

// TxLog records one ledger-confirmed mutation.
type TxLog struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	TradeID   string `gorm:"type:varchar(64);not null;index"`
	Operation string `gorm:"type:varchar(40);not null"`
	Entity    string `gorm:"type:varchar(40);not null"`
	Idx       string `gorm:"type:varchar(40)"`
	Approval  string `gorm:"type:varchar(20);not null"`
	TxHash    string `gorm:"type:varchar(66);not null;uniqueIndex"`
	Signer    string `gorm:"type:varchar(42);not null;index"`
	UserID    string `gorm:"type:varchar(64);not null"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
}

func (TxLog) TableName() string {
	return "tx_logs"
}

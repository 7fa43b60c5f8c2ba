package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeOffer is a public buy or sell offer a counterparty may turn into a trade.
type TradeOffer struct {
	ID          string `gorm:"type:varchar(64);primaryKey"`
	Commodity   string `gorm:"type:varchar(200);not null;index"`
	Description string `gorm:"type:text"`
	IsSell      bool   `gorm:"not null"`

	Price    decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	Quantity decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	Unit     string          `gorm:"type:varchar(20)"`
	Currency string          `gorm:"type:varchar(10);not null;default:'USD'"`

	TemplateID string     `gorm:"type:varchar(64)"`
	CreatedBy  string     `gorm:"type:varchar(64);not null;index"`
	ExpiresAt  *time.Time `gorm:"type:timestamptz;index"`
	ClosedAt   *time.Time `gorm:"type:timestamptz"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (TradeOffer) TableName() string {
	return "trade_offers"
}

// Open reports whether the offer can still be taken at now.
func (o *TradeOffer) Open(now time.Time) bool {
	if o == nil || o.ClosedAt != nil {
		return false
	}
	return o.ExpiresAt == nil || now.Before(*o.ExpiresAt)
}

// Total is price times quantity.
func (o *TradeOffer) Total() decimal.Decimal {
	if o == nil {
		return decimal.Zero
	}
	return o.Price.Mul(o.Quantity)
}

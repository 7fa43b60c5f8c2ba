package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"tradeflow/internal/workflow"
)

// TradeRecord stores the whole trade aggregate as one JSONB document. The
// scalar columns are projections used for listing and filtering.
type TradeRecord struct {
	ID          string `gorm:"type:varchar(64);primaryKey"`
	Name        string `gorm:"type:varchar(200);not null"`
	BuyerID     string `gorm:"type:varchar(64);not null;index"`
	SellerID    string `gorm:"type:varchar(64);not null;index"`
	CreatedBy   string `gorm:"type:varchar(64);not null"`
	TemplateID  string `gorm:"type:varchar(64);index"`
	OfferID     string `gorm:"type:varchar(64);index"`
	CloseStatus string `gorm:"type:varchar(20);not null;default:'no';index"`

	Data    datatypes.JSON `gorm:"type:jsonb;not null"`
	Version int64          `gorm:"not null;default:1"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (TradeRecord) TableName() string {
	return "trades"
}

// NewTradeRecord projects t into a record. Version is left for the caller.
func NewTradeRecord(t *workflow.Trade) (*TradeRecord, error) {
	if t == nil {
		return nil, workflow.ErrInvalidTrade
	}
	b, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}
	return &TradeRecord{
		ID:          t.ID,
		Name:        t.Name,
		BuyerID:     t.Buyer.ID,
		SellerID:    t.Seller.ID,
		CreatedBy:   t.CreatedBy,
		TemplateID:  t.TemplateID,
		OfferID:     t.OfferID,
		CloseStatus: string(workflow.TradeCloseStatus(t)),
		Data:        datatypes.JSON(b),
		CreatedAt:   t.CreatedAt,
	}, nil
}

// Trade decodes the stored aggregate and re-derives its cached statuses.
func (r *TradeRecord) Trade() (*workflow.Trade, error) {
	if r == nil || len(r.Data) == 0 {
		return nil, workflow.ErrInvalidTrade
	}
	var t workflow.Trade
	if err := json.Unmarshal(r.Data, &t); err != nil {
		return nil, err
	}
	workflow.Refresh(&t)
	return &t, nil
}

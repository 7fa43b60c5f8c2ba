package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"tradeflow/internal/workflow"
)

// TradeTemplate is a reusable list of stages a trade is seeded with.
type TradeTemplate struct {
	ID          string         `gorm:"type:varchar(64);primaryKey"`
	Name        string         `gorm:"type:varchar(200);not null;uniqueIndex"`
	Description string         `gorm:"type:text"`
	Stages      datatypes.JSON `gorm:"type:jsonb;not null"`
	CreatedBy   string         `gorm:"type:varchar(64);not null"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (TradeTemplate) TableName() string {
	return "trade_templates"
}

func (t *TradeTemplate) StageList() ([]workflow.StageTemplate, error) {
	if t == nil || len(t.Stages) == 0 {
		return nil, nil
	}
	var out []workflow.StageTemplate
	if err := json.Unmarshal(t.Stages, &out); err != nil {
		return nil, err
	}
	return out, nil
}

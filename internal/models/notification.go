package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// Notification actions besides the operation names.
const (
	ActionDocExpired = "doc_expired"
	ActionTradeNew   = "trade_created"
)

type Notification struct {
	ID        string         `gorm:"type:varchar(64);primaryKey"`
	TradeID   string         `gorm:"type:varchar(64);not null;index"`
	Receivers datatypes.JSON `gorm:"type:jsonb;not null"`
	Action    string         `gorm:"type:varchar(40);not null;index"`
	Message   string         `gorm:"type:text"`

	// Ref identifies the entity, e.g. a path string. Together with Action it
	// dedupes watcher notifications.
	Ref       string         `gorm:"type:varchar(200);index"`
	CreatedBy string         `gorm:"type:varchar(64)"`
	Dismissed datatypes.JSON `gorm:"type:jsonb"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
}

func (Notification) TableName() string {
	return "notifications"
}

func (n *Notification) ReceiverList() []string {
	return decodeStrings(n.Receivers)
}

func (n *Notification) DismissedBy(userID string) bool {
	for _, id := range decodeStrings(n.Dismissed) {
		if id == userID {
			return true
		}
	}
	return false
}

func decodeStrings(raw datatypes.JSON) []string {
	if len(raw) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

// StringsJSON encodes ids for a JSONB column.
func StringsJSON(ids []string) datatypes.JSON {
	if ids == nil {
		ids = []string{}
	}
	b, _ := json.Marshal(ids)
	return datatypes.JSON(b)
}

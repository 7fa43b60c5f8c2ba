package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"tradeflow/internal/workflow"
)

type User struct {
	ID   string `gorm:"type:varchar(64);primaryKey"`
	Name string `gorm:"type:varchar(200);not null"`

	// Address is the ledger address the user signs with.
	Address string         `gorm:"type:varchar(42);not null;uniqueIndex"`
	Roles   datatypes.JSON `gorm:"type:jsonb"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) RoleList() []string {
	if u == nil || len(u.Roles) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(u.Roles, &out); err != nil {
		return nil
	}
	return out
}

// Workflow returns the identity carried inside trades.
func (u *User) Workflow() workflow.User {
	if u == nil {
		return workflow.User{}
	}
	return workflow.User{ID: u.ID, Name: u.Name, PubKey: u.Address, Roles: u.RoleList()}
}

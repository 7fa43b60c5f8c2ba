package api

import (
	"time"

	"github.com/shopspring/decimal"

	"tradeflow/internal/workflow"
)

// RegisterRequest enrolls a user with the ledger address it signs with. The
// signature over LoginMessage proves ownership of the key.
type RegisterRequest struct {
	UserID    string `json:"user_id"`
	Name      string `json:"name"`
	Address   string `json:"address"`
	Timestamp int64  `json:"timestamp"`
	Signature string `json:"signature"`
}

type TradeSummary struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	BuyerID     string             `json:"buyer_id"`
	SellerID    string             `json:"seller_id"`
	CloseStatus workflow.ReqStatus `json:"close_status"`
	Version     int64              `json:"version"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

type Template struct {
	ID          string                   `json:"id"`
	Name        string                   `json:"name"`
	Description string                   `json:"description,omitempty"`
	Stages      []workflow.StageTemplate `json:"stages"`
	CreatedBy   string                   `json:"created_by"`
	CreatedAt   time.Time                `json:"created_at"`
}

type CreateTemplateRequest struct {
	Name        string                   `json:"name"`
	Description string                   `json:"description,omitempty"`
	Stages      []workflow.StageTemplate `json:"stages"`
}

type Offer struct {
	ID          string          `json:"id"`
	Commodity   string          `json:"commodity"`
	Description string          `json:"description,omitempty"`
	IsSell      bool            `json:"is_sell"`
	Price       decimal.Decimal `json:"price"`
	Quantity    decimal.Decimal `json:"quantity"`
	Total       decimal.Decimal `json:"total"`
	Unit        string          `json:"unit,omitempty"`
	Currency    string          `json:"currency"`
	TemplateID  string          `json:"template_id,omitempty"`
	CreatedBy   string          `json:"created_by"`
	ExpiresAt   *time.Time      `json:"expires_at,omitempty"`
	ClosedAt    *time.Time      `json:"closed_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

type CreateOfferRequest struct {
	Commodity   string     `json:"commodity"`
	Description string     `json:"description,omitempty"`
	IsSell      bool       `json:"is_sell"`
	Price       string     `json:"price"`
	Quantity    string     `json:"quantity"`
	Unit        string     `json:"unit,omitempty"`
	Currency    string     `json:"currency,omitempty"`
	TemplateID  string     `json:"template_id,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

type Notification struct {
	ID        string    `json:"id"`
	TradeID   string    `json:"trade_id"`
	Action    string    `json:"action"`
	Message   string    `json:"message"`
	Ref       string    `json:"ref,omitempty"`
	CreatedBy string    `json:"created_by,omitempty"`
	Dismissed bool      `json:"dismissed"`
	CreatedAt time.Time `json:"created_at"`
}

package repository

import (
	"context"
	"errors"
	"time"

	"tradeflow/internal/models"
)

// ErrConflict is returned when a trade was changed since it was loaded.
var ErrConflict = errors.New("trade version conflict")

// ErrDuplicateTx is returned when a ledger transaction was already recorded.
var ErrDuplicateTx = errors.New("transaction already recorded")

type TradeRepository interface {
	GetTrade(ctx context.Context, id string) (*models.TradeRecord, error)
	ListTrades(ctx context.Context, params ListTradesParams) ([]models.TradeRecord, error)
	InsertTrade(ctx context.Context, item *models.TradeRecord) error
	// SaveMutation stores the updated trade together with its ledger log and
	// notification. It fails with ErrConflict when item.Version-1 is no longer
	// the stored version, and with ErrDuplicateTx when log.TxHash is known.
	SaveMutation(ctx context.Context, item *models.TradeRecord, log *models.TxLog, n *models.Notification) error
	ListTxLogs(ctx context.Context, tradeID string) ([]models.TxLog, error)
}

type UserRepository interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetUserByAddress(ctx context.Context, address string) (*models.User, error)
	InsertUser(ctx context.Context, item *models.User) error
	ListUsersByIDs(ctx context.Context, ids []string) ([]models.User, error)
}

type TemplateRepository interface {
	InsertTemplate(ctx context.Context, item *models.TradeTemplate) error
	GetTemplate(ctx context.Context, id string) (*models.TradeTemplate, error)
	ListTemplates(ctx context.Context) ([]models.TradeTemplate, error)
}

type OfferRepository interface {
	InsertOffer(ctx context.Context, item *models.TradeOffer) error
	GetOffer(ctx context.Context, id string) (*models.TradeOffer, error)
	ListOffers(ctx context.Context, params ListOffersParams) ([]models.TradeOffer, error)
	CloseOffer(ctx context.Context, id string, at time.Time) error
}

type NotificationRepository interface {
	InsertNotification(ctx context.Context, item *models.Notification) error
	ListNotifications(ctx context.Context, params ListNotificationsParams) ([]models.Notification, error)
	GetNotification(ctx context.Context, id string) (*models.Notification, error)
	DismissNotification(ctx context.Context, id, userID string) error
	HasNotification(ctx context.Context, tradeID, action, ref string) (bool, error)
}

type Repository interface {
	TradeRepository
	UserRepository
	TemplateRepository
	OfferRepository
	NotificationRepository
}

type ListTradesParams struct {
	// UserID limits the result to trades the user is a party of.
	UserID   string
	OpenOnly bool
	Limit    int
	Offset   int
}

type ListOffersParams struct {
	Commodity string
	CreatedBy string
	OpenAt    *time.Time
	Limit     int
	Offset    int
}

type ListNotificationsParams struct {
	UserID           string
	TradeID          string
	IncludeDismissed bool
	Limit            int
	Offset           int
}

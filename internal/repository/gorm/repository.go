package gormrepository

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tradeflow/internal/models"
	"tradeflow/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

var _ repository.Repository = (*Store)(nil)

// --- trades ------------------------------------------------------------------

func (s *Store) GetTrade(ctx context.Context, id string) (*models.TradeRecord, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, nil
	}
	var item models.TradeRecord
	err := s.db.WithContext(ctx).Model(&models.TradeRecord{}).Where("id = ?", id).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListTrades(ctx context.Context, params repository.ListTradesParams) ([]models.TradeRecord, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.TradeRecord{})
	if userID := strings.TrimSpace(params.UserID); userID != "" {
		query = query.Where("buyer_id = ? OR seller_id = ?", userID, userID)
	}
	if params.OpenOnly {
		query = query.Where("close_status <> ?", "approved")
	}
	var items []models.TradeRecord
	if err := query.
		Order("created_at desc").
		Limit(normalizeLimit(params.Limit, 100)).
		Offset(normalizeOffset(params.Offset)).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) InsertTrade(ctx context.Context, item *models.TradeRecord) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	if item.Version <= 0 {
		item.Version = 1
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) SaveMutation(ctx context.Context, item *models.TradeRecord, log *models.TxLog, n *models.Notification) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if log != nil {
			var seen int64
			if err := tx.Model(&models.TxLog{}).Where("tx_hash = ?", log.TxHash).Count(&seen).Error; err != nil {
				return err
			}
			if seen > 0 {
				return repository.ErrDuplicateTx
			}
		}
		res := tx.Model(&models.TradeRecord{}).
			Where("id = ? AND version = ?", item.ID, item.Version-1).
			Updates(map[string]any{
				"name":         item.Name,
				"close_status": item.CloseStatus,
				"data":         item.Data,
				"version":      item.Version,
				"updated_at":   time.Now().UTC(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return repository.ErrConflict
		}
		if log != nil {
			if err := tx.Create(log).Error; err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					return repository.ErrDuplicateTx
				}
				return err
			}
		}
		if n != nil {
			if err := tx.Create(n).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) ListTxLogs(ctx context.Context, tradeID string) ([]models.TxLog, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.TxLog
	if err := s.db.WithContext(ctx).
		Model(&models.TxLog{}).
		Where("trade_id = ?", strings.TrimSpace(tradeID)).
		Order("id asc").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- users -------------------------------------------------------------------

func (s *Store) GetUser(ctx context.Context, id string) (*models.User, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	return first[models.User](s.db.WithContext(ctx).Where("id = ?", strings.TrimSpace(id)))
}

func (s *Store) GetUserByAddress(ctx context.Context, address string) (*models.User, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	return first[models.User](s.db.WithContext(ctx).Where("address = ?", strings.ToLower(strings.TrimSpace(address))))
}

func (s *Store) InsertUser(ctx context.Context, item *models.User) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	item.Address = strings.ToLower(strings.TrimSpace(item.Address))
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) ListUsersByIDs(ctx context.Context, ids []string) ([]models.User, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	ids = cleanStrings(ids)
	if len(ids) == 0 {
		return nil, nil
	}
	var items []models.User
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- templates ---------------------------------------------------------------

func (s *Store) InsertTemplate(ctx context.Context, item *models.TradeTemplate) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"description", "stages", "updated_at"}),
	}).Create(item).Error
}

func (s *Store) GetTemplate(ctx context.Context, id string) (*models.TradeTemplate, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	return first[models.TradeTemplate](s.db.WithContext(ctx).Where("id = ?", strings.TrimSpace(id)))
}

func (s *Store) ListTemplates(ctx context.Context) ([]models.TradeTemplate, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.TradeTemplate
	if err := s.db.WithContext(ctx).Order("name asc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- offers ------------------------------------------------------------------

func (s *Store) InsertOffer(ctx context.Context, item *models.TradeOffer) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) GetOffer(ctx context.Context, id string) (*models.TradeOffer, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	return first[models.TradeOffer](s.db.WithContext(ctx).Where("id = ?", strings.TrimSpace(id)))
}

func (s *Store) ListOffers(ctx context.Context, params repository.ListOffersParams) ([]models.TradeOffer, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.TradeOffer{})
	if v := strings.TrimSpace(params.Commodity); v != "" {
		query = query.Where("commodity ILIKE ?", "%"+v+"%")
	}
	if v := strings.TrimSpace(params.CreatedBy); v != "" {
		query = query.Where("created_by = ?", v)
	}
	if params.OpenAt != nil && !params.OpenAt.IsZero() {
		query = query.Where("closed_at IS NULL AND (expires_at IS NULL OR expires_at > ?)", *params.OpenAt)
	}
	var items []models.TradeOffer
	if err := query.
		Order("created_at desc").
		Limit(normalizeLimit(params.Limit, 100)).
		Offset(normalizeOffset(params.Offset)).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CloseOffer(ctx context.Context, id string, at time.Time) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).
		Model(&models.TradeOffer{}).
		Where("id = ? AND closed_at IS NULL", strings.TrimSpace(id)).
		Updates(map[string]any{"closed_at": at, "updated_at": time.Now().UTC()}).
		Error
}

// --- notifications -----------------------------------------------------------

func (s *Store) InsertNotification(ctx context.Context, item *models.Notification) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) ListNotifications(ctx context.Context, params repository.ListNotificationsParams) ([]models.Notification, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.Notification{})
	if v := strings.TrimSpace(params.UserID); v != "" {
		query = query.Where("receivers @> ?", models.StringsJSON([]string{v}))
		if !params.IncludeDismissed {
			query = query.Where("(dismissed IS NULL OR NOT dismissed @> ?)", models.StringsJSON([]string{v}))
		}
	}
	if v := strings.TrimSpace(params.TradeID); v != "" {
		query = query.Where("trade_id = ?", v)
	}
	var items []models.Notification
	if err := query.
		Order("created_at desc").
		Limit(normalizeLimit(params.Limit, 100)).
		Offset(normalizeOffset(params.Offset)).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) GetNotification(ctx context.Context, id string) (*models.Notification, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	return first[models.Notification](s.db.WithContext(ctx).Where("id = ?", strings.TrimSpace(id)))
}

func (s *Store) DismissNotification(ctx context.Context, id, userID string) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("id = ? AND (dismissed IS NULL OR NOT dismissed @> ?)", strings.TrimSpace(id), models.StringsJSON([]string{userID})).
		Update("dismissed", gorm.Expr("COALESCE(dismissed, '[]'::jsonb) || ?::jsonb", models.StringsJSON([]string{userID}))).
		Error
}

func (s *Store) HasNotification(ctx context.Context, tradeID, action, ref string) (bool, error) {
	if s == nil || s.db == nil {
		return false, nil
	}
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("trade_id = ? AND action = ? AND ref = ?", tradeID, action, ref).
		Count(&count).Error
	return count > 0, err
}

// --- helpers -----------------------------------------------------------------

func first[T any](query *gorm.DB) (*T, error) {
	var item T
	err := query.First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > 500 {
		return 500
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	seen := map[string]struct{}{}
	for _, raw := range items {
		val := strings.TrimSpace(raw)
		if val == "" {
			continue
		}
		if _, ok := seen[val]; ok {
			continue
		}
		seen[val] = struct{}{}
		out = append(out, val)
	}
	return out
}

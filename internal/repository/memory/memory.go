// Package memory is a process-local repository.Repository. It backs the
// server in dev mode when no database is configured, and the handler and
// service tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"tradeflow/internal/models"
	"tradeflow/internal/repository"
)

type Store struct {
	mu            sync.Mutex
	trades        map[string]models.TradeRecord
	users         map[string]models.User
	templates     map[string]models.TradeTemplate
	offers        map[string]models.TradeOffer
	notifications []models.Notification
	txLogs        []models.TxLog
	nextLogID     uint64

	now func() time.Time
}

func New() *Store {
	return &Store{
		trades:    map[string]models.TradeRecord{},
		users:     map[string]models.User{},
		templates: map[string]models.TradeTemplate{},
		offers:    map[string]models.TradeOffer{},
		now:       func() time.Time { return time.Now().UTC() },
	}
}

var _ repository.Repository = (*Store)(nil)

func page[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

// --- trades ------------------------------------------------------------------

func (s *Store) GetTrade(ctx context.Context, id string) (*models.TradeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.trades[strings.TrimSpace(id)]
	if !ok {
		return nil, nil
	}
	rec.Data = append([]byte(nil), rec.Data...)
	return &rec, nil
}

func (s *Store) ListTrades(ctx context.Context, params repository.ListTradesParams) ([]models.TradeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	userID := strings.TrimSpace(params.UserID)
	var out []models.TradeRecord
	for _, rec := range s.trades {
		if userID != "" && rec.BuyerID != userID && rec.SellerID != userID {
			continue
		}
		if params.OpenOnly && rec.CloseStatus == "approved" {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return page(out, params.Limit, params.Offset), nil
}

func (s *Store) InsertTrade(ctx context.Context, item *models.TradeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.trades[item.ID]; ok {
		return repository.ErrConflict
	}
	now := s.now()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now
	s.trades[item.ID] = *item
	return nil
}

func (s *Store) SaveMutation(ctx context.Context, item *models.TradeRecord, log *models.TxLog, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.trades[item.ID]
	if !ok || cur.Version != item.Version-1 {
		return repository.ErrConflict
	}
	if log != nil {
		for _, l := range s.txLogs {
			if l.TxHash == log.TxHash {
				return repository.ErrDuplicateTx
			}
		}
	}
	item.CreatedAt = cur.CreatedAt
	item.UpdatedAt = s.now()
	s.trades[item.ID] = *item
	if log != nil {
		s.nextLogID++
		log.ID = s.nextLogID
		s.txLogs = append(s.txLogs, *log)
	}
	if n != nil {
		s.notifications = append(s.notifications, *n)
	}
	return nil
}

func (s *Store) ListTxLogs(ctx context.Context, tradeID string) ([]models.TxLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.TxLog
	for _, l := range s.txLogs {
		if l.TradeID == tradeID {
			out = append(out, l)
		}
	}
	return out, nil
}

// --- users -------------------------------------------------------------------

func (s *Store) GetUser(ctx context.Context, id string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[strings.TrimSpace(id)]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (s *Store) GetUserByAddress(ctx context.Context, address string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	address = strings.ToLower(strings.TrimSpace(address))
	for _, u := range s.users {
		if strings.ToLower(u.Address) == address {
			return &u, nil
		}
	}
	return nil, nil
}

func (s *Store) InsertUser(ctx context.Context, item *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[item.ID]; ok {
		return repository.ErrConflict
	}
	now := s.now()
	item.CreatedAt, item.UpdatedAt = now, now
	s.users[item.ID] = *item
	return nil
}

func (s *Store) ListUsersByIDs(ctx context.Context, ids []string) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.User
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

// --- templates ---------------------------------------------------------------

// InsertTemplate replaces a template of the same name, like the SQL upsert.
func (s *Store) InsertTemplate(ctx context.Context, item *models.TradeTemplate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for id, t := range s.templates {
		if t.Name == item.Name {
			item.ID = id
			item.CreatedAt = t.CreatedAt
		}
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now
	s.templates[item.ID] = *item
	return nil
}

func (s *Store) GetTemplate(ctx context.Context, id string) (*models.TradeTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.templates[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (s *Store) ListTemplates(ctx context.Context) ([]models.TradeTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.TradeTemplate, 0, len(s.templates))
	for _, t := range s.templates {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// --- offers ------------------------------------------------------------------

func (s *Store) InsertOffer(ctx context.Context, item *models.TradeOffer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = s.now()
	}
	s.offers[item.ID] = *item
	return nil
}

func (s *Store) GetOffer(ctx context.Context, id string) (*models.TradeOffer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.offers[id]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (s *Store) ListOffers(ctx context.Context, params repository.ListOffersParams) ([]models.TradeOffer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.TradeOffer
	for _, o := range s.offers {
		if params.Commodity != "" && !strings.EqualFold(o.Commodity, params.Commodity) {
			continue
		}
		if params.CreatedBy != "" && o.CreatedBy != params.CreatedBy {
			continue
		}
		if params.OpenAt != nil && !o.Open(*params.OpenAt) {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, params.Limit, params.Offset), nil
}

func (s *Store) CloseOffer(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.offers[id]
	if !ok || o.ClosedAt != nil {
		return nil
	}
	o.ClosedAt = &at
	s.offers[id] = o
	return nil
}

// --- notifications -----------------------------------------------------------

func (s *Store) InsertNotification(ctx context.Context, item *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = s.now()
	}
	s.notifications = append(s.notifications, *item)
	return nil
}

// ListNotifications returns newest first. Without a user id every
// notification matches.
func (s *Store) ListNotifications(ctx context.Context, params repository.ListNotificationsParams) ([]models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Notification
	for i := len(s.notifications) - 1; i >= 0; i-- {
		n := s.notifications[i]
		if params.TradeID != "" && n.TradeID != params.TradeID {
			continue
		}
		if params.UserID != "" {
			if !contains(n.ReceiverList(), params.UserID) {
				continue
			}
			if !params.IncludeDismissed && n.DismissedBy(params.UserID) {
				continue
			}
		}
		out = append(out, n)
	}
	return page(out, params.Limit, params.Offset), nil
}

func (s *Store) GetNotification(ctx context.Context, id string) (*models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.notifications {
		if n.ID == id {
			return &n, nil
		}
	}
	return nil, nil
}

func (s *Store) DismissNotification(ctx context.Context, id, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.notifications {
		n := &s.notifications[i]
		if n.ID != id || n.DismissedBy(userID) {
			continue
		}
		var ids []string
		for _, r := range n.ReceiverList() {
			if n.DismissedBy(r) {
				ids = append(ids, r)
			}
		}
		n.Dismissed = models.StringsJSON(append(ids, userID))
	}
	return nil
}

func (s *Store) HasNotification(ctx context.Context, tradeID, action, ref string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.notifications {
		if n.TradeID == tradeID && n.Action == action && n.Ref == ref {
			return true, nil
		}
	}
	return false, nil
}

func contains(items []string, v string) bool {
	for _, it := range items {
		if it == v {
			return true
		}
	}
	return false
}

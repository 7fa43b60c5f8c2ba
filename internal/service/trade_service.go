package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tradeflow/internal/api"
	"tradeflow/internal/events"
	"tradeflow/internal/ledger"
	"tradeflow/internal/lock"
	"tradeflow/internal/models"
	"tradeflow/internal/notification"
	"tradeflow/internal/repository"
	"tradeflow/internal/session"
	"tradeflow/internal/workflow"
)

// TradeService is the persistence side of every trade operation. Mutations
// are re-validated with the same state machine the client ran, after the
// signed ledger token has been checked against the stored state.
type TradeService struct {
	Repo     repository.Repository
	Locker   lock.Locker
	Hub      *events.Hub
	Notifier *notification.Dispatcher
	Logger   *zap.Logger

	Now func() time.Time
}

func (s *TradeService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *TradeService) Create(ctx context.Context, creator workflow.User, req api.CreateTradeRequest) (*workflow.Trade, error) {
	if s == nil || s.Repo == nil {
		return nil, fmt.Errorf("trade service not initialized")
	}
	in := workflow.NewTradeInput{
		ID:          uuid.NewString(),
		Name:        strings.TrimSpace(req.Name),
		Description: strings.TrimSpace(req.Description),
		CreatedBy:   creator.ID,
		TemplateID:  strings.TrimSpace(req.TemplateID),
	}
	buyerID, sellerID := strings.TrimSpace(req.BuyerID), strings.TrimSpace(req.SellerID)

	now := s.now()
	if offerID := strings.TrimSpace(req.OfferID); offerID != "" {
		offer, err := s.Repo.GetOffer(ctx, offerID)
		if err != nil {
			return nil, err
		}
		if offer == nil {
			return nil, fmt.Errorf("offer %s: %w", offerID, ErrNotFound)
		}
		if !offer.Open(now) {
			return nil, fmt.Errorf("offer %s is closed or expired: %w", offerID, ErrInvalidInput)
		}
		// the taker becomes the counterparty of the offer's creator
		if offer.IsSell {
			buyerID, sellerID = creator.ID, offer.CreatedBy
		} else {
			buyerID, sellerID = offer.CreatedBy, creator.ID
		}
		in.OfferID = offer.ID
		if in.TemplateID == "" {
			in.TemplateID = offer.TemplateID
		}
	}

	if in.TemplateID != "" {
		tpl, err := s.Repo.GetTemplate(ctx, in.TemplateID)
		if err != nil {
			return nil, err
		}
		if tpl == nil {
			return nil, fmt.Errorf("template %s: %w", in.TemplateID, ErrNotFound)
		}
		stages, err := tpl.StageList()
		if err != nil {
			return nil, err
		}
		in.Stages = stages
	}

	in.Buyer = workflow.User{ID: buyerID}
	in.Seller = workflow.User{ID: sellerID}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	users, err := s.Repo.ListUsersByIDs(ctx, []string{buyerID, sellerID})
	if err != nil {
		return nil, err
	}
	byID := make(map[string]workflow.User, len(users))
	for i := range users {
		byID[users[i].ID] = users[i].Workflow()
	}
	for _, u := range []*workflow.User{&in.Buyer, &in.Seller} {
		found, ok := byID[u.ID]
		if !ok {
			return nil, fmt.Errorf("user %s: %w", u.ID, ErrNotFound)
		}
		*u = found
	}

	t, err := workflow.NewTrade(in, now)
	if err != nil {
		return nil, err
	}
	rec, err := models.NewTradeRecord(t)
	if err != nil {
		return nil, err
	}
	rec.Version = 1
	if err := s.Repo.InsertTrade(ctx, rec); err != nil {
		return nil, err
	}

	n := notification.TradeCreated(t, creator, now)
	if err := s.Repo.InsertNotification(ctx, n); err != nil && s.Logger != nil {
		s.Logger.Warn("trade notification insert failed", zap.String("trade_id", t.ID), zap.Error(err))
	}
	s.Notifier.Go(ctx, n)
	if s.Logger != nil {
		s.Logger.Info("trade created",
			zap.String("trade_id", t.ID),
			zap.String("buyer", t.Buyer.ID),
			zap.String("seller", t.Seller.ID),
			zap.Int("stages", len(t.Stages)),
		)
	}
	return t, nil
}

// Get loads a trade the caller may see: parties always, others only in
// moderator mode.
func (s *TradeService) Get(ctx context.Context, sc session.Context, id string) (*workflow.Trade, int64, error) {
	rec, err := s.Repo.GetTrade(ctx, id)
	if err != nil {
		return nil, 0, err
	}
	if rec == nil {
		return nil, 0, fmt.Errorf("trade %s: %w", id, ErrNotFound)
	}
	t, err := rec.Trade()
	if err != nil {
		return nil, 0, err
	}
	if !sc.Party(t).Authorized() {
		return nil, 0, fmt.Errorf("trade %s: %w", id, ErrForbidden)
	}
	return t, rec.Version, nil
}

func (s *TradeService) List(ctx context.Context, sc session.Context, params repository.ListTradesParams) ([]models.TradeRecord, error) {
	params.UserID = sc.User.ID
	if sc.Moderator {
		params.UserID = ""
	}
	return s.Repo.ListTrades(ctx, params)
}

func (s *TradeService) TxLogs(ctx context.Context, sc session.Context, id string) ([]models.TxLog, error) {
	if _, _, err := s.Get(ctx, sc, id); err != nil {
		return nil, err
	}
	return s.Repo.ListTxLogs(ctx, id)
}

// Mutate verifies and persists one signed operation. The trade is locked for
// the whole load, verify, apply, save sequence.
func (s *TradeService) Mutate(ctx context.Context, sc session.Context, mu workflow.Mutation) (workflow.Receipt, *workflow.Trade, int64, error) {
	var zero workflow.Receipt
	tradeID := mu.Path.TradeID
	if tradeID == "" {
		return zero, nil, 0, fmt.Errorf("trade id: %w", ErrInvalidInput)
	}
	if s.Locker != nil {
		unlock, err := s.Locker.Lock(ctx, "trade:"+tradeID)
		if err != nil {
			return zero, nil, 0, err
		}
		defer unlock()
	}

	rec, err := s.Repo.GetTrade(ctx, tradeID)
	if err != nil {
		return zero, nil, 0, err
	}
	if rec == nil {
		return zero, nil, 0, fmt.Errorf("trade %s: %w", tradeID, ErrNotFound)
	}
	t, err := rec.Trade()
	if err != nil {
		return zero, nil, 0, err
	}

	if mu.Op.IsReject() {
		if err := workflow.ValidateReason(mu.Reason); err != nil {
			return zero, nil, 0, &workflow.OpError{Op: mu.Op, Path: mu.Path, Err: err}
		}
	}
	if err := checkDocReference(t, mu); err != nil {
		return zero, nil, 0, &workflow.OpError{Op: mu.Op, Path: mu.Path, Err: err}
	}

	party := sc.Party(t)
	now := s.now()
	m := workflow.NewMachine(t, party)
	m.Now = func() time.Time { return now }
	if err := m.Check(mu); err != nil {
		return zero, nil, 0, err
	}

	address := sc.User.PubKey
	if address == "" {
		u, err := s.Repo.GetUser(ctx, sc.User.ID)
		if err != nil {
			return zero, nil, 0, err
		}
		if u == nil {
			return zero, nil, 0, fmt.Errorf("user %s: %w", sc.User.ID, ErrNotFound)
		}
		address = u.Address
	}
	desc, err := ledger.Describe(t, mu)
	if err != nil {
		return zero, nil, 0, &workflow.OpError{Op: mu.Op, Path: mu.Path, Err: err}
	}
	env, tx, err := ledger.Verify(mu.Token, desc, address)
	if err != nil {
		return zero, nil, 0, &workflow.OpError{Op: mu.Op, Path: mu.Path, Err: err}
	}

	receipt := workflow.Receipt{At: now, Tx: tx}
	if mu.Op == workflow.OpAddDocument && mu.Document != nil {
		receipt.DocID = mu.Document.ID
		if receipt.DocID == "" {
			receipt.DocID = uuid.NewString()
		}
	}
	if err := m.Apply(mu, receipt); err != nil {
		return zero, nil, 0, err
	}

	updated := m.Trade()
	next, err := models.NewTradeRecord(updated)
	if err != nil {
		return zero, nil, 0, err
	}
	next.Version = rec.Version + 1
	next.CreatedAt = rec.CreatedAt

	txLog := &models.TxLog{
		TradeID:   tradeID,
		Operation: string(mu.Op),
		Entity:    string(desc.Entity),
		Idx:       desc.Idx,
		Approval:  string(desc.Operation),
		TxHash:    tx,
		Signer:    env.Signer,
		UserID:    sc.User.ID,
		CreatedAt: now,
	}
	n := notification.Build(updated, party, mu, now)
	if err := s.Repo.SaveMutation(ctx, next, txLog, n); err != nil {
		return zero, nil, 0, err
	}

	s.Hub.Publish(events.Event{
		TradeID: tradeID,
		Op:      mu.Op,
		Path:    mu.Path.String(),
		Tx:      tx,
		By:      sc.User.ID,
		Version: next.Version,
		At:      now,
	})
	s.Notifier.Go(ctx, n)
	if s.Logger != nil {
		s.Logger.Info("trade mutation applied",
			zap.String("trade_id", tradeID),
			zap.String("op", string(mu.Op)),
			zap.String("path", mu.Path.String()),
			zap.String("user_id", sc.User.ID),
			zap.Bool("moderator", party.Moderator),
			zap.String("tx", tx),
			zap.Int64("version", next.Version),
		)
	}
	return receipt, updated, next.Version, nil
}

// checkDocReference refuses approvals of a document whose content hash is not
// the one the caller saw.
func checkDocReference(t *workflow.Trade, mu workflow.Mutation) error {
	if mu.Op != workflow.OpApproveDocument && mu.Op != workflow.OpRejectDocument {
		return nil
	}
	p := mu.Path
	if p.Stage < 0 || p.Stage >= len(t.Stages) {
		return workflow.ErrStageNotFound
	}
	docs := t.Stages[p.Stage].Docs
	if p.Doc < 0 || p.Doc >= len(docs) {
		return workflow.ErrDocNotFound
	}
	if p.Hash == "" || docs[p.Doc].Hash != p.Hash {
		return fmt.Errorf("document hash changed: %w", ErrStaleReference)
	}
	return nil
}

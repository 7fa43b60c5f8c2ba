package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"tradeflow/internal/api"
	"tradeflow/internal/models"
	"tradeflow/internal/repository"
	"tradeflow/internal/workflow"
)

type OfferService struct {
	Repo repository.Repository

	Now func() time.Time
}

func (s *OfferService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func positiveDecimal(field, raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s %q is not a number: %w", field, raw, ErrInvalidInput)
	}
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("%s must be positive: %w", field, ErrInvalidInput)
	}
	return d, nil
}

func (s *OfferService) Create(ctx context.Context, by workflow.User, req api.CreateOfferRequest) (*models.TradeOffer, error) {
	commodity := strings.TrimSpace(req.Commodity)
	if commodity == "" {
		return nil, fmt.Errorf("commodity is required: %w", ErrInvalidInput)
	}
	price, err := positiveDecimal("price", req.Price)
	if err != nil {
		return nil, err
	}
	qty, err := positiveDecimal("quantity", req.Quantity)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if req.ExpiresAt != nil && !req.ExpiresAt.After(now) {
		return nil, fmt.Errorf("expires_at must be in the future: %w", ErrInvalidInput)
	}
	if id := strings.TrimSpace(req.TemplateID); id != "" {
		tpl, err := s.Repo.GetTemplate(ctx, id)
		if err != nil {
			return nil, err
		}
		if tpl == nil {
			return nil, fmt.Errorf("template %s: %w", id, ErrNotFound)
		}
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "USD"
	}
	item := &models.TradeOffer{
		ID:          uuid.NewString(),
		Commodity:   commodity,
		Description: strings.TrimSpace(req.Description),
		IsSell:      req.IsSell,
		Price:       price,
		Quantity:    qty,
		Unit:        strings.TrimSpace(req.Unit),
		Currency:    currency,
		TemplateID:  strings.TrimSpace(req.TemplateID),
		CreatedBy:   by.ID,
		ExpiresAt:   req.ExpiresAt,
		CreatedAt:   now,
	}
	if err := s.Repo.InsertOffer(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

// ListOpen returns offers that are neither closed nor expired.
func (s *OfferService) ListOpen(ctx context.Context, params repository.ListOffersParams) ([]models.TradeOffer, error) {
	now := s.now()
	params.OpenAt = &now
	return s.Repo.ListOffers(ctx, params)
}

func (s *OfferService) Close(ctx context.Context, by workflow.User, id string) (*models.TradeOffer, error) {
	item, err := s.Repo.GetOffer(ctx, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, fmt.Errorf("offer %s: %w", id, ErrNotFound)
	}
	if item.CreatedBy != by.ID {
		return nil, fmt.Errorf("only the creator can close an offer: %w", ErrForbidden)
	}
	if item.ClosedAt != nil {
		return item, nil
	}
	now := s.now()
	if err := s.Repo.CloseOffer(ctx, item.ID, now); err != nil {
		return nil, err
	}
	item.ClosedAt = &now
	return item, nil
}

package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"tradeflow/internal/models"
	"tradeflow/internal/notification"
	"tradeflow/internal/repository"
	"tradeflow/internal/workflow"
)

// ExpiryWatcher notifies both parties once per document whose approval window
// has passed. Document status itself is never written: expiry stays derived.
type ExpiryWatcher struct {
	Repo     repository.Repository
	Notifier *notification.Dispatcher
	Logger   *zap.Logger
	PageSize int

	Now func() time.Time
}

func (w *ExpiryWatcher) Run(ctx context.Context) {
	if w == nil || w.Repo == nil {
		return
	}
	n, err := w.Scan(ctx)
	if err != nil && w.Logger != nil {
		w.Logger.Warn("expiry watch failed", zap.Error(err))
		return
	}
	if n > 0 && w.Logger != nil {
		w.Logger.Info("expired documents notified", zap.Int("count", n))
	}
}

// Scan walks every open trade and returns the number of notifications created.
func (w *ExpiryWatcher) Scan(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	if w.Now != nil {
		now = w.Now().UTC()
	}
	size := w.PageSize
	if size <= 0 {
		size = 200
	}
	created := 0
	for offset := 0; ; offset += size {
		if err := ctx.Err(); err != nil {
			return created, err
		}
		recs, err := w.Repo.ListTrades(ctx, repository.ListTradesParams{OpenOnly: true, Limit: size, Offset: offset})
		if err != nil {
			return created, err
		}
		for i := range recs {
			c, err := w.scanTrade(ctx, &recs[i], now)
			created += c
			if err != nil {
				return created, err
			}
		}
		if len(recs) < size {
			return created, nil
		}
	}
}

func (w *ExpiryWatcher) scanTrade(ctx context.Context, rec *models.TradeRecord, now time.Time) (int, error) {
	t, err := rec.Trade()
	if err != nil {
		if w.Logger != nil {
			w.Logger.Warn("skipping undecodable trade", zap.String("trade_id", rec.ID), zap.Error(err))
		}
		return 0, nil
	}
	created := 0
	for si, st := range t.Stages {
		for di, d := range st.Docs {
			if d.Status != workflow.ApprovalPending || workflow.DocumentStatus(d, now) != workflow.ApprovalExpired {
				continue
			}
			n := notification.DocExpired(t, si, di, now)
			seen, err := w.Repo.HasNotification(ctx, t.ID, models.ActionDocExpired, n.Ref)
			if err != nil {
				return created, err
			}
			if seen {
				continue
			}
			if err := w.Repo.InsertNotification(ctx, n); err != nil {
				return created, err
			}
			w.Notifier.Go(ctx, n)
			created++
		}
	}
	return created, nil
}

package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"tradeflow/internal/models"
)

type WebhookSender struct {
	HTTP *http.Client
}

type WebhookPayload struct {
	ID        string    `json:"id"`
	TradeID   string    `json:"trade_id"`
	Event     string    `json:"event"`
	Message   string    `json:"message"`
	Ref       string    `json:"ref,omitempty"`
	Receivers []string  `json:"receivers"`
	At        time.Time `json:"at"`
}

func (s WebhookSender) Send(ctx context.Context, url string, payload WebhookPayload) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	client := s.HTTP
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &httpError{StatusCode: resp.StatusCode}
	}
	return nil
}

type httpError struct {
	StatusCode int
}

func (e *httpError) Error() string {
	return "webhook http status " + http.StatusText(e.StatusCode)
}

// Dispatcher forwards stored notifications to the configured webhook. It is
// best effort: failures are logged, never returned to the mutation.
type Dispatcher struct {
	Sender  WebhookSender
	URL     string
	Timeout time.Duration
	Logger  *zap.Logger
}

func (d *Dispatcher) Enabled() bool {
	return d != nil && strings.TrimSpace(d.URL) != ""
}

// Send delivers n synchronously.
func (d *Dispatcher) Send(ctx context.Context, n *models.Notification) error {
	if !d.Enabled() || n == nil {
		return nil
	}
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return d.Sender.Send(ctx, strings.TrimSpace(d.URL), WebhookPayload{
		ID:        n.ID,
		TradeID:   n.TradeID,
		Event:     n.Action,
		Message:   n.Message,
		Ref:       n.Ref,
		Receivers: n.ReceiverList(),
		At:        n.CreatedAt,
	})
}

// Go delivers n in the background.
func (d *Dispatcher) Go(ctx context.Context, n *models.Notification) {
	if !d.Enabled() || n == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	go func() {
		if err := d.Send(ctx, n); err != nil && d.Logger != nil {
			d.Logger.Warn("notification webhook failed",
				zap.String("trade_id", n.TradeID),
				zap.String("event", n.Action),
				zap.Error(err),
			)
		}
	}()
}

package notification

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"tradeflow/internal/models"
	"tradeflow/internal/workflow"
)

// Receivers lists who is told about an operation by p: the other party, or
// both parties when a moderator acted.
func Receivers(t *workflow.Trade, p workflow.Party) []string {
	if t == nil {
		return nil
	}
	return t.Counterparty(p.ReqActor())
}

var subjects = map[workflow.Op]string{
	workflow.OpAddStage:           "stage add request",
	workflow.OpApproveStageAdd:    "stage add request",
	workflow.OpRejectStageAdd:     "stage add request",
	workflow.OpAddDocument:        "stage document",
	workflow.OpApproveDocument:    "stage document",
	workflow.OpRejectDocument:     "stage document",
	workflow.OpRequestStageClose:  "stage close request",
	workflow.OpApproveStageClose:  "stage close request",
	workflow.OpRejectStageClose:   "stage close request",
	workflow.OpRequestStageDelete: "stage delete request",
	workflow.OpApproveStageDelete: "stage delete request",
	workflow.OpRejectStageDelete:  "stage delete request",
	workflow.OpSetStageExpiry:     "stage expiry",
	workflow.OpRequestTradeClose:  "trade close request",
	workflow.OpApproveTradeClose:  "trade close request",
	workflow.OpRejectTradeClose:   "trade close request",
}

// Message renders the human readable text of an applied mutation.
func Message(mu workflow.Mutation, by string) string {
	subject := subjects[mu.Op]
	if subject == "" {
		subject = string(mu.Op)
	}
	var verb string
	switch mu.Op {
	case workflow.OpApproveStageAdd, workflow.OpApproveDocument, workflow.OpApproveStageClose,
		workflow.OpApproveStageDelete, workflow.OpApproveTradeClose:
		verb = "has been approved"
	case workflow.OpSetStageExpiry:
		verb = "has been set to " + mu.ExpiresAt.UTC().Format(time.RFC3339)
	default:
		if mu.Op.IsReject() {
			verb = "has been rejected"
		} else if mu.WithApproval {
			verb = "has been created"
		} else {
			verb = "has been submitted"
		}
	}
	msg := fmt.Sprintf("%s %s by %s", capitalize(subject), verb, by)
	if r := strings.TrimSpace(mu.Reason); r != "" {
		msg += ": " + r
	}
	return msg
}

// Build creates the stored notification for an applied mutation.
func Build(t *workflow.Trade, p workflow.Party, mu workflow.Mutation, at time.Time) *models.Notification {
	by := p.User.Name
	if by == "" {
		by = p.User.ID
	}
	return &models.Notification{
		ID:        uuid.NewString(),
		TradeID:   t.ID,
		Receivers: models.StringsJSON(Receivers(t, p)),
		Action:    string(mu.Op),
		Message:   Message(mu, by),
		Ref:       mu.Path.String(),
		CreatedBy: p.User.ID,
		CreatedAt: at,
	}
}

// DocExpired creates the one-time notice for a pending document that ran out
// of time.
func DocExpired(t *workflow.Trade, stage, doc int, at time.Time) *models.Notification {
	d := t.Stages[stage].Docs[doc]
	return &models.Notification{
		ID:        uuid.NewString(),
		TradeID:   t.ID,
		Receivers: models.StringsJSON([]string{t.Buyer.ID, t.Seller.ID}),
		Action:    models.ActionDocExpired,
		Message:   fmt.Sprintf("Document %q in stage %q expired without approval", d.Name, t.Stages[stage].Name),
		Ref:       workflow.DocPath(t.ID, stage, doc, d.Hash).String(),
		CreatedAt: at,
	}
}

// TradeCreated tells the other party about a new trade.
func TradeCreated(t *workflow.Trade, creator workflow.User, at time.Time) *models.Notification {
	by := creator.Name
	if by == "" {
		by = creator.ID
	}
	return &models.Notification{
		ID:        uuid.NewString(),
		TradeID:   t.ID,
		Receivers: models.StringsJSON(t.Counterparty(t.ActorOf(creator.ID))),
		Action:    models.ActionTradeNew,
		Message:   fmt.Sprintf("New trade %q has been created by %s", t.Name, by),
		Ref:       workflow.TradePath(t.ID).String(),
		CreatedBy: creator.ID,
		CreatedAt: at,
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

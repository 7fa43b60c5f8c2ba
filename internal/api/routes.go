package api

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"tradeflow/internal/workflow"
)

const Prefix = "/api/v1"

// Route binds one mutating operation to its HTTP endpoint. Patterns use gin
// syntax relative to Prefix.
type Route struct {
	Op      workflow.Op
	Method  string
	Pattern string
}

var Routes = []Route{
	{workflow.OpAddStage, http.MethodPost, "/trades/:id/stage-requests"},
	{workflow.OpApproveStageAdd, http.MethodPost, "/trades/:id/stage-requests/:stage/approve"},
	{workflow.OpRejectStageAdd, http.MethodPost, "/trades/:id/stage-requests/:stage/reject"},
	{workflow.OpAddDocument, http.MethodPost, "/trades/:id/stages/:stage/docs"},
	{workflow.OpApproveDocument, http.MethodPost, "/trades/:id/stages/:stage/docs/:doc/approve"},
	{workflow.OpRejectDocument, http.MethodPost, "/trades/:id/stages/:stage/docs/:doc/reject"},
	{workflow.OpRequestStageClose, http.MethodPost, "/trades/:id/stages/:stage/close"},
	{workflow.OpApproveStageClose, http.MethodPost, "/trades/:id/stages/:stage/close/approve"},
	{workflow.OpRejectStageClose, http.MethodPost, "/trades/:id/stages/:stage/close/reject"},
	{workflow.OpRequestStageDelete, http.MethodPost, "/trades/:id/stages/:stage/delete"},
	{workflow.OpApproveStageDelete, http.MethodPost, "/trades/:id/stages/:stage/delete/approve"},
	{workflow.OpRejectStageDelete, http.MethodPost, "/trades/:id/stages/:stage/delete/reject"},
	{workflow.OpSetStageExpiry, http.MethodPost, "/trades/:id/stages/:stage/expiry"},
	{workflow.OpRequestTradeClose, http.MethodPost, "/trades/:id/close"},
	{workflow.OpApproveTradeClose, http.MethodPost, "/trades/:id/close/approve"},
	{workflow.OpRejectTradeClose, http.MethodPost, "/trades/:id/close/reject"},
}

func RouteFor(op workflow.Op) (Route, bool) {
	for _, r := range Routes {
		if r.Op == op {
			return r, true
		}
	}
	return Route{}, false
}

// Path expands the route pattern for p.
func (r Route) Path(p workflow.Path) string {
	out := strings.NewReplacer(
		":id", url.PathEscape(p.TradeID),
		":stage", strconv.Itoa(p.Stage),
		":doc", strconv.Itoa(p.Doc),
	).Replace(r.Pattern)
	return Prefix + out
}

// MutationResult is the data payload answering a mutation.
type MutationResult struct {
	Receipt workflow.Receipt `json:"receipt"`
	View    workflow.View    `json:"view"`
	Version int64            `json:"version"`
}

// Envelope is the response body shape of every endpoint.
type Envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
	Meta    map[string]any  `json:"meta,omitempty"`
}

type LoginRequest struct {
	UserID    string `json:"user_id"`
	Timestamp int64  `json:"timestamp"`
	Signature string `json:"signature"`
}

type LoginResponse struct {
	Token     string        `json:"token"`
	ExpiresAt time.Time     `json:"expires_at"`
	User      workflow.User `json:"user"`
}

// LoginMessage is the challenge a user signs to obtain a session token.
func LoginMessage(userID string, ts int64) []byte {
	return []byte("tradeflow-login:" + userID + ":" + strconv.FormatInt(ts, 10))
}

type CreateTradeRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	BuyerID     string `json:"buyer_id"`
	SellerID    string `json:"seller_id"`
	TemplateID  string `json:"template_id,omitempty"`
	OfferID     string `json:"offer_id,omitempty"`
}

type TradeDetail struct {
	Trade   *workflow.Trade `json:"trade"`
	View    workflow.View   `json:"view"`
	Version int64           `json:"version"`
}

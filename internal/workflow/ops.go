package workflow

import (
	"strconv"
	"time"
)

type Op string

const (
	OpAddStage           Op = "add_stage"
	OpApproveStageAdd    Op = "approve_stage_add"
	OpRejectStageAdd     Op = "reject_stage_add"
	OpAddDocument        Op = "add_document"
	OpApproveDocument    Op = "approve_document"
	OpRejectDocument     Op = "reject_document"
	OpRequestStageClose  Op = "request_stage_close"
	OpApproveStageClose  Op = "approve_stage_close"
	OpRejectStageClose   Op = "reject_stage_close"
	OpRequestStageDelete Op = "request_stage_delete"
	OpApproveStageDelete Op = "approve_stage_delete"
	OpRejectStageDelete  Op = "reject_stage_delete"
	OpSetStageExpiry     Op = "set_stage_expiry"
	OpRequestTradeClose  Op = "request_trade_close"
	OpApproveTradeClose  Op = "approve_trade_close"
	OpRejectTradeClose   Op = "reject_trade_close"
)

// Ops lists every mutating operation.
var Ops = []Op{
	OpAddStage, OpApproveStageAdd, OpRejectStageAdd,
	OpAddDocument, OpApproveDocument, OpRejectDocument,
	OpRequestStageClose, OpApproveStageClose, OpRejectStageClose,
	OpRequestStageDelete, OpApproveStageDelete, OpRejectStageDelete,
	OpSetStageExpiry,
	OpRequestTradeClose, OpApproveTradeClose, OpRejectTradeClose,
}

// IsReject reports whether the operation requires a rejection reason.
func (o Op) IsReject() bool {
	switch o {
	case OpRejectStageAdd, OpRejectDocument, OpRejectStageClose, OpRejectStageDelete, OpRejectTradeClose:
		return true
	}
	return false
}

// Path addresses the target of an operation. For stage-add approvals Stage is
// the index in the stage add request log. Unused indexes are -1.
type Path struct {
	TradeID string `json:"trade_id"`
	Stage   int    `json:"stage"`
	Doc     int    `json:"doc"`
	Hash    string `json:"hash,omitempty"`
}

func TradePath(tradeID string) Path {
	return Path{TradeID: tradeID, Stage: -1, Doc: -1}
}

func StagePath(tradeID string, stage int) Path {
	return Path{TradeID: tradeID, Stage: stage, Doc: -1}
}

func DocPath(tradeID string, stage, doc int, hash string) Path {
	return Path{TradeID: tradeID, Stage: stage, Doc: doc, Hash: hash}
}

func (p Path) String() string {
	s := "trade:" + p.TradeID
	if p.Stage >= 0 {
		s += "/stage:" + strconv.Itoa(p.Stage)
	}
	if p.Doc >= 0 {
		s += "/doc:" + strconv.Itoa(p.Doc)
	}
	return s
}

type DocumentInput struct {
	ID        string    `json:"id,omitempty"`
	Name      string    `json:"name"`
	Hash      string    `json:"hash"`
	Note      string    `json:"note,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// Mutation is one operation call with all of its arguments.
type Mutation struct {
	Op           Op             `json:"op"`
	Path         Path           `json:"path"`
	Reason       string         `json:"reason,omitempty"`
	Name         string         `json:"name,omitempty"`
	Description  string         `json:"description,omitempty"`
	Owner        Actor          `json:"owner,omitempty"`
	WithApproval bool           `json:"with_approval"`
	Document     *DocumentInput `json:"document,omitempty"`
	ExpiresAt    time.Time      `json:"expires_at,omitempty"`
	Token        string         `json:"token,omitempty"`
}

// Receipt is the confirmation returned by the persistence side. Apply stamps
// its time and tx hash onto the mutated entities.
type Receipt struct {
	At    time.Time `json:"at"`
	Tx    string    `json:"tx,omitempty"`
	DocID string    `json:"doc_id,omitempty"`
}

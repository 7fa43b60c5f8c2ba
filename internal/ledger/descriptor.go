package ledger

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"

	"tradeflow/internal/workflow"
)

// Entity names the ledger log a transaction is recorded under.
type Entity string

const (
	EntityStageDoc    Entity = "stage_doc"
	EntityStageClose  Entity = "stage_closeReqs"
	EntityStageDelete Entity = "stage_delReqs"
	EntityStageAdd    Entity = "stage_add"
	EntityStageExpiry Entity = "stage_expiry"
	EntityTradeClose  Entity = "trade_closeReqs"
)

// Descriptor is what a party signs for one operation.
type Descriptor struct {
	TradeID   string            `json:"trade_id"`
	Entity    Entity            `json:"entity"`
	Idx       string            `json:"idx"`
	Operation workflow.Approval `json:"operation"`
	ExpiresAt int64             `json:"expires_at,omitempty"`
	Memo      string            `json:"memo,omitempty"`
}

func (d Descriptor) Canonical() []byte {
	return []byte(strings.Join([]string{
		"tradeflow/v1",
		d.TradeID,
		string(d.Entity),
		d.Idx,
		string(d.Operation),
		strconv.FormatInt(d.ExpiresAt, 10),
		d.Memo,
	}, "|"))
}

func (d Descriptor) Hash() []byte {
	return crypto.Keccak256(d.Canonical())
}

func stageIdx(stage int) string { return strconv.Itoa(stage) }

func docIdx(stage, doc int) string { return strconv.Itoa(stage) + ":" + strconv.Itoa(doc) }

func requestOp(withApproval bool) workflow.Approval {
	if withApproval {
		return workflow.ApprovalPending
	}
	return workflow.ApprovalApproved
}

func resolveOp(op workflow.Op) workflow.Approval {
	if op.IsReject() {
		return workflow.ApprovalRejected
	}
	return workflow.ApprovalApproved
}

// Describe derives the descriptor of mu against the state of t. Both sides of
// the round trip derive it independently, so any divergence in state shows up
// as a descriptor mismatch at verification.
func Describe(t *workflow.Trade, mu workflow.Mutation) (Descriptor, error) {
	if t == nil {
		return Descriptor{}, workflow.ErrInvalidTrade
	}
	d := Descriptor{TradeID: t.ID}
	p := mu.Path
	switch mu.Op {
	case workflow.OpAddStage:
		d.Entity = EntityStageAdd
		d.Idx = stageIdx(len(t.StageAddReqs))
		d.Operation = requestOp(mu.WithApproval)
	case workflow.OpApproveStageAdd, workflow.OpRejectStageAdd:
		d.Entity = EntityStageAdd
		d.Idx = stageIdx(p.Stage)
		d.Operation = resolveOp(mu.Op)
	case workflow.OpAddDocument:
		if p.Stage < 0 || p.Stage >= len(t.Stages) {
			return Descriptor{}, workflow.ErrStageNotFound
		}
		if mu.Document == nil {
			return Descriptor{}, workflow.ErrInvalidDocument
		}
		d.Entity = EntityStageDoc
		d.Idx = docIdx(p.Stage, len(t.Stages[p.Stage].Docs))
		d.Operation = workflow.ApprovalSubmitted
		if mu.WithApproval {
			d.Operation = workflow.ApprovalPending
		}
		if !mu.Document.ExpiresAt.IsZero() {
			d.ExpiresAt = mu.Document.ExpiresAt.Unix()
		}
		d.Memo = mu.Document.Hash
	case workflow.OpApproveDocument, workflow.OpRejectDocument:
		d.Entity = EntityStageDoc
		d.Idx = docIdx(p.Stage, p.Doc)
		d.Operation = resolveOp(mu.Op)
		d.Memo = p.Hash
	case workflow.OpRequestStageClose:
		d.Entity = EntityStageClose
		d.Idx = stageIdx(p.Stage)
		d.Operation = requestOp(mu.WithApproval)
	case workflow.OpApproveStageClose, workflow.OpRejectStageClose:
		d.Entity = EntityStageClose
		d.Idx = stageIdx(p.Stage)
		d.Operation = resolveOp(mu.Op)
	case workflow.OpRequestStageDelete:
		d.Entity = EntityStageDelete
		d.Idx = stageIdx(p.Stage)
		d.Operation = workflow.ApprovalPending
	case workflow.OpApproveStageDelete, workflow.OpRejectStageDelete:
		d.Entity = EntityStageDelete
		d.Idx = stageIdx(p.Stage)
		d.Operation = resolveOp(mu.Op)
	case workflow.OpSetStageExpiry:
		d.Entity = EntityStageExpiry
		d.Idx = stageIdx(p.Stage)
		d.Operation = workflow.ApprovalSubmitted
		d.ExpiresAt = mu.ExpiresAt.Unix()
	case workflow.OpRequestTradeClose:
		d.Entity = EntityTradeClose
		d.Operation = requestOp(mu.WithApproval)
	case workflow.OpApproveTradeClose, workflow.OpRejectTradeClose:
		d.Entity = EntityTradeClose
		d.Operation = resolveOp(mu.Op)
	default:
		return Descriptor{}, fmt.Errorf("describe %q: %w", mu.Op, workflow.ErrUnknownOperation)
	}
	return d, nil
}

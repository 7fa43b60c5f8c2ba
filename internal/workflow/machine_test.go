package workflow

import (
	"errors"
	"testing"
	"time"
)

var (
	buyer  = User{ID: "u-buyer", Name: "Buyer"}
	seller = User{ID: "u-seller", Name: "Seller"}
	other  = User{ID: "u-other", Name: "Outsider"}
)

func newTestTrade(t *testing.T, stages ...StageTemplate) *Trade {
	t.Helper()
	tr, err := NewTrade(NewTradeInput{
		ID:        "trade-1",
		Name:      "Wheat shipment",
		Buyer:     buyer,
		Seller:    seller,
		CreatedBy: buyer.ID,
		Stages:    stages,
	}, t0)
	if err != nil {
		t.Fatalf("new trade: %v", err)
	}
	return tr
}

func machineFor(tr *Trade, u User) *Machine {
	m := NewMachine(tr, Party{User: u, Actor: tr.ActorOf(u.ID)})
	m.Now = func() time.Time { return t0 }
	return m
}

// as rebinds the current state of m to another party, the way a counterparty
// would see it after reloading.
func as(m *Machine, u User) *Machine {
	return machineFor(m.Trade(), u)
}

func mustApply(t *testing.T, m *Machine, mu Mutation) {
	t.Helper()
	if err := m.Apply(mu, Receipt{At: t0, Tx: "tx"}); err != nil {
		t.Fatalf("apply %s: %v", mu.Op, err)
	}
}

func expectErr(t *testing.T, err, want error) {
	t.Helper()
	if !errors.Is(err, want) {
		t.Fatalf("err=%v want=%v", err, want)
	}
	if !IsPrecondition(err) {
		t.Fatalf("err=%v want precondition kind", err)
	}
	var oe *OpError
	if !errors.As(err, &oe) {
		t.Fatalf("err=%T want *OpError", err)
	}
}

func TestNewTrade_Validation(t *testing.T) {
	_, err := NewTrade(NewTradeInput{Name: "abc", Buyer: buyer, Seller: seller, CreatedBy: buyer.ID}, t0)
	if !errors.Is(err, ErrTradeName) {
		t.Fatalf("err=%v want=%v", err, ErrTradeName)
	}
	_, err = NewTrade(NewTradeInput{Name: "Coffee deal", Buyer: buyer, Seller: buyer, CreatedBy: buyer.ID}, t0)
	if !errors.Is(err, ErrSameParties) {
		t.Fatalf("err=%v want=%v", err, ErrSameParties)
	}
	_, err = NewTrade(NewTradeInput{Name: "Coffee deal", Buyer: buyer, Seller: seller, CreatedBy: other.ID}, t0)
	if !errors.Is(err, ErrCreatorParty) {
		t.Fatalf("err=%v want=%v", err, ErrCreatorParty)
	}
	tr, err := NewTrade(NewTradeInput{Name: "Coffee deal", Buyer: buyer, Seller: seller, CreatedBy: seller.ID}, t0)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(tr.Stages) != 1 || tr.Stages[0].Name != DefaultFirstStage || tr.Stages[0].Owner != ActorNone {
		t.Fatalf("stages=%+v", tr.Stages)
	}
	if tr.Stages[0].AddReqIdx != -1 {
		t.Fatalf("addReqIdx=%d want=-1", tr.Stages[0].AddReqIdx)
	}
}

func TestUnauthorizedPartyRejected(t *testing.T) {
	m := machineFor(newTestTrade(t), other)
	err := m.Check(AddStage("trade-1", "Stage X", "", ActorBuyer, "needed stage", false))
	expectErr(t, err, ErrUnauthorized)
}

func TestAddStage_NoApproval(t *testing.T) {
	m := machineFor(newTestTrade(t), buyer)
	before := len(m.Trade().Stages)
	mustApply(t, m, AddStage("trade-1", "Stage X", "", ActorBuyer, "needed stage", false))
	tr := m.Trade()
	if len(tr.Stages) != before+1 {
		t.Fatalf("stages=%d want=%d", len(tr.Stages), before+1)
	}
	if len(tr.StageAddReqs) != 1 || tr.StageAddReqs[0].Status != ApprovalApproved {
		t.Fatalf("add reqs=%+v", tr.StageAddReqs)
	}
	last := tr.Stages[len(tr.Stages)-1]
	if last.Name != "Stage X" || last.Owner != ActorBuyer || last.AddReqIdx != 0 {
		t.Fatalf("stage=%+v", last)
	}
}

func TestAddStage_ApprovalFlow(t *testing.T) {
	m := machineFor(newTestTrade(t), buyer)
	mustApply(t, m, AddStage("trade-1", "Inspection", "", ActorSeller, "quality check", true))
	if n := len(m.Trade().Stages); n != 1 {
		t.Fatalf("stages=%d want=1", n)
	}
	expectErr(t, m.Check(ApproveStageAdd("trade-1", 0)), ErrSelfApproval)
	expectErr(t, m.Check(ApproveStageAdd("trade-1", 3)), ErrAddReqNotFound)

	sm := as(m, seller)
	expectErr(t, sm.Check(RejectStageAdd("trade-1", 0, "")), ErrEmptyReason)
	mustApply(t, sm, ApproveStageAdd("trade-1", 0))
	tr := sm.Trade()
	if len(tr.Stages) != 2 || tr.Stages[1].Name != "Inspection" {
		t.Fatalf("stages=%+v", tr.Stages)
	}
	if tr.StageAddReqs[0].ApprovedBy != seller.ID {
		t.Fatalf("approvedBy=%s want=%s", tr.StageAddReqs[0].ApprovedBy, seller.ID)
	}
	expectErr(t, sm.Check(ApproveStageAdd("trade-1", 0)), ErrNotPending)
}

func TestAddStage_RejectedKeepsStages(t *testing.T) {
	m := machineFor(newTestTrade(t), seller)
	mustApply(t, m, AddStage("trade-1", "Inspection", "", ActorSeller, "quality check", true))
	bm := as(m, buyer)
	mustApply(t, bm, RejectStageAdd("trade-1", 0, "not part of the deal"))
	tr := bm.Trade()
	if len(tr.Stages) != 1 || tr.StageAddReqs[0].Status != ApprovalRejected {
		t.Fatalf("trade=%+v", tr)
	}
	if tr.StageAddReqs[0].RejectReason != "not part of the deal" {
		t.Fatalf("reason=%q", tr.StageAddReqs[0].RejectReason)
	}
}

func TestNoSelfApproval_RegardlessOfRole(t *testing.T) {
	tr := newTestTrade(t)
	tr.Stages[0].Docs = []Document{{Name: "contract", Hash: "h", CreatedBy: buyer.ID, Status: ApprovalPending}}
	tr.Stages[0].CloseReqs = []ApproveReq{{Status: ApprovalPending, ReqBy: buyer.ID, ReqActor: ActorBuyer}}

	// moderator mode does not bypass the identity check
	m := NewMachine(tr, Party{User: buyer, Actor: ActorBuyer, Moderator: true})
	m.Now = func() time.Time { return t0 }
	expectErr(t, m.Check(ApproveDocument("trade-1", 0, 0, "h")), ErrSelfApproval)
	expectErr(t, m.Check(RejectDocument("trade-1", 0, 0, "h", "long enough reason")), ErrSelfApproval)
	expectErr(t, m.Check(ApproveStageClose("trade-1", 0)), ErrSelfApproval)
	expectErr(t, m.Check(RejectStageClose("trade-1", 0, "long enough reason")), ErrSelfApproval)

	sm := machineFor(tr, seller)
	if err := sm.Check(ApproveStageClose("trade-1", 0)); err != nil {
		t.Fatalf("counterparty approve: %v", err)
	}
}

func TestDocumentLifecycle(t *testing.T) {
	m := machineFor(newTestTrade(t), buyer)
	mustApply(t, m, AddDocument("trade-1", 0, DocumentInput{ID: "d1", Name: "contract.pdf", Hash: "abc"}, true))
	st, err := m.DocumentStatus(0, 0)
	if err != nil || st != ApprovalPending {
		t.Fatalf("status=%s err=%v want=pending", st, err)
	}
	if cs, _ := m.StageCloseStatus(0); cs != ReqCan {
		t.Fatalf("close=%s want=can", cs)
	}

	sm := as(m, seller)
	if err := ValidateReason("too short"); !errors.Is(err, ErrShortReason) {
		t.Fatalf("err=%v want=%v", err, ErrShortReason)
	}
	if err := ValidateReason("not valid enough"); err != nil {
		t.Fatalf("err=%v", err)
	}
	mustApply(t, sm, RejectDocument("trade-1", 0, 0, "abc", "not valid enough"))
	doc := sm.Trade().Stages[0].Docs[0]
	if doc.Status != ApprovalRejected || doc.RejectReason != "not valid enough" || doc.ApprovedBy != seller.ID {
		t.Fatalf("doc=%+v", doc)
	}
	if cs, _ := sm.StageCloseStatus(0); cs != ReqNo {
		t.Fatalf("close=%s want=no", cs)
	}
	expectErr(t, sm.Check(ApproveDocument("trade-1", 0, 0, "abc")), ErrNotPending)
}

func TestAddDocument_OwnershipAndModerator(t *testing.T) {
	tr := newTestTrade(t, StageTemplate{Name: "contract"}, StageTemplate{Name: "shipping", Owner: ActorSeller})
	m := machineFor(tr, buyer)
	expectErr(t, m.Check(AddDocument("trade-1", 1, DocumentInput{Name: "bl", Hash: "h"}, true)), ErrNotOwner)
	if err := m.Check(AddDocument("trade-1", 0, DocumentInput{Name: "c", Hash: "h"}, true)); err != nil {
		t.Fatalf("owner none: %v", err)
	}
	mod := NewMachine(tr, Party{User: other, Actor: ActorNone, Moderator: true})
	if err := mod.Check(AddDocument("trade-1", 1, DocumentInput{Name: "bl", Hash: "h"}, true)); err != nil {
		t.Fatalf("moderator: %v", err)
	}
	expectErr(t, m.Check(AddDocument("trade-1", 0, DocumentInput{Name: "c"}, true)), ErrInvalidDocument)
	expectErr(t, m.Check(AddDocument("trade-1", 5, DocumentInput{Name: "c", Hash: "h"}, true)), ErrStageNotFound)
}

func TestAddDocument_SubmittedAndExpiryInheritance(t *testing.T) {
	tr := newTestTrade(t)
	tr.Stages[0].ExpiresAt = t0.Add(time.Hour)
	m := machineFor(tr, buyer)
	mustApply(t, m, AddDocument("trade-1", 0, DocumentInput{Name: "a", Hash: "1"}, false))
	mustApply(t, m, AddDocument("trade-1", 0, DocumentInput{Name: "b", Hash: "2"}, true))
	if err := m.Apply(AddDocument("trade-1", 0, DocumentInput{Name: "c", Hash: "3"}, true), Receipt{At: t0, DocID: "srv-id"}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	docs := m.Trade().Stages[0].Docs
	if docs[0].Status != ApprovalSubmitted || docs[0].Index != 0 {
		t.Fatalf("doc0=%+v", docs[0])
	}
	if docs[1].Status != ApprovalPending || !docs[1].ExpiresAt.Equal(t0.Add(time.Hour)) || docs[1].Index != 1 {
		t.Fatalf("doc1=%+v", docs[1])
	}
	if docs[2].ID != "srv-id" {
		t.Fatalf("doc2 id=%s want=srv-id", docs[2].ID)
	}
	expectErr(t, m.Check(AddDocument("trade-1", 0, DocumentInput{Name: "d", Hash: "4", ExpiresAt: t0.Add(-time.Second)}, true)), ErrExpiryInPast)
}

func TestExpiredDocumentCannotBeApproved(t *testing.T) {
	tr := newTestTrade(t)
	tr.Stages[0].Docs = []Document{{Name: "c", Hash: "h", CreatedBy: buyer.ID, Status: ApprovalPending, ExpiresAt: t0.Add(-time.Minute)}}
	m := machineFor(tr, seller)
	expectErr(t, m.Check(ApproveDocument("trade-1", 0, 0, "h")), ErrNotPending)
	if st, _ := m.DocumentStatus(0, 0); st != ApprovalExpired {
		t.Fatalf("status=%s want=expired", st)
	}
}

func TestStageDelete(t *testing.T) {
	tr := newTestTrade(t, StageTemplate{Name: "contract"}, StageTemplate{Name: "payment", Owner: ActorBuyer})
	m := machineFor(tr, buyer)
	expectErr(t, m.Check(RequestStageDelete("trade-1", 0, "remove it please")), ErrFirstStage)

	mustApply(t, m, RequestStageDelete("trade-1", 1, "not needed anymore"))
	if st, _ := m.StageDeleteStatus(1); st != ReqPending {
		t.Fatalf("delete=%s want=pending", st)
	}
	expectErr(t, m.Check(RequestStageDelete("trade-1", 1, "not needed anymore")), ErrRequestExists)

	sm := as(m, seller)
	mustApply(t, sm, RejectStageDelete("trade-1", 1, "we still need it"))
	if st, _ := sm.StageDeleteStatus(1); st != ReqCan {
		t.Fatalf("delete=%s want=can", st)
	}
	mustApply(t, sm, RequestStageDelete("trade-1", 1, "ok remove it now"))
	bm := as(sm, buyer)
	mustApply(t, bm, ApproveStageDelete("trade-1", 1))
	if st, _ := bm.StageDeleteStatus(1); st != ReqApproved {
		t.Fatalf("delete=%s want=approved", st)
	}
	if n := len(bm.Trade().Stages); n != 2 {
		t.Fatalf("stages=%d want=2, deleted stages are kept", n)
	}
	expectErr(t, bm.Check(AddDocument("trade-1", 1, DocumentInput{Name: "x", Hash: "y"}, true)), ErrStageFinished)
}

func TestStageDelete_RequiresEmptyDocs(t *testing.T) {
	tr := newTestTrade(t, StageTemplate{Name: "contract"}, StageTemplate{Name: "payment"})
	m := machineFor(tr, buyer)
	mustApply(t, m, AddDocument("trade-1", 1, DocumentInput{Name: "x", Hash: "y"}, true))
	if st, _ := m.StageDeleteStatus(1); st != ReqNo {
		t.Fatalf("delete=%s want=no", st)
	}
	expectErr(t, m.Check(RequestStageDelete("trade-1", 1, "remove it please")), ErrStageHasDocs)
}

func TestDocumentAddedDuringPendingDelete(t *testing.T) {
	tr := newTestTrade(t, StageTemplate{Name: "contract"}, StageTemplate{Name: "payment"})
	m := machineFor(tr, buyer)
	mustApply(t, m, RequestStageDelete("trade-1", 1, "not needed anymore"))
	sm := as(m, seller)
	mustApply(t, sm, AddDocument("trade-1", 1, DocumentInput{Name: "x", Hash: "y"}, true))
	if st, _ := sm.StageDeleteStatus(1); st != ReqNo {
		t.Fatalf("delete=%s want=no", st)
	}
	bm := as(sm, buyer)
	expectErr(t, bm.Check(ApproveStageDelete("trade-1", 1)), ErrNotPending)
}

func TestStageCloseCycle(t *testing.T) {
	m := machineFor(newTestTrade(t), buyer)
	mustApply(t, m, AddDocument("trade-1", 0, DocumentInput{Name: "c", Hash: "h"}, false))
	mustApply(t, m, RequestStageClose("trade-1", 0, "all done here", true))
	if st, _ := m.StageCloseStatus(0); st != ReqPending {
		t.Fatalf("close=%s want=pending", st)
	}
	expectErr(t, m.Check(RequestStageClose("trade-1", 0, "again", true)), ErrRequestExists)

	sm := as(m, seller)
	mustApply(t, sm, RejectStageClose("trade-1", 0, "missing signature page"))
	if st, _ := sm.StageCloseStatus(0); st != ReqCan {
		t.Fatalf("close=%s want=can", st)
	}

	bm := as(sm, buyer)
	mustApply(t, bm, RequestStageClose("trade-1", 0, "signature added", true))
	sm = as(bm, seller)
	mustApply(t, sm, ApproveStageClose("trade-1", 0))
	if st, _ := sm.StageCloseStatus(0); st != ReqApproved {
		t.Fatalf("close=%s want=approved", st)
	}
	expectErr(t, sm.Check(RequestStageClose("trade-1", 0, "again", true)), ErrRequestExists)
	expectErr(t, sm.Check(ApproveStageClose("trade-1", 0)), ErrNotPending)
	if got := len(sm.Trade().Stages[0].CloseReqs); got != 2 {
		t.Fatalf("close log=%d want=2", got)
	}
	if idx := sm.CurrentStageIndex(); idx != -1 {
		t.Fatalf("current=%d want=-1", idx)
	}
}

func TestSetStageExpiry(t *testing.T) {
	m := machineFor(newTestTrade(t), buyer)
	expectErr(t, m.Check(SetStageExpiry("trade-1", 0, t0.Add(-time.Hour))), ErrExpiryInPast)
	mustApply(t, m, SetStageExpiry("trade-1", 0, t0.Add(24*time.Hour)))
	if got := m.Trade().Stages[0].ExpiresAt; !got.Equal(t0.Add(24 * time.Hour)) {
		t.Fatalf("expiresAt=%v", got)
	}
	mustApply(t, m, AddDocument("trade-1", 0, DocumentInput{Name: "c", Hash: "h"}, false))
	mustApply(t, m, RequestStageClose("trade-1", 0, "", false))
	expectErr(t, m.Check(SetStageExpiry("trade-1", 0, t0.Add(48*time.Hour))), ErrStageFinished)
}

func TestTradeClose(t *testing.T) {
	tr := newTestTrade(t, StageTemplate{Name: "contract"}, StageTemplate{Name: "payment"})
	m := machineFor(tr, buyer)
	mustApply(t, m, AddDocument("trade-1", 0, DocumentInput{Name: "c", Hash: "h"}, false))
	mustApply(t, m, RequestStageClose("trade-1", 0, "", false))
	mustApply(t, m, AddDocument("trade-1", 1, DocumentInput{Name: "p", Hash: "h2"}, true))
	if st := m.TradeCloseStatus(); st != ReqNo {
		t.Fatalf("trade close=%s want=no", st)
	}
	expectErr(t, m.Check(RequestTradeClose("trade-1", "we are done", true)), ErrTradeNotFinished)

	sm := as(m, seller)
	mustApply(t, sm, ApproveDocument("trade-1", 1, 0, "h2"))
	mustApply(t, sm, RequestStageClose("trade-1", 1, "", false))
	if st := sm.TradeCloseStatus(); st != ReqCan {
		t.Fatalf("trade close=%s want=can", st)
	}
	mustApply(t, sm, RequestTradeClose("trade-1", "we are done", true))
	expectErr(t, sm.Check(ApproveTradeClose("trade-1")), ErrSelfApproval)
	expectErr(t, sm.Check(RequestTradeClose("trade-1", "we are done", true)), ErrRequestExists)
	expectErr(t, sm.Check(AddStage("trade-1", "late", "", ActorNone, "late stage", false)), ErrTradeClosing)

	bm := as(sm, buyer)
	mustApply(t, bm, RejectTradeClose("trade-1", "wait for the payment"))
	if st := bm.TradeCloseStatus(); st != ReqCan {
		t.Fatalf("trade close=%s want=can", st)
	}
	mustApply(t, bm, RequestTradeClose("trade-1", "payment received", true))
	sm = as(bm, seller)
	mustApply(t, sm, ApproveTradeClose("trade-1"))
	if st := sm.TradeCloseStatus(); st != ReqApproved {
		t.Fatalf("trade close=%s want=approved", st)
	}
	expectErr(t, sm.Check(SetStageExpiry("trade-1", 1, t0.Add(time.Hour))), ErrTradeClosed)
}

func TestApplyRefreshesAndNotifies(t *testing.T) {
	m := machineFor(newTestTrade(t), buyer)
	var changes []Change
	m.OnChange = func(c Change) { changes = append(changes, c) }
	mustApply(t, m, AddDocument("trade-1", 0, DocumentInput{Name: "c", Hash: "h"}, false))
	tr := m.Trade()
	if tr.Stages[0].CloseStatus != ReqCan || tr.Stages[0].DeleteStatus != ReqNo {
		t.Fatalf("derived=%s/%s", tr.Stages[0].CloseStatus, tr.Stages[0].DeleteStatus)
	}
	if len(changes) != 1 || changes[0].Op != OpAddDocument {
		t.Fatalf("changes=%+v", changes)
	}

	// a failed apply leaves state and listeners untouched
	if err := m.Apply(ApproveDocument("trade-1", 0, 0, "h"), Receipt{At: t0}); err == nil {
		t.Fatalf("expected error")
	}
	if len(changes) != 1 {
		t.Fatalf("changes=%d want=1", len(changes))
	}
}

func TestMachineCopiesInput(t *testing.T) {
	tr := newTestTrade(t)
	m := machineFor(tr, buyer)
	mustApply(t, m, AddStage("trade-1", "Stage X", "", ActorBuyer, "needed stage", false))
	if len(tr.Stages) != 1 {
		t.Fatalf("input trade mutated: stages=%d", len(tr.Stages))
	}
}

func TestApply_JudgesExpiryAtConfirmedTime(t *testing.T) {
	tr := newTestTrade(t)
	tr.Stages[0].Docs = []Document{{Name: "c", Hash: "h", CreatedBy: buyer.ID, Status: ApprovalPending, ExpiresAt: t0.Add(time.Second)}}
	m := machineFor(tr, seller)
	mu := ApproveDocument("trade-1", 0, 0, "h")
	if err := m.Check(mu); err != nil {
		t.Fatalf("check: %v", err)
	}
	m.Now = func() time.Time { return t0.Add(2 * time.Second) }
	if err := m.Apply(mu, Receipt{At: t0.Add(500 * time.Millisecond), Tx: "tx"}); err != nil {
		t.Fatalf("apply with confirmed receipt: %v", err)
	}
	if st, _ := m.DocumentStatus(0, 0); st != ApprovalApproved {
		t.Fatalf("status=%s want=approved", st)
	}

	// without a confirmed time the local clock decides
	tr = newTestTrade(t)
	tr.Stages[0].Docs = []Document{{Name: "c", Hash: "h", CreatedBy: buyer.ID, Status: ApprovalPending, ExpiresAt: t0.Add(time.Second)}}
	m = machineFor(tr, seller)
	m.Now = func() time.Time { return t0.Add(2 * time.Second) }
	expectErr(t, m.Apply(mu, Receipt{Tx: "tx"}), ErrNotPending)
}

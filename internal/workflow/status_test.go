package workflow

import (
	"testing"
	"time"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestDocumentStatus_LazyExpiry(t *testing.T) {
	doc := Document{Status: ApprovalPending, ExpiresAt: t0}
	if got := DocumentStatus(doc, t0.Add(time.Minute)); got != ApprovalExpired {
		t.Fatalf("status=%s want=expired", got)
	}
	// clock moves back: nothing was stored, so pending again
	if got := DocumentStatus(doc, t0.Add(-time.Minute)); got != ApprovalPending {
		t.Fatalf("status=%s want=pending", got)
	}
	if doc.Status != ApprovalPending {
		t.Fatalf("stored status=%s want=pending", doc.Status)
	}
}

func TestDocumentStatus_NoExpiryOrTerminal(t *testing.T) {
	if got := DocumentStatus(Document{Status: ApprovalPending}, t0); got != ApprovalPending {
		t.Fatalf("status=%s want=pending", got)
	}
	doc := Document{Status: ApprovalApproved, ExpiresAt: t0}
	if got := DocumentStatus(doc, t0.Add(time.Hour)); got != ApprovalApproved {
		t.Fatalf("status=%s want=approved", got)
	}
}

func TestStageDeleteStatus(t *testing.T) {
	s := NewStage("x", "", ActorNone, -1)
	if got := StageDeleteStatus(s); got != ReqCan {
		t.Fatalf("empty=%s want=can", got)
	}
	s.DelReqs = append(s.DelReqs, ApproveReq{Status: ApprovalPending})
	if got := StageDeleteStatus(s); got != ReqPending {
		t.Fatalf("pending=%s want=pending", got)
	}
	s.DelReqs[0].Status = ApprovalRejected
	if got := StageDeleteStatus(s); got != ReqCan {
		t.Fatalf("rejected=%s want=can", got)
	}
	s.DelReqs = append(s.DelReqs, ApproveReq{Status: ApprovalApproved})
	if got := StageDeleteStatus(s); got != ReqApproved {
		t.Fatalf("approved=%s want=approved", got)
	}
	s.Docs = append(s.Docs, Document{Status: ApprovalRejected})
	if got := StageDeleteStatus(s); got != ReqNo {
		t.Fatalf("with docs=%s want=no", got)
	}
}

func TestStageCloseStatus(t *testing.T) {
	s := NewStage("x", "", ActorNone, -1)
	if got := StageCloseStatus(s); got != ReqNo {
		t.Fatalf("no docs=%s want=no", got)
	}
	s.Docs = []Document{{Status: ApprovalRejected}}
	if got := StageCloseStatus(s); got != ReqNo {
		t.Fatalf("only rejected=%s want=no", got)
	}
	s.Docs = append(s.Docs, Document{Status: ApprovalPending})
	if got := StageCloseStatus(s); got != ReqCan {
		t.Fatalf("pending doc=%s want=can", got)
	}
	s.CloseReqs = []ApproveReq{{Status: ApprovalPending}}
	if got := StageCloseStatus(s); got != ReqPending {
		t.Fatalf("close pending=%s want=pending", got)
	}
	s.CloseReqs[0].Status = ApprovalRejected
	if got := StageCloseStatus(s); got != ReqCan {
		t.Fatalf("close rejected=%s want=can", got)
	}
}

func TestTradeCloseStatus_RequiresFinishedStages(t *testing.T) {
	closed := NewStage("a", "", ActorNone, -1)
	closed.Docs = []Document{{Status: ApprovalSubmitted}}
	closed.CloseReqs = []ApproveReq{{Status: ApprovalApproved}}
	open := NewStage("b", "", ActorBuyer, 0)
	open.Docs = []Document{{Status: ApprovalPending}}

	tr := &Trade{Stages: []Stage{closed, open}}
	if got := TradeCloseStatus(tr); got != ReqNo {
		t.Fatalf("status=%s want=no", got)
	}
	if got := CurrentStageIndex(tr); got != 1 {
		t.Fatalf("current=%d want=1", got)
	}

	deleted := NewStage("b", "", ActorBuyer, 0)
	deleted.DelReqs = []ApproveReq{{Status: ApprovalApproved}}
	tr.Stages[1] = deleted
	if got := TradeCloseStatus(tr); got != ReqCan {
		t.Fatalf("status=%s want=can", got)
	}
	if got := CurrentStageIndex(tr); got != -1 {
		t.Fatalf("current=%d want=-1", got)
	}
}

func TestTradeCloseStatus_LogOverridesAggregate(t *testing.T) {
	tr := &Trade{Stages: []Stage{NewStage("a", "", ActorNone, -1)}}
	tr.CloseReqs = []ApproveReq{{Status: ApprovalPending}}
	if got := TradeCloseStatus(tr); got != ReqPending {
		t.Fatalf("status=%s want=pending", got)
	}
	tr.CloseReqs[0].Status = ApprovalRejected
	if got := TradeCloseStatus(tr); got != ReqNo {
		t.Fatalf("status=%s want=no", got)
	}
}

func TestHasPendingNotification(t *testing.T) {
	s := NewStage("a", "", ActorNone, -1)
	if HasPendingNotification(s, t0) {
		t.Fatalf("empty stage should not notify")
	}
	s.Docs = []Document{{Status: ApprovalPending, ExpiresAt: t0}}
	if !HasPendingNotification(s, t0.Add(-time.Second)) {
		t.Fatalf("pending doc should notify")
	}
	if HasPendingNotification(s, t0.Add(time.Second)) {
		t.Fatalf("expired doc should not notify")
	}
	s.Docs = nil
	s.DelReqs = []ApproveReq{{Status: ApprovalPending}}
	if !HasPendingNotification(s, t0) {
		t.Fatalf("pending delete should notify")
	}
}

func TestDerive(t *testing.T) {
	tr := &Trade{ID: "t1", Stages: []Stage{NewStage("a", "", ActorNone, -1)}}
	tr.Stages[0].Docs = []Document{{Status: ApprovalPending, ExpiresAt: t0}}
	v := Derive(tr, t0.Add(time.Hour))
	if v.TradeID != "t1" || len(v.Stages) != 1 {
		t.Fatalf("view=%+v", v)
	}
	if v.Stages[0].Docs[0].EffectiveStatus != ApprovalExpired {
		t.Fatalf("doc=%s want=expired", v.Stages[0].Docs[0].EffectiveStatus)
	}
	if v.Stages[0].CloseStatus != ReqCan || v.CloseStatus != ReqNo || v.CurrentStageIdx != 0 {
		t.Fatalf("view=%+v", v)
	}
}

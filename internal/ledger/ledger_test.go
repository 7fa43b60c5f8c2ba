package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"tradeflow/internal/workflow"
)

func testTrade() *workflow.Trade {
	tr := &workflow.Trade{
		ID:     "trade-1",
		Stages: []workflow.Stage{workflow.NewStage("trade contract", "", workflow.ActorNone, -1)},
	}
	tr.Stages[0].Docs = []workflow.Document{{Name: "c", Hash: "h0"}}
	return tr
}

func newSigner(t *testing.T) *LocalSigner {
	t.Helper()
	key, _, err := GenerateKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	s, err := NewLocalSigner(key)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	return s
}

func TestDescribe_Document(t *testing.T) {
	exp := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	mu := workflow.AddDocument("trade-1", 0, workflow.DocumentInput{Name: "bl", Hash: "h1", ExpiresAt: exp}, true)
	d, err := Describe(testTrade(), mu)
	if err != nil {
		t.Fatalf("describe: %v", err)
	}
	if d.Entity != EntityStageDoc || d.Idx != "0:1" || d.Operation != workflow.ApprovalPending {
		t.Fatalf("descriptor=%+v", d)
	}
	if d.Memo != "h1" || d.ExpiresAt != exp.Unix() {
		t.Fatalf("descriptor=%+v", d)
	}

	d, err = Describe(testTrade(), workflow.RejectDocument("trade-1", 0, 0, "h0", "long enough reason"))
	if err != nil {
		t.Fatalf("describe: %v", err)
	}
	if d.Idx != "0:0" || d.Operation != workflow.ApprovalRejected || d.Memo != "h0" {
		t.Fatalf("descriptor=%+v", d)
	}
}

func TestDescribe_Requests(t *testing.T) {
	tr := testTrade()
	d, _ := Describe(tr, workflow.AddStage("trade-1", "x", "", workflow.ActorBuyer, "", false))
	if d.Entity != EntityStageAdd || d.Idx != "0" || d.Operation != workflow.ApprovalApproved {
		t.Fatalf("descriptor=%+v", d)
	}
	d, _ = Describe(tr, workflow.RequestTradeClose("trade-1", "done", true))
	if d.Entity != EntityTradeClose || d.Idx != "" || d.Operation != workflow.ApprovalPending {
		t.Fatalf("descriptor=%+v", d)
	}
	d, _ = Describe(tr, workflow.RequestStageDelete("trade-1", 0, "gone"))
	if d.Entity != EntityStageDelete || d.Idx != "0" {
		t.Fatalf("descriptor=%+v", d)
	}
	if _, err := Describe(tr, workflow.AddDocument("trade-1", 4, workflow.DocumentInput{Name: "a", Hash: "b"}, true)); !errors.Is(err, workflow.ErrStageNotFound) {
		t.Fatalf("err=%v want=%v", err, workflow.ErrStageNotFound)
	}
}

func TestSignAndVerify(t *testing.T) {
	s := newSigner(t)
	d, _ := Describe(testTrade(), workflow.ApproveStageClose("trade-1", 0))
	token, err := s.Sign(context.Background(), d)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	env, tx, err := Verify(token, d, s.Address())
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if env.Signer != s.Address() || tx == "" || tx != TxHash(token) {
		t.Fatalf("env=%+v tx=%s", env, tx)
	}

	other := newSigner(t)
	if _, _, err := Verify(token, d, other.Address()); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("err=%v want=%v", err, ErrBadSignature)
	}
	d2 := d
	d2.Idx = "1"
	if _, _, err := Verify(token, d2, s.Address()); !errors.Is(err, ErrDescriptorMismatch) {
		t.Fatalf("err=%v want=%v", err, ErrDescriptorMismatch)
	}
	if _, _, err := Verify("not-a-token", d, s.Address()); !errors.Is(err, ErrMalformedToken) {
		t.Fatalf("err=%v want=%v", err, ErrMalformedToken)
	}
}

func TestSignMessage(t *testing.T) {
	s := newSigner(t)
	msg := []byte("tradeflow-login:u1:1700000000")
	sig, err := s.SignMessage(msg)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := VerifyMessage(msg, sig, s.Address()); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if err := VerifyMessage([]byte("other"), sig, s.Address()); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("err=%v want=%v", err, ErrBadSignature)
	}
}

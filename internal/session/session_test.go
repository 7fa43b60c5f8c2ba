package session

import (
	"testing"
	"time"

	"tradeflow/internal/workflow"
)

func TestResolve(t *testing.T) {
	tr := &workflow.Trade{Buyer: workflow.User{ID: "b1"}, Seller: workflow.User{ID: "s1"}}
	if p := Resolve(workflow.User{ID: "b1"}, tr, false); p.Actor != workflow.ActorBuyer || p.Moderator {
		t.Fatalf("party=%+v want buyer", p)
	}
	if p := Resolve(workflow.User{ID: "s1"}, tr, false); p.Actor != workflow.ActorSeller {
		t.Fatalf("party=%+v want seller", p)
	}
	p := Resolve(workflow.User{ID: "x"}, tr, false)
	if p.Actor != workflow.ActorNone || p.Authorized() {
		t.Fatalf("party=%+v want unauthorized", p)
	}
}

func TestResolve_ModeratorNeedsRole(t *testing.T) {
	tr := &workflow.Trade{Buyer: workflow.User{ID: "b1"}, Seller: workflow.User{ID: "s1"}}
	if p := Resolve(workflow.User{ID: "x"}, tr, true); p.Moderator {
		t.Fatalf("moderator mode granted without role")
	}
	ctx := Context{User: workflow.User{ID: "x", Roles: []string{RoleModerator}}, Moderator: true}
	p := ctx.Party(tr)
	if !p.Moderator || !p.Authorized() || p.ReqActor() != workflow.ActorModerator {
		t.Fatalf("party=%+v want moderator", p)
	}
}

func TestJWT_SignVerify(t *testing.T) {
	j := JWT{Secret: []byte("secret"), TokenTTL: time.Hour, Issuer: "tradeflow"}
	tok, exp, err := j.Sign(Claims{UserID: "u1", Roles: []string{RoleModerator}})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if time.Until(exp) <= 0 {
		t.Fatalf("expiresAt=%v in the past", exp)
	}
	c, err := j.Verify(tok)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if c.UserID != "u1" || c.Subject != "u1" || c.Issuer != "tradeflow" || len(c.Roles) != 1 {
		t.Fatalf("claims=%+v", c)
	}
	if _, err := (JWT{Secret: []byte("other")}).Verify(tok); err == nil {
		t.Fatalf("verify with wrong secret succeeded")
	}
}

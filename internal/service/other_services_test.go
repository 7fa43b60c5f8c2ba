package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"tradeflow/internal/api"
	"tradeflow/internal/ledger"
	"tradeflow/internal/repository"
	"tradeflow/internal/repository/memory"
	"tradeflow/internal/session"
	"tradeflow/internal/workflow"
)

func repositoryParams(userID string) repository.ListNotificationsParams {
	return repository.ListNotificationsParams{UserID: userID}
}

func TestAuth_RegisterAndLogin(t *testing.T) {
	repo := memory.New()
	key, addr, _ := ledger.GenerateKey()
	signer, _ := ledger.NewLocalSigner(key)
	svc := &AuthService{
		Repo:       repo,
		JWT:        session.JWT{Secret: []byte("secret"), TokenTTL: time.Hour},
		Moderators: []string{"alice"},
		Now:        func() time.Time { return t0 },
	}
	ctx := context.Background()
	ts := t0.Unix()
	sig, err := signer.SignMessage(api.LoginMessage("alice", ts))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	u, err := svc.Register(ctx, api.RegisterRequest{UserID: "alice", Name: "Alice", Address: addr, Timestamp: ts, Signature: sig})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if roles := u.RoleList(); len(roles) != 1 || roles[0] != session.RoleModerator {
		t.Fatalf("roles=%v", roles)
	}
	if _, err := svc.Register(ctx, api.RegisterRequest{UserID: "alice", Name: "Alice", Address: addr, Timestamp: ts, Signature: sig}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("err=%v want=%v", err, ErrInvalidInput)
	}

	resp, err := svc.Login(ctx, api.LoginRequest{UserID: "alice", Timestamp: ts, Signature: sig})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	claims, err := svc.JWT.Verify(resp.Token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.UserID != "alice" || !claims.User().HasRole(session.RoleModerator) {
		t.Fatalf("claims=%+v", claims)
	}
}

func TestAuth_LoginRejections(t *testing.T) {
	repo := memory.New()
	key, addr, _ := ledger.GenerateKey()
	signer, _ := ledger.NewLocalSigner(key)
	otherKey, _, _ := ledger.GenerateKey()
	other, _ := ledger.NewLocalSigner(otherKey)
	svc := &AuthService{Repo: repo, JWT: session.JWT{Secret: []byte("s")}, Skew: time.Minute, Now: func() time.Time { return t0 }}
	ctx := context.Background()

	sig, _ := signer.SignMessage(api.LoginMessage("bob", t0.Unix()))
	if _, err := svc.Register(ctx, api.RegisterRequest{UserID: "bob", Name: "Bob", Address: addr, Timestamp: t0.Unix(), Signature: sig}); err != nil {
		t.Fatalf("register: %v", err)
	}

	old := t0.Add(-time.Hour).Unix()
	oldSig, _ := signer.SignMessage(api.LoginMessage("bob", old))
	if _, err := svc.Login(ctx, api.LoginRequest{UserID: "bob", Timestamp: old, Signature: oldSig}); !errors.Is(err, ErrBadLogin) {
		t.Fatalf("stale: err=%v want=%v", err, ErrBadLogin)
	}
	wrong, _ := other.SignMessage(api.LoginMessage("bob", t0.Unix()))
	if _, err := svc.Login(ctx, api.LoginRequest{UserID: "bob", Timestamp: t0.Unix(), Signature: wrong}); !errors.Is(err, ErrBadLogin) {
		t.Fatalf("wrong key: err=%v want=%v", err, ErrBadLogin)
	}
	if _, err := svc.Login(ctx, api.LoginRequest{UserID: "nobody", Timestamp: t0.Unix(), Signature: sig}); !errors.Is(err, ErrBadLogin) {
		t.Fatalf("unknown user: err=%v want=%v", err, ErrBadLogin)
	}
}

func TestOffer_Validation(t *testing.T) {
	repo := memory.New()
	svc := &OfferService{Repo: repo, Now: func() time.Time { return t0 }}
	ctx := context.Background()
	seller := workflow.User{ID: "s"}

	for _, req := range []api.CreateOfferRequest{
		{Commodity: "", Price: "1", Quantity: "1"},
		{Commodity: "corn", Price: "abc", Quantity: "1"},
		{Commodity: "corn", Price: "1", Quantity: "0"},
		{Commodity: "corn", Price: "-2", Quantity: "1"},
	} {
		if _, err := svc.Create(ctx, seller, req); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("req=%+v err=%v want=%v", req, err, ErrInvalidInput)
		}
	}
	past := t0.Add(-time.Minute)
	if _, err := svc.Create(ctx, seller, api.CreateOfferRequest{Commodity: "corn", Price: "1", Quantity: "1", ExpiresAt: &past}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("err=%v want=%v", err, ErrInvalidInput)
	}

	o, err := svc.Create(ctx, seller, api.CreateOfferRequest{Commodity: "corn", Price: "2.5", Quantity: "4"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if o.Total().String() != "10" || o.Currency != "USD" {
		t.Fatalf("offer=%+v total=%s", o, o.Total())
	}
	if _, err := svc.Close(ctx, workflow.User{ID: "b"}, o.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("err=%v want=%v", err, ErrForbidden)
	}
	open, _ := svc.ListOpen(ctx, repository.ListOffersParams{})
	if len(open) != 1 {
		t.Fatalf("open=%d want=1", len(open))
	}
	if _, err := svc.Close(ctx, seller, o.ID); err != nil {
		t.Fatalf("close: %v", err)
	}
	open, _ = svc.ListOpen(ctx, repository.ListOffersParams{})
	if len(open) != 0 {
		t.Fatalf("open=%d want=0", len(open))
	}
}

func TestTemplate_Validation(t *testing.T) {
	svc := &TemplateService{Repo: memory.New()}
	ctx := context.Background()
	if _, err := svc.Create(ctx, workflow.User{ID: "u"}, api.CreateTemplateRequest{Name: "x"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("err=%v want=%v", err, ErrInvalidInput)
	}
	_, err := svc.Create(ctx, workflow.User{ID: "u"}, api.CreateTemplateRequest{Name: "x", Stages: []workflow.StageTemplate{{Name: "a", Owner: workflow.ActorModerator}}})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("err=%v want=%v", err, ErrInvalidInput)
	}
	tpl, err := svc.Create(ctx, workflow.User{ID: "u"}, api.CreateTemplateRequest{Name: "x", Stages: []workflow.StageTemplate{{Name: "a"}}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	stages, _ := tpl.StageList()
	if len(stages) != 1 || stages[0].Owner != workflow.ActorNone {
		t.Fatalf("stages=%+v", stages)
	}
}

func TestNotifications_Dismiss(t *testing.T) {
	f := newFixture(t)
	tr := f.createTrade(t)
	ctx := context.Background()
	svc := &NotificationService{Repo: f.repo}

	items, err := svc.List(ctx, f.users["u-seller"], repository.ListNotificationsParams{})
	if err != nil || len(items) != 1 || items[0].TradeID != tr.ID {
		t.Fatalf("items=%+v err=%v", items, err)
	}
	if err := svc.Dismiss(ctx, f.users["u-buyer"], items[0].ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("err=%v want=%v", err, ErrForbidden)
	}
	if err := svc.Dismiss(ctx, f.users["u-seller"], items[0].ID); err != nil {
		t.Fatalf("dismiss: %v", err)
	}
	items, _ = svc.List(ctx, f.users["u-seller"], repository.ListNotificationsParams{})
	if len(items) != 0 {
		t.Fatalf("items=%d want=0", len(items))
	}
	if err := svc.Dismiss(ctx, f.users["u-seller"], "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err=%v want=%v", err, ErrNotFound)
	}
}

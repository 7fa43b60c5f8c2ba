package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"nhooyr.io/websocket"

	"tradeflow/internal/api"
	"tradeflow/internal/client/tradeclient"
	"tradeflow/internal/events"
	"tradeflow/internal/ledger"
	"tradeflow/internal/lock"
	"tradeflow/internal/orchestrator"
	"tradeflow/internal/repository/memory"
	"tradeflow/internal/service"
	"tradeflow/internal/session"
	"tradeflow/internal/workflow"
)

type testServer struct {
	srv   *httptest.Server
	store *memory.Store
	hub   *events.Hub
	jwt   session.JWT
}

func newTestServer(t *testing.T, limiter *RateLimiter) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ts := &testServer{
		store: memory.New(),
		hub:   events.NewHub(),
		jwt:   session.JWT{Secret: []byte("test-secret"), TokenTTL: time.Hour, Issuer: "tradeflow-test"},
	}
	trades := &service.TradeService{Repo: ts.store, Locker: lock.NewMemoryLocker(), Hub: ts.hub}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequireSession(ts.jwt))
	if limiter != nil {
		r.Use(limiter.Middleware())
	}
	(&HealthHandler{}).Register(r)
	RegisterDocs(r)
	(&AuthHandler{Service: &service.AuthService{Repo: ts.store, JWT: ts.jwt, Moderators: []string{"mod"}}, Users: ts.store}).Register(r)
	(&TradeHandler{Service: trades, Hub: ts.hub, OriginPatterns: []string{"app.example.com"}}).Register(r)
	(&OfferHandler{Service: &service.OfferService{Repo: ts.store}}).Register(r)
	(&TemplateHandler{Service: &service.TemplateService{Repo: ts.store}}).Register(r)
	(&NotificationHandler{Service: &service.NotificationService{Repo: ts.store}}).Register(r)

	ts.srv = httptest.NewServer(r)
	t.Cleanup(ts.srv.Close)
	return ts
}

type account struct {
	id     string
	signer *ledger.LocalSigner
	client *tradeclient.Client
}

// enroll registers id with a fresh key and logs it in.
func (ts *testServer) enroll(t *testing.T, id string) *account {
	t.Helper()
	key, addr, err := ledger.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	signer, err := ledger.NewLocalSigner(key)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	c := &tradeclient.Client{BaseURL: ts.srv.URL}
	ctx := context.Background()
	now := time.Now().Unix()
	sig, err := signer.SignMessage(api.LoginMessage(id, now))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := c.Register(ctx, api.RegisterRequest{UserID: id, Name: strings.ToUpper(id), Address: addr, Timestamp: now, Signature: sig}); err != nil {
		t.Fatalf("register %s: %v", id, err)
	}
	resp, err := c.Login(ctx, api.LoginRequest{UserID: id, Timestamp: now, Signature: sig})
	if err != nil {
		t.Fatalf("login %s: %v", id, err)
	}
	c.Token = resp.Token
	return &account{id: id, signer: signer, client: c}
}

// orchestrator loads tradeID fresh and wires a machine for a.
func (a *account) orchestrator(t *testing.T, tradeID string) *orchestrator.Orchestrator {
	t.Helper()
	ctx := context.Background()
	detail, err := a.client.GetTrade(ctx, tradeID)
	if err != nil {
		t.Fatalf("get trade: %v", err)
	}
	me, err := a.client.Me(ctx)
	if err != nil {
		t.Fatalf("me: %v", err)
	}
	sc := session.Context{User: me, Moderator: a.client.Moderator}
	m := workflow.NewMachine(detail.Trade, sc.Party(detail.Trade))
	return &orchestrator.Orchestrator{Machine: m, Signer: a.signer, Remote: a.client}
}

func TestHealthAndDocs(t *testing.T) {
	ts := newTestServer(t, nil)
	for path, want := range map[string]int{
		"/healthz": http.StatusOK,
		"/readyz":  http.StatusServiceUnavailable,
		"/docs":    http.StatusOK,
	} {
		resp, err := http.Get(ts.srv.URL + path)
		if err != nil {
			t.Fatalf("get %s: %v", path, err)
		}
		_ = resp.Body.Close()
		if resp.StatusCode != want {
			t.Fatalf("%s status=%d want=%d", path, resp.StatusCode, want)
		}
	}
}

func TestRequireSession(t *testing.T) {
	ts := newTestServer(t, nil)
	ctx := context.Background()

	anon := &tradeclient.Client{BaseURL: ts.srv.URL}
	if _, err := anon.ListTrades(ctx, false); !tradeclient.IsStatus(err, http.StatusUnauthorized) {
		t.Fatalf("err=%v want=401", err)
	}
	bad := &tradeclient.Client{BaseURL: ts.srv.URL, Token: "not-a-jwt"}
	if _, err := bad.Me(ctx); !tradeclient.IsStatus(err, http.StatusUnauthorized) {
		t.Fatalf("err=%v want=401", err)
	}
	if _, err := anon.Login(ctx, api.LoginRequest{UserID: "ghost", Timestamp: time.Now().Unix(), Signature: "0x00"}); !tradeclient.IsStatus(err, http.StatusUnauthorized) {
		t.Fatalf("login err=%v want=401", err)
	}

	a := ts.enroll(t, "alice")
	me, err := a.client.Me(ctx)
	if err != nil || me.ID != "alice" || me.Name != "ALICE" || me.PubKey == "" {
		t.Fatalf("me=%+v err=%v", me, err)
	}
}

func TestTradeRoundTripOverHTTP(t *testing.T) {
	ts := newTestServer(t, nil)
	ctx := context.Background()
	buyer := ts.enroll(t, "buyer")
	seller := ts.enroll(t, "seller")

	detail, err := buyer.client.CreateTrade(ctx, api.CreateTradeRequest{Name: "Copper <b>cathodes</b>", BuyerID: "buyer", SellerID: "seller"})
	if err != nil {
		t.Fatalf("create trade: %v", err)
	}
	tr := detail.Trade
	if tr.Name != "Copper cathodes" {
		t.Fatalf("name=%q want sanitized", tr.Name)
	}

	b := buyer.orchestrator(t, tr.ID)
	if err := b.AddDocument(ctx, 0, workflow.DocumentInput{Name: "contract.pdf", Hash: "h1"}, true); err != nil {
		t.Fatalf("add document: %v", err)
	}
	s := seller.orchestrator(t, tr.ID)
	if err := s.ApproveDocument(ctx, 0, 0); err != nil {
		t.Fatalf("approve document: %v", err)
	}

	got, err := seller.client.GetTrade(ctx, tr.ID)
	if err != nil {
		t.Fatalf("get trade: %v", err)
	}
	if got.Version != 3 {
		t.Fatalf("version=%d want=3", got.Version)
	}
	if st := got.View.Stages[0].Docs[0].EffectiveStatus; st != workflow.ApprovalApproved {
		t.Fatalf("doc status=%s want=approved", st)
	}
	if got.View.Stages[0].CloseStatus != workflow.ReqCan {
		t.Fatalf("close status=%s want=can", got.View.Stages[0].CloseStatus)
	}
	logs, err := buyer.client.TxLogs(ctx, tr.ID)
	if err != nil || len(logs) != 2 {
		t.Fatalf("tx logs=%d err=%v want=2", len(logs), err)
	}

	notes, err := buyer.client.ListNotifications(ctx, tr.ID, false)
	if err != nil || len(notes) != 1 || notes[0].Action != string(workflow.OpApproveDocument) {
		t.Fatalf("notes=%+v err=%v", notes, err)
	}
	if err := buyer.client.DismissNotification(ctx, notes[0].ID); err != nil {
		t.Fatalf("dismiss: %v", err)
	}
	notes, _ = buyer.client.ListNotifications(ctx, tr.ID, false)
	if len(notes) != 0 {
		t.Fatalf("notes=%d want=0", len(notes))
	}

	list, err := seller.client.ListTrades(ctx, true)
	if err != nil || len(list) != 1 || list[0].ID != tr.ID || list[0].Version != 3 {
		t.Fatalf("list=%+v err=%v", list, err)
	}
}

func TestMutationErrorStatuses(t *testing.T) {
	ts := newTestServer(t, nil)
	ctx := context.Background()
	buyer := ts.enroll(t, "buyer")
	seller := ts.enroll(t, "seller")
	outsider := ts.enroll(t, "outsider")

	detail, err := buyer.client.CreateTrade(ctx, api.CreateTradeRequest{Name: "Copper cathodes", BuyerID: "buyer", SellerID: "seller"})
	if err != nil {
		t.Fatalf("create trade: %v", err)
	}
	id := detail.Trade.ID
	if err := buyer.orchestrator(t, id).AddDocument(ctx, 0, workflow.DocumentInput{Name: "contract.pdf", Hash: "h1"}, true); err != nil {
		t.Fatalf("add document: %v", err)
	}

	// stale hash is refused before the token is even looked at
	_, err = seller.client.Submit(ctx, withToken(workflow.ApproveDocument(id, 0, 0, "h0"), "x"))
	if !tradeclient.IsStatus(err, http.StatusConflict) {
		t.Fatalf("stale: err=%v want=409", err)
	}
	_, err = buyer.client.Submit(ctx, withToken(workflow.ApproveDocument(id, 0, 0, "h1"), "x"))
	if !tradeclient.IsStatus(err, http.StatusUnprocessableEntity) {
		t.Fatalf("self approval: err=%v want=422", err)
	}
	_, err = seller.client.Submit(ctx, withToken(workflow.ApproveDocument(id, 0, 0, "h1"), "x"))
	if !tradeclient.IsStatus(err, http.StatusUnauthorized) {
		t.Fatalf("bad token: err=%v want=401", err)
	}
	_, err = seller.client.Submit(ctx, workflow.ApproveDocument(id, 0, 0, "h1"))
	if !tradeclient.IsStatus(err, http.StatusUnauthorized) {
		t.Fatalf("missing token: err=%v want=401", err)
	}
	if _, err := outsider.client.GetTrade(ctx, id); !tradeclient.IsStatus(err, http.StatusForbidden) {
		t.Fatalf("outsider: err=%v want=403", err)
	}
	if _, err := buyer.client.GetTrade(ctx, "missing"); !tradeclient.IsStatus(err, http.StatusNotFound) {
		t.Fatalf("missing: err=%v want=404", err)
	}

	// a reject with a short reason never reaches the server
	err = seller.orchestrator(t, id).RejectDocument(ctx, 0, 0, "no")
	if !errors.Is(err, workflow.ErrShortReason) || orchestrator.IsRemote(err) {
		t.Fatalf("short reason: err=%v", err)
	}
}

func withToken(mu workflow.Mutation, token string) workflow.Mutation {
	mu.Token = token
	return mu
}

func TestOffersAndTemplates(t *testing.T) {
	ts := newTestServer(t, nil)
	ctx := context.Background()
	seller := ts.enroll(t, "seller")
	buyer := ts.enroll(t, "buyer")

	tpl, err := seller.client.CreateTemplate(ctx, api.CreateTemplateRequest{
		Name:   "Metals",
		Stages: []workflow.StageTemplate{{Name: "contract"}, {Name: "shipping", Owner: workflow.ActorSeller}},
	})
	if err != nil || len(tpl.Stages) != 2 {
		t.Fatalf("template=%+v err=%v", tpl, err)
	}
	tpls, _ := buyer.client.ListTemplates(ctx)
	if len(tpls) != 1 {
		t.Fatalf("templates=%d want=1", len(tpls))
	}

	offer, err := seller.client.CreateOffer(ctx, api.CreateOfferRequest{Commodity: "copper", IsSell: true, Price: "8500", Quantity: "25", Unit: "t", TemplateID: tpl.ID})
	if err != nil {
		t.Fatalf("offer: %v", err)
	}
	if offer.Total.String() != "212500" {
		t.Fatalf("total=%s want=212500", offer.Total)
	}
	if _, err := buyer.client.CreateOffer(ctx, api.CreateOfferRequest{Commodity: "copper", Price: "x", Quantity: "1"}); !tradeclient.IsStatus(err, http.StatusBadRequest) {
		t.Fatalf("err=%v want=400", err)
	}
	if _, err := buyer.client.CloseOffer(ctx, offer.ID); !tradeclient.IsStatus(err, http.StatusForbidden) {
		t.Fatalf("err=%v want=403", err)
	}

	detail, err := buyer.client.CreateTrade(ctx, api.CreateTradeRequest{Name: "Copper from offer", OfferID: offer.ID})
	if err != nil {
		t.Fatalf("create from offer: %v", err)
	}
	if detail.Trade.Seller.ID != "seller" || len(detail.Trade.Stages) != 2 {
		t.Fatalf("trade=%+v", detail.Trade)
	}

	open, _ := buyer.client.ListOffers(ctx, "copper", false)
	if len(open) != 1 {
		t.Fatalf("open offers=%d want=1", len(open))
	}
	if _, err := seller.client.CloseOffer(ctx, offer.ID); err != nil {
		t.Fatalf("close: %v", err)
	}
	open, _ = buyer.client.ListOffers(ctx, "", false)
	if len(open) != 0 {
		t.Fatalf("open offers=%d want=0", len(open))
	}
}

func TestModeratorHeader(t *testing.T) {
	ts := newTestServer(t, nil)
	ctx := context.Background()
	buyer := ts.enroll(t, "buyer")
	ts.enroll(t, "seller")
	mod := ts.enroll(t, "mod")

	detail, err := buyer.client.CreateTrade(ctx, api.CreateTradeRequest{Name: "Copper cathodes", BuyerID: "buyer", SellerID: "seller"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := mod.client.GetTrade(ctx, detail.Trade.ID); !tradeclient.IsStatus(err, http.StatusForbidden) {
		t.Fatalf("without header: err=%v want=403", err)
	}
	mod.client.Moderator = true
	if _, err := mod.client.GetTrade(ctx, detail.Trade.ID); err != nil {
		t.Fatalf("moderator get: %v", err)
	}
	m := mod.orchestrator(t, detail.Trade.ID)
	if err := m.AddStage(ctx, "inspection", "", workflow.ActorNone, "", false); err != nil {
		t.Fatalf("moderator add stage: %v", err)
	}
	list, _ := mod.client.ListTrades(ctx, false)
	if len(list) != 1 {
		t.Fatalf("moderator list=%d want=1", len(list))
	}
}

func TestWatchStreamsEvents(t *testing.T) {
	ts := newTestServer(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	buyer := ts.enroll(t, "buyer")
	seller := ts.enroll(t, "seller")
	detail, err := buyer.client.CreateTrade(ctx, api.CreateTradeRequest{Name: "Copper cathodes", BuyerID: "buyer", SellerID: "seller"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	id := detail.Trade.ID

	got := make(chan events.Event, 1)
	done := make(chan error, 1)
	wctx, stop := context.WithCancel(ctx)
	go func() {
		done <- seller.client.Watch(wctx, id, func(ev events.Event) {
			select {
			case got <- ev:
			default:
			}
		})
	}()
	deadline := time.Now().Add(2 * time.Second)
	for ts.hub.Subscribers(id) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("watcher never subscribed")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := buyer.orchestrator(t, id).AddStage(ctx, "shipping", "", workflow.ActorSeller, "", true); err != nil {
		t.Fatalf("add stage: %v", err)
	}
	select {
	case ev := <-got:
		if ev.Op != workflow.OpAddStage || ev.By != "buyer" || ev.Version != 2 {
			t.Fatalf("event=%+v", ev)
		}
	case <-ctx.Done():
		t.Fatalf("no event received")
	}
	stop()
	if err := <-done; err != nil {
		t.Fatalf("watch: %v", err)
	}

	outsider := ts.enroll(t, "outsider")
	if err := outsider.client.Watch(ctx, id, func(events.Event) {}); !tradeclient.IsStatus(err, http.StatusForbidden) {
		t.Fatalf("outsider watch err=%v want=403", err)
	}
}

func TestWatchOriginPatterns(t *testing.T) {
	ts := newTestServer(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	buyer := ts.enroll(t, "buyer")
	ts.enroll(t, "seller")
	detail, err := buyer.client.CreateTrade(ctx, api.CreateTradeRequest{Name: "Copper cathodes", BuyerID: "buyer", SellerID: "seller"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	u := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + api.Prefix + "/trades/" + detail.Trade.ID + "/events"

	dial := func(origin string) (*websocket.Conn, *http.Response, error) {
		h := http.Header{}
		h.Set("Authorization", "Bearer "+buyer.client.Token)
		h.Set("Origin", origin)
		return websocket.Dial(ctx, u, &websocket.DialOptions{HTTPHeader: h})
	}

	_, resp, err := dial("https://evil.example")
	if err == nil || resp == nil || resp.StatusCode != http.StatusForbidden {
		code := 0
		if resp != nil {
			code = resp.StatusCode
		}
		t.Fatalf("foreign origin: err=%v status=%d want=403", err, code)
	}

	conn, _, err := dial("https://app.example.com")
	if err != nil {
		t.Fatalf("allowed origin: %v", err)
	}
	_ = conn.Close(websocket.StatusNormalClosure, "done")
}

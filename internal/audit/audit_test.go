package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

type stubRecorder struct {
	mu      sync.Mutex
	entries []Entry
}

func (s *stubRecorder) CreateLog(ctx context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return nil
}

func TestWriteMiddleware_OnlyWrites(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := &stubRecorder{}
	r := gin.New()
	r.Use(func(c *gin.Context) { c.Set(UserIDKey, "u1"); c.Next() })
	r.Use(WriteMiddleware(rec, "", nil))
	r.GET("/api/v1/trades/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/api/v1/trades/:id/close", func(c *gin.Context) { c.Status(http.StatusUnprocessableEntity) })

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/api/v1/trades/t1", nil),
		httptest.NewRequest(http.MethodPost, "/api/v1/trades/t1/close", nil),
	} {
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	if len(rec.entries) != 1 {
		t.Fatalf("entries=%d want=1", len(rec.entries))
	}
	e := rec.entries[0]
	if e.Level != "warn" || e.Agent != "tradeflow" || e.Details["trade_id"] != "t1" || e.Details["user_id"] != "u1" {
		t.Fatalf("entry=%+v", e)
	}
}

func TestClient_LoginAndCreateLog(t *testing.T) {
	var logins, logs int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/auth/login":
			logins++
			_ = json.NewEncoder(w).Encode(map[string]any{
				"token":      "tok",
				"expires_at": time.Now().Add(time.Hour).UTC().Format(time.RFC3339),
			})
		case "/api/v1/logs":
			if r.Header.Get("Authorization") != "Bearer tok" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			logs++
			w.WriteHeader(http.StatusCreated)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := &Client{BaseURL: srv.URL, APIKey: "k"}
	for i := 0; i < 2; i++ {
		if err := c.CreateLog(context.Background(), Entry{Agent: "a", Action: "x", Level: "info"}); err != nil {
			t.Fatalf("create log: %v", err)
		}
	}
	if logins != 1 || logs != 2 {
		t.Fatalf("logins=%d logs=%d want=1/2", logins, logs)
	}
}

func TestClient_RequiresConfig(t *testing.T) {
	if err := (&Client{}).Login(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
	if err := (&Client{BaseURL: "http://x"}).Login(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
}

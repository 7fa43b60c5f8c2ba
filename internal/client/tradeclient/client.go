package tradeclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"nhooyr.io/websocket"

	"tradeflow/internal/api"
	"tradeflow/internal/events"
	"tradeflow/internal/models"
	"tradeflow/internal/workflow"
)

// Client talks to the trade server. It implements orchestrator.Remote.
type Client struct {
	BaseURL   string
	Token     string
	Moderator bool

	HTTP *http.Client
}

// HTTPError is a non-2xx answer of the server.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

// IsStatus reports whether err is an HTTPError with the given status.
func IsStatus(err error, status int) bool {
	var he *HTTPError
	return errors.As(err, &he) && he.StatusCode == status
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return &http.Client{Timeout: 15 * time.Second}
}

func (c *Client) NewRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	if strings.TrimSpace(c.BaseURL) == "" {
		return nil, errors.New("base url is empty")
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.BaseURL, "/")+path, r)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if strings.TrimSpace(c.Token) != "" {
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(c.Token))
	}
	if c.Moderator {
		req.Header.Set("X-Moderator", "1")
	}
	return req, nil
}

// Do sends req and decodes the data field of the response envelope into out.
func (c *Client) Do(req *http.Request, out any) error {
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	b, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return err
	}
	var env api.Envelope
	decodeErr := json.Unmarshal(b, &env)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(b))
		if decodeErr == nil && strings.TrimSpace(env.Message) != "" {
			msg = env.Message
		}
		return &HTTPError{StatusCode: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return decodeErr
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}

func (c *Client) call(ctx context.Context, method, path string, body, out any) error {
	req, err := c.NewRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	return c.Do(req, out)
}

func (c *Client) Submit(ctx context.Context, mu workflow.Mutation) (workflow.Receipt, error) {
	route, ok := api.RouteFor(mu.Op)
	if !ok {
		return workflow.Receipt{}, fmt.Errorf("no route for %s", mu.Op)
	}
	var res api.MutationResult
	if err := c.call(ctx, route.Method, route.Path(mu.Path), mu, &res); err != nil {
		return workflow.Receipt{}, err
	}
	return res.Receipt, nil
}

func (c *Client) Login(ctx context.Context, req api.LoginRequest) (api.LoginResponse, error) {
	var out api.LoginResponse
	err := c.call(ctx, http.MethodPost, api.Prefix+"/auth/login", req, &out)
	return out, err
}

func (c *Client) Me(ctx context.Context) (workflow.User, error) {
	var out workflow.User
	err := c.call(ctx, http.MethodGet, api.Prefix+"/me", nil, &out)
	return out, err
}

func (c *Client) GetTrade(ctx context.Context, id string) (*api.TradeDetail, error) {
	var out api.TradeDetail
	if err := c.call(ctx, http.MethodGet, api.Prefix+"/trades/"+id, nil, &out); err != nil {
		return nil, err
	}
	if out.Trade == nil {
		return nil, fmt.Errorf("trade %s: empty response", id)
	}
	return &out, nil
}

func (c *Client) ListTrades(ctx context.Context, openOnly bool) ([]api.TradeSummary, error) {
	path := api.Prefix + "/trades"
	if openOnly {
		path += "?open=true"
	}
	var out []api.TradeSummary
	err := c.call(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (c *Client) CreateTrade(ctx context.Context, req api.CreateTradeRequest) (*api.TradeDetail, error) {
	var out api.TradeDetail
	if err := c.call(ctx, http.MethodPost, api.Prefix+"/trades", req, &out); err != nil {
		return nil, err
	}
	if out.Trade == nil {
		return nil, errors.New("create trade: empty response")
	}
	return &out, nil
}

func (c *Client) TxLogs(ctx context.Context, tradeID string) ([]models.TxLog, error) {
	var out []models.TxLog
	err := c.call(ctx, http.MethodGet, api.Prefix+"/trades/"+url.PathEscape(tradeID)+"/txlogs", nil, &out)
	return out, err
}

func (c *Client) Register(ctx context.Context, req api.RegisterRequest) (workflow.User, error) {
	var out workflow.User
	err := c.call(ctx, http.MethodPost, api.Prefix+"/auth/register", req, &out)
	return out, err
}

func (c *Client) ListOffers(ctx context.Context, commodity string, mine bool) ([]api.Offer, error) {
	q := url.Values{}
	if commodity != "" {
		q.Set("commodity", commodity)
	}
	if mine {
		q.Set("mine", "true")
	}
	path := api.Prefix + "/offers"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out []api.Offer
	err := c.call(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (c *Client) CreateOffer(ctx context.Context, req api.CreateOfferRequest) (api.Offer, error) {
	var out api.Offer
	err := c.call(ctx, http.MethodPost, api.Prefix+"/offers", req, &out)
	return out, err
}

func (c *Client) CloseOffer(ctx context.Context, id string) (api.Offer, error) {
	var out api.Offer
	err := c.call(ctx, http.MethodPost, api.Prefix+"/offers/"+url.PathEscape(id)+"/close", nil, &out)
	return out, err
}

func (c *Client) ListTemplates(ctx context.Context) ([]api.Template, error) {
	var out []api.Template
	err := c.call(ctx, http.MethodGet, api.Prefix+"/templates", nil, &out)
	return out, err
}

func (c *Client) CreateTemplate(ctx context.Context, req api.CreateTemplateRequest) (api.Template, error) {
	var out api.Template
	err := c.call(ctx, http.MethodPost, api.Prefix+"/templates", req, &out)
	return out, err
}

func (c *Client) ListNotifications(ctx context.Context, tradeID string, includeDismissed bool) ([]api.Notification, error) {
	q := url.Values{}
	if tradeID != "" {
		q.Set("trade_id", tradeID)
	}
	if includeDismissed {
		q.Set("include_dismissed", "true")
	}
	path := api.Prefix + "/notifications"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out []api.Notification
	err := c.call(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (c *Client) DismissNotification(ctx context.Context, id string) error {
	return c.call(ctx, http.MethodPost, api.Prefix+"/notifications/"+url.PathEscape(id)+"/dismiss", nil, nil)
}

func (c *Client) wsURL(path string) (string, error) {
	u, err := url.Parse(strings.TrimRight(c.BaseURL, "/") + path)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	return u.String(), nil
}

// Watch streams change events of a trade to fn until ctx is done or the
// server closes the stream.
func (c *Client) Watch(ctx context.Context, tradeID string, fn func(events.Event)) error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return errors.New("base url is empty")
	}
	u, err := c.wsURL(api.Prefix + "/trades/" + url.PathEscape(tradeID) + "/events")
	if err != nil {
		return err
	}
	header := http.Header{}
	if strings.TrimSpace(c.Token) != "" {
		header.Set("Authorization", "Bearer "+strings.TrimSpace(c.Token))
	}
	if c.Moderator {
		header.Set("X-Moderator", "1")
	}
	conn, resp, err := websocket.Dial(ctx, u, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		if resp != nil && resp.StatusCode >= 400 {
			return &HTTPError{StatusCode: resp.StatusCode, Message: err.Error()}
		}
		return err
	}
	defer conn.Close(websocket.StatusNormalClosure, "watch done")
	conn.SetReadLimit(1 << 20)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return nil
			}
			return err
		}
		var ev events.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			continue
		}
		fn(ev)
	}
}

// Raw performs an arbitrary call and returns the decoded data payload.
func (c *Client) Raw(ctx context.Context, method, path string, body any) (any, error) {
	var out any
	err := c.call(ctx, method, path, body, &out)
	return out, err
}

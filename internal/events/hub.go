package events

import (
	"sync"
	"sync/atomic"
	"time"

	"tradeflow/internal/workflow"
)

// Event announces a persisted change of a trade.
type Event struct {
	TradeID string      `json:"trade_id"`
	Op      workflow.Op `json:"op"`
	Path    string      `json:"path"`
	Tx      string      `json:"tx,omitempty"`
	By      string      `json:"by,omitempty"`
	Version int64       `json:"version"`
	At      time.Time   `json:"at"`
}

// Hub fans events out to per-trade subscribers. Publish never blocks: slow
// subscribers miss events and are expected to reload the trade.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[chan Event]struct{}

	dropped uint64
}

func NewHub() *Hub {
	return &Hub{subs: map[string]map[chan Event]struct{}{}}
}

// Subscribe registers for events of tradeID. The returned cancel func closes
// the channel.
func (h *Hub) Subscribe(tradeID string, buf int) (<-chan Event, func()) {
	if buf <= 0 {
		buf = 16
	}
	ch := make(chan Event, buf)
	h.mu.Lock()
	if h.subs[tradeID] == nil {
		h.subs[tradeID] = map[chan Event]struct{}{}
	}
	h.subs[tradeID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[tradeID], ch)
			if len(h.subs[tradeID]) == 0 {
				delete(h.subs, tradeID)
			}
			h.mu.Unlock()
			close(ch)
		})
	}
}

func (h *Hub) Publish(ev Event) {
	if h == nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[ev.TradeID] {
		select {
		case ch <- ev:
		default:
			atomic.AddUint64(&h.dropped, 1)
		}
	}
}

func (h *Hub) Subscribers(tradeID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[tradeID])
}

func (h *Hub) Dropped() uint64 {
	return atomic.LoadUint64(&h.dropped)
}

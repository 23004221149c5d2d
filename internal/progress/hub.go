// Package progress streams engine events to websocket clients.
package progress

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"lifesync/internal/engine"
)

const (
	defaultBuffer = 64
	writeTimeout  = 5 * time.Second
	pingInterval  = 30 * time.Second
)

// Hub fans engine events out to subscribers. Slow subscribers lose events
// instead of blocking sync runs.
type Hub struct {
	Logger *zap.Logger
	Buffer int

	mu     sync.Mutex
	subs   map[chan engine.Event]struct{}
	closed bool
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{Logger: logger, Buffer: defaultBuffer, subs: map[chan engine.Event]struct{}{}}
}

// Observe implements engine.Observer.
func (h *Hub) Observe(e engine.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- e:
		default:
			h.Logger.Debug("progress subscriber lagging, event dropped", zap.String("service", e.Service))
		}
	}
}

// Subscribe returns an event channel and its cancel func.
func (h *Hub) Subscribe() (<-chan engine.Event, func()) {
	size := h.Buffer
	if size <= 0 {
		size = defaultBuffer
	}
	ch := make(chan engine.Event, size)
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	if h.subs == nil {
		h.subs = map[chan engine.Event]struct{}{}
	}
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			if _, ok := h.subs[ch]; ok {
				delete(h.subs, ch)
				close(ch)
			}
			h.mu.Unlock()
		})
	}
}

func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close ends every subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
	}
}

// ServeWS upgrades the request and writes events as JSON until the client
// goes away or the hub closes. service filters events when non-empty.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, service string) error {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return err
	}
	defer conn.CloseNow()

	events, cancel := h.Subscribe()
	defer cancel()

	// Clients only listen; CloseRead handles control frames and cancels ctx on close.
	ctx := conn.CloseRead(r.Context())
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			pctx, pcancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Ping(pctx)
			pcancel()
			if err != nil {
				return nil
			}
		case e, ok := <-events:
			if !ok {
				return conn.Close(websocket.StatusGoingAway, "server shutting down")
			}
			if service != "" && e.Service != service {
				continue
			}
			wctx, wcancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, conn, e)
			wcancel()
			if err != nil {
				if errors.Is(err, context.Canceled) || websocket.CloseStatus(err) != -1 {
					return nil
				}
				return err
			}
		}
	}
}

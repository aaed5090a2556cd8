package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/ioanna/internal/observe"
)

// DefaultClientBuffer is the number of events queued per websocket client.
const DefaultClientBuffer = 32

// writeTimeout bounds a single websocket write.
const writeTimeout = 5 * time.Second

// Hub fans events out to websocket clients. It is both an [http.Handler]
// that accepts clients and a [Sink] that broadcasts to them. A client that
// cannot keep up loses events rather than slowing the others down.
type Hub struct {
	originPatterns []string
	bufferSize     int
	metrics        *observe.Metrics

	mu      sync.Mutex
	clients map[*hubClient]struct{}
}

var (
	_ Sink         = (*Hub)(nil)
	_ http.Handler = (*Hub)(nil)
)

type hubClient struct {
	send chan []byte
}

// HubOption configures a [Hub].
type HubOption func(*Hub)

// WithOriginPatterns allows cross-origin clients matching patterns.
func WithOriginPatterns(patterns ...string) HubOption {
	return func(h *Hub) { h.originPatterns = patterns }
}

// WithClientBuffer sets the per-client queue size.
func WithClientBuffer(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.bufferSize = n
		}
	}
}

// WithHubMetrics counts events dropped for slow clients on m.
func WithHubMetrics(m *observe.Metrics) HubOption {
	return func(h *Hub) { h.metrics = m }
}

// NewHub returns an empty hub.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		bufferSize: DefaultClientBuffer,
		clients:    make(map[*hubClient]struct{}),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Deliver encodes e as JSON and queues it for every connected client.
func (h *Hub) Deliver(ctx context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("events: encode %s: %w", e.Kind, err)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			if h.metrics != nil {
				h.metrics.RecordEventDropped(ctx, "hub")
			}
		}
	}
	return nil
}

// ServeHTTP upgrades the request to a websocket and streams events until the
// client disconnects. Messages sent by the client are ignored.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		slog.Warn("events: websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()

	c := &hubClient{send: make(chan []byte, h.bufferSize)}
	h.add(c)
	defer h.remove(c)

	// CloseRead discards client messages and cancels ctx once the peer goes.
	ctx := conn.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case data := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Write(wctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				slog.Debug("events: websocket write failed", "err", err)
				return
			}
		}
	}
}

func (h *Hub) add(c *hubClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
}

func (h *Hub) remove(c *hubClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
}

// Package operator serves the operator console feed over websockets.
//
// Connected consoles receive every crisis transition (and per-turn telemetry
// when the hub is configured as a turn target) as JSON messages, and send back
// acknowledgements for critical sessions:
//
//	→ {"type":"transition","transition":{...}}
//	← {"type":"ack","session_id":"abc"}
//	→ {"type":"ack_result","session_id":"abc"}
//
// [Hub] implements [alert.Publisher]; transitions published while no console
// is connected fail with [ErrNoConsoles] so the alert dispatcher retries or
// falls back.
package operator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/attune/internal/alert"
	"github.com/MrWong99/attune/internal/observe"
	"github.com/MrWong99/attune/pkg/affect"
)

// Message types.
const (
	TypeHello      = "hello"
	TypeTransition = "transition"
	TypeTurn       = "turn"
	TypeAck        = "ack"
	TypeAckResult  = "ack_result"
	TypeError      = "error"
)

// DefaultWriteTimeout bounds one websocket write.
const DefaultWriteTimeout = 5 * time.Second

// ErrNoConsoles is returned by [Hub.PublishTransition] when no console
// received the event.
var ErrNoConsoles = errors.New("operator: no console connected")

// Message is the envelope of every frame in both directions.
type Message struct {
	Type       string                        `json:"type"`
	SessionID  string                        `json:"session_id,omitempty"`
	Transition *affect.CrisisTransitionEvent `json:"transition,omitempty"`
	Turn       *affect.TurnTelemetry         `json:"turn,omitempty"`
	Error      string                        `json:"error,omitempty"`
}

// Acknowledger receives operator acknowledgements.
type Acknowledger interface {
	Acknowledge(ctx context.Context, sessionID string) error
}

// Option configures a [Hub].
type Option func(*Hub)

// WithWriteTimeout bounds a single write to one console.
func WithWriteTimeout(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.writeTimeout = d
		}
	}
}

// WithOriginPatterns accepts cross-origin consoles from the given host
// patterns (see [websocket.AcceptOptions]).
func WithOriginPatterns(patterns ...string) Option {
	return func(h *Hub) { h.originPatterns = append(h.originPatterns, patterns...) }
}

// WithMetrics tracks the number of connected consoles.
func WithMetrics(m *observe.Metrics) Option {
	return func(h *Hub) { h.metrics = m }
}

// Hub fans events out to connected consoles. It is an [http.Handler].
type Hub struct {
	writeTimeout   time.Duration
	originPatterns []string
	metrics        *observe.Metrics
	ack            atomic.Value // ackHolder

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

type ackHolder struct{ a Acknowledger }

type client struct {
	conn   *websocket.Conn
	remote string
}

var (
	_ alert.Publisher = (*Hub)(nil)
	_ http.Handler    = (*Hub)(nil)
)

// NewHub returns a hub without consoles. Acknowledgements are rejected until
// [Hub.SetAcknowledger] is called.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		writeTimeout: DefaultWriteTimeout,
		clients:      make(map[*client]struct{}),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// SetAcknowledger sets the receiver of console acknowledgements.
func (h *Hub) SetAcknowledger(a Acknowledger) {
	h.ack.Store(ackHolder{a: a})
}

func (h *Hub) acknowledger() Acknowledger {
	v, _ := h.ack.Load().(ackHolder)
	return v.a
}

// Connections returns the number of connected consoles.
func (h *Hub) Connections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// PublishTransition sends ev to every console. It fails only when no console
// received it.
func (h *Hub) PublishTransition(ctx context.Context, ev affect.CrisisTransitionEvent) error {
	n := h.broadcast(ctx, Message{Type: TypeTransition, SessionID: ev.SessionID, Transition: &ev})
	if n == 0 {
		return ErrNoConsoles
	}
	return nil
}

// PublishTurn sends t to every console. Turn telemetry is best effort: having
// no console is not an error.
func (h *Hub) PublishTurn(ctx context.Context, t affect.TurnTelemetry) error {
	h.broadcast(ctx, Message{Type: TypeTurn, SessionID: t.SessionID, Turn: &t})
	return nil
}

// broadcast writes msg to all consoles concurrently and returns how many
// accepted it. Consoles that fail the write are disconnected.
func (h *Hub) broadcast(ctx context.Context, msg Message) int {
	h.mu.Lock()
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	var (
		wg        sync.WaitGroup
		delivered atomic.Int64
	)
	for _, c := range targets {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := h.write(ctx, c, msg); err != nil {
				slog.Warn("operator: dropping console after failed write", "remote", c.remote, "err", err)
				c.conn.Close(websocket.StatusPolicyViolation, "write failed")
				h.remove(ctx, c)
				return
			}
			delivered.Add(1)
		}()
	}
	wg.Wait()
	return int(delivered.Load())
}

func (h *Hub) write(ctx context.Context, c *client, msg Message) error {
	ctx, cancel := context.WithTimeout(ctx, h.writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, c.conn, msg)
}

// ServeHTTP upgrades the request and serves one console until it
// disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.originPatterns})
	if err != nil {
		slog.Warn("operator: websocket accept failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	c := &client{conn: conn, remote: r.RemoteAddr}
	ctx := r.Context()

	if !h.add(ctx, c) {
		conn.Close(websocket.StatusGoingAway, "shutting down")
		return
	}
	defer h.remove(ctx, c)
	slog.Info("operator: console connected", "remote", c.remote)

	if err := h.write(ctx, c, Message{Type: TypeHello}); err != nil {
		conn.Close(websocket.StatusInternalError, "hello failed")
		return
	}
	h.readLoop(ctx, c)
}

func (h *Hub) readLoop(ctx context.Context, c *client) {
	for {
		var msg Message
		if err := wsjson.Read(ctx, c.conn, &msg); err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				slog.Info("operator: console disconnected", "remote", c.remote)
			default:
				slog.Debug("operator: console read ended", "remote", c.remote, "err", err)
			}
			c.conn.CloseNow()
			return
		}
		reply := h.handle(ctx, msg)
		if err := h.write(ctx, c, reply); err != nil {
			slog.Warn("operator: reply failed", "remote", c.remote, "err", err)
			c.conn.CloseNow()
			return
		}
	}
}

func (h *Hub) handle(ctx context.Context, msg Message) Message {
	if msg.Type != TypeAck {
		return Message{Type: TypeError, SessionID: msg.SessionID, Error: fmt.Sprintf("unsupported message type %q", msg.Type)}
	}
	if msg.SessionID == "" {
		return Message{Type: TypeError, Error: "ack without session_id"}
	}
	a := h.acknowledger()
	if a == nil {
		return Message{Type: TypeError, SessionID: msg.SessionID, Error: "acknowledgements not available"}
	}
	if err := a.Acknowledge(ctx, msg.SessionID); err != nil {
		observe.SessionLogger(ctx, msg.SessionID).Warn("operator: acknowledge failed", "err", err)
		return Message{Type: TypeError, SessionID: msg.SessionID, Error: err.Error()}
	}
	observe.SessionLogger(ctx, msg.SessionID).Info("operator: crisis acknowledged")
	return Message{Type: TypeAckResult, SessionID: msg.SessionID}
}

func (h *Hub) add(ctx context.Context, c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	if h.metrics != nil {
		h.metrics.OperatorConnections.Add(ctx, 1)
	}
	return true
}

func (h *Hub) remove(ctx context.Context, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	if h.metrics != nil {
		h.metrics.OperatorConnections.Add(context.WithoutCancel(ctx), -1)
	}
}

// Close disconnects every console and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := h.clients
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()

	for c := range clients {
		c.conn.Close(websocket.StatusGoingAway, "shutting down")
		if h.metrics != nil {
			h.metrics.OperatorConnections.Add(context.Background(), -1)
		}
	}
}

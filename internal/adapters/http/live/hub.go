// Package live pushes rebuilt comparison tables to websocket clients.
package live

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"

	"github.com/okian/ridergrid/internal/adapters/http/api"
	"github.com/okian/ridergrid/internal/domain/ranking"
	"github.com/okian/ridergrid/pkg/logger"
	"github.com/okian/ridergrid/pkg/metrics"
)

// Message types sent to clients.
const (
	TypeCohort = "cohort"
	TypeError  = "error"
)

// Builder renders a table for a session.
type Builder interface {
	BuildCohort(ctx context.Context, sess ranking.Session) (ranking.Result, error)
}

// Message is one server push.
type Message struct {
	Type   string              `json:"type"`
	Cohort *api.CohortResponse `json:"cohort,omitempty"`
	Error  string              `json:"error,omitempty"`
}

type client struct {
	id     string
	conn   *websocket.Conn
	cancel context.CancelFunc
	kick   chan struct{}

	mu      sync.Mutex
	session ranking.Session
}

func (c *client) poke() {
	select {
	case c.kick <- struct{}{}:
	default:
	}
}

func (c *client) setSession(s ranking.Session) {
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()
}

func (c *client) currentSession() ranking.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Hub serves GET /live. Each client sends its session as JSON whenever it
// changes and receives the rebuilt table on connect, on every session and on
// every store change. Pushes to one client are at least minInterval apart;
// triggers inside the window collapse into one push.
type Hub struct {
	builder        Builder
	minInterval    time.Duration
	writeTimeout   time.Duration
	originPatterns []string
	logger         logger.Logger

	mu      sync.RWMutex
	clients map[string]*client
	closed  bool
}

// NewHub creates a hub building tables with b.
func NewHub(b Builder, opts ...Option) *Hub {
	h := &Hub{
		builder:      b,
		minInterval:  500 * time.Millisecond,
		writeTimeout: 5 * time.Second,
		clients:      make(map[string]*client),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = logger.Get().Named("live")
	}
	return h
}

// Run forwards change notifications to every client until ctx ends or
// changes is closed.
func (h *Hub) Run(ctx context.Context, changes <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-changes:
			if !ok {
				return
			}
			h.Notify()
		}
	}
}

// Notify schedules a push to every client.
func (h *Hub) Notify() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		c.poke()
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	for _, c := range h.clients {
		c.cancel()
	}
	h.mu.Unlock()
}

// ServeHTTP upgrades the request and serves the client until it leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Server read and write timeouts would otherwise cut the long-lived connection.
	rc := http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.originPatterns})
	if err != nil {
		h.logger.Warn(r.Context(), "websocket upgrade failed", logger.Error(err))
		return
	}
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := &client{id: uuid.NewString(), conn: conn, cancel: cancel, kick: make(chan struct{}, 1)}
	if !h.add(c) {
		_ = conn.Close(websocket.StatusGoingAway, "shutting down")
		return
	}
	defer h.remove(c)

	log := h.logger.With(logger.String("client", c.id))
	log.Debug(ctx, "live client connected")

	go h.read(ctx, c)
	c.poke()
	err = h.write(ctx, c)

	switch {
	case err == nil, errors.Is(err, context.Canceled):
		_ = conn.Close(websocket.StatusNormalClosure, "")
	case websocket.CloseStatus(err) != -1:
	default:
		log.Debug(ctx, "live client dropped", logger.Error(err))
		_ = conn.CloseNow()
	}
	log.Debug(ctx, "live client disconnected")
}

func (h *Hub) add(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c.id] = c
	metrics.UpdateLiveClients(len(h.clients))
	return true
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	delete(h.clients, c.id)
	metrics.UpdateLiveClients(len(h.clients))
	h.mu.Unlock()
}

// read applies incoming sessions until the connection fails.
func (h *Hub) read(ctx context.Context, c *client) {
	defer c.cancel()
	for {
		var sess ranking.Session
		if err := wsjson.Read(ctx, c.conn, &sess); err != nil {
			return
		}
		c.setSession(sess)
		c.poke()
	}
}

// write pushes a table for every trigger, spaced by minInterval.
func (h *Hub) write(ctx context.Context, c *client) error {
	var last time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.kick:
		}

		if wait := h.minInterval - time.Since(last); !last.IsZero() && wait > 0 {
			metrics.RecordLiveThrottled()
			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
			// Triggers that arrived while waiting are covered by this push.
			select {
			case <-c.kick:
			default:
			}
		}

		if err := h.push(ctx, c); err != nil {
			return err
		}
		last = time.Now()
	}
}

func (h *Hub) push(ctx context.Context, c *client) error {
	sess := c.currentSession()
	msg := Message{Type: TypeCohort}
	res, err := h.builder.BuildCohort(ctx, sess)
	if err != nil {
		msg = Message{Type: TypeError, Error: err.Error()}
	} else {
		rendered := api.Render(res)
		msg.Cohort = &rendered
	}

	wctx, cancel := context.WithTimeout(ctx, h.writeTimeout)
	defer cancel()
	if err := wsjson.Write(wctx, c.conn, msg); err != nil {
		return err
	}
	metrics.RecordLivePush()
	return nil
}

// Package livereload pushes notifications about recompiled resources to
// connected browsers over WebSocket.
package livereload

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/conneroisu/rescomp/internal/logging"
	"github.com/conneroisu/rescomp/internal/validation"
)

// Message types sent to clients.
const (
	TypeReload = "reload"
	TypeError  = "error"
)

// Path the hub is mounted on by Serve.
const Path = "/livereload"

const (
	sendBuffer   = 64
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
)

// Message is one notification broadcast to every client.
type Message struct {
	Type       string    `json:"type"`
	Resources  []string  `json:"resources,omitempty"`
	Generation string    `json:"generation,omitempty"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	addr string
}

// Hub tracks connected clients and fans broadcasts out to them. The zero
// value is not usable; create one with NewHub.
type Hub struct {
	allowedOrigins []string
	logger         logging.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}

	register   chan *client
	unregister chan *client
	broadcast  chan []byte

	ctx          context.Context
	cancel       context.CancelFunc
	shutdownOnce sync.Once
}

// NewHub creates a hub and starts its dispatch loop. Browser connections
// must carry an Origin listed in allowedOrigins; requests without an Origin
// header come from non-browser tools and are accepted.
func NewHub(allowedOrigins []string, logger logging.Logger) *Hub {
	if logger == nil {
		logger = logging.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())

	h := &Hub{
		allowedOrigins: allowedOrigins,
		logger:         logger.WithComponent("livereload"),
		clients:        make(map[*client]struct{}),
		register:       make(chan *client, 16),
		unregister:     make(chan *client, 16),
		broadcast:      make(chan []byte, 64),
		ctx:            ctx,
		cancel:         cancel,
	}
	go h.run()
	return h
}

// ServeHTTP upgrades the request to a WebSocket connection and registers
// the client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.ctx.Err() != nil {
		http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
		return
	}

	if origin := r.Header.Get("Origin"); origin != "" {
		if err := validation.ValidateOrigin(origin, h.allowedOrigins); err != nil {
			h.logger.Warn(r.Context(), err, "Rejected live reload connection",
				"remote", r.RemoteAddr)
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// origins were checked above against the configured allowlist
		OriginPatterns:  []string{"*"},
		CompressionMode: websocket.CompressionDisabled,
	})
	if err != nil {
		h.logger.Warn(r.Context(), err, "WebSocket upgrade failed", "remote", r.RemoteAddr)
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, sendBuffer),
		addr: r.RemoteAddr,
	}

	select {
	case h.register <- c:
	case <-h.ctx.Done():
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug(h.ctx, "Live reload client connected", "remote", c.addr, "clients", count)

		case c := <-h.unregister:
			h.remove(c)

		case data := <-h.broadcast:
			h.mu.RLock()
			var slow []*client
			for c := range h.clients {
				select {
				case c.send <- data:
				default:
					slow = append(slow, c)
				}
			}
			h.mu.RUnlock()
			for _, c := range slow {
				h.logger.Warn(h.ctx, nil, "Dropping slow live reload client", "remote", c.addr)
				h.remove(c)
			}

		case <-h.ctx.Done():
			return
		}
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.send)
	}
	count := len(h.clients)
	h.mu.Unlock()

	if ok {
		h.logger.Debug(h.ctx, "Live reload client disconnected", "remote", c.addr, "clients", count)
	}
}

// readPump discards client messages and returns when the connection closes.
func (h *Hub) readPump(c *client) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.ctx.Done():
		}
		_ = c.conn.CloseNow()
	}()

	for {
		if _, _, err := c.conn.Read(h.ctx); err != nil {
			if status := websocket.CloseStatus(err); status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && h.ctx.Err() == nil {
				h.logger.Debug(h.ctx, "Live reload read ended", "remote", c.addr, "error", err)
			}
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				_ = c.conn.Close(websocket.StatusNormalClosure, "")
				return
			}
			ctx, cancel := context.WithTimeout(h.ctx, writeTimeout)
			err := c.conn.Write(ctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				h.logger.Debug(h.ctx, "Live reload write failed", "remote", c.addr, "error", err)
				_ = c.conn.CloseNow()
				return
			}

		case <-ticker.C:
			ctx, cancel := context.WithTimeout(h.ctx, writeTimeout)
			err := c.conn.Ping(ctx)
			cancel()
			if err != nil {
				_ = c.conn.CloseNow()
				return
			}

		case <-h.ctx.Done():
			_ = c.conn.Close(websocket.StatusGoingAway, "server shutting down")
			return
		}
	}
}

// Broadcast queues msg for every connected client. A zero Timestamp is set
// to the current time.
func (h *Hub) Broadcast(msg Message) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding live reload message: %w", err)
	}

	select {
	case h.broadcast <- data:
		return nil
	case <-h.ctx.Done():
		return fmt.Errorf("live reload hub is shut down")
	default:
		return fmt.Errorf("live reload broadcast queue is full")
	}
}

// Reload broadcasts a reload message naming the recompiled resources.
func (h *Hub) Reload(generation string, resources []string) error {
	return h.Broadcast(Message{Type: TypeReload, Generation: generation, Resources: resources})
}

// ReportError broadcasts a compile failure for resource.
func (h *Hub) ReportError(resource string, cause error) error {
	return h.Broadcast(Message{Type: TypeError, Resources: []string{resource}, Error: cause.Error()})
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Shutdown stops the dispatch loop and closes every client connection.
func (h *Hub) Shutdown() {
	h.shutdownOnce.Do(func() {
		h.cancel()

		h.mu.Lock()
		for c := range h.clients {
			delete(h.clients, c)
			close(c.send)
		}
		h.mu.Unlock()

		h.logger.Info(context.Background(), "Live reload hub shut down")
	})
}

// Serve listens on addr and serves the hub at Path until ctx is done.
func (h *Hub) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle(Path, h)

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		h.logger.Info(ctx, "Live reload listening", "addr", addr, "path", Path)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		h.Shutdown()
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
		h.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

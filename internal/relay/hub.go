// Package relay pushes detection events to display clients over websocket
// and answers their requests.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/recguard/internal/domain"
)

// Message ops.
const (
	OpGetDetectionStatus = "get-detection-status"
	OpToggleDetection    = "toggle-detection"
	OpCheckRecordingNow  = "check-recording-now"
	OpLogSecurityEvent   = "log-security-event"
	OpRecordingDetected  = "recording-detected"
)

const (
	sendBuffer   = 16
	writeTimeout = 5 * time.Second
	requestLimit = 64 * 1024
)

// Operations is the host surface exposed to clients.
type Operations interface {
	GetDetectionStatus() bool
	ToggleDetection(enable bool) bool
	CheckRecordingNow(ctx context.Context) domain.DetectionResult
	LogSecurityEvent(payload map[string]any) domain.LogResult
}

// Request is a client to hub message.
type Request struct {
	Op   string          `json:"op"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Response answers a Request, or carries a pushed event when ID is empty.
type Response struct {
	Op     string `json:"op"`
	ID     string `json:"id,omitempty"`
	OK     bool   `json:"ok"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

type toggleData struct {
	Enable bool `json:"enable"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.send)
	})
}

// Hub implements domain.AlertSink for websocket clients.
type Hub struct {
	ops      Operations
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
	server  *http.Server
}

// NewHub creates a hub answering requests with ops.
func NewHub(ops Operations, logger *zap.Logger) *Hub {
	return &Hub{
		ops:    ops,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: loopbackOrigin,
		},
		clients: make(map[*client]struct{}),
	}
}

// loopbackOrigin admits non-browser clients (no Origin), file:// pages
// ("null") and pages served from a loopback host. Any other web page is refused.
func loopbackOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || origin == "null" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	host := u.Hostname()
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// Live reports whether the hub still accepts events.
func (h *Hub) Live() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.closed
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Publish pushes a recording-detected event to every client.
// Clients whose buffer is full are disconnected.
func (h *Hub) Publish(event domain.DetectionEvent) error {
	msg, err := json.Marshal(Response{Op: OpRecordingDetected, OK: true, Result: event})
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return errors.New("relay hub closed")
	}
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.logger.Warn("relay client too slow, disconnecting")
			delete(h.clients, c)
			c.close()
		}
	}
	return nil
}

// ServeHTTP upgrades the connection and serves one client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("relay handshake refused",
			zap.String("origin", r.Header.Get("Origin")),
			zap.Error(err))
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	h.logger.Debug("relay client connected", zap.String("remote", r.RemoteAddr))

	go h.writeLoop(c)
	h.readLoop(r.Context(), c)
}

func (h *Hub) readLoop(ctx context.Context, c *client) {
	defer h.drop(c)

	c.conn.SetReadLimit(requestLimit)
	for {
		var req Request
		if err := c.conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("relay client read failed", zap.Error(err))
			}
			return
		}

		resp := h.handle(ctx, req)
		msg, err := json.Marshal(resp)
		if err != nil {
			h.logger.Warn("failed to encode response", zap.String("op", req.Op), zap.Error(err))
			continue
		}
		if !h.enqueue(c, msg) {
			return
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	defer c.conn.Close()

	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.logger.Debug("relay client write failed", zap.Error(err))
			h.drop(c)
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (h *Hub) enqueue(c *client, msg []byte) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		delete(h.clients, c)
		c.close()
		return false
	}
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
	}
}

// handle maps one request onto the host operations.
func (h *Hub) handle(ctx context.Context, req Request) Response {
	resp := Response{Op: req.Op, ID: req.ID, OK: true}

	switch req.Op {
	case OpGetDetectionStatus:
		resp.Result = h.ops.GetDetectionStatus()

	case OpToggleDetection:
		var data toggleData
		if err := json.Unmarshal(req.Data, &data); err != nil {
			return Response{Op: req.Op, ID: req.ID, Error: "invalid toggle data: " + err.Error()}
		}
		resp.Result = h.ops.ToggleDetection(data.Enable)

	case OpCheckRecordingNow:
		resp.Result = h.ops.CheckRecordingNow(ctx)

	case OpLogSecurityEvent:
		var payload map[string]any
		if len(req.Data) > 0 {
			if err := json.Unmarshal(req.Data, &payload); err != nil {
				return Response{Op: req.Op, ID: req.ID, Error: "invalid event payload: " + err.Error()}
			}
		}
		result := h.ops.LogSecurityEvent(payload)
		resp.OK = result.Success
		resp.Result = result
		resp.Error = result.Error

	default:
		return Response{Op: req.Op, ID: req.ID, Error: fmt.Sprintf("unknown op %q", req.Op)}
	}
	return resp
}

// ListenAndServe serves the hub on addr at /ws until ctx is done.
func (h *Hub) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return h.Serve(ctx, ln)
}

// Serve serves the hub on ln until ctx is done, then closes every client.
func (h *Hub) Serve(ctx context.Context, ln net.Listener) error {
	mux := http.NewServeMux()
	mux.Handle("/ws", h)

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	h.mu.Lock()
	h.server = srv
	h.mu.Unlock()

	h.logger.Info("relay listening", zap.String("addr", ln.Addr().String()))

	errc := make(chan error, 1)
	go func() {
		errc <- srv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		h.Close()
		<-errc
		return nil
	case err := <-errc:
		h.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Close disconnects every client and stops accepting events.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		c.close()
	}
	srv := h.server
	h.mu.Unlock()

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
}

// Ensure Hub implements domain.AlertSink.
var _ domain.AlertSink = (*Hub)(nil)

package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/vyrodovalexey/avpdp/internal/audit"
	"github.com/vyrodovalexey/avpdp/internal/observability"
)

// Stream hub defaults.
const (
	// streamSendBuffer is the per-client outbound queue size.
	streamSendBuffer = 64

	// streamWriteTimeout bounds a single websocket write.
	streamWriteTimeout = 10 * time.Second

	// streamPingInterval is how often idle clients are pinged.
	streamPingInterval = 30 * time.Second

	// streamPongTimeout is how long a client may go without a pong.
	streamPongTimeout = 60 * time.Second
)

// streamClient is one connected websocket subscriber.
type streamClient struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

// close shuts the client down at most once.
func (c *streamClient) close() {
	c.once.Do(func() {
		close(c.send)
	})
}

// StreamHub broadcasts audit records to websocket subscribers. It is an
// audit sink: every decision's record fans out to all connected clients.
// A client that cannot keep up is evicted rather than allowed to stall
// the broadcast.
type StreamHub struct {
	upgrader websocket.Upgrader
	logger   observability.Logger

	mu      sync.RWMutex
	clients map[*streamClient]struct{}
	closed  bool
}

// StreamHubOption is a functional option for the stream hub.
type StreamHubOption func(*StreamHub)

// WithStreamLogger sets the logger for the stream hub.
func WithStreamLogger(logger observability.Logger) StreamHubOption {
	return func(h *StreamHub) {
		h.logger = logger.Named("audit.stream")
	}
}

// NewStreamHub creates a new stream hub.
func NewStreamHub(opts ...StreamHubOption) *StreamHub {
	h := &StreamHub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		logger:  observability.NopLogger(),
		clients: make(map[*streamClient]struct{}),
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// Name returns the sink name.
func (h *StreamHub) Name() string {
	return "stream"
}

// Write broadcasts a record to all connected clients. Slow clients are
// evicted; the broadcast itself never blocks.
func (h *StreamHub) Write(ctx context.Context, record *audit.Record) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}

	var slow []*streamClient

	h.mu.RLock()
	for client := range h.clients {
		select {
		case client.send <- payload:
		default:
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range slow {
		h.logger.Warn("evicting slow audit stream client",
			observability.String("remote_addr", client.conn.RemoteAddr().String()),
		)
		h.remove(client)
	}

	return nil
}

// Close disconnects all clients.
func (h *StreamHub) Close() error {
	h.mu.Lock()
	h.closed = true
	clients := make([]*streamClient, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.clients = make(map[*streamClient]struct{})
	h.mu.Unlock()

	for _, client := range clients {
		client.close()
	}
	return nil
}

// ClientCount returns the number of connected subscribers.
func (h *StreamHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Handle upgrades an HTTP request to a websocket subscription.
func (h *StreamHub) Handle(c *gin.Context) {
	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "stream closed"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", observability.Error(err))
		return
	}

	client := &streamClient{
		conn: conn,
		send: make(chan []byte, streamSendBuffer),
	}

	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()

	h.logger.Debug("audit stream client connected",
		observability.String("remote_addr", conn.RemoteAddr().String()),
	)

	go h.writePump(client)
	go h.readPump(client)
}

// writePump forwards queued records to the client and pings it on idle.
func (h *StreamHub) writePump(client *streamClient) {
	ticker := time.NewTicker(streamPingInterval)
	defer func() {
		ticker.Stop()
		_ = client.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-client.send:
			_ = client.conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			if !ok {
				_ = client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				h.remove(client)
				return
			}

		case <-ticker.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(client)
				return
			}
		}
	}
}

// readPump drains client frames so control messages are processed, and
// tears the client down when the connection drops.
func (h *StreamHub) readPump(client *streamClient) {
	defer h.remove(client)

	client.conn.SetReadLimit(512)
	_ = client.conn.SetReadDeadline(time.Now().Add(streamPongTimeout))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(streamPongTimeout))
	})

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// remove unregisters and closes a client.
func (h *StreamHub) remove(client *streamClient) {
	h.mu.Lock()
	_, ok := h.clients[client]
	if ok {
		delete(h.clients, client)
	}
	h.mu.Unlock()

	if ok {
		client.close()
	}
}

// Ensure StreamHub implements audit.Sink.
var _ audit.Sink = (*StreamHub)(nil)

package ingest

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tablewise/insights/internal/domain/friction"
	"github.com/tablewise/insights/internal/infrastructure/monitoring"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 32
)

// Hub fans classified friction events out to websocket alert subscribers.
// Delivery is best-effort: a client that cannot keep up is dropped rather
// than allowed to stall the feed.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *zap.Logger
	metrics  *monitoring.MetricsCollector

	mu      sync.Mutex
	clients map[*alertClient]struct{}
}

type alertClient struct {
	tenantID string
	conn     *websocket.Conn
	send     chan friction.Event
}

// NewHub creates an alert hub. metrics may be nil.
func NewHub(logger *zap.Logger, metrics *monitoring.MetricsCollector) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger:  logger.Named("alert-hub"),
		metrics: metrics,
		clients: make(map[*alertClient]struct{}),
	}
}

// ServeHTTP upgrades the connection and streams the tenant's friction events
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	tenantID := TenantFromContext(r.Context())
	if tenantID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("Websocket upgrade failed", zap.Error(err))
		return
	}

	client := &alertClient{
		tenantID: tenantID,
		conn:     conn,
		send:     make(chan friction.Event, sendBufferSize),
	}
	h.register(client)

	go h.writeLoop(client)
	go h.readLoop(client)
}

// Broadcast queues an event for every subscriber of the tenant. Clients with
// a full send buffer are dropped.
func (h *Hub) Broadcast(tenantID string, event friction.Event) {
	h.mu.Lock()
	var stale []*alertClient
	for client := range h.clients {
		if client.tenantID != tenantID {
			continue
		}
		select {
		case client.send <- event:
		default:
			stale = append(stale, client)
		}
	}
	h.mu.Unlock()

	for _, client := range stale {
		h.logger.Warn("Dropping slow alert subscriber", zap.String("tenant_id", client.tenantID))
		h.unregister(client)
	}
}

// ClientCount returns the number of connected subscribers
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every subscriber
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*alertClient, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.Unlock()
	for _, client := range clients {
		h.unregister(client)
	}
}

func (h *Hub) register(client *alertClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.WSClientConnected(1)
	}
	h.logger.Info("Alert subscriber connected", zap.String("tenant_id", client.tenantID))
}

func (h *Hub) unregister(client *alertClient) {
	h.mu.Lock()
	_, ok := h.clients[client]
	if ok {
		delete(h.clients, client)
		close(client.send)
	}
	h.mu.Unlock()
	if !ok {
		return
	}
	client.conn.Close()
	if h.metrics != nil {
		h.metrics.WSClientConnected(-1)
	}
}

func (h *Hub) writeLoop(client *alertClient) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case event, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteJSON(event); err != nil {
				h.unregister(client)
				return
			}
		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.unregister(client)
				return
			}
		}
	}
}

// readLoop discards inbound frames; its job is noticing disconnects and
// keeping the pong deadline fresh
func (h *Hub) readLoop(client *alertClient) {
	defer h.unregister(client)
	client.conn.SetReadLimit(512)
	client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

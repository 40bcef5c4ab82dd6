// Package notify fans status-change notifications out to connected
// client dashboards over WebSocket, filtered per client_id rather than
// broadcast to everyone — resolving the open question in spec.md §9.
package notify

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub is the process-local mapping from client_id to its open sessions,
// mutated only on accept/disconnect and iterated on send. Mutations are
// guarded by a single mutex (spec.md §5).
type Hub struct {
	mu       sync.Mutex
	sessions map[string]map[*websocket.Conn]struct{}
	logger   *zap.Logger
}

// NewHub builds an empty Hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		sessions: make(map[string]map[*websocket.Conn]struct{}),
		logger:   logger,
	}
}

// ServeWS upgrades the request to a WebSocket and registers the
// connection under clientID until it disconnects.
func (h *Hub) ServeWS(clientID string, w http.ResponseWriter, r *http.Request) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	h.register(clientID, conn)
	go h.readLoop(clientID, conn)
	return nil
}

func (h *Hub) register(clientID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sessions[clientID] == nil {
		h.sessions[clientID] = make(map[*websocket.Conn]struct{})
	}
	h.sessions[clientID][conn] = struct{}{}
}

func (h *Hub) unregister(clientID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.sessions[clientID]; ok {
		delete(set, conn)
		if len(set) == 0 {
			delete(h.sessions, clientID)
		}
	}
	conn.Close()
}

// readLoop exists only to detect disconnects — the hub never reads
// client-sent frames.
func (h *Hub) readLoop(clientID string, conn *websocket.Conn) {
	defer h.unregister(clientID, conn)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Send delivers payload to every open session for clientID, per-client
// filtered rather than broadcast. Dead sessions discovered during send
// are pruned before continuing.
func (h *Hub) Send(clientID string, payload []byte) {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.sessions[clientID]))
	for c := range h.sessions[clientID] {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, conn := range conns {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.logger.Warn("dropping dead session", zap.String("client_id", clientID), zap.Error(err))
			h.unregister(clientID, conn)
		}
	}
}

// Close disconnects every open session, sending a close frame first, for
// graceful shutdown (spec.md §5).
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for clientID, set := range h.sessions {
		for conn := range set {
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutting down"))
			conn.Close()
		}
		delete(h.sessions, clientID)
	}
}

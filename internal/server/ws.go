// Package server provides the HTTP server for the Mudra hand tracking system.
package server

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/ayusman/mudra/internal/hand"
	"github.com/ayusman/mudra/internal/mapping"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// StateHandler pushes every assembled hand state to connected WebSocket
// clients and accepts render-surface resize messages from them.
type StateHandler struct {
	mapper  *mapping.Mapper
	clients map[*websocket.Conn]bool
	mu      sync.RWMutex
}

// NewStateHandler creates a new StateHandler subscribed to the given hand
// state manager.
func NewStateHandler(hands *hand.Manager, mapper *mapping.Mapper) *StateHandler {
	h := &StateHandler{
		mapper:  mapper,
		clients: make(map[*websocket.Conn]bool),
	}
	hands.Subscribe(h.broadcast)
	return h
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *StateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	h.mu.Lock()
	h.clients[conn] = true
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
	}()

	// Read loop: keeps the connection registered and ingests client messages
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		h.handleMessage(data)
	}
}

// clientMessage is the envelope for messages sent by clients.
type clientMessage struct {
	Type   string `json:"type"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// handleMessage processes one client message. Resize messages carry new
// render-surface dimensions for the mapper; anything else is ignored.
func (h *StateHandler) handleMessage(data []byte) {
	var msg clientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}

	if msg.Type == "resize" && h.mapper != nil {
		h.mapper.Resize(mapping.Dims{Width: msg.Width, Height: msg.Height})
	}
}

// broadcast sends one hand state to all connected clients.
func (h *StateHandler) broadcast(state hand.State) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.clients) == 0 {
		return
	}

	msg, err := json.Marshal(state)
	if err != nil {
		return
	}

	for conn := range h.clients {
		conn.WriteMessage(websocket.TextMessage, msg)
	}
}

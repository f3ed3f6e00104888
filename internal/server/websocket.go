package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	stdsync "sync"

	"rollbook/internal/ledger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type wsHub struct {
	mu     stdsync.Mutex
	groups map[uint]map[*websocket.Conn]struct{}
}

func newWSHub() *wsHub {
	return &wsHub{
		groups: make(map[uint]map[*websocket.Conn]struct{}),
	}
}

func (h *wsHub) Add(gameID uint, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	group := h.groups[gameID]
	if group == nil {
		group = make(map[*websocket.Conn]struct{})
		h.groups[gameID] = group
	}
	group[conn] = struct{}{}
}

func (h *wsHub) Remove(gameID uint, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	group := h.groups[gameID]
	if group == nil {
		return
	}
	delete(group, conn)
	_ = conn.Close()
	if len(group) == 0 {
		delete(h.groups, gameID)
	}
}

func (h *wsHub) Send(conn *websocket.Conn, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	_ = conn.WriteMessage(websocket.TextMessage, data)
}

// Broadcast sends to every connection in the game's group, the message
// origin included: the sender's refresh path is identical to a remote
// client's.
func (h *wsHub) Broadcast(gameID uint, payload any) {
	h.mu.Lock()
	group := h.groups[gameID]
	conns := make([]*websocket.Conn, 0, len(group))
	for conn := range group {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	for _, conn := range conns {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.Remove(gameID, conn)
		}
	}
}

// clientFrame is an inbound websocket message. Clients only send hint
// frames; everything else flows through the HTTP API.
type clientFrame struct {
	Type string      `json:"type"`
	Hint ledger.Hint `json:"hint"`
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	gameID, ok := parseWebsocketPath(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}
	if _, err := s.store.GetGame(r.Context(), gameID); err != nil {
		http.NotFound(w, r)
		return
	}
	clientID := r.URL.Query().Get("client")
	if clientID == "" {
		clientID = uuid.NewString()
	}
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	log.Printf("ws connected game_id=%d client=%s remote=%s", gameID, clientID, r.RemoteAddr)
	s.ensureCoordinator(gameID)
	s.ws.Add(gameID, conn)
	if view, err := s.currentView(context.Background(), gameID); err == nil {
		s.ws.Send(conn, snapshot(view))
	}
	go s.readWS(gameID, clientID, conn)
}

// readWS consumes inbound frames until the connection drops. Hint frames
// are stamped with the sending client's identity and pushed onto the
// game's broadcast channel, which echoes them back to the sender as well.
func (s *Server) readWS(gameID uint, clientID string, conn *websocket.Conn) {
	defer s.ws.Remove(gameID, conn)
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			log.Printf("ws disconnected game_id=%d client=%s error=%v", gameID, clientID, err)
			return
		}
		var frame clientFrame
		if err := json.Unmarshal(payload, &frame); err != nil {
			continue
		}
		if frame.Type != "hint" {
			continue
		}
		hint := frame.Hint
		hint.Origin = clientID
		if hint.Type == "" {
			hint.Type = ledger.HintRefresh
		}
		if err := s.store.Broadcast(context.Background(), gameID, hint); err != nil {
			log.Printf("hint broadcast failed game_id=%d client=%s error=%v", gameID, clientID, err)
		}
	}
}

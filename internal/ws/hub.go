package ws

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"voicematch-service/internal/models"
	"voicematch-service/internal/observability"
)

// Hub maintains active websocket subscriptions: per-user rooms that carry
// match notices to the non-initiating side, and per-call rooms that carry
// signaling envelopes. Call rooms deliver to every subscriber including
// the envelope's author; self-echo suppression is the receiver's duty.
type Hub struct {
	userRooms    map[string]map[*websocket.Conn]bool
	callRooms    map[uuid.UUID]map[*websocket.Conn]bool
	userConnInfo map[string]map[*websocket.Conn]ConnInfo
	callConnInfo map[uuid.UUID]map[*websocket.Conn]ConnInfo
	mu           sync.RWMutex

	// writeMu serializes outbound writes. Gorilla connections allow only
	// one concurrent writer, and subscribers must observe envelopes of a
	// call in append order.
	writeMu sync.Mutex
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		userRooms:    make(map[string]map[*websocket.Conn]bool),
		callRooms:    make(map[uuid.UUID]map[*websocket.Conn]bool),
		userConnInfo: make(map[string]map[*websocket.Conn]ConnInfo),
		callConnInfo: make(map[uuid.UUID]map[*websocket.Conn]ConnInfo),
	}
}

// AddUserClient registers a websocket connection for match notices.
func (h *Hub) AddUserClient(userID string, conn *websocket.Conn, info ConnInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.userRooms[userID]; !ok {
		h.userRooms[userID] = make(map[*websocket.Conn]bool)
	}
	h.userRooms[userID][conn] = true
	if _, ok := h.userConnInfo[userID]; !ok {
		h.userConnInfo[userID] = make(map[*websocket.Conn]ConnInfo)
	}
	h.userConnInfo[userID][conn] = info
}

// RemoveUserClient removes a match-notice websocket connection.
func (h *Hub) RemoveUserClient(userID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.userRooms[userID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.userRooms, userID)
		}
	}
	if infos, ok := h.userConnInfo[userID]; ok {
		delete(infos, conn)
		if len(infos) == 0 {
			delete(h.userConnInfo, userID)
		}
	}
}

// NotifyMatch pushes a match notice to every connection of the user.
func (h *Hub) NotifyMatch(userID string, notice models.MatchNotice) {
	h.mu.RLock()
	conns := h.userRooms[userID]
	h.mu.RUnlock()

	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	payload, _ := json.Marshal(notice)
	for conn := range conns {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			log.Error().Err(err).Str("user_id", userID).Msg("websocket write error")
			conn.Close()
			h.RemoveUserClient(userID, conn)
			observability.IncWSEvent("match", "ws_error")
		}
	}
}

// AddCallClient registers a websocket connection to a call room.
func (h *Hub) AddCallClient(callID uuid.UUID, conn *websocket.Conn, info ConnInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.callRooms[callID]; !ok {
		h.callRooms[callID] = make(map[*websocket.Conn]bool)
	}
	h.callRooms[callID][conn] = true
	if _, ok := h.callConnInfo[callID]; !ok {
		h.callConnInfo[callID] = make(map[*websocket.Conn]ConnInfo)
	}
	h.callConnInfo[callID][conn] = info
}

// RemoveCallClient removes a call websocket connection.
func (h *Hub) RemoveCallClient(callID uuid.UUID, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.callRooms[callID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.callRooms, callID)
		}
	}
	if infos, ok := h.callConnInfo[callID]; ok {
		delete(infos, conn)
		if len(infos) == 0 {
			delete(h.callConnInfo, callID)
		}
	}
}

// BroadcastSignal delivers an envelope to all subscribers of the call.
func (h *Hub) BroadcastSignal(callID uuid.UUID, env models.SignalEnvelope) {
	h.mu.RLock()
	conns := h.callRooms[callID]
	h.mu.RUnlock()

	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	event := models.SignalEvent{Type: "signal", Envelope: &env}
	payload, _ := json.Marshal(event)
	for conn := range conns {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			log.Error().Err(err).Str("call_id", callID.String()).Msg("websocket write error")
			conn.Close()
			h.RemoveCallClient(callID, conn)
			observability.IncWSEvent("call", "ws_error")
		}
	}
}

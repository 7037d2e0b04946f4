package ws

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"

	"voicematch-service/internal/identity"
	"voicematch-service/internal/observability"
	"voicematch-service/internal/repositories"
)

// SignalWebSocketHandler serves the per-call subscription carrying
// signaling envelopes. Delivery includes the author's own envelopes;
// receivers filter by sender id.
type SignalWebSocketHandler struct {
	hub      *Hub
	callRepo repositories.CallRepository
	idClient identity.Client
}

// NewSignalWebSocketHandler constructs a SignalWebSocketHandler.
func NewSignalWebSocketHandler(hub *Hub, callRepo repositories.CallRepository, idClient identity.Client) *SignalWebSocketHandler {
	return &SignalWebSocketHandler{hub: hub, callRepo: callRepo, idClient: idClient}
}

// Handle upgrades the connection and registers the client to the call room.
func (h *SignalWebSocketHandler) Handle(c *gin.Context) {
	callID, err := uuid.Parse(c.Param("call_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid call id"})
		return
	}

	ctx, span := otel.Tracer("voicematch-service/ws").Start(c.Request.Context(), "ws.signal.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID, err := validateWSToken(c, h.idClient)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	member, err := h.callRepo.IsParticipant(c.Request.Context(), callID, userID)
	if err != nil || !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a call participant"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      userID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	h.hub.AddCallClient(callID, conn, info)

	observability.IncWSActive("call")
	observability.IncWSEvent("call", "ws_connect")
	log.Info().
		Str("call_id", callID.String()).
		Str("user_id", userID).
		Str("conn_id", info.ConnID).
		Msg("signal subscription opened")

	go func() {
		defer func() {
			h.hub.RemoveCallClient(callID, conn)
			observability.DecWSActive("call")
			observability.IncWSEvent("call", "ws_disconnect")
			log.Info().
				Str("call_id", callID.String()).
				Str("user_id", userID).
				Str("conn_id", info.ConnID).
				Dur("duration", time.Since(info.ConnectedAt)).
				Msg("signal subscription closed")
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					observability.IncWSEvent("call", "ws_error")
				}
				return
			}
		}
	}()
}

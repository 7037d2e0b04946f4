package ws

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"

	"voicematch-service/internal/identity"
	"voicematch-service/internal/observability"
)

// MatchWebSocketHandler serves the per-user subscription that delivers
// match notices to the side that did not run the winning findPartner.
type MatchWebSocketHandler struct {
	hub      *Hub
	idClient identity.Client
}

// NewMatchWebSocketHandler constructs a MatchWebSocketHandler.
func NewMatchWebSocketHandler(hub *Hub, idClient identity.Client) *MatchWebSocketHandler {
	return &MatchWebSocketHandler{hub: hub, idClient: idClient}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle upgrades the connection and registers the client for match notices.
func (h *MatchWebSocketHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("voicematch-service/ws").Start(c.Request.Context(), "ws.match.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID, err := validateWSToken(c, h.idClient)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
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
	h.hub.AddUserClient(userID, conn, info)

	observability.IncWSActive("match")
	observability.IncWSEvent("match", "ws_connect")
	log.Info().Str("user_id", userID).Str("conn_id", info.ConnID).Msg("match subscription opened")

	go func() {
		defer func() {
			h.hub.RemoveUserClient(userID, conn)
			observability.DecWSActive("match")
			observability.IncWSEvent("match", "ws_disconnect")
			log.Info().
				Str("user_id", userID).
				Str("conn_id", info.ConnID).
				Dur("duration", time.Since(info.ConnectedAt)).
				Msg("match subscription closed")
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					observability.IncWSEvent("match", "ws_error")
				}
				return
			}
		}
	}()
}

// validateWSToken accepts the token from the Authorization header or,
// since browser websocket clients cannot set headers, a token query param.
func validateWSToken(c *gin.Context, idClient identity.Client) (string, error) {
	token := c.GetHeader("Authorization")
	if token == "" {
		token = c.Query("token")
		if token != "" {
			token = "Bearer " + token
		}
	}

	parts := strings.Split(token, " ")
	if len(parts) == 2 {
		return idClient.ValidateToken(c.Request.Context(), parts[1])
	}
	return "", fmt.Errorf("invalid token")
}

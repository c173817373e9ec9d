package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/CDeX-Labs/CDeX-Contest-Engine/internal/auth"
	"github.com/CDeX-Labs/CDeX-Contest-Engine/internal/hub"
	"github.com/CDeX-Labs/CDeX-Contest-Engine/pkg/protocol"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const presenceRefreshInterval = 2 * time.Minute

// Presence is optional; without Redis nobody is reported online.
type Presence interface {
	SetOnline(ctx context.Context, userID string) error
	SetOffline(ctx context.Context, userID string) error
	Refresh(ctx context.Context, userID string) error
}

type WebSocketHandler struct {
	hub      *hub.Hub
	presence Presence
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

// NewWebSocketHandler accepts upgrades from the listed origins. An empty
// list or "*" accepts any origin.
func NewWebSocketHandler(h *hub.Hub, p Presence, allowedOrigins []string, logger zerolog.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		hub:      h,
		presence: p,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		logger: logger.With().Str("component", "ws-handler").Logger(),
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || len(set) == 0 || set[origin]
	}
}

func (h *WebSocketHandler) Handle(c *gin.Context) {
	claims := auth.ClaimsFrom(c)
	if claims == nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}

	clientID := uuid.New().String()
	userID := claims.GetUserID()

	client := hub.NewClient(clientID, userID, claims.IsAdmin(), conn, h.hub, h.logger)
	h.hub.Register(client)

	if connected, err := protocol.NewConnected(userID, clientID); err == nil {
		h.hub.Send(client, connected)
	}

	if h.presence != nil {
		if err := h.presence.SetOnline(c.Request.Context(), userID); err != nil {
			h.logger.Warn().Err(err).Str("userId", userID).Msg("Failed to set presence")
		}
		go h.refreshPresence(client)
	}

	h.logger.Info().
		Str("clientId", clientID).
		Str("userId", userID).
		Bool("admin", client.Admin).
		Str("remoteAddr", c.Request.RemoteAddr).
		Msg("WebSocket connection established")

	go client.WritePump()
	go client.ReadPump()
}

func (h *WebSocketHandler) refreshPresence(client *hub.Client) {
	ticker := time.NewTicker(presenceRefreshInterval)
	defer ticker.Stop()
	for range ticker.C {
		if client.IsClosed() {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := h.presence.Refresh(ctx, client.UserID); err != nil {
			h.logger.Debug().Err(err).Str("userId", client.UserID).Msg("Failed to refresh presence")
		}
		cancel()
	}
}

// OnDisconnect clears presence once the user's last connection on this
// instance is gone.
func (h *WebSocketHandler) OnDisconnect(c *hub.Client, remaining int) {
	if h.presence == nil || remaining > 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.presence.SetOffline(ctx, c.UserID); err != nil {
		h.logger.Warn().Err(err).Str("userId", c.UserID).Msg("Failed to clear presence")
	}
}

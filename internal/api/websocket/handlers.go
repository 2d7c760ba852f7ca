package websocket

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/bidhaus/auction-backend/internal/infrastructure/events"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Browsers enforce same-origin for credentials; auction streams
		// are public data so cross-origin subscribers are accepted.
		return true
	},
}

// Handler upgrades connections and attaches them to the event hub
type Handler struct {
	hub    *events.Hub
	logger *zap.Logger
}

// NewHandler creates the WebSocket handler
func NewHandler(hub *events.Hub, logger *zap.Logger) *Handler {
	return &Handler{hub: hub, logger: logger}
}

// UserIDResolver extracts the caller identity from the request, when there
// is one. Anonymous spectators get a zero UUID.
type UserIDResolver func(r *http.Request) uuid.UUID

// HandleAuctionEvents upgrades the connection and starts the client pumps
func (h *Handler) HandleAuctionEvents(resolveUser UserIDResolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var userID uuid.UUID
		if resolveUser != nil {
			userID = resolveUser(r)
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.logger.Error("websocket upgrade failed",
				zap.Error(err),
				zap.String("remote_addr", r.RemoteAddr))
			return
		}

		client := NewAuctionClient(conn, h.hub, userID, h.logger)

		h.logger.Info("websocket client connected",
			zap.String("client_id", client.ID.String()),
			zap.String("remote_addr", r.RemoteAddr))

		go client.WritePump()
		go client.ReadPump()
	}
}

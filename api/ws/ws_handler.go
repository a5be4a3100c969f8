package ws

import (
	"context"
	"net/http"
	"slices"
	"strings"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zlnvch/collabdocs/collab"
	"github.com/zlnvch/collabdocs/logger"
	"github.com/zlnvch/collabdocs/metrics"
	"github.com/zlnvch/collabdocs/models"
	"github.com/zlnvch/collabdocs/service"
)

const subprotocol = "collabdocs-v1"

type Handler struct {
	Service     *service.Service
	Gate        *collab.Gate
	Hub         *collab.Hub
	Coordinator *collab.Coordinator
	Options     ClientOptions

	log *logger.ContextLogger
}

func NewHandler(svc *service.Service, gate *collab.Gate, hub *collab.Hub, coordinator *collab.Coordinator, options ClientOptions, log *zap.Logger) *Handler {
	return &Handler{
		Service:     svc,
		Gate:        gate,
		Hub:         hub,
		Coordinator: coordinator,
		Options:     options,
		log:         logger.NewContextLogger(log),
	}
}

// NewWsUpgrader accepts any origin when allowedOrigins is empty.
func (h *Handler) NewWsUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			return slices.Contains(allowedOrigins, r.Header.Get("Origin"))
		},
		Subprotocols: []string{subprotocol},
	}
}

// tokenFromRequest reads the credential from the second
// Sec-WebSocket-Protocol entry, falling back to the token query parameter.
func tokenFromRequest(r *http.Request) string {
	protocols := strings.Split(r.Header.Get("Sec-WebSocket-Protocol"), ",")
	if len(protocols) == 2 {
		return strings.TrimSpace(protocols[1])
	}
	return r.URL.Query().Get("token")
}

// ServeWS handles authenticated websocket requests from the peer.
func (h *Handler) ServeWS(wsUpgrader websocket.Upgrader, w http.ResponseWriter, r *http.Request, shutdownCtx context.Context) {
	token := tokenFromRequest(r)
	identity, authErr := h.Gate.Authorize(r.Context(), token)

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.LogWarn(r.Context(), "failed to upgrade ws connection", zap.Error(err))
		return
	}

	// Must upgrade the connection in order to be able to send custom close message
	if authErr != nil {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "Unauthenticated"),
		)
		conn.Close()
		return
	}

	client := NewClient(conn, token, identity, h.HandleWsMessage, h.Options, h.log.Logger())
	if err := h.Gate.Admit(client); err != nil {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "Server shutting down"),
		)
		conn.Close()
		return
	}
	client.OnClose = func(c *Client) { h.Gate.Release(c) }
	metrics.WebsocketConnections.Inc()

	go client.ReadPump()
	go client.WritePump(shutdownCtx)
}

// ServePublicWS serves the anonymous account flows: login, register and
// password reset.
func (h *Handler) ServePublicWS(wsUpgrader websocket.Upgrader, w http.ResponseWriter, r *http.Request, shutdownCtx context.Context) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.LogWarn(r.Context(), "failed to upgrade ws connection", zap.Error(err))
		return
	}

	client := NewClient(conn, "", models.Identity{}, h.HandlePublicMessage, h.Options, h.log.Logger())
	metrics.WebsocketConnections.Inc()

	go client.ReadPump()
	go client.WritePump(shutdownCtx)
}

package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/shaamilshan/hamme/internal/notify"
	"github.com/shaamilshan/hamme/pkg/log"
	"github.com/shaamilshan/hamme/pkg/middleware"
	"github.com/shaamilshan/hamme/pkg/pubsub"
	"github.com/shaamilshan/hamme/pkg/response"
)

// WSHandler streams a user's matching events over a WebSocket.
type WSHandler struct {
	hub            *notify.Hub
	subscriber     pubsub.Subscriber
	authMiddleware *middleware.AuthMiddleware
	clientCfg      notify.Config
	upgrader       websocket.Upgrader
}

// NewWSHandler creates the notification socket handler. subscriber may be
// nil, in which case the endpoint reports 503.
func NewWSHandler(
	hub *notify.Hub,
	subscriber pubsub.Subscriber,
	authMiddleware *middleware.AuthMiddleware,
	clientCfg notify.Config,
	allowedOrigins []string,
) *WSHandler {
	return &WSHandler{
		hub:            hub,
		subscriber:     subscriber,
		authMiddleware: authMiddleware,
		clientCfg:      clientCfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
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
		return origin == "" || set[origin]
	}
}

// RegisterRoutes registers the socket route.
func (h *WSHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/api/v1/notifications/ws", h.authMiddleware.RequireAuthOrQuery(), h.HandleWebSocket)
}

func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	l := log.Ctx(c.Request.Context())

	if h.subscriber == nil {
		response.ServiceUnavailable(c, "realtime notifications are disabled")
		return
	}
	userID := middleware.GetUserID(c)

	// The subscription outlives the upgrade request.
	ctx, cancel := context.WithCancel(context.Background())
	events, err := h.subscriber.Subscribe(ctx, pubsub.UserEventsChannel(userID))
	if err != nil {
		cancel()
		l.Error().Err(err).Msg("failed to subscribe to user events")
		response.ServiceUnavailable(c, "realtime notifications are unavailable")
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		cancel()
		l.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := notify.NewClient(uuid.New().String(), userID, h.hub, conn, h.clientCfg)
	h.hub.Register(client)
	l.Debug().Str("client_id", client.ID).Msg("notification socket opened")

	go client.WritePump()
	go client.Forward(ctx, events)
	go client.ReadPump(cancel)
}

package ws

import (
	"context"
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"pulsechat-backend/internal/middleware"
	"pulsechat-backend/pkg/config"
	apperrors "pulsechat-backend/pkg/errors"
	"pulsechat-backend/pkg/logger"
	"pulsechat-backend/pkg/response"
)

// Handler upgrades authenticated HTTP requests to realtime connections
type Handler struct {
	controller     *Controller
	upgrader       websocket.Upgrader
	maxConnections int
	sendBuffer     int
	semaphore      chan struct{}
}

// NewHandler creates a websocket handler limited to cfg.MaxConnections
// concurrent connections
func NewHandler(controller *Controller, cfg config.WebSocketConfig) *Handler {
	allowed := slices.Clone(cfg.AllowedOrigins)
	return &Handler{
		controller: controller,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return false
				}
				return slices.Contains(allowed, origin)
			},
		},
		maxConnections: cfg.MaxConnections,
		sendBuffer:     cfg.SendBuffer,
		semaphore:      make(chan struct{}, cfg.MaxConnections),
	}
}

// ServeWS handles GET /v1/ws. The token is read from the token query
// parameter or the Authorization header.
func (h *Handler) ServeWS(c *gin.Context) {
	select {
	case h.semaphore <- struct{}{}:
		defer func() { <-h.semaphore }()
	default:
		logger.Warn("WebSocket connection rejected: max connections reached",
			zap.Int("max_connections", h.maxConnections))
		response.FromError(c, apperrors.ServiceUnavailableError("Server at capacity, please try again later"))
		return
	}

	user, err := h.controller.Authenticate(c.Request.Context(), credential(c))
	if err != nil {
		response.FromError(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("WebSocket upgrade failed",
			zap.String("user_id", user.UserID.String()),
			zap.Error(err))
		return
	}

	client := newClient(conn, user.UserID, h.controller, h.sendBuffer)

	// the request context ends when the handler returns
	ctx := logger.WithConnID(context.WithoutCancel(c.Request.Context()), client.ID())
	logger.FromContext(ctx).Info("WebSocket connected",
		zap.String("user_id", user.UserID.String()))

	h.controller.Attach(ctx, client)

	go client.writePump()
	client.readPump(ctx)

	logger.FromContext(ctx).Info("WebSocket disconnected",
		zap.String("user_id", user.UserID.String()))
}

func credential(c *gin.Context) string {
	if token := c.Query("token"); token != "" {
		return token
	}
	token, _ := middleware.BearerToken(c.GetHeader("Authorization"))
	return token
}

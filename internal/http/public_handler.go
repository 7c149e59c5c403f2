package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chat-dashboard/internal/service"
)

// PublicHandler atiende al widget embebido autenticado por API key.
type PublicHandler struct {
	logger        *zap.Logger
	conversations *service.ConversationService
}

func NewPublicHandler(logger *zap.Logger, conversations *service.ConversationService) *PublicHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PublicHandler{logger: logger, conversations: conversations}
}

// StartConversation maneja POST /public/conversations.
func (h *PublicHandler) StartConversation(c *gin.Context) {
	key, ok := GetAPIKey(c)
	if !ok {
		abortWithError(c, h.logger, "public conversation", service.ErrUnauthenticated)
		return
	}
	res, err := h.conversations.StartPublicConversation(c.Request.Context(), key)
	if err != nil {
		abortWithError(c, h.logger, "public conversation", err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// Pinger verifica una dependencia; *pgxpool.Pool lo implementa.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler responde GET /healthz.
type HealthHandler struct {
	logger *zap.Logger
	db     Pinger
}

func NewHealthHandler(logger *zap.Logger, db Pinger) *HealthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthHandler{logger: logger, db: db}
}

func (h *HealthHandler) Health(c *gin.Context) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			h.logger.Warn("health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

package http

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chat-dashboard/internal/domain"
	"chat-dashboard/internal/service"
	"chat-dashboard/internal/storage"
)

// BotHandler agrupa los endpoints que operan sobre un bot de la organizacion activa.
type BotHandler struct {
	logger        *zap.Logger
	conversations *service.ConversationService
	apiKeys       *service.APIKeyService
	urls          *storage.URLService
}

func NewBotHandler(logger *zap.Logger, conversations *service.ConversationService, apiKeys *service.APIKeyService, urls *storage.URLService) *BotHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BotHandler{
		logger:        logger,
		conversations: conversations,
		apiKeys:       apiKeys,
		urls:          urls,
	}
}

func (h *BotHandler) scope(c *gin.Context) (service.UserOrgBot, bool) {
	scope, ok := GetUserOrgBot(c)
	if !ok {
		abortWithError(c, h.logger, "bot scope", service.ErrUnauthenticated)
	}
	return scope, ok
}

// ConversationToken maneja POST /bots/:botId/conversations/:conversationId/token.
func (h *BotHandler) ConversationToken(c *gin.Context) {
	scope, ok := h.scope(c)
	if !ok {
		return
	}
	var req struct {
		Role string `json:"role" binding:"required,service_role"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		abortInvalidRequest(c, h.logger, "conversation token", err)
		return
	}
	res, err := h.conversations.JoinToken(c.Request.Context(), scope, c.Param("conversationId"), domain.ServiceRole(req.Role))
	if err != nil {
		abortWithError(c, h.logger, "conversation token", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// PresignFile maneja POST /bots/:botId/files/presign.
func (h *BotHandler) PresignFile(c *gin.Context) {
	scope, ok := h.scope(c)
	if !ok {
		return
	}
	var req struct {
		FileName    string `json:"fileName" binding:"required,max=255"`
		ContentType string `json:"contentType" binding:"max=255"`
		Method      string `json:"method" binding:"omitempty,http_method"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		abortInvalidRequest(c, h.logger, "presign", err)
		return
	}
	if h.urls == nil {
		abortWithError(c, h.logger, "presign", fmt.Errorf("%w: storage not configured", service.ErrConfiguration))
		return
	}
	key, err := storage.BotFileKey(scope.OrganizationID, scope.Bot.ID, req.FileName)
	if err != nil {
		abortWithError(c, h.logger, "presign", err)
		return
	}
	ctx := c.Request.Context()
	var signed storage.PresignedURL
	switch strings.ToUpper(req.Method) {
	case "GET":
		signed, err = h.urls.DownloadURL(ctx, key, 0)
	case "DELETE":
		signed, err = h.urls.DeleteURL(ctx, key, 0)
	case "HEAD":
		signed, err = h.urls.HeadURL(ctx, key, 0)
	default:
		signed, err = h.urls.UploadURL(ctx, key, 0)
	}
	if err != nil {
		abortWithError(c, h.logger, "presign", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"url":         signed.URL,
		"method":      signed.Method,
		"key":         signed.Key,
		"contentType": req.ContentType,
		"expiresAt":   signed.ExpiresAt,
	})
}

// CreateAPIKey maneja POST /bots/:botId/api-keys. La llave en claro solo se devuelve aqui.
func (h *BotHandler) CreateAPIKey(c *gin.Context) {
	scope, ok := h.scope(c)
	if !ok {
		return
	}
	var req struct {
		Name string `json:"name" binding:"required,max=100"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		abortInvalidRequest(c, h.logger, "api key", err)
		return
	}
	key, raw, err := h.apiKeys.Create(c.Request.Context(), scope, req.Name)
	if err != nil {
		abortWithError(c, h.logger, "create api key", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"apiKey": key, "key": raw})
}

// ListAPIKeys maneja GET /bots/:botId/api-keys.
func (h *BotHandler) ListAPIKeys(c *gin.Context) {
	scope, ok := h.scope(c)
	if !ok {
		return
	}
	keys, err := h.apiKeys.List(c.Request.Context(), scope)
	if err != nil {
		abortWithError(c, h.logger, "list api keys", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"apiKeys": keys})
}

// RevokeAPIKey maneja DELETE /bots/:botId/api-keys/:keyId.
func (h *BotHandler) RevokeAPIKey(c *gin.Context) {
	scope, ok := h.scope(c)
	if !ok {
		return
	}
	if err := h.apiKeys.Revoke(c.Request.Context(), scope, c.Param("keyId")); err != nil {
		abortWithError(c, h.logger, "revoke api key", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chat-dashboard/internal/domain"
	"chat-dashboard/internal/service"
)

const (
	SessionCookieName     = "auth_token"
	SelectedOrgCookieName = "selected_org_id"
	OrganizationHeader    = "X-Organization-ID"
	APIKeyHeader          = "X-Api-Key"

	userOrgKey    = "auth_user_org"
	userOrgBotKey = "auth_user_org_bot"
	apiKeyKey     = "auth_api_key"
)

// sessionToken lee el bearer token y, si no hay, la cookie de sesion.
func sessionToken(c *gin.Context) string {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if len(header) > len("bearer ") && strings.EqualFold(header[:len("bearer ")], "bearer ") {
		return strings.TrimSpace(header[len("bearer "):])
	}
	if cookie, err := c.Cookie(SessionCookieName); err == nil {
		return strings.TrimSpace(cookie)
	}
	return ""
}

func selectedOrganization(c *gin.Context) string {
	if cookie, err := c.Cookie(SelectedOrgCookieName); err == nil && strings.TrimSpace(cookie) != "" {
		return strings.TrimSpace(cookie)
	}
	return strings.TrimSpace(c.GetHeader(OrganizationHeader))
}

func authRequest(c *gin.Context) service.AuthRequest {
	return service.AuthRequest{
		Token:                  sessionToken(c),
		SelectedOrganizationID: selectedOrganization(c),
	}
}

// RequireUserOrg resuelve usuario y organizacion activa y los guarda en el contexto.
func RequireUserOrg(logger *zap.Logger, guard *service.Guard) gin.HandlerFunc {
	return func(c *gin.Context) {
		if guard == nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
			return
		}
		scope, err := guard.RequireUserOrg(c.Request.Context(), authRequest(c))
		if err != nil {
			abortWithError(c, logger, "authorize", err)
			return
		}
		c.Set(userOrgKey, scope)
		c.Next()
	}
}

// RequireBot debe ir despues de RequireUserOrg; carga :botId dentro de la organizacion activa.
func RequireBot(logger *zap.Logger, guard *service.Guard) gin.HandlerFunc {
	return func(c *gin.Context) {
		scope, ok := GetUserOrg(c)
		if !ok || guard == nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
			return
		}
		resolved, err := guard.ResolveBot(c.Request.Context(), scope, c.Param("botId"))
		if err != nil {
			abortWithError(c, logger, "authorize bot", err)
			return
		}
		c.Set(userOrgBotKey, resolved)
		c.Next()
	}
}

// RequireAPIKey autentica widgets publicos por X-Api-Key.
func RequireAPIKey(logger *zap.Logger, keys *service.APIKeyService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if keys == nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
			return
		}
		key, err := keys.Authenticate(c.Request.Context(), c.GetHeader(APIKeyHeader))
		if err != nil {
			abortWithError(c, logger, "authenticate api key", err)
			return
		}
		c.Set(apiKeyKey, key)
		c.Next()
	}
}

// GetUserOrg obtiene el alcance resuelto por RequireUserOrg.
func GetUserOrg(c *gin.Context) (service.UserOrg, bool) {
	val, ok := c.Get(userOrgKey)
	if !ok {
		return service.UserOrg{}, false
	}
	scope, ok := val.(service.UserOrg)
	return scope, ok
}

func GetUserOrgBot(c *gin.Context) (service.UserOrgBot, bool) {
	val, ok := c.Get(userOrgBotKey)
	if !ok {
		return service.UserOrgBot{}, false
	}
	scope, ok := val.(service.UserOrgBot)
	return scope, ok
}

func GetAPIKey(c *gin.Context) (domain.APIKey, bool) {
	val, ok := c.Get(apiKeyKey)
	if !ok {
		return domain.APIKey{}, false
	}
	key, ok := val.(domain.APIKey)
	return key, ok
}

package http

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chat-dashboard/internal/obs"
	"chat-dashboard/internal/service"
)

// RouterDeps son los handlers y servicios que necesita NewRouter.
type RouterDeps struct {
	Guard   *service.Guard
	APIKeys *service.APIKeyService
	Auth    *AuthHandler
	Bots    *BotHandler
	Public  *PublicHandler
	Health  *HealthHandler
}

// NewRouter configura el router de Gin con middlewares y rutas.
func NewRouter(logger *zap.Logger, deps RouterDeps) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := RegisterValidators(); err != nil {
		logger.Panic("register validators", zap.Error(err))
	}

	r := gin.New()

	// Middlewares basicos: logging, metricas, recovery y JSON content-type.
	r.Use(zapLoggerMiddleware(logger), obs.GinMiddleware(), gin.Recovery(), jsonContentTypeMiddleware())

	r.GET("/healthz", deps.Health.Health)
	r.GET("/metrics", gin.WrapH(obs.Handler()))

	requireUserOrg := RequireUserOrg(logger, deps.Guard)

	auth := r.Group("/auth")
	auth.POST("/otp/request", deps.Auth.RequestOTP)
	auth.POST("/otp/verify", deps.Auth.VerifyOTP)
	auth.POST("/signup", deps.Auth.StartSignup)
	auth.POST("/signup/verify", deps.Auth.CompleteSignup)
	auth.POST("/login", deps.Auth.StartLogin)
	auth.POST("/login/verify", deps.Auth.CompleteLogin)
	auth.POST("/logout", deps.Auth.Logout)

	me := r.Group("/me", requireUserOrg)
	me.GET("", deps.Auth.Me)
	me.POST("/onboarding", deps.Auth.CompleteOnboarding)

	bots := r.Group("/bots/:botId", requireUserOrg, RequireBot(logger, deps.Guard))
	bots.POST("/conversations/:conversationId/token", deps.Bots.ConversationToken)
	bots.POST("/files/presign", deps.Bots.PresignFile)
	bots.POST("/api-keys", deps.Bots.CreateAPIKey)
	bots.GET("/api-keys", deps.Bots.ListAPIKeys)
	bots.DELETE("/api-keys/:keyId", deps.Bots.RevokeAPIKey)

	public := r.Group("/public", RequireAPIKey(logger, deps.APIKeys))
	public.POST("/conversations", deps.Public.StartConversation)

	return r
}

// zapLoggerMiddleware crea un middleware simple de logging con zap.
func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// jsonContentTypeMiddleware fuerza Content-Type: application/json en responses.
// /metrics lo sobrescribe con el formato de exposicion de Prometheus.
func jsonContentTypeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Content-Type", "application/json")
		c.Next()
	}
}

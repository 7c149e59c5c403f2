package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chat-dashboard/internal/config"
	"chat-dashboard/internal/db"
	"chat-dashboard/internal/email"
	apihttp "chat-dashboard/internal/http"
	"chat-dashboard/internal/obs"
	"chat-dashboard/internal/repository"
	"chat-dashboard/internal/service"
	"chat-dashboard/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	keys, err := config.LoadKeys(cfg.Keys)
	if err != nil {
		logger.Fatal("load service token keys", zap.Error(err))
	}

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer pool.Close()
	if err := db.EnsureSchema(ctx, pool); err != nil {
		logger.Fatal("db schema", zap.Error(err))
	}

	userRepo := repository.NewPgUserRepository(pool)
	membershipRepo := repository.NewPgMembershipRepository(pool)
	botRepo := repository.NewPgBotRepository(pool)
	conversationRepo := repository.NewPgConversationRepository(pool)
	otpRepo := repository.NewPgOTPRepository(pool)
	apiKeyRepo := repository.NewPgAPIKeyRepository(pool)

	emailSender := email.NewDisabledSender("email sender not configured")
	if cfg.SMTPHost != "" {
		sender, err := email.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom, cfg.SMTPFromName, cfg.SMTPUseTLS)
		if err != nil {
			logger.Warn("smtp sender init failed", zap.Error(err))
		} else {
			emailSender = sender
		}
	}

	otpWindow := time.Duration(cfg.OTPRequestWindowMinutes) * time.Minute
	var (
		otpLimiter  = service.NewOTPRateLimiter(otpWindow, cfg.OTPRequestMax)
		revocations = service.NewMemorySessionRevocationStore()
		redisClient *redis.Client
	)
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer redisClient.Close()
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed, using in-memory limiter and revocations", zap.Error(err))
		} else {
			otpLimiter = service.NewRedisOTPRateLimiter(logger, redisClient, otpWindow, cfg.OTPRequestMax)
			revocations = service.NewRedisSessionRevocationStore(redisClient)
		}
		cancel()
	}

	hasher, err := service.NewOTPHasher(cfg.OTPHasher, cfg.OTPBcryptCost)
	if err != nil {
		logger.Fatal("otp hasher", zap.Error(err))
	}

	tokenSvc := service.NewTokenService(logger, service.TokenConfig{
		SessionSecret: cfg.SessionSecret,
		SessionTTL:    time.Duration(cfg.SessionTTLHours) * time.Hour,
		PrivateKey:    keys.ServicePrivateKey,
		PublicKey:     keys.ServicePublicKey,
		Revocations:   revocations,
	})
	otpSvc := service.NewOTPService(logger, otpRepo, emailSender, hasher, otpLimiter, service.OTPServiceConfig{})
	accountSvc := service.NewAccountService(logger, userRepo, otpSvc, tokenSvc)
	guard := service.NewGuard(logger, tokenSvc, membershipRepo, botRepo, conversationRepo)
	conversationSvc := service.NewConversationService(logger, guard, conversationRepo, tokenSvc)
	apiKeySvc := service.NewAPIKeyService(logger, apiKeyRepo, cfg.APIKeyPrefix)

	urlSvc, err := newURLService(cfg.Storage, logger)
	if err != nil {
		logger.Fatal("storage", zap.Error(err))
	}

	obs.Init()
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := apihttp.NewRouter(logger, apihttp.RouterDeps{
		Guard:   guard,
		APIKeys: apiKeySvc,
		Auth:    apihttp.NewAuthHandler(logger, otpSvc, accountSvc, tokenSvc, apihttp.CookieConfig{Secure: cfg.IsProduction()}),
		Bots:    apihttp.NewBotHandler(logger, conversationSvc, apiKeySvc, urlSvc),
		Public:  apihttp.NewPublicHandler(logger, conversationSvc),
		Health:  apihttp.NewHealthHandler(logger, pool),
	})

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("starting server", zap.String("port", cfg.HTTPPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown", zap.Error(err))
	}
	// Los envios de OTP en vuelo terminan antes de cerrar el pool.
	otpSvc.Wait()
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsProduction() {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

// newURLService devuelve nil si el almacenamiento no esta configurado; los endpoints de
// archivos responden entonces 500.
func newURLService(cfg config.StorageConfig, logger *zap.Logger) (*storage.URLService, error) {
	if !cfg.Enabled() {
		logger.Warn("storage not configured, presigned urls disabled")
		return nil, nil
	}
	presigner, err := storage.NewPresigner(cfg.Endpoint)
	if err != nil {
		return nil, err
	}
	var minter storage.CredentialMinter
	if cfg.UseTempCredentials {
		client, err := storage.NewTempCredentialsClient(storage.TempCredentialsConfig{
			BaseURL:           cfg.APIBaseURL,
			AccountID:         cfg.AccountID,
			APIToken:          cfg.APIToken,
			ParentAccessKeyID: cfg.AccessKeyID,
		}, logger)
		if err != nil {
			return nil, err
		}
		minter = client
	}
	return storage.NewURLService(logger, presigner, cfg.Bucket, storage.Credentials{
		AccessKeyID:     cfg.AccessKeyID,
		SecretAccessKey: cfg.SecretAccessKey,
	}, minter), nil
}

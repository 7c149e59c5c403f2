package service

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"chat-dashboard/internal/domain"
)

const (
	SessionIssuer   = "chat-dashboard"
	SessionAudience = "chat-dashboard-web"
	ServiceIssuer   = "next-server"
	ServiceAudience = "chat-server"

	DefaultSessionTTL      = 7 * 24 * time.Hour
	DefaultServiceTokenTTL = 5 * time.Minute
	// ConversationJoinTTL es la vida del token inicial para unirse a una conversacion.
	ConversationJoinTTL = 20 * time.Minute

	tokenTypeAccess = "access"
)

// SessionClaims son los claims del token de sesion de un humano.
type SessionClaims struct {
	TokenType string `json:"type"`
	jwt.RegisteredClaims
}

// ServiceClaims son los claims de un service token con alcance de conversacion.
type ServiceClaims struct {
	OrganizationID string             `json:"organization_id"`
	BotID          string             `json:"bot_id"`
	ConversationID string             `json:"conversation_id"`
	Type           domain.ServiceRole `json:"type"`
	jwt.RegisteredClaims
}

// TokenConfig agrupa el material criptografico del TokenService.
type TokenConfig struct {
	SessionSecret string
	SessionTTL    time.Duration
	PrivateKey    *rsa.PrivateKey
	PublicKey     *rsa.PublicKey
	Revocations   SessionRevocationStore
}

// TokenService emite y valida tokens de sesion (HS256) y service tokens (RS256).
type TokenService struct {
	logger      *zap.Logger
	secret      []byte
	sessionTTL  time.Duration
	privateKey  *rsa.PrivateKey
	publicKey   *rsa.PublicKey
	revocations SessionRevocationStore
	now         func() time.Time
}

func NewTokenService(logger *zap.Logger, cfg TokenConfig) *TokenService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
	publicKey := cfg.PublicKey
	if publicKey == nil && cfg.PrivateKey != nil {
		publicKey = &cfg.PrivateKey.PublicKey
	}
	return &TokenService{
		logger:      logger,
		secret:      []byte(cfg.SessionSecret),
		sessionTTL:  cfg.SessionTTL,
		privateKey:  cfg.PrivateKey,
		publicKey:   publicKey,
		revocations: cfg.Revocations,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// IssueSession firma un token de sesion para userID. ttl <= 0 usa la vida por defecto.
func (s *TokenService) IssueSession(userID string, ttl time.Duration) (string, time.Time, error) {
	if len(s.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("%w: session secret not configured", ErrConfiguration)
	}
	if strings.TrimSpace(userID) == "" {
		return "", time.Time{}, fmt.Errorf("%w: empty subject", ErrInvalidInput)
	}
	if ttl <= 0 {
		ttl = s.sessionTTL
	}
	now := s.now()
	expiresAt := now.Add(ttl)
	claims := SessionClaims{
		TokenType: tokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    SessionIssuer,
			Audience:  jwt.ClaimStrings{SessionAudience},
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// VerifySession devuelve el user id del token. Cualquier defecto produce ErrUnauthenticated.
func (s *TokenService) VerifySession(ctx context.Context, token string) (string, error) {
	claims, err := s.parseSession(token)
	if err != nil {
		return "", err
	}
	if s.revocations != nil {
		revoked, err := s.revocations.IsRevoked(ctx, claims.ID)
		if err != nil {
			s.logger.Warn("session revocation lookup failed", zap.Error(err))
			return "", ErrUnauthenticated
		}
		if revoked {
			s.logger.Debug("session token rejected", zap.String("reason", "revoked"))
			return "", ErrUnauthenticated
		}
	}
	return claims.Subject, nil
}

// RevokeSession invalida el token hasta su propia expiracion. Sin store configurado
// los tokens son puramente stateless y no hay nada que revocar.
func (s *TokenService) RevokeSession(ctx context.Context, token string) error {
	claims, err := s.parseSession(token)
	if err != nil {
		return err
	}
	if s.revocations == nil {
		return nil
	}
	return s.revocations.Revoke(ctx, claims.ID, claims.ExpiresAt.Time)
}

func (s *TokenService) parseSession(token string) (SessionClaims, error) {
	if len(s.secret) == 0 {
		return SessionClaims{}, fmt.Errorf("%w: session secret not configured", ErrConfiguration)
	}
	if strings.TrimSpace(token) == "" {
		return SessionClaims{}, ErrUnauthenticated
	}
	var claims SessionClaims
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(SessionIssuer),
		jwt.WithAudience(SessionAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	_, err := parser.ParseWithClaims(token, &claims, func(_ *jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		s.logger.Debug("session token rejected", zap.Error(err))
		return SessionClaims{}, ErrUnauthenticated
	}
	if claims.TokenType != tokenTypeAccess || strings.TrimSpace(claims.Subject) == "" || claims.ID == "" {
		s.logger.Debug("session token rejected", zap.String("reason", "claims"))
		return SessionClaims{}, ErrUnauthenticated
	}
	return claims, nil
}

// IssueServiceToken firma con la llave privada un token limitado a scope.
// ttl <= 0 usa DefaultServiceTokenTTL.
func (s *TokenService) IssueServiceToken(scope domain.ServiceScope, ttl time.Duration) (string, time.Time, error) {
	if s.privateKey == nil {
		return "", time.Time{}, fmt.Errorf("%w: service token private key not loaded", ErrConfiguration)
	}
	if err := scope.Validate(); err != nil {
		return "", time.Time{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if ttl <= 0 {
		ttl = DefaultServiceTokenTTL
	}
	now := s.now()
	expiresAt := now.Add(ttl)
	claims := ServiceClaims{
		OrganizationID: scope.OrganizationID,
		BotID:          scope.BotID,
		ConversationID: scope.ConversationID,
		Type:           scope.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ServiceIssuer,
			Audience:  jwt.ClaimStrings{ServiceAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.privateKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// VerifyServiceToken valida un service token con la llave publica configurada.
func (s *TokenService) VerifyServiceToken(token string) (domain.ServiceScope, error) {
	if s.publicKey == nil {
		return domain.ServiceScope{}, fmt.Errorf("%w: service token public key not loaded", ErrConfiguration)
	}
	return verifyServiceToken(token, s.publicKey, s.now)
}

// VerifyServiceToken es el contrato del runtime de chat: solo necesita la llave publica
// y no puede emitir tokens.
func VerifyServiceToken(token string, publicKey *rsa.PublicKey) (domain.ServiceScope, error) {
	if publicKey == nil {
		return domain.ServiceScope{}, fmt.Errorf("%w: public key is required", ErrConfiguration)
	}
	return verifyServiceToken(token, publicKey, time.Now)
}

func verifyServiceToken(token string, publicKey *rsa.PublicKey, now func() time.Time) (domain.ServiceScope, error) {
	if strings.TrimSpace(token) == "" {
		return domain.ServiceScope{}, ErrUnauthenticated
	}
	var claims ServiceClaims
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(ServiceIssuer),
		jwt.WithAudience(ServiceAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(now),
	)
	if _, err := parser.ParseWithClaims(token, &claims, func(_ *jwt.Token) (any, error) {
		return publicKey, nil
	}); err != nil {
		return domain.ServiceScope{}, errors.Join(ErrUnauthenticated, err)
	}
	scope := domain.ServiceScope{
		OrganizationID: claims.OrganizationID,
		BotID:          claims.BotID,
		ConversationID: claims.ConversationID,
		Role:           claims.Type,
	}
	if err := scope.Validate(); err != nil {
		return domain.ServiceScope{}, errors.Join(ErrUnauthenticated, err)
	}
	return scope, nil
}

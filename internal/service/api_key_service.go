package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"go.uber.org/zap"

	"chat-dashboard/internal/domain"
	"chat-dashboard/internal/ids"
	"chat-dashboard/internal/repository"
)

const (
	DefaultAPIKeyPrefix = "cdk"
	apiKeyRandomLength  = 32
	apiKeyAlphabet      = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	maxAPIKeyNameLength = 100
)

// GenerateAPIKey devuelve "<prefix>_<32 caracteres base62>" con entropia de crypto/rand.
func GenerateAPIKey(prefix string) (string, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = DefaultAPIKeyPrefix
	}
	max := big.NewInt(int64(len(apiKeyAlphabet)))
	var b strings.Builder
	b.Grow(len(prefix) + 1 + apiKeyRandomLength)
	b.WriteString(prefix)
	b.WriteByte('_')
	for i := 0; i < apiKeyRandomLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(apiKeyAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// HashAPIKey es el digest SHA-256 en hex con el que se busca la llave. Es puro y determinista.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// APIKeyService administra llaves de larga vida limitadas a un bot.
type APIKeyService struct {
	logger *zap.Logger
	keys   repository.APIKeyRepository
	prefix string
	now    func() time.Time
}

func NewAPIKeyService(logger *zap.Logger, keys repository.APIKeyRepository, prefix string) *APIKeyService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.TrimSpace(prefix) == "" {
		prefix = DefaultAPIKeyPrefix
	}
	return &APIKeyService{
		logger: logger,
		keys:   keys,
		prefix: strings.TrimSpace(prefix),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Create guarda solo el hash. La llave en claro se devuelve una unica vez.
func (s *APIKeyService) Create(ctx context.Context, scope UserOrgBot, name string) (domain.APIKey, string, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxAPIKeyNameLength {
		return domain.APIKey{}, "", fmt.Errorf("%w: name must be 1-%d characters", ErrInvalidInput, maxAPIKeyNameLength)
	}
	raw, err := GenerateAPIKey(s.prefix)
	if err != nil {
		return domain.APIKey{}, "", err
	}
	now := s.now()
	key := domain.APIKey{
		ID:             ids.NewAt(now),
		OrganizationID: scope.OrganizationID,
		BotID:          scope.Bot.ID,
		Name:           name,
		Prefix:         s.prefix,
		KeyHash:        HashAPIKey(raw),
		IsActive:       true,
		CreatedAt:      now,
	}
	if err := s.keys.Create(ctx, key); err != nil {
		return domain.APIKey{}, "", fmt.Errorf("store api key: %w", err)
	}
	return key, raw, nil
}

// Authenticate resuelve una llave activa por hash exacto. Falta o revocacion => ErrUnauthenticated.
func (s *APIKeyService) Authenticate(ctx context.Context, raw string) (domain.APIKey, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || !strings.HasPrefix(raw, s.prefix+"_") {
		return domain.APIKey{}, ErrUnauthenticated
	}
	key, err := s.keys.GetActiveByHash(ctx, HashAPIKey(raw))
	if err != nil {
		if repository.IsNotFound(err) {
			return domain.APIKey{}, ErrUnauthenticated
		}
		return domain.APIKey{}, fmt.Errorf("lookup api key: %w", err)
	}
	if !key.IsActive {
		return domain.APIKey{}, ErrUnauthenticated
	}
	now := s.now()
	if err := s.keys.TouchLastUsed(ctx, key.ID, now); err != nil {
		s.logger.Warn("touch api key last used failed", zap.String("api_key_id", key.ID), zap.Error(err))
	} else {
		key.LastUsedAt = &now
	}
	return key, nil
}

func (s *APIKeyService) List(ctx context.Context, scope UserOrgBot) ([]domain.APIKey, error) {
	keys, err := s.keys.ListByBot(ctx, scope.OrganizationID, scope.Bot.ID)
	if err != nil {
		return nil, err
	}
	if keys == nil {
		keys = []domain.APIKey{}
	}
	return keys, nil
}

// Revoke desactiva la llave conservando la fila. Una llave de otro bot es ErrNotFound.
func (s *APIKeyService) Revoke(ctx context.Context, scope UserOrgBot, keyID string) error {
	ok, err := s.keys.Revoke(ctx, scope.OrganizationID, scope.Bot.ID, strings.TrimSpace(keyID), s.now())
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"chat-dashboard/internal/domain"
	"chat-dashboard/internal/ids"
	"chat-dashboard/internal/obs"
	"chat-dashboard/internal/repository"
)

// ServiceTokenIssuer firma service tokens. TokenService lo implementa.
type ServiceTokenIssuer interface {
	IssueServiceToken(scope domain.ServiceScope, ttl time.Duration) (string, time.Time, error)
}

type ServiceTokenResult struct {
	Token          string             `json:"token"`
	ExpiresAt      time.Time          `json:"expiresAt"`
	OrganizationID string             `json:"organizationId"`
	BotID          string             `json:"botId"`
	ConversationID string             `json:"conversationId"`
	Role           domain.ServiceRole `json:"role"`
}

// ConversationService entrega service tokens para el traspaso de conversaciones al runtime de chat.
type ConversationService struct {
	logger        *zap.Logger
	guard         *Guard
	conversations repository.ConversationRepository
	tokens        ServiceTokenIssuer
	now           func() time.Time
}

func NewConversationService(logger *zap.Logger, guard *Guard, conversations repository.ConversationRepository, tokens ServiceTokenIssuer) *ConversationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConversationService{
		logger:        logger,
		guard:         guard,
		conversations: conversations,
		tokens:        tokens,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// JoinToken emite el token inicial con el que un agente o asistente toma la conversacion.
func (s *ConversationService) JoinToken(ctx context.Context, scope UserOrgBot, conversationID string, role domain.ServiceRole) (ServiceTokenResult, error) {
	if !role.CanTakeOver() {
		return ServiceTokenResult{}, fmt.Errorf("%w: role %q cannot join a conversation", ErrInvalidInput, role)
	}
	conv, err := s.guard.RequireConversation(ctx, scope, conversationID)
	if err != nil {
		return ServiceTokenResult{}, err
	}
	return s.issue(domain.ServiceScope{
		OrganizationID: conv.OrganizationID,
		BotID:          conv.BotID,
		ConversationID: conv.ID,
		Role:           role,
	}, ConversationJoinTTL)
}

// StartPublicConversation abre una conversacion para el bot de la API key y devuelve
// un token "user" que solo sirve para ese canal.
func (s *ConversationService) StartPublicConversation(ctx context.Context, key domain.APIKey) (ServiceTokenResult, error) {
	if s.conversations == nil {
		return ServiceTokenResult{}, fmt.Errorf("%w: conversation store not configured", ErrConfiguration)
	}
	now := s.now()
	conv := domain.Conversation{
		ID:             ids.NewAt(now),
		BotID:          key.BotID,
		OrganizationID: key.OrganizationID,
		Status:         domain.ConversationStatusBot,
		CreatedAt:      now,
	}
	if err := s.conversations.Create(ctx, conv); err != nil {
		return ServiceTokenResult{}, fmt.Errorf("create conversation: %w", err)
	}
	return s.issue(domain.ServiceScope{
		OrganizationID: conv.OrganizationID,
		BotID:          conv.BotID,
		ConversationID: conv.ID,
		Role:           domain.ServiceRoleUser,
	}, DefaultServiceTokenTTL)
}

func (s *ConversationService) issue(scope domain.ServiceScope, ttl time.Duration) (ServiceTokenResult, error) {
	if s.tokens == nil {
		return ServiceTokenResult{}, fmt.Errorf("%w: service token issuer not configured", ErrConfiguration)
	}
	token, expiresAt, err := s.tokens.IssueServiceToken(scope, ttl)
	if err != nil {
		s.logger.Error("issue service token failed", zap.String("conversation_id", scope.ConversationID), zap.Error(err))
		return ServiceTokenResult{}, err
	}
	obs.ServiceTokenIssued(string(scope.Role))
	return ServiceTokenResult{
		Token:          token,
		ExpiresAt:      expiresAt,
		OrganizationID: scope.OrganizationID,
		BotID:          scope.BotID,
		ConversationID: scope.ConversationID,
		Role:           scope.Role,
	}, nil
}

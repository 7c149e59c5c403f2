package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"chat-dashboard/internal/domain"
	"chat-dashboard/internal/obs"
	"chat-dashboard/internal/repository"
)

// SessionVerifier resuelve un token de sesion a un user id.
type SessionVerifier interface {
	VerifySession(ctx context.Context, token string) (string, error)
}

// AuthRequest es lo que el guard necesita de una peticion entrante.
type AuthRequest struct {
	Token                  string
	SelectedOrganizationID string
}

type UserOrg struct {
	UserID         string      `json:"userId"`
	OrganizationID string      `json:"organizationId"`
	Role           domain.Role `json:"role"`
}

type UserOrgBot struct {
	UserOrg
	Bot domain.Bot `json:"bot"`
}

// Guard ata una peticion a usuario, organizacion y recurso. Cada rama distinta de
// "autorizado" termina en error; nunca hay identidad por defecto.
type Guard struct {
	logger        *zap.Logger
	sessions      SessionVerifier
	memberships   repository.MembershipRepository
	bots          repository.BotRepository
	conversations repository.ConversationRepository
}

func NewGuard(logger *zap.Logger, sessions SessionVerifier, memberships repository.MembershipRepository, bots repository.BotRepository, conversations repository.ConversationRepository) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guard{
		logger:        logger,
		sessions:      sessions,
		memberships:   memberships,
		bots:          bots,
		conversations: conversations,
	}
}

// RequireUserOrg verifica la sesion y resuelve la organizacion activa: la sugerida si el
// usuario es miembro, si no la primera membresia por orden de creacion.
func (g *Guard) RequireUserOrg(ctx context.Context, req AuthRequest) (UserOrg, error) {
	token := strings.TrimSpace(req.Token)
	if token == "" {
		obs.AuthFailure("missing_token")
		return UserOrg{}, ErrUnauthenticated
	}
	if g.sessions == nil || g.memberships == nil {
		return UserOrg{}, fmt.Errorf("%w: guard not configured", ErrConfiguration)
	}
	userID, err := g.sessions.VerifySession(ctx, token)
	if err != nil {
		if errors.Is(err, ErrConfiguration) {
			return UserOrg{}, err
		}
		obs.AuthFailure("invalid_token")
		return UserOrg{}, ErrUnauthenticated
	}

	memberships, err := g.memberships.ListByUser(ctx, userID)
	if err != nil {
		return UserOrg{}, fmt.Errorf("list memberships: %w", err)
	}
	if len(memberships) == 0 {
		obs.AuthFailure("no_organization")
		return UserOrg{}, ErrOrganizationNotFound
	}

	active := memberships[0]
	if hint := strings.TrimSpace(req.SelectedOrganizationID); hint != "" {
		for _, m := range memberships {
			if m.OrganizationID == hint {
				active = m
				break
			}
		}
	}
	return UserOrg{UserID: userID, OrganizationID: active.OrganizationID, Role: active.Role}, nil
}

// RequireUserOrgAndBot carga el bot solo dentro de la organizacion resuelta. Un bot de
// otro tenant responde igual que uno inexistente.
func (g *Guard) RequireUserOrgAndBot(ctx context.Context, req AuthRequest, botID string) (UserOrgBot, error) {
	scope, err := g.RequireUserOrg(ctx, req)
	if err != nil {
		return UserOrgBot{}, err
	}
	return g.ResolveBot(ctx, scope, botID)
}

// ResolveBot aplica el chequeo de tenant sobre un UserOrg ya resuelto.
func (g *Guard) ResolveBot(ctx context.Context, scope UserOrg, botID string) (UserOrgBot, error) {
	botID = strings.TrimSpace(botID)
	if botID == "" {
		obs.AuthFailure("resource_not_found")
		return UserOrgBot{}, ErrNotFound
	}
	if g.bots == nil {
		return UserOrgBot{}, fmt.Errorf("%w: bot store not configured", ErrConfiguration)
	}
	bot, err := g.bots.GetForOrganization(ctx, scope.OrganizationID, botID)
	if err != nil {
		if repository.IsNotFound(err) {
			g.logger.Debug("bot not in caller organization",
				zap.String("organization_id", scope.OrganizationID),
				zap.String("bot_id", botID),
			)
			obs.AuthFailure("resource_not_found")
			return UserOrgBot{}, ErrNotFound
		}
		return UserOrgBot{}, fmt.Errorf("load bot: %w", err)
	}
	return UserOrgBot{UserOrg: scope, Bot: bot}, nil
}

// RequireConversation carga la conversacion dentro de organizacion y bot ya verificados.
func (g *Guard) RequireConversation(ctx context.Context, scope UserOrgBot, conversationID string) (domain.Conversation, error) {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return domain.Conversation{}, ErrNotFound
	}
	if g.conversations == nil {
		return domain.Conversation{}, fmt.Errorf("%w: conversation store not configured", ErrConfiguration)
	}
	conv, err := g.conversations.GetForBot(ctx, scope.OrganizationID, scope.Bot.ID, conversationID)
	if err != nil {
		if repository.IsNotFound(err) {
			obs.AuthFailure("resource_not_found")
			return domain.Conversation{}, ErrNotFound
		}
		return domain.Conversation{}, fmt.Errorf("load conversation: %w", err)
	}
	return conv, nil
}

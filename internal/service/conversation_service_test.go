package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"chat-dashboard/internal/domain"
	"chat-dashboard/internal/testutil"
)

func TestConversationService_JoinToken(t *testing.T) {
	f := newGuardFixture()
	tokens := newTestTokenService(t, nil)
	convs := testutil.NewConversationStore(
		domain.Conversation{ID: "conv-a", BotID: "bot-a", OrganizationID: "org-a", Status: domain.ConversationStatusBot},
	)
	guard := NewGuard(zap.NewNop(), stubSessions{"t1": "u1"}, f.users, testutil.NewBotStore(domain.Bot{ID: "bot-a", OrganizationID: "org-a"}), convs)
	svc := NewConversationService(zap.NewNop(), guard, convs, tokens)

	scope, err := guard.RequireUserOrgAndBot(context.Background(), AuthRequest{Token: "t1"}, "bot-a")
	if err != nil {
		t.Fatalf("resolve scope: %v", err)
	}

	res, err := svc.JoinToken(context.Background(), scope, "conv-a", domain.ServiceRoleAgent)
	if err != nil {
		t.Fatalf("join token: %v", err)
	}
	if got := time.Until(res.ExpiresAt); got < 19*time.Minute || got > 20*time.Minute {
		t.Fatalf("expected 20 minute join token, got %v", got)
	}
	verified, err := VerifyServiceToken(res.Token, &testServiceKey(t).PublicKey)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	want := domain.ServiceScope{OrganizationID: "org-a", BotID: "bot-a", ConversationID: "conv-a", Role: domain.ServiceRoleAgent}
	if verified != want {
		t.Fatalf("expected %+v, got %+v", want, verified)
	}

	if _, err := svc.JoinToken(context.Background(), scope, "conv-a", domain.ServiceRoleUser); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected user role to be rejected, got %v", err)
	}
	if _, err := svc.JoinToken(context.Background(), scope, "conv-missing", domain.ServiceRoleAssistant); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestConversationService_StartPublicConversation(t *testing.T) {
	convs := testutil.NewConversationStore()
	svc := NewConversationService(zap.NewNop(), nil, convs, newTestTokenService(t, nil))

	res, err := svc.StartPublicConversation(context.Background(), domain.APIKey{ID: "k1", OrganizationID: "org-a", BotID: "bot-a", IsActive: true})
	if err != nil {
		t.Fatalf("start public conversation: %v", err)
	}
	if res.Role != domain.ServiceRoleUser || res.BotID != "bot-a" {
		t.Fatalf("unexpected result %+v", res)
	}
	conv, ok := convs.Conversations[res.ConversationID]
	if !ok || conv.Status != domain.ConversationStatusBot || conv.OrganizationID != "org-a" {
		t.Fatalf("expected stored conversation, got %+v", conv)
	}
	if got := time.Until(res.ExpiresAt); got > 5*time.Minute {
		t.Fatalf("expected 5 minute user token, got %v", got)
	}
}

func TestConversationService_MissingKeyFailsRequest(t *testing.T) {
	convs := testutil.NewConversationStore()
	svc := NewConversationService(zap.NewNop(), nil, convs, NewTokenService(zap.NewNop(), TokenConfig{SessionSecret: "s"}))

	_, err := svc.StartPublicConversation(context.Background(), domain.APIKey{OrganizationID: "org-a", BotID: "bot-a"})
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

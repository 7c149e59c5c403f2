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

type stubSessions map[string]string

func (s stubSessions) VerifySession(_ context.Context, token string) (string, error) {
	userID, ok := s[token]
	if !ok {
		return "", ErrUnauthenticated
	}
	return userID, nil
}

type guardFixture struct {
	guard *Guard
	users *testutil.UserStore
}

// newGuardFixture siembra dos organizaciones: u1 es miembro de org-a (primero) y org-b;
// u2 solo de org-b; u3 no tiene membresias.
func newGuardFixture() guardFixture {
	users := testutil.NewUserStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	users.AddMembership(domain.Membership{ID: "m2", UserID: "u1", OrganizationID: "org-b", Role: domain.RoleMember, CreatedAt: base.Add(time.Hour)})
	users.AddMembership(domain.Membership{ID: "m1", UserID: "u1", OrganizationID: "org-a", Role: domain.RoleAdmin, CreatedAt: base})
	users.AddMembership(domain.Membership{ID: "m3", UserID: "u2", OrganizationID: "org-b", Role: domain.RoleEditor, CreatedAt: base})

	bots := testutil.NewBotStore(
		domain.Bot{ID: "bot-a", OrganizationID: "org-a", Name: "A"},
		domain.Bot{ID: "bot-b", OrganizationID: "org-b", Name: "B"},
	)
	conversations := testutil.NewConversationStore(
		domain.Conversation{ID: "conv-a", BotID: "bot-a", OrganizationID: "org-a", Status: domain.ConversationStatusBot},
		domain.Conversation{ID: "conv-b", BotID: "bot-b", OrganizationID: "org-b", Status: domain.ConversationStatusHuman},
	)
	sessions := stubSessions{"t1": "u1", "t2": "u2", "t3": "u3"}
	return guardFixture{
		guard: NewGuard(zap.NewNop(), sessions, users, bots, conversations),
		users: users,
	}
}

func TestGuard_RequireUserOrg(t *testing.T) {
	f := newGuardFixture()
	tests := []struct {
		name    string
		req     AuthRequest
		wantOrg string
		wantErr error
	}{
		{name: "missing token", req: AuthRequest{}, wantErr: ErrUnauthenticated},
		{name: "invalid token", req: AuthRequest{Token: "bogus"}, wantErr: ErrUnauthenticated},
		{name: "no memberships", req: AuthRequest{Token: "t3"}, wantErr: ErrOrganizationNotFound},
		{name: "first membership by creation", req: AuthRequest{Token: "t1"}, wantOrg: "org-a"},
		{name: "hint honoured when member", req: AuthRequest{Token: "t1", SelectedOrganizationID: "org-b"}, wantOrg: "org-b"},
		{name: "hint ignored when not member", req: AuthRequest{Token: "t2", SelectedOrganizationID: "org-a"}, wantOrg: "org-b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.guard.RequireUserOrg(context.Background(), tt.req)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.OrganizationID != tt.wantOrg {
				t.Fatalf("expected org %s, got %s", tt.wantOrg, got.OrganizationID)
			}
		})
	}
}

func TestGuard_MembershipLookupFailureIsNotAnAuthError(t *testing.T) {
	f := newGuardFixture()
	f.users.ListErr = errors.New("db down")

	_, err := f.guard.RequireUserOrg(context.Background(), AuthRequest{Token: "t1"})
	if err == nil || errors.Is(err, ErrUnauthenticated) || errors.Is(err, ErrOrganizationNotFound) {
		t.Fatalf("expected infrastructure error, got %v", err)
	}
}

func TestGuard_TenantIsolation(t *testing.T) {
	f := newGuardFixture()

	// u1 resuelve a org-a; bot-b existe pero pertenece a org-b.
	_, err := f.guard.RequireUserOrgAndBot(context.Background(), AuthRequest{Token: "t1"}, "bot-b")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for cross-tenant bot, got %v", err)
	}
	_, missingErr := f.guard.RequireUserOrgAndBot(context.Background(), AuthRequest{Token: "t1"}, "bot-z")
	if !errors.Is(missingErr, ErrNotFound) || missingErr.Error() != err.Error() {
		t.Fatalf("expected cross-tenant and missing bots to look the same, got %v / %v", err, missingErr)
	}

	scope, err := f.guard.RequireUserOrgAndBot(context.Background(), AuthRequest{Token: "t1"}, "bot-a")
	if err != nil {
		t.Fatalf("expected own bot to resolve, got %v", err)
	}
	if scope.Bot.ID != "bot-a" || scope.OrganizationID != "org-a" || scope.UserID != "u1" {
		t.Fatalf("unexpected scope: %+v", scope)
	}

	// Con la sugerencia, el mismo usuario alcanza bot-b.
	if _, err := f.guard.RequireUserOrgAndBot(context.Background(), AuthRequest{Token: "t1", SelectedOrganizationID: "org-b"}, "bot-b"); err != nil {
		t.Fatalf("expected bot-b reachable from org-b, got %v", err)
	}
}

func TestGuard_RequireConversation(t *testing.T) {
	f := newGuardFixture()
	scope, err := f.guard.RequireUserOrgAndBot(context.Background(), AuthRequest{Token: "t1"}, "bot-a")
	if err != nil {
		t.Fatalf("resolve scope: %v", err)
	}

	conv, err := f.guard.RequireConversation(context.Background(), scope, "conv-a")
	if err != nil {
		t.Fatalf("expected conversation, got %v", err)
	}
	if conv.ID != "conv-a" {
		t.Fatalf("unexpected conversation %+v", conv)
	}
	if _, err := f.guard.RequireConversation(context.Background(), scope, "conv-b"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for other tenant conversation, got %v", err)
	}
}

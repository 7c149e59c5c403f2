package http

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"chat-dashboard/internal/domain"
	"chat-dashboard/internal/obs"
	"chat-dashboard/internal/service"
	"chat-dashboard/internal/storage"
	"chat-dashboard/internal/testutil"
)

var (
	testKeyOnce sync.Once
	testKey     *rsa.PrivateKey
)

func rsaKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	testKeyOnce.Do(func() {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
		testKey = key
	})
	return testKey
}

type stubPinger struct {
	err error
}

func (p stubPinger) Ping(context.Context) error { return p.err }

type apiFixture struct {
	router  *gin.Engine
	tokens  *service.TokenService
	otps    *service.OTPService
	users   *testutil.UserStore
	keys    *testutil.APIKeyStore
	convs   *testutil.ConversationStore
	sender  *testutil.RecordingSender
	apiKeys *service.APIKeyService
}

// newAPIFixture arma el router completo sobre stores en memoria. u1 es admin de org-a
// (bot-a, conv-a) y miembro de org-b (bot-b).
func newAPIFixture(t *testing.T, db Pinger) apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	users := testutil.NewUserStore()
	users.AddUser(domain.User{ID: "u1", Email: "u1@example.com", CreatedAt: base})
	users.AddMembership(domain.Membership{ID: "m1", UserID: "u1", OrganizationID: "org-a", Role: domain.RoleAdmin, CreatedAt: base})
	users.AddMembership(domain.Membership{ID: "m2", UserID: "u1", OrganizationID: "org-b", Role: domain.RoleMember, CreatedAt: base.Add(time.Hour)})
	bots := testutil.NewBotStore(
		domain.Bot{ID: "bot-a", OrganizationID: "org-a", Name: "A"},
		domain.Bot{ID: "bot-b", OrganizationID: "org-b", Name: "B"},
	)
	convs := testutil.NewConversationStore(
		domain.Conversation{ID: "conv-a", BotID: "bot-a", OrganizationID: "org-a", Status: domain.ConversationStatusBot},
	)
	keys := testutil.NewAPIKeyStore()
	sender := &testutil.RecordingSender{}

	tokens := service.NewTokenService(logger, service.TokenConfig{
		SessionSecret: "test-secret",
		PrivateKey:    rsaKey(t),
		Revocations:   service.NewMemorySessionRevocationStore(),
	})
	otps := service.NewOTPService(logger, testutil.NewOTPStore(), sender, service.NewBcryptOTPHasher(bcrypt.MinCost), nil, service.OTPServiceConfig{})
	accounts := service.NewAccountService(logger, users, otps, tokens)
	guard := service.NewGuard(logger, tokens, users, bots, convs)
	conversations := service.NewConversationService(logger, guard, convs, tokens)
	apiKeys := service.NewAPIKeyService(logger, keys, "cdk")

	presigner, err := storage.NewPresigner("0123456789abcdef.r2.cloudflarestorage.com")
	if err != nil {
		t.Fatalf("presigner: %v", err)
	}
	urls := storage.NewURLService(logger, presigner, "bot-files", storage.Credentials{
		AccessKeyID:     "AKIDEXAMPLE",
		SecretAccessKey: "wJalrXUtnFEMI/K7MDENG+bPxRfiCYEXAMPLEKEY",
	}, nil)

	router := NewRouter(logger, RouterDeps{
		Guard:   guard,
		APIKeys: apiKeys,
		Auth:    NewAuthHandler(logger, otps, accounts, tokens, CookieConfig{}),
		Bots:    NewBotHandler(logger, conversations, apiKeys, urls),
		Public:  NewPublicHandler(logger, conversations),
		Health:  NewHealthHandler(logger, db),
	})
	return apiFixture{
		router:  router,
		tokens:  tokens,
		otps:    otps,
		users:   users,
		keys:    keys,
		convs:   convs,
		sender:  sender,
		apiKeys: apiKeys,
	}
}

func (f apiFixture) session(t *testing.T, userID string) string {
	t.Helper()
	token, _, err := f.tokens.IssueSession(userID, 0)
	if err != nil {
		t.Fatalf("issue session: %v", err)
	}
	return token
}

func (f apiFixture) do(t *testing.T, method, path string, body any, headers map[string]string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body %q: %v", w.Body.String(), err)
	}
	return out
}

func TestHealthz(t *testing.T) {
	f := newAPIFixture(t, stubPinger{})
	if w := f.do(t, http.MethodGet, "/healthz", nil, nil); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	down := newAPIFixture(t, stubPinger{err: errors.New("connection refused")})
	w := down.do(t, http.MethodGet, "/healthz", nil, nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	if body := decode(t, w); body["status"] != "unavailable" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestMetricsEndpointServesPrometheusFormat(t *testing.T) {
	obs.Init()
	f := newAPIFixture(t, nil)
	f.do(t, http.MethodGet, "/healthz", nil, nil)

	w := f.do(t, http.MethodGet, "/metrics", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); strings.Contains(ct, "application/json") {
		t.Fatalf("metrics must not be served as json, got %q", ct)
	}
	if !strings.Contains(w.Body.String(), "http_requests_total") {
		t.Fatalf("expected http request counter in exposition")
	}
}

func TestStatusForMapsDomainErrors(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{service.ErrUnauthenticated, http.StatusUnauthorized},
		{service.ErrNotFound, http.StatusNotFound},
		{service.ErrOrganizationNotFound, http.StatusNotFound},
		{service.ErrOTPExpired, http.StatusBadRequest},
		{service.ErrInvalidInput, http.StatusBadRequest},
		{storage.ErrInvalidObjectKey, http.StatusBadRequest},
		{service.ErrEmailTaken, http.StatusConflict},
		{service.ErrRateLimited, http.StatusTooManyRequests},
		{service.ErrConfiguration, http.StatusInternalServerError},
		{storage.ErrSigning, http.StatusInternalServerError},
		{storage.ErrUpstream, http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := statusFor(tc.err); got != tc.want {
			t.Fatalf("statusFor(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

package http

import (
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"chat-dashboard/internal/domain"
	"chat-dashboard/internal/service"
)

func TestConversationToken(t *testing.T) {
	f := newAPIFixture(t, nil)
	headers := bearer(f.session(t, "u1"))

	w := f.do(t, http.MethodPost, "/bots/bot-a/conversations/conv-a/token", map[string]string{"role": "agent"}, headers)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	token, _ := body["token"].(string)
	scope, err := service.VerifyServiceToken(token, &rsaKey(t).PublicKey)
	if err != nil {
		t.Fatalf("verify service token: %v", err)
	}
	want := domain.ServiceScope{OrganizationID: "org-a", BotID: "bot-a", ConversationID: "conv-a", Role: domain.ServiceRoleAgent}
	if scope != want {
		t.Fatalf("unexpected scope: %+v", scope)
	}
	expiresAt, err := time.Parse(time.RFC3339Nano, body["expiresAt"].(string))
	if err != nil {
		t.Fatalf("parse expiresAt: %v", err)
	}
	if ttl := time.Until(expiresAt); ttl > service.ConversationJoinTTL || ttl < service.ConversationJoinTTL-time.Minute {
		t.Fatalf("unexpected ttl %v", ttl)
	}
}

func TestConversationTokenRejections(t *testing.T) {
	f := newAPIFixture(t, nil)
	headers := bearer(f.session(t, "u1"))

	cases := []struct {
		name string
		path string
		role string
		want int
	}{
		{"user role cannot join", "/bots/bot-a/conversations/conv-a/token", "user", http.StatusBadRequest},
		{"unknown role", "/bots/bot-a/conversations/conv-a/token", "admin", http.StatusBadRequest},
		{"unknown conversation", "/bots/bot-a/conversations/conv-x/token", "agent", http.StatusNotFound},
		{"foreign bot", "/bots/bot-b/conversations/conv-a/token", "agent", http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := f.do(t, http.MethodPost, tc.path, map[string]string{"role": tc.role}, headers)
			if w.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, w.Code, w.Body.String())
			}
		})
	}
}

func TestPresignFile(t *testing.T) {
	f := newAPIFixture(t, nil)
	headers := bearer(f.session(t, "u1"))

	w := f.do(t, http.MethodPost, "/bots/bot-a/files/presign", map[string]string{
		"fileName":    "../../secret/report.pdf",
		"contentType": "application/pdf",
	}, headers)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	if body["key"] != "org/org-a/bots/bot-a/report.pdf" || body["method"] != "PUT" {
		t.Fatalf("unexpected body: %v", body)
	}
	u, err := url.Parse(body["url"].(string))
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	if u.Path != "/bot-files/org/org-a/bots/bot-a/report.pdf" {
		t.Fatalf("unexpected path %q", u.Path)
	}
	q := u.Query()
	if q.Get("X-Amz-Expires") != "1200" || q.Get("X-Amz-Signature") == "" {
		t.Fatalf("unexpected query %v", q)
	}

	w = f.do(t, http.MethodPost, "/bots/bot-a/files/presign", map[string]string{"fileName": "a.txt", "method": "get"}, headers)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got := decode(t, w)["url"].(string); !strings.Contains(got, "X-Amz-Expires=900") {
		t.Fatalf("expected read expiry in %q", got)
	}
}

func TestPresignFileMethods(t *testing.T) {
	f := newAPIFixture(t, nil)
	headers := bearer(f.session(t, "u1"))

	for _, tc := range []struct{ method, want string }{
		{"", "PUT"},
		{"put", "PUT"},
		{"GET", "GET"},
		{"delete", "DELETE"},
		{"head", "HEAD"},
	} {
		w := f.do(t, http.MethodPost, "/bots/bot-a/files/presign", map[string]string{"fileName": "a.txt", "method": tc.method}, headers)
		if w.Code != http.StatusOK {
			t.Fatalf("method %q: expected 200, got %d: %s", tc.method, w.Code, w.Body.String())
		}
		if got := decode(t, w)["method"]; got != tc.want {
			t.Fatalf("method %q: expected %s, got %v", tc.method, tc.want, got)
		}
	}
}

func TestPresignFileRejections(t *testing.T) {
	f := newAPIFixture(t, nil)
	headers := bearer(f.session(t, "u1"))

	if w := f.do(t, http.MethodPost, "/bots/bot-a/files/presign", map[string]string{"fileName": "a.txt", "method": "POST"}, headers); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unsupported method, got %d", w.Code)
	}
	if w := f.do(t, http.MethodPost, "/bots/bot-a/files/presign", map[string]string{"fileName": ".."}, headers); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad file name, got %d", w.Code)
	}
	if w := f.do(t, http.MethodPost, "/bots/bot-b/files/presign", map[string]string{"fileName": "a.txt"}, headers); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for foreign bot, got %d", w.Code)
	}
	if w := f.do(t, http.MethodPost, "/bots/bot-a/files/presign", map[string]string{"fileName": "a.txt"}, nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without session, got %d", w.Code)
	}
}

func TestAPIKeyLifecycle(t *testing.T) {
	f := newAPIFixture(t, nil)
	headers := bearer(f.session(t, "u1"))

	w := f.do(t, http.MethodPost, "/bots/bot-a/api-keys", map[string]string{"name": "widget"}, headers)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	created := decode(t, w)
	raw, _ := created["key"].(string)
	if !strings.HasPrefix(raw, "cdk_") {
		t.Fatalf("unexpected raw key %q", raw)
	}
	keyID := created["apiKey"].(map[string]any)["id"].(string)

	w = f.do(t, http.MethodGet, "/bots/bot-a/api-keys", nil, headers)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if strings.Contains(w.Body.String(), raw) {
		t.Fatalf("raw key must not be listed")
	}
	if keys := decode(t, w)["apiKeys"].([]any); len(keys) != 1 {
		t.Fatalf("expected 1 key, got %d", len(keys))
	}

	if w := f.do(t, http.MethodPost, "/public/conversations", nil, map[string]string{APIKeyHeader: raw}); w.Code != http.StatusCreated {
		t.Fatalf("expected key to work before revocation, got %d", w.Code)
	}

	if w := f.do(t, http.MethodDelete, "/bots/bot-b/api-keys/"+keyID, nil, map[string]string{"Authorization": headers["Authorization"], OrganizationHeader: "org-b"}); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 revoking through another bot, got %d", w.Code)
	}
	if w := f.do(t, http.MethodDelete, "/bots/bot-a/api-keys/"+keyID, nil, headers); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w := f.do(t, http.MethodPost, "/public/conversations", nil, map[string]string{APIKeyHeader: raw}); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected revoked key to be rejected, got %d", w.Code)
	}
	if w := f.do(t, http.MethodDelete, "/bots/bot-a/api-keys/missing", nil, headers); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown key, got %d", w.Code)
	}
}

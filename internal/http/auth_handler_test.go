package http

import (
	"context"
	"net/http"
	"strings"
	"testing"
)

func sessionCookie(t *testing.T, resp *http.Response) *http.Cookie {
	t.Helper()
	for _, c := range resp.Cookies() {
		if c.Name == SessionCookieName {
			return c
		}
	}
	t.Fatalf("expected %s cookie", SessionCookieName)
	return nil
}

func (f apiFixture) lastCode(t *testing.T) string {
	t.Helper()
	f.otps.Wait()
	sent, ok := f.sender.Last()
	if !ok {
		t.Fatalf("expected an otp to be sent")
	}
	return sent.Code
}

func TestOTPRequestAndVerify(t *testing.T) {
	f := newAPIFixture(t, nil)

	w := f.do(t, http.MethodPost, "/auth/otp/request", map[string]string{
		"channel": "email",
		"purpose": "signup_email",
		"email":   "New@Example.com",
	}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	created := decode(t, w)
	otpID, _ := created["otpId"].(string)
	if otpID == "" || created["expiresAt"] == nil {
		t.Fatalf("unexpected body: %v", created)
	}
	code := f.lastCode(t)

	verify := func(code, purpose string) map[string]any {
		w := f.do(t, http.MethodPost, "/auth/otp/verify", map[string]string{
			"otpId":   otpID,
			"code":    code,
			"purpose": purpose,
			"email":   "new@example.com",
		}, nil)
		body := decode(t, w)
		if body["ok"] == true && w.Code != http.StatusOK {
			t.Fatalf("ok body with status %d", w.Code)
		}
		if body["ok"] == false && w.Code != http.StatusBadRequest {
			t.Fatalf("failed body with status %d", w.Code)
		}
		return body
	}

	if body := verify(code, "login"); body["ok"] != false || body["error"] != "OTP does not match this request" {
		t.Fatalf("expected purpose mismatch, got %v", body)
	}
	if body := verify(code, "signup_email"); body["ok"] != true {
		t.Fatalf("expected success, got %v", body)
	}
	if body := verify(code, "signup_email"); body["ok"] != false || body["error"] != "OTP already used" {
		t.Fatalf("expected replay rejection, got %v", body)
	}
}

func TestOTPRequestValidation(t *testing.T) {
	f := newAPIFixture(t, nil)
	bodies := []map[string]string{
		{"channel": "sms", "purpose": "login", "email": "a@b.com"},
		{"channel": "email", "purpose": "reset", "email": "a@b.com"},
		{"channel": "email", "purpose": "login", "email": "not-an-email"},
		{"channel": "email", "purpose": "login"},
	}
	for _, b := range bodies {
		if w := f.do(t, http.MethodPost, "/auth/otp/request", b, nil); w.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for %v, got %d", b, w.Code)
		}
	}
	if f.sender.Count() != 0 {
		t.Fatalf("no otp should be sent for invalid requests")
	}
}

func TestOTPVerifyUnknownID(t *testing.T) {
	f := newAPIFixture(t, nil)
	w := f.do(t, http.MethodPost, "/auth/otp/verify", map[string]string{
		"otpId": "8a0b6f1e-4d3c-4a57-9a39-1d2f0c3b4e5f",
		"code":  "123456",
	}, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if body := decode(t, w); body["ok"] != false || body["error"] != "OTP not found" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestSignupLoginLogoutFlow(t *testing.T) {
	f := newAPIFixture(t, nil)

	w := f.do(t, http.MethodPost, "/auth/signup", map[string]string{"email": "owner@example.com"}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("signup: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	otpID := decode(t, w)["otpId"].(string)

	w = f.do(t, http.MethodPost, "/auth/signup/verify", map[string]string{
		"otpId":            otpID,
		"code":             f.lastCode(t),
		"email":            "owner@example.com",
		"fullName":         "Owner",
		"organizationName": "Acme",
	}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("signup verify: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	cookie := sessionCookie(t, w.Result())
	if !cookie.HttpOnly || cookie.SameSite != http.SameSiteLaxMode || cookie.Path != "/" {
		t.Fatalf("unexpected cookie flags: %+v", cookie)
	}
	if strings.Contains(w.Body.String(), cookie.Value) {
		t.Fatalf("token must only travel in the cookie")
	}
	orgID := decode(t, w)["organizationId"]

	me := f.do(t, http.MethodGet, "/me", nil, nil, &http.Cookie{Name: SessionCookieName, Value: cookie.Value})
	if me.Code != http.StatusOK || decode(t, me)["organizationId"] != orgID {
		t.Fatalf("me: unexpected response %d %s", me.Code, me.Body.String())
	}

	if w := f.do(t, http.MethodPost, "/auth/signup", map[string]string{"email": "owner@example.com"}, nil); w.Code != http.StatusConflict {
		t.Fatalf("second signup: expected 409, got %d", w.Code)
	}

	w = f.do(t, http.MethodPost, "/auth/login", map[string]string{"email": "owner@example.com"}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d", w.Code)
	}
	loginID := decode(t, w)["otpId"].(string)
	w = f.do(t, http.MethodPost, "/auth/login/verify", map[string]string{
		"otpId": loginID,
		"code":  f.lastCode(t),
		"email": "owner@example.com",
	}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("login verify: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	loginCookie := sessionCookie(t, w.Result())

	w = f.do(t, http.MethodPost, "/auth/logout", nil, bearer(loginCookie.Value))
	if w.Code != http.StatusOK {
		t.Fatalf("logout: expected 200, got %d", w.Code)
	}
	if cleared := sessionCookie(t, w.Result()); cleared.MaxAge >= 0 {
		t.Fatalf("expected cookie to be cleared, got %+v", cleared)
	}
	if w := f.do(t, http.MethodGet, "/me", nil, bearer(loginCookie.Value)); w.Code != http.StatusUnauthorized {
		t.Fatalf("revoked session: expected 401, got %d", w.Code)
	}
	if w := f.do(t, http.MethodGet, "/me", nil, bearer(cookie.Value)); w.Code != http.StatusOK {
		t.Fatalf("other session must stay valid, got %d", w.Code)
	}
}

func TestLoginUnknownEmailLooksTheSame(t *testing.T) {
	f := newAPIFixture(t, nil)
	w := f.do(t, http.MethodPost, "/auth/login", map[string]string{"email": "ghost@example.com"}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := decode(t, w)
	if body["otpId"] == "" || body["expiresAt"] == nil {
		t.Fatalf("unexpected body: %v", body)
	}
	f.otps.Wait()
	if f.sender.Count() != 0 {
		t.Fatalf("nothing should be sent to unknown emails")
	}
}

func TestLogoutRequiresSession(t *testing.T) {
	f := newAPIFixture(t, nil)
	if w := f.do(t, http.MethodPost, "/auth/logout", nil, nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if w := f.do(t, http.MethodPost, "/auth/logout", nil, bearer("garbage")); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for invalid token, got %d", w.Code)
	}
}

func TestCompleteOnboarding(t *testing.T) {
	f := newAPIFixture(t, nil)
	w := f.do(t, http.MethodPost, "/me/onboarding", nil, bearer(f.session(t, "u1")))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if u, _ := f.users.GetByID(context.Background(), "u1"); !u.OnboardingCompleted {
		t.Fatalf("expected onboarding to be completed")
	}
}

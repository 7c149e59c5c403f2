package email

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"chat-dashboard/internal/domain"
)

func TestNewSMTPSender_RequiresHostAndFrom(t *testing.T) {
	if _, err := NewSMTPSender("", 587, "", "", "noreply@example.com", "", false); err == nil {
		t.Fatalf("expected error for empty host")
	}
	if _, err := NewSMTPSender("smtp.example.com", 587, "", "", " ", "", false); err == nil {
		t.Fatalf("expected error for empty from")
	}
}

func TestSMTPSender_BuildMessage(t *testing.T) {
	sender, err := NewSMTPSender("smtp.example.com", 0, "user", "pass", "noreply@example.com", "Chat Dashboard", true)
	if err != nil {
		t.Fatalf("new sender: %v", err)
	}
	if sender.dialer.Port != 587 {
		t.Fatalf("expected default port 587, got %d", sender.dialer.Port)
	}
	if !sender.dialer.SSL {
		t.Fatalf("expected SSL dialer when TLS is enabled")
	}

	expires := time.Date(2026, 1, 20, 12, 44, 56, 0, time.UTC)
	msg := sender.buildMessage("user@example.com", "012345", domain.OTPPurposeLogin, expires)

	var buf bytes.Buffer
	if _, err := msg.WriteTo(&buf); err != nil {
		t.Fatalf("write message: %v", err)
	}
	raw := buf.String()
	for _, want := range []string{
		"To: user@example.com",
		"Subject: Your login code",
		"012345",
		"2026-01-20T12:44:56Z",
		"Chat Dashboard",
	} {
		if !strings.Contains(raw, want) {
			t.Fatalf("expected message to contain %q, got:\n%s", want, raw)
		}
	}
}

func TestSMTPSender_RejectsEmptyRecipient(t *testing.T) {
	sender, err := NewSMTPSender("smtp.example.com", 587, "", "", "noreply@example.com", "", false)
	if err != nil {
		t.Fatalf("new sender: %v", err)
	}
	if err := sender.SendOTP(context.Background(), "  ", "123456", domain.OTPPurposeLogin, time.Now()); err == nil {
		t.Fatalf("expected error for empty recipient")
	}
}

func TestDisabledSender(t *testing.T) {
	s := NewDisabledSender("")
	if err := s.SendOTP(context.Background(), "user@example.com", "123456", domain.OTPPurposeLogin, time.Now()); err == nil {
		t.Fatalf("expected disabled sender to fail")
	}
}

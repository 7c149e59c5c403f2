package email

import (
	"context"
	"errors"
	"time"

	"chat-dashboard/internal/domain"
)

// Sender define la interfaz para envio de codigos de un solo uso.
type Sender interface {
	SendOTP(ctx context.Context, toEmail string, code string, purpose domain.OTPPurpose, expiresAt time.Time) error
}

type disabledSender struct {
	reason string
}

func NewDisabledSender(reason string) Sender {
	return &disabledSender{reason: reason}
}

func (s *disabledSender) SendOTP(_ context.Context, _ string, _ string, _ domain.OTPPurpose, _ time.Time) error {
	if s.reason == "" {
		return errors.New("email sender disabled")
	}
	return errors.New(s.reason)
}

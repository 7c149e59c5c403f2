package domain

import (
	"fmt"
	"time"
)

// OTPChannel es el canal por el que se entrega el codigo.
type OTPChannel string

const OTPChannelEmail OTPChannel = "email"

func ParseOTPChannel(s string) (OTPChannel, error) {
	switch OTPChannel(s) {
	case OTPChannelEmail:
		return OTPChannelEmail, nil
	}
	return "", fmt.Errorf("unknown otp channel %q", s)
}

// OTPPurpose es el proposito interno del codigo. El vocabulario de la API publica
// ("signup_email", "login") se traduce con ParseOTPPurpose.
type OTPPurpose string

const (
	OTPPurposeVerifyEmail OTPPurpose = "VERIFY_EMAIL"
	OTPPurposeLogin       OTPPurpose = "LOGIN"
)

const (
	ExternalPurposeSignupEmail = "signup_email"
	ExternalPurposeLogin       = "login"
)

func ParseOTPPurpose(external string) (OTPPurpose, error) {
	switch external {
	case ExternalPurposeSignupEmail:
		return OTPPurposeVerifyEmail, nil
	case ExternalPurposeLogin:
		return OTPPurposeLogin, nil
	}
	return "", fmt.Errorf("unknown otp purpose %q", external)
}

// External devuelve el nombre publico del proposito.
func (p OTPPurpose) External() string {
	switch p {
	case OTPPurposeVerifyEmail:
		return ExternalPurposeSignupEmail
	case OTPPurposeLogin:
		return ExternalPurposeLogin
	}
	return ""
}

// OTP es un codigo de un solo uso emitido. Solo guarda el hash salado del codigo.
type OTP struct {
	ID          string     `json:"id"`
	CodeHash    string     `json:"-"`
	Channel     OTPChannel `json:"channel"`
	Purpose     OTPPurpose `json:"purpose"`
	Email       *string    `json:"email,omitempty"`
	UserID      *string    `json:"user_id,omitempty"`
	ExpiresAt   time.Time  `json:"expires_at"`
	Attempts    int        `json:"attempts"`
	MaxAttempts int        `json:"max_attempts"`
	Used        bool       `json:"used"`
	UsedAt      *time.Time `json:"used_at,omitempty"`
	IPAddress   string     `json:"-"`
	UserAgent   string     `json:"-"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Expired compara contra el reloj de pared; la expiracion es absoluta.
func (o OTP) Expired(now time.Time) bool {
	return o.ExpiresAt.Before(now)
}

func (o OTP) AttemptsExhausted() bool {
	return o.Attempts >= o.MaxAttempts
}

package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"gopkg.in/gomail.v2"

	"chat-dashboard/internal/domain"
)

// SMTPSender envia correos via SMTP.
type SMTPSender struct {
	dialer   *gomail.Dialer
	from     string
	fromName string
}

func NewSMTPSender(host string, port int, username, password, from, fromName string, useTLS bool) (*SMTPSender, error) {
	if strings.TrimSpace(host) == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if strings.TrimSpace(from) == "" {
		return nil, fmt.Errorf("smtp from is required")
	}
	if port == 0 {
		port = 587
	}
	dialer := gomail.NewDialer(host, port, username, password)
	if useTLS {
		dialer.SSL = true
		dialer.TLSConfig = &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}
	}
	return &SMTPSender{
		dialer:   dialer,
		from:     from,
		fromName: fromName,
	}, nil
}

func (s *SMTPSender) SendOTP(ctx context.Context, toEmail string, code string, purpose domain.OTPPurpose, expiresAt time.Time) error {
	if strings.TrimSpace(toEmail) == "" {
		return fmt.Errorf("to email is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := s.buildMessage(toEmail, code, purpose, expiresAt)
	return s.dialer.DialAndSend(msg)
}

func (s *SMTPSender) buildMessage(toEmail, code string, purpose domain.OTPPurpose, expiresAt time.Time) *gomail.Message {
	subject, intro := otpCopy(purpose)
	body := fmt.Sprintf(
		"%s\n\nYour code is %s.\nIt expires at %s UTC.\n\nIf you did not request this code you can ignore this email.\n",
		intro,
		code,
		expiresAt.UTC().Format(time.RFC3339),
	)

	msg := gomail.NewMessage()
	if strings.TrimSpace(s.fromName) != "" {
		msg.SetAddressHeader("From", s.from, s.fromName)
	} else {
		msg.SetHeader("From", s.from)
	}
	msg.SetHeader("To", toEmail)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)
	return msg
}

func otpCopy(purpose domain.OTPPurpose) (string, string) {
	switch purpose {
	case domain.OTPPurposeVerifyEmail:
		return "Verify your email", "Use this code to finish creating your account."
	case domain.OTPPurposeLogin:
		return "Your login code", "Use this code to sign in to your dashboard."
	}
	return "Verification code", "Use this code to continue."
}

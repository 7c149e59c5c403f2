package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"chat-dashboard/internal/domain"
	"chat-dashboard/internal/repository"
)

// SessionTokenIssuer firma tokens de sesion. TokenService lo implementa.
type SessionTokenIssuer interface {
	IssueSession(userID string, ttl time.Duration) (string, time.Time, error)
}

// RequestMeta son datos de auditoria de la peticion.
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

type CompleteSignupInput struct {
	OTPID            string
	Code             string
	Email            string
	FullName         string
	OrganizationName string
}

// AuthResult es el resultado de un signup o login completado.
type AuthResult struct {
	User           domain.User `json:"user"`
	OrganizationID string      `json:"organizationId,omitempty"`
	Token          string      `json:"-"`
	ExpiresAt      time.Time   `json:"expiresAt"`
}

const defaultOrganizationName = "My workspace"

// AccountService coordina signup y login por OTP.
type AccountService struct {
	logger   *zap.Logger
	users    repository.UserRepository
	otps     *OTPService
	sessions SessionTokenIssuer
	now      func() time.Time
}

func NewAccountService(logger *zap.Logger, users repository.UserRepository, otps *OTPService, sessions SessionTokenIssuer) *AccountService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccountService{
		logger:   logger,
		users:    users,
		otps:     otps,
		sessions: sessions,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// StartSignup envia un OTP de verificacion de email para una direccion sin cuenta.
func (s *AccountService) StartSignup(ctx context.Context, emailAddr string, meta RequestMeta) (CreateOTPResult, error) {
	emailAddr = normalizeEmail(emailAddr)
	if !isValidEmail(emailAddr) {
		return CreateOTPResult{}, ErrInvalidEmail
	}
	if _, err := s.users.GetByEmail(ctx, emailAddr); err == nil {
		return CreateOTPResult{}, ErrEmailTaken
	} else if !repository.IsNotFound(err) {
		return CreateOTPResult{}, fmt.Errorf("lookup user: %w", err)
	}
	return s.otps.CreateAndSend(ctx, CreateOTPInput{
		Channel:   string(domain.OTPChannelEmail),
		Purpose:   domain.ExternalPurposeSignupEmail,
		Email:     emailAddr,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
	})
}

// CompleteSignup canjea el OTP y crea usuario, organizacion y membresia admin en una transaccion.
func (s *AccountService) CompleteSignup(ctx context.Context, in CompleteSignupInput) (AuthResult, error) {
	emailAddr := normalizeEmail(in.Email)
	if !isValidEmail(emailAddr) {
		return AuthResult{}, ErrInvalidEmail
	}
	if _, err := s.otps.Verify(ctx, VerifyOTPInput{
		OTPID:   in.OTPID,
		Code:    in.Code,
		Purpose: domain.ExternalPurposeSignupEmail,
		Email:   emailAddr,
	}); err != nil {
		return AuthResult{}, err
	}

	now := s.now()
	verifiedAt := now
	user := domain.User{
		ID:              uuid.NewString(),
		Email:           emailAddr,
		FullName:        strings.TrimSpace(in.FullName),
		EmailVerifiedAt: &verifiedAt,
		LastLoggedInAt:  &verifiedAt,
		CreatedAt:       now,
	}
	orgName := strings.TrimSpace(in.OrganizationName)
	if orgName == "" {
		orgName = defaultOrganizationName
	}
	org := domain.Organization{ID: uuid.NewString(), Name: orgName, CreatedAt: now}
	membership := domain.Membership{
		ID:             uuid.NewString(),
		UserID:         user.ID,
		OrganizationID: org.ID,
		Role:           domain.RoleAdmin,
		CreatedAt:      now,
	}
	if err := s.users.CreateWithOrganization(ctx, user, org, membership); err != nil {
		if repository.IsUniqueViolation(err) {
			return AuthResult{}, ErrEmailTaken
		}
		return AuthResult{}, fmt.Errorf("create user: %w", err)
	}

	token, expiresAt, err := s.sessions.IssueSession(user.ID, 0)
	if err != nil {
		return AuthResult{}, err
	}
	return AuthResult{User: user, OrganizationID: org.ID, Token: token, ExpiresAt: expiresAt}, nil
}

// StartLogin envia un OTP de login ligado al usuario. Un email desconocido recibe una
// respuesta con la misma forma y no se envia nada.
func (s *AccountService) StartLogin(ctx context.Context, emailAddr string, meta RequestMeta) (CreateOTPResult, error) {
	emailAddr = normalizeEmail(emailAddr)
	if !isValidEmail(emailAddr) {
		return CreateOTPResult{}, ErrInvalidEmail
	}
	// El limite se aplica antes de buscar al usuario: email conocido y desconocido responden igual.
	if !s.otps.allow(ctx, domain.OTPPurposeLogin, emailAddr) {
		return CreateOTPResult{}, ErrRateLimited
	}
	user, err := s.users.GetByEmail(ctx, emailAddr)
	if err != nil {
		if repository.IsNotFound(err) {
			s.logger.Debug("login requested for unknown email")
			return s.otps.decoy(), nil
		}
		return CreateOTPResult{}, fmt.Errorf("lookup user: %w", err)
	}
	userID := user.ID
	return s.otps.create(ctx, CreateOTPInput{
		Channel:   string(domain.OTPChannelEmail),
		Purpose:   domain.ExternalPurposeLogin,
		Email:     emailAddr,
		UserID:    &userID,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
	}, false)
}

// CompleteLogin canjea el OTP de login y emite la sesion.
func (s *AccountService) CompleteLogin(ctx context.Context, otpID, code, emailAddr string) (AuthResult, error) {
	emailAddr = normalizeEmail(emailAddr)
	res, err := s.otps.Verify(ctx, VerifyOTPInput{
		OTPID:   otpID,
		Code:    code,
		Purpose: domain.ExternalPurposeLogin,
		Email:   emailAddr,
	})
	if err != nil {
		return AuthResult{}, err
	}
	if res.UserID == nil {
		return AuthResult{}, ErrUnauthenticated
	}
	user, err := s.users.GetByID(ctx, *res.UserID)
	if err != nil {
		if repository.IsNotFound(err) {
			return AuthResult{}, ErrUserNotFound
		}
		return AuthResult{}, fmt.Errorf("load user: %w", err)
	}

	now := s.now()
	if err := s.users.TouchLastLogin(ctx, user.ID, now); err != nil {
		s.logger.Warn("touch last login failed", zap.String("user_id", user.ID), zap.Error(err))
	} else {
		user.LastLoggedInAt = &now
	}

	token, expiresAt, err := s.sessions.IssueSession(user.ID, 0)
	if err != nil {
		return AuthResult{}, err
	}
	return AuthResult{User: user, Token: token, ExpiresAt: expiresAt}, nil
}

func (s *AccountService) CompleteOnboarding(ctx context.Context, userID string) error {
	if err := s.users.CompleteOnboarding(ctx, userID); err != nil {
		if repository.IsNotFound(err) {
			return ErrUserNotFound
		}
		return err
	}
	return nil
}

package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"chat-dashboard/internal/domain"
	"chat-dashboard/internal/email"
	"chat-dashboard/internal/obs"
	"chat-dashboard/internal/repository"
)

const (
	DefaultOTPTTL         = 10 * time.Minute
	DefaultOTPMaxAttempts = 5
	defaultOTPSendTimeout = 15 * time.Second
	otpCodeLength         = 6
)

// OTPErrorReason clasifica por que fallo una verificacion.
type OTPErrorReason string

const (
	OTPReasonNotFound        OTPErrorReason = "not_found"
	OTPReasonAlreadyUsed     OTPErrorReason = "already_used"
	OTPReasonExpired         OTPErrorReason = "expired"
	OTPReasonTooManyAttempts OTPErrorReason = "too_many_attempts"
	OTPReasonMismatch        OTPErrorReason = "mismatch"
	OTPReasonInvalid         OTPErrorReason = "invalid"
)

// OTPError es el fallo tipado de Verify. Proposito y email distintos comparten
// la misma razon y el mismo mensaje.
type OTPError struct {
	Reason OTPErrorReason
}

func (e *OTPError) Error() string {
	switch e.Reason {
	case OTPReasonNotFound:
		return "OTP not found"
	case OTPReasonAlreadyUsed:
		return "OTP already used"
	case OTPReasonExpired:
		return "OTP expired"
	case OTPReasonTooManyAttempts:
		return "Too many attempts"
	case OTPReasonMismatch:
		return "OTP does not match this request"
	}
	return "Invalid OTP"
}

func (e *OTPError) Is(target error) bool {
	t, ok := target.(*OTPError)
	return ok && t.Reason == e.Reason
}

var (
	ErrOTPNotFound        = &OTPError{Reason: OTPReasonNotFound}
	ErrOTPUsed            = &OTPError{Reason: OTPReasonAlreadyUsed}
	ErrOTPExpired         = &OTPError{Reason: OTPReasonExpired}
	ErrOTPTooManyAttempts = &OTPError{Reason: OTPReasonTooManyAttempts}
	ErrOTPMismatch        = &OTPError{Reason: OTPReasonMismatch}
	ErrOTPInvalid         = &OTPError{Reason: OTPReasonInvalid}
)

type CreateOTPInput struct {
	Channel   string
	Purpose   string
	Email     string
	UserID    *string
	IPAddress string
	UserAgent string
}

type CreateOTPResult struct {
	OTPID     string    `json:"otpId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// VerifyOTPInput lleva proposito en vocabulario externo; vacio significa "no comprobar".
type VerifyOTPInput struct {
	OTPID   string
	Code    string
	Purpose string
	Email   string
}

type VerifyOTPResult struct {
	OTPID   string
	UserID  *string
	Purpose domain.OTPPurpose
	Email   *string
}

type OTPServiceConfig struct {
	TTL         time.Duration
	MaxAttempts int
	SendTimeout time.Duration
}

// OTPService emite y canjea codigos de un solo uso.
type OTPService struct {
	logger      *zap.Logger
	otps        repository.OTPRepository
	sender      email.Sender
	hasher      OTPHasher
	limiter     OTPRateLimiter
	ttl         time.Duration
	maxAttempts int
	sendTimeout time.Duration
	now         func() time.Time
	dummyHash   string
	wg          sync.WaitGroup
}

func NewOTPService(logger *zap.Logger, otps repository.OTPRepository, sender email.Sender, hasher OTPHasher, limiter OTPRateLimiter, cfg OTPServiceConfig) *OTPService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if hasher == nil {
		hasher = NewBcryptOTPHasher(0)
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultOTPTTL
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultOTPMaxAttempts
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = defaultOTPSendTimeout
	}
	s := &OTPService{
		logger:      logger,
		otps:        otps,
		sender:      sender,
		hasher:      hasher,
		limiter:     limiter,
		ttl:         cfg.TTL,
		maxAttempts: cfg.MaxAttempts,
		sendTimeout: cfg.SendTimeout,
		now:         func() time.Time { return time.Now().UTC() },
	}
	// Hash de relleno: los rechazos tempranos tambien pagan una comparacion lenta.
	if dummy, err := hasher.Hash("000000"); err == nil {
		s.dummyHash = dummy
	} else {
		logger.Warn("otp dummy hash unavailable", zap.Error(err))
	}
	return s
}

// CreateAndSend genera un codigo nuevo, guarda solo su hash y lo despacha sin esperar la entrega.
func (s *OTPService) CreateAndSend(ctx context.Context, in CreateOTPInput) (CreateOTPResult, error) {
	return s.create(ctx, in, true)
}

// allow consulta el limitador; sin limitador configurado todo pasa.
func (s *OTPService) allow(ctx context.Context, purpose domain.OTPPurpose, emailAddr string) bool {
	return s.limiter == nil || s.limiter.Allow(ctx, purpose, emailAddr)
}

// decoy imita el costo y la respuesta de una emision real sin guardar ni enviar nada.
func (s *OTPService) decoy() CreateOTPResult {
	if code, err := generateOTPCode(); err == nil {
		_, _ = s.hasher.Hash(code)
	}
	return CreateOTPResult{OTPID: uuid.NewString(), ExpiresAt: s.now().Add(s.ttl)}
}

func (s *OTPService) create(ctx context.Context, in CreateOTPInput, limit bool) (CreateOTPResult, error) {
	if s.otps == nil {
		return CreateOTPResult{}, fmt.Errorf("%w: otp store not configured", ErrConfiguration)
	}
	channel, err := domain.ParseOTPChannel(strings.TrimSpace(in.Channel))
	if err != nil {
		return CreateOTPResult{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	purpose, err := domain.ParseOTPPurpose(strings.TrimSpace(in.Purpose))
	if err != nil {
		return CreateOTPResult{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	emailAddr := normalizeEmail(in.Email)
	if !isValidEmail(emailAddr) {
		return CreateOTPResult{}, ErrInvalidEmail
	}
	if limit && !s.allow(ctx, purpose, emailAddr) {
		return CreateOTPResult{}, ErrRateLimited
	}

	code, err := generateOTPCode()
	if err != nil {
		return CreateOTPResult{}, err
	}
	hash, err := s.hasher.Hash(code)
	if err != nil {
		return CreateOTPResult{}, fmt.Errorf("hash otp: %w", err)
	}

	now := s.now()
	record := domain.OTP{
		ID:          uuid.NewString(),
		CodeHash:    hash,
		Channel:     channel,
		Purpose:     purpose,
		Email:       &emailAddr,
		UserID:      in.UserID,
		ExpiresAt:   now.Add(s.ttl),
		Attempts:    0,
		MaxAttempts: s.maxAttempts,
		IPAddress:   strings.TrimSpace(in.IPAddress),
		UserAgent:   strings.TrimSpace(in.UserAgent),
		CreatedAt:   now,
	}
	if err := s.otps.Create(ctx, record); err != nil {
		return CreateOTPResult{}, fmt.Errorf("store otp: %w", err)
	}
	obs.OTPIssued(purpose.External())

	s.dispatch(ctx, record.ID, emailAddr, code, purpose, record.ExpiresAt)
	return CreateOTPResult{OTPID: record.ID, ExpiresAt: record.ExpiresAt}, nil
}

func (s *OTPService) dispatch(ctx context.Context, otpID, to, code string, purpose domain.OTPPurpose, expiresAt time.Time) {
	if s.sender == nil {
		s.logger.Warn("otp sender not configured", zap.String("otp_id", otpID))
		return
	}
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.sendTimeout)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		if err := s.sender.SendOTP(sendCtx, to, code, purpose, expiresAt); err != nil {
			s.logger.Warn("send otp failed", zap.String("otp_id", otpID), zap.Error(err))
		}
	}()
}

// Wait bloquea hasta que terminen los envios en curso. Se usa al apagar el proceso.
func (s *OTPService) Wait() {
	s.wg.Wait()
}

// Verify canjea el codigo como maximo una vez. Los errores *OTPError son de negocio;
// cualquier otro error es de infraestructura.
func (s *OTPService) Verify(ctx context.Context, in VerifyOTPInput) (VerifyOTPResult, error) {
	code := strings.TrimSpace(in.Code)
	res, err := s.verify(ctx, in, code)
	var otpErr *OTPError
	switch {
	case err == nil:
		obs.OTPVerification("ok")
	case errors.As(err, &otpErr):
		obs.OTPVerification(string(otpErr.Reason))
	default:
		obs.OTPVerification("error")
	}
	return res, err
}

func (s *OTPService) verify(ctx context.Context, in VerifyOTPInput, code string) (VerifyOTPResult, error) {
	if s.otps == nil {
		return VerifyOTPResult{}, fmt.Errorf("%w: otp store not configured", ErrConfiguration)
	}
	id, err := uuid.Parse(strings.TrimSpace(in.OTPID))
	if err != nil {
		s.burn(s.dummyHash, code)
		return VerifyOTPResult{}, ErrOTPNotFound
	}
	record, err := s.otps.GetByID(ctx, id.String())
	if err != nil {
		if repository.IsNotFound(err) {
			s.burn(s.dummyHash, code)
			return VerifyOTPResult{}, ErrOTPNotFound
		}
		return VerifyOTPResult{}, fmt.Errorf("load otp: %w", err)
	}

	now := s.now()
	if gateErr := checkOTPGates(record, in, now); gateErr != nil {
		s.burn(record.CodeHash, code)
		return VerifyOTPResult{}, gateErr
	}
	// Un codigo mal formado no es un intento real y no consume intentos.
	if !isValidOTPCode(code) {
		s.burn(record.CodeHash, code)
		return VerifyOTPResult{}, ErrOTPInvalid
	}

	if !s.hasher.Compare(record.CodeHash, code) {
		if _, err := s.otps.IncrementAttempts(ctx, record.ID); err != nil && !repository.IsNotFound(err) {
			return VerifyOTPResult{}, fmt.Errorf("increment otp attempts: %w", err)
		}
		return VerifyOTPResult{}, ErrOTPInvalid
	}

	ok, err := s.otps.MarkUsed(ctx, record.ID, now)
	if err != nil {
		return VerifyOTPResult{}, fmt.Errorf("mark otp used: %w", err)
	}
	if !ok {
		return VerifyOTPResult{}, s.classifyLostRedemption(ctx, record.ID, now)
	}

	return VerifyOTPResult{
		OTPID:   record.ID,
		UserID:  record.UserID,
		Purpose: record.Purpose,
		Email:   record.Email,
	}, nil
}

// checkOTPGates aplica en orden: usado, expirado, intentos, proposito, email.
func checkOTPGates(record domain.OTP, in VerifyOTPInput, now time.Time) error {
	if record.Used {
		return ErrOTPUsed
	}
	if record.Expired(now) {
		return ErrOTPExpired
	}
	if record.AttemptsExhausted() {
		return ErrOTPTooManyAttempts
	}
	if p := strings.TrimSpace(in.Purpose); p != "" {
		purpose, err := domain.ParseOTPPurpose(p)
		if err != nil || purpose != record.Purpose {
			return ErrOTPMismatch
		}
	}
	if e := normalizeEmail(in.Email); e != "" {
		if record.Email == nil || normalizeEmail(*record.Email) != e {
			return ErrOTPMismatch
		}
	}
	return nil
}

// classifyLostRedemption explica por que el update condicional no afecto filas.
func (s *OTPService) classifyLostRedemption(ctx context.Context, id string, now time.Time) error {
	current, err := s.otps.GetByID(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return ErrOTPNotFound
		}
		return fmt.Errorf("reload otp: %w", err)
	}
	switch {
	case current.Used:
		return ErrOTPUsed
	case current.AttemptsExhausted():
		return ErrOTPTooManyAttempts
	case current.Expired(now):
		return ErrOTPExpired
	}
	return ErrOTPUsed
}

func (s *OTPService) burn(hash, code string) {
	if hash == "" {
		return
	}
	_ = s.hasher.Compare(hash, code)
}

func generateOTPCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func isValidEmail(email string) bool {
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return false
	}
	return !strings.ContainsAny(email, " \t\r\n") && strings.Contains(email[at+1:], ".")
}

func isValidOTPCode(code string) bool {
	if len(code) != otpCodeLength {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

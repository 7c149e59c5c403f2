// Package testutil reune stores en memoria compartidos por los tests de service y http.
// Cada store se comporta como su contraparte Postgres: devuelve pgx.ErrNoRows cuando
// no encuentra filas y aplica las mismas condiciones en las actualizaciones atomicas.
package testutil

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"chat-dashboard/internal/domain"
)

// ErrUniqueViolation imita el error que devuelve Postgres ante un indice unico.
var ErrUniqueViolation error = &pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"}

// OTPStore implementa repository.OTPRepository.
type OTPStore struct {
	CreateErr error
	GetErr    error

	mu   sync.Mutex
	OTPs map[string]domain.OTP
}

func NewOTPStore() *OTPStore {
	return &OTPStore{OTPs: make(map[string]domain.OTP)}
}

func (s *OTPStore) Create(_ context.Context, otp domain.OTP) error {
	if s.CreateErr != nil {
		return s.CreateErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.OTPs[otp.ID]; ok {
		return ErrUniqueViolation
	}
	s.OTPs[otp.ID] = otp
	return nil
}

func (s *OTPStore) GetByID(_ context.Context, id string) (domain.OTP, error) {
	if s.GetErr != nil {
		return domain.OTP{}, s.GetErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	otp, ok := s.OTPs[id]
	if !ok {
		return domain.OTP{}, pgx.ErrNoRows
	}
	return otp, nil
}

func (s *OTPStore) IncrementAttempts(_ context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	otp, ok := s.OTPs[id]
	if !ok || otp.Used {
		return 0, pgx.ErrNoRows
	}
	otp.Attempts++
	s.OTPs[id] = otp
	return otp.Attempts, nil
}

func (s *OTPStore) MarkUsed(_ context.Context, id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	otp, ok := s.OTPs[id]
	if !ok || otp.Used || otp.Attempts >= otp.MaxAttempts || otp.ExpiresAt.Before(at) {
		return false, nil
	}
	otp.Used = true
	usedAt := at
	otp.UsedAt = &usedAt
	s.OTPs[id] = otp
	return true, nil
}

// Update reemplaza un registro; sirve para forzar expiracion o intentos en tests.
func (s *OTPStore) Update(otp domain.OTP) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.OTPs[otp.ID] = otp
}

func (s *OTPStore) Get(id string) (domain.OTP, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	otp, ok := s.OTPs[id]
	return otp, ok
}

// UserStore implementa repository.UserRepository y repository.MembershipRepository.
type UserStore struct {
	ListErr error

	mu            sync.Mutex
	Users         map[string]domain.User
	Organizations map[string]domain.Organization
	Memberships   []domain.Membership
}

func NewUserStore() *UserStore {
	return &UserStore{
		Users:         make(map[string]domain.User),
		Organizations: make(map[string]domain.Organization),
	}
}

func (s *UserStore) GetByID(_ context.Context, id string) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.Users[id]
	if !ok {
		return domain.User{}, pgx.ErrNoRows
	}
	return u, nil
}

func (s *UserStore) GetByEmail(_ context.Context, email string) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.Users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return domain.User{}, pgx.ErrNoRows
}

func (s *UserStore) CreateWithOrganization(_ context.Context, user domain.User, org domain.Organization, membership domain.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.Users {
		if strings.EqualFold(u.Email, user.Email) {
			return ErrUniqueViolation
		}
	}
	s.Users[user.ID] = user
	s.Organizations[org.ID] = org
	s.Memberships = append(s.Memberships, membership)
	return nil
}

func (s *UserStore) TouchLastLogin(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.Users[id]
	if !ok {
		return pgx.ErrNoRows
	}
	t := at
	u.LastLoggedInAt = &t
	s.Users[id] = u
	return nil
}

func (s *UserStore) CompleteOnboarding(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.Users[id]
	if !ok {
		return pgx.ErrNoRows
	}
	u.OnboardingCompleted = true
	s.Users[id] = u
	return nil
}

func (s *UserStore) ListByUser(_ context.Context, userID string) ([]domain.Membership, error) {
	if s.ListErr != nil {
		return nil, s.ListErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Membership
	for _, m := range s.Memberships {
		if m.UserID == userID {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// AddUser siembra un usuario sin organizacion.
func (s *UserStore) AddUser(u domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Users[u.ID] = u
}

func (s *UserStore) AddMembership(m domain.Membership) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Memberships = append(s.Memberships, m)
}

// BotStore implementa repository.BotRepository.
type BotStore struct {
	mu   sync.Mutex
	Bots map[string]domain.Bot
}

func NewBotStore(bots ...domain.Bot) *BotStore {
	s := &BotStore{Bots: make(map[string]domain.Bot)}
	for _, b := range bots {
		s.Bots[b.ID] = b
	}
	return s
}

func (s *BotStore) GetForOrganization(_ context.Context, organizationID, botID string) (domain.Bot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.Bots[botID]
	if !ok || b.OrganizationID != organizationID {
		return domain.Bot{}, pgx.ErrNoRows
	}
	return b, nil
}

// ConversationStore implementa repository.ConversationRepository.
type ConversationStore struct {
	mu            sync.Mutex
	Conversations map[string]domain.Conversation
}

func NewConversationStore(conversations ...domain.Conversation) *ConversationStore {
	s := &ConversationStore{Conversations: make(map[string]domain.Conversation)}
	for _, c := range conversations {
		s.Conversations[c.ID] = c
	}
	return s
}

func (s *ConversationStore) Create(_ context.Context, c domain.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.Conversations[c.ID]; ok {
		return ErrUniqueViolation
	}
	s.Conversations[c.ID] = c
	return nil
}

func (s *ConversationStore) GetForBot(_ context.Context, organizationID, botID, conversationID string) (domain.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.Conversations[conversationID]
	if !ok || c.OrganizationID != organizationID || c.BotID != botID {
		return domain.Conversation{}, pgx.ErrNoRows
	}
	return c, nil
}

// APIKeyStore implementa repository.APIKeyRepository.
type APIKeyStore struct {
	TouchErr error

	mu   sync.Mutex
	Keys map[string]domain.APIKey
}

func NewAPIKeyStore() *APIKeyStore {
	return &APIKeyStore{Keys: make(map[string]domain.APIKey)}
}

func (s *APIKeyStore) Create(_ context.Context, key domain.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range s.Keys {
		if k.KeyHash == key.KeyHash {
			return ErrUniqueViolation
		}
	}
	s.Keys[key.ID] = key
	return nil
}

func (s *APIKeyStore) GetActiveByHash(_ context.Context, keyHash string) (domain.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range s.Keys {
		if k.KeyHash == keyHash && k.IsActive {
			return k, nil
		}
	}
	return domain.APIKey{}, pgx.ErrNoRows
}

func (s *APIKeyStore) ListByBot(_ context.Context, organizationID, botID string) ([]domain.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.APIKey
	for _, k := range s.Keys {
		if k.OrganizationID == organizationID && k.BotID == botID {
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *APIKeyStore) Revoke(_ context.Context, organizationID, botID, keyID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.Keys[keyID]
	if !ok || k.OrganizationID != organizationID || k.BotID != botID {
		return false, nil
	}
	k.IsActive = false
	if k.RevokedAt == nil {
		t := at
		k.RevokedAt = &t
	}
	s.Keys[keyID] = k
	return true, nil
}

func (s *APIKeyStore) TouchLastUsed(_ context.Context, id string, at time.Time) error {
	if s.TouchErr != nil {
		return s.TouchErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.Keys[id]
	if !ok {
		return pgx.ErrNoRows
	}
	t := at
	k.LastUsedAt = &t
	s.Keys[id] = k
	return nil
}

// SentOTP es un envio capturado por RecordingSender.
type SentOTP struct {
	To        string
	Code      string
	Purpose   domain.OTPPurpose
	ExpiresAt time.Time
}

// RecordingSender implementa email.Sender y guarda los codigos enviados.
type RecordingSender struct {
	Err error

	mu   sync.Mutex
	Sent []SentOTP
}

func (s *RecordingSender) SendOTP(_ context.Context, toEmail, code string, purpose domain.OTPPurpose, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Sent = append(s.Sent, SentOTP{To: toEmail, Code: code, Purpose: purpose, ExpiresAt: expiresAt})
	return s.Err
}

// Last devuelve el ultimo envio capturado.
func (s *RecordingSender) Last() (SentOTP, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Sent) == 0 {
		return SentOTP{}, false
	}
	return s.Sent[len(s.Sent)-1], true
}

func (s *RecordingSender) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Sent)
}

package service

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"chat-dashboard/internal/domain"
)

// OTPRateLimiter limita la frecuencia de solicitudes de OTP por proposito y email.
type OTPRateLimiter interface {
	Allow(ctx context.Context, purpose domain.OTPPurpose, email string) bool
}

// otpLimitKey devuelve "" si falta el proposito o el email; una clave vacia nunca pasa.
func otpLimitKey(purpose domain.OTPPurpose, email string) string {
	name := purpose.External()
	email = normalizeEmail(email)
	if name == "" || email == "" {
		return ""
	}
	return name + ":" + email
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type memoryOTPRateLimiter struct {
	mu      sync.Mutex
	window  time.Duration
	max     int
	entries map[string]*limiterEntry
	now     func() time.Time
}

// NewOTPRateLimiter crea un rate limiter en memoria: hasta max solicitudes por ventana
// y por clave, recargando de forma continua.
func NewOTPRateLimiter(window time.Duration, max int) OTPRateLimiter {
	if max <= 0 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &memoryOTPRateLimiter{
		window:  window,
		max:     max,
		entries: make(map[string]*limiterEntry),
		now:     time.Now,
	}
}

func (l *memoryOTPRateLimiter) Allow(_ context.Context, purpose domain.OTPPurpose, email string) bool {
	key := otpLimitKey(purpose, email)
	if key == "" {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.prune(now)
	entry, ok := l.entries[key]
	if !ok {
		every := rate.Every(l.window / time.Duration(l.max))
		entry = &limiterEntry{limiter: rate.NewLimiter(every, l.max)}
		l.entries[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

// prune elimina claves inactivas por mas de una ventana; para entonces su cubeta ya esta llena.
func (l *memoryOTPRateLimiter) prune(now time.Time) {
	if len(l.entries) < 1024 {
		return
	}
	for k, e := range l.entries {
		if now.Sub(e.lastSeen) > l.window {
			delete(l.entries, k)
		}
	}
}

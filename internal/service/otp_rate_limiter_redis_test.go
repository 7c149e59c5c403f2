package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"chat-dashboard/internal/domain"
)

type ctxKey struct{}

type mockRedisEvaler struct {
	calls      int
	lastCtx    context.Context
	lastScript string
	lastKeys   []string
	lastArgs   []interface{}
	result     int64
	err        error
}

func (m *mockRedisEvaler) Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	m.calls++
	m.lastCtx = ctx
	m.lastScript = script
	m.lastKeys = keys
	m.lastArgs = args
	cmd := redis.NewCmd(ctx)
	if m.err != nil {
		cmd.SetErr(m.err)
		return cmd
	}
	cmd.SetVal(m.result)
	return cmd
}

func newTestRedisLimiter(evaler redisEvaler, window time.Duration) *redisOTPRateLimiter {
	return newRedisOTPRateLimiter(zap.NewNop(), evaler, window, 3)
}

func TestRedisOTPRateLimiter_KeysByPurposeAndEmail(t *testing.T) {
	mock := &mockRedisEvaler{result: 2}
	l := newTestRedisLimiter(mock, 2*time.Minute)

	if !l.Allow(context.Background(), domain.OTPPurposeLogin, " User@Example.com ") {
		t.Fatalf("expected allow when count <= max")
	}
	if len(mock.lastKeys) != 1 || mock.lastKeys[0] != "otp:limit:login:user@example.com" {
		t.Fatalf("unexpected key, got %+v", mock.lastKeys)
	}
	if len(mock.lastArgs) != 1 || mock.lastArgs[0] != int64(120000) {
		t.Fatalf("expected window of 120000ms, got %+v", mock.lastArgs)
	}
	if mock.lastScript != otpWindowScript {
		t.Fatalf("expected fixed-window script")
	}
}

func TestRedisOTPRateLimiter_UsesCallerContext(t *testing.T) {
	mock := &mockRedisEvaler{result: 1}
	l := newTestRedisLimiter(mock, time.Minute)

	ctx := context.WithValue(context.Background(), ctxKey{}, "req-1")
	l.Allow(ctx, domain.OTPPurposeLogin, "a@b.com")
	if mock.lastCtx == nil || mock.lastCtx.Value(ctxKey{}) != "req-1" {
		t.Fatalf("expected eval to run under the caller context")
	}
	deadline, ok := mock.lastCtx.Deadline()
	if !ok || time.Until(deadline) > otpLimitEvalTimeout {
		t.Fatalf("expected eval deadline bounded by %s", otpLimitEvalTimeout)
	}

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	l.Allow(cancelled, domain.OTPPurposeLogin, "a@b.com")
	if mock.lastCtx.Err() == nil {
		t.Fatalf("expected caller cancellation to reach redis")
	}
}

func TestRedisOTPRateLimiter_Decisions(t *testing.T) {
	tests := []struct {
		name    string
		limiter *redisOTPRateLimiter
		purpose domain.OTPPurpose
		email   string
		want    bool
	}{
		{name: "nil limiter lets requests through", limiter: nil, purpose: domain.OTPPurposeLogin, email: "user@example.com", want: true},
		{name: "empty email rejected", limiter: newTestRedisLimiter(&mockRedisEvaler{result: 1}, time.Minute), purpose: domain.OTPPurposeLogin, email: "  ", want: false},
		{name: "unknown purpose rejected", limiter: newTestRedisLimiter(&mockRedisEvaler{result: 1}, time.Minute), purpose: "RESET", email: "a@b.com", want: false},
		{name: "at max allowed", limiter: newTestRedisLimiter(&mockRedisEvaler{result: 3}, time.Minute), purpose: domain.OTPPurposeLogin, email: "a@b.com", want: true},
		{name: "over max denied", limiter: newTestRedisLimiter(&mockRedisEvaler{result: 4}, time.Minute), purpose: domain.OTPPurposeLogin, email: "a@b.com", want: false},
		{name: "redis error lets requests through", limiter: newTestRedisLimiter(&mockRedisEvaler{err: errors.New("redis down")}, time.Minute), purpose: domain.OTPPurposeLogin, email: "a@b.com", want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.limiter.Allow(context.Background(), tt.purpose, tt.email); got != tt.want {
				t.Fatalf("Allow(%s, %q) = %v, want %v", tt.purpose, tt.email, got, tt.want)
			}
		})
	}
}

func TestRedisOTPRateLimiter_SubMillisecondWindowFallsBackToMinute(t *testing.T) {
	mock := &mockRedisEvaler{result: 1}
	l := newTestRedisLimiter(mock, 200*time.Microsecond)
	l.Allow(context.Background(), domain.OTPPurposeVerifyEmail, "a@b.com")
	if len(mock.lastArgs) != 1 || mock.lastArgs[0] != int64(60000) {
		t.Fatalf("expected fallback window of 60000ms, got %+v", mock.lastArgs)
	}
}

func TestNewRedisOTPRateLimiter_NilClient(t *testing.T) {
	if l := NewRedisOTPRateLimiter(zap.NewNop(), nil, time.Minute, 5); l != nil {
		t.Fatalf("expected nil limiter without a client")
	}
}

package service

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"chat-dashboard/internal/domain"
)

const (
	otpLimitKeyPrefix   = "otp:limit:"
	otpLimitEvalTimeout = 500 * time.Millisecond
)

// Ventana fija en milisegundos. El TTL solo se fija con el primer INCR.
const otpWindowScript = `
local n = redis.call("INCR", KEYS[1])
if n == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`

type redisEvaler interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

type redisOTPRateLimiter struct {
	logger *zap.Logger
	client redisEvaler
	window time.Duration
	max    int64
}

// NewRedisOTPRateLimiter comparte la ventana entre replicas. Ante errores de Redis
// deja pasar: limita abuso de envio, no concede acceso.
func NewRedisOTPRateLimiter(logger *zap.Logger, client *redis.Client, window time.Duration, max int) OTPRateLimiter {
	if client == nil {
		return nil
	}
	return newRedisOTPRateLimiter(logger, client, window, max)
}

func newRedisOTPRateLimiter(logger *zap.Logger, runner redisEvaler, window time.Duration, max int) *redisOTPRateLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if window < time.Millisecond {
		window = time.Minute
	}
	if max <= 0 {
		max = 1
	}
	return &redisOTPRateLimiter{logger: logger, client: runner, window: window, max: int64(max)}
}

func (l *redisOTPRateLimiter) Allow(ctx context.Context, purpose domain.OTPPurpose, email string) bool {
	if l == nil || l.client == nil {
		return true
	}
	key := otpLimitKey(purpose, email)
	if key == "" {
		return false
	}
	evalCtx, cancel := context.WithTimeout(ctx, otpLimitEvalTimeout)
	defer cancel()

	n, err := l.client.Eval(evalCtx, otpWindowScript, []string{otpLimitKeyPrefix + key}, l.window.Milliseconds()).Int64()
	if err != nil {
		l.logger.Warn("otp rate limit check failed", zap.String("purpose", purpose.External()), zap.Error(err))
		return true
	}
	return n <= l.max
}

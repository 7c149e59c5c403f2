package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"chat-dashboard/internal/domain"
)

// OTPRepository persiste codigos de un solo uso. IncrementAttempts y MarkUsed son
// operaciones atomicas de una sola fila.
type OTPRepository interface {
	Create(ctx context.Context, otp domain.OTP) error
	GetByID(ctx context.Context, id string) (domain.OTP, error)
	// IncrementAttempts suma un intento si el codigo sigue sin usar y devuelve el nuevo total.
	IncrementAttempts(ctx context.Context, id string) (int, error)
	// MarkUsed marca el codigo como usado solo si sigue canjeable en at.
	// Devuelve false si otra verificacion gano la carrera.
	MarkUsed(ctx context.Context, id string, at time.Time) (bool, error)
}

type PgOTPRepository struct {
	pool *pgxpool.Pool
}

func NewPgOTPRepository(pool *pgxpool.Pool) *PgOTPRepository {
	return &PgOTPRepository{pool: pool}
}

func (r *PgOTPRepository) Create(ctx context.Context, otp domain.OTP) error {
	const query = `
		INSERT INTO one_time_passcodes (
			id, code_hash, channel, purpose, email, user_id, expires_at,
			attempts, max_attempts, used, ip_address, user_agent, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := r.pool.Exec(ctx, query,
		otp.ID,
		otp.CodeHash,
		string(otp.Channel),
		string(otp.Purpose),
		otp.Email,
		otp.UserID,
		otp.ExpiresAt,
		otp.Attempts,
		otp.MaxAttempts,
		otp.Used,
		otp.IPAddress,
		otp.UserAgent,
		otp.CreatedAt,
	)
	return err
}

func (r *PgOTPRepository) GetByID(ctx context.Context, id string) (domain.OTP, error) {
	const query = `
		SELECT id, code_hash, channel, purpose, email, user_id, expires_at,
		       attempts, max_attempts, used, used_at, ip_address, user_agent, created_at
		FROM one_time_passcodes
		WHERE id = $1
	`
	var (
		o       domain.OTP
		channel string
		purpose string
	)
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&o.ID,
		&o.CodeHash,
		&channel,
		&purpose,
		&o.Email,
		&o.UserID,
		&o.ExpiresAt,
		&o.Attempts,
		&o.MaxAttempts,
		&o.Used,
		&o.UsedAt,
		&o.IPAddress,
		&o.UserAgent,
		&o.CreatedAt,
	)
	if err != nil {
		return domain.OTP{}, err
	}
	o.Channel = domain.OTPChannel(channel)
	o.Purpose = domain.OTPPurpose(purpose)
	return o, nil
}

func (r *PgOTPRepository) IncrementAttempts(ctx context.Context, id string) (int, error) {
	const query = `
		UPDATE one_time_passcodes
		SET attempts = attempts + 1
		WHERE id = $1 AND used = FALSE
		RETURNING attempts
	`
	var attempts int
	if err := r.pool.QueryRow(ctx, query, id).Scan(&attempts); err != nil {
		return 0, err
	}
	return attempts, nil
}

func (r *PgOTPRepository) MarkUsed(ctx context.Context, id string, at time.Time) (bool, error) {
	const query = `
		UPDATE one_time_passcodes
		SET used = TRUE, used_at = $2
		WHERE id = $1
		  AND used = FALSE
		  AND attempts < max_attempts
		  AND expires_at >= $2
	`
	tag, err := r.pool.Exec(ctx, query, id, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

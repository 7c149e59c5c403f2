package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"chat-dashboard/internal/domain"
)

// UserRepository define el contrato de persistencia para usuarios.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (domain.User, error)
	GetByEmail(ctx context.Context, email string) (domain.User, error)
	// CreateWithOrganization crea usuario, organizacion y membresia en una sola transaccion.
	CreateWithOrganization(ctx context.Context, user domain.User, org domain.Organization, membership domain.Membership) error
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
	CompleteOnboarding(ctx context.Context, id string) error
}

// PgUserRepository implementa UserRepository usando pgxpool.
type PgUserRepository struct {
	pool *pgxpool.Pool
}

func NewPgUserRepository(pool *pgxpool.Pool) *PgUserRepository {
	return &PgUserRepository{pool: pool}
}

const userColumns = `id, email, full_name, phone, email_verified_at, onboarding_completed, last_logged_in_at, created_at`

func scanUser(row pgx.Row) (domain.User, error) {
	var u domain.User
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.FullName,
		&u.Phone,
		&u.EmailVerifiedAt,
		&u.OnboardingCompleted,
		&u.LastLoggedInAt,
		&u.CreatedAt,
	)
	if err != nil {
		return domain.User{}, err
	}
	return u, nil
}

func (r *PgUserRepository) GetByID(ctx context.Context, id string) (domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.pool.QueryRow(ctx, query, id))
}

func (r *PgUserRepository) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1)`
	return scanUser(r.pool.QueryRow(ctx, query, email))
}

const insertUserSQL = `
	INSERT INTO users (id, email, full_name, phone, email_verified_at, last_logged_in_at, onboarding_completed, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`

// userInsertArgs sigue el orden de columnas de insertUserSQL.
func userInsertArgs(user domain.User) []any {
	return []any{
		user.ID,
		user.Email,
		user.FullName,
		user.Phone,
		user.EmailVerifiedAt,
		user.LastLoggedInAt,
		user.OnboardingCompleted,
		user.CreatedAt,
	}
}

func (r *PgUserRepository) CreateWithOrganization(ctx context.Context, user domain.User, org domain.Organization, membership domain.Membership) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, insertUserSQL, userInsertArgs(user)...); err != nil {
			return err
		}

		const insertOrg = `INSERT INTO organizations (id, name, created_at) VALUES ($1, $2, $3)`
		if _, err := tx.Exec(ctx, insertOrg, org.ID, org.Name, org.CreatedAt); err != nil {
			return err
		}

		const insertMembership = `
			INSERT INTO organization_memberships (id, user_id, organization_id, role, created_at)
			VALUES ($1, $2, $3, $4, $5)
		`
		_, err := tx.Exec(ctx, insertMembership,
			membership.ID,
			membership.UserID,
			membership.OrganizationID,
			string(membership.Role),
			membership.CreatedAt,
		)
		return err
	})
}

func (r *PgUserRepository) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET last_logged_in_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *PgUserRepository) CompleteOnboarding(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET onboarding_completed = TRUE WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// IsNotFound reporta si err proviene de una fila inexistente.
func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// IsUniqueViolation reporta si err es una violacion de indice unico (SQLSTATE 23505).
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"chat-dashboard/internal/domain"
)

// MembershipRepository es de solo lectura desde el core de auth.
type MembershipRepository interface {
	// ListByUser devuelve las membresias en orden de creacion estable.
	ListByUser(ctx context.Context, userID string) ([]domain.Membership, error)
}

type PgMembershipRepository struct {
	pool *pgxpool.Pool
}

func NewPgMembershipRepository(pool *pgxpool.Pool) *PgMembershipRepository {
	return &PgMembershipRepository{pool: pool}
}

func (r *PgMembershipRepository) ListByUser(ctx context.Context, userID string) ([]domain.Membership, error) {
	const query = `
		SELECT id, user_id, organization_id, role, created_at
		FROM organization_memberships
		WHERE user_id = $1
		ORDER BY created_at ASC, id ASC
	`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Membership, error) {
		var (
			m    domain.Membership
			role string
		)
		if err := row.Scan(&m.ID, &m.UserID, &m.OrganizationID, &role, &m.CreatedAt); err != nil {
			return domain.Membership{}, err
		}
		m.Role = domain.Role(role)
		return m, nil
	})
}

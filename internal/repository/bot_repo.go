package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"chat-dashboard/internal/domain"
)

// BotRepository solo expone lecturas acotadas a una organizacion: nunca por id a secas.
type BotRepository interface {
	GetForOrganization(ctx context.Context, organizationID, botID string) (domain.Bot, error)
}

type PgBotRepository struct {
	pool *pgxpool.Pool
}

func NewPgBotRepository(pool *pgxpool.Pool) *PgBotRepository {
	return &PgBotRepository{pool: pool}
}

func (r *PgBotRepository) GetForOrganization(ctx context.Context, organizationID, botID string) (domain.Bot, error) {
	const query = `
		SELECT id, organization_id, name, created_at
		FROM bots
		WHERE id = $1 AND organization_id = $2
	`
	var b domain.Bot
	err := r.pool.QueryRow(ctx, query, botID, organizationID).Scan(
		&b.ID,
		&b.OrganizationID,
		&b.Name,
		&b.CreatedAt,
	)
	if err != nil {
		return domain.Bot{}, err
	}
	return b, nil
}

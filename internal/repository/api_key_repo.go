package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"chat-dashboard/internal/domain"
)

type APIKeyRepository interface {
	Create(ctx context.Context, key domain.APIKey) error
	// GetActiveByHash busca por coincidencia exacta del hash (indice unico).
	GetActiveByHash(ctx context.Context, keyHash string) (domain.APIKey, error)
	ListByBot(ctx context.Context, organizationID, botID string) ([]domain.APIKey, error)
	// Revoke desactiva la llave sin borrarla. Devuelve false si no existe en ese bot.
	Revoke(ctx context.Context, organizationID, botID, keyID string, at time.Time) (bool, error)
	TouchLastUsed(ctx context.Context, id string, at time.Time) error
}

type PgAPIKeyRepository struct {
	pool *pgxpool.Pool
}

func NewPgAPIKeyRepository(pool *pgxpool.Pool) *PgAPIKeyRepository {
	return &PgAPIKeyRepository{pool: pool}
}

const apiKeyColumns = `id, organization_id, bot_id, name, prefix, key_hash, is_active, last_used_at, created_at, revoked_at`

func scanAPIKey(row pgx.Row) (domain.APIKey, error) {
	var k domain.APIKey
	err := row.Scan(
		&k.ID,
		&k.OrganizationID,
		&k.BotID,
		&k.Name,
		&k.Prefix,
		&k.KeyHash,
		&k.IsActive,
		&k.LastUsedAt,
		&k.CreatedAt,
		&k.RevokedAt,
	)
	if err != nil {
		return domain.APIKey{}, err
	}
	return k, nil
}

func (r *PgAPIKeyRepository) Create(ctx context.Context, key domain.APIKey) error {
	const query = `
		INSERT INTO api_keys (id, organization_id, bot_id, name, prefix, key_hash, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.pool.Exec(ctx, query,
		key.ID,
		key.OrganizationID,
		key.BotID,
		key.Name,
		key.Prefix,
		key.KeyHash,
		key.IsActive,
		key.CreatedAt,
	)
	return err
}

func (r *PgAPIKeyRepository) GetActiveByHash(ctx context.Context, keyHash string) (domain.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE key_hash = $1 AND is_active = TRUE`
	return scanAPIKey(r.pool.QueryRow(ctx, query, keyHash))
}

func (r *PgAPIKeyRepository) ListByBot(ctx context.Context, organizationID, botID string) ([]domain.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + `
		FROM api_keys
		WHERE organization_id = $1 AND bot_id = $2
		ORDER BY created_at DESC, id DESC`
	rows, err := r.pool.Query(ctx, query, organizationID, botID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.APIKey, error) {
		return scanAPIKey(row)
	})
}

func (r *PgAPIKeyRepository) Revoke(ctx context.Context, organizationID, botID, keyID string, at time.Time) (bool, error) {
	const query = `
		UPDATE api_keys
		SET is_active = FALSE, revoked_at = COALESCE(revoked_at, $4)
		WHERE id = $1 AND organization_id = $2 AND bot_id = $3
	`
	tag, err := r.pool.Exec(ctx, query, keyID, organizationID, botID, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PgAPIKeyRepository) TouchLastUsed(ctx context.Context, id string, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE api_keys SET last_used_at = $2 WHERE id = $1`, id, at)
	return err
}

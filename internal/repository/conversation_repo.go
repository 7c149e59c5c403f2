package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"chat-dashboard/internal/domain"
)

type ConversationRepository interface {
	Create(ctx context.Context, conversation domain.Conversation) error
	// GetForBot resuelve la conversacion dentro de organizacion y bot.
	GetForBot(ctx context.Context, organizationID, botID, conversationID string) (domain.Conversation, error)
}

type PgConversationRepository struct {
	pool *pgxpool.Pool
}

func NewPgConversationRepository(pool *pgxpool.Pool) *PgConversationRepository {
	return &PgConversationRepository{pool: pool}
}

func (r *PgConversationRepository) Create(ctx context.Context, conversation domain.Conversation) error {
	const query = `
		INSERT INTO conversations (id, bot_id, organization_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.pool.Exec(ctx, query,
		conversation.ID,
		conversation.BotID,
		conversation.OrganizationID,
		string(conversation.Status),
		conversation.CreatedAt,
	)
	return err
}

func (r *PgConversationRepository) GetForBot(ctx context.Context, organizationID, botID, conversationID string) (domain.Conversation, error) {
	const query = `
		SELECT id, bot_id, organization_id, status, created_at
		FROM conversations
		WHERE id = $1 AND bot_id = $2 AND organization_id = $3
	`
	var (
		c      domain.Conversation
		status string
	)
	err := r.pool.QueryRow(ctx, query, conversationID, botID, organizationID).Scan(
		&c.ID,
		&c.BotID,
		&c.OrganizationID,
		&status,
		&c.CreatedAt,
	)
	if err != nil {
		return domain.Conversation{}, err
	}
	c.Status = domain.ConversationStatus(status)
	return c, nil
}

package db

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"slackrelay/models"
)

// PostgresDeadLetterRepository archives dead letters to a Postgres table for
// durable, queryable retention. Wired in only when the archive is configured.
type PostgresDeadLetterRepository struct {
	db    *sqlx.DB
	table string
}

func NewPostgresDeadLetterRepository(db *sqlx.DB, table string) *PostgresDeadLetterRepository {
	return &PostgresDeadLetterRepository{
		db:    db,
		table: table,
	}
}

func (r *PostgresDeadLetterRepository) Record(ctx context.Context, letter *models.DeadLetter) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, kind, payload, reason, classification, attempt_count, created_at)
		VALUES (:id, :kind, :payload, :reason, :classification, :attempt_count, :created_at)`,
		r.table)

	if _, err := r.db.NamedExecContext(ctx, query, letter); err != nil {
		return fmt.Errorf("failed to archive dead letter: %w", err)
	}
	return nil
}

func (r *PostgresDeadLetterRepository) List(ctx context.Context, limit int64) ([]*models.DeadLetter, error) {
	query := fmt.Sprintf(`
		SELECT id, kind, payload, reason, classification, attempt_count, created_at
		FROM %s
		ORDER BY created_at DESC
		LIMIT $1`,
		r.table)

	letters := []*models.DeadLetter{}
	if err := r.db.SelectContext(ctx, &letters, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list archived dead letters: %w", err)
	}
	return letters, nil
}

package postgres

import (
	"context"
	"database/sql"
	"time"

	"spotbook-backend/internal/repository"
)

type processedEventRepository struct {
	db *sql.DB
}

func NewProcessedEventRepository(db *sql.DB) repository.ProcessedEventRepository {
	return &processedEventRepository{db: db}
}

func (r *processedEventRepository) IsProcessed(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM processed_events WHERE event_key = $1)`, key).Scan(&exists)
	return exists, err
}

func (r *processedEventRepository) MarkProcessed(ctx context.Context, key string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO processed_events (event_key, processed_on) VALUES ($1, $2) ON CONFLICT (event_key) DO NOTHING`, key, at)
	return err
}

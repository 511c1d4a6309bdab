package repository

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresKV struct {
	db *pgxpool.Pool
}

func NewPostgresKV(db *pgxpool.Pool) *PostgresKV {
	return &PostgresKV{db: db}
}

func (r *PostgresKV) Get(ctx context.Context, keys ...string) (map[string]string, error) {
	const query = `SELECT key, value FROM settings WHERE key = ANY($1)`

	rows, err := r.db.Query(ctx, query, keys)
	if err != nil {
		return nil, unavailable("get", fmt.Errorf("failed to query settings: %w", err))
	}
	defer rows.Close()

	result := make(map[string]string, len(keys))
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, unavailable("get", fmt.Errorf("failed to scan setting: %w", err))
		}
		result[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("get", fmt.Errorf("failed to read settings: %w", err))
	}
	return result, nil
}

func (r *PostgresKV) Set(ctx context.Context, values map[string]string) error {
	const query = `
	INSERT INTO settings (key, value, updated_at)
	VALUES ($1, $2, now())
	ON CONFLICT (key) DO UPDATE SET
		value = EXCLUDED.value,
		updated_at = EXCLUDED.updated_at
	`

	if len(values) == 0 {
		return nil
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return unavailable("set", fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && err != pgx.ErrTxClosed {
			slog.Warn("failed to rollback transaction", "error", err)
		}
	}()

	batch := &pgx.Batch{}
	for key, value := range values {
		batch.Queue(query, key, value)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return unavailable("set", fmt.Errorf("failed to upsert settings: %w", err))
	}

	if err := tx.Commit(ctx); err != nil {
		return unavailable("set", fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

var _ KV = (*PostgresKV)(nil)

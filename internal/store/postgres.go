package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"alertsync/internal/models"
)

const mappingSchema = `
CREATE TABLE IF NOT EXISTS alert_mapping (
    alert_id   TEXT PRIMARY KEY,
    ticket_id  TEXT NOT NULL,
    status     TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_alert_mapping_status ON alert_mapping (status);
`

// PostgresStore keeps mapping records in a postgres table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to postgres and ensures the mapping table exists.
func NewPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, mappingSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate mapping table: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Get(ctx context.Context, alertID string) (models.MappingRecord, error) {
	query := `
	SELECT alert_id, ticket_id, status, created_at, updated_at
	FROM alert_mapping
	WHERE alert_id = $1`

	var rec models.MappingRecord
	err := s.pool.QueryRow(ctx, query, alertID).Scan(
		&rec.AlertID,
		&rec.TicketID,
		&rec.Status,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.MappingRecord{}, ErrNotFound
	}
	if err != nil {
		return models.MappingRecord{}, fmt.Errorf("failed to get mapping: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]models.MappingRecord, error) {
	return s.list(ctx, `
	SELECT alert_id, ticket_id, status, created_at, updated_at
	FROM alert_mapping
	ORDER BY updated_at DESC`)
}

func (s *PostgresStore) ListActive(ctx context.Context) ([]models.MappingRecord, error) {
	return s.list(ctx, `
	SELECT alert_id, ticket_id, status, created_at, updated_at
	FROM alert_mapping
	WHERE status = 'active'
	ORDER BY updated_at DESC`)
}

func (s *PostgresStore) list(ctx context.Context, query string) ([]models.MappingRecord, error) {
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list mappings: %w", err)
	}
	defer rows.Close()

	var list []models.MappingRecord
	for rows.Next() {
		var rec models.MappingRecord
		err := rows.Scan(
			&rec.AlertID,
			&rec.TicketID,
			&rec.Status,
			&rec.CreatedAt,
			&rec.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan mapping: %w", err)
		}
		list = append(list, rec)
	}
	return list, rows.Err()
}

func (s *PostgresStore) Upsert(ctx context.Context, rec models.MappingRecord) error {
	query := `
    INSERT INTO alert_mapping (alert_id, ticket_id, status, created_at, updated_at)
    VALUES ($1, $2, $3, $4, $5)
    ON CONFLICT (alert_id) DO UPDATE
    SET ticket_id = EXCLUDED.ticket_id,
        status = EXCLUDED.status,
        updated_at = EXCLUDED.updated_at`

	_, err := s.pool.Exec(ctx, query,
		rec.AlertID,
		rec.TicketID,
		rec.Status,
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert mapping: %w", err)
	}
	return nil
}

func (s *PostgresStore) MarkClosed(ctx context.Context, alertID string) error {
	query := `
	UPDATE alert_mapping
	SET status = 'closed', updated_at = $2
	WHERE alert_id = $1`

	tag, err := s.pool.Exec(ctx, query, alertID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to close mapping: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

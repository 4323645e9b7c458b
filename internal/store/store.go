// Package store persists the alert-to-ticket mapping records across runs.
// Backends: postgres (pgx), redis, and a flat JSON file.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"alertsync/internal/config"
	"alertsync/internal/models"
)

// ErrNotFound is returned when no mapping record exists for an alert.
var ErrNotFound = errors.New("mapping not found")

// MappingStore is the durable key-value table of mapping records, keyed by
// alert identity. At most one record per alert; closed records are kept.
type MappingStore interface {
	// Get returns the record for the alert identity, or ErrNotFound.
	Get(ctx context.Context, alertID string) (models.MappingRecord, error)
	// List returns all records, active and closed.
	List(ctx context.Context) ([]models.MappingRecord, error)
	// ListActive returns records that still point at an open ticket.
	ListActive(ctx context.Context) ([]models.MappingRecord, error)
	// Upsert inserts or replaces the record for its alert identity.
	Upsert(ctx context.Context, rec models.MappingRecord) error
	// MarkClosed transitions the record to closed. Returns ErrNotFound
	// if no record exists; closing an already-closed record is a no-op.
	MarkClosed(ctx context.Context, alertID string) error
	Close() error
}

// Open builds the store backend selected by configuration.
func Open(ctx context.Context, cfg config.Config, logger *logrus.Logger) (MappingStore, error) {
	switch cfg.Store.Backend {
	case "postgres":
		return NewPostgres(ctx, cfg.Store.DSN)
	case "redis":
		return NewRedis(cfg.Store.RedisAddr, cfg.Store.RedisPassword, cfg.Store.RedisDB), nil
	case "file":
		return NewFile(cfg.Store.FilePath)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

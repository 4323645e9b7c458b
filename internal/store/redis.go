package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"alertsync/internal/models"
)

const (
	mappingKeyPrefix = "mapping:"
	mappingIndexKey  = "mappings:index"
	mappingActiveKey = "mappings:active"
)

// RedisStore keeps mapping records as JSON values with two index sets, one
// for all records and one for the active subset.
type RedisStore struct {
	client *redis.Client
}

// NewRedis builds a redis-backed mapping store.
func NewRedis(addr, password string, db int) *RedisStore {
	return &RedisStore{client: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

func (s *RedisStore) Get(ctx context.Context, alertID string) (models.MappingRecord, error) {
	data, err := s.client.Get(ctx, mappingKeyPrefix+alertID).Result()
	if errors.Is(err, redis.Nil) {
		return models.MappingRecord{}, ErrNotFound
	}
	if err != nil {
		return models.MappingRecord{}, fmt.Errorf("failed to get mapping: %w", err)
	}
	var rec models.MappingRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return models.MappingRecord{}, fmt.Errorf("failed to decode mapping %s: %w", alertID, err)
	}
	return rec, nil
}

func (s *RedisStore) List(ctx context.Context) ([]models.MappingRecord, error) {
	return s.listSet(ctx, mappingIndexKey)
}

func (s *RedisStore) ListActive(ctx context.Context) ([]models.MappingRecord, error) {
	return s.listSet(ctx, mappingActiveKey)
}

func (s *RedisStore) listSet(ctx context.Context, indexKey string) ([]models.MappingRecord, error) {
	ids, err := s.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read mapping index: %w", err)
	}

	var list []models.MappingRecord
	for _, id := range ids {
		rec, err := s.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			// Index entry without a record; skip it
			continue
		}
		if err != nil {
			return nil, err
		}
		list = append(list, rec)
	}
	return list, nil
}

func (s *RedisStore) Upsert(ctx context.Context, rec models.MappingRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode mapping %s: %w", rec.AlertID, err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, mappingKeyPrefix+rec.AlertID, data, 0)
	pipe.SAdd(ctx, mappingIndexKey, rec.AlertID)
	if rec.Active() {
		pipe.SAdd(ctx, mappingActiveKey, rec.AlertID)
	} else {
		pipe.SRem(ctx, mappingActiveKey, rec.AlertID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to upsert mapping %s: %w", rec.AlertID, err)
	}
	return nil
}

func (s *RedisStore) MarkClosed(ctx context.Context, alertID string) error {
	rec, err := s.Get(ctx, alertID)
	if err != nil {
		return err
	}
	if !rec.Active() {
		return nil
	}
	rec.Status = models.MappingClosed
	rec.UpdatedAt = time.Now().UTC()
	return s.Upsert(ctx, rec)
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

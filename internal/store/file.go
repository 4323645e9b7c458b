package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"alertsync/internal/models"
)

// FileStore keeps mapping records in a single JSON document. Every write
// goes through a temp file and rename so a killed run never leaves a
// half-written state file.
type FileStore struct {
	path string

	mu      sync.Mutex
	records map[string]models.MappingRecord
}

type fileDocument struct {
	Version int                             `json:"version"`
	Records map[string]models.MappingRecord `json:"records"`
}

// NewFile opens (or initializes) the state file at path.
func NewFile(path string) (*FileStore, error) {
	s := &FileStore{
		path:    path,
		records: make(map[string]models.MappingRecord),
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state file %s: %w", path, err)
	}

	var doc fileDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse state file %s: %w", path, err)
	}
	if doc.Records != nil {
		s.records = doc.Records
	}
	return s, nil
}

func (s *FileStore) Get(ctx context.Context, alertID string) (models.MappingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[alertID]
	if !ok {
		return models.MappingRecord{}, ErrNotFound
	}
	return rec, nil
}

func (s *FileStore) List(ctx context.Context) ([]models.MappingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := make([]models.MappingRecord, 0, len(s.records))
	for _, rec := range s.records {
		list = append(list, rec)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].AlertID < list[j].AlertID })
	return list, nil
}

func (s *FileStore) ListActive(ctx context.Context) ([]models.MappingRecord, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	active := all[:0]
	for _, rec := range all {
		if rec.Active() {
			active = append(active, rec)
		}
	}
	return active, nil
}

func (s *FileStore) Upsert(ctx context.Context, rec models.MappingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, existed := s.records[rec.AlertID]
	s.records[rec.AlertID] = rec
	if err := s.flush(); err != nil {
		// Keep memory and disk in agreement
		if existed {
			s.records[rec.AlertID] = prev
		} else {
			delete(s.records, rec.AlertID)
		}
		return err
	}
	return nil
}

func (s *FileStore) MarkClosed(ctx context.Context, alertID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[alertID]
	if !ok {
		return ErrNotFound
	}
	if !rec.Active() {
		return nil
	}
	prev := rec
	rec.Status = models.MappingClosed
	rec.UpdatedAt = time.Now().UTC()
	s.records[alertID] = rec
	if err := s.flush(); err != nil {
		s.records[alertID] = prev
		return err
	}
	return nil
}

// flush writes the document atomically. Caller holds the lock.
func (s *FileStore) flush() error {
	doc := fileDocument{Version: 1, Records: s.records}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".alertsync-state-*")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close temp state file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}

func (s *FileStore) Close() error {
	return nil
}

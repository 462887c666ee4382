package db

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/markdave123-py/talktrack/internal/core"
	"github.com/markdave123-py/talktrack/internal/models"
)

var _ core.FileStore = (*MemoryFileStore)(nil)

// MemoryFileStore keeps file records in process memory. It records every
// status write so callers can inspect the transition history.
type MemoryFileStore struct {
	mu      sync.RWMutex
	files   map[string]models.File
	history map[string][]models.FileStatus
}

func NewMemoryFileStore() *MemoryFileStore {
	return &MemoryFileStore{
		files:   make(map[string]models.File),
		history: make(map[string][]models.FileStatus),
	}
}

func (s *MemoryFileStore) CreateFile(_ context.Context, f *models.File) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.files[f.ID]; ok {
		return fmt.Errorf("file %s already exists", f.ID)
	}
	if f.Status == "" {
		f.Status = models.StatusPending
	}
	now := time.Now().UTC()
	f.CreatedAt, f.UpdatedAt = now, now
	s.files[f.ID] = *f
	s.history[f.ID] = append(s.history[f.ID], f.Status)
	return nil
}

func (s *MemoryFileStore) GetFile(_ context.Context, id string) (*models.File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.files[id]
	if !ok {
		return nil, fmt.Errorf("file %s: %w", id, core.ErrNotFound)
	}
	return &f, nil
}

func (s *MemoryFileStore) UpdateStatus(_ context.Context, id string, status models.FileStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.files[id]
	if !ok {
		return fmt.Errorf("file %s: %w", id, core.ErrNotFound)
	}
	if !f.Status.CanTransitionTo(status) {
		return fmt.Errorf("file %s %s -> %s: %w", id, f.Status, status, core.ErrInvalidTransition)
	}
	f.Status = status
	f.UpdatedAt = time.Now().UTC()
	s.files[id] = f
	s.history[id] = append(s.history[id], status)
	return nil
}

func (s *MemoryFileStore) MarkProcessing(_ context.Context, id string, durationMinutes float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.files[id]
	if !ok {
		return fmt.Errorf("file %s: %w", id, core.ErrNotFound)
	}
	if !f.Status.CanTransitionTo(models.StatusProcessing) {
		return fmt.Errorf("file %s %s -> %s: %w", id, f.Status, models.StatusProcessing, core.ErrInvalidTransition)
	}
	f.Status = models.StatusProcessing
	f.DurationMinutes = durationMinutes
	f.UpdatedAt = time.Now().UTC()
	s.files[id] = f
	s.history[id] = append(s.history[id], models.StatusProcessing)
	return nil
}

// History returns every status written for id, oldest first.
func (s *MemoryFileStore) History(id string) []models.FileStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.FileStatus(nil), s.history[id]...)
}

func (s *MemoryFileStore) Close() error { return nil }

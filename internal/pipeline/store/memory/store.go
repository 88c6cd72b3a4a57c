// Package memory implements the upload ledger in process memory. It backs
// tests and ephemeral runs, with the same conflict semantics as the postgres
// backend.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pixelpost/pixelpost/internal/common/apperrors"
	"github.com/pixelpost/pixelpost/internal/pipeline/store"
	"github.com/pixelpost/pixelpost/internal/pipeline/store/storeerror"
)

// Store is the in-memory upload ledger.
type Store struct {
	mu      sync.Mutex
	byHash  map[string]*store.UploadRecord
	byID    map[uuid.UUID]*store.UploadRecord
	ordered []*store.UploadRecord
	now     func() time.Time
}

var _ store.Store = (*Store)(nil)

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		byHash: make(map[string]*store.UploadRecord),
		byID:   make(map[uuid.UUID]*store.UploadRecord),
		now:    time.Now,
	}
}

// SetClock overrides the clock used for created_at assignment. Test hook.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) Close() error {
	return nil
}

func (s *Store) Lookup(_ context.Context, hash string) (*store.UploadRecord, apperrors.Error) {
	if hash == "" {
		return nil, storeerror.ErrInvalidInput.Msg("content hash is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byHash[hash]
	if !ok {
		return nil, storeerror.ErrNotFound.Msg("no record for content hash")
	}
	cp := *rec
	return &cp, nil
}

func (s *Store) IsDuplicate(ctx context.Context, artifactPath string) (store.DupCheck, apperrors.Error) {
	return store.CheckDuplicate(ctx, s, artifactPath)
}

func (s *Store) Save(_ context.Context, rec *store.UploadRecord) (uuid.UUID, apperrors.Error) {
	if rec.ContentHash == "" {
		return uuid.Nil, storeerror.ErrInvalidInput.Msg("content hash is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byHash[rec.ContentHash]; exists {
		return uuid.Nil, storeerror.ErrConflict.Msg("record with this content hash already exists")
	}

	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	rec.CreatedAt = s.now()

	cp := *rec
	s.byHash[cp.ContentHash] = &cp
	s.byID[cp.ID] = &cp
	s.ordered = append(s.ordered, &cp)
	return cp.ID, nil
}

func (s *Store) UpdateStatus(_ context.Context, id uuid.UUID, status store.Status, errMsg string) apperrors.Error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[id]
	if !ok {
		return storeerror.ErrNotFound.Msg("no record with given id")
	}
	rec.Status = status
	rec.ErrorMessage = errMsg
	return nil
}

func (s *Store) CountSuccessesOn(_ context.Context, day time.Time) (int, apperrors.Error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	target := day.UTC().Format("2006-01-02")
	count := 0
	for _, rec := range s.ordered {
		if rec.Status == store.StatusSuccess && rec.CreatedAt.UTC().Format("2006-01-02") == target {
			count++
		}
	}
	return count, nil
}

func (s *Store) ListRecent(_ context.Context, limit int) ([]store.UploadRecord, apperrors.Error) {
	if limit <= 0 {
		return nil, storeerror.ErrInvalidInput.Msg("limit must be positive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	records := make([]store.UploadRecord, 0, len(s.ordered))
	for _, rec := range s.ordered {
		records = append(records, *rec)
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

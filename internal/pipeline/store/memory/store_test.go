package memory

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixelpost/pixelpost/internal/pipeline/store"
	"github.com/pixelpost/pixelpost/internal/pipeline/store/storeerror"
)

func newRecord(hash string) *store.UploadRecord {
	return &store.UploadRecord{
		ContentHash: hash,
		Generator:   "test-profile",
		Meta: store.Metadata{
			Title: "a title",
			Tags:  []string{"tag"},
		},
		Status: store.StatusSuccess,
	}
}

func TestSaveThenLookup(t *testing.T) {
	ctx := context.Background()
	s := New()

	id, err := s.Save(ctx, newRecord("h1"))
	require.NoError(t, err)
	require.NotEqual(t, "", id.String())

	rec, err := s.Lookup(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, "h1", rec.ContentHash)
	assert.Equal(t, "a title", rec.Meta.Title)
	assert.False(t, rec.CreatedAt.IsZero())
}

func TestSaveConflictOnSameHash(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, err := s.Save(ctx, newRecord("h1"))
	require.NoError(t, err)

	// Different metadata, same content. Must still conflict.
	dup := newRecord("h1")
	dup.Meta.Title = "another title"
	_, err = s.Save(ctx, dup)
	require.Error(t, err)
	assert.True(t, storeerror.IsConflict(err))

	// Every subsequent attempt keeps conflicting.
	_, err = s.Save(ctx, newRecord("h1"))
	assert.True(t, storeerror.IsConflict(err))
}

func TestLookupMissing(t *testing.T) {
	s := New()
	_, err := s.Lookup(context.Background(), "unseen")
	require.Error(t, err)
	assert.True(t, storeerror.IsNotFound(err))
}

func TestUpdateStatus(t *testing.T) {
	ctx := context.Background()
	s := New()

	rec := newRecord("h1")
	rec.Status = store.StatusPending
	id, err := s.Save(ctx, rec)
	require.NoError(t, err)

	require.NoError(t, s.UpdateStatus(ctx, id, store.StatusFailed, "upload refused"))

	got, err := s.Lookup(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, got.Status)
	assert.Equal(t, "upload refused", got.ErrorMessage)
}

func TestCountSuccessesOn(t *testing.T) {
	ctx := context.Background()
	s := New()

	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return day.Add(10 * time.Hour) })

	for _, hash := range []string{"a", "b", "c"} {
		_, err := s.Save(ctx, newRecord(hash))
		require.NoError(t, err)
	}
	failed := newRecord("d")
	failed.Status = store.StatusFailed
	_, err := s.Save(ctx, failed)
	require.NoError(t, err)

	// One success on the previous day stays out of the count.
	s.SetClock(func() time.Time { return day.Add(-5 * time.Hour) })
	_, err = s.Save(ctx, newRecord("e"))
	require.NoError(t, err)

	count, err := s.CountSuccessesOn(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestListRecentNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := New()

	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	for i, hash := range []string{"a", "b", "c"} {
		ts := base.Add(time.Duration(i) * time.Minute)
		s.SetClock(func() time.Time { return ts })
		_, err := s.Save(ctx, newRecord(hash))
		require.NoError(t, err)
	}

	records, err := s.ListRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "c", records[0].ContentHash)
	assert.Equal(t, "b", records[1].ContentHash)
}

func TestIsDuplicate(t *testing.T) {
	ctx := context.Background()
	s := New()

	dir := t.TempDir()
	path := filepath.Join(dir, "art.png")
	require.NoError(t, os.WriteFile(path, []byte("png bytes"), 0600))

	check, err := s.IsDuplicate(ctx, path)
	require.NoError(t, err)
	assert.False(t, check.IsDuplicate)
	assert.NotEmpty(t, check.Hash)

	rec := newRecord(check.Hash)
	_, err = s.Save(ctx, rec)
	require.NoError(t, err)

	check2, err := s.IsDuplicate(ctx, path)
	require.NoError(t, err)
	assert.True(t, check2.IsDuplicate)
	assert.Equal(t, check.Hash, check2.Hash)
	require.NotNil(t, check2.Existing)
	assert.Equal(t, check.Hash, check2.Existing.ContentHash)
}

// Package store defines the persistent ledger of everything ever published.
// It is the system's source of truth for "has this exact content already been
// published" and "how many successes happened today". Backends live in the
// postgres and memory subpackages.
package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/pixelpost/pixelpost/internal/common/apperrors"
	"github.com/pixelpost/pixelpost/internal/pipeline/store/storeerror"
)

// Store is the persistent-store contract the pipeline depends on. Save must
// reject a record whose ContentHash already exists with
// storeerror.ErrConflict; that uniqueness check is the system's only real
// exactly-once guarantee. Any I/O failure is returned, never swallowed.
type Store interface {
	// Lookup returns the record with the given content hash, or
	// storeerror.ErrNotFound. Pure read.
	Lookup(ctx context.Context, hash string) (*UploadRecord, apperrors.Error)
	// IsDuplicate hashes the artifact file and probes for an existing record.
	// Side-effect free.
	IsDuplicate(ctx context.Context, artifactPath string) (DupCheck, apperrors.Error)
	// Save inserts a new record and returns its id. Fails with
	// storeerror.ErrConflict if the content hash already exists.
	Save(ctx context.Context, rec *UploadRecord) (uuid.UUID, apperrors.Error)
	// UpdateStatus is the explicit status-correction path.
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status, errMsg string) apperrors.Error
	// CountSuccessesOn returns the number of successful records created on
	// the given calendar day (UTC).
	CountSuccessesOn(ctx context.Context, day time.Time) (int, apperrors.Error)
	// ListRecent returns up to limit records, newest first.
	ListRecent(ctx context.Context, limit int) ([]UploadRecord, apperrors.Error)
	// Close releases the underlying connection.
	Close() error
}

// ComputeHash returns the hex SHA-256 digest of the reader's contents.
func ComputeHash(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashFile returns the hex SHA-256 digest of a file's contents.
func HashFile(path string) (string, apperrors.Error) {
	f, err := os.Open(path)
	if err != nil {
		return "", storeerror.ErrInvalidInput.MsgErr("cannot open artifact", err)
	}
	defer f.Close()

	hash, err := ComputeHash(f)
	if err != nil {
		return "", storeerror.ErrStore.MsgErr("cannot hash artifact", err)
	}
	return hash, nil
}

// CheckDuplicate implements the duplicate probe shared by all backends: read
// the file, hash it, look the hash up.
func CheckDuplicate(ctx context.Context, s Store, artifactPath string) (DupCheck, apperrors.Error) {
	hash, err := HashFile(artifactPath)
	if err != nil {
		return DupCheck{}, err
	}

	existing, err := s.Lookup(ctx, hash)
	if err != nil {
		if storeerror.IsNotFound(err) {
			return DupCheck{IsDuplicate: false, Hash: hash}, nil
		}
		return DupCheck{}, err
	}
	return DupCheck{IsDuplicate: true, Hash: hash, Existing: existing}, nil
}

// Package storeerror defines the sentinel errors returned by store backends.
package storeerror

import (
	"errors"

	"github.com/pixelpost/pixelpost/internal/common/apperrors"
)

var (
	ErrStore        apperrors.Error = apperrors.New("store error")
	ErrConflict     apperrors.Error = ErrStore.New("content hash already exists")
	ErrNotFound     apperrors.Error = ErrStore.New("not found")
	ErrInvalidInput apperrors.Error = ErrStore.New("invalid input")
)

// IsConflict reports whether err is a uniqueness conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsNotFound reports whether err is a missing-record error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

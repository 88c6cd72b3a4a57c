package apperrors

import (
	"errors"
	"fmt"
	"testing"
)

func TestSentinelChaining(t *testing.T) {
	root := New("store error")
	conflict := root.New("conflict")

	err := conflict.Msg("content hash already recorded")
	if !errors.Is(err, conflict) {
		t.Error("derived error should match its sentinel")
	}
	if !errors.Is(err, root) {
		t.Error("derived error should match the root sentinel")
	}
}

func TestErrWrapsExternal(t *testing.T) {
	root := New("store error")
	ioErr := fmt.Errorf("connection refused")

	err := root.Err(ioErr)
	if !errors.Is(err, ioErr) {
		t.Error("wrapped external error should be matchable")
	}
	if len(err.UnwrapAll()) != 2 {
		t.Errorf("expected 2 wrapped errors, got %d", len(err.UnwrapAll()))
	}
}

func TestMessageIncludesWrapped(t *testing.T) {
	root := New("gateway error")
	err := root.MsgErr("posting failed", errors.New("timeout"))

	want := "posting failed: gateway error: timeout"
	if err.Error() != want {
		t.Errorf("expected %q, got %q", want, err.Error())
	}
}

func TestSiblingsDoNotMatch(t *testing.T) {
	root := New("store error")
	conflict := root.New("conflict")
	notFound := root.New("not found")

	if errors.Is(conflict.Msg("x"), notFound) {
		t.Error("sibling sentinels must not match each other")
	}
}

package proclock

import (
	"errors"
	"testing"
)

func TestLockExcludesSecondHolder(t *testing.T) {
	dir := t.TempDir()
	first, err := New(dir)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := first.Acquire(); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	second, err := New(dir)
	if err != nil {
		t.Fatalf("new second: %v", err)
	}
	if err := second.Acquire(); !errors.Is(err, ErrAlreadyLocked) {
		t.Fatalf("second acquire error = %v, want already locked", err)
	}

	if err := first.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := second.Acquire(); err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	if err := second.Release(); err != nil {
		t.Fatalf("release second: %v", err)
	}
}

func TestLockRequiresDirectory(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty directory")
	}
}

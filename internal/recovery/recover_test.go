package recovery

import (
	"errors"
	"io"
	"log/slog"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestRecoverToError verifies panics become ErrPanic and plain errors pass through.
func TestRecoverToError(t *testing.T) {
	logger := discardLogger()

	err := RecoverToError(logger, "decode", func() error {
		panic("index out of range")
	})
	if !errors.Is(err, ErrPanic) {
		t.Fatalf("Expected ErrPanic, got %v", err)
	}

	sentinel := errors.New("boom")
	err = RecoverToError(logger, "decode", func() error { return sentinel })
	if !errors.Is(err, sentinel) {
		t.Errorf("Expected passthrough error, got %v", err)
	}
	if errors.Is(err, ErrPanic) {
		t.Error("Plain error must not wrap ErrPanic")
	}
}

// TestRecoverToValue verifies the zero value is returned after a panic.
func TestRecoverToValue(t *testing.T) {
	v, err := RecoverToValue(discardLogger(), "next", func() (int, error) {
		var m map[string]int
		m["x"] = 1
		return 42, nil
	})
	if !errors.Is(err, ErrPanic) {
		t.Fatalf("Expected ErrPanic, got %v", err)
	}
	if v != 0 {
		t.Errorf("Expected zero value, got %d", v)
	}

	v, err = RecoverToValue(nil, "next", func() (int, error) { return 7, nil })
	if err != nil || v != 7 {
		t.Errorf("Expected (7, nil), got (%d, %v)", v, err)
	}
}

// TestRecover verifies a panicking release does not propagate.
func TestRecover(t *testing.T) {
	called := false
	Recover(discardLogger(), "release", func() {
		called = true
		panic("double release")
	})
	if !called {
		t.Error("Expected function to run")
	}
}

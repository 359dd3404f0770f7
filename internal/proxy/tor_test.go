package proxy

import (
	"errors"
	"testing"
	"time"
)

// TestEmbeddedTorWithoutStart tests the manager before the daemon runs.
func TestEmbeddedTorWithoutStart(t *testing.T) {
	t.Parallel()

	t.Run("default timeout", func(t *testing.T) {
		t.Parallel()

		e := NewEmbeddedTor()
		if e.startupTimeout != DefaultTorStartupTimeout {
			t.Errorf("got %v, want %v", e.startupTimeout, DefaultTorStartupTimeout)
		}
	})

	t.Run("WithStartupTimeout", func(t *testing.T) {
		t.Parallel()

		e := NewEmbeddedTor(WithStartupTimeout(5 * time.Minute))
		if e.startupTimeout != 5*time.Minute {
			t.Errorf("got %v, want 5m", e.startupTimeout)
		}
	})

	t.Run("Endpoint fails when not running", func(t *testing.T) {
		t.Parallel()

		e := NewEmbeddedTor()
		if e.IsRunning() {
			t.Fatal("expected not running")
		}
		if _, err := e.Endpoint(); !errors.Is(err, ErrTorNotRunning) {
			t.Errorf("expected ErrTorNotRunning, got %v", err)
		}
	})

	t.Run("Stop is safe before Start", func(t *testing.T) {
		t.Parallel()

		if err := NewEmbeddedTor().Stop(); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

package shared

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestIsSQLiteConflictError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"busy", errors.New("database is locked (5) (SQLITE_BUSY)"), true},
		{"locked", errors.New("database is locked"), true},
		{"wrapped", fmt.Errorf("save: %w", errors.New("SQLITE_BUSY")), true},
		{"unrelated", errors.New("no such table: sessions"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsSQLiteConflictError(tt.err); got != tt.want {
				t.Errorf("IsSQLiteConflictError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestRetry(t *testing.T) {
	busy := errors.New("SQLITE_BUSY")
	fast := Backoff{Attempts: 3, BaseDelay: time.Millisecond}

	t.Run("succeeds after conflicts", func(t *testing.T) {
		calls := 0
		err := Retry(context.Background(), "save", fast, func() error {
			calls++
			if calls < 3 {
				return busy
			}
			return nil
		})
		if err != nil || calls != 3 {
			t.Fatalf("Retry = %v after %d calls, want nil after 3", err, calls)
		}
	})

	t.Run("gives up", func(t *testing.T) {
		calls := 0
		err := Retry(context.Background(), "save", fast, func() error {
			calls++
			return busy
		})
		if !errors.Is(err, busy) || calls != 3 {
			t.Fatalf("Retry = %v after %d calls", err, calls)
		}
	})

	t.Run("other errors are not retried", func(t *testing.T) {
		calls := 0
		boom := errors.New("constraint failed")
		err := Retry(context.Background(), "save", fast, func() error {
			calls++
			return boom
		})
		if !errors.Is(err, boom) || calls != 1 {
			t.Fatalf("Retry = %v after %d calls", err, calls)
		}
	})

	t.Run("canceled context stops waiting", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := Retry(ctx, "save", Backoff{Attempts: 3, BaseDelay: time.Hour}, func() error { return busy })
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Retry = %v, want context.Canceled", err)
		}
	})
}

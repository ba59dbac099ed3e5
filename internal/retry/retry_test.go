package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/agentmem/agentmem/internal/apperr"
)

func TestIsTransient(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"apperr transient", apperr.Transient(apperr.KindEmbedding, "boom", errors.New("x")), true},
		{"apperr permanent", apperr.New(apperr.KindValidation, "bad input"), false},
		{"message marker", errors.New("upstream returned 503"), true},
		{"unrelated message", errors.New("invalid api key"), false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := IsTransient(c.err); got != c.want {
				t.Errorf("IsTransient(%v) = %v, want %v", c.err, got, c.want)
			}
		})
	}
}

func TestDo_RetriesTransientThenSucceeds(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), 3, time.Millisecond, func(ctx context.Context) error {
		attempts++
		if attempts < 2 {
			return apperr.Transient(apperr.KindEmbedding, "flaky", errors.New("503"))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", attempts)
	}
}

func TestDo_PermanentErrorStopsImmediately(t *testing.T) {
	attempts := 0
	wantErr := apperr.New(apperr.KindValidation, "bad request")
	err := Do(context.Background(), 3, time.Millisecond, func(ctx context.Context) error {
		attempts++
		return wantErr
	})
	if !errors.Is(err, wantErr) && err.Error() != wantErr.Error() {
		t.Errorf("expected permanent error to surface unchanged, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("expected exactly 1 attempt for a permanent error, got %d", attempts)
	}
}

func TestDo_ExhaustsMaxAttempts(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), 3, time.Millisecond, func(ctx context.Context) error {
		attempts++
		return apperr.Transient(apperr.KindEmbedding, "always flaky", errors.New("timeout"))
	})
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if attempts != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", attempts)
	}
}

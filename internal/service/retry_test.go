package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestRetryWrite(t *testing.T) {
	ctx := context.Background()

	calls := 0
	err := retryWrite(ctx, 3, time.Millisecond, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("busy")
		}
		return nil
	})
	if err != nil || calls != 3 {
		t.Fatalf("retryWrite = %v after %d calls", err, calls)
	}

	calls = 0
	err = retryWrite(ctx, 3, time.Millisecond, func(context.Context) error {
		calls++
		return errors.New("down")
	})
	if err == nil || calls != 3 {
		t.Fatalf("retryWrite = %v after %d calls, want error after 3", err, calls)
	}

	calls = 0
	err = retryWrite(ctx, 3, time.Millisecond, func(context.Context) error {
		calls++
		return fmt.Errorf("update task x: %w", ErrNotFound)
	})
	if !errors.Is(err, ErrNotFound) || calls != 1 {
		t.Fatalf("missing document retried: %v after %d calls", err, calls)
	}
}

func TestRetryWriteStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := retryWrite(ctx, 3, time.Second, func(context.Context) error {
		calls++
		return errors.New("busy")
	})
	if !errors.Is(err, context.Canceled) || calls != 1 {
		t.Fatalf("retryWrite = %v after %d calls", err, calls)
	}
}

package service

import (
	"context"
	"errors"
	"time"
)

const (
	writeAttempts = 3
	writeBackoff  = 100 * time.Millisecond
)

// retryWrite runs fn up to attempts times with doubling backoff. Missing documents are not retried.
func retryWrite(ctx context.Context, attempts int, backoff time.Duration, fn func(context.Context) error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(ctx); err == nil || errors.Is(err, ErrNotFound) {
			return err
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		case <-time.After(backoff << i):
		}
	}
	return err
}

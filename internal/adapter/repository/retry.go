package repository

import (
	"context"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"duochat/pkg/logger"
)

const (
	retryBudget  = 3
	retryBackoff = 100 * time.Millisecond
)

// isTransient reports whether a storage error is worth a local retry.
// Taxonomy errors (not found, permission) are never retried.
func isTransient(err error) bool {
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.Aborted:
		return true
	}
	return false
}

// withRetry runs op, retrying transient storage failures with a small
// backoff budget. The last error is returned once the budget is exhausted.
func withRetry(ctx context.Context, name string, op func() error) error {
	var err error
	backoff := retryBackoff
	for attempt := 0; attempt < retryBudget; attempt++ {
		if err = op(); err == nil || !isTransient(err) {
			return err
		}
		logger.Warn("%s: transient storage error (attempt %d/%d): %v", name, attempt+1, retryBudget, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return err
}

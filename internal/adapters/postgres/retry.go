package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/rivalapexmediation/migration-engine/internal/domain"
)

// WithRetry executes fn with retry logic for transient store failures.
// It retries up to maxRetries times on errors marked domain.ErrTransient;
// validation, not-found, and conflict errors return immediately.
func WithRetry[T any](ctx context.Context, maxRetries int, fn func() (T, error)) (T, error) {
	var result T
	var err error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		result, err = fn()
		if err == nil {
			return result, nil
		}

		if !errors.Is(err, domain.ErrTransient) || attempt == maxRetries {
			return result, err
		}

		// Brief pause before retry to allow the connection pool to refresh.
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-time.After(10 * time.Millisecond << attempt):
		}
	}

	return result, err
}

package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rivalapexmediation/migration-engine/internal/domain"
)

func TestWithRetryRecoversTransientFailure(t *testing.T) {
	attempts := 0
	result, err := WithRetry(context.Background(), 3, func() (string, error) {
		attempts++
		if attempts < 3 {
			return "", domain.Transient("flaky query", errors.New("connection reset"))
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, attempts)
}

func TestWithRetryStopsOnPermanentError(t *testing.T) {
	attempts := 0
	_, err := WithRetry(context.Background(), 3, func() (int, error) {
		attempts++
		return 0, domain.Conflictf("already paused")
	})
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Equal(t, 1, attempts)
}

func TestWithRetryExhaustsBudget(t *testing.T) {
	attempts := 0
	_, err := WithRetry(context.Background(), 2, func() (int, error) {
		attempts++
		return 0, domain.Transient("down", errors.New("refused"))
	})
	assert.ErrorIs(t, err, domain.ErrTransient)
	assert.Equal(t, 3, attempts)
}

func TestWithRetryHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := WithRetry(ctx, 5, func() (int, error) {
		return 0, domain.Transient("down", errors.New("refused"))
	})
	assert.ErrorIs(t, err, context.Canceled)
}

package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rivalapexmediation/migration-engine/internal/domain"
	"github.com/rivalapexmediation/migration-engine/internal/storetest"
)

var testActor = Actor{ID: "ops@example.com", Type: "operator"}

func TestChecksumDeterministic(t *testing.T) {
	rec, err := NewRecord(testActor, "activate", "experiment", "exp-1",
		map[string]any{"status": "draft"},
		map[string]any{"status": "active"},
		nil,
	)
	require.NoError(t, err)

	again, err := Checksum(rec)
	require.NoError(t, err)
	assert.Equal(t, rec.Checksum, again)
}

func TestVerifyIntegrityIntactRecord(t *testing.T) {
	store := storetest.New()
	rec, err := NewRecord(testActor, "create", "experiment", "exp-1", nil,
		map[string]any{"status": "draft", "name": "migration"}, nil)
	require.NoError(t, err)
	require.NoError(t, store.Audit().Append(context.Background(), rec))

	logger := NewLogger(store.Audit())
	ok, err := logger.VerifyIntegrity(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyIntegrityDetectsTampering(t *testing.T) {
	fields := []struct {
		name   string
		mutate func(*domain.AuditRecord)
	}{
		{"action", func(r *domain.AuditRecord) { r.Action = "delete" }},
		{"actor", func(r *domain.AuditRecord) { r.ActorID = "intruder" }},
		{"entity", func(r *domain.AuditRecord) { r.EntityID = "other" }},
		{"after", func(r *domain.AuditRecord) { r.After["status"] = "archived" }},
		{"timestamp", func(r *domain.AuditRecord) { r.CreatedAt = r.CreatedAt.Add(time.Hour) }},
	}

	for _, tc := range fields {
		t.Run(tc.name, func(t *testing.T) {
			store := storetest.New()
			rec, err := NewRecord(testActor, "pause", "experiment", "exp-1",
				map[string]any{"status": "active"},
				map[string]any{"status": "paused"},
				nil,
			)
			require.NoError(t, err)

			tc.mutate(rec)
			require.NoError(t, store.Audit().Append(context.Background(), rec))

			logger := NewLogger(store.Audit())
			ok, err := logger.VerifyIntegrity(context.Background(), rec.ID)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestVerifyIntegrityMissingRecord(t *testing.T) {
	logger := NewLogger(storetest.New().Audit())
	_, err := logger.VerifyIntegrity(context.Background(), "no-such-record")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPurgeRemovesOnlyExpiredRecords(t *testing.T) {
	store := storetest.New()
	ctx := context.Background()

	old, err := NewRecord(testActor, "create", "experiment", "exp-old", nil, nil, nil)
	require.NoError(t, err)
	old.CreatedAt = time.Now().UTC().Add(-8 * 365 * 24 * time.Hour)
	old.Checksum, err = Checksum(old)
	require.NoError(t, err)
	require.NoError(t, store.Audit().Append(ctx, old))

	fresh, err := NewRecord(testActor, "create", "experiment", "exp-new", nil, nil, nil)
	require.NoError(t, err)
	require.NoError(t, store.Audit().Append(ctx, fresh))

	logger := NewLogger(store.Audit())
	removed, err := logger.Purge(ctx, DefaultRetention)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	kept, err := store.Audit().GetByID(ctx, fresh.ID)
	require.NoError(t, err)
	assert.NotNil(t, kept)
}

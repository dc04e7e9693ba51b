package experiment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rivalapexmediation/migration-engine/internal/audit"
	"github.com/rivalapexmediation/migration-engine/internal/domain"
	"github.com/rivalapexmediation/migration-engine/internal/storetest"
)

var actor = audit.Actor{ID: "ops@example.com", Type: "operator"}

func createDraft(t *testing.T, svc *Service) *domain.Experiment {
	t.Helper()
	exp, err := svc.Create(context.Background(), CreateRequest{
		PublisherID:   "pub-1",
		Name:          "waterfall migration",
		Objective:     "replace incumbent waterfall",
		MirrorPercent: 5,
		Guardrails:    domain.GuardrailConfig{MinImpressions: 1000},
		Actor:         actor,
	})
	require.NoError(t, err)
	return exp
}

func TestCreateDefaultsAndValidates(t *testing.T) {
	store := storetest.New()
	svc := NewService(store)

	exp := createDraft(t, svc)
	assert.Equal(t, domain.StatusDraft, exp.Status)
	assert.NotEmpty(t, exp.Seed)
	assert.Greater(t, store.AuditCount(), 0)

	_, err := svc.Create(context.Background(), CreateRequest{
		PublisherID: "pub-1", Name: "too much mirror", MirrorPercent: 25, Actor: actor,
	})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.Create(context.Background(), CreateRequest{
		PublisherID: "pub-1", Name: "", Actor: actor,
	})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestGetScopedToPublisher(t *testing.T) {
	svc := NewService(storetest.New())
	exp := createDraft(t, svc)

	got, err := svc.Get(context.Background(), "pub-1", exp.ID)
	require.NoError(t, err)
	assert.Equal(t, exp.ID, got.ID)

	// Another publisher's lookup is a plain not-found, not a permission
	// error that would leak existence.
	_, err = svc.Get(context.Background(), "pub-2", exp.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestActivateTransitions(t *testing.T) {
	store := storetest.New()
	svc := NewService(store)
	exp := createDraft(t, svc)
	ctx := context.Background()

	activated, err := svc.Activate(ctx, "pub-1", exp.ID, actor)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, activated.Status)
	assert.NotNil(t, activated.ActivatedAt)
	assert.Len(t, store.EventsOfType(domain.EventActivation), 1)

	// activate(active) fails Conflict.
	_, err = svc.Activate(ctx, "pub-1", exp.ID, actor)
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestPauseTransitions(t *testing.T) {
	store := storetest.New()
	svc := NewService(store)
	exp := createDraft(t, svc)
	ctx := context.Background()

	// pause(draft) fails Conflict.
	_, err := svc.Pause(ctx, "pub-1", exp.ID, "why", actor)
	assert.ErrorIs(t, err, domain.ErrConflict)

	_, err = svc.Activate(ctx, "pub-1", exp.ID, actor)
	require.NoError(t, err)

	// pause without a reason fails Validation.
	_, err = svc.Pause(ctx, "pub-1", exp.ID, "  ", actor)
	assert.ErrorIs(t, err, domain.ErrValidation)

	paused, err := svc.Pause(ctx, "pub-1", exp.ID, "test ecpm dropped", actor)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaused, paused.Status)

	events := store.EventsOfType(domain.EventDeactivation)
	require.Len(t, events, 1)
	assert.Equal(t, "test ecpm dropped", events[0].Payload["reason"])

	// paused experiments can reactivate.
	reactivated, err := svc.Activate(ctx, "pub-1", exp.ID, actor)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, reactivated.Status)
}

func TestUpdateDraftOnly(t *testing.T) {
	svc := NewService(storetest.New())
	exp := createDraft(t, svc)
	ctx := context.Background()

	// update(mirror_percent=25) fails Validation before any store access.
	badMirror := 25
	_, err := svc.Update(ctx, UpdateRequest{
		PublisherID: "pub-1", ExperimentID: exp.ID,
		MirrorPercent: &badMirror, Actor: actor,
	})
	assert.ErrorIs(t, err, domain.ErrValidation)

	newName := "renamed migration"
	newMirror := 15
	updated, err := svc.Update(ctx, UpdateRequest{
		PublisherID: "pub-1", ExperimentID: exp.ID,
		Name: &newName, MirrorPercent: &newMirror, Actor: actor,
	})
	require.NoError(t, err)
	assert.Equal(t, "renamed migration", updated.Name)
	assert.Equal(t, 15, updated.MirrorPercent)
	assert.Equal(t, exp.Seed, updated.Seed)

	// update(active) fails Conflict.
	_, err = svc.Activate(ctx, "pub-1", exp.ID, actor)
	require.NoError(t, err)
	_, err = svc.Update(ctx, UpdateRequest{
		PublisherID: "pub-1", ExperimentID: exp.ID,
		Name: &newName, Actor: actor,
	})
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestUpdateRejectsConcurrentActivation(t *testing.T) {
	store := storetest.New()
	exp := createDraft(t, NewService(store))
	ctx := context.Background()

	// An activation commits between the caller's read and the update
	// transaction. The transactional draft check must return Conflict
	// instead of writing the stale struct back over the new status.
	raced := &storetest.Interleave{Store: store, Hook: func() {
		applied, err := store.Experiments().UpdateStatusIf(ctx, exp.ID, domain.StatusDraft, domain.StatusActive)
		require.NoError(t, err)
		require.True(t, applied)
	}}

	newName := "renamed under race"
	_, err := NewService(raced).Update(ctx, UpdateRequest{
		PublisherID: "pub-1", ExperimentID: exp.ID,
		Name: &newName, Actor: actor,
	})
	assert.ErrorIs(t, err, domain.ErrConflict)

	got, err := store.Experiments().GetByID(ctx, "pub-1", exp.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, got.Status)
	assert.Equal(t, "waterfall migration", got.Name)
}

func TestArchiveTransitions(t *testing.T) {
	store := storetest.New()
	svc := NewService(store)
	ctx := context.Background()

	// archive(draft) succeeds.
	draft := createDraft(t, svc)
	archived, err := svc.Archive(ctx, "pub-1", draft.ID, actor)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusArchived, archived.Status)

	// archive(active) fails Conflict; archive(paused) succeeds.
	second := createDraft(t, svc)
	_, err = svc.Activate(ctx, "pub-1", second.ID, actor)
	require.NoError(t, err)

	_, err = svc.Archive(ctx, "pub-1", second.ID, actor)
	assert.ErrorIs(t, err, domain.ErrConflict)

	_, err = svc.Pause(ctx, "pub-1", second.ID, "winding down", actor)
	require.NoError(t, err)
	archived, err = svc.Archive(ctx, "pub-1", second.ID, actor)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusArchived, archived.Status)

	// archived is terminal.
	_, err = svc.Activate(ctx, "pub-1", second.ID, actor)
	assert.ErrorIs(t, err, domain.ErrConflict)

	assert.Len(t, store.EventsOfType(domain.EventArchive), 2)
}

func TestListScopedToPublisher(t *testing.T) {
	svc := NewService(storetest.New())
	createDraft(t, svc)
	createDraft(t, svc)

	mine, err := svc.List(context.Background(), "pub-1")
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	theirs, err := svc.List(context.Background(), "pub-2")
	require.NoError(t, err)
	assert.Empty(t, theirs)
}

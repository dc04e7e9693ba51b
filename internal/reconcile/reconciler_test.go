package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rivalapexmediation/migration-engine/internal/audit"
	"github.com/rivalapexmediation/migration-engine/internal/domain"
	"github.com/rivalapexmediation/migration-engine/internal/storetest"
)

var reconcileActor = audit.Actor{ID: "ops@example.com", Type: "operator"}

func draftExperiment(t *testing.T, store *storetest.Store) *domain.Experiment {
	t.Helper()
	now := time.Now().UTC()
	exp := &domain.Experiment{
		ID:          uuid.New().String(),
		PublisherID: "pub-1",
		Name:        "waterfall migration",
		Status:      domain.StatusDraft,
		Seed:        "seed",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, store.Experiments().Create(context.Background(), exp))
	return exp
}

func fileImport(exp *domain.Experiment, rows []WaterfallRow) ImportRequest {
	return ImportRequest{
		PublisherID:  exp.PublisherID,
		ExperimentID: exp.ID,
		Actor:        reconcileActor,
		Source:       Source{File: &FileSource{Path: "waterfall.csv"}},
		Rows:         rows,
	}
}

func TestSourceValidate(t *testing.T) {
	assert.ErrorIs(t, Source{}.Validate(), domain.ErrValidation)
	assert.ErrorIs(t, Source{File: &FileSource{}}.Validate(), domain.ErrValidation)
	assert.ErrorIs(t, Source{API: &APIPullSource{Endpoint: "https://x"}}.Validate(), domain.ErrValidation)
	assert.ErrorIs(t, Source{
		File: &FileSource{Path: "a.csv"},
		API:  &APIPullSource{Endpoint: "https://x", APIKey: "k"},
	}.Validate(), domain.ErrValidation)

	assert.NoError(t, Source{File: &FileSource{Path: "a.csv"}}.Validate())
	assert.NoError(t, Source{API: &APIPullSource{Endpoint: "https://x", APIKey: "k"}}.Validate())

	assert.Equal(t, domain.ImportSourceFile, Source{File: &FileSource{Path: "a"}}.Kind())
	assert.Equal(t, domain.ImportSourceAPI, Source{API: &APIPullSource{}}.Kind())
}

func TestImportClassifiesRows(t *testing.T) {
	store := storetest.New()
	exp := draftExperiment(t, store)
	r := NewReconciler(store)

	ecpm := int64(2_500_000)
	result, err := r.Import(context.Background(), fileImport(exp, []WaterfallRow{
		{Network: "Google AdMob", InstanceID: "inst-1", Position: 1, ECPMMicros: &ecpm},
		{Network: "ironsource", InstanceID: "inst-2", Position: 2},
		{Network: "Mystery Network", InstanceID: "inst-3", Position: 3},
	}))
	require.NoError(t, err)

	assert.Equal(t, 2, result.Confirmed)
	assert.Equal(t, 1, result.Pending)
	assert.Equal(t, 0, result.Conflicts)

	mappings, err := r.ListMappings(context.Background(), exp.PublisherID, exp.ID)
	require.NoError(t, err)
	require.Len(t, mappings, 3)

	byInstance := map[string]*domain.Mapping{}
	for _, m := range mappings {
		byInstance[m.IncumbentInstanceID] = m
	}

	admob := byInstance["inst-1"]
	require.NotNil(t, admob.AdapterID)
	assert.Equal(t, "admob", *admob.AdapterID)
	assert.Equal(t, domain.MappingConfirmed, admob.Status)
	require.NotNil(t, admob.IncumbentECPMMicros)
	assert.Equal(t, ecpm, *admob.IncumbentECPMMicros)

	exact := byInstance["inst-2"]
	assert.Equal(t, domain.MappingConfirmed, exact.Status)
	assert.Equal(t, 1.0, exact.Confidence)

	unknown := byInstance["inst-3"]
	assert.Nil(t, unknown.AdapterID)
	assert.Equal(t, domain.MappingPending, unknown.Status)

	events := store.EventsOfType(domain.EventImport)
	assert.Len(t, events, 1)
	assert.Greater(t, store.AuditCount(), 0)
}

func TestImportValidatesRows(t *testing.T) {
	store := storetest.New()
	exp := draftExperiment(t, store)
	r := NewReconciler(store)

	_, err := r.Import(context.Background(), fileImport(exp, nil))
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = r.Import(context.Background(), fileImport(exp, []WaterfallRow{{InstanceID: "i"}}))
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = r.Import(context.Background(), fileImport(exp, []WaterfallRow{{Network: "admob"}}))
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestImportUnknownExperiment(t *testing.T) {
	r := NewReconciler(storetest.New())
	_, err := r.Import(context.Background(), ImportRequest{
		PublisherID:  "pub-1",
		ExperimentID: "missing",
		Actor:        reconcileActor,
		Source:       Source{File: &FileSource{Path: "a.csv"}},
		Rows:         []WaterfallRow{{Network: "admob", InstanceID: "i"}},
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestReimportConflictsWithConfirmedTarget(t *testing.T) {
	store := storetest.New()
	exp := draftExperiment(t, store)
	r := NewReconciler(store)
	ctx := context.Background()

	// "MAX" resolves to applovin through the alias table, confirmed.
	_, err := r.Import(ctx, fileImport(exp, []WaterfallRow{
		{Network: "MAX", InstanceID: "inst-1", Position: 1},
	}))
	require.NoError(t, err)

	mappings, err := r.ListMappings(ctx, exp.PublisherID, exp.ID)
	require.NoError(t, err)
	_, err = r.UpdateMapping(ctx, UpdateMappingRequest{
		PublisherID:  exp.PublisherID,
		ExperimentID: exp.ID,
		MappingID:    mappings[0].ID,
		Actor:        reconcileActor,
		AdapterID:    "vungle",
		Status:       domain.MappingConfirmed,
	})
	require.NoError(t, err)

	// The same instance now resolves to a target that disagrees with the
	// operator's confirmed choice.
	result, err := r.Import(ctx, fileImport(exp, []WaterfallRow{
		{Network: "MAX", InstanceID: "inst-1", Position: 1},
	}))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Conflicts)

	mappings, err = r.ListMappings(ctx, exp.PublisherID, exp.ID)
	require.NoError(t, err)
	require.Len(t, mappings, 1)

	conflicted, err := store.Mappings().GetByIncumbent(ctx, exp.ID, "MAX", "inst-1")
	require.NoError(t, err)
	require.NotNil(t, conflicted)
	assert.Equal(t, domain.MappingConflict, conflicted.Status)
	require.NotNil(t, conflicted.ConflictReason)
}

func TestUpdateMappingValidation(t *testing.T) {
	store := storetest.New()
	exp := draftExperiment(t, store)
	r := NewReconciler(store)
	ctx := context.Background()

	_, err := r.UpdateMapping(ctx, UpdateMappingRequest{
		PublisherID: exp.PublisherID, ExperimentID: exp.ID,
		MappingID: "m", Actor: reconcileActor,
		Status: domain.MappingConfirmed,
	})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = r.UpdateMapping(ctx, UpdateMappingRequest{
		PublisherID: exp.PublisherID, ExperimentID: exp.ID,
		MappingID: "m", Actor: reconcileActor,
		AdapterID: "admob", Status: domain.MappingConflict,
	})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = r.UpdateMapping(ctx, UpdateMappingRequest{
		PublisherID: exp.PublisherID, ExperimentID: exp.ID,
		MappingID: "missing", Actor: reconcileActor,
		AdapterID: "admob", Status: domain.MappingConfirmed,
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestFinalizeImportLifecycle(t *testing.T) {
	store := storetest.New()
	exp := draftExperiment(t, store)
	r := NewReconciler(store)
	ctx := context.Background()

	finalize := FinalizeRequest{PublisherID: exp.PublisherID, ExperimentID: exp.ID, Actor: reconcileActor}

	// No batch yet.
	assert.ErrorIs(t, r.FinalizeImport(ctx, finalize), domain.ErrNotFound)

	_, err := r.Import(ctx, fileImport(exp, []WaterfallRow{
		{Network: "admob", InstanceID: "inst-1", Position: 1},
		{Network: "Mystery Network", InstanceID: "inst-2", Position: 2},
	}))
	require.NoError(t, err)

	// A pending mapping blocks finalization.
	assert.ErrorIs(t, r.FinalizeImport(ctx, finalize), domain.ErrConflict)

	mappings, err := r.ListMappings(ctx, exp.PublisherID, exp.ID)
	require.NoError(t, err)
	for _, m := range mappings {
		if m.Status == domain.MappingConfirmed {
			continue
		}
		_, err = r.UpdateMapping(ctx, UpdateMappingRequest{
			PublisherID:  exp.PublisherID,
			ExperimentID: exp.ID,
			MappingID:    m.ID,
			Actor:        reconcileActor,
			AdapterID:    "moloco",
			Status:       domain.MappingConfirmed,
		})
		require.NoError(t, err)
	}

	require.NoError(t, r.FinalizeImport(ctx, finalize))

	batch, err := store.Imports().GetLatestByExperiment(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ImportCompleted, batch.Status)
	assert.NotNil(t, batch.CompletedAt)
	assert.Len(t, store.EventsOfType(domain.EventImportFinalized), 1)

	// Frozen: no further imports, mapping edits, or re-finalization.
	assert.ErrorIs(t, r.FinalizeImport(ctx, finalize), domain.ErrConflict)
	_, err = r.Import(ctx, fileImport(exp, []WaterfallRow{
		{Network: "unity", InstanceID: "inst-9", Position: 1},
	}))
	assert.ErrorIs(t, err, domain.ErrConflict)
	_, err = r.UpdateMapping(ctx, UpdateMappingRequest{
		PublisherID:  exp.PublisherID,
		ExperimentID: exp.ID,
		MappingID:    mappings[0].ID,
		Actor:        reconcileActor,
		AdapterID:    "unity",
		Status:       domain.MappingConfirmed,
	})
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestImportRejectedAfterConcurrentFinalize(t *testing.T) {
	store := storetest.New()
	exp := draftExperiment(t, store)
	ctx := context.Background()

	_, err := NewReconciler(store).Import(ctx, fileImport(exp, []WaterfallRow{
		{Network: "admob", InstanceID: "inst-1", Position: 1},
	}))
	require.NoError(t, err)

	batch, err := store.Imports().GetLatestByExperiment(ctx, exp.ID)
	require.NoError(t, err)

	// A finalize commits right before the import transaction opens. The
	// transactional freeze check must reject the batch wholesale.
	raced := &storetest.Interleave{Store: store, Hook: func() {
		require.NoError(t, store.Imports().MarkCompleted(ctx, batch.ID, time.Now().UTC()))
	}}

	_, err = NewReconciler(raced).Import(ctx, fileImport(exp, []WaterfallRow{
		{Network: "unity", InstanceID: "inst-9", Position: 2},
	}))
	assert.ErrorIs(t, err, domain.ErrConflict)

	mappings, err := store.Mappings().ListByExperiment(ctx, exp.ID)
	require.NoError(t, err)
	assert.Len(t, mappings, 1)
}

func TestUpdateMappingRejectedAfterConcurrentFinalize(t *testing.T) {
	store := storetest.New()
	exp := draftExperiment(t, store)
	ctx := context.Background()

	_, err := NewReconciler(store).Import(ctx, fileImport(exp, []WaterfallRow{
		{Network: "admob", InstanceID: "inst-1", Position: 1},
	}))
	require.NoError(t, err)

	mappings, err := store.Mappings().ListByExperiment(ctx, exp.ID)
	require.NoError(t, err)
	require.Len(t, mappings, 1)
	batch, err := store.Imports().GetLatestByExperiment(ctx, exp.ID)
	require.NoError(t, err)

	raced := &storetest.Interleave{Store: store, Hook: func() {
		require.NoError(t, store.Imports().MarkCompleted(ctx, batch.ID, time.Now().UTC()))
	}}

	_, err = NewReconciler(raced).UpdateMapping(ctx, UpdateMappingRequest{
		PublisherID:  exp.PublisherID,
		ExperimentID: exp.ID,
		MappingID:    mappings[0].ID,
		Actor:        reconcileActor,
		AdapterID:    "unity",
		Status:       domain.MappingConfirmed,
	})
	assert.ErrorIs(t, err, domain.ErrConflict)

	unchanged, err := store.Mappings().GetByID(ctx, exp.ID, mappings[0].ID)
	require.NoError(t, err)
	require.NotNil(t, unchanged.AdapterID)
	assert.Equal(t, "admob", *unchanged.AdapterID)
}

func TestFinalizeRejectsConcurrentMappingReopen(t *testing.T) {
	store := storetest.New()
	exp := draftExperiment(t, store)
	ctx := context.Background()

	_, err := NewReconciler(store).Import(ctx, fileImport(exp, []WaterfallRow{
		{Network: "admob", InstanceID: "inst-1", Position: 1},
	}))
	require.NoError(t, err)

	mappings, err := store.Mappings().ListByExperiment(ctx, exp.ID)
	require.NoError(t, err)
	require.Len(t, mappings, 1)

	// An edit reopening the mapping commits right before the finalize
	// transaction opens. The transactional status scan must block the
	// freeze.
	raced := &storetest.Interleave{Store: store, Hook: func() {
		m := mappings[0]
		m.Status = domain.MappingPending
		m.AdapterID = nil
		require.NoError(t, store.Mappings().Update(ctx, m))
	}}

	err = NewReconciler(raced).FinalizeImport(ctx, FinalizeRequest{
		PublisherID:  exp.PublisherID,
		ExperimentID: exp.ID,
		Actor:        reconcileActor,
	})
	assert.ErrorIs(t, err, domain.ErrConflict)

	batch, err := store.Imports().GetLatestByExperiment(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ImportPending, batch.Status)
	assert.Empty(t, store.EventsOfType(domain.EventImportFinalized))
}

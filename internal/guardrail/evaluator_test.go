package guardrail

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rivalapexmediation/migration-engine/internal/domain"
	"github.com/rivalapexmediation/migration-engine/internal/ports"
	"github.com/rivalapexmediation/migration-engine/internal/storetest"
)

var guardrails = domain.GuardrailConfig{
	LatencyBudgetMS: 400,
	RevenueFloorPct: 10,
	MaxErrorRatePct: 5,
	MinImpressions:  1000,
}

func activeExperiment(t *testing.T, store *storetest.Store) *domain.Experiment {
	t.Helper()
	now := time.Now().UTC()
	exp := &domain.Experiment{
		ID:            uuid.New().String(),
		PublisherID:   "pub-1",
		Name:          "waterfall migration",
		Status:        domain.StatusActive,
		MirrorPercent: 10,
		Seed:          "seed",
		Guardrails:    guardrails,
		ActivatedAt:   &now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, store.Experiments().Create(context.Background(), exp))
	return exp
}

func snapshot(experimentID string, arm domain.Arm, impressions, revenueMicros, p95 int64, errRate float64) *domain.GuardrailSnapshot {
	return &domain.GuardrailSnapshot{
		ID:            uuid.New().String(),
		ExperimentID:  experimentID,
		CapturedAt:    time.Now().UTC().Add(-5 * time.Minute),
		Arm:           arm,
		Impressions:   impressions,
		Fills:         impressions * 3 / 4,
		RevenueMicros: revenueMicros,
		LatencyP50MS:  p95 / 2,
		LatencyP95MS:  p95,
		ErrorRatePct:  errRate,
		WindowMinutes: 60,
	}
}

func TestEvaluateRequiresActiveExperiment(t *testing.T) {
	store := storetest.New()
	exp := activeExperiment(t, store)
	exp.Status = domain.StatusPaused
	require.NoError(t, store.Experiments().Update(context.Background(), exp))

	e := NewEvaluator(store, storetest.NewMetrics(), 0)
	_, err := e.Evaluate(context.Background(), exp.PublisherID, exp.ID)
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestEvaluateUnknownExperiment(t *testing.T) {
	e := NewEvaluator(storetest.New(), storetest.NewMetrics(), 0)
	_, err := e.Evaluate(context.Background(), "pub-1", "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestEvaluateInconclusiveBelowMinImpressions(t *testing.T) {
	store := storetest.New()
	exp := activeExperiment(t, store)

	// The test arm's ratios breach every threshold, but its sample is
	// below min_impressions so no action may be taken.
	store.AddSnapshot(snapshot(exp.ID, domain.ArmControl, 5000, 30_000_000, 200, 1))
	store.AddSnapshot(snapshot(exp.ID, domain.ArmTest, 500, 100_000, 900, 50))

	e := NewEvaluator(store, storetest.NewMetrics(), 0)
	result, err := e.Evaluate(context.Background(), exp.PublisherID, exp.ID)
	require.NoError(t, err)

	assert.True(t, result.Inconclusive)
	assert.False(t, result.Breached)

	current, err := store.Experiments().GetByID(context.Background(), exp.PublisherID, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, current.Status)
}

func TestEvaluateHealthy(t *testing.T) {
	store := storetest.New()
	exp := activeExperiment(t, store)

	store.AddSnapshot(snapshot(exp.ID, domain.ArmControl, 5000, 30_000_000, 200, 1))
	store.AddSnapshot(snapshot(exp.ID, domain.ArmTest, 2000, 12_500_000, 250, 1))

	e := NewEvaluator(store, storetest.NewMetrics(), 0)
	result, err := e.Evaluate(context.Background(), exp.PublisherID, exp.ID)
	require.NoError(t, err)

	assert.False(t, result.Inconclusive)
	assert.False(t, result.Breached)
}

func TestEvaluateLatencyBreachPauses(t *testing.T) {
	store := storetest.New()
	metrics := storetest.NewMetrics()
	exp := activeExperiment(t, store)

	store.AddSnapshot(snapshot(exp.ID, domain.ArmControl, 5000, 30_000_000, 200, 1))
	store.AddSnapshot(snapshot(exp.ID, domain.ArmTest, 2000, 12_000_000, 800, 1))

	e := NewEvaluator(store, metrics, 0)
	result, err := e.Evaluate(context.Background(), exp.PublisherID, exp.ID)
	require.NoError(t, err)

	assert.True(t, result.Breached)
	assert.True(t, result.Paused)
	assert.Equal(t, "latency_p95_ms", result.Metric)
	assert.Equal(t, float64(guardrails.LatencyBudgetMS), result.Threshold)
	assert.Equal(t, float64(800), result.Observed)

	current, err := store.Experiments().GetByID(context.Background(), exp.PublisherID, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaused, current.Status)

	events := store.EventsOfType(domain.EventGuardrailViolation)
	require.Len(t, events, 1)
	assert.Equal(t, "latency_p95_ms", events[0].Payload["metric"])
	assert.Equal(t, 1, metrics.PauseCount("latency_p95_ms"))
	assert.Greater(t, store.AuditCount(), 0)
}

func TestEvaluateRevenueFloorBreach(t *testing.T) {
	store := storetest.New()
	exp := activeExperiment(t, store)

	// Control eCPM is well above test eCPM: the test arm earns less than
	// 90% of control per impression.
	store.AddSnapshot(snapshot(exp.ID, domain.ArmControl, 5000, 30_000_000, 200, 1))
	store.AddSnapshot(snapshot(exp.ID, domain.ArmTest, 2000, 6_000_000, 250, 1))

	e := NewEvaluator(store, storetest.NewMetrics(), 0)
	result, err := e.Evaluate(context.Background(), exp.PublisherID, exp.ID)
	require.NoError(t, err)

	assert.True(t, result.Breached)
	assert.Equal(t, "revenue_floor_pct", result.Metric)
	assert.InDelta(t, 50, result.Observed, 0.01)
}

func TestEvaluateErrorRateBreach(t *testing.T) {
	store := storetest.New()
	exp := activeExperiment(t, store)

	store.AddSnapshot(snapshot(exp.ID, domain.ArmControl, 5000, 30_000_000, 200, 1))
	store.AddSnapshot(snapshot(exp.ID, domain.ArmTest, 2000, 12_500_000, 250, 12))

	e := NewEvaluator(store, storetest.NewMetrics(), 0)
	result, err := e.Evaluate(context.Background(), exp.PublisherID, exp.ID)
	require.NoError(t, err)

	assert.True(t, result.Breached)
	assert.Equal(t, "error_rate_pct", result.Metric)
	assert.InDelta(t, 12, result.Observed, 0.01)
}

// lostRaceStore reports every conditional status write as not applied, as
// if a concurrent evaluation paused the experiment first.
type lostRaceStore struct {
	*storetest.Store
}

func (s lostRaceStore) ExecTx(ctx context.Context, fn func(tx ports.Store) error) error {
	return fn(s)
}

func (s lostRaceStore) Experiments() ports.ExperimentRepository {
	return lostRaceExperiments{s.Store.Experiments()}
}

type lostRaceExperiments struct {
	ports.ExperimentRepository
}

func (lostRaceExperiments) UpdateStatusIf(context.Context, string, domain.ExperimentStatus, domain.ExperimentStatus) (bool, error) {
	return false, nil
}

func TestEvaluateLostRaceDoesNotDoublePause(t *testing.T) {
	inner := storetest.New()
	metrics := storetest.NewMetrics()
	exp := activeExperiment(t, inner)

	inner.AddSnapshot(snapshot(exp.ID, domain.ArmControl, 5000, 30_000_000, 200, 1))
	inner.AddSnapshot(snapshot(exp.ID, domain.ArmTest, 2000, 12_000_000, 800, 1))

	e := NewEvaluator(lostRaceStore{inner}, metrics, 0)
	result, err := e.Evaluate(context.Background(), exp.PublisherID, exp.ID)
	require.NoError(t, err)

	assert.True(t, result.Breached)
	assert.False(t, result.Paused)
	assert.Empty(t, inner.EventsOfType(domain.EventGuardrailViolation))
	assert.Equal(t, 0, metrics.PauseCount("latency_p95_ms"))
}

func TestAggregateWeightsByImpressions(t *testing.T) {
	expID := "exp"
	snaps := []*domain.GuardrailSnapshot{
		{ExperimentID: expID, Arm: domain.ArmTest, Impressions: 1000, Fills: 800, RevenueMicros: 5_000_000, LatencyP95MS: 100, ErrorRatePct: 2},
		{ExperimentID: expID, Arm: domain.ArmTest, Impressions: 3000, Fills: 2100, RevenueMicros: 15_000_000, LatencyP95MS: 300, ErrorRatePct: 4},
		{ExperimentID: expID, Arm: domain.ArmControl, Impressions: 9999, Fills: 1, RevenueMicros: 1, LatencyP95MS: 1, ErrorRatePct: 99},
	}

	totals := aggregate(snaps, domain.ArmTest)
	assert.Equal(t, int64(4000), totals.Impressions)
	assert.Equal(t, int64(2900), totals.Fills)
	assert.Equal(t, int64(20_000_000), totals.RevenueMicros)
	assert.Equal(t, int64(250), totals.LatencyP95MS)
	assert.InDelta(t, 3.5, totals.ErrorRatePct, 0.001)
}

// Package report aggregates snapshot history into a signed control/test
// comparison with uplift and significance figures.
package report

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/rivalapexmediation/migration-engine/internal/domain"
	"github.com/rivalapexmediation/migration-engine/internal/ports"
	"github.com/rivalapexmediation/migration-engine/internal/signing"
)

// DefaultLookback is used when the caller does not supply a window.
const DefaultLookback = 14 * 24 * time.Hour

// ArmStats is one arm's aggregate over the lookback window.
//
// ECPMUSD is revenue per thousand filled impressions, in dollars.
// Revenue stays integer micros until the final division.
type ArmStats struct {
	Impressions   int64   `json:"impressions"`
	Fills         int64   `json:"fills"`
	RevenueMicros int64   `json:"revenue_micros"`
	FillRate      float64 `json:"fill_rate"`
	ECPMUSD       float64 `json:"ecpm_usd"`
	LatencyP95MS  int64   `json:"latency_p95_ms"`
}

// Report is the comparison payload that gets canonicalized and signed.
type Report struct {
	ExperimentID      string       `json:"experiment_id"`
	PublisherID       string       `json:"publisher_id"`
	GeneratedAt       time.Time    `json:"generated_at"`
	WindowStart       time.Time    `json:"window_start"`
	WindowEnd         time.Time    `json:"window_end"`
	Control           ArmStats     `json:"control"`
	Test              ArmStats     `json:"test"`
	RevenueUpliftPct  float64      `json:"revenue_uplift_pct"`
	FillRateUpliftPct float64      `json:"fill_rate_uplift_pct"`
	LatencyDeltaMS    int64        `json:"latency_delta_ms"`
	Significance      Significance `json:"significance"`
}

// Generator builds and seals comparison reports.
type Generator struct {
	store    ports.Store
	signer   *signing.Signer
	metrics  ports.EngineMetrics
	lookback time.Duration
}

// NewGenerator creates a Generator with the given lookback window.
func NewGenerator(store ports.Store, signer *signing.Signer, metrics ports.EngineMetrics, lookback time.Duration) *Generator {
	if lookback <= 0 {
		lookback = DefaultLookback
	}
	return &Generator{store: store, signer: signer, metrics: metrics, lookback: lookback}
}

// Generate aggregates both arms over the lookback window. An arm with
// zero impressions fails the report with a Validation error instead of
// emitting NaN or Infinity.
func (g *Generator) Generate(ctx context.Context, publisherID, experimentID string) (*Report, error) {
	exp, err := g.store.Experiments().GetByID(ctx, publisherID, experimentID)
	if err != nil {
		return nil, err
	}
	if exp == nil {
		return nil, domain.NotFoundf("experiment %s", experimentID)
	}

	now := time.Now().UTC()
	since := now.Add(-g.lookback)
	snapshots, err := g.store.Snapshots().ListSince(ctx, exp.ID, since)
	if err != nil {
		return nil, err
	}

	control, err := armStats(snapshots, domain.ArmControl)
	if err != nil {
		return nil, err
	}
	test, err := armStats(snapshots, domain.ArmTest)
	if err != nil {
		return nil, err
	}

	return &Report{
		ExperimentID:      exp.ID,
		PublisherID:       exp.PublisherID,
		GeneratedAt:       now,
		WindowStart:       since,
		WindowEnd:         now,
		Control:           control,
		Test:              test,
		RevenueUpliftPct:  upliftPct(control.ECPMUSD, test.ECPMUSD),
		FillRateUpliftPct: upliftPct(control.FillRate, test.FillRate),
		LatencyDeltaMS:    test.LatencyP95MS - control.LatencyP95MS,
		Significance:      TwoProportionZTest(control.Fills, control.Impressions, test.Fills, test.Impressions),
	}, nil
}

// GenerateSigned builds the report and seals it with a detached
// Ed25519 signature over its canonical bytes.
func (g *Generator) GenerateSigned(ctx context.Context, publisherID, experimentID string) (*Report, *signing.SignedArtifact, error) {
	rep, err := g.Generate(ctx, publisherID, experimentID)
	if err != nil {
		return nil, nil, err
	}

	artifact, err := g.signer.Sign(rep)
	if err != nil {
		return nil, nil, err
	}

	g.metrics.ReportSigned(ctx)
	log.WithFields(log.Fields{
		"experiment_id": rep.ExperimentID,
		"window_start":  rep.WindowStart,
		"window_end":    rep.WindowEnd,
	}).Info("comparison report signed")
	return rep, artifact, nil
}

// armStats sums one arm's snapshots and derives its ratios. Latency p95
// is the impression-weighted mean across snapshots.
func armStats(snapshots []*domain.GuardrailSnapshot, arm domain.Arm) (ArmStats, error) {
	var stats ArmStats
	var weightedP95 float64

	for _, snap := range snapshots {
		if snap.Arm != arm {
			continue
		}
		stats.Impressions += snap.Impressions
		stats.Fills += snap.Fills
		stats.RevenueMicros += snap.RevenueMicros
		weightedP95 += float64(snap.LatencyP95MS) * float64(snap.Impressions)
	}

	if stats.Impressions == 0 {
		return stats, domain.Validationf("%s arm has zero impressions in the window", arm)
	}

	stats.FillRate = float64(stats.Fills) / float64(stats.Impressions)
	if stats.Fills > 0 {
		stats.ECPMUSD = float64(stats.RevenueMicros) / 1e6 / float64(stats.Fills) * 1000
	}
	stats.LatencyP95MS = int64(weightedP95 / float64(stats.Impressions))
	return stats, nil
}

func upliftPct(control, test float64) float64 {
	if control == 0 {
		return 0
	}
	return (test - control) / control * 100
}

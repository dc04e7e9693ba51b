// Package guardrail evaluates rolling metrics per arm against the
// experiment's thresholds and auto-pauses on breach.
package guardrail

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/rivalapexmediation/migration-engine/internal/audit"
	"github.com/rivalapexmediation/migration-engine/internal/domain"
	"github.com/rivalapexmediation/migration-engine/internal/ports"
)

// DefaultWindow is the lookback used when the caller does not supply one.
const DefaultWindow = time.Hour

// SystemActor is recorded when the evaluator pauses without a human.
var SystemActor = audit.Actor{ID: "guardrail-evaluator", Type: "system"}

// ArmTotals aggregates one arm's snapshots over the window.
type ArmTotals struct {
	Impressions   int64
	Fills         int64
	RevenueMicros int64
	LatencyP95MS  int64
	ErrorRatePct  float64
}

// Result reports one evaluation run.
type Result struct {
	Inconclusive bool
	Breached     bool
	Paused       bool
	Metric       string
	Threshold    float64
	Observed     float64
	Reason       string
	Control      ArmTotals
	Test         ArmTotals
}

// Evaluator runs guardrail checks on demand or on a schedule. Safe under
// concurrent invocation: the pause write is conditioned on the experiment
// still being active, so a losing evaluation no-ops.
type Evaluator struct {
	store   ports.Store
	metrics ports.EngineMetrics
	window  time.Duration
}

// NewEvaluator creates an Evaluator with the given lookback window.
func NewEvaluator(store ports.Store, metrics ports.EngineMetrics, window time.Duration) *Evaluator {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Evaluator{store: store, metrics: metrics, window: window}
}

// Evaluate checks one active experiment. With fewer than min_impressions
// in either arm the run is inconclusive and takes no action; an
// insufficient sample is not a pass.
func (e *Evaluator) Evaluate(ctx context.Context, publisherID, experimentID string) (*Result, error) {
	exp, err := e.store.Experiments().GetByID(ctx, publisherID, experimentID)
	if err != nil {
		return nil, err
	}
	if exp == nil {
		return nil, domain.NotFoundf("experiment %s", experimentID)
	}
	if exp.Status != domain.StatusActive {
		return nil, domain.Conflictf("experiment %s is %s; guardrails evaluate active experiments only", exp.ID, exp.Status)
	}

	since := time.Now().UTC().Add(-e.window)
	snapshots, err := e.store.Snapshots().ListSince(ctx, exp.ID, since)
	if err != nil {
		return nil, err
	}

	control := aggregate(snapshots, domain.ArmControl)
	test := aggregate(snapshots, domain.ArmTest)
	result := &Result{Control: control, Test: test}

	if control.Impressions < exp.Guardrails.MinImpressions || test.Impressions < exp.Guardrails.MinImpressions {
		result.Inconclusive = true
		log.WithFields(log.Fields{
			"experiment_id":       exp.ID,
			"control_impressions": control.Impressions,
			"test_impressions":    test.Impressions,
			"min_impressions":     exp.Guardrails.MinImpressions,
		}).Debug("guardrail evaluation inconclusive: insufficient sample")
		return result, nil
	}

	checkBreach(exp.Guardrails, control, test, result)
	if !result.Breached {
		return result, nil
	}

	paused, err := e.pause(ctx, exp, result)
	if err != nil {
		return nil, err
	}
	result.Paused = paused
	return result, nil
}

// checkBreach applies the checks in fixed order: absolute latency budget,
// relative revenue floor, absolute error-rate ceiling. The first breach
// wins and sets the violation fields.
func checkBreach(cfg domain.GuardrailConfig, control, test ArmTotals, result *Result) {
	if cfg.LatencyBudgetMS > 0 && test.LatencyP95MS > cfg.LatencyBudgetMS {
		result.Breached = true
		result.Metric = "latency_p95_ms"
		result.Threshold = float64(cfg.LatencyBudgetMS)
		result.Observed = float64(test.LatencyP95MS)
		result.Reason = fmt.Sprintf("test p95 latency %dms exceeds budget %dms", test.LatencyP95MS, cfg.LatencyBudgetMS)
		return
	}

	if cfg.RevenueFloorPct > 0 && control.Impressions > 0 && test.Impressions > 0 {
		controlECPM := ecpmMicros(control)
		testECPM := ecpmMicros(test)
		floor := controlECPM * (1 - cfg.RevenueFloorPct/100)
		if controlECPM > 0 && testECPM < floor {
			shortfall := (controlECPM - testECPM) / controlECPM * 100
			result.Breached = true
			result.Metric = "revenue_floor_pct"
			result.Threshold = cfg.RevenueFloorPct
			result.Observed = shortfall
			result.Reason = fmt.Sprintf("test eCPM %.2f%% below control, floor is %.2f%%", shortfall, cfg.RevenueFloorPct)
			return
		}
	}

	if cfg.MaxErrorRatePct > 0 && test.ErrorRatePct > cfg.MaxErrorRatePct {
		result.Breached = true
		result.Metric = "error_rate_pct"
		result.Threshold = cfg.MaxErrorRatePct
		result.Observed = test.ErrorRatePct
		result.Reason = fmt.Sprintf("test error rate %.2f%% exceeds ceiling %.2f%%", test.ErrorRatePct, cfg.MaxErrorRatePct)
	}
}

// pause performs the conditional active→paused transition plus the
// guardrail_violation event and audit record. A concurrent evaluation
// that already paused makes the conditional write a no-op.
func (e *Evaluator) pause(ctx context.Context, exp *domain.Experiment, result *Result) (bool, error) {
	now := time.Now().UTC()
	var applied bool

	err := e.store.ExecTx(ctx, func(tx ports.Store) error {
		var err error
		applied, err = tx.Experiments().UpdateStatusIf(ctx, exp.ID, domain.StatusActive, domain.StatusPaused)
		if err != nil {
			return err
		}
		if !applied {
			return nil
		}
		if err := tx.Events().Append(ctx, &domain.Event{
			ID:           uuid.New().String(),
			ExperimentID: exp.ID,
			Type:         domain.EventGuardrailViolation,
			Payload: map[string]any{
				"metric":    result.Metric,
				"threshold": result.Threshold,
				"observed":  result.Observed,
				"reason":    result.Reason,
			},
			CreatedAt: now,
		}); err != nil {
			return err
		}
		rec, err := audit.NewRecord(SystemActor, "guardrail_pause", "experiment", exp.ID,
			map[string]any{"status": string(domain.StatusActive)},
			map[string]any{"status": string(domain.StatusPaused), "reason": result.Reason},
			map[string]any{"metric": result.Metric},
		)
		if err != nil {
			return err
		}
		return tx.Audit().Append(ctx, rec)
	})
	if err != nil {
		return false, err
	}

	if applied {
		e.metrics.GuardrailPause(ctx, result.Metric)
		log.WithFields(log.Fields{
			"experiment_id": exp.ID,
			"metric":        result.Metric,
			"reason":        result.Reason,
		}).Warn("guardrail violation, experiment paused")
	}
	return applied, nil
}

// aggregate sums one arm's snapshots. Latency p95 and error rate are
// impression-weighted means across snapshots.
func aggregate(snapshots []*domain.GuardrailSnapshot, arm domain.Arm) ArmTotals {
	var totals ArmTotals
	var weightedP95, weightedErr float64

	for _, snap := range snapshots {
		if snap.Arm != arm {
			continue
		}
		totals.Impressions += snap.Impressions
		totals.Fills += snap.Fills
		totals.RevenueMicros += snap.RevenueMicros
		weightedP95 += float64(snap.LatencyP95MS) * float64(snap.Impressions)
		weightedErr += snap.ErrorRatePct * float64(snap.Impressions)
	}
	if totals.Impressions > 0 {
		totals.LatencyP95MS = int64(weightedP95 / float64(totals.Impressions))
		totals.ErrorRatePct = weightedErr / float64(totals.Impressions)
	}
	return totals
}

// ecpmMicros is revenue micros per thousand impressions.
func ecpmMicros(t ArmTotals) float64 {
	if t.Impressions == 0 {
		return 0
	}
	return float64(t.RevenueMicros) / float64(t.Impressions) * 1000
}

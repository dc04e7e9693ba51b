package postgres

import (
	"context"
	"time"

	"github.com/rivalapexmediation/migration-engine/internal/domain"
)

// snapshotRepository is read-only: snapshots are written by the external
// metrics pipeline.
type snapshotRepository struct {
	q querier
}

func (r *snapshotRepository) ListSince(ctx context.Context, experimentID string, since time.Time) ([]*domain.GuardrailSnapshot, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, experiment_id, captured_at, arm, impressions, fills,
		       revenue_micros, latency_p50_ms, latency_p95_ms,
		       error_rate_pct, ivt_rate_pct, window_minutes
		FROM guardrail_snapshots
		WHERE experiment_id = $1 AND captured_at >= $2
		ORDER BY captured_at ASC`,
		experimentID, since,
	)
	if err != nil {
		return nil, domain.Transient("list snapshots", err)
	}
	defer rows.Close()

	var out []*domain.GuardrailSnapshot
	for rows.Next() {
		var s domain.GuardrailSnapshot
		err := rows.Scan(
			&s.ID, &s.ExperimentID, &s.CapturedAt, &s.Arm, &s.Impressions,
			&s.Fills, &s.RevenueMicros, &s.LatencyP50MS, &s.LatencyP95MS,
			&s.ErrorRatePct, &s.IVTRatePct, &s.WindowMinutes,
		)
		if err != nil {
			return nil, domain.Transient("scan snapshot", err)
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}

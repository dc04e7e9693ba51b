package ports

import (
	"context"

	"github.com/rivalapexmediation/migration-engine/internal/domain"
)

// EngineMetrics receives engine-side counters. Implementations must never
// block callers; the assignment hot path records through this interface.
type EngineMetrics interface {
	AssignmentServed(ctx context.Context, arm domain.Arm)
	AssignmentLogDropped(ctx context.Context)
	GuardrailPause(ctx context.Context, metric string)
	ReportSigned(ctx context.Context)
	Close(ctx context.Context) error
}

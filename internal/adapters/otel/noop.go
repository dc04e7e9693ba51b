package otel

import (
	"context"

	"github.com/rivalapexmediation/migration-engine/internal/domain"
)

// Noop discards all counters. Used when telemetry is disabled.
type Noop struct{}

func (Noop) AssignmentServed(context.Context, domain.Arm) {}
func (Noop) AssignmentLogDropped(context.Context)         {}
func (Noop) GuardrailPause(context.Context, string)       {}
func (Noop) ReportSigned(context.Context)                 {}
func (Noop) Close(context.Context) error                  { return nil }

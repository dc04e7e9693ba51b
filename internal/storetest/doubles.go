package storetest

import (
	"context"
	"sync"

	"github.com/rivalapexmediation/migration-engine/internal/domain"
	"github.com/rivalapexmediation/migration-engine/internal/ports"
)

// Flags is a fixed-answer flag provider.
type Flags struct {
	Result ports.Flags
	Err    error
}

func (f Flags) Resolve(context.Context, ports.FlagScope) (ports.Flags, error) {
	return f.Result, f.Err
}

// Interleave wraps a Store so Hook runs once, immediately before the
// next ExecTx callback. It emulates a concurrent writer whose
// transaction commits first.
type Interleave struct {
	*Store
	Hook func()
}

func (s *Interleave) ExecTx(ctx context.Context, fn func(tx ports.Store) error) error {
	if s.Hook != nil {
		hook := s.Hook
		s.Hook = nil
		hook()
	}
	return s.Store.ExecTx(ctx, fn)
}

// Metrics records counter calls for assertions.
type Metrics struct {
	mu          sync.Mutex
	Assignments map[domain.Arm]int
	LogDrops    int
	Pauses      map[string]int
	Reports     int
}

// NewMetrics creates an empty recorder.
func NewMetrics() *Metrics {
	return &Metrics{
		Assignments: make(map[domain.Arm]int),
		Pauses:      make(map[string]int),
	}
}

func (m *Metrics) AssignmentServed(_ context.Context, arm domain.Arm) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Assignments[arm]++
}

func (m *Metrics) AssignmentLogDropped(context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LogDrops++
}

func (m *Metrics) GuardrailPause(_ context.Context, metric string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Pauses[metric]++
}

func (m *Metrics) ReportSigned(context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Reports++
}

func (m *Metrics) Close(context.Context) error { return nil }

// PauseCount returns recorded pauses for one metric.
func (m *Metrics) PauseCount(metric string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Pauses[metric]
}

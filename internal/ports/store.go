package ports

import (
	"context"
	"time"

	"github.com/rivalapexmediation/migration-engine/internal/domain"
)

// ExperimentRepository is the durable record of experiments. Reads are
// always scoped to a publisher so misses and cross-tenant lookups are
// indistinguishable.
type ExperimentRepository interface {
	Create(ctx context.Context, exp *domain.Experiment) error
	GetByID(ctx context.Context, publisherID, id string) (*domain.Experiment, error)
	GetActiveByPublisher(ctx context.Context, publisherID string) (*domain.Experiment, error)
	List(ctx context.Context, publisherID string) ([]*domain.Experiment, error)
	Update(ctx context.Context, exp *domain.Experiment) error

	// UpdateStatusIf writes the status transition only when the current
	// status still equals from, and reports whether the write applied.
	// Concurrent guardrail evaluations rely on this to avoid double-pausing.
	UpdateStatusIf(ctx context.Context, id string, from, to domain.ExperimentStatus) (bool, error)
}

// MappingRepository stores incumbent-to-replacement mappings.
type MappingRepository interface {
	Create(ctx context.Context, m *domain.Mapping) error
	GetByID(ctx context.Context, experimentID, id string) (*domain.Mapping, error)
	GetByIncumbent(ctx context.Context, experimentID, network, instanceID string) (*domain.Mapping, error)
	ListByExperiment(ctx context.Context, experimentID string) ([]*domain.Mapping, error)
	Update(ctx context.Context, m *domain.Mapping) error
}

// ImportRepository stores import batches. A completed batch freezes the
// experiment's mapping set.
type ImportRepository interface {
	Create(ctx context.Context, b *domain.ImportBatch) error
	GetLatestByExperiment(ctx context.Context, experimentID string) (*domain.ImportBatch, error)
	MarkCompleted(ctx context.Context, id string, completedAt time.Time) error
}

// SnapshotRepository reads the rolling-window metrics captured by the
// external pipeline. The engine never writes snapshots.
type SnapshotRepository interface {
	ListSince(ctx context.Context, experimentID string, since time.Time) ([]*domain.GuardrailSnapshot, error)
}

// EventRepository appends lifecycle events.
type EventRepository interface {
	Append(ctx context.Context, ev *domain.Event) error
	ListByExperiment(ctx context.Context, experimentID string, limit int) ([]*domain.Event, error)
}

// AuditRepository appends tamper-evident audit records.
type AuditRepository interface {
	Append(ctx context.Context, rec *domain.AuditRecord) error
	GetByID(ctx context.Context, id string) (*domain.AuditRecord, error)
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Store bundles the repositories with a transactional execute primitive.
// ExecTx runs fn against a store whose writes commit or roll back
// together; the engine assumes nothing else about the storage technology.
type Store interface {
	Experiments() ExperimentRepository
	Mappings() MappingRepository
	Imports() ImportRepository
	Snapshots() SnapshotRepository
	Events() EventRepository
	Audit() AuditRepository

	ExecTx(ctx context.Context, fn func(tx Store) error) error
}

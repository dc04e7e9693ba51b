package domain

import "time"

// MappingStatus is the reconciliation state of one incumbent instance.
type MappingStatus string

const (
	MappingPending   MappingStatus = "pending"
	MappingConfirmed MappingStatus = "confirmed"
	MappingConflict  MappingStatus = "conflict"
)

// Mapping links one incumbent network instance to its candidate or
// confirmed replacement adapter. At most one mapping exists per
// (experiment, incumbent instance).
type Mapping struct {
	ID                  string
	ExperimentID        string
	IncumbentNetwork    string
	IncumbentInstanceID string
	WaterfallPosition   int
	IncumbentECPMMicros *int64
	AdapterID           *string
	Status              MappingStatus
	Confidence          float64
	ConflictReason      *string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// ImportStatus is the lifecycle state of an import batch.
type ImportStatus string

const (
	ImportPending   ImportStatus = "pending"
	ImportCompleted ImportStatus = "completed"
)

// ImportSourceKind discriminates the tagged union of import sources.
type ImportSourceKind string

const (
	ImportSourceFile ImportSourceKind = "file"
	ImportSourceAPI  ImportSourceKind = "api_pull"
)

// ImportBatch records one reconciliation run for an experiment. Once the
// batch is completed the experiment's mapping set is frozen.
type ImportBatch struct {
	ID           string
	ExperimentID string
	Source       ImportSourceKind
	Status       ImportStatus
	RowCount     int
	CreatedAt    time.Time
	CompletedAt  *time.Time
}

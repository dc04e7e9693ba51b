package domain

import "time"

// EventType classifies experiment lifecycle events.
type EventType string

const (
	EventActivation         EventType = "activation"
	EventDeactivation       EventType = "deactivation"
	EventAssignment         EventType = "assignment"
	EventGuardrailViolation EventType = "guardrail_violation"
	EventImport             EventType = "import"
	EventImportFinalized    EventType = "import_finalized"
	EventMappingUpdate      EventType = "mapping_update"
	EventArchive            EventType = "archive"
)

// Event is an append-only record of something that happened to an
// experiment. Distinct from the tamper-evident AuditRecord: events carry
// operational payloads, audit records carry integrity checksums.
type Event struct {
	ID           string
	ExperimentID string
	Type         EventType
	Payload      map[string]any
	CreatedAt    time.Time
}

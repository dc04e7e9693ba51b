package domain

import "time"

// AuditRecord is one tamper-evident entry in the audit log. Records are
// append-only and are never mutated or deleted outside the retention
// purge.
//
// Checksum is a SHA-256 hex digest over the canonical JSON of the fields
// {entity_type, entity_id, actor_id, actor_type, action, timestamp,
// before, after}; see the audit package for the exact rule.
type AuditRecord struct {
	ID         string
	ActorID    string
	ActorType  string
	Action     string
	EntityType string
	EntityID   string
	Before     map[string]any
	After      map[string]any
	Metadata   map[string]any
	Checksum   string
	CreatedAt  time.Time
}

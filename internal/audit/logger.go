// Package audit appends tamper-evident records for every mutating
// operation and verifies their integrity after the fact.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/rivalapexmediation/migration-engine/internal/domain"
	"github.com/rivalapexmediation/migration-engine/internal/ports"
	"github.com/rivalapexmediation/migration-engine/internal/signing"
)

// DefaultRetention is how long audit records are kept before the
// retention purge may remove them.
const DefaultRetention = 7 * 365 * 24 * time.Hour

// Actor identifies who performed a mutating operation.
type Actor struct {
	ID   string
	Type string
}

// checksumFields is the canonical subset covered by the checksum. The
// field set and their JSON names are frozen: altering either breaks
// verification of previously written records.
type checksumFields struct {
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	ActorID    string         `json:"actor_id"`
	ActorType  string         `json:"actor_type"`
	Action     string         `json:"action"`
	Timestamp  string         `json:"timestamp"`
	Before     map[string]any `json:"before"`
	After      map[string]any `json:"after"`
}

// Checksum computes the SHA-256 hex digest over the canonical JSON of the
// record's checksum subset. The timestamp is serialized as UTC
// RFC3339Nano so the digest is independent of time zone representation.
func Checksum(rec *domain.AuditRecord) (string, error) {
	canonical, err := signing.CanonicalBytes(checksumFields{
		EntityType: rec.EntityType,
		EntityID:   rec.EntityID,
		ActorID:    rec.ActorID,
		ActorType:  rec.ActorType,
		Action:     rec.Action,
		Timestamp:  rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		Before:     rec.Before,
		After:      rec.After,
	})
	if err != nil {
		return "", fmt.Errorf("canonicalize audit record: %w", err)
	}
	digest := sha256.Sum256(canonical)
	return hex.EncodeToString(digest[:]), nil
}

// NewRecord builds a checksummed record ready for appending. Before and
// after are nullable state snapshots of the mutated entity.
func NewRecord(actor Actor, action, entityType, entityID string, before, after, metadata map[string]any) (*domain.AuditRecord, error) {
	rec := &domain.AuditRecord{
		ID:         uuid.New().String(),
		ActorID:    actor.ID,
		ActorType:  actor.Type,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Before:     before,
		After:      after,
		Metadata:   metadata,
		CreatedAt:  time.Now().UTC(),
	}
	checksum, err := Checksum(rec)
	if err != nil {
		return nil, err
	}
	rec.Checksum = checksum
	return rec, nil
}

// Logger verifies and purges audit records through the injected
// repository. Appends happen inside the mutating operations' transactions
// via NewRecord, not through Logger.
type Logger struct {
	repo ports.AuditRepository
}

// NewLogger creates a Logger over the given repository.
func NewLogger(repo ports.AuditRepository) *Logger {
	return &Logger{repo: repo}
}

// VerifyIntegrity recomputes the checksum from the stored fields and
// compares it to the stored checksum. A mismatch signals tampering and is
// a normal false result, not an error.
func (l *Logger) VerifyIntegrity(ctx context.Context, id string) (bool, error) {
	rec, err := l.repo.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	if rec == nil {
		return false, domain.NotFoundf("audit record %s", id)
	}
	expected, err := Checksum(rec)
	if err != nil {
		return false, err
	}
	if expected != rec.Checksum {
		log.Warnf("audit record %s failed integrity verification", id)
		return false, nil
	}
	return true, nil
}

// Purge deletes records older than the retention horizon and returns the
// count removed.
func (l *Logger) Purge(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		retention = DefaultRetention
	}
	cutoff := time.Now().UTC().Add(-retention)
	removed, err := l.repo.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		log.Infof("audit retention purge removed %d records older than %s", removed, cutoff.Format(time.RFC3339))
	}
	return removed, nil
}

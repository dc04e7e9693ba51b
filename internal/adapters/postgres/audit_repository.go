package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rivalapexmediation/migration-engine/internal/domain"
)

type auditRepository struct {
	q querier
}

const auditColumns = `id, actor_id, actor_type, action, entity_type, entity_id, before_state, after_state, metadata, checksum, created_at`

func (r *auditRepository) Append(ctx context.Context, rec *domain.AuditRecord) error {
	before, err := marshalNullable(rec.Before)
	if err != nil {
		return fmt.Errorf("marshal audit before: %w", err)
	}
	after, err := marshalNullable(rec.After)
	if err != nil {
		return fmt.Errorf("marshal audit after: %w", err)
	}
	metadata, err := marshalNullable(rec.Metadata)
	if err != nil {
		return fmt.Errorf("marshal audit metadata: %w", err)
	}

	_, err = r.q.ExecContext(ctx, `
		INSERT INTO audit_records (`+auditColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		rec.ID, rec.ActorID, rec.ActorType, rec.Action, rec.EntityType,
		rec.EntityID, before, after, metadata, rec.Checksum, rec.CreatedAt,
	)
	if err != nil {
		return domain.Transient("insert audit record", err)
	}
	return nil
}

func (r *auditRepository) GetByID(ctx context.Context, id string) (*domain.AuditRecord, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT `+auditColumns+`
		FROM audit_records
		WHERE id = $1`,
		id,
	)

	var rec domain.AuditRecord
	var before, after, metadata []byte
	err := row.Scan(
		&rec.ID, &rec.ActorID, &rec.ActorType, &rec.Action, &rec.EntityType,
		&rec.EntityID, &before, &after, &metadata, &rec.Checksum, &rec.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, domain.Transient("scan audit record", err)
	}

	if rec.Before, err = unmarshalNullable(before); err != nil {
		return nil, fmt.Errorf("unmarshal audit before: %w", err)
	}
	if rec.After, err = unmarshalNullable(after); err != nil {
		return nil, fmt.Errorf("unmarshal audit after: %w", err)
	}
	if rec.Metadata, err = unmarshalNullable(metadata); err != nil {
		return nil, fmt.Errorf("unmarshal audit metadata: %w", err)
	}
	return &rec, nil
}

func (r *auditRepository) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.q.ExecContext(ctx, `
		DELETE FROM audit_records
		WHERE created_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, domain.Transient("purge audit records", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, domain.Transient("purge audit records", err)
	}
	return n, nil
}

func marshalNullable(m map[string]any) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func unmarshalNullable(b []byte) (map[string]any, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

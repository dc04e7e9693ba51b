package postgres

import (
	"context"
	"database/sql"

	"github.com/rivalapexmediation/migration-engine/internal/domain"
)

type mappingRepository struct {
	q querier
}

const mappingColumns = `id, experiment_id, incumbent_network, incumbent_instance_id, waterfall_position, incumbent_ecpm_micros, adapter_id, status, confidence, conflict_reason, created_at, updated_at`

func (r *mappingRepository) Create(ctx context.Context, m *domain.Mapping) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO mappings (`+mappingColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		m.ID, m.ExperimentID, m.IncumbentNetwork, m.IncumbentInstanceID,
		m.WaterfallPosition, m.IncumbentECPMMicros, m.AdapterID, m.Status,
		m.Confidence, m.ConflictReason, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return domain.Transient("insert mapping", err)
	}
	return nil
}

func (r *mappingRepository) GetByID(ctx context.Context, experimentID, id string) (*domain.Mapping, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT `+mappingColumns+`
		FROM mappings
		WHERE id = $1 AND experiment_id = $2`,
		id, experimentID,
	)
	return scanMapping(row)
}

func (r *mappingRepository) GetByIncumbent(ctx context.Context, experimentID, network, instanceID string) (*domain.Mapping, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT `+mappingColumns+`
		FROM mappings
		WHERE experiment_id = $1 AND incumbent_network = $2 AND incumbent_instance_id = $3`,
		experimentID, network, instanceID,
	)
	return scanMapping(row)
}

func (r *mappingRepository) ListByExperiment(ctx context.Context, experimentID string) ([]*domain.Mapping, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+mappingColumns+`
		FROM mappings
		WHERE experiment_id = $1
		ORDER BY waterfall_position ASC, incumbent_instance_id ASC`,
		experimentID,
	)
	if err != nil {
		return nil, domain.Transient("list mappings", err)
	}
	defer rows.Close()

	var out []*domain.Mapping
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *mappingRepository) Update(ctx context.Context, m *domain.Mapping) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE mappings
		SET adapter_id = $2, status = $3, confidence = $4,
		    conflict_reason = $5, updated_at = $6
		WHERE id = $1`,
		m.ID, m.AdapterID, m.Status, m.Confidence, m.ConflictReason, m.UpdatedAt,
	)
	if err != nil {
		return domain.Transient("update mapping", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.Transient("update mapping", err)
	}
	if n == 0 {
		return domain.NotFoundf("mapping %s", m.ID)
	}
	return nil
}

func scanMapping(row scanner) (*domain.Mapping, error) {
	var m domain.Mapping
	err := row.Scan(
		&m.ID, &m.ExperimentID, &m.IncumbentNetwork, &m.IncumbentInstanceID,
		&m.WaterfallPosition, &m.IncumbentECPMMicros, &m.AdapterID, &m.Status,
		&m.Confidence, &m.ConflictReason, &m.CreatedAt, &m.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, domain.Transient("scan mapping", err)
	}
	return &m, nil
}

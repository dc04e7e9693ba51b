package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/rivalapexmediation/migration-engine/internal/domain"
)

type experimentRepository struct {
	q querier
}

const experimentColumns = `id, publisher_id, name, objective, status, mirror_percent, seed, guardrails, activated_at, created_at, updated_at`

func (r *experimentRepository) Create(ctx context.Context, exp *domain.Experiment) error {
	guardrails, err := json.Marshal(exp.Guardrails)
	if err != nil {
		return fmt.Errorf("marshal guardrails: %w", err)
	}

	_, err = r.q.ExecContext(ctx, `
		INSERT INTO experiments (`+experimentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		exp.ID, exp.PublisherID, exp.Name, exp.Objective, exp.Status,
		exp.MirrorPercent, exp.Seed, guardrails, exp.ActivatedAt,
		exp.CreatedAt, exp.UpdatedAt,
	)
	if err != nil {
		return domain.Transient("insert experiment", err)
	}
	return nil
}

func (r *experimentRepository) GetByID(ctx context.Context, publisherID, id string) (*domain.Experiment, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT `+experimentColumns+`
		FROM experiments
		WHERE id = $1 AND publisher_id = $2`,
		id, publisherID,
	)
	return scanExperiment(row)
}

func (r *experimentRepository) GetActiveByPublisher(ctx context.Context, publisherID string) (*domain.Experiment, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT `+experimentColumns+`
		FROM experiments
		WHERE publisher_id = $1 AND status = $2
		ORDER BY activated_at DESC
		LIMIT 1`,
		publisherID, domain.StatusActive,
	)
	return scanExperiment(row)
}

func (r *experimentRepository) List(ctx context.Context, publisherID string) ([]*domain.Experiment, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+experimentColumns+`
		FROM experiments
		WHERE publisher_id = $1
		ORDER BY created_at DESC`,
		publisherID,
	)
	if err != nil {
		return nil, domain.Transient("list experiments", err)
	}
	defer rows.Close()

	var out []*domain.Experiment
	for rows.Next() {
		exp, err := scanExperiment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, exp)
	}
	return out, rows.Err()
}

func (r *experimentRepository) Update(ctx context.Context, exp *domain.Experiment) error {
	guardrails, err := json.Marshal(exp.Guardrails)
	if err != nil {
		return fmt.Errorf("marshal guardrails: %w", err)
	}

	res, err := r.q.ExecContext(ctx, `
		UPDATE experiments
		SET name = $2, objective = $3, status = $4, mirror_percent = $5,
		    guardrails = $6, activated_at = $7, updated_at = $8
		WHERE id = $1`,
		exp.ID, exp.Name, exp.Objective, exp.Status, exp.MirrorPercent,
		guardrails, exp.ActivatedAt, exp.UpdatedAt,
	)
	if err != nil {
		return domain.Transient("update experiment", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.Transient("update experiment", err)
	}
	if n == 0 {
		return domain.NotFoundf("experiment %s", exp.ID)
	}
	return nil
}

func (r *experimentRepository) UpdateStatusIf(ctx context.Context, id string, from, to domain.ExperimentStatus) (bool, error) {
	res, err := r.q.ExecContext(ctx, `
		UPDATE experiments
		SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2`,
		id, from, to,
	)
	if err != nil {
		return false, domain.Transient("conditional status update", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, domain.Transient("conditional status update", err)
	}
	return n > 0, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanExperiment(row scanner) (*domain.Experiment, error) {
	var exp domain.Experiment
	var guardrails []byte

	err := row.Scan(
		&exp.ID, &exp.PublisherID, &exp.Name, &exp.Objective, &exp.Status,
		&exp.MirrorPercent, &exp.Seed, &guardrails, &exp.ActivatedAt,
		&exp.CreatedAt, &exp.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, domain.Transient("scan experiment", err)
	}
	if err := json.Unmarshal(guardrails, &exp.Guardrails); err != nil {
		return nil, fmt.Errorf("unmarshal guardrails: %w", err)
	}
	return &exp, nil
}

package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/rivalapexmediation/migration-engine/internal/domain"
)

type importRepository struct {
	q querier
}

const importColumns = `id, experiment_id, source, status, row_count, created_at, completed_at`

func (r *importRepository) Create(ctx context.Context, b *domain.ImportBatch) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO import_batches (`+importColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		b.ID, b.ExperimentID, b.Source, b.Status, b.RowCount, b.CreatedAt, b.CompletedAt,
	)
	if err != nil {
		return domain.Transient("insert import batch", err)
	}
	return nil
}

func (r *importRepository) GetLatestByExperiment(ctx context.Context, experimentID string) (*domain.ImportBatch, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT `+importColumns+`
		FROM import_batches
		WHERE experiment_id = $1
		ORDER BY created_at DESC
		LIMIT 1`,
		experimentID,
	)

	var b domain.ImportBatch
	err := row.Scan(&b.ID, &b.ExperimentID, &b.Source, &b.Status, &b.RowCount, &b.CreatedAt, &b.CompletedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, domain.Transient("scan import batch", err)
	}
	return &b, nil
}

func (r *importRepository) MarkCompleted(ctx context.Context, id string, completedAt time.Time) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE import_batches
		SET status = $2, completed_at = $3
		WHERE id = $1`,
		id, domain.ImportCompleted, completedAt,
	)
	if err != nil {
		return domain.Transient("complete import batch", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.Transient("complete import batch", err)
	}
	if n == 0 {
		return domain.NotFoundf("import batch %s", id)
	}
	return nil
}

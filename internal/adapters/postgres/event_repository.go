package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rivalapexmediation/migration-engine/internal/domain"
)

type eventRepository struct {
	q querier
}

func (r *eventRepository) Append(ctx context.Context, ev *domain.Event) error {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}

	_, err = r.q.ExecContext(ctx, `
		INSERT INTO events (id, experiment_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		ev.ID, ev.ExperimentID, ev.Type, payload, ev.CreatedAt,
	)
	if err != nil {
		return domain.Transient("insert event", err)
	}
	return nil
}

func (r *eventRepository) ListByExperiment(ctx context.Context, experimentID string, limit int) ([]*domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, experiment_id, event_type, payload, created_at
		FROM events
		WHERE experiment_id = $1
		ORDER BY created_at DESC
		LIMIT $2`,
		experimentID, limit,
	)
	if err != nil {
		return nil, domain.Transient("list events", err)
	}
	defer rows.Close()

	var out []*domain.Event
	for rows.Next() {
		var ev domain.Event
		var payload []byte
		if err := rows.Scan(&ev.ID, &ev.ExperimentID, &ev.Type, &payload, &ev.CreatedAt); err != nil {
			return nil, domain.Transient("scan event", err)
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &ev.Payload); err != nil {
				return nil, fmt.Errorf("unmarshal event payload: %w", err)
			}
		}
		out = append(out, &ev)
	}
	return out, rows.Err()
}

// Package reconcile normalizes incumbent waterfall data into candidate
// mappings with confidence scoring and conflict detection.
package reconcile

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/rivalapexmediation/migration-engine/internal/audit"
	"github.com/rivalapexmediation/migration-engine/internal/domain"
	"github.com/rivalapexmediation/migration-engine/internal/ports"
)

// WaterfallRow is one incumbent network instance from an import batch.
type WaterfallRow struct {
	Network    string
	InstanceID string
	Position   int
	ECPMMicros *int64
}

// FileSource imports rows parsed from a waterfall export file.
type FileSource struct {
	Path string
}

// APIPullSource imports rows pulled from an incumbent mediation API.
type APIPullSource struct {
	Endpoint string
	APIKey   string
}

// Source is the tagged union of import origins. Exactly one member must
// be set; Validate rejects everything else before any store access.
type Source struct {
	File *FileSource
	API  *APIPullSource
}

// Validate checks the union shape and the credentials it carries.
func (s Source) Validate() error {
	switch {
	case s.File != nil && s.API != nil:
		return domain.Validationf("import source must be file or api_pull, not both")
	case s.File != nil:
		if strings.TrimSpace(s.File.Path) == "" {
			return domain.Validationf("file import requires a path")
		}
	case s.API != nil:
		if strings.TrimSpace(s.API.Endpoint) == "" {
			return domain.Validationf("api_pull import requires an endpoint")
		}
		if strings.TrimSpace(s.API.APIKey) == "" {
			return domain.Validationf("api_pull import requires an api key")
		}
	default:
		return domain.Validationf("import source is required")
	}
	return nil
}

// Kind returns the discriminator for the set member.
func (s Source) Kind() domain.ImportSourceKind {
	if s.API != nil {
		return domain.ImportSourceAPI
	}
	return domain.ImportSourceFile
}

// ImportRequest carries one reconciliation run.
type ImportRequest struct {
	PublisherID  string
	ExperimentID string
	Actor        audit.Actor
	Source       Source
	Rows         []WaterfallRow
}

// UpdateMappingRequest lets an operator set or override a mapping target.
type UpdateMappingRequest struct {
	PublisherID  string
	ExperimentID string
	MappingID    string
	Actor        audit.Actor
	AdapterID    string
	Status       domain.MappingStatus
}

// FinalizeRequest completes an import and freezes the mapping set.
type FinalizeRequest struct {
	PublisherID  string
	ExperimentID string
	Actor        audit.Actor
}

// ImportResult summarizes one reconciliation run.
type ImportResult struct {
	BatchID   string
	Confirmed int
	Pending   int
	Conflicts int
}

// Reconciler resolves incumbent instances against the adapter catalog.
type Reconciler struct {
	store   ports.Store
	catalog []string
}

// NewReconciler creates a Reconciler over the given store.
func NewReconciler(store ports.Store) *Reconciler {
	return &Reconciler{store: store, catalog: Catalog}
}

// Import reconciles a batch of waterfall rows into mappings. The batch,
// its mappings, the import event, and the audit record commit atomically.
func (r *Reconciler) Import(ctx context.Context, req ImportRequest) (*ImportResult, error) {
	if err := req.Source.Validate(); err != nil {
		return nil, err
	}
	if len(req.Rows) == 0 {
		return nil, domain.Validationf("import batch has no rows")
	}
	for i, row := range req.Rows {
		if strings.TrimSpace(row.Network) == "" {
			return nil, domain.Validationf("row %d: network is required", i)
		}
		if strings.TrimSpace(row.InstanceID) == "" {
			return nil, domain.Validationf("row %d: instance id is required", i)
		}
	}

	exp, err := r.loadExperiment(ctx, req.PublisherID, req.ExperimentID)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{BatchID: uuid.New().String()}
	now := time.Now().UTC()

	err = r.store.ExecTx(ctx, func(tx ports.Store) error {
		// The freeze check shares the transaction with the writes so a
		// finalize committed after the caller's read cannot slip through.
		if err := ensureUnfrozen(ctx, tx, exp.ID); err != nil {
			return err
		}
		for _, row := range req.Rows {
			mapping, err := r.resolveRow(ctx, tx, exp.ID, row, now)
			if err != nil {
				return err
			}
			switch mapping.Status {
			case domain.MappingConfirmed:
				result.Confirmed++
			case domain.MappingConflict:
				result.Conflicts++
			default:
				result.Pending++
			}
		}

		batch := &domain.ImportBatch{
			ID:           result.BatchID,
			ExperimentID: exp.ID,
			Source:       req.Source.Kind(),
			Status:       domain.ImportPending,
			RowCount:     len(req.Rows),
			CreatedAt:    now,
		}
		if err := tx.Imports().Create(ctx, batch); err != nil {
			return err
		}

		if err := tx.Events().Append(ctx, &domain.Event{
			ID:           uuid.New().String(),
			ExperimentID: exp.ID,
			Type:         domain.EventImport,
			Payload: map[string]any{
				"batch_id":  batch.ID,
				"source":    string(batch.Source),
				"rows":      len(req.Rows),
				"confirmed": result.Confirmed,
				"pending":   result.Pending,
				"conflicts": result.Conflicts,
			},
			CreatedAt: now,
		}); err != nil {
			return err
		}

		rec, err := audit.NewRecord(req.Actor, "import", "experiment", exp.ID, nil, map[string]any{
			"batch_id": batch.ID,
			"rows":     len(req.Rows),
		}, nil)
		if err != nil {
			return err
		}
		return tx.Audit().Append(ctx, rec)
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"experiment_id": exp.ID,
		"batch_id":      result.BatchID,
		"confirmed":     result.Confirmed,
		"pending":       result.Pending,
		"conflicts":     result.Conflicts,
	}).Info("import reconciled")

	return result, nil
}

// resolveRow matches one incumbent instance against the catalog and
// creates or refreshes its mapping.
func (r *Reconciler) resolveRow(ctx context.Context, tx ports.Store, experimentID string, row WaterfallRow, now time.Time) (*domain.Mapping, error) {
	adapterID, confidence, status := r.match(row.Network)

	existing, err := tx.Mappings().GetByIncumbent(ctx, experimentID, row.Network, row.InstanceID)
	if err != nil {
		return nil, err
	}

	if existing != nil {
		// A previously confirmed target that disagrees with this batch is
		// a conflict, never a silent overwrite.
		if existing.Status == domain.MappingConfirmed && existing.AdapterID != nil &&
			status == domain.MappingConfirmed && adapterID != nil && *existing.AdapterID != *adapterID {
			reason := "import resolved " + *adapterID + " but mapping is confirmed to " + *existing.AdapterID
			existing.Status = domain.MappingConflict
			existing.ConflictReason = &reason
			existing.UpdatedAt = now
			if err := tx.Mappings().Update(ctx, existing); err != nil {
				return nil, err
			}
			return existing, nil
		}
		if existing.Status != domain.MappingConfirmed {
			existing.AdapterID = adapterID
			existing.Status = status
			existing.Confidence = confidence
			existing.ConflictReason = nil
			existing.WaterfallPosition = row.Position
			existing.IncumbentECPMMicros = row.ECPMMicros
			existing.UpdatedAt = now
			if err := tx.Mappings().Update(ctx, existing); err != nil {
				return nil, err
			}
		}
		return existing, nil
	}

	mapping := &domain.Mapping{
		ID:                  uuid.New().String(),
		ExperimentID:        experimentID,
		IncumbentNetwork:    row.Network,
		IncumbentInstanceID: row.InstanceID,
		WaterfallPosition:   row.Position,
		IncumbentECPMMicros: row.ECPMMicros,
		AdapterID:           adapterID,
		Status:              status,
		Confidence:          confidence,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := tx.Mappings().Create(ctx, mapping); err != nil {
		return nil, err
	}
	return mapping, nil
}

// match classifies one incumbent network name. Exact catalog matches and
// alias hits confirm immediately; otherwise the ranked candidate list
// decides between a single high-confidence confirmation and a pending
// mapping left for the operator.
func (r *Reconciler) match(network string) (adapterID *string, confidence float64, status domain.MappingStatus) {
	normalized := Normalize(network)
	for _, adapter := range r.catalog {
		if normalized == adapter {
			a := adapter
			return &a, 1.0, domain.MappingConfirmed
		}
	}
	if adapter, ok := LookupAlias(network); ok {
		a := adapter
		return &a, 0.95, domain.MappingConfirmed
	}

	candidates := RankCandidates(network, r.catalog)
	if len(candidates) == 0 {
		return nil, 0, domain.MappingPending
	}
	high := 0
	for _, c := range candidates {
		if c.Score >= highConfidence {
			high++
		}
	}
	if high == 1 && candidates[0].Score >= highConfidence {
		a := candidates[0].AdapterID
		return &a, candidates[0].Score, domain.MappingConfirmed
	}
	return nil, candidates[0].Score, domain.MappingPending
}

// UpdateMapping sets or overrides the target adapter and status of one
// mapping. Rejected once the mapping set is frozen.
func (r *Reconciler) UpdateMapping(ctx context.Context, req UpdateMappingRequest) (*domain.Mapping, error) {
	if strings.TrimSpace(req.AdapterID) == "" {
		return nil, domain.Validationf("adapter_id is required")
	}
	if req.Status != domain.MappingConfirmed && req.Status != domain.MappingPending {
		return nil, domain.Validationf("status must be confirmed or pending, got %q", req.Status)
	}

	exp, err := r.loadExperiment(ctx, req.PublisherID, req.ExperimentID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var mapping *domain.Mapping

	err = r.store.ExecTx(ctx, func(tx ports.Store) error {
		if err := ensureUnfrozen(ctx, tx, exp.ID); err != nil {
			return err
		}

		var err error
		mapping, err = tx.Mappings().GetByID(ctx, exp.ID, req.MappingID)
		if err != nil {
			return err
		}
		if mapping == nil {
			return domain.NotFoundf("mapping %s", req.MappingID)
		}

		before := mappingSnapshot(mapping)
		mapping.AdapterID = &req.AdapterID
		mapping.Status = req.Status
		mapping.Confidence = 1.0 // operator decision outranks any heuristic score
		mapping.ConflictReason = nil
		mapping.UpdatedAt = now

		if err := tx.Mappings().Update(ctx, mapping); err != nil {
			return err
		}
		if err := tx.Events().Append(ctx, &domain.Event{
			ID:           uuid.New().String(),
			ExperimentID: exp.ID,
			Type:         domain.EventMappingUpdate,
			Payload: map[string]any{
				"mapping_id": mapping.ID,
				"adapter_id": req.AdapterID,
				"status":     string(req.Status),
			},
			CreatedAt: now,
		}); err != nil {
			return err
		}
		rec, err := audit.NewRecord(req.Actor, "update_mapping", "mapping", mapping.ID, before, mappingSnapshot(mapping), nil)
		if err != nil {
			return err
		}
		return tx.Audit().Append(ctx, rec)
	})
	if err != nil {
		return nil, err
	}
	return mapping, nil
}

// FinalizeImport freezes the mapping set. Fails with Conflict while any
// mapping is still pending or conflicted. Batch and mapping statuses
// are read inside the transaction, so a concurrent edit reopening a
// mapping blocks the freeze.
func (r *Reconciler) FinalizeImport(ctx context.Context, req FinalizeRequest) error {
	exp, err := r.loadExperiment(ctx, req.PublisherID, req.ExperimentID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	return r.store.ExecTx(ctx, func(tx ports.Store) error {
		batch, err := tx.Imports().GetLatestByExperiment(ctx, exp.ID)
		if err != nil {
			return err
		}
		if batch == nil {
			return domain.NotFoundf("no import batch for experiment %s", exp.ID)
		}
		if batch.Status == domain.ImportCompleted {
			return domain.Conflictf("import %s is already finalized", batch.ID)
		}

		mappings, err := tx.Mappings().ListByExperiment(ctx, exp.ID)
		if err != nil {
			return err
		}
		var pending, conflicts int
		for _, m := range mappings {
			switch m.Status {
			case domain.MappingPending:
				pending++
			case domain.MappingConflict:
				conflicts++
			}
		}
		if pending > 0 || conflicts > 0 {
			return domain.Conflictf("cannot finalize: %d pending and %d conflicted mappings remain", pending, conflicts)
		}

		if err := tx.Imports().MarkCompleted(ctx, batch.ID, now); err != nil {
			return err
		}
		if err := tx.Events().Append(ctx, &domain.Event{
			ID:           uuid.New().String(),
			ExperimentID: exp.ID,
			Type:         domain.EventImportFinalized,
			Payload: map[string]any{
				"batch_id": batch.ID,
				"mappings": len(mappings),
			},
			CreatedAt: now,
		}); err != nil {
			return err
		}
		rec, err := audit.NewRecord(req.Actor, "finalize_import", "import", batch.ID, nil, map[string]any{
			"status": string(domain.ImportCompleted),
		}, nil)
		if err != nil {
			return err
		}
		return tx.Audit().Append(ctx, rec)
	})
}

// ListMappings returns the experiment's mappings for operator review.
func (r *Reconciler) ListMappings(ctx context.Context, publisherID, experimentID string) ([]*domain.Mapping, error) {
	exp, err := r.loadExperiment(ctx, publisherID, experimentID)
	if err != nil {
		return nil, err
	}
	return r.store.Mappings().ListByExperiment(ctx, exp.ID)
}

func (r *Reconciler) loadExperiment(ctx context.Context, publisherID, experimentID string) (*domain.Experiment, error) {
	exp, err := r.store.Experiments().GetByID(ctx, publisherID, experimentID)
	if err != nil {
		return nil, err
	}
	if exp == nil {
		return nil, domain.NotFoundf("experiment %s", experimentID)
	}
	return exp, nil
}

// ensureUnfrozen rejects mutation once the latest batch is finalized.
// Callers pass their transaction so the check and the write commit
// against the same view.
func ensureUnfrozen(ctx context.Context, s ports.Store, experimentID string) error {
	batch, err := s.Imports().GetLatestByExperiment(ctx, experimentID)
	if err != nil {
		return err
	}
	if batch != nil && batch.Status == domain.ImportCompleted {
		return domain.Conflictf("mapping set for experiment %s is frozen", experimentID)
	}
	return nil
}

func mappingSnapshot(m *domain.Mapping) map[string]any {
	snap := map[string]any{
		"status":     string(m.Status),
		"confidence": m.Confidence,
	}
	if m.AdapterID != nil {
		snap["adapter_id"] = *m.AdapterID
	}
	return snap
}

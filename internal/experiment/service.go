// Package experiment implements the operator-facing lifecycle of a
// migration experiment: a transactional state machine over
// draft → active → paused → active → archived.
package experiment

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

// CreateRequest describes a new draft experiment.
type CreateRequest struct {
	PublisherID   string
	Name          string
	Objective     string
	MirrorPercent int
	Seed          string
	Guardrails    domain.GuardrailConfig
	Actor         audit.Actor
}

// UpdateRequest edits a draft experiment. Nil fields are left unchanged.
type UpdateRequest struct {
	PublisherID   string
	ExperimentID  string
	Name          *string
	Objective     *string
	MirrorPercent *int
	Guardrails    *domain.GuardrailConfig
	Actor         audit.Actor
}

// Service orchestrates experiment state transitions. Every mutating
// operation writes state, event, and audit record in one transaction.
type Service struct {
	store ports.Store
}

// NewService creates a Service over the given store.
func NewService(store ports.Store) *Service {
	return &Service{store: store}
}

// Create persists a new draft experiment.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*domain.Experiment, error) {
	now := time.Now().UTC()
	exp := &domain.Experiment{
		ID:            uuid.New().String(),
		PublisherID:   req.PublisherID,
		Name:          strings.TrimSpace(req.Name),
		Status:        domain.StatusDraft,
		MirrorPercent: req.MirrorPercent,
		Seed:          req.Seed,
		Guardrails:    req.Guardrails,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if req.Objective != "" {
		obj := req.Objective
		exp.Objective = &obj
	}
	if exp.Seed == "" {
		// Seed defaults to a fresh UUID; it is immutable afterwards.
		exp.Seed = uuid.New().String()
	}
	if err := exp.Validate(); err != nil {
		return nil, err
	}

	err := s.store.ExecTx(ctx, func(tx ports.Store) error {
		if err := tx.Experiments().Create(ctx, exp); err != nil {
			return err
		}
		rec, err := audit.NewRecord(req.Actor, "create", "experiment", exp.ID, nil, experimentSnapshot(exp), nil)
		if err != nil {
			return err
		}
		return tx.Audit().Append(ctx, rec)
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{"experiment_id": exp.ID, "publisher_id": exp.PublisherID}).Info("experiment created")
	return exp, nil
}

// Get returns one experiment scoped to a publisher.
func (s *Service) Get(ctx context.Context, publisherID, id string) (*domain.Experiment, error) {
	return s.load(ctx, publisherID, id)
}

// List returns all of a publisher's experiments.
func (s *Service) List(ctx context.Context, publisherID string) ([]*domain.Experiment, error) {
	return s.store.Experiments().List(ctx, publisherID)
}

// Update edits a draft experiment. Any other status is a Conflict. The
// draft check runs on a read taken inside the transaction, so a
// transition committed by a concurrent writer surfaces as Conflict
// instead of being overwritten.
func (s *Service) Update(ctx context.Context, req UpdateRequest) (*domain.Experiment, error) {
	if req.MirrorPercent != nil {
		if err := domain.ValidateMirrorPercent(*req.MirrorPercent); err != nil {
			return nil, err
		}
	}

	var exp *domain.Experiment
	err := s.store.ExecTx(ctx, func(tx ports.Store) error {
		var err error
		exp, err = tx.Experiments().GetByID(ctx, req.PublisherID, req.ExperimentID)
		if err != nil {
			return err
		}
		if exp == nil {
			return domain.NotFoundf("experiment %s", req.ExperimentID)
		}
		if !exp.CanUpdate() {
			return domain.Conflictf("experiment %s is %s; only draft experiments can be edited", exp.ID, exp.Status)
		}

		before := experimentSnapshot(exp)
		if req.Name != nil {
			exp.Name = strings.TrimSpace(*req.Name)
		}
		if req.Objective != nil {
			exp.Objective = req.Objective
		}
		if req.MirrorPercent != nil {
			exp.MirrorPercent = *req.MirrorPercent
		}
		if req.Guardrails != nil {
			exp.Guardrails = *req.Guardrails
		}
		exp.UpdatedAt = time.Now().UTC()
		if err := exp.Validate(); err != nil {
			return err
		}

		if err := tx.Experiments().Update(ctx, exp); err != nil {
			return err
		}
		rec, err := audit.NewRecord(req.Actor, "update", "experiment", exp.ID, before, experimentSnapshot(exp), nil)
		if err != nil {
			return err
		}
		return tx.Audit().Append(ctx, rec)
	})
	if err != nil {
		return nil, err
	}
	return exp, nil
}

// Activate moves a draft or paused experiment to active.
func (s *Service) Activate(ctx context.Context, publisherID, id string, actor audit.Actor) (*domain.Experiment, error) {
	exp, err := s.load(ctx, publisherID, id)
	if err != nil {
		return nil, err
	}
	if !exp.CanActivate() {
		return nil, domain.Conflictf("cannot activate experiment %s from status %s", exp.ID, exp.Status)
	}
	if err := domain.ValidateMirrorPercent(exp.MirrorPercent); err != nil {
		return nil, err
	}

	before := experimentSnapshot(exp)
	now := time.Now().UTC()
	from := exp.Status
	exp.Status = domain.StatusActive
	exp.ActivatedAt = &now
	exp.UpdatedAt = now

	err = s.transition(ctx, exp, from, actor, "activate", before, &domain.Event{
		ID:           uuid.New().String(),
		ExperimentID: exp.ID,
		Type:         domain.EventActivation,
		Payload:      map[string]any{"mirror_percent": exp.MirrorPercent},
		CreatedAt:    now,
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{"experiment_id": exp.ID, "mirror_percent": exp.MirrorPercent}).Info("experiment activated")
	return exp, nil
}

// Pause moves an active experiment to paused. A reason is required.
func (s *Service) Pause(ctx context.Context, publisherID, id, reason string, actor audit.Actor) (*domain.Experiment, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, domain.Validationf("pause requires a reason")
	}

	exp, err := s.load(ctx, publisherID, id)
	if err != nil {
		return nil, err
	}
	if !exp.CanPause() {
		return nil, domain.Conflictf("cannot pause experiment %s from status %s", exp.ID, exp.Status)
	}

	before := experimentSnapshot(exp)
	now := time.Now().UTC()
	from := exp.Status
	exp.Status = domain.StatusPaused
	exp.UpdatedAt = now

	err = s.transition(ctx, exp, from, actor, "pause", before, &domain.Event{
		ID:           uuid.New().String(),
		ExperimentID: exp.ID,
		Type:         domain.EventDeactivation,
		Payload:      map[string]any{"reason": reason},
		CreatedAt:    now,
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{"experiment_id": exp.ID, "reason": reason}).Warn("experiment paused")
	return exp, nil
}

// Archive soft-deletes a draft or paused experiment. Active experiments
// must be paused first.
func (s *Service) Archive(ctx context.Context, publisherID, id string, actor audit.Actor) (*domain.Experiment, error) {
	exp, err := s.load(ctx, publisherID, id)
	if err != nil {
		return nil, err
	}
	if !exp.CanArchive() {
		return nil, domain.Conflictf("cannot archive experiment %s from status %s; pause it first", exp.ID, exp.Status)
	}

	before := experimentSnapshot(exp)
	now := time.Now().UTC()
	from := exp.Status
	exp.Status = domain.StatusArchived
	exp.UpdatedAt = now

	err = s.transition(ctx, exp, from, actor, "archive", before, &domain.Event{
		ID:           uuid.New().String(),
		ExperimentID: exp.ID,
		Type:         domain.EventArchive,
		Payload:      map[string]any{"previous_status": string(from)},
		CreatedAt:    now,
	})
	if err != nil {
		return nil, err
	}
	return exp, nil
}

// transition performs the conditional status write plus event and audit
// appends atomically. The conditional write keeps concurrent transitions
// from racing: losing the race surfaces as a Conflict.
func (s *Service) transition(ctx context.Context, exp *domain.Experiment, from domain.ExperimentStatus, actor audit.Actor, action string, before map[string]any, ev *domain.Event) error {
	return s.store.ExecTx(ctx, func(tx ports.Store) error {
		applied, err := tx.Experiments().UpdateStatusIf(ctx, exp.ID, from, exp.Status)
		if err != nil {
			return err
		}
		if !applied {
			return domain.Conflictf("experiment %s changed status concurrently", exp.ID)
		}
		if err := tx.Experiments().Update(ctx, exp); err != nil {
			return err
		}
		if err := tx.Events().Append(ctx, ev); err != nil {
			return err
		}
		rec, err := audit.NewRecord(actor, action, "experiment", exp.ID, before, experimentSnapshot(exp), nil)
		if err != nil {
			return err
		}
		return tx.Audit().Append(ctx, rec)
	})
}

func (s *Service) load(ctx context.Context, publisherID, id string) (*domain.Experiment, error) {
	exp, err := s.store.Experiments().GetByID(ctx, publisherID, id)
	if err != nil {
		return nil, err
	}
	if exp == nil {
		return nil, domain.NotFoundf("experiment %s", id)
	}
	return exp, nil
}

func experimentSnapshot(e *domain.Experiment) map[string]any {
	return map[string]any{
		"status":         string(e.Status),
		"name":           e.Name,
		"mirror_percent": e.MirrorPercent,
		"seed":           e.Seed,
	}
}

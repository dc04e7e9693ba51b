package assignment

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/rivalapexmediation/migration-engine/internal/domain"
	"github.com/rivalapexmediation/migration-engine/internal/ports"
)

// Request is the transport-agnostic assignment input.
type Request struct {
	PublisherID    string
	AppID          string
	PlacementID    string
	UserIdentifier string
}

// Response is the transport-agnostic assignment output. When
// HasExperiment is false every other field is zero.
type Response struct {
	HasExperiment bool       `json:"has_experiment"`
	Arm           domain.Arm `json:"arm,omitempty"`
	ExperimentID  string     `json:"experiment_id,omitempty"`
	MirrorPercent int        `json:"mirror_percent,omitempty"`
	AssignmentTS  *time.Time `json:"assignment_ts,omitempty"`
	Mode          string     `json:"mode,omitempty"`
}

// logWriteTimeout bounds the detached assignment-log write so abandoned
// writes cannot pile up goroutines.
const logWriteTimeout = 2 * time.Second

// Resolver serves the caller-facing assignment contract: flag
// short-circuit, deterministic bucketing, fire-and-forget logging.
type Resolver struct {
	store   ports.Store
	flags   ports.FlagProvider
	metrics ports.EngineMetrics
}

// NewResolver creates a Resolver.
func NewResolver(store ports.Store, flags ports.FlagProvider, metrics ports.EngineMetrics) *Resolver {
	return &Resolver{store: store, flags: flags, metrics: metrics}
}

// Resolve buckets one request. The caller's response never depends on
// assignment logging succeeding: log failures are swallowed and only
// surfaced through local error telemetry.
func (r *Resolver) Resolve(ctx context.Context, req Request) (*Response, error) {
	if strings.TrimSpace(req.UserIdentifier) == "" {
		return nil, domain.Validationf("user_identifier is required")
	}
	if strings.TrimSpace(req.PlacementID) == "" {
		return nil, domain.Validationf("placement_id is required")
	}

	flags, err := r.flags.Resolve(ctx, ports.FlagScope{
		PublisherID: req.PublisherID,
		AppID:       req.AppID,
		PlacementID: req.PlacementID,
	})
	if err != nil {
		// Fail closed: an unreadable flag store must not route traffic
		// into the test configuration.
		log.WithError(err).Warn("flag resolution failed, serving no experiment")
		return &Response{}, nil
	}
	if !flags.ShadowEnabled && !flags.MirroringEnabled {
		return &Response{}, nil
	}

	exp, err := r.store.Experiments().GetActiveByPublisher(ctx, req.PublisherID)
	if err != nil {
		return nil, err
	}
	if exp == nil {
		return &Response{}, nil
	}

	arm := Assign(exp.Seed, req.UserIdentifier, req.PlacementID, exp.MirrorPercent)
	now := time.Now().UTC()

	mode := "shadow"
	if flags.MirroringEnabled {
		mode = "mirror"
	}

	r.metrics.AssignmentServed(ctx, arm)
	go r.logAssignment(exp.ID, req, arm, now)

	return &Response{
		HasExperiment: true,
		Arm:           arm,
		ExperimentID:  exp.ID,
		MirrorPercent: exp.MirrorPercent,
		AssignmentTS:  &now,
		Mode:          mode,
	}, nil
}

// logAssignment appends the assignment event on a detached context. It
// must never block or fail the caller; errors only feed telemetry.
func (r *Resolver) logAssignment(experimentID string, req Request, arm domain.Arm, at time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), logWriteTimeout)
	defer cancel()

	err := r.store.Events().Append(ctx, &domain.Event{
		ID:           uuid.New().String(),
		ExperimentID: experimentID,
		Type:         domain.EventAssignment,
		Payload: map[string]any{
			"user_identifier": req.UserIdentifier,
			"placement_id":    req.PlacementID,
			"arm":             string(arm),
		},
		CreatedAt: at,
	})
	if err != nil {
		r.metrics.AssignmentLogDropped(ctx)
		log.WithError(err).Error("assignment log write dropped")
	}
}

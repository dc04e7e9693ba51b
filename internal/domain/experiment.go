package domain

import (
	"strings"
	"time"
)

// ExperimentStatus is the lifecycle state of a migration experiment.
type ExperimentStatus string

const (
	StatusDraft    ExperimentStatus = "draft"
	StatusActive   ExperimentStatus = "active"
	StatusPaused   ExperimentStatus = "paused"
	StatusArchived ExperimentStatus = "archived"
)

// MaxMirrorPercent caps the share of traffic routed to the test arm.
const MaxMirrorPercent = 20

// GuardrailConfig holds the automated thresholds that can force a pause.
type GuardrailConfig struct {
	LatencyBudgetMS int64   `json:"latency_budget_ms"`
	RevenueFloorPct float64 `json:"revenue_floor_pct"`
	MaxErrorRatePct float64 `json:"max_error_rate_pct"`
	MinImpressions  int64   `json:"min_impressions"`
}

// Experiment is one publisher's migration from an incumbent waterfall
// configuration to a replacement configuration.
//
// Seed is opaque and immutable once any assignment has been logged:
// changing it would silently reshuffle already-bucketed users.
type Experiment struct {
	ID            string
	PublisherID   string
	Name          string
	Objective     *string
	Status        ExperimentStatus
	MirrorPercent int
	Seed          string
	Guardrails    GuardrailConfig
	ActivatedAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// CanActivate reports whether the activate transition is legal.
func (e *Experiment) CanActivate() bool {
	return e.Status == StatusDraft || e.Status == StatusPaused
}

// CanPause reports whether the pause transition is legal.
func (e *Experiment) CanPause() bool {
	return e.Status == StatusActive
}

// CanUpdate reports whether field edits are legal.
func (e *Experiment) CanUpdate() bool {
	return e.Status == StatusDraft
}

// CanArchive reports whether the soft-archive transition is legal.
// Active experiments must be paused first.
func (e *Experiment) CanArchive() bool {
	return e.Status == StatusDraft || e.Status == StatusPaused
}

// ValidateMirrorPercent checks the [0, MaxMirrorPercent] range.
func ValidateMirrorPercent(pct int) error {
	if pct < 0 || pct > MaxMirrorPercent {
		return Validationf("mirror_percent must be between 0 and %d, got %d", MaxMirrorPercent, pct)
	}
	return nil
}

// Validate checks the experiment fields that must hold in every state.
func (e *Experiment) Validate() error {
	if strings.TrimSpace(e.PublisherID) == "" {
		return Validationf("publisher_id is required")
	}
	if strings.TrimSpace(e.Name) == "" {
		return Validationf("name is required")
	}
	if strings.TrimSpace(e.Seed) == "" {
		return Validationf("seed is required")
	}
	if err := ValidateMirrorPercent(e.MirrorPercent); err != nil {
		return err
	}
	if e.Guardrails.MinImpressions < 0 {
		return Validationf("guardrails.min_impressions must not be negative")
	}
	return nil
}

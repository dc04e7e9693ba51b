package domain

import "time"

// Arm identifies which configuration served a request: control is the
// incumbent waterfall, test is the replacement configuration.
type Arm string

const (
	ArmControl Arm = "control"
	ArmTest    Arm = "test"
)

// GuardrailSnapshot is one rolling-window metrics capture for one arm.
// Snapshots are written by the external metrics pipeline and are
// append-only; the engine only reads them.
//
// Revenue is integer micros of a dollar, never floating-point.
type GuardrailSnapshot struct {
	ID            string
	ExperimentID  string
	CapturedAt    time.Time
	Arm           Arm
	Impressions   int64
	Fills         int64
	RevenueMicros int64
	LatencyP50MS  int64
	LatencyP95MS  int64
	ErrorRatePct  float64
	IVTRatePct    float64
	WindowMinutes int
}

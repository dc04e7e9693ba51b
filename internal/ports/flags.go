package ports

import "context"

// FlagScope identifies the traffic a flag decision applies to.
type FlagScope struct {
	PublisherID string
	AppID       string
	PlacementID string
}

// Flags are the experiment modes resolved for a scope.
type Flags struct {
	ShadowEnabled    bool
	MirroringEnabled bool
}

// FlagProvider resolves experiment modes per scope. When the applicable
// mode is disabled the engine short-circuits and reports "no experiment"
// without invoking the assignment engine.
type FlagProvider interface {
	Resolve(ctx context.Context, scope FlagScope) (Flags, error)
}

package cli

import (
	"context"
	"fmt"
	"os"
	"os/user"
	"time"

	"github.com/rivalapexmediation/migration-engine/internal/adapters/otel"
	"github.com/rivalapexmediation/migration-engine/internal/adapters/postgres"
	"github.com/rivalapexmediation/migration-engine/internal/audit"
	"github.com/rivalapexmediation/migration-engine/internal/infrastructure/config"
	"github.com/rivalapexmediation/migration-engine/internal/ports"
	"github.com/rivalapexmediation/migration-engine/internal/signing"
)

// engine bundles the dependencies a command needs, built once per run.
type engine struct {
	cfg     *config.Config
	store   *postgres.Store
	metrics ports.EngineMetrics
}

func newEngine(ctx context.Context) (*engine, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	store, err := postgres.Open(ctx, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	var metrics ports.EngineMetrics = otel.Noop{}
	if cfg.Telemetry.Enabled {
		exporter, err := otel.NewExporter(ctx, otel.Config{
			Endpoint: cfg.Telemetry.Endpoint,
			Enabled:  cfg.Telemetry.Enabled,
			Insecure: cfg.Telemetry.Insecure,
		})
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("create telemetry exporter: %w", err)
		}
		metrics = exporter
	}

	return &engine{cfg: cfg, store: store, metrics: metrics}, nil
}

func (e *engine) close(ctx context.Context) {
	e.metrics.Close(ctx)
	e.store.Close()
}

func (e *engine) signer() (*signing.Signer, error) {
	return signing.NewSigner(e.cfg.Signing.KeyPath)
}

func (e *engine) guardrailWindow() time.Duration {
	return time.Duration(e.cfg.Engine.GuardrailWindowMinutes) * time.Minute
}

func (e *engine) reportLookback() time.Duration {
	return time.Duration(e.cfg.Engine.ReportLookbackDays) * 24 * time.Hour
}

func (e *engine) auditRetention() time.Duration {
	return time.Duration(e.cfg.Engine.AuditRetentionDays) * 24 * time.Hour
}

// operatorActor identifies the CLI user in audit records.
func operatorActor() audit.Actor {
	name := os.Getenv("MIGRATION_OPERATOR")
	if name == "" {
		if u, err := user.Current(); err == nil {
			name = u.Username
		}
	}
	if name == "" {
		name = "operator"
	}
	return audit.Actor{ID: name, Type: "operator"}
}

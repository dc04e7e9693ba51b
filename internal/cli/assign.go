package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rivalapexmediation/migration-engine/internal/adapters/redisflags"
	"github.com/rivalapexmediation/migration-engine/internal/assignment"
)

var assignCmd = &cobra.Command{
	Use:   "assign",
	Short: "Resolve an assignment for one request",
	Long: `Resolve which arm a request would be bucketed into, exactly as the
serving path would: feature flags first, then the active experiment, then
deterministic bucketing. Useful for debugging a publisher's traffic split.`,
	RunE: runAssign,
}

// Flags
var (
	assignPublisher string
	assignApp       string
	assignPlacement string
	assignUser      string
)

func init() {
	rootCmd.AddCommand(assignCmd)

	assignCmd.Flags().StringVarP(&assignPublisher, "publisher", "p", "", "Publisher id (required)")
	assignCmd.Flags().StringVar(&assignApp, "app", "", "App id")
	assignCmd.Flags().StringVar(&assignPlacement, "placement", "", "Placement id (required)")
	assignCmd.Flags().StringVarP(&assignUser, "user", "u", "", "User identifier (required)")
	assignCmd.MarkFlagRequired("publisher")
	assignCmd.MarkFlagRequired("placement")
	assignCmd.MarkFlagRequired("user")
}

func runAssign(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	eng, err := newEngine(ctx)
	if err != nil {
		return err
	}
	defer eng.close(ctx)

	flags, err := redisflags.Open(ctx, eng.cfg.Redis.Addr, eng.cfg.Redis.Password, eng.cfg.Redis.DB)
	if err != nil {
		return fmt.Errorf("connect to flag store: %w", err)
	}
	defer flags.Close()

	resolver := assignment.NewResolver(eng.store, flags, eng.metrics)
	resp, err := resolver.Resolve(ctx, assignment.Request{
		PublisherID:    assignPublisher,
		AppID:          assignApp,
		PlacementID:    assignPlacement,
		UserIdentifier: assignUser,
	})
	if err != nil {
		return err
	}

	encoded, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(encoded))
	return nil
}

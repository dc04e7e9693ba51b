// Package cli wires the operator-facing commands.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "migration-engine",
	Short: "Migration experiment engine for ad mediation",
	Long: `migration-engine manages controlled migrations from incumbent waterfall
configurations to replacement mediation setups.

Import the incumbent waterfall, reconcile it against known adapters, mirror a
capped slice of traffic into the test configuration, and let guardrails pause
the experiment automatically when the test arm underperforms.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(experimentCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(mappingCmd)
	rootCmd.AddCommand(guardrailCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(migrateCmd)
}

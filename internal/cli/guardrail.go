package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rivalapexmediation/migration-engine/internal/adapters/postgres"
	"github.com/rivalapexmediation/migration-engine/internal/guardrail"
)

var guardrailCmd = &cobra.Command{
	Use:   "guardrail",
	Short: "Evaluate guardrails against an active experiment",
}

var guardrailEvaluateCmd = &cobra.Command{
	Use:   "evaluate <experiment-id>",
	Short: "Run one guardrail evaluation",
	Long: `Run one guardrail evaluation over the rolling window. A breach pauses
the experiment; an insufficient sample takes no action.`,
	Args: cobra.ExactArgs(1),
	RunE: runGuardrailEvaluate,
}

var guardrailPublisher string

func init() {
	guardrailCmd.AddCommand(guardrailEvaluateCmd)
	guardrailCmd.PersistentFlags().StringVarP(&guardrailPublisher, "publisher", "p", "", "Publisher id (required)")
	guardrailCmd.MarkPersistentFlagRequired("publisher")
}

func runGuardrailEvaluate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	eng, err := newEngine(ctx)
	if err != nil {
		return err
	}
	defer eng.close(ctx)

	eval := guardrail.NewEvaluator(eng.store, eng.metrics, eng.guardrailWindow())
	result, err := postgres.WithRetry(ctx, 2, func() (*guardrail.Result, error) {
		return eval.Evaluate(ctx, guardrailPublisher, args[0])
	})
	if err != nil {
		return err
	}

	switch {
	case result.Inconclusive:
		fmt.Printf("Inconclusive: control %d / test %d impressions in window\n",
			result.Control.Impressions, result.Test.Impressions)
	case result.Breached && result.Paused:
		fmt.Printf("BREACH on %s (threshold %.2f, observed %.2f), experiment paused\n",
			result.Metric, result.Threshold, result.Observed)
	case result.Breached:
		fmt.Printf("BREACH on %s, but the experiment was already paused\n", result.Metric)
	default:
		fmt.Printf("Healthy: control %d / test %d impressions, all guardrails hold\n",
			result.Control.Impressions, result.Test.Impressions)
	}
	return nil
}

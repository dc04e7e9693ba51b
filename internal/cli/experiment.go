package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rivalapexmediation/migration-engine/internal/domain"
	"github.com/rivalapexmediation/migration-engine/internal/experiment"
)

var experimentCmd = &cobra.Command{
	Use:   "experiment",
	Short: "Manage migration experiments",
	Long:  `Create, list, activate, pause, and archive migration experiments.`,
}

var experimentCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a new draft experiment",
	Long: `Create a new draft experiment for a publisher.

Examples:
  migration-engine experiment create "q3-waterfall-migration" --publisher pub-123 --mirror-percent 5`,
	Args: cobra.ExactArgs(1),
	RunE: runExperimentCreate,
}

var experimentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List a publisher's experiments",
	RunE:  runExperimentList,
}

var experimentGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one experiment",
	Args:  cobra.ExactArgs(1),
	RunE:  runExperimentGet,
}

var experimentUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Edit a draft experiment",
	Long:  `Edit a draft experiment. Active, paused, and archived experiments cannot be edited.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runExperimentUpdate,
}

var experimentActivateCmd = &cobra.Command{
	Use:   "activate <id>",
	Short: "Activate a draft or paused experiment",
	Args:  cobra.ExactArgs(1),
	RunE:  runExperimentActivate,
}

var experimentPauseCmd = &cobra.Command{
	Use:   "pause <id>",
	Short: "Pause an active experiment",
	Long:  `Pause an active experiment. A reason is required and is recorded in the event log.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runExperimentPause,
}

var experimentArchiveCmd = &cobra.Command{
	Use:   "archive <id>",
	Short: "Archive a draft or paused experiment",
	Long:  `Archive a draft or paused experiment. Active experiments must be paused first.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runExperimentArchive,
}

// Flags
var (
	expPublisher       string
	expObjective       string
	expMirrorPercent   int
	expSeed            string
	expLatencyBudget   int64
	expRevenueFloor    float64
	expMaxErrorRate    float64
	expMinImpressions  int64
	expPauseReason     string
	expUpdateName      string
	expUpdateObjective string
	expUpdateMirror    int
)

func init() {
	experimentCmd.AddCommand(experimentCreateCmd)
	experimentCmd.AddCommand(experimentListCmd)
	experimentCmd.AddCommand(experimentGetCmd)
	experimentCmd.AddCommand(experimentUpdateCmd)
	experimentCmd.AddCommand(experimentActivateCmd)
	experimentCmd.AddCommand(experimentPauseCmd)
	experimentCmd.AddCommand(experimentArchiveCmd)

	experimentCmd.PersistentFlags().StringVarP(&expPublisher, "publisher", "p", "", "Publisher id (required)")
	experimentCmd.MarkPersistentFlagRequired("publisher")

	experimentCreateCmd.Flags().StringVarP(&expObjective, "objective", "o", "", "What the migration should achieve")
	experimentCreateCmd.Flags().IntVarP(&expMirrorPercent, "mirror-percent", "m", 0, "Traffic share for the test arm, 0 to 20")
	experimentCreateCmd.Flags().StringVar(&expSeed, "seed", "", "Bucketing seed, generated when omitted")
	experimentCreateCmd.Flags().Int64Var(&expLatencyBudget, "latency-budget-ms", 0, "Guardrail: max test-arm p95 latency")
	experimentCreateCmd.Flags().Float64Var(&expRevenueFloor, "revenue-floor-pct", 0, "Guardrail: max test eCPM shortfall vs control")
	experimentCreateCmd.Flags().Float64Var(&expMaxErrorRate, "max-error-rate-pct", 0, "Guardrail: max test-arm error rate")
	experimentCreateCmd.Flags().Int64Var(&expMinImpressions, "min-impressions", 1000, "Guardrail: minimum sample per arm")

	experimentUpdateCmd.Flags().StringVar(&expUpdateName, "name", "", "New name")
	experimentUpdateCmd.Flags().StringVar(&expUpdateObjective, "objective", "", "New objective")
	experimentUpdateCmd.Flags().IntVar(&expUpdateMirror, "mirror-percent", -1, "New mirror percent, 0 to 20")

	experimentPauseCmd.Flags().StringVarP(&expPauseReason, "reason", "r", "", "Why the experiment is being paused (required)")
	experimentPauseCmd.MarkFlagRequired("reason")
}

func runExperimentCreate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	eng, err := newEngine(ctx)
	if err != nil {
		return err
	}
	defer eng.close(ctx)

	svc := experiment.NewService(eng.store)
	exp, err := svc.Create(ctx, experiment.CreateRequest{
		PublisherID:   expPublisher,
		Name:          args[0],
		Objective:     expObjective,
		MirrorPercent: expMirrorPercent,
		Seed:          expSeed,
		Guardrails: domain.GuardrailConfig{
			LatencyBudgetMS: expLatencyBudget,
			RevenueFloorPct: expRevenueFloor,
			MaxErrorRatePct: expMaxErrorRate,
			MinImpressions:  expMinImpressions,
		},
		Actor: operatorActor(),
	})
	if err != nil {
		return err
	}

	fmt.Printf("Created draft experiment %s (%s)\n", exp.Name, exp.ID)
	return nil
}

func runExperimentList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	eng, err := newEngine(ctx)
	if err != nil {
		return err
	}
	defer eng.close(ctx)

	svc := experiment.NewService(eng.store)
	experiments, err := svc.List(ctx, expPublisher)
	if err != nil {
		return err
	}
	if len(experiments) == 0 {
		fmt.Println("No experiments found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTATUS\tMIRROR%\tCREATED")
	fmt.Fprintln(w, "--\t----\t------\t-------\t-------")
	for _, exp := range experiments {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			exp.ID, exp.Name, exp.Status, exp.MirrorPercent,
			exp.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	return w.Flush()
}

func runExperimentGet(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	eng, err := newEngine(ctx)
	if err != nil {
		return err
	}
	defer eng.close(ctx)

	svc := experiment.NewService(eng.store)
	exp, err := svc.Get(ctx, expPublisher, args[0])
	if err != nil {
		return err
	}

	fmt.Printf("ID:             %s\n", exp.ID)
	fmt.Printf("Name:           %s\n", exp.Name)
	if exp.Objective != nil {
		fmt.Printf("Objective:      %s\n", *exp.Objective)
	}
	fmt.Printf("Status:         %s\n", exp.Status)
	fmt.Printf("Mirror percent: %d\n", exp.MirrorPercent)
	fmt.Printf("Seed:           %s\n", exp.Seed)
	fmt.Printf("Guardrails:     latency<=%dms floor=%.1f%% errors<=%.1f%% min=%d\n",
		exp.Guardrails.LatencyBudgetMS, exp.Guardrails.RevenueFloorPct,
		exp.Guardrails.MaxErrorRatePct, exp.Guardrails.MinImpressions,
	)
	if exp.ActivatedAt != nil {
		fmt.Printf("Activated:      %s\n", exp.ActivatedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

func runExperimentUpdate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	eng, err := newEngine(ctx)
	if err != nil {
		return err
	}
	defer eng.close(ctx)

	req := experiment.UpdateRequest{
		PublisherID:  expPublisher,
		ExperimentID: args[0],
		Actor:        operatorActor(),
	}
	if cmd.Flags().Changed("name") {
		req.Name = &expUpdateName
	}
	if cmd.Flags().Changed("objective") {
		req.Objective = &expUpdateObjective
	}
	if cmd.Flags().Changed("mirror-percent") {
		req.MirrorPercent = &expUpdateMirror
	}

	svc := experiment.NewService(eng.store)
	exp, err := svc.Update(ctx, req)
	if err != nil {
		return err
	}

	fmt.Printf("Updated experiment %s\n", exp.ID)
	return nil
}

func runExperimentActivate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	eng, err := newEngine(ctx)
	if err != nil {
		return err
	}
	defer eng.close(ctx)

	svc := experiment.NewService(eng.store)
	exp, err := svc.Activate(ctx, expPublisher, args[0], operatorActor())
	if err != nil {
		return err
	}

	fmt.Printf("Activated experiment %s, mirroring %d%% of traffic\n", exp.ID, exp.MirrorPercent)
	return nil
}

func runExperimentPause(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	eng, err := newEngine(ctx)
	if err != nil {
		return err
	}
	defer eng.close(ctx)

	svc := experiment.NewService(eng.store)
	exp, err := svc.Pause(ctx, expPublisher, args[0], expPauseReason, operatorActor())
	if err != nil {
		return err
	}

	fmt.Printf("Paused experiment %s\n", exp.ID)
	return nil
}

func runExperimentArchive(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	eng, err := newEngine(ctx)
	if err != nil {
		return err
	}
	defer eng.close(ctx)

	svc := experiment.NewService(eng.store)
	exp, err := svc.Archive(ctx, expPublisher, args[0], operatorActor())
	if err != nil {
		return err
	}

	fmt.Printf("Archived experiment %s\n", exp.ID)
	return nil
}

package cli

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rivalapexmediation/migration-engine/internal/domain"
	"github.com/rivalapexmediation/migration-engine/internal/reconcile"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import and reconcile an incumbent waterfall",
	Long: `Import incumbent waterfall rows and reconcile them against the adapter
catalog. Rows come from a CSV export (network,instance_id,position,ecpm_usd,
header row required) or from a pulled mediation API.`,
}

var importFileCmd = &cobra.Command{
	Use:   "file <path>",
	Short: "Import a waterfall CSV export",
	Args:  cobra.ExactArgs(1),
	RunE:  runImportFile,
}

var importFinalizeCmd = &cobra.Command{
	Use:   "finalize",
	Short: "Finalize the latest import and freeze the mapping set",
	Long:  `Finalize the latest import. Fails while any mapping is still pending or conflicted.`,
	RunE:  runImportFinalize,
}

var mappingCmd = &cobra.Command{
	Use:   "mapping",
	Short: "Review and override reconciled mappings",
}

var mappingListCmd = &cobra.Command{
	Use:   "list",
	Short: "List an experiment's mappings",
	RunE:  runMappingList,
}

var mappingSetCmd = &cobra.Command{
	Use:   "set <mapping-id>",
	Short: "Set or override a mapping's target adapter",
	Args:  cobra.ExactArgs(1),
	RunE:  runMappingSet,
}

// Flags
var (
	importPublisher  string
	importExperiment string
	mappingAdapter   string
	mappingStatus    string
)

func init() {
	importCmd.AddCommand(importFileCmd)
	importCmd.AddCommand(importFinalizeCmd)
	mappingCmd.AddCommand(mappingListCmd)
	mappingCmd.AddCommand(mappingSetCmd)

	for _, c := range []*cobra.Command{importCmd, mappingCmd} {
		c.PersistentFlags().StringVarP(&importPublisher, "publisher", "p", "", "Publisher id (required)")
		c.PersistentFlags().StringVarP(&importExperiment, "experiment", "e", "", "Experiment id (required)")
		c.MarkPersistentFlagRequired("publisher")
		c.MarkPersistentFlagRequired("experiment")
	}

	mappingSetCmd.Flags().StringVarP(&mappingAdapter, "adapter", "a", "", "Target adapter id (required)")
	mappingSetCmd.Flags().StringVar(&mappingStatus, "status", "confirmed", "New status: confirmed or pending")
	mappingSetCmd.MarkFlagRequired("adapter")
}

func runImportFile(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	rows, err := readWaterfallCSV(args[0])
	if err != nil {
		return err
	}

	eng, err := newEngine(ctx)
	if err != nil {
		return err
	}
	defer eng.close(ctx)

	rec := reconcile.NewReconciler(eng.store)
	result, err := rec.Import(ctx, reconcile.ImportRequest{
		PublisherID:  importPublisher,
		ExperimentID: importExperiment,
		Actor:        operatorActor(),
		Source:       reconcile.Source{File: &reconcile.FileSource{Path: args[0]}},
		Rows:         rows,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Imported batch %s: %d confirmed, %d pending, %d conflicts\n",
		result.BatchID, result.Confirmed, result.Pending, result.Conflicts)
	if result.Pending > 0 || result.Conflicts > 0 {
		fmt.Println("Resolve remaining mappings with 'mapping set' before finalizing.")
	}
	return nil
}

func runImportFinalize(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	eng, err := newEngine(ctx)
	if err != nil {
		return err
	}
	defer eng.close(ctx)

	rec := reconcile.NewReconciler(eng.store)
	err = rec.FinalizeImport(ctx, reconcile.FinalizeRequest{
		PublisherID:  importPublisher,
		ExperimentID: importExperiment,
		Actor:        operatorActor(),
	})
	if err != nil {
		return err
	}

	fmt.Println("Import finalized, mapping set is frozen")
	return nil
}

func runMappingList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	eng, err := newEngine(ctx)
	if err != nil {
		return err
	}
	defer eng.close(ctx)

	rec := reconcile.NewReconciler(eng.store)
	mappings, err := rec.ListMappings(ctx, importPublisher, importExperiment)
	if err != nil {
		return err
	}
	if len(mappings) == 0 {
		fmt.Println("No mappings found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPOS\tINCUMBENT\tINSTANCE\tADAPTER\tSTATUS\tCONFIDENCE")
	fmt.Fprintln(w, "--\t---\t---------\t--------\t-------\t------\t----------")
	for _, m := range mappings {
		adapter := "-"
		if m.AdapterID != nil {
			adapter = *m.AdapterID
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\t%.2f\n",
			m.ID, m.WaterfallPosition, m.IncumbentNetwork, m.IncumbentInstanceID,
			adapter, m.Status, m.Confidence,
		)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	for _, m := range mappings {
		if m.ConflictReason != nil {
			fmt.Printf("conflict %s: %s\n", m.ID, *m.ConflictReason)
		}
	}
	return nil
}

func runMappingSet(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	eng, err := newEngine(ctx)
	if err != nil {
		return err
	}
	defer eng.close(ctx)

	rec := reconcile.NewReconciler(eng.store)
	mapping, err := rec.UpdateMapping(ctx, reconcile.UpdateMappingRequest{
		PublisherID:  importPublisher,
		ExperimentID: importExperiment,
		MappingID:    args[0],
		Actor:        operatorActor(),
		AdapterID:    mappingAdapter,
		Status:       domain.MappingStatus(mappingStatus),
	})
	if err != nil {
		return err
	}

	fmt.Printf("Mapping %s -> %s (%s)\n", mapping.IncumbentNetwork, mappingAdapter, mapping.Status)
	return nil
}

// readWaterfallCSV parses a network,instance_id,position,ecpm_usd export.
// The header row is required; ecpm_usd may be empty.
func readWaterfallCSV(path string) ([]reconcile.WaterfallRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open waterfall file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read waterfall header: %w", err)
	}
	if len(header) < 3 || !strings.EqualFold(strings.TrimSpace(header[0]), "network") {
		return nil, fmt.Errorf("unexpected waterfall header %v, want network,instance_id,position,ecpm_usd", header)
	}

	var rows []reconcile.WaterfallRow
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read waterfall line %d: %w", line, err)
		}
		if len(record) < 3 {
			return nil, fmt.Errorf("waterfall line %d: want at least 3 fields, got %d", line, len(record))
		}

		position, err := strconv.Atoi(strings.TrimSpace(record[2]))
		if err != nil {
			return nil, fmt.Errorf("waterfall line %d: bad position %q", line, record[2])
		}

		row := reconcile.WaterfallRow{
			Network:    strings.TrimSpace(record[0]),
			InstanceID: strings.TrimSpace(record[1]),
			Position:   position,
		}
		if len(record) > 3 && strings.TrimSpace(record[3]) != "" {
			usd, err := strconv.ParseFloat(strings.TrimSpace(record[3]), 64)
			if err != nil {
				return nil, fmt.Errorf("waterfall line %d: bad ecpm %q", line, record[3])
			}
			micros := int64(math.Round(usd * 1e6))
			row.ECPMMicros = &micros
		}
		rows = append(rows, row)
	}
	return rows, nil
}

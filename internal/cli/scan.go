package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"smc-scanner/internal/aggregator"
	"smc-scanner/internal/models"
	"smc-scanner/internal/store"
)

// newScanCmd runs one synchronous scan cycle and prints a color-formatted
// per-symbol summary.
func newScanCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Run a single scan cycle and print a summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			ctx, cancel := context.WithTimeout(context.Background(), app.Config.Scan.ScanInterval())
			defer cancel()

			app.Scheduler.RunOnce(ctx)

			signals := app.Store.All(store.Filter{})
			aggregator.SortBatch(signals)
			if output.IsJSON() {
				return output.JSON(signals)
			}
			printScanSummary(output, signals)
			return nil
		},
	}
}

func printScanSummary(output *Output, signals []models.InstrumentSignal) {
	if len(signals) == 0 {
		output.Warning("no symbols produced a qualifying signal this scan")
		return
	}

	output.Bold("Scan Summary")
	output.Println()
	for _, sig := range signals {
		line := sig.Symbol + ": " + string(sig.OverallStructure)
		switch {
		case sig.OverallStructure.IsBullishFamily():
			output.Bullish(line)
		case sig.OverallStructure.IsBearishFamily():
			output.Bearish(line)
		default:
			output.Printf("%s\n", line)
		}
		output.Dim("  matching timeframes: %d, confidence: %.0f%%, proximity: %.2f%%, generated: %s",
			sig.MatchingTimeframes, sig.MeanConfidence, sig.AvgProximityPct, sig.GeneratedAt.Format(time.Kitchen))
	}
}

package cmd

import (
	"context"
	"fmt"

	"github.com/kozaktomas/face-attendance/internal/recognition"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var calibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "Measure match distances and suggest a threshold",
	Long: `Split every person's samples into a training and a probe half, then compare
the distances of genuine matches with those of people the model has not seen.
The live model is not modified.`,
	RunE: runCalibrate,
}

func init() {
	rootCmd.AddCommand(calibrateCmd)
	addThresholdFlag(calibrateCmd)
}

func runCalibrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	store := openSamples(cfg)

	var bar *progressbar.ProgressBar
	report, err := recognition.Calibrate(context.Background(), backendFactory(cfg), store, cfg.Recognition.Threshold,
		func(done, total int) {
			if bar == nil {
				bar = newProgressBar(total, "Fitting models", "models")
			}
			_ = bar.Set(done)
		})
	if bar != nil {
		_ = bar.Finish()
		fmt.Println()
	}
	if err != nil {
		return err
	}

	fmt.Printf("%-9s %6s %8s %8s %8s %8s\n", "", "count", "mean", "stddev", "p05", "p95")
	for _, row := range []struct {
		name  string
		stats recognition.ScoreStats
	}{{"genuine", report.Genuine}, {"impostor", report.Impostor}} {
		fmt.Printf("%-9s %6d %8.2f %8.2f %8.2f %8.2f\n",
			row.name, row.stats.Count, row.stats.Mean, row.stats.StdDev, row.stats.P05, row.stats.P95)
	}
	fmt.Printf("\nAt threshold %.1f: %.0f%% of genuine probes accepted, %.0f%% of impostors rejected\n",
		report.Threshold, 100*report.TrueAcceptRate, 100*report.TrueRejectRate)
	fmt.Printf("Suggested threshold: %.1f\n", report.Suggested)
	return nil
}

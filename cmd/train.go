package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/kozaktomas/face-attendance/internal/recognition"
	"github.com/spf13/cobra"
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train the recognizer over all collected samples",
	Long: `Load every sample under SAMPLES_DIR, fit the configured recognizer and
replace the model file at MODEL_PATH. Directories that do not follow the
{id}_{name} pattern are skipped. The previous model stays in place when no
sample is found.`,
	RunE: runTrain,
}

func init() {
	rootCmd.AddCommand(trainCmd)
}

func runTrain(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	store := openSamples(cfg)

	backend, err := recognition.NewBackend(cfg.Recognition)
	if err != nil {
		return err
	}

	bar := newProgressBar(-1, "Loading samples", "samples")
	trainer := recognition.NewTrainer(backend, cfg.Storage.ModelPath)
	trainer.Progress = func(loaded int) {
		_ = bar.Set(loaded)
	}

	report, err := trainer.Train(context.Background(), store)
	_ = bar.Finish()
	fmt.Println()
	if report != nil {
		for _, s := range report.Skipped {
			fmt.Printf("Skipped %s\n", s)
		}
	}
	if err != nil {
		return err
	}

	fmt.Printf("Trained %s model on %d samples of %d people in %s\n",
		cfg.Recognition.Backend, report.Samples, report.Identities, report.Duration.Round(time.Millisecond))
	fmt.Printf("Model written to %s\n", report.Path)
	return nil
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kozaktomas/face-attendance/internal/camera"
	"github.com/kozaktomas/face-attendance/internal/collector"
	"github.com/kozaktomas/face-attendance/internal/identity"
	"github.com/spf13/cobra"
)

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Collect face samples for one person from the camera",
	Long: `Capture frames from the camera, detect faces and store every detected face
as a normalized grayscale sample under SAMPLES_DIR/{id}_{name}/.
Collection stops after --count samples or on Ctrl+C; samples written so far are kept.`,
	Example: `  face-attendance collect --id 1 --name Asha
  face-attendance collect --id 2 --name Bo --count 40 --camera replay --device ./frames`,
	RunE: runCollect,
}

func init() {
	rootCmd.AddCommand(collectCmd)

	collectCmd.Flags().Int("id", -1, "Numeric label of the person (required)")
	collectCmd.Flags().String("name", "", "Display name of the person (required)")
	collectCmd.Flags().Int("count", 0, "Number of samples to collect; defaults to SAMPLE_COUNT")
	addCameraFlags(collectCmd)
	_ = collectCmd.MarkFlagRequired("id")
	_ = collectCmd.MarkFlagRequired("name")
}

func runCollect(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	id, err := identity.New(mustGetInt(cmd, "id"), mustGetString(cmd, "name"))
	if err != nil {
		return err
	}
	target := mustGetInt(cmd, "count")
	if target <= 0 {
		target = cfg.Recognition.SampleCount
	}

	det, err := openDetector(cfg)
	if err != nil {
		return err
	}
	cam, err := camera.Open(cfg.Camera)
	if err != nil {
		return err
	}
	defer cam.Close()

	store := openSamples(cfg)
	c := collector.New(camera.NewReader(cam, cfg.Camera.Retries, cfg.Camera.RetryDelay), det, store)
	bar := newProgressBar(target, "Collecting "+id.Name, "samples")
	c.Progress = func(written, _ int) {
		_ = bar.Set(written)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Collecting %d samples for %s, press Ctrl+C to stop\n", target, id)
	written, err := c.Collect(ctx, id, target)
	_ = bar.Finish()
	fmt.Println()

	if errors.Is(err, context.Canceled) {
		fmt.Printf("Stopped after %d samples\n", written)
		return nil
	}
	if err != nil {
		return fmt.Errorf("collecting samples for %s: %w", id, err)
	}
	fmt.Printf("Collected %d samples in %s\n", written, store.Root())
	return nil
}

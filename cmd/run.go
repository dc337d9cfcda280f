package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/kozaktomas/face-attendance/internal/ledger"
	"github.com/kozaktomas/face-attendance/internal/session"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:     "run",
	Aliases: []string{"detect"},
	Short:   "Recognize faces from the camera and record attendance",
	Long: `Load the trained model, read frames from the camera and mark every
recognized person present in the attendance ledger, once per calendar day.
Runs until Ctrl+C, --max-frames frames, or a persistent camera failure.`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().Int("max-frames", 0, "Stop after this many frames (0 = unlimited)")
	runCmd.Flags().Bool("verbose", false, "Print every recognized face, not only new attendance")
	addCameraFlags(runCmd)
	addThresholdFlag(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	verbose := mustGetBool(cmd, "verbose")

	det, err := openDetector(cfg)
	if err != nil {
		return err
	}
	l, err := openLedger(cfg)
	if err != nil {
		return err
	}
	defer l.Close()

	env := sessionEnv(cfg, openSamples(cfg), det, l)
	env.MaxFrames = mustGetInt(cmd, "max-frames")
	s := session.New(uuid.New().String(), env)

	events := s.AddListener()
	done := make(chan struct{})
	go func() {
		defer close(done)
		printEvents(events, verbose)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := s.Start(ctx); err != nil {
		return err
	}
	fmt.Printf("Recognizing with threshold %.1f, press Ctrl+C to stop\n", cfg.Recognition.Threshold)
	runErr := s.Wait()
	s.RemoveListener(events)
	<-done

	st := s.Status()
	fmt.Printf("\n%d frames, %d faces, %d marked present\n", st.Frames, st.Faces, st.Marked)
	return runErr
}

// printEvents prints session events until the channel is closed.
func printEvents(events <-chan session.Event, verbose bool) {
	for e := range events {
		switch e.Type {
		case session.EventAttendance:
			if a, ok := e.Data.(session.AttendanceEvent); ok {
				fmt.Printf("%s  %d %s present\n", ledger.FormatTimestamp(a.Timestamp), a.Label, a.Name)
			}
		case session.EventFrame:
			if f, ok := e.Data.(session.FrameEvent); ok && verbose {
				fmt.Printf("frame %d: %s (score %.1f)\n", f.Frame, f.Name, f.Score)
			}
		case session.EventState:
			log.WithField("state", e.Message).Debug("session state")
		}
	}
}

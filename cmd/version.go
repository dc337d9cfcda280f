package cmd

import (
	"fmt"

	"github.com/kozaktomas/face-attendance/internal/camera"
	"github.com/kozaktomas/face-attendance/internal/detector"
	"github.com/kozaktomas/face-attendance/internal/ledger"
	"github.com/kozaktomas/face-attendance/internal/recognition"
	"github.com/spf13/cobra"
)

// Build metadata variables, set by -ldflags at compile time.
var (
	Version   = "dev"
	CommitSHA = "unknown"
	BuildDate = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version information and compiled-in drivers",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("face-attendance %s\n", Version)
		fmt.Printf("  Commit: %s\n", CommitSHA)
		fmt.Printf("  Built:  %s\n", BuildDate)
		fmt.Printf("  Cameras:    %v\n", camera.Drivers())
		fmt.Printf("  Detectors:  %v\n", detector.Drivers())
		fmt.Printf("  Recognizer: %v\n", recognition.Backends())
		fmt.Printf("  Ledgers:    %v\n", ledger.Drivers())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

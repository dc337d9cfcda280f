package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/kozaktomas/face-attendance/internal/ledger"
	"github.com/kozaktomas/face-attendance/internal/scheduler"
	"github.com/kozaktomas/face-attendance/internal/session"
	"github.com/kozaktomas/face-attendance/internal/web"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start the Face Attendance HTTP API.
The API enrolls people, trains the model, starts and stops recognition
sessions, streams live events over SSE and WebSocket and manages the
attendance ledger. With EXPORT_AT set, the ledger is also exported daily.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on; defaults to WEB_PORT")
	serveCmd.Flags().String("host", "", "Host to bind to; defaults to WEB_HOST")
	serveCmd.Flags().String("export-at", "", "Daily ledger export time (HH:MM); defaults to EXPORT_AT")
	addCameraFlags(serveCmd)
	addThresholdFlag(serveCmd)
}

// notifySystemd reports state to systemd when running as a notify service.
func notifySystemd(state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		log.WithError(err).Warn("systemd notification failed")
		return
	}
	if sent {
		log.WithField("state", state).Debug("systemd notified")
	}
}

// startExportSchedule schedules the daily ledger export, if configured.
func startExportSchedule(at, dir string, l ledger.Admin) (*scheduler.Scheduler, error) {
	if at == "" {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating export directory: %w", err)
	}
	s, err := scheduler.Start(at, time.Local, scheduler.NewExporter(l, dir))
	if err != nil {
		return nil, err
	}
	fmt.Printf("Daily ledger export at %s into %s (next %s)\n", at, dir, s.NextRun().Format(time.RFC3339))
	return s, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if port := mustGetInt(cmd, "port"); port > 0 {
		cfg.Web.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		cfg.Web.Host = host
	}
	if at := mustGetString(cmd, "export-at"); at != "" {
		cfg.Schedule.ExportAt = at
	}

	det, err := openDetector(cfg)
	if err != nil {
		return err
	}
	l, err := openLedger(cfg)
	if err != nil {
		return err
	}
	defer l.Close()
	store := openSamples(cfg)

	cron, err := startExportSchedule(cfg.Schedule.ExportAt, cfg.Storage.ExportDir, l)
	if err != nil {
		return err
	}

	jobs := session.NewManager(sessionEnv(cfg, store, det, l))
	server := web.NewServer(cfg, web.Deps{
		Samples:  store,
		Detector: det,
		Ledger:   l,
		Jobs:     jobs,
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")
		notifySystemd(daemon.SdNotifyStopping)
		if cron != nil {
			cron.Stop()
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	if !cfg.Web.AuthEnabled() {
		fmt.Println("Warning: WEB_ADMIN_PASSWORD_HASH is not set, the API is unauthenticated")
	}
	fmt.Printf("Starting Face Attendance API on http://%s:%d/api/v1\n", cfg.Web.Host, cfg.Web.Port)
	fmt.Println("Press Ctrl+C to stop")
	notifySystemd(daemon.SdNotifyReady)

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}

// Package scheduler runs the daily attendance export.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/kozaktomas/face-attendance/internal/ledger"
	log "github.com/sirupsen/logrus"
)

// Exporter writes one ledger export per day into a directory.
type Exporter struct {
	admin ledger.Admin
	dir   string
	now   func() time.Time
}

// NewExporter creates an exporter of a into dir.
func NewExporter(a ledger.Admin, dir string) *Exporter {
	return &Exporter{admin: a, dir: dir, now: time.Now}
}

// Export writes today's export file and returns its path. Running it
// twice on the same day replaces the file.
func (e *Exporter) Export(ctx context.Context) (string, error) {
	path := ledger.DailyExportPath(e.dir, e.now())
	if err := ledger.ExportFile(ctx, e.admin, path); err != nil {
		return "", fmt.Errorf("daily export: %w", err)
	}
	return path, nil
}

// Scheduler triggers the exporter once a day.
type Scheduler struct {
	cron *gocron.Scheduler
	job  *gocron.Job
}

// Start schedules exp every day at "HH:MM" in loc and starts the
// scheduler in the background.
func Start(at string, loc *time.Location, exp *Exporter) (*Scheduler, error) {
	if _, err := time.Parse("15:04", at); err != nil {
		return nil, fmt.Errorf("invalid export time %q: %w", at, err)
	}

	cron := gocron.NewScheduler(loc)
	cron.SingletonModeAll()
	job, err := cron.Every(1).Day().At(at).Do(func() {
		path, err := exp.Export(context.Background())
		if err != nil {
			log.WithError(err).Error("scheduled export failed")
			return
		}
		log.WithField("path", path).Info("scheduled export written")
	})
	if err != nil {
		return nil, fmt.Errorf("scheduling export: %w", err)
	}

	cron.StartAsync()
	log.WithFields(log.Fields{"at": at, "next_run": job.NextRun()}).Info("daily export scheduled")
	return &Scheduler{cron: cron, job: job}, nil
}

// NextRun returns the time of the next export.
func (s *Scheduler) NextRun() time.Time {
	return s.job.NextRun()
}

// Stop stops the scheduler; a running export finishes first.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}

// Package sweep reclaims orphaned spool files. A request abort mid-pipeline
// leaves its temp upload behind; the sweeper removes anything in the spool
// directory older than the configured cutoff on a cron schedule.
package sweep

import (
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/picfort/picfort/internal/config"
)

type Sweeper struct {
	dir    string
	maxAge time.Duration
	cron   *cron.Cron
	logger *slog.Logger
}

func New(cfg config.SweepConfig, spoolDir string, log *slog.Logger) *Sweeper {
	if log == nil {
		log = slog.Default()
	}
	return &Sweeper{
		dir:    spoolDir,
		maxAge: cfg.MaxAge(),
		logger: log.With(slog.String("service", "sweep")),
	}
}

// Start schedules the sweep. The schedule string uses cron syntax or the
// @every shorthand.
func (s *Sweeper) Start(schedule string) error {
	c := cron.New()
	if _, err := c.AddFunc(schedule, func() {
		removed, err := s.Sweep(time.Now())
		if err != nil {
			s.logger.Error("sweep failed", slog.Any("error", err))
			return
		}
		if removed > 0 {
			s.logger.Info("orphaned spool files removed", slog.Int("count", removed))
		}
	}); err != nil {
		return err
	}
	c.Start()
	s.cron = c
	return nil
}

// Stop halts the schedule, waiting for a running sweep to finish.
func (s *Sweeper) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// Sweep removes spool files whose modification time is older than the cutoff
// relative to now, and reports how many were removed. Subdirectories are left
// alone; the spool is flat.
func (s *Sweeper) Sweep(now time.Time) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	cutoff := now.Add(-s.maxAge)
	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(s.dir, e.Name())
		if err := os.Remove(path); err != nil {
			s.logger.Warn("remove failed", slog.String("path", path), slog.Any("error", err))
			continue
		}
		removed++
	}
	return removed, nil
}

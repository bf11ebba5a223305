// Package janitor periodically drops expired job records and stale files.
package janitor

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/gcottom/go-zaplog"
	"github.com/gcottom/riff/internal/services/jobstore"
	"go.uber.org/zap"
)

const defaultInterval = 5 * time.Minute

type Service struct {
	Store         jobstore.Store
	TempDir       string
	JobRetention  time.Duration
	FileRetention time.Duration
	Interval      time.Duration
	Now           func() time.Time
}

// Start sweeps on every tick until ctx is done.
func (s *Service) Start(ctx context.Context) {
	interval := s.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Sweep(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Sweep removes job records older than JobRetention and temp entries whose
// modification time is older than FileRetention. A zero retention disables that half.
func (s *Service) Sweep(ctx context.Context) (jobs, files int) {
	now := s.now()
	if s.JobRetention > 0 && s.Store != nil {
		n, err := s.Store.SweepExpired(ctx, now.Add(-s.JobRetention))
		if err != nil {
			zaplog.ErrorC(ctx, "failed to sweep expired jobs", zap.Error(err))
		}
		jobs = n
	}
	if s.FileRetention > 0 && s.TempDir != "" {
		files = s.sweepFiles(ctx, now.Add(-s.FileRetention))
	}
	if jobs > 0 || files > 0 {
		zaplog.InfoC(ctx, "cleanup finished", zap.Int("jobs", jobs), zap.Int("files", files))
	}
	return jobs, files
}

func (s *Service) sweepFiles(ctx context.Context, cutoff time.Time) int {
	entries, err := os.ReadDir(s.TempDir)
	if err != nil {
		if !os.IsNotExist(err) {
			zaplog.ErrorC(ctx, "failed to read temp dir", zap.String("dir", s.TempDir), zap.Error(err))
		}
		return 0
	}
	removed := 0
	for _, e := range entries {
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(s.TempDir, e.Name())
		if err = os.RemoveAll(path); err != nil {
			zaplog.WarnC(ctx, "failed to remove expired file", zap.String("path", path), zap.Error(err))
			continue
		}
		removed++
	}
	return removed
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

package utils

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// UploadSweeper deletes stored photos older than the retention window. It sweeps
// once when started and then on every interval tick until stopped.
type UploadSweeper struct {
	dir       string
	retention time.Duration
	interval  time.Duration
	log       *zap.Logger
	now       func() time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

func NewUploadSweeper(dir string, retention, interval time.Duration, log *zap.Logger) *UploadSweeper {
	if interval <= 0 {
		interval = 12 * time.Hour
	}
	return &UploadSweeper{
		dir:       dir,
		retention: retention,
		interval:  interval,
		log:       log,
		now:       time.Now,
	}
}

// Start launches the background loop.
func (s *UploadSweeper) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		s.sweepAndLog()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.sweepAndLog()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop ends the loop and waits for an in-progress sweep to finish.
func (s *UploadSweeper) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}

func (s *UploadSweeper) sweepAndLog() {
	removed, err := s.Sweep()
	if err != nil {
		s.log.Warn("upload sweep failed", zap.String("dir", s.dir), zap.Error(err))
		return
	}
	if removed > 0 {
		s.log.Info("upload sweep removed expired files", zap.Int("removed", removed))
	}
}

// Sweep removes regular files whose modification time is past retention. A missing
// directory counts as empty. Failures on single files are logged and skipped.
func (s *UploadSweeper) Sweep() (int, error) {
	if s.retention <= 0 {
		return 0, nil
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}
	cutoff := s.now().Add(-s.retention)
	removed := 0
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.log.Warn("upload sweep could not remove file", zap.String("path", path), zap.Error(err))
			continue
		}
		removed++
	}
	return removed, nil
}

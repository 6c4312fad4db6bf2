package cleanup

import (
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
)

// Scheduler prunes stale scratch directories. A crashed attempt can leave
// its project directory behind; anything older than the max age is safe to
// delete because live attempts never run that long.
type Scheduler struct {
	scratchRoot string
	interval    time.Duration
	maxAge      time.Duration
	stopChan    chan struct{}
	log         *logrus.Entry
}

// NewScheduler creates a scratch cleanup scheduler.
func NewScheduler(scratchRoot string, interval, maxAge time.Duration, log *logrus.Entry) *Scheduler {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Scheduler{
		scratchRoot: scratchRoot,
		interval:    interval,
		maxAge:      maxAge,
		stopChan:    make(chan struct{}),
		log:         log,
	}
}

// Start begins periodic cleanup, including one pass at startup.
func (s *Scheduler) Start() {
	s.pruneStale()

	ticker := time.NewTicker(s.interval)
	go func() {
		for {
			select {
			case <-ticker.C:
				s.pruneStale()
			case <-s.stopChan:
				ticker.Stop()
				return
			}
		}
	}()

	s.log.WithFields(logrus.Fields{"interval": s.interval, "max_age": s.maxAge}).
		Info("scratch cleanup scheduler started")
}

// Stop stops the cleanup scheduler.
func (s *Scheduler) Stop() {
	close(s.stopChan)
}

// pruneStale removes scratch directories older than the max age.
func (s *Scheduler) pruneStale() {
	entries, err := os.ReadDir(s.scratchRoot)
	if err != nil {
		s.log.WithError(err).Warn("failed to scan scratch root")
		return
	}

	now := time.Now()
	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) <= s.maxAge {
			continue
		}

		path := filepath.Join(s.scratchRoot, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			s.log.WithError(err).WithField("dir", path).Warn("failed to remove stale scratch dir")
			continue
		}
		removed++
	}

	if removed > 0 {
		s.log.WithField("removed", removed).Info("pruned stale scratch dirs")
	}
}

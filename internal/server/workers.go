package server

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"time"
)

// StartWorkers launches all background goroutines. Call with a cancellable
// context for graceful shutdown.
func (s *Server) StartWorkers(ctx context.Context) {
	go s.runStagingCleanup(ctx)
	if s.limiter != nil {
		go s.limiter.Run(ctx, time.Minute)
	}
}

// --- Staging Cleanup Worker ---

// runStagingCleanup periodically removes abandoned staged uploads (every 10
// minutes).
func (s *Server) runStagingCleanup(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(10 * time.Minute):
			n := s.sweepStaging(time.Now())
			if n > 0 {
				log.Printf("[worker] removed %d stale staged uploads", n)
			}
		}
	}
}

// sweepStaging deletes files in the tmp dir last modified more than
// StagingTTL before now. Returns the number of files removed.
func (s *Server) sweepStaging(now time.Time) int {
	entries, err := os.ReadDir(s.tmpDir)
	if err != nil {
		log.Printf("[worker] read tmp dir: %v", err)
		return 0
	}

	cutoff := now.Add(-s.opts.StagingTTL)
	removed := 0
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.tmpDir, entry.Name())); err != nil {
			log.Printf("[worker] remove staged upload %s: %v", entry.Name(), err)
			continue
		}
		removed++
	}
	return removed
}

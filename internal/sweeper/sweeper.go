// Package sweeper reclaims expired uploads, merged outputs and scratch files.
// It runs lazily before every merge and, optionally, on a timer.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/lukezje16/pdfmerger/internal/logging"
	"github.com/lukezje16/pdfmerger/internal/metrics"
	"github.com/lukezje16/pdfmerger/internal/security"
	"github.com/lukezje16/pdfmerger/internal/session"
	"github.com/lukezje16/pdfmerger/internal/storage"
)

type Config struct {
	FileExpiry    time.Duration
	ScratchExpiry time.Duration
	// ScratchDir is an absolute local directory. Empty skips the scratch pass.
	ScratchDir string
}

// Report counts what one sweep removed.
type Report struct {
	Uploads  int
	Merged   int
	Scratch  int
	Dirs     int
	Sessions session.PruneStats
}

func (r Report) Total() int {
	return r.Uploads + r.Merged + r.Scratch
}

type Sweeper struct {
	blobs   storage.StorageBackendWithInfo
	store   session.Store
	clock   clockwork.Clock
	cfg     Config
	scratch *security.SecurePath

	mu sync.Mutex
}

func New(blobs storage.StorageBackendWithInfo, store session.Store, clock clockwork.Clock, cfg Config) (*Sweeper, error) {
	if cfg.FileExpiry <= 0 || cfg.ScratchExpiry <= 0 {
		return nil, fmt.Errorf("expiry windows must be positive")
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	s := &Sweeper{blobs: blobs, store: store, clock: clock, cfg: cfg}
	if cfg.ScratchDir != "" {
		sp, err := security.NewSecurePathFromExisting(cfg.ScratchDir)
		if err != nil {
			return nil, fmt.Errorf("invalid scratch directory %q: %w", cfg.ScratchDir, err)
		}
		s.scratch = sp
	}
	return s, nil
}

// Sweep deletes every object older than its window. Objects exactly at or
// inside the window are kept. Concurrent calls are serialized.
func (s *Sweeper) Sweep(ctx context.Context) (Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var report Report
	var errs []error
	now := s.clock.Now()

	for _, root := range []struct {
		prefix string
		count  *int
	}{
		{storage.UploadsRoot, &report.Uploads},
		{storage.MergedRoot, &report.Merged},
	} {
		n, err := s.sweepRoot(ctx, root.prefix, now)
		*root.count = n
		if err != nil {
			errs = append(errs, err)
		}
		if reaper, ok := s.blobs.(storage.TempReaper); ok {
			temps, err := reaper.PruneStaleTemps(ctx, root.prefix, now.Add(-s.cfg.ScratchExpiry))
			report.Scratch += temps
			if err != nil {
				errs = append(errs, fmt.Errorf("prune temp files in %s: %w", root.prefix, err))
			}
		}
		if pruner, ok := s.blobs.(storage.DirPruner); ok {
			dirs, err := pruner.PruneEmptyDirs(ctx, root.prefix)
			report.Dirs += dirs
			if err != nil {
				errs = append(errs, fmt.Errorf("prune %s: %w", root.prefix, err))
			}
		}
	}

	n, err := s.sweepScratch(ctx, now)
	report.Scratch += n
	if err != nil {
		errs = append(errs, err)
	}

	if s.store != nil {
		stats, err := s.store.Prune(ctx, now.Add(-s.cfg.FileExpiry).UTC())
		report.Sessions = stats
		if err != nil {
			errs = append(errs, fmt.Errorf("prune session store: %w", err))
		}
	}

	err = errors.Join(errs...)
	metrics.RecordSweep(report.Uploads, report.Merged, report.Scratch, err)
	if report.Total() > 0 || report.Dirs > 0 {
		logging.Logf("[SWEEP] removed %d uploads, %d merged, %d scratch files, %d directories",
			report.Uploads, report.Merged, report.Scratch, report.Dirs)
	}
	return report, err
}

func (s *Sweeper) sweepRoot(ctx context.Context, prefix string, now time.Time) (int, error) {
	infos, err := s.blobs.ListWithInfo(ctx, prefix)
	if err != nil {
		return 0, fmt.Errorf("list %s: %w", prefix, err)
	}
	removed := 0
	for _, info := range infos {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if now.Sub(info.LastModified) <= s.cfg.FileExpiry {
			continue
		}
		if err := s.blobs.Delete(ctx, info.Key); err != nil {
			logging.Warnf("[SWEEP] failed to delete %s: %v", info.Key, err)
			continue
		}
		logging.Debugf("[SWEEP] deleted %s", info.Key)
		removed++
	}
	return removed, nil
}

// sweepScratch only looks at regular files directly inside the scratch
// directory. Symlinks and subdirectories are left alone.
func (s *Sweeper) sweepScratch(ctx context.Context, now time.Time) (int, error) {
	if s.scratch == nil {
		return 0, nil
	}
	entries, err := os.ReadDir(s.scratch.String())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("read scratch directory: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		sp, err := s.scratch.Join(entry.Name())
		if err != nil || !sp.Within(s.scratch) {
			continue
		}
		info, err := security.SafeLstat(sp)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		if now.Sub(info.ModTime()) <= s.cfg.ScratchExpiry {
			continue
		}
		if err := security.SafeRemoveIfExists(sp); err != nil {
			logging.Warnf("[SWEEP] failed to delete scratch file %s: %v", sp.Base(), err)
			continue
		}
		removed++
	}
	return removed, nil
}

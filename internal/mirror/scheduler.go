package mirror

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/drivearc/drivearc/internal/journal"
	"github.com/drivearc/drivearc/internal/logctx"
	"github.com/drivearc/drivearc/internal/progress"
	"github.com/drivearc/drivearc/internal/remote"
	"github.com/drivearc/drivearc/internal/telemetry"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Root is one folder tree to mirror.
type Root struct {
	FolderID string
	Group    string
}

// Counters aggregates run statistics. Fields are atomics so the status
// server can read them while workers are still producing outcomes.
type Counters struct {
	Total      atomic.Int64
	Downloaded atomic.Int64
	Skipped    atomic.Int64
	Failed     atomic.Int64
	Bytes      atomic.Int64
}

// Summary is a point-in-time copy of the counters.
type Summary struct {
	Total      int64 `json:"total"`
	Downloaded int64 `json:"downloaded"`
	Skipped    int64 `json:"skipped"`
	Failed     int64 `json:"failed"`
	Bytes      int64 `json:"bytes"`
}

func (c *Counters) Summary() Summary {
	return Summary{
		Total:      c.Total.Load(),
		Downloaded: c.Downloaded.Load(),
		Skipped:    c.Skipped.Load(),
		Failed:     c.Failed.Load(),
		Bytes:      c.Bytes.Load(),
	}
}

// Config tunes one scheduler run.
type Config struct {
	Workers       int
	SkipFailed    bool
	ShutdownGrace time.Duration
}

// Scheduler fans targets out to a fixed worker pool and funnels every
// outcome through a single collector, so progress-store mutation and
// counter updates stay serialized regardless of worker count.
type Scheduler struct {
	lister   *Lister
	fetcher  *Fetcher
	store    *progress.Store
	recorder journal.Recorder
	tel      *telemetry.Telemetry

	workers    int
	skipFailed bool
	grace      time.Duration

	runID    string
	counters Counters
}

// NewScheduler wires a run. The recorder may be nil when the attempt journal
// is disabled.
func NewScheduler(
	lister *Lister,
	fetcher *Fetcher,
	store *progress.Store,
	recorder journal.Recorder,
	tel *telemetry.Telemetry,
	cfg Config,
) *Scheduler {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}

	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = 10 * time.Second
	}

	return &Scheduler{
		lister:     lister,
		fetcher:    fetcher,
		store:      store,
		recorder:   recorder,
		tel:        tel,
		workers:    cfg.Workers,
		skipFailed: cfg.SkipFailed,
		grace:      cfg.ShutdownGrace,
		runID:      uuid.NewString(),
	}
}

// RunID identifies this run in the attempt journal.
func (s *Scheduler) RunID() string {
	return s.runID
}

// Counters exposes the live counters for the status server.
func (s *Scheduler) Counters() *Counters {
	return &s.counters
}

// Run lists every root, filters out already-recorded work and downloads the
// rest. It returns ErrRateLimited when the provider throttled the run, the
// context error when the caller interrupted it, and nil when all submitted
// work settled. The returned summary is accurate in every case: nothing is
// counted that did not durably land in the progress store.
func (s *Scheduler) Run(ctx context.Context, roots []Root) (Summary, error) {
	logger := logctx.LoggerFromContext(ctx)

	targets, err := s.listAll(ctx, roots)
	if err != nil {
		s.tel.RecordRun("aborted")

		return s.counters.Summary(), err
	}

	pending, alreadyDone := s.filter(targets)

	s.counters.Total.Store(int64(len(targets)))
	s.counters.Skipped.Add(int64(alreadyDone))

	logger.Info("run planned",
		"run_id", s.runID,
		"targets", len(targets),
		"already_downloaded", alreadyDone,
		"pending", len(pending),
		"workers", s.workers,
	)

	if len(pending) == 0 {
		s.tel.RecordRun("done")

		return s.counters.Summary(), nil
	}

	// Outcome recording must outlive an interrupt: whatever a worker
	// finished gets persisted even while the run context is already dead.
	recordCtx := context.WithoutCancel(ctx)

	// In-flight fetches are not cancelled by the abort gate; on interrupt
	// they get a grace period before their context dies too.
	fetchCtx, cancelFetch := context.WithCancel(recordCtx)
	defer cancelFetch()

	settled := make(chan struct{})
	defer close(settled)

	go func() {
		select {
		case <-ctx.Done():
			grace := time.NewTimer(s.grace)
			defer grace.Stop()

			select {
			case <-grace.C:
				cancelFetch()
			case <-settled:
			}
		case <-settled:
		}
	}()

	// abort is the rate-limit gate. The worker that observes a rate-limited
	// outcome closes it before handing the outcome over, so the feeder is
	// guaranteed to stop before any queued target can be taken.
	abort := make(chan struct{})

	var (
		abortOnce   sync.Once
		rateLimited atomic.Bool
	)

	jobs := make(chan Target)
	outcomes := make(chan Outcome)

	var wg sync.WaitGroup

	for range s.workers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for t := range jobs {
				s.tel.IncrementActiveFetches()
				out := s.fetcher.Fetch(fetchCtx, t)
				s.tel.DecrementActiveFetches()

				if out.Status == StatusFailed && remote.IsRateLimited(out.Reason) {
					rateLimited.Store(true)
					abortOnce.Do(func() { close(abort) })
				}

				outcomes <- out
			}
		}()
	}

	go func() {
		defer close(jobs)

		for _, t := range pending {
			select {
			case <-ctx.Done():
				return
			case <-abort:
				return
			case jobs <- t:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	for out := range outcomes {
		s.record(recordCtx, out)
	}

	switch {
	case rateLimited.Load():
		s.tel.RecordRun("aborted")

		return s.counters.Summary(), ErrRateLimited
	case ctx.Err() != nil:
		s.tel.RecordRun("interrupted")

		return s.counters.Summary(), ctx.Err()
	}

	s.tel.RecordRun("done")

	return s.counters.Summary(), nil
}

// listAll lists the roots in parallel; the first rate-limit (or interrupt)
// cancels the remaining listings. Targets found before the failure are kept
// so the summary reflects them.
func (s *Scheduler) listAll(ctx context.Context, roots []Root) ([]Target, error) {
	var (
		mu      sync.Mutex
		targets []Target
	)

	wg, ctx := errgroup.WithContext(ctx)

	for _, root := range roots {
		wg.Go(func() error {
			found, err := s.lister.List(ctx, root.FolderID, root.Group)

			mu.Lock()
			targets = append(targets, found...)
			mu.Unlock()

			return err
		})
	}

	if err := wg.Wait(); err != nil {
		return targets, err
	}

	return targets, nil
}

// filter drops targets the progress store already settled. Previously failed
// targets are retried unless the run asked to skip them.
func (s *Scheduler) filter(targets []Target) (pending []Target, alreadyDone int) {
	pending = make([]Target, 0, len(targets))

	for _, t := range targets {
		if s.store.IsDownloaded(t.ID) {
			alreadyDone++

			continue
		}

		if s.skipFailed && s.store.HasFailed(t.ID) {
			continue
		}

		pending = append(pending, t)
	}

	return pending, alreadyDone
}

// record persists one outcome. Only the collector goroutine calls it, so
// store mutations arrive in outcome order.
func (s *Scheduler) record(ctx context.Context, out Outcome) {
	logger := logctx.LoggerFromContext(ctx)

	switch out.Status {
	case StatusSuccess:
		s.counters.Downloaded.Add(1)
		s.counters.Bytes.Add(out.Bytes)

		if err := s.store.MarkDownloaded(out.Target.ID); err != nil {
			logger.Error("failed to record download", "target_id", out.Target.ID, "err", err)
		}

		logger.Info("downloaded file",
			"group", out.Target.Group,
			"path", out.Target.RelativePath,
			"size", humanize.Bytes(uint64(out.Bytes)))
	case StatusSkipped:
		s.counters.Skipped.Add(1)

		if err := s.store.MarkDownloaded(out.Target.ID); err != nil {
			logger.Error("failed to record download", "target_id", out.Target.ID, "err", err)
		}

		logger.Debug("file already on disk",
			"group", out.Target.Group,
			"path", out.Target.RelativePath)
	case StatusFailed:
		s.counters.Failed.Add(1)

		if err := s.store.MarkFailed(out.Target.ID, progress.FailureRecord{
			Path:   out.Target.RelativePath,
			Group:  out.Target.Group,
			Reason: out.Reason,
		}); err != nil {
			logger.Error("failed to record failure", "target_id", out.Target.ID, "err", err)
		}

		logger.Warn("failed to download file",
			"group", out.Target.Group,
			"path", out.Target.RelativePath,
			"reason", out.Reason)
	}

	s.tel.RecordFetch(out.Status, out.Duration, out.Bytes)

	if s.recorder != nil {
		rec := journal.Record{
			RunID:    s.runID,
			TargetID: out.Target.ID,
			Path:     out.Target.RelativePath,
			Group:    out.Target.Group,
			Status:   out.Status,
			Reason:   out.Reason,
			Bytes:    out.Bytes,
			Duration: out.Duration,
		}
		if err := s.recorder.Append(ctx, rec); err != nil {
			logger.Error("failed to journal attempt", "target_id", out.Target.ID, "err", err)
		}
	}
}

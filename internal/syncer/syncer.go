package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/acastellana/clawcondos-sub001/internal/indexer"
	"github.com/acastellana/clawcondos-sub001/internal/sessionsource"
	"github.com/acastellana/clawcondos-sub001/internal/storage"
)

const (
	// MaxSessionPage caps how many sessions one sync pass will consider.
	// Listing is single-page; an installation past this size gets a
	// truncated pass and a warning rather than an unbounded one.
	MaxSessionPage = 200

	// BatchSize is how many sessions are previewed and indexed together.
	BatchSize = 20

	// PreviewMaxMessages and PreviewMaxChars bound the transcript window
	// pulled per session.
	PreviewMaxMessages = 40
	PreviewMaxChars    = 4000

	// MaxEmbeddingCacheEntries bounds the persistent embedding cache;
	// the oldest entries beyond it are pruned at the end of each pass.
	MaxEmbeddingCacheEntries = 100_000

	// indexConcurrency is how many sessions of a batch are indexed at once.
	indexConcurrency = 4
)

// ErrSyncInProgress is returned when a sync is requested while another run
// holds the lock. The caller's intent is already served by the in-flight run.
var ErrSyncInProgress = errors.New("sync already in progress")

// Result summarizes one completed sync pass.
type Result struct {
	RunID        string
	SessionsSeen int
	Indexed      int
	Skipped      int
	Failed       int
	Truncated    bool // session list exceeded MaxSessionPage
	Pruned       int  // embedding-cache entries removed
	Duration     time.Duration
}

// Syncer drives periodic and on-demand index refreshes from a session
// source. Concurrent Sync calls coalesce; at most one pass runs at a time.
type Syncer struct {
	store     storage.Store
	indexer   *indexer.SessionIndexer
	source    sessionsource.Source
	logger    *slog.Logger
	lock      syncLock
	afterSync func()

	cron    *cron.Cron
	entryID cron.EntryID
}

// New creates a syncer. afterSync, if non-nil, runs at the end of every
// successful pass (the search layer uses it to drop stale cached queries).
func New(store storage.Store, ix *indexer.SessionIndexer, source sessionsource.Source, logger *slog.Logger, afterSync func()) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{
		store:     store,
		indexer:   ix,
		source:    source,
		logger:    logger,
		afterSync: afterSync,
	}
}

// Sync runs one full pass: list sessions, preview and index them in fixed
// batches, stamp the sync time and prune the embedding cache. Preview and
// indexing failures are counted and logged but never abort the pass; only
// the initial listing (or cancellation) can. Returns ErrSyncInProgress if
// another pass holds the lock.
func (s *Syncer) Sync(ctx context.Context) (*Result, error) {
	if !s.lock.tryAcquire() {
		return nil, ErrSyncInProgress
	}
	defer s.lock.release()

	start := time.Now()
	result := &Result{RunID: uuid.NewString()}

	descriptors, err := s.source.ListSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	if len(descriptors) > MaxSessionPage {
		s.logger.Warn("session count exceeds single sync page, truncating",
			"run", result.RunID,
			"sessions", len(descriptors),
			"page_limit", MaxSessionPage)
		descriptors = descriptors[:MaxSessionPage]
		result.Truncated = true
	}
	result.SessionsSeen = len(descriptors)

	var indexed, skipped, failed atomic.Int64

	for batchStart := 0; batchStart < len(descriptors); batchStart += BatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		batchEnd := batchStart + BatchSize
		if batchEnd > len(descriptors) {
			batchEnd = len(descriptors)
		}
		batch := descriptors[batchStart:batchEnd]

		keys := make([]string, len(batch))
		for i, d := range batch {
			keys[i] = d.Key
		}
		previews, err := s.source.PreviewSessions(ctx, keys, PreviewMaxMessages, PreviewMaxChars)
		if err != nil {
			// A preview failure costs this batch only; the pass moves on.
			failed.Add(int64(len(batch)))
			s.logger.Warn("failed to preview session batch",
				"run", result.RunID, "sessions", len(batch), "error", err)
			continue
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(indexConcurrency)
		for _, d := range batch {
			msgs, ok := previews[d.Key]
			if !ok || len(msgs) == 0 {
				skipped.Add(1)
				continue
			}
			g.Go(func() error {
				stats, err := s.indexer.IndexSession(gctx, d.Key, d.Metadata(), msgs)
				if err != nil {
					// One broken session must not abort the pass.
					failed.Add(1)
					s.logger.Warn("failed to index session",
						"run", result.RunID, "session", d.Key, "error", err)
					return nil
				}
				if stats.Skipped {
					skipped.Add(1)
				} else {
					indexed.Add(1)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	result.Indexed = int(indexed.Load())
	result.Skipped = int(skipped.Load())
	result.Failed = int(failed.Load())

	if err := s.store.SetLastSyncedAt(ctx, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("failed to record sync time: %w", err)
	}

	pruned, err := s.store.PruneEmbeddingCache(ctx, MaxEmbeddingCacheEntries)
	if err != nil {
		s.logger.Warn("failed to prune embedding cache", "run", result.RunID, "error", err)
	} else {
		result.Pruned = pruned
	}

	result.Duration = time.Since(start)
	s.logger.Info("sync complete",
		"run", result.RunID,
		"sessions", result.SessionsSeen,
		"indexed", result.Indexed,
		"skipped", result.Skipped,
		"failed", result.Failed,
		"truncated", result.Truncated,
		"pruned", result.Pruned,
		"duration", result.Duration)

	if s.afterSync != nil {
		s.afterSync()
	}
	return result, nil
}

// Start schedules background syncs at the given interval. The scheduler
// holds the schedule only; overlap protection comes from the sync lock.
func (s *Syncer) Start(interval time.Duration) error {
	if s.cron != nil {
		return errors.New("syncer already started")
	}
	if interval <= 0 {
		return fmt.Errorf("invalid sync interval %s", interval)
	}

	c := cron.New()
	id, err := c.AddFunc(fmt.Sprintf("@every %s", interval), func() {
		if _, err := s.Sync(context.Background()); err != nil {
			if errors.Is(err, ErrSyncInProgress) {
				s.logger.Debug("scheduled sync skipped, previous run still active")
				return
			}
			s.logger.Error("scheduled sync failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule sync: %w", err)
	}
	s.cron = c
	s.entryID = id
	c.Start()
	s.logger.Info("periodic sync started", "interval", interval)
	return nil
}

// Stop halts the periodic schedule and waits for a running scheduled pass
// to finish. Safe to call when Start was never called.
func (s *Syncer) Stop() {
	if s.cron == nil {
		return
	}
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.cron = nil
	s.logger.Info("periodic sync stopped")
}

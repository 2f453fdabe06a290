package service

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/Abhishek10299/Droply/internal/config"
	"github.com/Abhishek10299/Droply/internal/domain"
	"github.com/Abhishek10299/Droply/internal/platform/objectstore"
	"github.com/Abhishek10299/Droply/internal/store"
)

// Sweeper is the periodic reconciliation task. Each cycle it:
//
//  1. purges nodes trashed longer than the retention window,
//  2. reclaims storage objects left behind by tokens that expired before
//     registration,
//  3. retries object deletions that failed during an earlier purge.
//
// Failures on individual items are logged, counted and retried next cycle;
// they never abort the cycle. The clock and interval are injected so tests
// can drive sweeps deterministically.
type Sweeper struct {
	nodes     store.NodeStore
	tokens    store.TokenStore
	queue     store.PurgeQueue
	storage   objectstore.Storage
	lifecycle LifecycleService
	metrics   *SweepMetrics
	logger    *log.Logger
	clock     Clock
	cfg       config.Lifecycle
}

// NewSweeper creates a sweeper; call Run to start it.
func NewSweeper(
	nodes store.NodeStore,
	tokens store.TokenStore,
	queue store.PurgeQueue,
	storage objectstore.Storage,
	lifecycle LifecycleService,
	metrics *SweepMetrics,
	logger *log.Logger,
	clock Clock,
	cfg config.Lifecycle,
) *Sweeper {
	return &Sweeper{
		nodes:     nodes,
		tokens:    tokens,
		queue:     queue,
		storage:   storage,
		lifecycle: lifecycle,
		metrics:   metrics,
		logger:    logger,
		clock:     clock,
		cfg:       cfg,
	}
}

// Run sweeps at the configured interval until the context is canceled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep executes one full reconciliation cycle.
func (s *Sweeper) Sweep(ctx context.Context) {
	s.sweepRetention(ctx)
	s.sweepOrphans(ctx)
	s.retryQueuedDeletes(ctx)
}

// sweepRetention purges nodes whose trash age exceeds the retention window.
// Descendants of an already-purged folder show up as NotFound and are
// skipped silently.
func (s *Sweeper) sweepRetention(ctx context.Context) {
	cutoff := s.clock().Add(-s.cfg.TrashRetention)

	expired, err := s.nodes.ListTrashedBefore(ctx, cutoff, s.cfg.SweepBatch)
	if err != nil {
		s.metrics.Errors.Inc()
		s.logger.Printf("retention sweep: listing trashed nodes: %v", err)
		return
	}

	for _, node := range expired {
		report, err := s.lifecycle.Purge(ctx, node.OwnerID, node.ID)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			s.metrics.Errors.Inc()
			s.logger.Printf("retention sweep: purging node %s: %v", node.ID.Hex(), err)
			continue
		}
		s.metrics.RetentionPurgedNodes.Add(float64(report.NodesRemoved))
	}
}

// sweepOrphans deletes objects uploaded under tokens that expired before
// registration. A key that a file node references is never an orphan, however
// the token record looks: a registration whose MarkRegistered write was lost
// leaves the record in Consumed, so the node lookup is the authority and the
// record gets repaired instead of reclaimed. The token record is only marked
// Expired after its key is confirmed gone, so a failed delete is retried next
// cycle.
func (s *Sweeper) sweepOrphans(ctx context.Context) {
	stale, err := s.tokens.ListStale(ctx, s.clock(), s.cfg.SweepBatch)
	if err != nil {
		s.metrics.Errors.Inc()
		s.logger.Printf("orphan sweep: listing stale tokens: %v", err)
		return
	}

	for _, token := range stale {
		node, err := s.nodes.FindByStorageKey(ctx, token.StorageKey)
		switch {
		case err == nil:
			if err := s.tokens.MarkRegistered(ctx, token.ID, node.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
				s.logger.Printf("orphan sweep: repairing token %s: %v", token.ID.Hex(), err)
			}
			continue
		case !errors.Is(err, store.ErrNotFound):
			s.metrics.Errors.Inc()
			s.logger.Printf("orphan sweep: checking key %q: %v", token.StorageKey, err)
			continue
		}

		if err := s.storage.Remove(ctx, token.StorageKey); err != nil {
			s.metrics.Errors.Inc()
			s.logger.Printf("orphan sweep: removing object %q: %v", token.StorageKey, err)
			continue
		}
		if err := s.tokens.MarkStatus(ctx, token.ID, domain.TokenExpired); err != nil && !errors.Is(err, store.ErrNotFound) {
			s.metrics.Errors.Inc()
			s.logger.Printf("orphan sweep: marking token %s expired: %v", token.ID.Hex(), err)
			continue
		}
		s.metrics.OrphansReclaimed.Inc()
	}
}

// retryQueuedDeletes drains the purge queue of object deletions that failed
// during an earlier purge.
func (s *Sweeper) retryQueuedDeletes(ctx context.Context) {
	items, err := s.queue.List(ctx, s.cfg.SweepBatch)
	if err != nil {
		s.metrics.Errors.Inc()
		s.logger.Printf("purge-queue sweep: listing items: %v", err)
		return
	}

	for _, item := range items {
		if err := s.storage.Remove(ctx, item.StorageKey); err != nil {
			s.metrics.Errors.Inc()
			s.logger.Printf("purge-queue sweep: removing object %q (attempt %d): %v", item.StorageKey, item.Attempts+1, err)
			if rErr := s.queue.RecordFailure(ctx, item.ID, err); rErr != nil {
				s.logger.Printf("purge-queue sweep: recording failure for %q: %v", item.StorageKey, rErr)
			}
			continue
		}
		if err := s.queue.Resolve(ctx, item.ID); err != nil {
			s.metrics.Errors.Inc()
			s.logger.Printf("purge-queue sweep: resolving %q: %v", item.StorageKey, err)
			continue
		}
		s.metrics.QueueRetries.Inc()
	}
}

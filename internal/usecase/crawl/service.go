// Package crawl drives a collection from upstream pages into the index.
package crawl

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/syncdex/internal/domain"
	"github.com/kailas-cloud/syncdex/internal/domain/record"
	logpkg "github.com/kailas-cloud/syncdex/internal/logger"
	"github.com/kailas-cloud/syncdex/internal/metrics"
	"github.com/kailas-cloud/syncdex/internal/pagination"
	"github.com/kailas-cloud/syncdex/internal/registry"
	"github.com/kailas-cloud/syncdex/internal/usecase/reconcile"
)

// Status is the final state of a crawl.
type Status string

// Crawl statuses.
const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Progress is the running tally of one crawl.
type Progress struct {
	Tenant      string    `json:"tenant"`
	Integration string    `json:"integration"`
	Collection  string    `json:"collection"`
	Pages       int       `json:"pages"`
	Added       int       `json:"added"`
	Updated     int       `json:"updated"`
	Unchanged   int       `json:"unchanged"`
	StartedAt   time.Time `json:"started_at"`
}

// Summary is the outcome of one crawl.
type Summary struct {
	Progress
	Deleted  int           `json:"deleted"`
	Status   Status        `json:"status"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// PageResult lists the ids one page added and updated.
type PageResult struct {
	Added     []string `json:"added"`
	Updated   []string `json:"updated"`
	Unchanged int      `json:"unchanged"`
}

// Service orchestrates crawls. It holds no per-crawl state.
type Service struct {
	reg      Registry
	rec      Reconciler
	idx      Indexer
	pub      Publisher
	interval time.Duration
	logger   *zap.Logger
}

// New creates a crawl service. interval <= 0 disables heartbeats.
func New(reg Registry, rec Reconciler, idx Indexer, pub Publisher, interval time.Duration, logger *zap.Logger) *Service {
	return &Service{reg: reg, rec: rec, idx: idx, pub: pub, interval: interval, logger: logger}
}

// StartCrawl walks the collection's upstream source to exhaustion, reconciling and indexing
// each page, then prunes records the crawl no longer saw. A failed page stops the crawl
// and nothing is pruned.
func (s *Service) StartCrawl(ctx context.Context, tenant, integration, collection string) (Summary, error) {
	entry, err := s.reg.Get(integration, collection)
	if err != nil {
		return Summary{}, err
	}
	if entry.Source.Requester == nil {
		return Summary{}, domain.NewConfigurationError(entry.Key(), "no upstream requester configured")
	}

	pages, err := pagination.New(entry.Source.Requester, s.logger).Pages(ctx, entry.Source.Strategy, entry.Source.Request)
	if err != nil {
		return Summary{}, fmt.Errorf("crawl %s: %w", entry.Key(), err)
	}

	t := &tracker{p: Progress{
		Tenant:      tenant,
		Integration: integration,
		Collection:  collection,
		StartedAt:   time.Now(),
	}}
	stop := s.heartbeat(ctx, t)

	var seen []string
	for items, err := range pages {
		if err != nil {
			stop()
			return s.finish(ctx, entry, t, 0, err)
		}
		records, err := record.FromItems(items, entry.Schema.IDField())
		if err != nil {
			stop()
			return s.finish(ctx, entry, t, 0, err)
		}
		for _, r := range records {
			seen = append(seen, r.ID)
		}

		res, err := s.reconcilePage(ctx, tenant, entry, records)
		t.add(res)
		metrics.CrawlPagesTotal.WithLabelValues(entry.Key()).Inc()
		if err != nil {
			stop()
			return s.finish(ctx, entry, t, 0, err)
		}
	}
	stop()

	if err := ctx.Err(); err != nil {
		return s.finish(ctx, entry, t, 0, err)
	}
	deleted, err := s.prune(ctx, tenant, entry, seen)
	return s.finish(ctx, entry, t, len(deleted), err)
}

// ReconcilePage reconciles and indexes one page of raw upstream items for an external crawler.
func (s *Service) ReconcilePage(ctx context.Context, tenant, integration, collection string, items []any) (PageResult, error) {
	entry, err := s.reg.Get(integration, collection)
	if err != nil {
		return PageResult{}, err
	}
	records, err := record.FromItems(items, entry.Schema.IDField())
	if err != nil {
		return PageResult{}, err
	}
	return s.reconcilePage(ctx, tenant, entry, records)
}

// PruneMissing deletes every record absent from allIDs. Callers must pass the id set of a
// crawl that finished without error.
func (s *Service) PruneMissing(ctx context.Context, tenant, integration, collection string, allIDs []string) ([]string, error) {
	entry, err := s.reg.Get(integration, collection)
	if err != nil {
		return nil, err
	}
	return s.prune(ctx, tenant, entry, allIDs)
}

// reconcilePage commits hashes, indexes the changed records and, when indexing fails,
// rolls back exactly the records that were not written.
func (s *Service) reconcilePage(
	ctx context.Context, tenant string, entry registry.Entry, records []record.Record,
) (PageResult, error) {
	res, err := s.rec.Reconcile(ctx, tenant, entry.Schema, records)
	if err != nil {
		return PageResult{}, err
	}
	out := PageResult{Added: ids(res.Added), Updated: ids(res.Updated), Unchanged: res.Unchanged}
	s.count(entry, out.Added, out.Updated, out.Unchanged)

	changed := res.Changed()
	if len(changed) == 0 {
		return out, nil
	}
	if err := s.idx.Upsert(ctx, tenant, entry.Schema, changed); err != nil {
		return out, s.compensate(ctx, tenant, entry, res.Decisions, err)
	}
	return out, nil
}

func (s *Service) prune(ctx context.Context, tenant string, entry registry.Entry, allIDs []string) ([]string, error) {
	pr, err := s.rec.PruneMissing(ctx, tenant, entry.Schema, allIDs)
	if err != nil {
		return nil, err
	}
	if len(pr.Deleted) == 0 {
		return nil, nil
	}
	if err := s.idx.Delete(ctx, tenant, entry.Schema, pr.Deleted); err != nil {
		return nil, s.compensate(ctx, tenant, entry, pr.Decisions, err)
	}
	metrics.CrawlRecordsTotal.WithLabelValues(entry.Key(), "deleted").Add(float64(len(pr.Deleted)))
	return pr.Deleted, nil
}

// compensate undoes the hash-store decisions of the ids the index write reported as failed,
// or of every decision when the failure carries no ids. It runs even if ctx was cancelled.
func (s *Service) compensate(
	ctx context.Context, tenant string, entry registry.Entry, decisions reconcile.Decisions, cause error,
) error {
	failed := domain.FailedIDs(cause)
	undo := decisions
	if failed != nil {
		undo = undo.For(failed)
	}
	metrics.CrawlRecordsTotal.WithLabelValues(entry.Key(), "failed").Add(float64(len(undo)))

	if err := s.rec.Rollback(context.WithoutCancel(ctx), tenant, entry.Schema, undo); err != nil {
		s.logger.Error("Rollback failed, hashes may be stale",
			zap.String("collection", entry.Key()),
			zap.String("tenant", tenant),
			zap.Error(err),
		)
		return errors.Join(cause, err)
	}
	return cause
}

func (s *Service) count(entry registry.Entry, added, updated []string, unchanged int) {
	c := metrics.CrawlRecordsTotal
	c.WithLabelValues(entry.Key(), "added").Add(float64(len(added)))
	c.WithLabelValues(entry.Key(), "updated").Add(float64(len(updated)))
	c.WithLabelValues(entry.Key(), "unchanged").Add(float64(unchanged))
}

// finish logs the canonical crawl line and publishes the completion event.
func (s *Service) finish(ctx context.Context, entry registry.Entry, t *tracker, deleted int, err error) (Summary, error) {
	sum := Summary{Progress: t.snapshot(), Deleted: deleted, Status: StatusCompleted}
	sum.Duration = time.Since(sum.StartedAt)
	if err != nil {
		sum.Status = StatusFailed
		sum.Error = err.Error()
	}
	metrics.CrawlsTotal.WithLabelValues(entry.Key(), string(sum.Status)).Inc()

	fields := []zap.Field{
		zap.String("tenant", sum.Tenant),
		zap.String("collection", entry.Key()),
		zap.String("status", string(sum.Status)),
		zap.Int("pages", sum.Pages),
		zap.Int("added", sum.Added),
		zap.Int("updated", sum.Updated),
		zap.Int("unchanged", sum.Unchanged),
		zap.Int("deleted", sum.Deleted),
		zap.Duration("duration", sum.Duration),
	}
	logger := logpkg.FromContext(ctx, s.logger)
	if err != nil {
		logger.Error("Crawl failed", append(fields, zap.Error(err))...)
	} else {
		logger.Info("Crawl completed", fields...)
	}

	if s.pub != nil {
		if perr := s.pub.Completed(context.WithoutCancel(ctx), sum); perr != nil {
			s.logger.Warn("Failed to publish crawl completion", zap.String("collection", entry.Key()), zap.Error(perr))
		}
	}
	return sum, err
}

// heartbeat publishes progress every interval until the returned stop is called.
func (s *Service) heartbeat(ctx context.Context, t *tracker) (stop func()) {
	if s.pub == nil || s.interval <= 0 {
		return func() {}
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.pub.Heartbeat(ctx, t.snapshot()); err != nil {
					s.logger.Warn("Crawl heartbeat failed", zap.Error(err))
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

// tracker is the crawl-local accumulator shared with the heartbeat goroutine.
type tracker struct {
	mu sync.Mutex
	p  Progress
}

func (t *tracker) add(r PageResult) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.p.Pages++
	t.p.Added += len(r.Added)
	t.p.Updated += len(r.Updated)
	t.p.Unchanged += r.Unchanged
}

func (t *tracker) snapshot() Progress {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.p
}

func ids(rs []record.Record) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.ID
	}
	return out
}

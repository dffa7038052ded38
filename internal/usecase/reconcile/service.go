// Package reconcile turns crawled pages into added/updated/deleted sets by content hash.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/kailas-cloud/syncdex/internal/domain"
	"github.com/kailas-cloud/syncdex/internal/domain/record"
	"github.com/kailas-cloud/syncdex/internal/domain/schema"
)

// Outcome is what reconciliation decided for one id.
type Outcome string

// Reconciliation outcomes.
const (
	Added   Outcome = "added"
	Updated Outcome = "updated"
	Deleted Outcome = "deleted"
)

// Decision records one committed hash-store change and what it replaced.
// Previous is nil for added ids.
type Decision struct {
	ID       string
	Outcome  Outcome
	Previous *record.Hash
}

// Decisions is the undo log of one reconcile or prune call.
type Decisions []Decision

// For returns the decisions whose id is in ids.
func (d Decisions) For(ids []string) Decisions {
	if len(ids) == 0 {
		return nil
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out Decisions
	for _, dec := range d {
		if want[dec.ID] {
			out = append(out, dec)
		}
	}
	return out
}

// Result is the outcome of reconciling one page.
type Result struct {
	Added     []record.Record
	Updated   []record.Record
	Unchanged int
	Decisions Decisions
}

// Changed returns added followed by updated records.
func (r Result) Changed() []record.Record {
	return slices.Concat(r.Added, r.Updated)
}

// Prune is the outcome of pruning a collection after a full crawl.
type Prune struct {
	Deleted   []string
	Decisions Decisions
}

// Service diffs crawled records against stored hashes.
type Service struct {
	hashes HashStore
	logger *zap.Logger
}

// New creates a reconcile service.
func New(hashes HashStore, logger *zap.Logger) *Service {
	return &Service{hashes: hashes, logger: logger}
}

// Reconcile classifies a page against stored hashes and commits hashes of added and updated records.
// Unchanged records are dropped. When an id repeats within the page the last occurrence wins.
func (s *Service) Reconcile(
	ctx context.Context, tenant string, coll schema.Collection, page []record.Record,
) (Result, error) {
	page = dedupe(page)
	if len(page) == 0 {
		return Result{}, nil
	}

	hashes := make([]record.Hash, len(page))
	ids := make([]string, len(page))
	for i, r := range page {
		h, err := record.Compute(r, coll)
		if err != nil {
			return Result{}, fmt.Errorf("reconcile %s: %w", coll.Name(), err)
		}
		hashes[i] = h
		ids[i] = r.ID
	}

	stored, err := s.hashes.Get(ctx, tenant, coll.Name(), ids)
	if err != nil {
		return Result{}, &domain.ReconciliationError{IDs: ids, Err: fmt.Errorf("load hashes: %w", err)}
	}

	var res Result
	var commit []record.Hash
	for i, r := range page {
		prev, ok := stored[r.ID]
		switch {
		case !ok:
			res.Added = append(res.Added, r)
			res.Decisions = append(res.Decisions, Decision{ID: r.ID, Outcome: Added})
		case !prev.Equal(hashes[i]):
			res.Updated = append(res.Updated, r)
			res.Decisions = append(res.Decisions, Decision{ID: r.ID, Outcome: Updated, Previous: &prev})
			if changed := hashes[i].ChangedNested(prev); len(changed) > 0 {
				s.logger.Debug("Nested items changed",
					zap.String("collection", coll.Name()), zap.String("id", r.ID), zap.Strings("nested", changed))
			}
		default:
			res.Unchanged++
			continue
		}
		commit = append(commit, hashes[i])
	}

	if len(commit) > 0 {
		if err := s.hashes.Upsert(ctx, tenant, coll.Name(), commit); err != nil {
			failed := make([]string, len(commit))
			for i, h := range commit {
				failed[i] = h.ID
			}
			return Result{}, &domain.ReconciliationError{IDs: failed, Err: fmt.Errorf("commit hashes: %w", err)}
		}
	}

	s.logger.Debug("Page reconciled",
		zap.String("tenant", tenant),
		zap.String("collection", coll.Name()),
		zap.Int("added", len(res.Added)),
		zap.Int("updated", len(res.Updated)),
		zap.Int("unchanged", res.Unchanged),
	)
	return res, nil
}

// PruneMissing forgets every stored id absent from allIDs. Callers must pass the id set of a
// crawl that completed without error; a partial set deletes live records.
func (s *Service) PruneMissing(
	ctx context.Context, tenant string, coll schema.Collection, allIDs []string,
) (Prune, error) {
	stored, err := s.hashes.IDs(ctx, tenant, coll.Name())
	if err != nil {
		return Prune{}, &domain.ReconciliationError{Err: fmt.Errorf("list hashes: %w", err)}
	}

	seen := make(map[string]bool, len(allIDs))
	for _, id := range allIDs {
		seen[id] = true
	}
	var missing []string
	for _, id := range stored {
		if !seen[id] {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return Prune{}, nil
	}

	prev, err := s.hashes.Get(ctx, tenant, coll.Name(), missing)
	if err != nil {
		return Prune{}, &domain.ReconciliationError{IDs: missing, Err: fmt.Errorf("load hashes: %w", err)}
	}
	if err := s.hashes.MarkDeleted(ctx, tenant, coll.Name(), missing); err != nil {
		return Prune{}, &domain.ReconciliationError{IDs: missing, Err: fmt.Errorf("delete hashes: %w", err)}
	}

	out := Prune{Deleted: missing, Decisions: make(Decisions, 0, len(missing))}
	for _, id := range missing {
		d := Decision{ID: id, Outcome: Deleted}
		if h, ok := prev[id]; ok {
			d.Previous = &h
		}
		out.Decisions = append(out.Decisions, d)
	}

	s.logger.Info("Collection pruned",
		zap.String("tenant", tenant),
		zap.String("collection", coll.Name()),
		zap.Int("deleted", len(missing)),
	)
	return out, nil
}

// Rollback undoes decisions: previous hashes are restored and added ids are forgotten,
// so the next crawl sees those records exactly as before.
func (s *Service) Rollback(ctx context.Context, tenant string, coll schema.Collection, decisions Decisions) error {
	if len(decisions) == 0 {
		return nil
	}
	var restore []record.Hash
	var forget []string
	for _, d := range decisions {
		if d.Previous != nil {
			h := *d.Previous
			h.ID = d.ID
			restore = append(restore, h)
			continue
		}
		if d.Outcome == Added {
			forget = append(forget, d.ID)
		}
	}

	var errs []error
	if len(restore) > 0 {
		if err := s.hashes.Upsert(ctx, tenant, coll.Name(), restore); err != nil {
			errs = append(errs, fmt.Errorf("restore hashes: %w", err))
		}
	}
	if len(forget) > 0 {
		if err := s.hashes.MarkDeleted(ctx, tenant, coll.Name(), forget); err != nil {
			errs = append(errs, fmt.Errorf("forget hashes: %w", err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("rollback %s: %w", coll.Name(), err)
	}

	s.logger.Warn("Reconciliation rolled back",
		zap.String("tenant", tenant),
		zap.String("collection", coll.Name()),
		zap.Int("restored", len(restore)),
		zap.Int("forgotten", len(forget)),
	)
	return nil
}

// dedupe keeps the last occurrence of each id at the position of its first occurrence.
func dedupe(page []record.Record) []record.Record {
	pos := make(map[string]int, len(page))
	out := make([]record.Record, 0, len(page))
	for _, r := range page {
		if i, ok := pos[r.ID]; ok {
			out[i] = r
			continue
		}
		pos[r.ID] = len(out)
		out = append(out, r)
	}
	return out
}

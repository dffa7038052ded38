package index

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/kailas-cloud/syncdex/internal/db"
	"github.com/kailas-cloud/syncdex/internal/domain"
	"github.com/kailas-cloud/syncdex/internal/domain/schema"
)

// store is the consumer interface for the search index (ISP).
type store interface {
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	JSONSetMulti(ctx context.Context, items []db.JSONSetItem) error
	JSONGetMulti(ctx context.Context, keys []string, path string) ([][]byte, error)
	DelMulti(ctx context.Context, keys []string) error
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	SearchText(ctx context.Context, q *db.TextQuery) (*db.SearchResult, error)
}

// Repo is the tenant-scoped document index on top of Redis search.
type Repo struct {
	store store
	opts  Options
}

// New creates an index repository.
func New(s store, opts Options) *Repo {
	return &Repo{store: s, opts: opts}
}

// EnsureSchema creates the collection indexes when missing. Indexes are shared across
// tenants (every query is tenant-filtered), so the tenant only scopes documents.
func (r *Repo) EnsureSchema(ctx context.Context, s schema.Collection) error {
	top, nested, err := Definitions(s, r.opts)
	if err != nil {
		return domain.NewConfigurationError(s.Name(), err.Error())
	}
	for _, def := range []*db.IndexDefinition{top, nested} {
		if def == nil {
			continue
		}
		if err := r.store.CreateIndex(ctx, def); err != nil && !errors.Is(err, db.ErrIndexExists) {
			return fmt.Errorf("create index %s: %w", def.Name, err)
		}
	}
	return nil
}

// Upsert writes documents and their nested items, then drops nested items that no longer exist.
// Failures are reported as *domain.ReconciliationError carrying exactly the failed record ids.
func (r *Repo) Upsert(ctx context.Context, tenant string, s schema.Collection, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	ids := make([]string, len(docs))
	parentKeys := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.Record.ID
		parentKeys[i] = docKey(tenant, s.Name(), d.Record.ID)
	}

	prev, err := r.children(ctx, parentKeys)
	if err != nil {
		return &domain.ReconciliationError{IDs: ids, Err: err}
	}

	var items []db.JSONSetItem
	owner := make(map[string]string)
	var stale []string
	failed := make(map[string]bool)
	var firstErr error

	for i, d := range docs {
		pk, parent, children, err := buildDocs(tenant, s, d)
		if err != nil {
			failed[d.Record.ID] = true
			firstErr = cmpErr(firstErr, err)
			continue
		}
		current := make(map[string]bool, len(children))
		for _, c := range children {
			current[c.key] = true
			owner[c.key] = d.Record.ID
		}
		owner[pk] = d.Record.ID
		for _, k := range prev[i] {
			if !current[k] {
				stale = append(stale, k)
				owner[k] = d.Record.ID
			}
		}
		items = append(items, toJSONItems(pk, parent, children)...)
	}

	if err := r.store.JSONSetMulti(ctx, items); err != nil {
		firstErr = cmpErr(firstErr, markFailed(err, owner, failed, ids))
	}
	if err := r.store.DelMulti(ctx, stale); err != nil {
		firstErr = cmpErr(firstErr, markFailed(err, owner, failed, ids))
	}

	return reconciliationErr(failed, firstErr)
}

// Delete removes documents and all their nested items.
func (r *Repo) Delete(ctx context.Context, tenant string, s schema.Collection, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	parentKeys := make([]string, len(ids))
	for i, id := range ids {
		parentKeys[i] = docKey(tenant, s.Name(), id)
	}
	prev, err := r.children(ctx, parentKeys)
	if err != nil {
		return &domain.ReconciliationError{IDs: ids, Err: err}
	}

	owner := make(map[string]string, len(ids))
	keys := make([]string, 0, len(ids))
	for i, id := range ids {
		owner[parentKeys[i]] = id
		keys = append(keys, parentKeys[i])
		for _, k := range prev[i] {
			owner[k] = id
			keys = append(keys, k)
		}
	}

	failed := make(map[string]bool)
	if err := r.store.DelMulti(ctx, keys); err != nil {
		return reconciliationErr(failed, markFailed(err, owner, failed, ids))
	}
	return nil
}

// children reads the nested item keys recorded on each parent; missing parents yield nil.
func (r *Repo) children(ctx context.Context, parentKeys []string) ([][]string, error) {
	raw, err := r.store.JSONGetMulti(ctx, parentKeys, "$."+attrChildren)
	if err != nil {
		return nil, fmt.Errorf("read nested keys: %w", err)
	}
	out := make([][]string, len(parentKeys))
	for i := range parentKeys {
		if i >= len(raw) {
			break
		}
		keys, err := decodeChildren(raw[i])
		if err != nil {
			return nil, err
		}
		out[i] = keys
	}
	return out, nil
}

// markFailed attributes a write error to record ids: per-key for batch errors, all ids otherwise.
func markFailed(err error, owner map[string]string, failed map[string]bool, all []string) error {
	keys := db.FailedKeys(err)
	if keys == nil {
		for _, id := range all {
			failed[id] = true
		}
		return err
	}
	for _, k := range keys {
		if id, ok := owner[k]; ok {
			failed[id] = true
		}
	}
	return err
}

func reconciliationErr(failed map[string]bool, err error) error {
	if len(failed) == 0 {
		return nil
	}
	ids := make([]string, 0, len(failed))
	for id := range failed {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return &domain.ReconciliationError{IDs: ids, Err: err}
}

func cmpErr(first, next error) error {
	if first != nil {
		return first
	}
	return next
}

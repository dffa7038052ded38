package index

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/syncdex/internal/db"
	"github.com/kailas-cloud/syncdex/internal/domain/record"
	"github.com/kailas-cloud/syncdex/internal/domain/schema"
	"github.com/kailas-cloud/syncdex/internal/domain/search/filter"
)

// Target addresses one searchable attribute: a top-level field, or a child of a nested field.
type Target struct {
	Field string
	Child string // set for nested targets
}

// IsNested reports whether the target lives in the nested index.
func (t Target) IsNested() bool { return t.Child != "" }

func (t Target) String() string {
	if t.IsNested() {
		return t.Field + "." + t.Child
	}
	return t.Field
}

// TextSearch is a field-scoped full-text search.
type TextSearch struct {
	Tenant  string
	Schema  schema.Collection
	Target  Target
	Query   string
	Partial bool
	Filter  filter.Expression
	TopK    int
}

// VectorSearch is a KNN search over one vector attribute.
type VectorSearch struct {
	Tenant string
	Schema schema.Collection
	Target Target
	Vector []float32
	Filter filter.Expression
	K      int
}

// Match is one document returned by a search. For nested targets ID is the parent record id,
// Hash is the nested item digest, NestedKey addresses the item and Source holds the item itself.
type Match struct {
	ID        string
	Hash      string
	NestedKey string
	Score     float64
	Source    map[string]any
}

// SearchText runs a full-text search over one keyword-searchable attribute.
func (r *Repo) SearchText(ctx context.Context, q TextSearch) ([]Match, error) {
	filters, err := scope(q.Tenant, q.Target, q.Filter)
	if err != nil {
		return nil, err
	}
	res, err := r.store.SearchText(ctx, &db.TextQuery{
		IndexName: r.indexFor(q.Schema, q.Target),
		Field:     attrFor(q.Target),
		Query:     q.Query,
		Partial:   q.Partial,
		Filters:   filters,
		TopK:      q.TopK,
	})
	if err != nil {
		return nil, fmt.Errorf("text search %s: %w", q.Target, err)
	}
	return toMatches(q.Target, res)
}

// SearchVector runs a KNN search over one vector attribute.
func (r *Repo) SearchVector(ctx context.Context, q VectorSearch) ([]Match, error) {
	filters, err := scope(q.Tenant, q.Target, q.Filter)
	if err != nil {
		return nil, err
	}
	res, err := r.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName: r.indexFor(q.Schema, q.Target),
		Field:     VectorAttr(attrFor(q.Target)),
		Filters:   filters,
		Vector:    q.Vector,
		K:         q.K,
	})
	if err != nil {
		return nil, fmt.Errorf("vector search %s: %w", q.Target, err)
	}
	return toMatches(q.Target, res)
}

// Fetch loads the public fields of the given records. Missing records are absent from the result.
func (r *Repo) Fetch(ctx context.Context, tenant string, s schema.Collection, ids []string) (map[string]map[string]any, error) {
	if len(ids) == 0 {
		return map[string]map[string]any{}, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = docKey(tenant, s.Name(), id)
	}
	raw, err := r.store.JSONGetMulti(ctx, keys, "$")
	if err != nil {
		return nil, fmt.Errorf("fetch documents: %w", err)
	}
	out := make(map[string]map[string]any, len(ids))
	for i, data := range raw {
		if i >= len(ids) || data == nil {
			continue
		}
		doc, err := decodeDoc(data)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", ids[i], err)
		}
		out[ids[i]] = publicFields(doc)
	}
	return out, nil
}

func (r *Repo) indexFor(s schema.Collection, t Target) string {
	if t.IsNested() {
		return nestedIndexName(s.Name())
	}
	return indexName(s.Name())
}

func attrFor(t Target) string {
	if t.IsNested() {
		return NestedAttr(t.Field, t.Child)
	}
	return t.Field
}

// scope maps caller filter keys to index attributes and adds the tenant (and nested field) scope.
// Callers validate keys against the schema beforehand.
func scope(tenant string, t Target, expr filter.Expression) (filter.Expression, error) {
	mapped := expr.MapKeys(func(key string, c filter.Condition) string {
		if c.IsMatch() {
			return ExactAttr(key)
		}
		return key
	})
	tc, err := filter.NewMatch(attrTenant, tenant)
	if err != nil {
		return filter.Expression{}, fmt.Errorf("tenant scope: %w", err)
	}
	conds := []filter.Condition{tc}
	if t.IsNested() {
		fc, err := filter.NewMatch(attrField, t.Field)
		if err != nil {
			return filter.Expression{}, fmt.Errorf("nested scope: %w", err)
		}
		conds = append(conds, fc)
	}
	return mapped.And(conds...), nil
}

func toMatches(t Target, res *db.SearchResult) ([]Match, error) {
	out := make([]Match, 0, len(res.Entries))
	for _, e := range res.Entries {
		doc, err := decodeDoc(e.Document)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", e.Key, err)
		}
		m := Match{Score: e.Score}
		if t.IsNested() {
			m.ID, _ = doc[attrParent].(string)
			m.Hash, _ = doc[attrHash].(string)
			m.NestedKey = nestedKeyOf(t.Field, doc)
			m.Source, _ = doc[attrItem].(map[string]any)
		} else {
			m.ID, _ = doc[attrID].(string)
			m.Hash, _ = doc[attrHash].(string)
			m.Source = publicFields(doc)
		}
		if m.ID == "" {
			return nil, fmt.Errorf("document %s has no record id", e.Key)
		}
		out = append(out, m)
	}
	return out, nil
}

// nestedKeyOf rebuilds the "field/<id or index>" key of a stored nested item.
func nestedKeyOf(field string, doc map[string]any) string {
	item, _ := doc[attrItem].(map[string]any)
	idx := 0
	if f, ok := doc[attrIndex].(float64); ok {
		idx = int(f)
	}
	return record.NestedKey(field, item, idx)
}

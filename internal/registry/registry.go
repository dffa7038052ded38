// Package registry maps integration/collection pairs to their schema and crawl source.
package registry

import (
	"fmt"
	"maps"
	"slices"

	"github.com/kailas-cloud/syncdex/internal/config"
	"github.com/kailas-cloud/syncdex/internal/domain"
	"github.com/kailas-cloud/syncdex/internal/domain/schema"
	"github.com/kailas-cloud/syncdex/internal/pagination"
)

// Source describes how a collection is crawled.
type Source struct {
	Requester pagination.Requester
	Strategy  pagination.Strategy
	Request   pagination.Request
}

// Entry is one registered collection.
type Entry struct {
	Integration string
	Collection  string
	Schema      schema.Collection
	Source      Source
}

// Key returns the "integration/collection" lookup key.
func (e Entry) Key() string { return key(e.Integration, e.Collection) }

// Connector builds the upstream requester for one integration.
type Connector func(name string, ic config.IntegrationConfig) pagination.Requester

// Registry is the static, startup-built table of collections.
type Registry struct {
	entries map[string]Entry
}

// New validates entries and builds a registry. Schema names must be unique,
// since they name the index and hash-store partitions.
func New(entries ...Entry) (*Registry, error) {
	r := &Registry{entries: make(map[string]Entry, len(entries))}
	names := make(map[string]string, len(entries))
	for _, e := range entries {
		k := e.Key()
		if _, dup := r.entries[k]; dup {
			return nil, domain.NewConfigurationError(k, "collection registered twice")
		}
		if other, dup := names[e.Schema.Name()]; dup {
			return nil, domain.NewConfigurationError(k, fmt.Sprintf("schema name %q already used by %s", e.Schema.Name(), other))
		}
		if err := e.Source.Strategy.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		names[e.Schema.Name()] = k
		r.entries[k] = e
	}
	return r, nil
}

// FromConfig converts the integrations section into a registry.
// connect may be nil when no crawling happens (e.g. query-only tooling).
func FromConfig(integrations map[string]config.IntegrationConfig, connect Connector) (*Registry, error) {
	var entries []Entry
	for _, name := range slices.Sorted(maps.Keys(integrations)) {
		ic := integrations[name]
		var req pagination.Requester
		if connect != nil {
			req = connect(name, ic)
		}
		for _, coll := range slices.Sorted(maps.Keys(ic.Collections)) {
			cc := ic.Collections[coll]
			s, err := buildSchema(name, coll, cc)
			if err != nil {
				return nil, fmt.Errorf("integration %s: %w", name, err)
			}
			entries = append(entries, Entry{
				Integration: name,
				Collection:  coll,
				Schema:      s,
				Source: Source{
					Requester: req,
					Strategy:  toStrategy(cc.Pagination),
					Request: pagination.Request{
						Method:   cc.Request.Method,
						Endpoint: cc.Request.Endpoint,
						Params:   cc.Request.Params,
						Headers:  cc.Request.Headers,
					},
				},
			})
		}
	}
	return New(entries...)
}

// Get returns the entry for an integration/collection pair.
func (r *Registry) Get(integration, collection string) (Entry, error) {
	e, ok := r.entries[key(integration, collection)]
	if !ok {
		return Entry{}, fmt.Errorf("collection %s: %w", key(integration, collection), domain.ErrNotFound)
	}
	return e, nil
}

// Entries returns every entry ordered by key.
func (r *Registry) Entries() []Entry {
	out := make([]Entry, 0, len(r.entries))
	for _, k := range slices.Sorted(maps.Keys(r.entries)) {
		out = append(out, r.entries[k])
	}
	return out
}

// SchemaName is the index-wide name of a collection: "<integration>-<collection>".
func SchemaName(integration, collection string) string {
	return integration + "-" + collection
}

func key(integration, collection string) string {
	return integration + "/" + collection
}

func buildSchema(integration, collection string, cc config.CollectionConfig) (schema.Collection, error) {
	fields, err := buildFields(cc.Fields)
	if err != nil {
		return schema.Collection{}, fmt.Errorf("collection %s: %w", collection, err)
	}
	return schema.New(SchemaName(integration, collection), cc.Description, cc.IDField, fields)
}

func buildFields(in config.FieldMap) ([]schema.Field, error) {
	out := make([]schema.Field, 0, len(in))
	for _, fc := range in {
		children, err := buildFields(fc.Fields)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", fc.Name, err)
		}
		f, err := schema.NewField(fc.Name, schema.Type(fc.Type), schema.Options{
			Format:            fc.Format,
			Filterable:        fc.Filterable,
			KeywordSearchable: fc.KeywordSearchable,
			PartialMatch:      fc.PartialMatch,
			VectorSearchable:  fc.VectorSearchable,
			Multimodal:        fc.Multimodal,
			Hidden:            fc.Hidden,
			ReturnByDefault:   fc.ReturnByDefault,
			Children:          children,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

func toStrategy(pc config.PaginationConfig) pagination.Strategy {
	return pagination.Strategy{
		Kind:         pagination.Kind(pc.Kind),
		DataPath:     pc.DataPath,
		CursorParam:  pc.CursorParam,
		CursorPath:   pc.CursorPath,
		LinkRel:      pc.LinkRel,
		NextLinkPath: pc.NextLinkPath,
		OffsetParam:  pc.OffsetParam,
		LimitParam:   pc.LimitParam,
		PageSize:     pc.PageSize,
	}
}

// Package format shapes ranked hits into result objects by schema visibility rules.
package format

import (
	"strings"

	"github.com/kailas-cloud/syncdex/internal/domain/record"
	"github.com/kailas-cloud/syncdex/internal/domain/schema"
	"github.com/kailas-cloud/syncdex/internal/domain/search/hit"
)

// Result is one shaped record.
type Result struct {
	ID            string         `json:"id"`
	Score         float64        `json:"score"`
	MatchedFields []string       `json:"matched_fields"`
	Source        map[string]any `json:"source"`
}

// Shape applies visibility rules to every hit. Only schema fields are returned.
//
// Without returnProperties, hidden and return_by_default=false fields are dropped.
// With returnProperties, only listed top-level fields survive ("parent.child" lists its parent),
// and inside a nested field only the listed children survive; a bare parent keeps every child.
// Hidden fields never survive. Nested hits replace the stored nested value.
func Shape(hits []hit.Hit, coll schema.Collection, returnProperties []string) []Result {
	sel := newSelection(returnProperties)
	out := make([]Result, 0, len(hits))
	for _, h := range hits {
		out = append(out, Result{
			ID:            h.ID,
			Score:         h.Score,
			MatchedFields: h.MatchedFields(),
			Source:        shapeSource(h, coll, sel),
		})
	}
	return out
}

func shapeSource(h hit.Hit, coll schema.Collection, sel selection) map[string]any {
	out := make(map[string]any)
	for _, f := range coll.Fields() {
		if !sel.keepTop(f) {
			continue
		}
		if f.IsNested() {
			if v, ok := shapeNested(f, h.Source[f.Name()], h.Nested[f.Name()], sel); ok {
				out[f.Name()] = v
			}
			continue
		}
		if v, ok := h.Source[f.Name()]; ok {
			out[f.Name()] = v
		}
	}
	return out
}

// shapeNested flattens nested hits (or the stored value when none matched) into plain objects.
// A field stored as a single object stays a single object.
func shapeNested(f schema.Field, stored any, hits []hit.Hit, sel selection) (any, bool) {
	_, single := stored.(map[string]any)

	var items []map[string]any
	if len(hits) > 0 {
		for _, nh := range hits {
			items = append(items, shapeItem(f, nh.Source, sel))
		}
	} else {
		for _, it := range record.NestedItems(stored) {
			m, ok := it.(map[string]any)
			if !ok {
				continue
			}
			items = append(items, shapeItem(f, m, sel))
		}
	}

	if single {
		if len(items) == 0 {
			return nil, false
		}
		return items[0], true
	}
	if items == nil && stored == nil {
		return nil, false
	}
	arr := make([]any, len(items))
	for i, it := range items {
		arr[i] = it
	}
	return arr, true
}

func shapeItem(parent schema.Field, item map[string]any, sel selection) map[string]any {
	out := make(map[string]any)
	for _, c := range parent.Children() {
		if !sel.keepChild(parent, c) {
			continue
		}
		if v, ok := item[c.Name()]; ok {
			out[c.Name()] = v
		}
	}
	return out
}

// selection is the parsed return_properties allow-list.
type selection struct {
	explicit bool
	top      map[string]bool
	// children holds listed "parent.child" entries; a parent absent here keeps all children.
	children map[string]map[string]bool
}

func newSelection(props []string) selection {
	if len(props) == 0 {
		return selection{}
	}
	sel := selection{explicit: true, top: make(map[string]bool), children: make(map[string]map[string]bool)}
	bare := make(map[string]bool)
	for _, p := range props {
		parent, child, nested := strings.Cut(p, ".")
		sel.top[parent] = true
		if !nested {
			bare[parent] = true
			continue
		}
		if sel.children[parent] == nil {
			sel.children[parent] = make(map[string]bool)
		}
		sel.children[parent][child] = true
	}
	for parent := range bare {
		delete(sel.children, parent)
	}
	return sel
}

func (s selection) keepTop(f schema.Field) bool {
	if f.Hidden() {
		return false
	}
	if s.explicit {
		return s.top[f.Name()]
	}
	return f.ReturnByDefault()
}

func (s selection) keepChild(parent, c schema.Field) bool {
	if c.Hidden() {
		return false
	}
	if !s.explicit {
		return c.ReturnByDefault()
	}
	listed, ok := s.children[parent.Name()]
	if !ok {
		return true
	}
	return listed[c.Name()]
}

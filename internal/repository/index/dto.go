package index

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kailas-cloud/syncdex/internal/db"
	"github.com/kailas-cloud/syncdex/internal/domain/record"
	"github.com/kailas-cloud/syncdex/internal/domain/schema"
)

// Document is one record ready for the index: content, fingerprint and embeddings.
type Document struct {
	Record record.Record
	Hash   record.Hash
	// Vectors holds top-level embeddings by field name.
	Vectors map[string][]float32
	// NestedVectors holds nested embeddings by nested key ("field/<id or index>"), then child name.
	NestedVectors map[string]map[string][]float32
}

type childDoc struct {
	key  string
	data []byte
}

// buildDocs renders the parent JSON document and one JSON document per nested item.
func buildDocs(tenant string, s schema.Collection, d Document) (parentKey string, parent []byte, children []childDoc, err error) {
	parentKey = docKey(tenant, s.Name(), d.Record.ID)
	filters := filterProjection(s, d.Record.Fields)

	for _, n := range s.NestedFields() {
		for i, item := range record.NestedItems(d.Record.Fields[n.Name()]) {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			nk := record.NestedKey(n.Name(), item, i)
			doc := map[string]any{
				attrTenant:  tenant,
				attrParent:  d.Record.ID,
				attrField:   n.Name(),
				attrHash:    d.Hash.Nested[nk],
				attrIndex:   i,
				attrFilters: filters,
				attrItem:    m,
			}
			if vecs := d.NestedVectors[nk]; len(vecs) > 0 {
				named := make(map[string][]float32, len(vecs))
				for child, v := range vecs {
					named[NestedAttr(n.Name(), child)] = v
				}
				doc[attrVectors] = named
			}
			data, err := json.Marshal(doc)
			if err != nil {
				return "", nil, nil, fmt.Errorf("marshal %s: %w", nk, err)
			}
			children = append(children, childDoc{key: nestedKey(tenant, s.Name(), d.Record.ID, nk), data: data})
		}
	}

	doc := make(map[string]any, len(d.Record.Fields)+6)
	for k, v := range d.Record.Fields {
		if !strings.HasPrefix(k, "__") {
			doc[k] = v
		}
	}
	childKeys := make([]string, len(children))
	for i, c := range children {
		childKeys[i] = c.key
	}
	doc[attrTenant] = tenant
	doc[attrID] = d.Record.ID
	doc[attrHash] = d.Hash.Digest
	doc[attrFilters] = filters
	doc[attrChildren] = childKeys
	if len(d.Vectors) > 0 {
		doc[attrVectors] = d.Vectors
	}

	parent, err = json.Marshal(doc)
	if err != nil {
		return "", nil, nil, fmt.Errorf("marshal %s: %w", d.Record.ID, err)
	}
	return parentKey, parent, children, nil
}

// filterProjection normalizes filterable values into index-friendly forms:
// booleans as "true"/"false" tags, dates as epoch millis.
func filterProjection(s schema.Collection, fields map[string]any) map[string]any {
	out := make(map[string]any)
	for _, f := range s.FilterableFields() {
		v, ok := fields[f.Name()]
		if !ok || v == nil {
			continue
		}
		switch f.FieldType() {
		case schema.Boolean:
			if b, ok := v.(bool); ok {
				out[f.Name()] = strconv.FormatBool(b)
			}
		case schema.Date:
			if ms, ok := epochMillis(v); ok {
				out[f.Name()] = ms
			}
		case schema.String:
			out[f.Name()] = fmt.Sprint(v)
		default:
			out[f.Name()] = v
		}
	}
	return out
}

var dateLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", time.DateOnly}

// epochMillis reads a date value given as a number (already millis) or a timestamp string.
func epochMillis(v any) (int64, bool) {
	switch t := v.(type) {
	case float64:
		return int64(t), true
	case int64:
		return t, true
	case int:
		return int64(t), true
	case string:
		for _, layout := range dateLayouts {
			if ts, err := time.Parse(layout, t); err == nil {
				return ts.UnixMilli(), true
			}
		}
	}
	return 0, false
}

// decodeDoc parses a search or JSON.GET payload. JSONPath reads come wrapped in an array.
func decodeDoc(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty document")
	}
	if raw[0] == '[' {
		var arr []map[string]any
		if err := json.Unmarshal(raw, &arr); err != nil {
			return nil, err
		}
		if len(arr) == 0 {
			return nil, fmt.Errorf("empty document")
		}
		return arr[0], nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// publicFields drops bookkeeping attributes.
func publicFields(doc map[string]any) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		if !strings.HasPrefix(k, "__") {
			out[k] = v
		}
	}
	return out
}

// decodeChildren reads the "$.__children" JSONPath payload.
func decodeChildren(raw []byte) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var wrapped [][]string
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("decode children: %w", err)
	}
	if len(wrapped) == 0 {
		return nil, nil
	}
	return wrapped[0], nil
}

func toJSONItems(parentKey string, parent []byte, children []childDoc) []db.JSONSetItem {
	items := make([]db.JSONSetItem, 0, 1+len(children))
	items = append(items, db.JSONSetItem{Key: parentKey, Path: "$", Data: parent})
	for _, c := range children {
		items = append(items, db.JSONSetItem{Key: c.key, Path: "$", Data: c.data})
	}
	return items
}

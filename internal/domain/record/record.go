package record

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/kailas-cloud/syncdex/internal/domain"
)

// Record is one crawled upstream object keyed by its external id.
type Record struct {
	ID     string
	Fields map[string]any
}

// FromItem converts a raw page item into a Record.
// Numeric ids are stringified; a missing or empty id is a configuration error.
func FromItem(item any, idField string) (Record, error) {
	m, ok := item.(map[string]any)
	if !ok {
		return Record{}, domain.NewConfigurationError(idField, fmt.Sprintf("page item is %T, want object", item))
	}
	id, err := StringID(m[idField])
	if err != nil {
		return Record{}, domain.NewConfigurationError(idField, err.Error())
	}
	return Record{ID: id, Fields: m}, nil
}

// FromItems converts a whole page.
func FromItems(items []any, idField string) ([]Record, error) {
	out := make([]Record, 0, len(items))
	for i, item := range items {
		r, err := FromItem(item, idField)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		out = append(out, r)
	}
	return out, nil
}

// StringID renders an id value as a string.
func StringID(v any) (string, error) {
	switch id := v.(type) {
	case string:
		if id == "" {
			return "", fmt.Errorf("id is empty")
		}
		return id, nil
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(id), nil
	case int64:
		return strconv.FormatInt(id, 10), nil
	case json.Number:
		return id.String(), nil
	case nil:
		return "", fmt.Errorf("id is missing")
	default:
		return "", fmt.Errorf("unsupported id type %T", v)
	}
}

// NestedItems returns the elements of a nested field value.
// A singleton object yields one element; anything else yields none.
func NestedItems(v any) []any {
	switch t := v.(type) {
	case []any:
		return t
	case map[string]any:
		return []any{t}
	}
	return nil
}

// IsEmpty reports whether a field value carries nothing worth embedding.
func IsEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	return false
}

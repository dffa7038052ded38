package record

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/kailas-cloud/syncdex/internal/domain/schema"
)

// Hash is the content fingerprint of one record.
// Nested is keyed "<field>/<nested id or index>".
type Hash struct {
	ID     string            `json:"-"`
	Digest string            `json:"h"`
	Nested map[string]string `json:"n,omitempty"`
}

// Digest returns the SHA-256 hex digest of v's canonical JSON form.
// encoding/json writes map keys in sorted order, which makes the form order-independent.
func Digest(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("canonicalize: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// NestedKey identifies one nested item: its "id" attribute when present, else its position.
func NestedKey(field string, item any, index int) string {
	if m, ok := item.(map[string]any); ok {
		if id, err := StringID(m["id"]); err == nil {
			return field + "/" + id
		}
	}
	return fmt.Sprintf("%s/%d", field, index)
}

// Compute fingerprints r: one digest over the whole object plus one per nested item.
func Compute(r Record, s schema.Collection) (Hash, error) {
	top, err := Digest(r.Fields)
	if err != nil {
		return Hash{}, fmt.Errorf("hash %s: %w", r.ID, err)
	}
	h := Hash{ID: r.ID, Digest: top}

	for _, f := range s.NestedFields() {
		for i, item := range NestedItems(r.Fields[f.Name()]) {
			d, err := Digest(item)
			if err != nil {
				return Hash{}, fmt.Errorf("hash %s.%s[%d]: %w", r.ID, f.Name(), i, err)
			}
			if h.Nested == nil {
				h.Nested = make(map[string]string)
			}
			h.Nested[NestedKey(f.Name(), item, i)] = d
		}
	}
	return h, nil
}

// Equal reports whether two hashes fingerprint the same content.
func (h Hash) Equal(o Hash) bool {
	if h.Digest != o.Digest || len(h.Nested) != len(o.Nested) {
		return false
	}
	for k, v := range h.Nested {
		if o.Nested[k] != v {
			return false
		}
	}
	return true
}

// ChangedNested lists nested keys whose digest differs from prev, including added and removed items.
func (h Hash) ChangedNested(prev Hash) []string {
	var out []string
	for k, v := range h.Nested {
		if prev.Nested[k] != v {
			out = append(out, k)
		}
	}
	for k := range prev.Nested {
		if _, ok := h.Nested[k]; !ok {
			out = append(out, k)
		}
	}
	return out
}

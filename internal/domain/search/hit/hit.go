package hit

import (
	"cmp"
	"maps"
	"slices"
)

// Hit is one scored logical record, or one scored nested item when Hash is set.
type Hit struct {
	ID    string
	Hash  string
	Score float64
	// Fields maps every contributing field name (top-level or nested child) to its score.
	Fields map[string]float64
	Source map[string]any
	// Nested holds scored nested items per nested field name.
	Nested map[string][]Hit
}

// MatchedFields returns the sorted names of fields that contributed to the score.
func (h Hit) MatchedFields() []string {
	return slices.Sorted(maps.Keys(h.Fields))
}

func (h Hit) key() string {
	if h.Hash != "" {
		return h.Hash
	}
	return h.ID
}

func (h Hit) clone() Hit {
	out := h
	out.Fields = maps.Clone(h.Fields)
	if h.Nested != nil {
		out.Nested = make(map[string][]Hit, len(h.Nested))
		for name, items := range h.Nested {
			cp := make([]Hit, len(items))
			for i, it := range items {
				cp[i] = it.clone()
			}
			out.Nested[name] = cp
		}
	}
	return out
}

func (h *Hit) apply(fn func(float64) float64) {
	h.Score = fn(h.Score)
	for f, s := range h.Fields {
		h.Fields[f] = fn(s)
	}
}

func unionFields(dst, src map[string]float64) map[string]float64 {
	if len(src) == 0 {
		return dst
	}
	if dst == nil {
		dst = make(map[string]float64, len(src))
	}
	for f, s := range src {
		if cur, ok := dst[f]; !ok || s > cur {
			dst[f] = s
		}
	}
	return dst
}

// sortDesc orders by score, then by key for a stable result.
func sortDesc(hits []Hit) {
	slices.SortStableFunc(hits, func(a, b Hit) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.key(), b.key())
	})
}

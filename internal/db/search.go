package db

import "github.com/kailas-cloud/syncdex/internal/domain/search/filter"

// KNNQuery is the input for vector similarity search over one vector attribute.
type KNNQuery struct {
	IndexName string
	// Field is the vector attribute alias.
	Field   string
	Filters filter.Expression
	Vector  []float32
	K       int
}

// TextQuery is the input for full-text search scoped to one TEXT attribute.
type TextQuery struct {
	IndexName string
	// Field is the TEXT attribute alias.
	Field string
	Query string
	// Partial switches every term to an infix wildcard (*term*).
	Partial bool
	Filters filter.Expression
	TopK    int
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single document hit. Document holds the raw JSON of the matched document.
type SearchEntry struct {
	Key      string
	Score    float64
	Document []byte
}

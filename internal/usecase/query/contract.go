package query

import (
	"context"

	"github.com/kailas-cloud/syncdex/internal/domain/schema"
	"github.com/kailas-cloud/syncdex/internal/repository/index"
)

// Index runs field-scoped searches and loads stored records.
type Index interface {
	SearchText(ctx context.Context, q index.TextSearch) ([]index.Match, error)
	SearchVector(ctx context.Context, q index.VectorSearch) ([]index.Match, error)
	Fetch(ctx context.Context, tenant string, s schema.Collection, ids []string) (map[string]map[string]any, error)
}

// ImageFetcher downloads an image and returns it base64 encoded.
type ImageFetcher interface {
	FetchBase64(ctx context.Context, url string) (string, error)
}

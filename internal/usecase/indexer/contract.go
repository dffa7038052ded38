package indexer

import (
	"context"

	"github.com/kailas-cloud/syncdex/internal/domain/schema"
	"github.com/kailas-cloud/syncdex/internal/repository/index"
)

// Index writes tenant-scoped documents.
type Index interface {
	EnsureSchema(ctx context.Context, s schema.Collection) error
	Upsert(ctx context.Context, tenant string, s schema.Collection, docs []index.Document) error
	Delete(ctx context.Context, tenant string, s schema.Collection, ids []string) error
}

package reconcile

import (
	"context"

	"github.com/kailas-cloud/syncdex/internal/domain/record"
)

// HashStore persists record fingerprints per tenant and collection.
type HashStore interface {
	Get(ctx context.Context, tenant, collection string, ids []string) (map[string]record.Hash, error)
	Upsert(ctx context.Context, tenant, collection string, hashes []record.Hash) error
	MarkDeleted(ctx context.Context, tenant, collection string, ids []string) error
	IDs(ctx context.Context, tenant, collection string) ([]string, error)
}

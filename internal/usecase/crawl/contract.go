package crawl

import (
	"context"

	"github.com/kailas-cloud/syncdex/internal/domain/record"
	"github.com/kailas-cloud/syncdex/internal/domain/schema"
	"github.com/kailas-cloud/syncdex/internal/registry"
	"github.com/kailas-cloud/syncdex/internal/usecase/reconcile"
)

// Registry resolves integration/collection pairs.
type Registry interface {
	Get(integration, collection string) (registry.Entry, error)
}

// Reconciler diffs records against stored hashes and undoes its own decisions.
type Reconciler interface {
	Reconcile(ctx context.Context, tenant string, coll schema.Collection, page []record.Record) (reconcile.Result, error)
	PruneMissing(ctx context.Context, tenant string, coll schema.Collection, allIDs []string) (reconcile.Prune, error)
	Rollback(ctx context.Context, tenant string, coll schema.Collection, decisions reconcile.Decisions) error
}

// Indexer writes and removes index documents.
type Indexer interface {
	Upsert(ctx context.Context, tenant string, coll schema.Collection, records []record.Record) error
	Delete(ctx context.Context, tenant string, coll schema.Collection, ids []string) error
}

// Publisher delivers liveness and completion events to the orchestrator.
type Publisher interface {
	Heartbeat(ctx context.Context, p Progress) error
	Completed(ctx context.Context, s Summary) error
}

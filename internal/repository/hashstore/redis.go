// Package hashstore persists record content hashes per tenant and collection.
package hashstore

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/kailas-cloud/syncdex/internal/domain"
	"github.com/kailas-cloud/syncdex/internal/domain/record"
)

// store is the consumer interface for the Redis hash driver (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HMGet(ctx context.Context, key string, fields ...string) (map[string]string, error)
	HKeys(ctx context.Context, key string) ([]string, error)
	HDel(ctx context.Context, key string, fields ...string) error
}

// Redis keeps one Redis hash per tenant and collection: field = external id, value = JSON hash.
type Redis struct {
	store store
}

// NewRedis creates a Redis-backed hash store.
func NewRedis(s store) *Redis {
	return &Redis{store: s}
}

func hashKey(tenant, collection string) string {
	return domain.KeyPrefix + "hashes:" + tenant + ":" + collection
}

// Get returns the stored hashes of the given ids; unknown ids are absent.
func (r *Redis) Get(ctx context.Context, tenant, collection string, ids []string) (map[string]record.Hash, error) {
	raw, err := r.store.HMGet(ctx, hashKey(tenant, collection), ids...)
	if err != nil {
		return nil, fmt.Errorf("get hashes: %w", err)
	}
	return decodeAll(raw)
}

// Upsert stores hashes, replacing previous values.
func (r *Redis) Upsert(ctx context.Context, tenant, collection string, hashes []record.Hash) error {
	if len(hashes) == 0 {
		return nil
	}
	fields := make(map[string]string, len(hashes))
	for _, h := range hashes {
		data, err := json.Marshal(h)
		if err != nil {
			return fmt.Errorf("encode hash %s: %w", h.ID, err)
		}
		fields[h.ID] = string(data)
	}
	if err := r.store.HSet(ctx, hashKey(tenant, collection), fields); err != nil {
		return fmt.Errorf("store hashes: %w", err)
	}
	return nil
}

// MarkDeleted forgets the given ids.
func (r *Redis) MarkDeleted(ctx context.Context, tenant, collection string, ids []string) error {
	if err := r.store.HDel(ctx, hashKey(tenant, collection), ids...); err != nil {
		return fmt.Errorf("delete hashes: %w", err)
	}
	return nil
}

// IDs lists every stored id, sorted.
func (r *Redis) IDs(ctx context.Context, tenant, collection string) ([]string, error) {
	ids, err := r.store.HKeys(ctx, hashKey(tenant, collection))
	if err != nil {
		return nil, fmt.Errorf("list hashes: %w", err)
	}
	slices.Sort(ids)
	return ids, nil
}

func decodeAll(raw map[string]string) (map[string]record.Hash, error) {
	out := make(map[string]record.Hash, len(raw))
	for id, v := range raw {
		h, err := decode(id, v)
		if err != nil {
			return nil, err
		}
		out[id] = h
	}
	return out, nil
}

func decode(id, v string) (record.Hash, error) {
	var h record.Hash
	if err := json.Unmarshal([]byte(v), &h); err != nil {
		return record.Hash{}, fmt.Errorf("decode hash %s: %w", id, err)
	}
	h.ID = id
	return h, nil
}

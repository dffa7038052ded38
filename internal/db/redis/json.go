package redis

import (
	"context"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/syncdex/internal/db"
)

// JSONSetMulti stores documents in a single DoMulti round-trip.
// Per-key failures are reported together as *db.BatchError.
func (s *Store) JSONSetMulti(ctx context.Context, items []db.JSONSetItem) error {
	if len(items) == 0 {
		return nil
	}

	cmds := make(rueidis.Commands, len(items))
	for i, item := range items {
		path := item.Path
		if path == "" {
			path = "$"
		}
		cmds[i] = s.b().JsonSet().Key(item.Key).Path(path).Value(string(item.Data)).Build()
	}

	var failed map[string]error
	for i, res := range s.client.DoMulti(ctx, cmds...) {
		if err := res.Error(); err != nil {
			if failed == nil {
				failed = make(map[string]error)
			}
			failed[items[i].Key] = err
		}
	}
	if failed != nil {
		return &db.BatchError{Op: db.OpJSONSet, Failed: failed}
	}
	return nil
}

// JSONGetMulti fetches path from every key in a single DoMulti round-trip.
// Missing keys yield a nil entry.
func (s *Store) JSONGetMulti(ctx context.Context, keys []string, path string) ([][]byte, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	if path == "" {
		path = "$"
	}

	cmds := make(rueidis.Commands, len(keys))
	for i, key := range keys {
		cmds[i] = s.b().JsonGet().Key(key).Path(path).Build()
	}

	out := make([][]byte, len(keys))
	for i, res := range s.client.DoMulti(ctx, cmds...) {
		raw, err := res.ToString()
		if err != nil {
			if rueidis.IsRedisNil(err) {
				continue
			}
			return nil, &db.Error{Op: db.OpJSONGet, Err: err}
		}
		if raw != "" {
			out[i] = []byte(raw)
		}
	}
	return out, nil
}

// DelMulti deletes keys. Per-key failures are reported as *db.BatchError.
func (s *Store) DelMulti(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}

	cmds := make(rueidis.Commands, len(keys))
	for i, key := range keys {
		cmds[i] = s.b().Del().Key(key).Build()
	}

	var failed map[string]error
	for i, res := range s.client.DoMulti(ctx, cmds...) {
		if err := res.Error(); err != nil {
			if failed == nil {
				failed = make(map[string]error)
			}
			failed[keys[i]] = err
		}
	}
	if failed != nil {
		return &db.BatchError{Op: db.OpDel, Failed: failed}
	}
	return nil
}

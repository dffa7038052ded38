package hashstore

import (
	"context"
	"path/filepath"
	"testing"
)

// mockStore implements the consumer interface for tests.
type mockStore struct {
	hsetFn  func(ctx context.Context, key string, fields map[string]string) error
	hmgetFn func(ctx context.Context, key string, fields ...string) (map[string]string, error)
	hkeysFn func(ctx context.Context, key string) ([]string, error)
	hdelFn  func(ctx context.Context, key string, fields ...string) error
}

func (m *mockStore) HSet(ctx context.Context, key string, fields map[string]string) error {
	if m.hsetFn != nil {
		return m.hsetFn(ctx, key, fields)
	}
	return nil
}

func (m *mockStore) HMGet(ctx context.Context, key string, fields ...string) (map[string]string, error) {
	if m.hmgetFn != nil {
		return m.hmgetFn(ctx, key, fields...)
	}
	return map[string]string{}, nil
}

func (m *mockStore) HKeys(ctx context.Context, key string) ([]string, error) {
	if m.hkeysFn != nil {
		return m.hkeysFn(ctx, key)
	}
	return nil, nil
}

func (m *mockStore) HDel(ctx context.Context, key string, fields ...string) error {
	if m.hdelFn != nil {
		return m.hdelFn(ctx, key, fields...)
	}
	return nil
}

func newTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "hashes.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return s
}

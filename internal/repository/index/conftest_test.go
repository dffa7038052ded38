package index

import (
	"context"
	"testing"

	"github.com/kailas-cloud/syncdex/internal/db"
	"github.com/kailas-cloud/syncdex/internal/domain/schema"
)

// mockStore implements the consumer interface for tests.
type mockStore struct {
	createIndexFn  func(ctx context.Context, def *db.IndexDefinition) error
	jsonSetMultiFn func(ctx context.Context, items []db.JSONSetItem) error
	jsonGetMultiFn func(ctx context.Context, keys []string, path string) ([][]byte, error)
	delMultiFn     func(ctx context.Context, keys []string) error
	searchKNNFn    func(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	searchTextFn   func(ctx context.Context, q *db.TextQuery) (*db.SearchResult, error)
}

func (m *mockStore) CreateIndex(ctx context.Context, def *db.IndexDefinition) error {
	if m.createIndexFn != nil {
		return m.createIndexFn(ctx, def)
	}
	return nil
}

func (m *mockStore) JSONSetMulti(ctx context.Context, items []db.JSONSetItem) error {
	if m.jsonSetMultiFn != nil {
		return m.jsonSetMultiFn(ctx, items)
	}
	return nil
}

func (m *mockStore) JSONGetMulti(ctx context.Context, keys []string, path string) ([][]byte, error) {
	if m.jsonGetMultiFn != nil {
		return m.jsonGetMultiFn(ctx, keys, path)
	}
	return make([][]byte, len(keys)), nil
}

func (m *mockStore) DelMulti(ctx context.Context, keys []string) error {
	if m.delMultiFn != nil {
		return m.delMultiFn(ctx, keys)
	}
	return nil
}

func (m *mockStore) SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	if m.searchKNNFn != nil {
		return m.searchKNNFn(ctx, q)
	}
	return &db.SearchResult{}, nil
}

func (m *mockStore) SearchText(ctx context.Context, q *db.TextQuery) (*db.SearchResult, error) {
	if m.searchTextFn != nil {
		return m.searchTextFn(ctx, q)
	}
	return &db.SearchResult{}, nil
}

func newTestRepo(t *testing.T) (*Repo, *mockStore) {
	t.Helper()
	ms := &mockStore{}
	return New(ms, Options{TextDim: 4, ImageDim: 8}), ms
}

func mustField(t *testing.T, name string, ft schema.Type, opts schema.Options) schema.Field {
	t.Helper()
	f, err := schema.NewField(name, ft, opts)
	if err != nil {
		t.Fatalf("NewField %s: %v", name, err)
	}
	return f
}

// testSchema: title (keyword+filterable), body (keyword+vector), status (filterable),
// price (filterable number), created (filterable date), cover (image vector),
// comments (nested: text keyword+vector).
func testSchema(t *testing.T) schema.Collection {
	t.Helper()
	comments := mustField(t, "comments", schema.Nested, schema.Options{Children: []schema.Field{
		mustField(t, "text", schema.String, schema.Options{KeywordSearchable: true, VectorSearchable: true}),
	}})
	s, err := schema.New("files", "", "", []schema.Field{
		mustField(t, "title", schema.String, schema.Options{KeywordSearchable: true, Filterable: true}),
		mustField(t, "body", schema.String, schema.Options{KeywordSearchable: true, VectorSearchable: true}),
		mustField(t, "status", schema.String, schema.Options{Filterable: true}),
		mustField(t, "price", schema.Number, schema.Options{Filterable: true}),
		mustField(t, "created", schema.Date, schema.Options{Filterable: true}),
		mustField(t, "cover", schema.String, schema.Options{Multimodal: true, VectorSearchable: true}),
		comments,
	})
	if err != nil {
		t.Fatalf("schema.New: %v", err)
	}
	return s
}

package indexer

import (
	"context"
	"errors"
	"slices"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/syncdex/internal/domain"
	"github.com/kailas-cloud/syncdex/internal/domain/record"
	"github.com/kailas-cloud/syncdex/internal/domain/schema"
	"github.com/kailas-cloud/syncdex/internal/repository/index"
)

// --- Mocks ---

type mockIndex struct {
	ensureFn func(ctx context.Context, s schema.Collection) error
	upsertFn func(ctx context.Context, tenant string, s schema.Collection, docs []index.Document) error
	deleteFn func(ctx context.Context, tenant string, s schema.Collection, ids []string) error
}

func (m *mockIndex) EnsureSchema(ctx context.Context, s schema.Collection) error {
	if m.ensureFn != nil {
		return m.ensureFn(ctx, s)
	}
	return nil
}

func (m *mockIndex) Upsert(ctx context.Context, tenant string, s schema.Collection, docs []index.Document) error {
	if m.upsertFn != nil {
		return m.upsertFn(ctx, tenant, s, docs)
	}
	return nil
}

func (m *mockIndex) Delete(ctx context.Context, tenant string, s schema.Collection, ids []string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, tenant, s, ids)
	}
	return nil
}

// mockBatchEmbedder records every batch call and returns [len(text)] vectors.
type mockBatchEmbedder struct {
	calls [][]string
	err   error
}

func (m *mockBatchEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	return domain.EmbeddingResult{Embedding: []float32{float32(len(text))}}, m.err
}

func (m *mockBatchEmbedder) BatchEmbed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	m.calls = append(m.calls, slices.Clone(texts))
	if m.err != nil {
		return domain.BatchEmbeddingResult{}, m.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t))}
	}
	return domain.BatchEmbeddingResult{Embeddings: out}, nil
}

// --- Helpers ---

func mustField(t *testing.T, name string, ft schema.Type, opts schema.Options) schema.Field {
	t.Helper()
	f, err := schema.NewField(name, ft, opts)
	if err != nil {
		t.Fatalf("NewField(%s): %v", name, err)
	}
	return f
}

func testSchema(t *testing.T) schema.Collection {
	t.Helper()
	fields := []schema.Field{
		mustField(t, "title", schema.String, schema.Options{KeywordSearchable: true}),
		mustField(t, "summary", schema.String, schema.Options{VectorSearchable: true}),
		mustField(t, "cover", schema.String, schema.Options{VectorSearchable: true, Multimodal: true}),
		mustField(t, "comments", schema.Nested, schema.Options{Children: []schema.Field{
			mustField(t, "text", schema.String, schema.Options{VectorSearchable: true}),
		}}),
	}
	c, err := schema.New("files", "", "", fields)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func rec(id string, fields map[string]any) record.Record {
	fields["id"] = id
	return record.Record{ID: id, Fields: fields}
}

// --- Tests ---

func TestUpsert_OneEmbedCallPerModality(t *testing.T) {
	text := &mockBatchEmbedder{}
	image := &mockBatchEmbedder{}
	var written []index.Document
	idx := &mockIndex{upsertFn: func(_ context.Context, _ string, _ schema.Collection, docs []index.Document) error {
		written = append(written, docs...)
		return nil
	}}
	svc := New(idx, domain.Embedders{Text: text, Image: image}, 0, zap.NewNop())

	records := []record.Record{
		rec("1", map[string]any{"title": "a", "summary": "first", "cover": "https://img/1.png",
			"comments": []any{map[string]any{"id": "c1", "text": "nice"}, map[string]any{"text": ""}}}),
		rec("2", map[string]any{"title": "b", "summary": "", "cover": nil}),
	}
	if err := svc.Upsert(context.Background(), "t", testSchema(t), records); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(text.calls) != 1 || !slices.Equal(text.calls[0], []string{"first", "nice"}) {
		t.Errorf("text calls = %v", text.calls)
	}
	if len(image.calls) != 1 || !slices.Equal(image.calls[0], []string{"https://img/1.png"}) {
		t.Errorf("image calls = %v", image.calls)
	}
	if len(written) != 2 {
		t.Fatalf("written = %d docs", len(written))
	}
	d := written[0]
	if d.Vectors["summary"][0] != 5 || d.Vectors["cover"] == nil {
		t.Errorf("vectors = %v", d.Vectors)
	}
	if d.NestedVectors["comments/c1"]["text"][0] != 4 {
		t.Errorf("nested vectors = %v", d.NestedVectors)
	}
	if _, ok := d.NestedVectors["comments/1"]; ok {
		t.Error("empty nested value must be skipped")
	}
	if len(written[1].Vectors) != 0 {
		t.Errorf("empty fields must be skipped, got %v", written[1].Vectors)
	}
	if d.Hash.Digest == "" || d.Hash.Nested["comments/c1"] == "" {
		t.Error("documents must carry content hashes")
	}
}

func TestUpsert_BatchesAndReportsFailedIDs(t *testing.T) {
	var calls int
	idx := &mockIndex{upsertFn: func(_ context.Context, _ string, _ schema.Collection, docs []index.Document) error {
		calls++
		if calls == 2 {
			return &domain.ReconciliationError{IDs: []string{docs[0].Record.ID}, Err: errors.New("oom")}
		}
		return nil
	}}
	svc := New(idx, domain.Embedders{Text: &mockBatchEmbedder{}, Image: &mockBatchEmbedder{}}, 2, zap.NewNop())

	var records []record.Record
	for _, id := range []string{"1", "2", "3", "4", "5"} {
		records = append(records, rec(id, map[string]any{"title": id}))
	}
	err := svc.Upsert(context.Background(), "t", testSchema(t), records)
	if calls != 3 {
		t.Fatalf("expected 3 batches, got %d", calls)
	}
	if !errors.Is(err, domain.ErrReconciliation) {
		t.Fatalf("expected ErrReconciliation, got %v", err)
	}
	if got := domain.FailedIDs(err); !slices.Equal(got, []string{"3"}) {
		t.Errorf("failed ids = %v", got)
	}
}

func TestUpsert_EmbeddingFailureFailsWholeBatch(t *testing.T) {
	idx := &mockIndex{upsertFn: func(context.Context, string, schema.Collection, []index.Document) error {
		t.Fatal("no write expected")
		return nil
	}}
	text := &mockBatchEmbedder{err: errors.New("provider down")}
	svc := New(idx, domain.Embedders{Text: text, Image: &mockBatchEmbedder{}}, 0, zap.NewNop())

	err := svc.Upsert(context.Background(), "t", testSchema(t), []record.Record{
		rec("1", map[string]any{"summary": "x"}), rec("2", map[string]any{"title": "y"}),
	})
	if got := domain.FailedIDs(err); !slices.Equal(got, []string{"1", "2"}) {
		t.Fatalf("failed ids = %v (err=%v)", got, err)
	}
}

func TestUpsert_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	svc := New(&mockIndex{}, domain.Embedders{Text: &mockBatchEmbedder{}}, 0, zap.NewNop())

	err := svc.Upsert(ctx, "t", testSchema(t), []record.Record{rec("1", map[string]any{})})
	if !errors.Is(err, context.Canceled) || !slices.Equal(domain.FailedIDs(err), []string{"1"}) {
		t.Fatalf("expected cancelled reconciliation error, got %v", err)
	}
}

func TestDelete_ReportsFailedIDs(t *testing.T) {
	idx := &mockIndex{deleteFn: func(_ context.Context, _ string, _ schema.Collection, ids []string) error {
		if slices.Contains(ids, "3") {
			return errors.New("down")
		}
		return nil
	}}
	svc := New(idx, domain.Embedders{}, 2, zap.NewNop())

	err := svc.Delete(context.Background(), "t", testSchema(t), []string{"1", "2", "3"})
	if got := domain.FailedIDs(err); !slices.Equal(got, []string{"3"}) {
		t.Fatalf("failed ids = %v", got)
	}
}

func TestEnsureSchema_RequiresEmbedders(t *testing.T) {
	var created bool
	idx := &mockIndex{ensureFn: func(context.Context, schema.Collection) error {
		created = true
		return nil
	}}
	svc := New(idx, domain.Embedders{Text: &mockBatchEmbedder{}}, 0, zap.NewNop())

	err := svc.EnsureSchema(context.Background(), testSchema(t))
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
	if created {
		t.Error("index must not be created")
	}

	svc = New(idx, domain.Embedders{Text: &mockBatchEmbedder{}, Image: &mockBatchEmbedder{}}, 0, zap.NewNop())
	if err := svc.EnsureSchema(context.Background(), testSchema(t)); err != nil || !created {
		t.Fatalf("unexpected: err=%v created=%v", err, created)
	}
}

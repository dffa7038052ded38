package crawl

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/syncdex/internal/domain"
	"github.com/kailas-cloud/syncdex/internal/domain/record"
	"github.com/kailas-cloud/syncdex/internal/domain/schema"
	"github.com/kailas-cloud/syncdex/internal/pagination"
	"github.com/kailas-cloud/syncdex/internal/registry"
	"github.com/kailas-cloud/syncdex/internal/usecase/reconcile"
)

// --- Mocks ---

type memHashes struct {
	mu   sync.Mutex
	data map[string]record.Hash
}

func newMemHashes() *memHashes { return &memHashes{data: make(map[string]record.Hash)} }

func (m *memHashes) Get(_ context.Context, _, _ string, ids []string) (map[string]record.Hash, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]record.Hash)
	for _, id := range ids {
		if h, ok := m.data[id]; ok {
			out[id] = h
		}
	}
	return out, nil
}

func (m *memHashes) Upsert(_ context.Context, _, _ string, hashes []record.Hash) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, h := range hashes {
		m.data[h.ID] = h
	}
	return nil
}

func (m *memHashes) MarkDeleted(_ context.Context, _, _ string, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.data, id)
	}
	return nil
}

func (m *memHashes) IDs(_ context.Context, _, _ string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Sorted(maps.Keys(m.data)), nil
}

func (m *memHashes) has(id string) (record.Hash, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.data[id]
	return h, ok
}

type mockIndexer struct {
	upsertFn func(records []record.Record) error
	deleteFn func(ids []string) error
	upserted []string
	deleted  []string
}

func (m *mockIndexer) Upsert(_ context.Context, _ string, _ schema.Collection, records []record.Record) error {
	if m.upsertFn != nil {
		if err := m.upsertFn(records); err != nil {
			return err
		}
	}
	for _, r := range records {
		m.upserted = append(m.upserted, r.ID)
	}
	return nil
}

func (m *mockIndexer) Delete(_ context.Context, _ string, _ schema.Collection, ids []string) error {
	if m.deleteFn != nil {
		if err := m.deleteFn(ids); err != nil {
			return err
		}
	}
	m.deleted = append(m.deleted, ids...)
	return nil
}

type mockPublisher struct {
	mu         sync.Mutex
	heartbeats int
	completed  []Summary
}

func (m *mockPublisher) Heartbeat(context.Context, Progress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.heartbeats++
	return nil
}

func (m *mockPublisher) Completed(_ context.Context, s Summary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completed = append(m.completed, s)
	return nil
}

// --- Helpers ---

func item(id, name string) map[string]any { return map[string]any{"id": id, "name": name} }

// twoPages serves [1,2] then [3] over cursor pagination; failSecond makes page two fail.
func twoPages(failSecond bool, delay time.Duration) pagination.Requester {
	return pagination.RequesterFunc(func(_ context.Context, req pagination.Request) (pagination.Response, error) {
		time.Sleep(delay)
		if req.Params["cursor"] == "" {
			return pagination.Response{Data: map[string]any{
				"data": []any{item("1", "a"), item("2", "b")},
				"next": "p2",
			}}, nil
		}
		if failSecond {
			return pagination.Response{}, &domain.TransportError{Endpoint: req.Endpoint, StatusCode: 502, Err: errors.New("bad gateway")}
		}
		return pagination.Response{Data: map[string]any{"data": []any{item("3", "c")}}}, nil
	})
}

func newRegistry(t *testing.T, req pagination.Requester) *registry.Registry {
	t.Helper()
	name, err := schema.NewField("name", schema.String, schema.Options{KeywordSearchable: true})
	if err != nil {
		t.Fatal(err)
	}
	s, err := schema.New("acme-items", "", "id", []schema.Field{name})
	if err != nil {
		t.Fatal(err)
	}
	reg, err := registry.New(registry.Entry{
		Integration: "acme",
		Collection:  "items",
		Schema:      s,
		Source: registry.Source{
			Requester: req,
			Strategy:  pagination.Strategy{Kind: pagination.KindCursor, DataPath: "data", CursorParam: "cursor", CursorPath: "next"},
			Request:   pagination.Request{Endpoint: "/items"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	return reg
}

type fixture struct {
	svc    *Service
	hashes *memHashes
	idx    *mockIndexer
	pub    *mockPublisher
}

func newFixture(t *testing.T, req pagination.Requester, interval time.Duration) fixture {
	t.Helper()
	hashes := newMemHashes()
	idx := &mockIndexer{}
	pub := &mockPublisher{}
	rec := reconcile.New(hashes, zap.NewNop())
	svc := New(newRegistry(t, req), rec, idx, pub, interval, zap.NewNop())
	return fixture{svc: svc, hashes: hashes, idx: idx, pub: pub}
}

// --- Tests ---

func TestStartCrawl_IndexesAndPrunes(t *testing.T) {
	f := newFixture(t, twoPages(false, 0), 0)
	f.hashes.data["9"] = record.Hash{ID: "9", Digest: "stale"}

	sum, err := f.svc.StartCrawl(context.Background(), "t1", "acme", "items")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sum.Status != StatusCompleted || sum.Pages != 2 || sum.Added != 3 || sum.Deleted != 1 {
		t.Errorf("summary = %+v", sum)
	}
	if !slices.Equal(f.idx.upserted, []string{"1", "2", "3"}) {
		t.Errorf("upserted = %v", f.idx.upserted)
	}
	if !slices.Equal(f.idx.deleted, []string{"9"}) {
		t.Errorf("deleted = %v", f.idx.deleted)
	}
	if _, ok := f.hashes.has("9"); ok {
		t.Error("stale hash must be gone")
	}
	if len(f.pub.completed) != 1 || f.pub.completed[0].Tenant != "t1" {
		t.Errorf("completed = %+v", f.pub.completed)
	}
}

func TestStartCrawl_SecondRunIsUnchanged(t *testing.T) {
	f := newFixture(t, twoPages(false, 0), 0)
	ctx := context.Background()
	if _, err := f.svc.StartCrawl(ctx, "t1", "acme", "items"); err != nil {
		t.Fatal(err)
	}
	sum, err := f.svc.StartCrawl(ctx, "t1", "acme", "items")
	if err != nil {
		t.Fatal(err)
	}
	if sum.Added != 0 || sum.Updated != 0 || sum.Unchanged != 3 || sum.Deleted != 0 {
		t.Errorf("summary = %+v", sum)
	}
	if len(f.idx.upserted) != 3 {
		t.Errorf("unchanged records re-indexed: %v", f.idx.upserted)
	}
}

func TestStartCrawl_FailedPageSkipsPrune(t *testing.T) {
	f := newFixture(t, twoPages(true, 0), 0)
	f.hashes.data["9"] = record.Hash{ID: "9", Digest: "stale"}

	sum, err := f.svc.StartCrawl(context.Background(), "t1", "acme", "items")
	if !errors.Is(err, domain.ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if sum.Status != StatusFailed || sum.Pages != 1 || sum.Error == "" {
		t.Errorf("summary = %+v", sum)
	}
	if _, ok := f.hashes.has("9"); !ok {
		t.Error("prune must not run after a failed crawl")
	}
	if len(f.idx.deleted) != 0 {
		t.Errorf("deleted = %v", f.idx.deleted)
	}
	if len(f.pub.completed) != 1 || f.pub.completed[0].Status != StatusFailed {
		t.Errorf("completed = %+v", f.pub.completed)
	}
}

func TestReconcilePage_RollsBackFailedIDs(t *testing.T) {
	f := newFixture(t, nil, 0)
	f.idx.upsertFn = func([]record.Record) error {
		return &domain.ReconciliationError{IDs: []string{"2"}, Err: errors.New("index down")}
	}
	ctx := context.Background()
	items := []any{item("1", "a"), item("2", "b")}

	_, err := f.svc.ReconcilePage(ctx, "t1", "acme", "items", items)
	if !errors.Is(err, domain.ErrReconciliation) {
		t.Fatalf("expected reconciliation error, got %v", err)
	}
	if _, ok := f.hashes.has("1"); !ok {
		t.Error("hash of the indexed record must stay")
	}
	if _, ok := f.hashes.has("2"); ok {
		t.Error("hash of the failed record must be rolled back")
	}

	f.idx.upsertFn = nil
	res, err := f.svc.ReconcilePage(ctx, "t1", "acme", "items", items)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(res.Added, []string{"2"}) || res.Unchanged != 1 {
		t.Errorf("retry = %+v", res)
	}
}

func TestReconcilePage_CancelledContextStillRollsBack(t *testing.T) {
	f := newFixture(t, nil, 0)
	ctx, cancel := context.WithCancel(context.Background())
	f.idx.upsertFn = func([]record.Record) error {
		cancel()
		return context.Canceled
	}

	_, err := f.svc.ReconcilePage(ctx, "t1", "acme", "items", []any{item("1", "a")})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if _, ok := f.hashes.has("1"); ok {
		t.Error("hash must be rolled back even after cancellation")
	}
}

func TestPruneMissing_RestoresOnIndexFailure(t *testing.T) {
	f := newFixture(t, nil, 0)
	f.hashes.data["1"] = record.Hash{ID: "1", Digest: "d1"}
	f.hashes.data["9"] = record.Hash{ID: "9", Digest: "d9"}
	f.idx.deleteFn = func([]string) error { return errors.New("index down") }

	_, err := f.svc.PruneMissing(context.Background(), "t1", "acme", "items", []string{"1"})
	if err == nil {
		t.Fatal("expected error")
	}
	h, ok := f.hashes.has("9")
	if !ok || h.Digest != "d9" {
		t.Errorf("pruned hash must be restored, got %+v (present=%v)", h, ok)
	}
}

func TestPruneMissing_DeletesOnlyMissing(t *testing.T) {
	f := newFixture(t, nil, 0)
	f.hashes.data["1"] = record.Hash{ID: "1", Digest: "d1"}
	f.hashes.data["9"] = record.Hash{ID: "9", Digest: "d9"}

	deleted, err := f.svc.PruneMissing(context.Background(), "t1", "acme", "items", []string{"1"})
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(deleted, []string{"9"}) || !slices.Equal(f.idx.deleted, []string{"9"}) {
		t.Errorf("deleted = %v, index deleted = %v", deleted, f.idx.deleted)
	}
}

func TestStartCrawl_Heartbeat(t *testing.T) {
	f := newFixture(t, twoPages(false, 20*time.Millisecond), 2*time.Millisecond)

	if _, err := f.svc.StartCrawl(context.Background(), "t1", "acme", "items"); err != nil {
		t.Fatal(err)
	}
	f.pub.mu.Lock()
	defer f.pub.mu.Unlock()
	if f.pub.heartbeats == 0 {
		t.Error("expected heartbeats during a slow crawl")
	}
}

func TestStartCrawl_UnknownCollection(t *testing.T) {
	f := newFixture(t, nil, 0)
	_, err := f.svc.StartCrawl(context.Background(), "t1", "acme", "nope")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStartCrawl_NoRequester(t *testing.T) {
	f := newFixture(t, nil, 0)
	_, err := f.svc.StartCrawl(context.Background(), "t1", "acme", "items")
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("expected ErrConfiguration, got %v", err)
	}
}

// Package indexer embeds records and writes them to the search index.
package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/kailas-cloud/syncdex/internal/domain"
	"github.com/kailas-cloud/syncdex/internal/domain/record"
	"github.com/kailas-cloud/syncdex/internal/domain/schema"
	"github.com/kailas-cloud/syncdex/internal/repository/index"
)

// DefaultBatchSize bounds the records embedded and written per round trip.
const DefaultBatchSize = 100

// Service writes records to the index.
type Service struct {
	idx       Index
	embedders domain.Embedders
	batchSize int
	logger    *zap.Logger
}

// New creates an indexer. batchSize <= 0 uses DefaultBatchSize.
func New(idx Index, embedders domain.Embedders, batchSize int, logger *zap.Logger) *Service {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Service{idx: idx, embedders: embedders, batchSize: batchSize, logger: logger}
}

// EnsureSchema creates the collection indexes and checks that every embedding modality
// the schema uses has an embedder.
func (s *Service) EnsureSchema(ctx context.Context, coll schema.Collection) error {
	for _, m := range []domain.Modality{domain.ModalityText, domain.ModalityImage} {
		if !coll.HasVectorFields(m) {
			continue
		}
		if _, err := s.embedders.For(m); err != nil {
			return domain.NewConfigurationError(coll.Name(), fmt.Sprintf("%s vector fields need a %s embedder", m, m))
		}
	}
	if err := s.idx.EnsureSchema(ctx, coll); err != nil {
		return fmt.Errorf("ensure schema %s: %w", coll.Name(), err)
	}
	return nil
}

// Upsert embeds and writes records in batches. Every batch is attempted; the returned
// *domain.ReconciliationError lists exactly the ids that were not written.
func (s *Service) Upsert(ctx context.Context, tenant string, coll schema.Collection, records []record.Record) error {
	var failed []string
	var firstErr error
	for batch := range slices.Chunk(records, s.batchSize) {
		if err := ctx.Err(); err != nil {
			failed = append(failed, recordIDs(batch)...)
			firstErr = cmpErr(firstErr, err)
			continue
		}
		ids, err := s.upsertBatch(ctx, tenant, coll, batch)
		if err != nil {
			failed = append(failed, ids...)
			firstErr = cmpErr(firstErr, err)
		}
	}
	if len(failed) > 0 {
		s.logger.Warn("Index upsert failed",
			zap.String("tenant", tenant),
			zap.String("collection", coll.Name()),
			zap.Int("failed", len(failed)),
			zap.Error(firstErr),
		)
		return &domain.ReconciliationError{IDs: failed, Err: firstErr}
	}
	return nil
}

// Delete removes records and their nested items from the index.
func (s *Service) Delete(ctx context.Context, tenant string, coll schema.Collection, ids []string) error {
	var failed []string
	var firstErr error
	for batch := range slices.Chunk(ids, s.batchSize) {
		if err := s.idx.Delete(ctx, tenant, coll, batch); err != nil {
			if f := domain.FailedIDs(err); f != nil {
				failed = append(failed, f...)
			} else {
				failed = append(failed, batch...)
			}
			firstErr = cmpErr(firstErr, err)
		}
	}
	if len(failed) > 0 {
		return &domain.ReconciliationError{IDs: failed, Err: firstErr}
	}
	return nil
}

func (s *Service) upsertBatch(
	ctx context.Context, tenant string, coll schema.Collection, batch []record.Record,
) ([]string, error) {
	docs := make([]index.Document, len(batch))
	for i, r := range batch {
		h, err := record.Compute(r, coll)
		if err != nil {
			return recordIDs(batch), err
		}
		docs[i] = index.Document{Record: r, Hash: h}
	}

	if err := s.embed(ctx, coll, docs); err != nil {
		return recordIDs(batch), fmt.Errorf("embed batch: %w", err)
	}

	if err := s.idx.Upsert(ctx, tenant, coll, docs); err != nil {
		if f := domain.FailedIDs(err); f != nil {
			return f, err
		}
		return recordIDs(batch), err
	}
	return nil, nil
}

// slot is where one embedding lands: a top-level field, or a nested child of one item.
type slot struct {
	doc       int
	field     string
	nestedKey string
}

// embed fills Vectors and NestedVectors with one batched call per modality.
// Empty or absent values are skipped.
func (s *Service) embed(ctx context.Context, coll schema.Collection, docs []index.Document) error {
	inputs := map[domain.Modality][]string{}
	slots := map[domain.Modality][]slot{}
	add := func(m domain.Modality, v any, sl slot) {
		in, ok := embedInput(m, v)
		if !ok {
			return
		}
		inputs[m] = append(inputs[m], in)
		slots[m] = append(slots[m], sl)
	}

	for i, d := range docs {
		for _, f := range coll.Fields() {
			if f.IsNested() {
				for j, item := range record.NestedItems(d.Record.Fields[f.Name()]) {
					m, ok := item.(map[string]any)
					if !ok {
						continue
					}
					nk := record.NestedKey(f.Name(), item, j)
					for _, c := range f.Children() {
						if c.VectorSearchable() {
							add(c.Modality(), m[c.Name()], slot{doc: i, field: c.Name(), nestedKey: nk})
						}
					}
				}
				continue
			}
			if f.VectorSearchable() {
				add(f.Modality(), d.Record.Fields[f.Name()], slot{doc: i, field: f.Name()})
			}
		}
	}

	for m, in := range inputs {
		e, err := s.embedders.For(m)
		if err != nil {
			return err
		}
		vecs, err := domain.EmbedAll(ctx, e, in)
		if err != nil {
			return fmt.Errorf("%s embeddings: %w", m, err)
		}
		for k, sl := range slots[m] {
			place(&docs[sl.doc], sl, vecs[k])
		}
	}
	return nil
}

func place(d *index.Document, sl slot, vec []float32) {
	if sl.nestedKey == "" {
		if d.Vectors == nil {
			d.Vectors = make(map[string][]float32)
		}
		d.Vectors[sl.field] = vec
		return
	}
	if d.NestedVectors == nil {
		d.NestedVectors = make(map[string]map[string][]float32)
	}
	if d.NestedVectors[sl.nestedKey] == nil {
		d.NestedVectors[sl.nestedKey] = make(map[string][]float32)
	}
	d.NestedVectors[sl.nestedKey][sl.field] = vec
}

// embedInput renders a field value for the embedder. Images must be a URL or base64 string;
// text accepts any value, non-strings as JSON.
func embedInput(m domain.Modality, v any) (string, bool) {
	if record.IsEmpty(v) {
		return "", false
	}
	if s, ok := v.(string); ok {
		return s, true
	}
	if m == domain.ModalityImage {
		return "", false
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", false
	}
	return string(data), true
}

func recordIDs(rs []record.Record) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.ID
	}
	return out
}

func cmpErr(first, next error) error {
	if first != nil {
		return first
	}
	return next
}

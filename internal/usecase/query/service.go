// Package query executes keyword, vector, hybrid and image queries over the index.
package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/syncdex/internal/domain"
	"github.com/kailas-cloud/syncdex/internal/domain/schema"
	"github.com/kailas-cloud/syncdex/internal/domain/search/filter"
	"github.com/kailas-cloud/syncdex/internal/domain/search/hit"
	domquery "github.com/kailas-cloud/syncdex/internal/domain/search/query"
	"github.com/kailas-cloud/syncdex/internal/metrics"
	"github.com/kailas-cloud/syncdex/internal/repository/index"
)

// Candidate pool per sub-query: limit * candidateFactor, capped at maxCandidates.
// Nested items compete with each other for slots, so the pool is wider than the limit.
const (
	candidateFactor = 4
	maxCandidates   = 400
)

// Service is the stateless hybrid query engine.
type Service struct {
	idx       Index
	embedders domain.Embedders
	images    ImageFetcher
	minScore  float64
	logger    *zap.Logger
}

// New creates a query service. minScore drops hits at or below it; 0 disables the threshold.
func New(idx Index, embedders domain.Embedders, images ImageFetcher, minScore float64, logger *zap.Logger) *Service {
	return &Service{idx: idx, embedders: embedders, images: images, minScore: minScore, logger: logger}
}

// Run executes one query and returns ranked hits with sources loaded.
func (s *Service) Run(ctx context.Context, tenant string, coll schema.Collection, spec domquery.Spec) ([]hit.Hit, error) {
	start := time.Now()
	hits, err := s.run(ctx, tenant, coll, spec)

	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.QueryDuration.WithLabelValues(string(spec.Type()), status).Observe(time.Since(start).Seconds())
	return hits, err
}

func (s *Service) run(ctx context.Context, tenant string, coll schema.Collection, spec domquery.Spec) ([]hit.Hit, error) {
	if tenant == "" {
		return nil, domain.NewInvalidQuery("tenant is required")
	}
	if err := validateFilter(spec.Filter(), coll); err != nil {
		return nil, err
	}

	var (
		hits []hit.Hit
		err  error
	)
	switch spec.Type() {
	case domquery.Keyword:
		if len(keywordTargets(coll)) == 0 {
			return nil, &domain.UnsupportedQueryError{Mode: string(spec.Type()), Reason: "no keyword-searchable fields"}
		}
		hits, err = s.keyword(ctx, tenant, coll, spec)
	case domquery.Vector:
		if !coll.HasVectorFields(domain.ModalityText) && !coll.HasVectorFields(domain.ModalityImage) {
			return nil, &domain.UnsupportedQueryError{Mode: string(spec.Type()), Reason: "no vector-searchable fields"}
		}
		hits, err = s.vector(ctx, tenant, coll, spec)
	case domquery.Hybrid:
		if !coll.HasVectorFields(domain.ModalityText) && !coll.HasVectorFields(domain.ModalityImage) {
			return nil, &domain.UnsupportedQueryError{Mode: string(spec.Type()), Reason: "no vector-searchable fields"}
		}
		hits, err = s.hybrid(ctx, tenant, coll, spec)
	case domquery.Image:
		if !coll.HasVectorFields(domain.ModalityImage) {
			return nil, &domain.UnsupportedQueryError{Mode: string(spec.Type()), Reason: "no multimodal vector fields"}
		}
		hits, err = s.image(ctx, tenant, coll, spec)
	default:
		return nil, domain.NewInvalidQuery("invalid query type %q", spec.Type())
	}
	if err != nil {
		return nil, err
	}

	hits = hit.Rank(hits, s.minScore, spec.Limit())
	return s.loadSources(ctx, tenant, coll, hits)
}

func (s *Service) keyword(ctx context.Context, tenant string, coll schema.Collection, spec domquery.Spec) ([]hit.Hit, error) {
	targets := keywordTargets(coll)
	lists := make([][]hit.Hit, len(targets))

	g, gctx := errgroup.WithContext(ctx)
	for i, t := range targets {
		g.Go(func() error {
			ms, err := s.idx.SearchText(gctx, index.TextSearch{
				Tenant:  tenant,
				Schema:  coll,
				Target:  t.Target,
				Query:   spec.Text(),
				Partial: t.partial,
				Filter:  spec.Filter(),
				TopK:    candidates(spec.Limit()),
			})
			if err != nil {
				return fmt.Errorf("keyword %s: %w", t.Target, err)
			}
			lists[i] = normalized(t.Target, ms)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return hit.Merge(lists...), nil
}

// vector embeds the query text once per modality the schema uses and searches every vector field.
func (s *Service) vector(ctx context.Context, tenant string, coll schema.Collection, spec domquery.Spec) ([]hit.Hit, error) {
	var modalities []domain.Modality
	for _, m := range []domain.Modality{domain.ModalityText, domain.ModalityImage} {
		if coll.HasVectorFields(m) {
			modalities = append(modalities, m)
		}
	}
	return s.knn(ctx, tenant, coll, spec, spec.Text(), modalities)
}

func (s *Service) image(ctx context.Context, tenant string, coll schema.Collection, spec domquery.Spec) ([]hit.Hit, error) {
	b64 := spec.Image()
	if b64 == "" {
		if s.images == nil {
			return nil, domain.NewInvalidQuery("image_url is not supported, send the image inline")
		}
		var err error
		b64, err = s.images.FetchBase64(ctx, spec.ImageURL())
		if err != nil {
			return nil, fmt.Errorf("fetch query image: %w", err)
		}
	}
	return s.knn(ctx, tenant, coll, spec, b64, []domain.Modality{domain.ModalityImage})
}

func (s *Service) knn(
	ctx context.Context, tenant string, coll schema.Collection, spec domquery.Spec,
	input string, modalities []domain.Modality,
) ([]hit.Hit, error) {
	vectors := make(map[domain.Modality][]float32, len(modalities))
	for _, m := range modalities {
		e, err := s.embedders.For(m)
		if err != nil {
			return nil, err
		}
		res, err := e.Embed(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("vectorize query (%s): %w", m, err)
		}
		vectors[m] = res.Embedding
	}

	var targets []vectorTarget
	for _, m := range modalities {
		targets = append(targets, vectorTargets(coll, m)...)
	}
	lists := make([][]hit.Hit, len(targets))

	g, gctx := errgroup.WithContext(ctx)
	for i, t := range targets {
		g.Go(func() error {
			ms, err := s.idx.SearchVector(gctx, index.VectorSearch{
				Tenant: tenant,
				Schema: coll,
				Target: t.Target,
				Vector: vectors[t.modality],
				Filter: spec.Filter(),
				K:      candidates(spec.Limit()),
			})
			if err != nil {
				return fmt.Errorf("vector %s: %w", t.Target, err)
			}
			lists[i] = normalized(t.Target, ms)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return hit.Merge(lists...), nil
}

// hybrid runs both sides concurrently, scales keyword by 1-alpha and vector by alpha, and blends.
// A side with zero weight is not run.
func (s *Service) hybrid(ctx context.Context, tenant string, coll schema.Collection, spec domquery.Spec) ([]hit.Hit, error) {
	alpha := spec.Alpha()
	var kw, vec []hit.Hit

	g, gctx := errgroup.WithContext(ctx)
	if alpha < 1 && len(keywordTargets(coll)) > 0 {
		g.Go(func() error {
			var err error
			kw, err = s.keyword(gctx, tenant, coll, spec)
			return err
		})
	}
	if alpha > 0 {
		g.Go(func() error {
			var err error
			vec, err = s.vector(gctx, tenant, coll, spec)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	hit.Scale(kw, 1-alpha)
	hit.Scale(vec, alpha)
	return hit.Blend(kw, vec), nil
}

// loadSources fills the source of records matched only through nested items.
// Records gone from the index since the search are dropped.
func (s *Service) loadSources(ctx context.Context, tenant string, coll schema.Collection, hits []hit.Hit) ([]hit.Hit, error) {
	var missing []string
	for _, h := range hits {
		if h.Source == nil {
			missing = append(missing, h.ID)
		}
	}
	if len(missing) == 0 {
		return hits, nil
	}

	sources, err := s.idx.Fetch(ctx, tenant, coll, missing)
	if err != nil {
		return nil, fmt.Errorf("load sources: %w", err)
	}
	out := hits[:0]
	for _, h := range hits {
		if h.Source == nil {
			src, ok := sources[h.ID]
			if !ok {
				s.logger.Debug("Hit dropped, record no longer indexed", zap.String("id", h.ID))
				continue
			}
			h.Source = src
		}
		out = append(out, h)
	}
	return out, nil
}

// normalized folds one sub-query's matches into hits and min-max normalizes them.
func normalized(t index.Target, ms []index.Match) []hit.Hit {
	hits := make([]hit.Hit, 0, len(ms))
	for _, m := range ms {
		if !t.IsNested() {
			hits = append(hits, hit.Hit{
				ID:     m.ID,
				Score:  m.Score,
				Fields: map[string]float64{t.Field: m.Score},
				Source: m.Source,
			})
			continue
		}
		key := m.Hash
		if key == "" {
			key = m.ID + "/" + m.NestedKey
		}
		item := hit.Hit{
			ID:     m.ID,
			Hash:   key,
			Score:  m.Score,
			Fields: map[string]float64{t.Child: m.Score},
			Source: m.Source,
		}
		hits = append(hits, hit.Hit{
			ID:     m.ID,
			Score:  m.Score,
			Fields: map[string]float64{t.Child: m.Score},
			Nested: map[string][]hit.Hit{t.Field: {item}},
		})
	}
	hits = hit.Merge(hits)
	hit.Normalize(hits)
	return hits
}

func candidates(limit int) int {
	return min(max(limit, 1)*candidateFactor, maxCandidates)
}

// validateFilter accepts only filterable top-level fields; match needs a string, boolean
// or array field, range needs a numeric or date field.
func validateFilter(expr filter.Expression, coll schema.Collection) error {
	var errs []error
	for _, c := range expr.Conditions() {
		f, ok := coll.Field(c.Key())
		switch {
		case !ok:
			errs = append(errs, fmt.Errorf("unknown filter field %q", c.Key()))
		case !f.Filterable():
			errs = append(errs, fmt.Errorf("field %q is not filterable", c.Key()))
		case c.IsRange() && !f.FieldType().IsNumeric():
			errs = append(errs, fmt.Errorf("range filter on non-numeric field %q", c.Key()))
		case c.IsMatch() && f.FieldType().IsNumeric():
			errs = append(errs, fmt.Errorf("match filter on numeric field %q, use a range", c.Key()))
		case c.IsMatch() && f.FieldType() != schema.String && f.FieldType() != schema.Boolean &&
			f.FieldType() != schema.Array:
			errs = append(errs, fmt.Errorf("field %q of type %s cannot be filtered", c.Key(), f.FieldType()))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return domain.NewInvalidQuery("%v", err)
	}
	return nil
}

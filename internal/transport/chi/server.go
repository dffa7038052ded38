// Package chi exposes query and sync operations over HTTP.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/syncdex/internal/domain"
	"github.com/kailas-cloud/syncdex/internal/domain/schema"
	"github.com/kailas-cloud/syncdex/internal/domain/search/hit"
	"github.com/kailas-cloud/syncdex/internal/domain/search/query"
	logpkg "github.com/kailas-cloud/syncdex/internal/logger"
	"github.com/kailas-cloud/syncdex/internal/registry"
	"github.com/kailas-cloud/syncdex/internal/usecase/crawl"
	"github.com/kailas-cloud/syncdex/internal/usecase/format"
	healthuc "github.com/kailas-cloud/syncdex/internal/usecase/health"
)

// maxBodyBytes caps request bodies (a reconcile page with inline items is the largest).
const maxBodyBytes = 32 << 20

// Registry resolves collections.
type Registry interface {
	Get(integration, collection string) (registry.Entry, error)
	Entries() []registry.Entry
}

// Querier runs queries against one collection.
type Querier interface {
	Run(ctx context.Context, tenant string, coll schema.Collection, spec query.Spec) ([]hit.Hit, error)
}

// Crawler runs crawls and their building blocks.
type Crawler interface {
	StartCrawl(ctx context.Context, tenant, integration, collection string) (crawl.Summary, error)
	ReconcilePage(ctx context.Context, tenant, integration, collection string, items []any) (crawl.PageResult, error)
	PruneMissing(ctx context.Context, tenant, integration, collection string, allIDs []string) ([]string, error)
}

// HealthChecker reports dependency health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error) bool

// Server is the HTTP controller.
type Server struct {
	registry      Registry
	query         Querier
	crawler       Crawler
	health        HealthChecker
	logger        *zap.Logger
	errorHandlers []errorHandler

	// crawls tracks background crawls so shutdown can wait for them.
	crawls sync.WaitGroup
}

// NewServer creates an HTTP API server.
func NewServer(reg Registry, q Querier, c Crawler, health HealthChecker, logger *zap.Logger) *Server {
	s := &Server{
		registry: reg,
		query:    q,
		crawler:  c,
		health:   health,
		logger:   logger,
	}
	s.errorHandlers = []errorHandler{
		reconciliationHandler,
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, CodeCollectionNotFound, false),
		sentinelHandler(domain.ErrInvalidQuery, http.StatusBadRequest, CodeValidationFailed, true),
		sentinelHandler(domain.ErrUnsupportedQuery, http.StatusNotImplemented, CodeUnsupportedQuery, true),
		sentinelHandler(domain.ErrConfiguration, http.StatusUnprocessableEntity, CodeConfigurationError, true),
		sentinelHandler(domain.ErrRateLimited, http.StatusTooManyRequests, CodeRateLimited, false),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, CodeEmbeddingError, false),
		sentinelHandler(domain.ErrTransport, http.StatusBadGateway, CodeUpstreamError, false),
	}
	return s
}

// Routes mounts every endpoint on r.
func (s *Server) Routes(r chi.Router) {
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
	r.Get("/collections", s.ListCollections)
	r.Route("/tenants/{tenant}/integrations/{integration}/collections/{collection}", func(r chi.Router) {
		r.Post("/query", s.Query)
		r.Post("/crawl", s.StartCrawl)
		r.Post("/pages", s.ReconcilePage)
		r.Post("/prune", s.PruneMissing)
	})
}

// Wait blocks until background crawls finish.
func (s *Server) Wait() { s.crawls.Wait() }

// ListCollections handles GET /collections.
func (s *Server) ListCollections(w http.ResponseWriter, _ *http.Request) {
	entries := s.registry.Entries()
	items := make([]CollectionInfo, len(entries))
	for i, e := range entries {
		items[i] = collectionInfo(e)
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// Query handles POST .../query.
func (s *Server) Query(w http.ResponseWriter, r *http.Request) {
	tenant, integration, collection := pathParams(r)
	entry, err := s.registry.Get(integration, collection)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	var req QueryRequest
	if !decode(w, r, &req) {
		return
	}
	spec, err := queryFromRequest(req)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	hits, err := s.query.Run(r.Context(), tenant, entry.Schema, spec)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	items := format.Shape(hits, entry.Schema, spec.ReturnProperties())
	writeJSON(w, http.StatusOK, QueryResponse{Items: items, Total: len(items), Limit: spec.Limit()})
}

// StartCrawl handles POST .../crawl. By default the crawl runs in the background and
// its summary is published on completion; ?wait=true runs it inline.
func (s *Server) StartCrawl(w http.ResponseWriter, r *http.Request) {
	tenant, integration, collection := pathParams(r)
	if _, err := s.registry.Get(integration, collection); err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	if r.URL.Query().Get("wait") == "true" {
		sum, err := s.crawler.StartCrawl(r.Context(), tenant, integration, collection)
		if err != nil {
			s.handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, sum)
		return
	}

	// Detached from the request; the request-scoped logger stays in ctx.
	ctx := context.WithoutCancel(r.Context())
	s.crawls.Add(1)
	go func() {
		defer s.crawls.Done()
		// The crawl service logs and publishes its own outcome.
		_, _ = s.crawler.StartCrawl(ctx, tenant, integration, collection)
	}()

	writeJSON(w, http.StatusAccepted, CrawlAccepted{
		Status:      "started",
		Tenant:      tenant,
		Integration: integration,
		Collection:  collection,
	})
}

// ReconcilePage handles POST .../pages.
func (s *Server) ReconcilePage(w http.ResponseWriter, r *http.Request) {
	tenant, integration, collection := pathParams(r)
	var req PageRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := s.crawler.ReconcilePage(r.Context(), tenant, integration, collection, req.Items)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// PruneMissing handles POST .../prune.
func (s *Server) PruneMissing(w http.ResponseWriter, r *http.Request) {
	tenant, integration, collection := pathParams(r)
	var req PruneRequest
	if !decode(w, r, &req) {
		return
	}
	deleted, err := s.crawler.PruneMissing(r.Context(), tenant, integration, collection, req.IDs)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	if deleted == nil {
		deleted = []string{}
	}
	writeJSON(w, http.StatusOK, PruneResponse{Deleted: deleted})
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())
	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}
	writeJSON(w, httpStatus, report)
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func pathParams(r *http.Request) (tenant, integration, collection string) {
	return chi.URLParam(r, "tenant"), chi.URLParam(r, "integration"), chi.URLParam(r, "collection")
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}

// sentinelHandler matches one sentinel. verbose exposes the error text, which for
// validation-style errors describes the caller's own input.
func sentinelHandler(sentinel error, status int, code ErrorCode, verbose bool) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		msg := sentinel.Error()
		if verbose {
			msg = err.Error()
		}
		writeError(w, status, code, msg)
		return true
	}
}

// reconciliationHandler reports the ids whose writes failed so callers can retry them.
func reconciliationHandler(w http.ResponseWriter, err error) bool {
	var re *domain.ReconciliationError
	if !errors.As(err, &re) {
		return false
	}
	writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{
		Code:      CodeReconciliationError,
		Message:   domain.ErrReconciliation.Error(),
		FailedIDs: re.IDs,
	})
	return true
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	logger := logpkg.FromContext(r.Context(), s.logger)
	logger.Warn("domain error", zap.Error(err))
	for _, h := range s.errorHandlers {
		if h(w, err) {
			return
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		writeError(w, http.StatusServiceUnavailable, CodeInternalError, "request cancelled")
		return
	}
	logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}

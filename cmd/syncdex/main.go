package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	natsgo "github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/kailas-cloud/syncdex/internal/config"
	dbRedis "github.com/kailas-cloud/syncdex/internal/db/redis"
	"github.com/kailas-cloud/syncdex/internal/domain"
	logpkg "github.com/kailas-cloud/syncdex/internal/logger"
	"github.com/kailas-cloud/syncdex/internal/metrics"
	"github.com/kailas-cloud/syncdex/internal/pagination"
	"github.com/kailas-cloud/syncdex/internal/registry"
	"github.com/kailas-cloud/syncdex/internal/repository/embcache"
	"github.com/kailas-cloud/syncdex/internal/repository/hashstore"
	"github.com/kailas-cloud/syncdex/internal/repository/index"
	chiTransport "github.com/kailas-cloud/syncdex/internal/transport/chi"
	natsTransport "github.com/kailas-cloud/syncdex/internal/transport/nats"
	openaiEmb "github.com/kailas-cloud/syncdex/internal/transport/openai"
	"github.com/kailas-cloud/syncdex/internal/transport/upstream"
	"github.com/kailas-cloud/syncdex/internal/usecase/crawl"
	healthuc "github.com/kailas-cloud/syncdex/internal/usecase/health"
	"github.com/kailas-cloud/syncdex/internal/usecase/indexer"
	queryuc "github.com/kailas-cloud/syncdex/internal/usecase/query"
	"github.com/kailas-cloud/syncdex/internal/usecase/reconcile"
	"github.com/kailas-cloud/syncdex/internal/version"
)

func main() {
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting syncdex",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("db_driver", cfg.Database.Driver),
		zap.Strings("db_addrs", cfg.Database.Addrs),
		zap.String("hash_store", cfg.Storage.HashStore.Driver),
	)

	domain.KeyPrefix = cfg.Storage.KeyPrefix

	// Redis and Valkey speak the same protocol; one rueidis store serves both.
	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Password: cfg.Database.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Registered explicitly (no init())
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterSyncMetrics()

	// Hash store
	var (
		hashes      reconcile.HashStore
		hashChecker healthuc.Checker
	)
	switch cfg.Storage.HashStore.Driver {
	case "sqlite":
		sq, err := hashstore.OpenSQLite(cfg.Storage.HashStore.Path)
		if err != nil {
			logger.Fatal("Failed to open hash store", zap.Error(err))
		}
		defer func() { _ = sq.Close() }()
		hashes = sq
		hashChecker = healthuc.CheckerFunc(sq.Ping)
	default:
		hashes = hashstore.NewRedis(store)
	}

	// Embedders, one per configured modality
	textEmb, textBase := buildEmbedder("text", cfg.Embedding.Text, cfg.Embedding, false, store, logger)
	imageEmb, imageBase := buildEmbedder("image", cfg.Embedding.Image, cfg.Embedding, true, store, logger)
	embedders := domain.Embedders{Text: textEmb, Image: imageEmb}

	idx := index.New(store, index.Options{
		TextDim:         cfg.Embedding.Text.Dimensions,
		ImageDim:        cfg.Embedding.Image.Dimensions,
		HNSWM:           cfg.Index.HNSWM,
		HNSWEFConstruct: cfg.Index.HNSWEFConstruct,
	})

	// Upstream clients are built up front so a bad base URL fails startup.
	clients := make(map[string]*upstream.Client, len(cfg.Integrations))
	for name, ic := range cfg.Integrations {
		c, err := upstream.New(upstream.Config{
			Name:    name,
			BaseURL: ic.BaseURL,
			Headers: ic.Headers,
			Timeout: time.Duration(cfg.Crawl.RequestTimeoutSec) * time.Second,
			RPS:     cfg.Crawl.RateLimitRPS,
			Burst:   cfg.Crawl.RateLimitBurst,
		}, logger)
		if err != nil {
			logger.Fatal("Invalid integration", zap.String("integration", name), zap.Error(err))
		}
		clients[name] = c
	}
	reg, err := registry.FromConfig(cfg.Integrations, func(name string, _ config.IntegrationConfig) pagination.Requester {
		return clients[name]
	})
	if err != nil {
		logger.Fatal("Invalid collection registry", zap.Error(err))
	}

	// Crawl events
	var (
		pub         crawl.Publisher
		natsChecker healthuc.Checker
		nc          *natsgo.Conn
	)
	if cfg.NATS.URL != "" {
		nc, err = natsTransport.Connect(cfg.NATS.URL, logger)
		if err != nil {
			logger.Fatal("Failed to connect to NATS", zap.Error(err))
		}
		pub = natsTransport.NewPublisher(nc, cfg.NATS.SubjectPrefix, logger)
		natsChecker = healthuc.CheckerFunc(func(context.Context) error {
			if !nc.IsConnected() {
				return fmt.Errorf("nats: %s", nc.Status())
			}
			return nil
		})
	} else {
		pub = natsTransport.NewLogPublisher(logger)
	}

	indexSvc := indexer.New(idx, embedders, cfg.Index.MaxBatchSize, logger)
	for _, e := range reg.Entries() {
		if err := indexSvc.EnsureSchema(ctx, e.Schema); err != nil {
			logger.Fatal("Failed to prepare collection", zap.String("schema", e.Schema.Name()), zap.Error(err))
		}
	}
	logger.Info("Collections registered", zap.Int("count", len(reg.Entries())))

	reconcileSvc := reconcile.New(hashes, logger)
	crawlSvc := crawl.New(reg, reconcileSvc, indexSvc, pub,
		time.Duration(cfg.Crawl.HeartbeatIntervalSec)*time.Second, logger)

	images := upstream.NewImageFetcher(time.Duration(cfg.Query.ImageFetchTimeoutS)*time.Second, cfg.Query.MaxImageBytes, nil)
	querySvc := queryuc.New(idx, embedders, images, cfg.Query.MinScore, logger)

	healthSvc := healthuc.New(store).
		With("hash_store", hashChecker).
		With("embedding_text", embeddingChecker(textBase)).
		With("embedding_image", embeddingChecker(imageBase)).
		With("nats", natsChecker)

	server := chiTransport.NewServer(reg, querySvc, crawlSvc, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	// Background crawls run to completion and publish their summaries.
	server.Wait()

	if nc != nil {
		if err := nc.Drain(); err != nil {
			logger.Warn("NATS drain failed", zap.Error(err))
		}
	}

	logger.Info("Server stopped gracefully")
}

// buildEmbedder assembles one modality's chain: OpenAI -> Cached.
// Returns nil embedders when the modality is not configured. The base is kept for health checks.
func buildEmbedder(
	modality string,
	vecCfg config.VectorizerConfig,
	embCfg config.EmbeddingConfig,
	multimodal bool,
	store *dbRedis.Store,
	logger *zap.Logger,
) (domain.Embedder, *openaiEmb.Embedder) {
	if !vecCfg.Enabled() {
		logger.Info("Embedder disabled", zap.String("modality", modality))
		return nil, nil
	}
	provCfg := embCfg.Providers[vecCfg.Provider]

	base := openaiEmb.NewEmbedder(&openaiEmb.Config{
		APIKey:     provCfg.APIKey,
		BaseURL:    provCfg.BaseURL,
		Model:      vecCfg.Model,
		Dimensions: vecCfg.Dimensions,
		Multimodal: multimodal,
		Provider:   vecCfg.Provider,
		Logger:     logger,
	})
	logger.Info("Embedder created",
		zap.String("modality", modality),
		zap.String("provider", vecCfg.Provider),
		zap.String("model", vecCfg.Model),
		zap.Int("dimensions", vecCfg.Dimensions),
	)

	if !embCfg.Cache {
		return base, base
	}
	namespace := modality + ":" + vecCfg.Model
	return embcache.New(base, store, namespace, metrics.EmbeddingCacheTotal, logger), base
}

// embeddingChecker adapts an embedder to a health check; nil when the modality is disabled.
func embeddingChecker(e *openaiEmb.Embedder) healthuc.Checker {
	if e == nil {
		return nil
	}
	return healthuc.CheckerFunc(func(ctx context.Context) error {
		if err := e.HealthCheck(ctx); err != nil {
			return fmt.Errorf("embedding health check: %w", err)
		}
		return nil
	})
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}

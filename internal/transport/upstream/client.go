// Package upstream performs rate-limited HTTP calls against third-party APIs.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kailas-cloud/syncdex/internal/domain"
	"github.com/kailas-cloud/syncdex/internal/pagination"
)

const (
	defaultTimeout = 30 * time.Second
	// maxErrorBody caps how much of a failed response ends up in the error.
	maxErrorBody = 512
)

// Config holds the settings of one integration's client.
type Config struct {
	Name    string
	BaseURL string
	Headers map[string]string
	Timeout time.Duration
	// RPS <= 0 disables throttling.
	RPS   float64
	Burst int
	// Transport is wrapped with otelhttp; nil means http.DefaultTransport.
	Transport http.RoundTripper
}

// Client implements pagination.Requester for one integration.
type Client struct {
	name    string
	http    *http.Client
	base    *url.URL
	headers map[string]string
	limiter *rate.Limiter
	logger  *zap.Logger
}

var _ pagination.Requester = (*Client)(nil)

// New creates a client. BaseURL must be absolute.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || !base.IsAbs() {
		return nil, domain.NewConfigurationError("base_url", fmt.Sprintf("%q is not an absolute URL", cfg.BaseURL))
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	rt := cfg.Transport
	if rt == nil {
		rt = http.DefaultTransport
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RPS > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RPS), burst)
	}

	return &Client{
		name: cfg.Name,
		http: &http.Client{
			Timeout: timeout,
			Transport: otelhttp.NewTransport(rt,
				otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
					return "upstream " + cfg.Name + " " + r.Method
				}),
			),
		},
		base:    base,
		headers: cfg.Headers,
		limiter: limiter,
		logger:  logger,
	}, nil
}

// Do sends one request and decodes the JSON body.
// Non-2xx replies and network failures return *domain.TransportError.
func (c *Client) Do(ctx context.Context, req pagination.Request) (pagination.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return pagination.Response{}, err
	}

	httpReq, err := c.build(ctx, req)
	if err != nil {
		return pagination.Response{}, &domain.TransportError{Endpoint: req.Endpoint, Err: err}
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return pagination.Response{}, ctxErr
		}
		return pagination.Response{}, &domain.TransportError{Endpoint: req.Endpoint, Err: err}
	}
	defer resp.Body.Close()

	c.logger.Debug("Upstream request",
		zap.String("integration", c.name),
		zap.String("method", httpReq.Method),
		zap.String("endpoint", req.Endpoint),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		cause := errors.New(msg)
		if resp.StatusCode == http.StatusTooManyRequests {
			cause = fmt.Errorf("%w: %s", domain.ErrRateLimited, msg)
		}
		return pagination.Response{}, &domain.TransportError{
			Endpoint:   req.Endpoint,
			StatusCode: resp.StatusCode,
			Err:        cause,
		}
	}

	var data any
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil && !errors.Is(err, io.EOF) {
		return pagination.Response{}, &domain.TransportError{
			Endpoint:   req.Endpoint,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("decode body: %w", err),
		}
	}
	return pagination.Response{Data: data, Headers: resp.Header}, nil
}

// build resolves the endpoint against the base URL. Params are merged into any
// query string the endpoint already carries (link pagination keeps it).
func (c *Client) build(ctx context.Context, req pagination.Request) (*http.Request, error) {
	ref, err := url.Parse(req.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	u := c.resolve(ref)
	u.RawQuery = mergeQuery(u.RawQuery, req.Params)

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encode body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.headers {
		httpReq.Header.Set(k, v)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	return httpReq, nil
}

// resolve prefixes the endpoint with the base path unless it already carries it. Absolute URLs pass through.
func (c *Client) resolve(ref *url.URL) *url.URL {
	if ref.IsAbs() {
		return ref
	}
	u := *c.base
	base := strings.TrimSuffix(c.base.EscapedPath(), "/")
	path := ref.EscapedPath()
	switch {
	case strings.HasPrefix(path, "/") && base != "" && !strings.HasPrefix(path, base+"/"):
		path = base + path
	case !strings.HasPrefix(path, "/"):
		path = base + "/" + path
	}
	if p, err := url.PathUnescape(path); err == nil {
		u.Path = p
		u.RawPath = path
	} else {
		u.Path = path
		u.RawPath = ""
	}
	u.RawQuery = ref.RawQuery
	return &u
}

// mergeQuery overlays params onto a raw query string. Segments of raw that
// params do not override are kept byte for byte and in order, since followed
// links may carry opaque cursors the upstream expects back verbatim.
func mergeQuery(raw string, params map[string]string) string {
	if len(params) == 0 {
		return raw
	}
	var parts []string
	for seg := range strings.SplitSeq(raw, "&") {
		if seg == "" {
			continue
		}
		key, _, _ := strings.Cut(seg, "=")
		if k, err := url.QueryUnescape(key); err == nil {
			if _, ok := params[k]; ok {
				continue
			}
		}
		parts = append(parts, seg)
	}
	extra := url.Values{}
	for k, v := range params {
		extra.Set(k, v)
	}
	parts = append(parts, extra.Encode())
	return strings.Join(parts, "&")
}

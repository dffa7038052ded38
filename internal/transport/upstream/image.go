package upstream

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/kailas-cloud/syncdex/internal/domain"
)

// ImageFetcher downloads query images referenced by URL.
type ImageFetcher struct {
	http     *http.Client
	maxBytes int64
}

// NewImageFetcher creates a fetcher that rejects bodies over maxBytes.
func NewImageFetcher(timeout time.Duration, maxBytes int64, rt http.RoundTripper) *ImageFetcher {
	if rt == nil {
		rt = http.DefaultTransport
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &ImageFetcher{
		http:     &http.Client{Timeout: timeout, Transport: otelhttp.NewTransport(rt)},
		maxBytes: maxBytes,
	}
}

// FetchBase64 returns the image at rawURL base64 encoded.
// A bad URL is an invalid query; a failed download is a transport error.
func (f *ImageFetcher) FetchBase64(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", domain.NewInvalidQuery("image_url %q must be an http(s) URL", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", &domain.TransportError{Endpoint: rawURL, Err: err}
	}
	resp, err := f.http.Do(req)
	if err != nil {
		return "", &domain.TransportError{Endpoint: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &domain.TransportError{Endpoint: rawURL, StatusCode: resp.StatusCode, Err: errors.New("fetch image")}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return "", &domain.TransportError{Endpoint: rawURL, Err: fmt.Errorf("read image: %w", err)}
	}
	if int64(len(data)) > f.maxBytes {
		return "", domain.NewInvalidQuery("image at %s exceeds %d bytes", rawURL, f.maxBytes)
	}
	if len(data) == 0 {
		return "", domain.NewInvalidQuery("image at %s is empty", rawURL)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

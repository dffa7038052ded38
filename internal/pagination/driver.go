package pagination

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/kailas-cloud/syncdex/internal/domain"
)

// Driver walks an upstream API page by page through a Requester.
type Driver struct {
	requester Requester
	logger    *zap.Logger
}

// New creates a pagination driver.
func New(r Requester, logger *zap.Logger) *Driver {
	return &Driver{requester: r, logger: logger}
}

// Pages validates the strategy and returns a lazy sequence of item pages.
// The sequence stops at the first empty page or when the upstream signals no more data;
// a request failure is yielded once as the final element. Every range over the sequence
// starts again from the initial request.
func (d *Driver) Pages(ctx context.Context, s Strategy, initial Request) (iter.Seq2[[]any, error], error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if initial.Endpoint == "" {
		return nil, domain.NewConfigurationError("endpoint", "request endpoint is required")
	}

	var step stepFunc
	switch s.Kind {
	case KindCursor:
		step = d.cursorStep(s)
	case KindLink:
		step = d.linkStep(s)
	case KindOffset:
		step = d.offsetStep(s)
	}

	return func(yield func([]any, error) bool) {
		req := initial
		state := &walkState{}
		if s.Kind == KindOffset {
			req = offsetRequest(s, initial, 0)
		}
		for page := 0; ; page++ {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			next, items, more, err := step(ctx, req, state)
			if err != nil {
				yield(nil, err)
				return
			}
			if len(items) == 0 {
				d.logger.Debug("Pagination finished", zap.String("endpoint", initial.Endpoint), zap.Int("pages", page))
				return
			}
			if !yield(items, nil) {
				return
			}
			if !more {
				d.logger.Debug("Pagination finished", zap.String("endpoint", initial.Endpoint), zap.Int("pages", page+1))
				return
			}
			req = next
		}
	}, nil
}

// stepFunc performs one request and returns the next request when more pages follow.
type stepFunc func(ctx context.Context, req Request, state *walkState) (next Request, items []any, more bool, err error)

// walkState is private to one range over the sequence.
type walkState struct {
	offset int
}

func (d *Driver) fetch(ctx context.Context, s Strategy, req Request) (Response, []any, error) {
	resp, err := d.requester.Do(ctx, req)
	if err != nil {
		var te *domain.TransportError
		if errors.As(err, &te) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Response{}, nil, err
		}
		return Response{}, nil, &domain.TransportError{Endpoint: req.Endpoint, Err: err}
	}
	list, err := items(resp.Data, s.DataPath)
	if err != nil {
		return Response{}, nil, domain.NewConfigurationError("data_path", err.Error())
	}
	return resp, list, nil
}

func (d *Driver) cursorStep(s Strategy) stepFunc {
	return func(ctx context.Context, req Request, _ *walkState) (Request, []any, bool, error) {
		resp, list, err := d.fetch(ctx, s, req)
		if err != nil || len(list) == 0 {
			return Request{}, list, false, err
		}
		v, _ := Lookup(resp.Data, s.CursorPath)
		cursor := scalar(v)
		if cursor == "" {
			return Request{}, list, false, nil
		}
		return req.WithParam(s.CursorParam, cursor), list, true, nil
	}
}

func (d *Driver) linkStep(s Strategy) stepFunc {
	return func(ctx context.Context, req Request, _ *walkState) (Request, []any, bool, error) {
		resp, list, err := d.fetch(ctx, s, req)
		if err != nil || len(list) == 0 {
			return Request{}, list, false, err
		}

		var pointer string
		if s.NextLinkPath != "" {
			v, _ := Lookup(resp.Data, s.NextLinkPath)
			pointer = scalar(v)
		} else {
			pointer = parseLink(resp.Headers.Get("Link"), s.linkRel())
		}
		if pointer == "" {
			return Request{}, list, false, nil
		}

		endpoint, err := followLink(pointer)
		if err != nil {
			return Request{}, nil, false, &domain.TransportError{Endpoint: req.Endpoint, Err: err}
		}
		next := req
		next.Endpoint = endpoint
		next.Params = nil
		return next, list, true, nil
	}
}

// followLink keeps a relative pointer verbatim and reduces an absolute URL to path and query.
func followLink(pointer string) (string, error) {
	u, err := url.Parse(pointer)
	if err != nil {
		return "", fmt.Errorf("parse next link %q: %w", pointer, err)
	}
	if !u.IsAbs() {
		return pointer, nil
	}
	if u.RawQuery == "" {
		return u.EscapedPath(), nil
	}
	return u.EscapedPath() + "?" + u.RawQuery, nil
}

func (d *Driver) offsetStep(s Strategy) stepFunc {
	return func(ctx context.Context, req Request, st *walkState) (Request, []any, bool, error) {
		_, list, err := d.fetch(ctx, s, req)
		if err != nil || len(list) == 0 {
			return Request{}, list, false, err
		}
		if s.PageSize > 0 && len(list) < s.PageSize {
			return Request{}, list, false, nil
		}
		st.offset += len(list)
		return offsetRequest(s, req, st.offset), list, true, nil
	}
}

func offsetRequest(s Strategy, base Request, offset int) Request {
	req := base.WithParam(s.OffsetParam, strconv.Itoa(offset))
	if s.LimitParam != "" {
		req = req.WithParam(s.LimitParam, strconv.Itoa(s.PageSize))
	}
	return req
}

// Package pagination walks paginated upstream APIs to exhaustion.
package pagination

import (
	"context"
	"maps"
	"net/http"

	"github.com/kailas-cloud/syncdex/internal/domain"
)

// Kind selects how the next page is addressed.
type Kind string

// Supported pagination kinds.
const (
	KindCursor Kind = "cursor"
	KindLink   Kind = "link"
	KindOffset Kind = "offset"
)

// DefaultLinkRel is the Link header relation followed when none is configured.
const DefaultLinkRel = "next"

// Strategy describes how one upstream endpoint paginates.
// Response paths are dotted ("data.items", "meta.next_cursor"); an empty path is the body itself.
type Strategy struct {
	Kind     Kind   `yaml:"kind"`
	DataPath string `yaml:"data_path"`

	// cursor
	CursorParam string `yaml:"cursor_param"`
	CursorPath  string `yaml:"cursor_path"`

	// link: either a Link header relation or a body path
	LinkRel      string `yaml:"link_rel"`
	NextLinkPath string `yaml:"next_link_path"`

	// offset
	OffsetParam string `yaml:"offset_param"`
	LimitParam  string `yaml:"limit_param"`
	PageSize    int    `yaml:"page_size"`
}

// Validate checks that the strategy carries every field its kind requires.
func (s Strategy) Validate() error {
	switch s.Kind {
	case KindCursor:
		if s.CursorParam == "" {
			return domain.NewConfigurationError("cursor_param", "cursor pagination requires the request cursor parameter")
		}
		if s.CursorPath == "" {
			return domain.NewConfigurationError("cursor_path", "cursor pagination requires the response cursor path")
		}
	case KindLink:
		// header relation defaults to "next"; nothing else is required
	case KindOffset:
		if s.OffsetParam == "" {
			return domain.NewConfigurationError("offset_param", "offset pagination requires the request offset parameter")
		}
		if s.PageSize < 0 {
			return domain.NewConfigurationError("page_size", "page size must not be negative")
		}
		if s.LimitParam != "" && s.PageSize == 0 {
			return domain.NewConfigurationError("page_size", "limit_param requires a positive page_size")
		}
	default:
		return domain.NewConfigurationError("kind", "unknown pagination kind "+string(s.Kind))
	}
	return nil
}

func (s Strategy) linkRel() string {
	if s.LinkRel == "" {
		return DefaultLinkRel
	}
	return s.LinkRel
}

// Request is one upstream call. Each pagination step builds a fresh value.
type Request struct {
	Method   string            `yaml:"method"`
	Endpoint string            `yaml:"endpoint"`
	Params   map[string]string `yaml:"params"`
	Headers  map[string]string `yaml:"headers"`
	Body     any               `yaml:"body"`
}

// WithParam returns a copy of r with one query parameter set.
func (r Request) WithParam(key, value string) Request {
	params := maps.Clone(r.Params)
	if params == nil {
		params = make(map[string]string, 1)
	}
	params[key] = value
	r.Params = params
	return r
}

// Response is the decoded upstream reply.
type Response struct {
	// Data is the JSON-decoded body.
	Data    any
	Headers http.Header
}

// Requester performs authenticated upstream calls.
type Requester interface {
	Do(ctx context.Context, req Request) (Response, error)
}

// RequesterFunc adapts a function to Requester.
type RequesterFunc func(ctx context.Context, req Request) (Response, error)

// Do calls f.
func (f RequesterFunc) Do(ctx context.Context, req Request) (Response, error) { return f(ctx, req) }

package query

import (
	"github.com/kailas-cloud/syncdex/internal/domain"
	"github.com/kailas-cloud/syncdex/internal/domain/search/filter"
)

// Type is the retrieval strategy.
type Type string

// Query type constants.
const (
	Keyword Type = "keyword"
	Vector  Type = "vector"
	// Hybrid blends keyword and vector results by Alpha.
	Hybrid Type = "hybrid"
	// Image embeds an image through the multimodal model and searches multimodal fields only.
	Image Type = "image"
)

// IsValid checks if the type is one of the supported values.
func (t Type) IsValid() bool {
	return t == Keyword || t == Vector || t == Hybrid || t == Image
}

// Query parameter limits.
const (
	MaxQueryLength = 4096
	DefaultLimit   = 10
	MaxLimit       = 100
	DefaultAlpha   = 0.5
)

// Params is the raw, unvalidated query input.
type Params struct {
	Text             string
	Type             Type
	Image            string // base64
	ImageURL         string
	Filter           filter.Expression
	Limit            int
	Alpha            *float64
	ReturnProperties []string
}

// Spec is a validated query. Transient, built per request.
type Spec struct {
	text             string
	queryType        Type
	image            string
	imageURL         string
	filter           filter.Expression
	limit            int
	alpha            float64
	returnProperties []string
}

// New validates params and applies defaults: type=hybrid, limit=10 (max 100), alpha=0.5.
func New(p Params) (Spec, error) {
	t := p.Type
	if t == "" {
		t = Hybrid
	}
	if !t.IsValid() {
		return Spec{}, domain.NewInvalidQuery("invalid query type %q", t)
	}
	if len(p.Text) > MaxQueryLength {
		return Spec{}, domain.NewInvalidQuery("query too long (max %d chars)", MaxQueryLength)
	}
	switch t {
	case Image:
		if p.Image == "" && p.ImageURL == "" {
			return Spec{}, domain.NewInvalidQuery("image or image_url is required for %s query", t)
		}
	default:
		if p.Text == "" {
			return Spec{}, domain.NewInvalidQuery("query is required for %s query", t)
		}
	}

	alpha := DefaultAlpha
	if p.Alpha != nil {
		alpha = *p.Alpha
	}
	if alpha < 0 || alpha > 1 {
		return Spec{}, domain.NewInvalidQuery("alpha must be between 0 and 1")
	}

	limit := p.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	limit = min(limit, MaxLimit)

	return Spec{
		text:             p.Text,
		queryType:        t,
		image:            p.Image,
		imageURL:         p.ImageURL,
		filter:           p.Filter,
		limit:            limit,
		alpha:            alpha,
		returnProperties: p.ReturnProperties,
	}, nil
}

// Text returns the query text.
func (s Spec) Text() string { return s.text }

// Type returns the query type.
func (s Spec) Type() Type { return s.queryType }

// Image returns the base64 image payload.
func (s Spec) Image() string { return s.image }

// ImageURL returns the image location to fetch when no payload is given.
func (s Spec) ImageURL() string { return s.imageURL }

// Filter returns the structured filter.
func (s Spec) Filter() filter.Expression { return s.filter }

// Limit returns the max number of top-level (and per nested array) hits.
func (s Spec) Limit() int { return s.limit }

// Alpha returns the hybrid vector weight.
func (s Spec) Alpha() float64 { return s.alpha }

// ReturnProperties returns the explicit allow-list, nil when absent.
func (s Spec) ReturnProperties() []string { return s.returnProperties }

// WithImage returns a copy carrying a resolved base64 image.
func (s Spec) WithImage(b64 string) Spec {
	s.image = b64
	return s
}

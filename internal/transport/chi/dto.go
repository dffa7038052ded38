package chi

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/kailas-cloud/syncdex/internal/domain"
	"github.com/kailas-cloud/syncdex/internal/domain/schema"
	"github.com/kailas-cloud/syncdex/internal/domain/search/filter"
	"github.com/kailas-cloud/syncdex/internal/domain/search/query"
	"github.com/kailas-cloud/syncdex/internal/registry"
	"github.com/kailas-cloud/syncdex/internal/usecase/format"
)

// ErrorCode is the machine-readable error code in error responses.
type ErrorCode string

// Error codes.
const (
	CodeBadRequest          ErrorCode = "bad_request"
	CodeValidationFailed    ErrorCode = "validation_failed"
	CodeCollectionNotFound  ErrorCode = "collection_not_found"
	CodeUnsupportedQuery    ErrorCode = "unsupported_query"
	CodeConfigurationError  ErrorCode = "configuration_error"
	CodeUpstreamError       ErrorCode = "upstream_error"
	CodeReconciliationError ErrorCode = "reconciliation_failed"
	CodeRateLimited         ErrorCode = "rate_limited"
	CodeEmbeddingError      ErrorCode = "embedding_provider_error"
	CodeInternalError       ErrorCode = "internal_error"
)

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	FailedIDs []string  `json:"failed_ids,omitempty"`
}

// QueryRequest is the body of POST .../query.
type QueryRequest struct {
	Query            string            `json:"query"`
	Type             string            `json:"type,omitempty"`
	Image            string            `json:"image,omitempty"`
	ImageURL         string            `json:"image_url,omitempty"`
	Filter           *FilterExpression `json:"filter,omitempty"`
	Limit            *int              `json:"limit,omitempty"`
	Alpha            *float64          `json:"alpha,omitempty"`
	ReturnProperties []string          `json:"return_properties,omitempty"`
}

// FilterExpression is the wire form of filter.Expression.
type FilterExpression struct {
	Must    []FilterCondition `json:"must,omitempty"`
	Should  []FilterCondition `json:"should,omitempty"`
	MustNot []FilterCondition `json:"must_not,omitempty"`
}

// FilterCondition carries either match (string, number or boolean) or range.
type FilterCondition struct {
	Key   string       `json:"key"`
	Match any          `json:"match,omitempty"`
	Range *RangeFilter `json:"range,omitempty"`
}

// RangeFilter bounds a numeric or date field.
type RangeFilter struct {
	GT  *float64 `json:"gt,omitempty"`
	GTE *float64 `json:"gte,omitempty"`
	LT  *float64 `json:"lt,omitempty"`
	LTE *float64 `json:"lte,omitempty"`
}

// QueryResponse is the body of a successful query.
type QueryResponse struct {
	Items []format.Result `json:"items"`
	Total int             `json:"total"`
	Limit int             `json:"limit"`
}

// PageRequest is the body of POST .../pages.
type PageRequest struct {
	Items []any `json:"items"`
}

// PruneRequest is the body of POST .../prune.
type PruneRequest struct {
	IDs []string `json:"ids"`
}

// PruneResponse lists the deleted ids.
type PruneResponse struct {
	Deleted []string `json:"deleted"`
}

// CrawlAccepted acknowledges an asynchronous crawl.
type CrawlAccepted struct {
	Status      string `json:"status"`
	Tenant      string `json:"tenant"`
	Integration string `json:"integration"`
	Collection  string `json:"collection"`
}

// CollectionInfo describes one registered collection.
type CollectionInfo struct {
	Integration string      `json:"integration"`
	Collection  string      `json:"collection"`
	Schema      string      `json:"schema"`
	Description string      `json:"description,omitempty"`
	IDField     string      `json:"id_field"`
	Fields      []FieldInfo `json:"fields"`
}

// FieldInfo describes one schema field.
type FieldInfo struct {
	Name              string      `json:"name"`
	Type              schema.Type `json:"type"`
	Format            string      `json:"format,omitempty"`
	Filterable        bool        `json:"filterable,omitempty"`
	KeywordSearchable bool        `json:"keyword_searchable,omitempty"`
	PartialMatch      bool        `json:"partial_match,omitempty"`
	VectorSearchable  bool        `json:"vector_searchable,omitempty"`
	Multimodal        bool        `json:"multimodal,omitempty"`
	ReturnByDefault   bool        `json:"return_by_default"`
	Fields            []FieldInfo `json:"fields,omitempty"`
}

func queryFromRequest(req QueryRequest) (query.Spec, error) {
	expr, err := filterFromRequest(req.Filter)
	if err != nil {
		return query.Spec{}, domain.NewInvalidQuery("filter: %v", err)
	}
	if req.Limit != nil && (*req.Limit <= 0 || *req.Limit > query.MaxLimit) {
		return query.Spec{}, domain.NewInvalidQuery("limit must be between 1 and %d", query.MaxLimit)
	}
	limit := 0
	if req.Limit != nil {
		limit = *req.Limit
	}
	return query.New(query.Params{
		Text:             req.Query,
		Type:             query.Type(req.Type),
		Image:            req.Image,
		ImageURL:         req.ImageURL,
		Filter:           expr,
		Limit:            limit,
		Alpha:            req.Alpha,
		ReturnProperties: req.ReturnProperties,
	})
}

func filterFromRequest(f *FilterExpression) (filter.Expression, error) {
	if f == nil {
		return filter.Expression{}, nil
	}
	must, err := conditionsFromRequest(f.Must)
	if err != nil {
		return filter.Expression{}, err
	}
	should, err := conditionsFromRequest(f.Should)
	if err != nil {
		return filter.Expression{}, err
	}
	mustNot, err := conditionsFromRequest(f.MustNot)
	if err != nil {
		return filter.Expression{}, err
	}
	return filter.NewExpression(must, should, mustNot)
}

func conditionsFromRequest(cs []FilterCondition) ([]filter.Condition, error) {
	out := make([]filter.Condition, 0, len(cs))
	for _, c := range cs {
		cond, err := conditionFromRequest(c)
		if err != nil {
			return nil, err
		}
		out = append(out, cond)
	}
	return out, nil
}

func conditionFromRequest(c FilterCondition) (filter.Condition, error) {
	if c.Match != nil && c.Range != nil {
		return filter.Condition{}, fmt.Errorf("filter condition for %q must have match or range, not both", c.Key)
	}
	if c.Match != nil {
		v, err := matchValue(c.Match)
		if err != nil {
			return filter.Condition{}, fmt.Errorf("filter condition for %q: %w", c.Key, err)
		}
		return filter.NewMatch(c.Key, v)
	}
	if c.Range != nil {
		rf, err := filter.NewRangeFilter(c.Range.GT, c.Range.GTE, c.Range.LT, c.Range.LTE)
		if err != nil {
			return filter.Condition{}, fmt.Errorf("range filter: %w", err)
		}
		return filter.NewRange(c.Key, rf)
	}
	return filter.Condition{}, errors.New("filter condition must have either match or range")
}

// matchValue renders a JSON scalar as the tag value stored in the index.
func matchValue(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case bool:
		return strconv.FormatBool(t), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	default:
		return "", fmt.Errorf("match value must be a string, number or boolean, got %T", v)
	}
}

func collectionInfo(e registry.Entry) CollectionInfo {
	return CollectionInfo{
		Integration: e.Integration,
		Collection:  e.Collection,
		Schema:      e.Schema.Name(),
		Description: e.Schema.Description(),
		IDField:     e.Schema.IDField(),
		Fields:      fieldInfos(e.Schema.Fields()),
	}
}

// fieldInfos lists the visible fields; hidden fields are not advertised.
func fieldInfos(fields []schema.Field) []FieldInfo {
	out := make([]FieldInfo, 0, len(fields))
	for _, f := range fields {
		if f.Hidden() {
			continue
		}
		out = append(out, FieldInfo{
			Name:              f.Name(),
			Type:              f.FieldType(),
			Format:            f.Format(),
			Filterable:        f.Filterable(),
			KeywordSearchable: f.KeywordSearchable(),
			PartialMatch:      f.PartialMatch(),
			VectorSearchable:  f.VectorSearchable(),
			Multimodal:        f.Multimodal(),
			ReturnByDefault:   f.ReturnByDefault(),
			Fields:            fieldInfos(f.Children()),
		})
	}
	return out
}

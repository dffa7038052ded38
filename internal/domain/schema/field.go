package schema

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/kailas-cloud/syncdex/internal/domain"
)

// Type is the declared value type of a field.
type Type string

// Field type constants.
const (
	String  Type = "string"
	Number  Type = "number"
	Integer Type = "integer"
	Boolean Type = "boolean"
	Date    Type = "date"
	Object  Type = "object"
	Array   Type = "array"
	// Nested holds an object or array of objects with its own child fields.
	Nested Type = "nested"
)

// IsValid checks if the type is one of the supported values.
func (t Type) IsValid() bool {
	switch t {
	case String, Number, Integer, Boolean, Date, Object, Array, Nested:
		return true
	}
	return false
}

// IsNumeric reports whether values of this type are indexed as numbers.
func (t Type) IsNumeric() bool {
	return t == Number || t == Integer || t == Date
}

var fieldNameRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

// Options carries the optional flags of a field.
// ReturnByDefault is a pointer so an unset value defaults to true.
type Options struct {
	Format            string
	Filterable        bool
	KeywordSearchable bool
	PartialMatch      bool
	VectorSearchable  bool
	Multimodal        bool
	Hidden            bool
	ReturnByDefault   *bool
	Children          []Field
}

// Field is an immutable value object describing one schema field.
type Field struct {
	name              string
	fieldType         Type
	format            string
	filterable        bool
	keywordSearchable bool
	partialMatch      bool
	vectorSearchable  bool
	multimodal        bool
	hidden            bool
	returnByDefault   bool
	children          []Field
}

// NewField validates and creates a Field.
// Multimodal implies vector searchable. Keyword and partial matching apply to string and array fields only.
// Nested requires children, and children may not nest further.
func NewField(name string, ft Type, opts Options) (Field, error) {
	if !fieldNameRegex.MatchString(name) {
		return Field{}, domain.NewConfigurationError(name, "field name must match "+fieldNameRegex.String())
	}
	if strings.Contains(name, "__") {
		return Field{}, domain.NewConfigurationError(name, "field name may not contain \"__\"")
	}
	if !ft.IsValid() {
		return Field{}, domain.NewConfigurationError(name, fmt.Sprintf("invalid field type %q", ft))
	}
	if (opts.KeywordSearchable || opts.PartialMatch) && ft != String && ft != Array {
		return Field{}, domain.NewConfigurationError(name, fmt.Sprintf("keyword_searchable and partial_match require a string or array field, got %s", ft))
	}
	if opts.Multimodal && !opts.VectorSearchable {
		return Field{}, domain.NewConfigurationError(name, "multimodal requires vector_searchable")
	}
	if ft == Nested {
		if len(opts.Children) == 0 {
			return Field{}, domain.NewConfigurationError(name, "nested field requires children")
		}
		if err := validateUnique(opts.Children); err != nil {
			return Field{}, domain.NewConfigurationError(name, err.Error())
		}
		for _, c := range opts.Children {
			if c.fieldType == Nested {
				return Field{}, domain.NewConfigurationError(name+"."+c.name, "nested fields may not contain nested fields")
			}
		}
	} else if len(opts.Children) > 0 {
		return Field{}, domain.NewConfigurationError(name, "only nested fields may declare children")
	}

	returnByDefault := true
	if opts.ReturnByDefault != nil {
		returnByDefault = *opts.ReturnByDefault
	}

	children := make([]Field, len(opts.Children))
	copy(children, opts.Children)

	return Field{
		name:              name,
		fieldType:         ft,
		format:            opts.Format,
		filterable:        opts.Filterable,
		keywordSearchable: opts.KeywordSearchable,
		partialMatch:      opts.PartialMatch,
		vectorSearchable:  opts.VectorSearchable,
		multimodal:        opts.Multimodal,
		hidden:            opts.Hidden,
		returnByDefault:   returnByDefault,
		children:          children,
	}, nil
}

// Name returns the field name.
func (f Field) Name() string { return f.name }

// FieldType returns the declared value type.
func (f Field) FieldType() Type { return f.fieldType }

// Format returns the optional format hint (e.g. "uri", "date-time").
func (f Field) Format() string { return f.format }

// Filterable reports whether the field is usable in structured filters.
func (f Field) Filterable() bool { return f.filterable }

// KeywordSearchable reports whether the field takes part in full-text matching.
func (f Field) KeywordSearchable() bool { return f.keywordSearchable }

// PartialMatch reports whether keyword matching uses substring semantics.
func (f Field) PartialMatch() bool { return f.partialMatch }

// VectorSearchable reports whether the field is embedded.
func (f Field) VectorSearchable() bool { return f.vectorSearchable }

// Multimodal reports whether the field is embedded as an image.
func (f Field) Multimodal() bool { return f.multimodal }

// Hidden reports whether the field is never returned.
func (f Field) Hidden() bool { return f.hidden }

// ReturnByDefault reports whether the field is returned without an explicit request.
func (f Field) ReturnByDefault() bool { return f.returnByDefault }

// IsNested reports whether the field holds nested child documents.
func (f Field) IsNested() bool { return f.fieldType == Nested }

// Children returns the nested child fields.
func (f Field) Children() []Field { return f.children }

// Child returns the nested child with the given name.
func (f Field) Child(name string) (Field, bool) {
	for _, c := range f.children {
		if c.name == name {
			return c, true
		}
	}
	return Field{}, false
}

// Modality returns the embedding modality for a vector field.
func (f Field) Modality() domain.Modality {
	if f.multimodal {
		return domain.ModalityImage
	}
	return domain.ModalityText
}

func validateUnique(fields []Field) error {
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if seen[f.name] {
			return fmt.Errorf("duplicate field name: %s", f.name)
		}
		seen[f.name] = true
	}
	return nil
}

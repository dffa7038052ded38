package schema

import (
	"fmt"
	"regexp"

	"github.com/kailas-cloud/syncdex/internal/domain"
)

// DefaultIDField is the record attribute holding the external id.
const DefaultIDField = "id"

var nameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Collection is the immutable schema of one logical document type.
type Collection struct {
	name        string
	description string
	idField     string
	fields      []Field
}

// New validates and creates a Collection.
// Name: ^[a-zA-Z0-9_-]+$, 1-64 chars. Fields: unique names, at least one.
func New(name, description, idField string, fields []Field) (Collection, error) {
	if name == "" || len(name) > 64 || !nameRegex.MatchString(name) {
		return Collection{}, domain.NewConfigurationError("name",
			fmt.Sprintf("collection name %q must be 1-64 alphanumeric, underscore or hyphen chars", name))
	}
	if len(fields) == 0 {
		return Collection{}, domain.NewConfigurationError(name, "at least one field is required")
	}
	if err := validateUnique(fields); err != nil {
		return Collection{}, domain.NewConfigurationError(name, err.Error())
	}
	if idField == "" {
		idField = DefaultIDField
	}

	cp := make([]Field, len(fields))
	copy(cp, fields)

	return Collection{name: name, description: description, idField: idField, fields: cp}, nil
}

// Name returns the collection name.
func (c Collection) Name() string { return c.name }

// Description returns the human-readable description.
func (c Collection) Description() string { return c.description }

// IDField returns the record attribute holding the external id.
func (c Collection) IDField() string { return c.idField }

// Fields returns the ordered field list.
func (c Collection) Fields() []Field { return c.fields }

// Field returns the top-level field with the given name.
func (c Collection) Field(name string) (Field, bool) {
	for _, f := range c.fields {
		if f.name == name {
			return f, true
		}
	}
	return Field{}, false
}

// KeywordFields returns top-level keyword-searchable fields.
func (c Collection) KeywordFields() []Field {
	var out []Field
	for _, f := range c.fields {
		if f.keywordSearchable && !f.IsNested() {
			out = append(out, f)
		}
	}
	return out
}

// VectorFields returns top-level vector fields of the given modality.
func (c Collection) VectorFields(m domain.Modality) []Field {
	var out []Field
	for _, f := range c.fields {
		if f.vectorSearchable && !f.IsNested() && f.Modality() == m {
			out = append(out, f)
		}
	}
	return out
}

// NestedFields returns the nested fields.
func (c Collection) NestedFields() []Field {
	var out []Field
	for _, f := range c.fields {
		if f.IsNested() {
			out = append(out, f)
		}
	}
	return out
}

// FilterableFields returns top-level filterable fields.
func (c Collection) FilterableFields() []Field {
	var out []Field
	for _, f := range c.fields {
		if f.filterable && !f.IsNested() {
			out = append(out, f)
		}
	}
	return out
}

// HasVectorFields reports whether any field (including nested children) of modality m is embedded.
func (c Collection) HasVectorFields(m domain.Modality) bool {
	for _, f := range c.fields {
		if f.IsNested() {
			for _, ch := range f.children {
				if ch.vectorSearchable && ch.Modality() == m {
					return true
				}
			}
			continue
		}
		if f.vectorSearchable && f.Modality() == m {
			return true
		}
	}
	return false
}

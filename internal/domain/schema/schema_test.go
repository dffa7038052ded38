package schema

import (
	"errors"
	"testing"

	"github.com/kailas-cloud/syncdex/internal/domain"
)

func boolPtr(b bool) *bool { return &b }

func mustField(t *testing.T, name string, ft Type, opts Options) Field {
	t.Helper()
	f, err := NewField(name, ft, opts)
	if err != nil {
		t.Fatalf("NewField(%q): %v", name, err)
	}
	return f
}

func TestNewField_Defaults(t *testing.T) {
	f := mustField(t, "title", String, Options{KeywordSearchable: true})
	if !f.ReturnByDefault() {
		t.Error("expected return_by_default to default to true")
	}
	if f.Hidden() || f.Filterable() || f.VectorSearchable() {
		t.Error("unexpected flags set")
	}
	if f.Modality() != domain.ModalityText {
		t.Errorf("Modality() = %q", f.Modality())
	}
}

func TestNewField_ReturnByDefaultFalse(t *testing.T) {
	f := mustField(t, "body", String, Options{ReturnByDefault: boolPtr(false)})
	if f.ReturnByDefault() {
		t.Error("expected return_by_default=false")
	}
}

func TestNewField_Invalid(t *testing.T) {
	child := mustField(t, "inner", String, Options{})
	nested := mustField(t, "deep", Nested, Options{Children: []Field{child}})

	tests := []struct {
		name  string
		fname string
		ft    Type
		opts  Options
	}{
		{"empty name", "", String, Options{}},
		{"bad chars", "a-b", String, Options{}},
		{"double underscore", "a__b", String, Options{}},
		{"bad type", "x", Type("blob"), Options{}},
		{"multimodal without vector", "img", String, Options{Multimodal: true}},
		{"nested without children", "items", Nested, Options{}},
		{"children on scalar", "x", String, Options{Children: []Field{child}}},
		{"nested in nested", "items", Nested, Options{Children: []Field{nested}}},
		{"duplicate children", "items", Nested, Options{Children: []Field{child, child}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewField(tt.fname, tt.ft, tt.opts)
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, domain.ErrConfiguration) {
				t.Errorf("expected ErrConfiguration, got %v", err)
			}
		})
	}
}

func TestNewField_TextMatchingRequiresStringOrArray(t *testing.T) {
	for _, ft := range []Type{Integer, Number, Date, Boolean, Object} {
		for _, opts := range []Options{{KeywordSearchable: true}, {PartialMatch: true}} {
			_, err := NewField("x", ft, opts)
			if !errors.Is(err, domain.ErrConfiguration) {
				t.Errorf("%s %+v: expected ErrConfiguration, got %v", ft, opts, err)
			}
		}
	}
	for _, ft := range []Type{String, Array} {
		f := mustField(t, "x", ft, Options{KeywordSearchable: true, PartialMatch: true})
		if !f.KeywordSearchable() || !f.PartialMatch() {
			t.Errorf("%s: flags not kept", ft)
		}
	}
}

func TestCollection_Accessors(t *testing.T) {
	title := mustField(t, "title", String, Options{KeywordSearchable: true, Filterable: true, VectorSearchable: true})
	thumb := mustField(t, "thumbnail", String, Options{VectorSearchable: true, Multimodal: true})
	size := mustField(t, "size", Integer, Options{Filterable: true})
	cname := mustField(t, "text", String, Options{KeywordSearchable: true})
	comments := mustField(t, "comments", Nested, Options{Children: []Field{cname}})

	c, err := New("files", "Drive files", "", []Field{title, thumb, size, comments})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.IDField() != DefaultIDField {
		t.Errorf("IDField() = %q", c.IDField())
	}
	if got := len(c.KeywordFields()); got != 1 {
		t.Errorf("KeywordFields = %d, want 1", got)
	}
	if got := c.VectorFields(domain.ModalityText); len(got) != 1 || got[0].Name() != "title" {
		t.Errorf("text VectorFields = %v", got)
	}
	if got := c.VectorFields(domain.ModalityImage); len(got) != 1 || got[0].Name() != "thumbnail" {
		t.Errorf("image VectorFields = %v", got)
	}
	if got := len(c.FilterableFields()); got != 2 {
		t.Errorf("FilterableFields = %d, want 2", got)
	}
	if got := len(c.NestedFields()); got != 1 {
		t.Errorf("NestedFields = %d, want 1", got)
	}
	if _, ok := c.Field("size"); !ok {
		t.Error("expected size field")
	}
	if _, ok := comments.Child("text"); !ok {
		t.Error("expected nested child text")
	}
}

func TestCollection_HasVectorFields_Nested(t *testing.T) {
	img := mustField(t, "url", String, Options{VectorSearchable: true, Multimodal: true})
	att := mustField(t, "attachments", Nested, Options{Children: []Field{img}})
	c, err := New("mails", "", "", []Field{att})
	if err != nil {
		t.Fatal(err)
	}
	if !c.HasVectorFields(domain.ModalityImage) {
		t.Error("expected nested multimodal field to count")
	}
	if c.HasVectorFields(domain.ModalityText) {
		t.Error("expected no text vector fields")
	}
}

func TestNew_Invalid(t *testing.T) {
	f := mustField(t, "a", String, Options{})
	if _, err := New("", "", "", []Field{f}); err == nil {
		t.Error("expected error for empty name")
	}
	if _, err := New("bad name", "", "", []Field{f}); err == nil {
		t.Error("expected error for bad name")
	}
	if _, err := New("c", "", "", nil); err == nil {
		t.Error("expected error for no fields")
	}
	if _, err := New("c", "", "", []Field{f, f}); err == nil {
		t.Error("expected error for duplicate fields")
	}
}

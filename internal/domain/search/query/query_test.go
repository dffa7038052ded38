package query

import (
	"errors"
	"testing"

	"github.com/kailas-cloud/syncdex/internal/domain"
)

func floatPtr(f float64) *float64 { return &f }

func TestNew_Defaults(t *testing.T) {
	s, err := New(Params{Text: "hello"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Type() != Hybrid {
		t.Errorf("Type() = %q, want hybrid", s.Type())
	}
	if s.Limit() != DefaultLimit {
		t.Errorf("Limit() = %d", s.Limit())
	}
	if s.Alpha() != DefaultAlpha {
		t.Errorf("Alpha() = %v", s.Alpha())
	}
}

func TestNew_LimitClamped(t *testing.T) {
	s, err := New(Params{Text: "x", Type: Keyword, Limit: 1000})
	if err != nil {
		t.Fatal(err)
	}
	if s.Limit() != MaxLimit {
		t.Errorf("Limit() = %d, want %d", s.Limit(), MaxLimit)
	}
}

func TestNew_ZeroAlphaKept(t *testing.T) {
	s, err := New(Params{Text: "x", Alpha: floatPtr(0)})
	if err != nil {
		t.Fatal(err)
	}
	if s.Alpha() != 0 {
		t.Errorf("Alpha() = %v, want 0", s.Alpha())
	}
}

func TestNew_Invalid(t *testing.T) {
	tests := []struct {
		name string
		p    Params
	}{
		{"bad type", Params{Text: "x", Type: "semantic"}},
		{"missing text keyword", Params{Type: Keyword}},
		{"missing text vector", Params{Type: Vector}},
		{"missing text hybrid", Params{Type: Hybrid}},
		{"missing image", Params{Type: Image, Text: "ignored"}},
		{"alpha high", Params{Text: "x", Alpha: floatPtr(1.5)}},
		{"alpha low", Params{Text: "x", Alpha: floatPtr(-0.1)}},
		{"too long", Params{Text: string(make([]byte, MaxQueryLength+1))}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.p)
			if !errors.Is(err, domain.ErrInvalidQuery) {
				t.Errorf("expected ErrInvalidQuery, got %v", err)
			}
		})
	}
}

func TestNew_ImageByURL(t *testing.T) {
	s, err := New(Params{Type: Image, ImageURL: "https://example.com/a.png"})
	if err != nil {
		t.Fatal(err)
	}
	if s.Image() != "" {
		t.Error("expected empty image before resolution")
	}
	s = s.WithImage("aGk=")
	if s.Image() != "aGk=" {
		t.Errorf("Image() = %q", s.Image())
	}
}

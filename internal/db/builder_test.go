package db

import (
	"strings"
	"testing"
)

func TestIndexBuilder_JSON(t *testing.T) {
	idx, err := NewIndex("syncdex:idx:files").
		Prefix("syncdex:doc:files:").
		Tag("$.__tenant", "__tenant").
		Text("$.name", "name").
		Tag("$.__f.name", "name__exact").
		Numeric("$.__f.size", "size").
		Build()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if idx.StorageType != StorageJSON {
		t.Errorf("storage = %q, want JSON", idx.StorageType)
	}
	if len(idx.Fields) != 4 {
		t.Fatalf("fields count = %d, want 4", len(idx.Fields))
	}
	if idx.Fields[1].Name != "$.name" || idx.Fields[1].Alias != "name" || idx.Fields[1].Type != IndexFieldText {
		t.Errorf("field[1] = %+v, want $.name AS name TEXT", idx.Fields[1])
	}
}

func TestIndexBuilder_OnHash(t *testing.T) {
	idx, err := NewIndex("h").OnHash().Tag("t", "").Build()
	if err != nil {
		t.Fatal(err)
	}
	if idx.StorageType != StorageHash {
		t.Errorf("storage = %q, want HASH", idx.StorageType)
	}
}

func TestIndexBuilder_VectorHNSW(t *testing.T) {
	idx, err := NewIndex("hnsw-idx").
		VectorHNSW("$.__vectors.summary", "summary__vector", 768, DistanceCosine, 16, 200).
		Build()
	if err != nil {
		t.Fatal(err)
	}
	f := idx.Fields[0]
	if f.VectorAlgo != VectorHNSW || f.VectorDim != 768 || f.VectorDistance != DistanceCosine {
		t.Errorf("field = %+v", f)
	}
	if f.VectorM != 16 || f.VectorEFConstruct != 200 {
		t.Errorf("M/EF = %d/%d", f.VectorM, f.VectorEFConstruct)
	}
}

func TestIndexBuilder_Errors(t *testing.T) {
	tests := []struct {
		name    string
		builder *IndexBuilder
		wantErr string
	}{
		{"empty name", NewIndex("").Tag("$.a", "a"), "index name is required"},
		{"bad name", NewIndex("bad name").Tag("$.a", "a"), "invalid characters"},
		{"no fields", NewIndex("idx"), "at least one field"},
		{"duplicate alias", NewIndex("idx").Tag("$.a", "x").Text("$.b", "x"), "duplicate field name"},
		{"zero dim", NewIndex("idx").VectorHNSW("$.v", "v", 0, DistanceCosine, 0, 0), "positive DIM"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.builder.Build()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestIndexDefinition_String(t *testing.T) {
	idx, _ := NewIndex("idx").
		Prefix("doc:").
		Text("$.name", "name").
		VectorHNSW("$.__vectors.name", "name__vector", 4, DistanceCosine, 0, 0).
		Build()

	want := "FT.CREATE idx ON JSON PREFIX doc: SCHEMA $.name AS name TEXT $.__vectors.name AS name__vector VECTOR HNSW"
	if got := idx.String(); got != want {
		t.Errorf("String() = %q\nwant %q", got, want)
	}
}

func TestIsValidIdentifier(t *testing.T) {
	for s, want := range map[string]bool{
		"syncdex:idx:files": true,
		"a_b-c":             true,
		"":                  false,
		"has space":         false,
		"dot.ted":           false,
	} {
		if got := IsValidIdentifier(s); got != want {
			t.Errorf("IsValidIdentifier(%q) = %v, want %v", s, got, want)
		}
	}
}

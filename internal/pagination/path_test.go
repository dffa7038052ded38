package pagination

import "testing"

func TestLookup(t *testing.T) {
	body := map[string]any{
		"data": map[string]any{
			"items": []any{map[string]any{"id": "a"}},
		},
		"meta": map[string]any{"next": nil},
	}

	tests := []struct {
		path   string
		want   any
		wantOK bool
	}{
		{"data.items.0.id", "a", true},
		{"meta.next", nil, true},
		{"meta.missing", nil, false},
		{"data.items.5", nil, false},
		{"data.items.x", nil, false},
	}
	for _, tt := range tests {
		got, ok := Lookup(body, tt.path)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("Lookup(%q) = %v, %v; want %v, %v", tt.path, got, ok, tt.want, tt.wantOK)
		}
	}
	if got, ok := Lookup(body, ""); !ok || got == nil {
		t.Error("empty path must return the body")
	}
}

func TestParseLink(t *testing.T) {
	header := `<https://api.example.com/items?page=2>; rel="next", <https://api.example.com/items?page=5>; rel="last"`

	tests := []struct {
		rel  string
		want string
	}{
		{"next", "https://api.example.com/items?page=2"},
		{"last", "https://api.example.com/items?page=5"},
		{"prev", ""},
	}
	for _, tt := range tests {
		if got := parseLink(header, tt.rel); got != tt.want {
			t.Errorf("parseLink(%s) = %q, want %q", tt.rel, got, tt.want)
		}
	}
	if got := parseLink(`</p2>; rel="next last"`, "last"); got != "/p2" {
		t.Errorf("multi-rel: got %q", got)
	}
	if got := parseLink("", "next"); got != "" {
		t.Errorf("empty header: got %q", got)
	}
}

func TestParseLink_CommasAndParams(t *testing.T) {
	header := `<https://api.example.com/items?fields=id,name&page=2>; rel="next", ` +
		`<https://api.example.com/items?fields=id,name&page=9>; title="a, b"; rel=last, ` +
		`</items?ids=1,2,3>; type="application/json"; REL="prev first"`

	tests := []struct {
		rel  string
		want string
	}{
		{"next", "https://api.example.com/items?fields=id,name&page=2"},
		{"last", "https://api.example.com/items?fields=id,name&page=9"},
		{"first", "/items?ids=1,2,3"},
		{"prev", "/items?ids=1,2,3"},
		{"self", ""},
	}
	for _, tt := range tests {
		if got := parseLink(header, tt.rel); got != tt.want {
			t.Errorf("parseLink(%s) = %q, want %q", tt.rel, got, tt.want)
		}
	}
}

func TestScalar(t *testing.T) {
	if scalar(float64(42)) != "42" || scalar("  ") != "" || scalar(map[string]any{}) != "" || scalar(nil) != "" {
		t.Fatal("unexpected scalar rendering")
	}
}

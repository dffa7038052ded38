package pagination

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Lookup resolves a dotted path against JSON-decoded data.
// Numeric segments index into arrays. An empty path returns v itself.
func Lookup(v any, path string) (any, bool) {
	if path == "" {
		return v, true
	}
	cur := v
	for seg := range strings.SplitSeq(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = next
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			cur = node[i]
		default:
			return nil, false
		}
	}
	return cur, true
}

// items extracts the page items at path. Missing or null data is an empty page.
func items(body any, path string) ([]any, error) {
	v, ok := Lookup(body, path)
	if !ok || v == nil {
		return nil, nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("data at %q is %T, not an array", path, v)
	}
	return list, nil
}

// scalar renders a cursor or link value; blank and non-scalar values yield "".
func scalar(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	}
	return ""
}

// linkTargetRegex matches the <uri> of each Link header entry. URIs may contain commas,
// so entries are delimited by their targets rather than by splitting on ",".
var linkTargetRegex = regexp.MustCompile(`<([^>]*)>`)

// linkRelRegex matches the rel parameter of one entry, quoted or bare.
var linkRelRegex = regexp.MustCompile(`(?i);\s*rel\s*=\s*(?:"([^"]*)"|([^;,\s]+))`)

// parseLink extracts the URL of relation rel from a Link header value.
// A rel attribute may list several space-separated relation types.
func parseLink(header, rel string) string {
	if header == "" {
		return ""
	}
	targets := linkTargetRegex.FindAllStringSubmatchIndex(header, -1)
	for i, m := range targets {
		end := len(header)
		if i+1 < len(targets) {
			end = targets[i+1][0]
		}
		params := header[m[1]:end]
		r := linkRelRegex.FindStringSubmatch(params)
		if r == nil {
			continue
		}
		rels := r[1]
		if rels == "" {
			rels = r[2]
		}
		for t := range strings.FieldsSeq(rels) {
			if strings.EqualFold(t, rel) {
				return header[m[2]:m[3]]
			}
		}
	}
	return ""
}

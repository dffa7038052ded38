package hit

// Merge folds several result lists of one retrieval mode into one Hit per record.
// When records repeat: top-level score is the max, matched fields are unioned keeping
// the higher score per field, and nested items with the same content hash merge the same way.
// Output order follows first appearance.
func Merge(lists ...[]Hit) []Hit {
	var out []Hit
	pos := make(map[string]int)
	for _, list := range lists {
		for _, h := range list {
			i, ok := pos[h.key()]
			if !ok {
				pos[h.key()] = len(out)
				out = append(out, h.clone())
				continue
			}
			out[i] = combineMax(out[i], h)
		}
	}
	return out
}

func combineMax(a, b Hit) Hit {
	if b.Score > a.Score {
		a.Score = b.Score
		if b.Source != nil {
			a.Source = b.Source
		}
	}
	if a.Source == nil {
		a.Source = b.Source
	}
	a.Fields = unionFields(a.Fields, b.Fields)
	a.Nested = mergeNested(a.Nested, b.Nested, combineMax)
	return a
}

// Blend joins a keyword and a vector list that were already scaled by their weights.
// Records in both lists get the sum of their scores and the union of matched fields;
// per field and per nested item (by content hash) the higher-scored version wins.
// Records in only one list pass through unchanged.
func Blend(keyword, vector []Hit) []Hit {
	out := Merge(keyword)
	pos := make(map[string]int, len(out))
	for i, h := range out {
		pos[h.key()] = i
	}
	for _, h := range vector {
		i, ok := pos[h.key()]
		if !ok {
			pos[h.key()] = len(out)
			out = append(out, h.clone())
			continue
		}
		a := out[i]
		if a.Source == nil || (h.Score > a.Score && h.Source != nil) {
			a.Source = h.Source
		}
		a.Score += h.Score
		a.Fields = unionFields(a.Fields, h.Fields)
		a.Nested = mergeNested(a.Nested, h.Nested, keepHigher)
		out[i] = a
	}
	return out
}

func keepHigher(a, b Hit) Hit {
	if b.Score > a.Score {
		return b.clone()
	}
	return a
}

func mergeNested(dst, src map[string][]Hit, combine func(a, b Hit) Hit) map[string][]Hit {
	if len(src) == 0 {
		return dst
	}
	if dst == nil {
		dst = make(map[string][]Hit, len(src))
	}
	for name, items := range src {
		cur := dst[name]
		pos := make(map[string]int, len(cur))
		for i, it := range cur {
			pos[it.key()] = i
		}
		for _, it := range items {
			if i, ok := pos[it.key()]; ok {
				cur[i] = combine(cur[i], it)
				continue
			}
			pos[it.key()] = len(cur)
			cur = append(cur, it.clone())
		}
		dst[name] = cur
	}
	return dst
}

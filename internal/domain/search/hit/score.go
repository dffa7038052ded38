package hit

// Normalize min-max rescales a result list to [0,1] in place.
// Top-level scores form one population; nested items of each nested field form another.
// A population whose scores are all equal maps to 1.
func Normalize(hits []Hit) {
	if len(hits) == 0 {
		return
	}

	top := make([]*Hit, len(hits))
	nested := make(map[string][]*Hit)
	for i := range hits {
		top[i] = &hits[i]
		for name, items := range hits[i].Nested {
			for j := range items {
				nested[name] = append(nested[name], &items[j])
			}
		}
	}

	rescale(top)
	for _, items := range nested {
		rescale(items)
	}
}

func rescale(pop []*Hit) {
	if len(pop) == 0 {
		return
	}
	lo, hi := pop[0].Score, pop[0].Score
	for _, h := range pop[1:] {
		lo = min(lo, h.Score)
		hi = max(hi, h.Score)
	}
	fn := func(s float64) float64 {
		if hi == lo {
			return 1
		}
		return min(1, max(0, (s-lo)/(hi-lo)))
	}
	for _, h := range pop {
		h.apply(fn)
	}
}

// Scale multiplies every score in the list, nested items included, by w.
func Scale(hits []Hit, w float64) {
	fn := func(s float64) float64 { return s * w }
	for i := range hits {
		hits[i].apply(fn)
		for _, items := range hits[i].Nested {
			for j := range items {
				items[j].apply(fn)
			}
		}
	}
}

// Rank sorts descending, drops hits at or below minScore (0 disables the threshold),
// and truncates to limit. Each nested array is ranked the same way, independently.
func Rank(hits []Hit, minScore float64, limit int) []Hit {
	for i := range hits {
		for name, items := range hits[i].Nested {
			items = cut(items, minScore, limit)
			if len(items) == 0 {
				delete(hits[i].Nested, name)
				continue
			}
			hits[i].Nested[name] = items
		}
	}
	return cut(hits, minScore, limit)
}

func cut(hits []Hit, minScore float64, limit int) []Hit {
	sortDesc(hits)
	if minScore > 0 {
		kept := hits[:0]
		for _, h := range hits {
			if h.Score > minScore {
				kept = append(kept, h)
			}
		}
		hits = kept
	}
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

package query

import (
	"github.com/kailas-cloud/syncdex/internal/domain"
	"github.com/kailas-cloud/syncdex/internal/domain/schema"
	"github.com/kailas-cloud/syncdex/internal/repository/index"
)

type keywordTarget struct {
	index.Target
	partial bool
}

type vectorTarget struct {
	index.Target
	modality domain.Modality
}

// keywordTargets lists keyword-searchable fields, nested children included, in schema order.
func keywordTargets(coll schema.Collection) []keywordTarget {
	var out []keywordTarget
	for _, f := range coll.Fields() {
		if f.IsNested() {
			for _, c := range f.Children() {
				if c.KeywordSearchable() {
					out = append(out, keywordTarget{Target: index.Target{Field: f.Name(), Child: c.Name()}, partial: c.PartialMatch()})
				}
			}
			continue
		}
		if f.KeywordSearchable() {
			out = append(out, keywordTarget{Target: index.Target{Field: f.Name()}, partial: f.PartialMatch()})
		}
	}
	return out
}

// vectorTargets lists vector fields of modality m, nested children included.
func vectorTargets(coll schema.Collection, m domain.Modality) []vectorTarget {
	var out []vectorTarget
	for _, f := range coll.Fields() {
		if f.IsNested() {
			for _, c := range f.Children() {
				if c.VectorSearchable() && c.Modality() == m {
					out = append(out, vectorTarget{Target: index.Target{Field: f.Name(), Child: c.Name()}, modality: m})
				}
			}
			continue
		}
		if f.VectorSearchable() && f.Modality() == m {
			out = append(out, vectorTarget{Target: index.Target{Field: f.Name()}, modality: m})
		}
	}
	return out
}

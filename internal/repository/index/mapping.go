package index

import (
	"fmt"

	"github.com/kailas-cloud/syncdex/internal/db"
	"github.com/kailas-cloud/syncdex/internal/domain"
	"github.com/kailas-cloud/syncdex/internal/domain/schema"
)

// Default HNSW build parameters.
const (
	DefaultHNSWM           = 16
	DefaultHNSWEFConstruct = 200
)

// Options holds the embedding size per modality and the HNSW build parameters.
type Options struct {
	TextDim         int
	ImageDim        int
	HNSWM           int
	HNSWEFConstruct int
}

func (o Options) dim(m domain.Modality) int {
	if m == domain.ModalityImage {
		return o.ImageDim
	}
	return o.TextDim
}

func (o Options) withDefaults() Options {
	if o.HNSWM <= 0 {
		o.HNSWM = DefaultHNSWM
	}
	if o.HNSWEFConstruct <= 0 {
		o.HNSWEFConstruct = DefaultHNSWEFConstruct
	}
	return o
}

// Definitions maps a collection schema onto FT index definitions.
// The nested definition is nil when the schema has no nested fields.
//
//	string, both flags     -> TEXT <f> + TAG <f>__exact
//	string, filterable     -> TAG <f>__exact
//	string, keyword        -> TEXT <f>
//	number/integer/date    -> NUMERIC <f> (dates as epoch millis)
//	boolean                -> TAG <f>__exact
//	vector                 -> VECTOR HNSW COSINE <f>__vector
//	anything else          -> stored, not indexed
func Definitions(s schema.Collection, opts Options) (top, nested *db.IndexDefinition, err error) {
	opts = opts.withDefaults()
	b := db.NewIndex(indexName(s.Name())).
		Prefix(docPrefix(s.Name())).
		Tag("$."+attrTenant, attrTenant)

	for _, f := range s.Fields() {
		if f.IsNested() {
			continue
		}
		addFilterAttr(b, f)
		if f.KeywordSearchable() {
			b.Text(textPath("$", f), f.Name())
		}
		if f.VectorSearchable() {
			dim := opts.dim(f.Modality())
			if dim <= 0 {
				return nil, nil, fmt.Errorf("no %s embedding dimension configured for %s", f.Modality(), f.Name())
			}
			b.VectorHNSW("$."+attrVectors+"."+f.Name(), VectorAttr(f.Name()), dim, db.DistanceCosine, opts.HNSWM, opts.HNSWEFConstruct)
		}
	}

	top, err = b.Build()
	if err != nil {
		return nil, nil, fmt.Errorf("index definition %s: %w", s.Name(), err)
	}

	nf := s.NestedFields()
	if len(nf) == 0 {
		return top, nil, nil
	}

	nb := db.NewIndex(nestedIndexName(s.Name())).
		Prefix(nestedPrefix(s.Name())).
		Tag("$."+attrTenant, attrTenant).
		Tag("$."+attrField, attrField)

	// parent filters apply to nested matches too
	for _, f := range s.Fields() {
		if !f.IsNested() {
			addFilterAttr(nb, f)
		}
	}

	for _, n := range nf {
		for _, c := range n.Children() {
			alias := NestedAttr(n.Name(), c.Name())
			if c.KeywordSearchable() {
				nb.Text(textPath("$."+attrItem, c), alias)
			}
			if c.VectorSearchable() {
				dim := opts.dim(c.Modality())
				if dim <= 0 {
					return nil, nil, fmt.Errorf("no %s embedding dimension configured for %s.%s", c.Modality(), n.Name(), c.Name())
				}
				nb.VectorHNSW("$."+attrVectors+"."+alias, VectorAttr(alias), dim, db.DistanceCosine, opts.HNSWM, opts.HNSWEFConstruct)
			}
		}
	}

	nested, err = nb.Build()
	if err != nil {
		return nil, nil, fmt.Errorf("nested index definition %s: %w", s.Name(), err)
	}
	return top, nested, nil
}

func addFilterAttr(b *db.IndexBuilder, f schema.Field) {
	if !f.Filterable() {
		return
	}
	path := "$." + attrFilters + "." + f.Name()
	switch f.FieldType() {
	case schema.String, schema.Boolean:
		b.Tag(path, ExactAttr(f.Name()))
	case schema.Array:
		b.Tag(path+"[*]", ExactAttr(f.Name()))
	case schema.Number, schema.Integer, schema.Date:
		b.Numeric(path, f.Name())
	}
}

func textPath(root string, f schema.Field) string {
	if f.FieldType() == schema.Array {
		return root + "." + f.Name() + "[*]"
	}
	return root + "." + f.Name()
}

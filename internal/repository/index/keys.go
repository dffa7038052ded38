package index

import "github.com/kailas-cloud/syncdex/internal/domain"

// Internal document attributes. Everything prefixed "__" is bookkeeping and never returned.
const (
	attrTenant   = "__tenant"
	attrID       = "__id"
	attrHash     = "__hash"
	attrFilters  = "__f"
	attrVectors  = "__vectors"
	attrChildren = "__children"
	attrParent   = "__parent"
	attrField    = "__field"
	attrIndex    = "__index"
	attrItem     = "item"
)

func indexName(collection string) string {
	return domain.KeyPrefix + "idx:" + collection
}

func nestedIndexName(collection string) string {
	return indexName(collection) + ":nested"
}

func docPrefix(collection string) string {
	return domain.KeyPrefix + "doc:" + collection + ":"
}

func nestedPrefix(collection string) string {
	return domain.KeyPrefix + "nested:" + collection + ":"
}

func docKey(tenant, collection, id string) string {
	return docPrefix(collection) + tenant + ":" + id
}

// nestedKey addresses one nested item; nk is record.NestedKey ("field/<id or index>").
func nestedKey(tenant, collection, parentID, nk string) string {
	return nestedPrefix(collection) + tenant + ":" + parentID + ":" + nk
}

// ExactAttr is the TAG attribute behind an exact-match filter on field.
func ExactAttr(field string) string { return field + "__exact" }

// VectorAttr is the vector attribute of a field.
func VectorAttr(field string) string { return field + "__vector" }

// NestedAttr is the attribute of a nested child inside the nested index.
func NestedAttr(nested, child string) string { return nested + "__" + child }

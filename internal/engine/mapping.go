package engine

import (
	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
)

// newIndexMapping stores every field. The identity field is a single
// untokenized term; all other fields go through the standard analyzer.
func newIndexMapping(identityField, defaultField string) *mapping.IndexMappingImpl {
	im := bleve.NewIndexMapping()
	im.DefaultAnalyzer = standard.Name
	im.DefaultField = defaultField
	im.StoreDynamic = true
	im.IndexDynamic = true

	idField := bleve.NewTextFieldMapping()
	idField.Analyzer = keyword.Name
	idField.Store = true
	idField.IncludeInAll = false
	im.DefaultMapping.AddFieldMappingsAt(identityField, idField)

	return im
}

package search

import (
	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/simple"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/mapping"
)

// buildIndexMapping creates the mapping for comment documents: English
// analysis on text, keyword matching on room and tags.
func buildIndexMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultAnalyzer = en.AnalyzerName

	docMapping := bleve.NewDocumentMapping()

	textField := bleve.NewTextFieldMapping()
	textField.Analyzer = en.AnalyzerName
	textField.Store = true
	textField.IncludeTermVectors = true // highlighting
	docMapping.AddFieldMappingsAt("text", textField)

	ownerField := bleve.NewTextFieldMapping()
	ownerField.Analyzer = simple.Name
	ownerField.Store = true
	docMapping.AddFieldMappingsAt("owner_name", ownerField)

	idField := bleve.NewTextFieldMapping()
	idField.Analyzer = keyword.Name
	docMapping.AddFieldMappingsAt("id", idField)

	roomField := bleve.NewTextFieldMapping()
	roomField.Analyzer = keyword.Name
	roomField.Store = true
	docMapping.AddFieldMappingsAt("room_id", roomField)

	// Keyword keeps multi-word tags intact.
	tagsField := bleve.NewTextFieldMapping()
	tagsField.Analyzer = keyword.Name
	tagsField.Store = true
	tagsField.IncludeTermVectors = true
	docMapping.AddFieldMappingsAt("tags", tagsField)

	timestampField := bleve.NewNumericFieldMapping()
	timestampField.Store = true
	docMapping.AddFieldMappingsAt("timestamp", timestampField)

	indexMapping.AddDocumentMapping("_default", docMapping)
	return indexMapping
}

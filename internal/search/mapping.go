package search

import (
	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/simple"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
)

// docType is the mapping type of every document.
const docType = "file"

// buildIndexMapping creates the Bleve index mapping for file documents.
// Content is stored so hits can carry a highlighted fragment.
func buildIndexMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultAnalyzer = standard.Name
	indexMapping.TypeField = "type"

	docMapping := bleve.NewDocumentMapping()

	content := bleve.NewTextFieldMapping()
	content.Analyzer = standard.Name
	content.Store = true
	content.IncludeTermVectors = true
	docMapping.AddFieldMappingsAt("content", content)

	name := bleve.NewTextFieldMapping()
	name.Analyzer = simple.Name
	name.Store = true
	docMapping.AddFieldMappingsAt("name", name)

	for _, field := range []string{"path", "ext", "host", "digest", "event_id", "type"} {
		kw := bleve.NewKeywordFieldMapping()
		kw.Analyzer = keyword.Name
		kw.Store = true
		docMapping.AddFieldMappingsAt(field, kw)
	}

	size := bleve.NewNumericFieldMapping()
	size.Store = true
	docMapping.AddFieldMappingsAt("size", size)

	detected := bleve.NewDateTimeFieldMapping()
	detected.Store = true
	docMapping.AddFieldMappingsAt("detected_at", detected)

	indexMapping.AddDocumentMapping(docType, docMapping)
	indexMapping.DefaultMapping = docMapping

	return indexMapping
}

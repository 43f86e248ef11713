package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
)

// Limits for a single search.
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Params configures a search query.
type Params struct {
	Query string // full-text query over content and name
	Host  string // exact host filter
	Ext   string // exact extension filter, without the dot

	Limit  int
	Offset int

	SortBy string // "relevance" (default), "recent", "name", "size"
}

// Result is one page of hits.
type Result struct {
	Query  string        `json:"query"`
	Total  uint64        `json:"total"`
	Took   time.Duration `json:"took_ns"`
	Hits   []Hit         `json:"hits"`
	Facets Facets        `json:"facets"`
}

// Hit is a single matching file.
type Hit struct {
	Path       string    `json:"path"`
	Name       string    `json:"name"`
	Host       string    `json:"host,omitempty"`
	Digest     string    `json:"digest,omitempty"`
	Size       uint64    `json:"size"`
	Score      float64   `json:"score"`
	DetectedAt time.Time `json:"detected_at,omitzero"`
	Highlight  string    `json:"highlight,omitempty"`
}

// Facets counts hits per host and extension.
type Facets struct {
	Hosts []FacetCount `json:"hosts,omitempty"`
	Exts  []FacetCount `json:"exts,omitempty"`
}

// FacetCount represents a facet value and its count.
type FacetCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// Search executes a query.
func (s *Index) Search(ctx context.Context, params Params) (*Result, error) {
	if params.Limit <= 0 {
		params.Limit = DefaultLimit
	}
	if params.Limit > MaxLimit {
		params.Limit = MaxLimit
	}
	if params.Offset < 0 {
		params.Offset = 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	req := bleve.NewSearchRequestOptions(buildQuery(params), params.Limit, params.Offset, false)
	addSorting(req, params.SortBy)
	req.AddFacet("host", bleve.NewFacetRequest("host", 10))
	req.AddFacet("ext", bleve.NewFacetRequest("ext", 10))
	req.Fields = []string{"path", "name", "host", "digest", "size", "detected_at"}
	if params.Query != "" {
		req.Highlight = bleve.NewHighlight()
		req.Highlight.AddField("content")
	}

	res, err := s.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("execute search: %w", err)
	}

	result := &Result{
		Query: params.Query,
		Total: res.Total,
		Took:  res.Took,
		Hits:  make([]Hit, 0, len(res.Hits)),
	}

	for _, h := range res.Hits {
		hit := Hit{Path: h.ID, Score: h.Score}
		if v, ok := h.Fields["name"].(string); ok {
			hit.Name = v
		}
		if v, ok := h.Fields["host"].(string); ok {
			hit.Host = v
		}
		if v, ok := h.Fields["digest"].(string); ok {
			hit.Digest = v
		}
		if v, ok := h.Fields["size"].(float64); ok {
			hit.Size = uint64(v)
		}
		if v, ok := h.Fields["detected_at"].(string); ok {
			if t, err := time.Parse(time.RFC3339, v); err == nil {
				hit.DetectedAt = t
			}
		}
		if frags := h.Fragments["content"]; len(frags) > 0 {
			hit.Highlight = frags[0]
		}
		result.Hits = append(result.Hits, hit)
	}

	result.Facets = extractFacets(res)
	return result, nil
}

// buildQuery constructs the Bleve query from params.
func buildQuery(params Params) query.Query {
	var queries []query.Query

	if params.Query != "" {
		content := bleve.NewMatchQuery(params.Query)
		content.SetField("content")

		name := bleve.NewMatchQuery(params.Query)
		name.SetField("name")
		name.SetBoost(2.0)

		fuzzy := bleve.NewFuzzyQuery(strings.ToLower(params.Query))
		fuzzy.SetField("content")
		fuzzy.SetFuzziness(1)
		fuzzy.SetBoost(0.5)

		queries = append(queries, bleve.NewDisjunctionQuery(content, name, fuzzy))
	}

	if params.Host != "" {
		tq := bleve.NewTermQuery(params.Host)
		tq.SetField("host")
		queries = append(queries, tq)
	}

	if params.Ext != "" {
		tq := bleve.NewTermQuery(strings.TrimPrefix(strings.ToLower(params.Ext), "."))
		tq.SetField("ext")
		queries = append(queries, tq)
	}

	switch len(queries) {
	case 0:
		return bleve.NewMatchAllQuery()
	case 1:
		return queries[0]
	default:
		return bleve.NewConjunctionQuery(queries...)
	}
}

// addSorting configures sort order.
func addSorting(req *bleve.SearchRequest, sortBy string) {
	switch sortBy {
	case "recent":
		req.SortBy([]string{"-detected_at"})
	case "name":
		req.SortBy([]string{"name", "_id"})
	case "size":
		req.SortBy([]string{"-size"})
	default:
		req.SortBy([]string{"-_score", "_id"})
	}
}

// extractFacets converts Bleve facets to our format.
func extractFacets(res *bleve.SearchResult) Facets {
	var facets Facets
	if f, ok := res.Facets["host"]; ok && f.Terms != nil {
		for _, term := range f.Terms.Terms() {
			facets.Hosts = append(facets.Hosts, FacetCount{Value: term.Term, Count: term.Count})
		}
	}
	if f, ok := res.Facets["ext"]; ok && f.Terms != nil {
		for _, term := range f.Terms.Terms() {
			facets.Exts = append(facets.Exts, FacetCount{Value: term.Term, Count: term.Count})
		}
	}
	return facets
}

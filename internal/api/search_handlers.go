package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/dropwatch/dropwatch/internal/errors"
	"github.com/dropwatch/dropwatch/internal/search"
)

func (s *Server) registerSearchRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "searchFiles",
		Method:      http.MethodGet,
		Path:        "/api/v1/search",
		Summary:     "Search files",
		Description: "Full-text search over the content of dispatched files. Requires the index plugin.",
		Tags:        []string{"Search"},
	}, s.handleSearch)
}

func (s *Server) registerJournalRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "getJournalEntry",
		Method:      http.MethodGet,
		Path:        "/api/v1/journal",
		Summary:     "Get journal entry",
		Description: "Returns the journal record of a path. Requires the journal plugin.",
		Tags:        []string{"Journal"},
	}, s.handleGetJournalEntry)
}

// SearchInput contains search parameters.
type SearchInput struct {
	Query  string `query:"q" doc:"Full-text query"`
	Host   string `query:"host" doc:"Only files seen on this host"`
	Ext    string `query:"ext" doc:"Only files with this extension, without the dot"`
	Limit  int    `query:"limit" doc:"Max results" minimum:"0" maximum:"100"`
	Offset int    `query:"offset" doc:"Results to skip" minimum:"0"`
	Sort   string `query:"sort" doc:"Sort order" enum:"relevance,recent,name,size" default:"relevance"`
}

// SearchOutput contains one page of hits.
type SearchOutput struct {
	Body *search.Result
}

// JournalInput identifies a journal entry.
type JournalInput struct {
	Path string `query:"path" required:"true" doc:"Absolute path of the file"`
}

// JournalOutput contains the journal record.
type JournalOutput struct {
	Body map[string]any
}

var (
	errSearchDisabled  = errors.NotFound("search is disabled; enable the index plugin")
	errJournalDisabled = errors.NotFound("journal is disabled; enable the journal plugin")
)

func (s *Server) handleSearch(ctx context.Context, input *SearchInput) (*SearchOutput, error) {
	if s.services.Search == nil {
		return nil, huma.Error404NotFound("search is disabled", errSearchDisabled)
	}

	res, err := s.services.Search.Search(ctx, search.Params{
		Query:  input.Query,
		Host:   input.Host,
		Ext:    input.Ext,
		Limit:  input.Limit,
		Offset: input.Offset,
		SortBy: input.Sort,
	})
	if err != nil {
		return nil, huma.Error500InternalServerError("search failed", err)
	}
	return &SearchOutput{Body: res}, nil
}

func (s *Server) handleGetJournalEntry(_ context.Context, input *JournalInput) (*JournalOutput, error) {
	if s.services.Journal == nil {
		return nil, huma.Error404NotFound("journal is disabled", errJournalDisabled)
	}

	raw, err := s.services.Journal.Lookup(input.Path)
	if err != nil {
		return nil, huma.Error500InternalServerError("journal lookup failed", err)
	}

	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, huma.Error500InternalServerError("corrupt journal entry", err)
	}
	return &JournalOutput{Body: doc}, nil
}

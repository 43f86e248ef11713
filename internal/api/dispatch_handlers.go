package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/dropwatch/dropwatch/internal/errors"
	"github.com/dropwatch/dropwatch/internal/store"
)

func (s *Server) registerDispatchRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listDispatches",
		Method:      http.MethodGet,
		Path:        "/api/v1/dispatches",
		Summary:     "List dispatches",
		Description: "Returns audited dispatches, newest first, with cursor pagination",
		Tags:        []string{"Dispatches"},
	}, s.handleListDispatches)

	huma.Register(s.api, huma.Operation{
		OperationID: "getDispatch",
		Method:      http.MethodGet,
		Path:        "/api/v1/dispatches/{id}",
		Summary:     "Get dispatch",
		Description: "Returns one audited dispatch with its action attempts",
		Tags:        []string{"Dispatches"},
	}, s.handleGetDispatch)
}

// ListDispatchesInput contains pagination parameters.
type ListDispatchesInput struct {
	Limit  int    `query:"limit" doc:"Items per page" minimum:"0" maximum:"500"`
	Cursor string `query:"cursor" doc:"Cursor from the previous page"`
}

// ListDispatchesOutput contains one page of dispatches.
type ListDispatchesOutput struct {
	Body *store.PaginatedResult[store.DispatchRecord]
}

// GetDispatchInput identifies a dispatch.
type GetDispatchInput struct {
	ID string `path:"id" doc:"Dispatch ID"`
}

// GetDispatchOutput contains one dispatch.
type GetDispatchOutput struct {
	Body *store.DispatchRecord
}

func (s *Server) handleListDispatches(ctx context.Context, input *ListDispatchesInput) (*ListDispatchesOutput, error) {
	if s.services.Audit == nil {
		return nil, huma.Error404NotFound("dispatch auditing is disabled", errAuditDisabled)
	}

	page, err := s.services.Audit.Recent(ctx, store.PaginationParams{Limit: input.Limit, Cursor: input.Cursor})
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list dispatches", err)
	}
	return &ListDispatchesOutput{Body: page}, nil
}

func (s *Server) handleGetDispatch(ctx context.Context, input *GetDispatchInput) (*GetDispatchOutput, error) {
	if s.services.Audit == nil {
		return nil, huma.Error404NotFound("dispatch auditing is disabled", errAuditDisabled)
	}

	rec, err := s.services.Audit.Get(ctx, input.ID)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to get dispatch", err)
	}
	return &GetDispatchOutput{Body: rec}, nil
}

var errAuditDisabled = errors.NotFound("dispatch auditing is disabled; start with --audit-db")

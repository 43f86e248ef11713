package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/dropwatch/dropwatch/internal/dispatch"
	"github.com/dropwatch/dropwatch/internal/errors"
)

func (s *Server) registerPluginRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listPlugins",
		Method:      http.MethodGet,
		Path:        "/api/v1/plugins",
		Summary:     "List plugins",
		Description: "Returns the loaded plugins in dispatch order",
		Tags:        []string{"Plugins"},
	}, s.handleListPlugins)

	huma.Register(s.api, huma.Operation{
		OperationID: "getPlugin",
		Method:      http.MethodGet,
		Path:        "/api/v1/plugins/{name}",
		Summary:     "Get plugin",
		Description: "Returns one loaded plugin with its dispatch counters",
		Tags:        []string{"Plugins"},
	}, s.handleGetPlugin)

	huma.Register(s.api, huma.Operation{
		OperationID: "getStats",
		Method:      http.MethodGet,
		Path:        "/api/v1/stats",
		Summary:     "Dispatch statistics",
		Description: "Returns dispatch counters since startup",
		Tags:        []string{"Dispatches"},
	}, s.handleGetStats)
}

// PluginResponse describes a loaded plugin.
type PluginResponse struct {
	Name     string                   `json:"name" doc:"Plugin name"`
	Kind     string                   `json:"kind" doc:"Plugin source kind: lua or builtin"`
	Source   string                   `json:"source" doc:"Script or manifest path"`
	Position int                      `json:"position" doc:"Dispatch order, starting at 0"`
	Action   bool                     `json:"action" doc:"Whether the plugin handles events"`
	Options  bool                     `json:"options" doc:"Whether the plugin contributes options"`
	Stats    *dispatch.ActionSnapshot `json:"stats,omitempty" doc:"Counters for this action"`
}

// ListPluginsOutput contains the loaded plugins.
type ListPluginsOutput struct {
	Body struct {
		Plugins []PluginResponse `json:"plugins" doc:"Loaded plugins"`
	}
}

// GetPluginInput identifies a plugin.
type GetPluginInput struct {
	Name string `path:"name" doc:"Plugin name"`
}

// GetPluginOutput contains one plugin.
type GetPluginOutput struct {
	Body PluginResponse
}

// StatsOutput contains dispatch counters.
type StatsOutput struct {
	Body dispatch.Snapshot
}

func (s *Server) handleListPlugins(_ context.Context, _ *struct{}) (*ListPluginsOutput, error) {
	snap := s.services.Stats.Snapshot()

	resp := &ListPluginsOutput{}
	resp.Body.Plugins = make([]PluginResponse, 0, s.services.Plugins.Len())
	for i, d := range s.services.Plugins.Descriptors() {
		var stats *dispatch.ActionSnapshot
		if a, ok := snap.Actions[d.Name]; ok {
			stats = &a
		}
		resp.Body.Plugins = append(resp.Body.Plugins, pluginResponse(i, d.Name, d.Kind, d.Source, d.Action != nil, d.Contributor != nil, stats))
	}
	return resp, nil
}

func (s *Server) handleGetPlugin(_ context.Context, input *GetPluginInput) (*GetPluginOutput, error) {
	for i, d := range s.services.Plugins.Descriptors() {
		if d.Name != input.Name {
			continue
		}
		var stats *dispatch.ActionSnapshot
		if a, ok := s.services.Stats.Action(d.Name); ok {
			stats = &a
		}
		return &GetPluginOutput{
			Body: pluginResponse(i, d.Name, d.Kind, d.Source, d.Action != nil, d.Contributor != nil, stats),
		}, nil
	}
	return nil, huma.Error404NotFound("plugin not found", errors.NotFoundf("plugin %q is not loaded", input.Name))
}

func (s *Server) handleGetStats(_ context.Context, _ *struct{}) (*StatsOutput, error) {
	return &StatsOutput{Body: s.services.Stats.Snapshot()}, nil
}

func pluginResponse(pos int, name, kind, source string, action, options bool, stats *dispatch.ActionSnapshot) PluginResponse {
	return PluginResponse{
		Name:     name,
		Kind:     kind,
		Source:   source,
		Position: pos,
		Action:   action,
		Options:  options,
		Stats:    stats,
	}
}

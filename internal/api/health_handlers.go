package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/dropwatch/dropwatch/internal/store"
)

// Health statuses.
const (
	statusHealthy   = "healthy"
	statusDegraded  = "degraded"
	statusUnhealthy = "unhealthy"
	statusDisabled  = "disabled"
)

func (s *Server) registerHealthRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "healthCheck",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns watcher health with component checks",
		Tags:        []string{"Health"},
	}, s.handleHealthCheck)
}

// ComponentHealth describes the health of a single component.
type ComponentHealth struct {
	Status  string `json:"status" doc:"Component status: healthy, degraded, unhealthy or disabled"`
	Latency string `json:"latency,omitempty" doc:"Response time for this component"`
	Message string `json:"message,omitempty" doc:"Additional status information"`
}

// HealthResponse contains health check data in API responses.
type HealthResponse struct {
	Status     string                     `json:"status" doc:"Overall status: healthy, degraded, or unhealthy"`
	Uptime     string                     `json:"uptime" doc:"Time since the API started"`
	Plugins    int                        `json:"plugins" doc:"Number of loaded plugins"`
	Components map[string]ComponentHealth `json:"components" doc:"Individual component statuses"`
}

// HealthOutput wraps the health response for Huma.
type HealthOutput struct {
	Body HealthResponse
}

func (s *Server) handleHealthCheck(ctx context.Context, _ *struct{}) (*HealthOutput, error) {
	components := map[string]ComponentHealth{
		"audit":   s.checkAudit(ctx),
		"search":  s.checkSearch(),
		"journal": s.checkJournal(),
	}

	overall := statusHealthy
	for _, c := range components {
		switch c.Status {
		case statusUnhealthy:
			overall = statusUnhealthy
		case statusDegraded:
			if overall == statusHealthy {
				overall = statusDegraded
			}
		}
	}

	return &HealthOutput{
		Body: HealthResponse{
			Status:     overall,
			Uptime:     time.Since(s.started).Truncate(time.Second).String(),
			Plugins:    s.services.Plugins.Len(),
			Components: components,
		},
	}, nil
}

// checkAudit reads one record to verify the audit database answers.
func (s *Server) checkAudit(ctx context.Context) ComponentHealth {
	if s.services.Audit == nil {
		return ComponentHealth{Status: statusDisabled}
	}

	start := time.Now()
	_, err := s.services.Audit.Recent(ctx, store.PaginationParams{Limit: 1})
	latency := time.Since(start)

	if err != nil {
		return ComponentHealth{
			Status:  statusUnhealthy,
			Latency: latency.String(),
			Message: "audit database read failed",
		}
	}
	return ComponentHealth{Status: statusHealthy, Latency: latency.String()}
}

// checkSearch verifies the index is reachable. An empty index is only
// degraded: nothing has been dispatched yet.
func (s *Server) checkSearch() ComponentHealth {
	if s.services.Search == nil {
		return ComponentHealth{Status: statusDisabled}
	}

	start := time.Now()
	n, err := s.services.Search.DocumentCount()
	latency := time.Since(start)

	switch {
	case err != nil:
		return ComponentHealth{Status: statusUnhealthy, Latency: latency.String(), Message: "search index unreachable"}
	case n == 0:
		return ComponentHealth{Status: statusDegraded, Latency: latency.String(), Message: "search index empty"}
	default:
		return ComponentHealth{Status: statusHealthy, Latency: latency.String()}
	}
}

func (s *Server) checkJournal() ComponentHealth {
	if s.services.Journal == nil {
		return ComponentHealth{Status: statusDisabled}
	}

	start := time.Now()
	_, err := s.services.Journal.Count()
	latency := time.Since(start)

	if err != nil {
		return ComponentHealth{Status: statusUnhealthy, Latency: latency.String(), Message: "journal unreachable"}
	}
	return ComponentHealth{Status: statusHealthy, Latency: latency.String()}
}

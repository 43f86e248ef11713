package api

import (
	"net/http"

	"github.com/dropwatch/dropwatch/internal/sse"
)

// registerEventRoutes mounts the dispatch event stream. It bypasses huma:
// the response is text/event-stream, not an envelope.
func (s *Server) registerEventRoutes() {
	if s.services.Events == nil {
		s.router.Get("/api/v1/events", func(w http.ResponseWriter, _ *http.Request) {
			writeEnvelope(w, http.StatusNotFound, "event stream is disabled")
		})
		return
	}
	s.router.Method(http.MethodGet, "/api/v1/events", sse.NewHandler(s.services.Events, s.logger))
}

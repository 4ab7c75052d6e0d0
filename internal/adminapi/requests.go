package adminapi

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/r3e-network/debugproxy/infrastructure/httputil"
	"github.com/r3e-network/debugproxy/internal/recorder"
)

// listRequests serves GET /api/requests, optionally narrowed by the
// method/host/status/q query parameters.
func (s *Server) listRequests(w http.ResponseWriter, r *http.Request) {
	filter := recorder.Filter{
		Method:        httputil.QueryString(r, "method", ""),
		HostSubstring: httputil.QueryString(r, "host", ""),
		Status:        recorder.ParseStatus(httputil.QueryString(r, "status", "")),
		URLSubstring:  httputil.QueryString(r, "q", ""),
	}
	if filter == (recorder.Filter{}) {
		httputil.WriteJSON(w, http.StatusOK, s.rec.List())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, s.rec.Query(filter))
}

// getRequest serves GET /api/requests/{id}.
func (s *Server) getRequest(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	rec, ok := s.rec.Get(id)
	if !ok {
		httputil.NotFound(w, fmt.Sprintf("request %q not found", id))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rec)
}

// clearRequests serves DELETE /api/requests.
func (s *Server) clearRequests(w http.ResponseWriter, r *http.Request) {
	s.rec.Clear()
	httputil.RespondNoContent(w)
}

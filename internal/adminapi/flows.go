package adminapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/r3e-network/debugproxy/infrastructure/errors"
	"github.com/r3e-network/debugproxy/infrastructure/httputil"
	"github.com/r3e-network/debugproxy/internal/model"
)

// debugFlowRequest describes the synthetic request a debug run executes the
// named flow against.
type debugFlowRequest struct {
	Method  string              `json:"method"`
	Scheme  string              `json:"scheme"`
	Host    string              `json:"host"`
	Port    string              `json:"port"`
	Path    string              `json:"path"`
	Query   string              `json:"query"`
	Headers map[string][]string `json:"headers"`
	Body    string              `json:"body"`
}

// debugFlowResponse is the context snapshot a debug run produces: the final
// request/response state, any variables components set, and captured logs.
type debugFlowResponse struct {
	Request  *model.HttpRequest  `json:"request"`
	Response *model.HttpResponse `json:"response,omitempty"`
	Vars     map[string]any      `json:"vars"`
	Logs     []string            `json:"logs"`
}

// debugFlow serves POST /api/flows/{id}/debug. It never touches the
// Recorder or the network; it is purely a graph walk against a
// caller-supplied synthetic request.
func (s *Server) debugFlow(w http.ResponseWriter, r *http.Request) {
	flowID := mux.Vars(r)["id"]

	var body debugFlowRequest
	if !httputil.DecodeJSONOptional(w, r, &body) {
		return
	}

	headers := model.NewHeader()
	for k, vs := range body.Headers {
		for _, v := range vs {
			headers.Add(k, v)
		}
	}
	method := body.Method
	if method == "" {
		method = http.MethodGet
	}
	scheme := body.Scheme
	if scheme == "" {
		scheme = "http"
	}

	req := &model.HttpRequest{
		ID:        model.NewID(),
		Method:    method,
		Scheme:    scheme,
		Host:      body.Host,
		Port:      body.Port,
		Path:      body.Path,
		Query:     body.Query,
		Headers:   headers,
		Body:      body.Body,
		RawBody:   []byte(body.Body),
		Timestamp: time.Now(),
	}

	cctx, err := s.flows.Debug(r.Context(), flowID, req)
	if err != nil {
		serr := errors.GetServiceError(err)
		if serr != nil {
			httputil.WriteErrorResponse(w, r, serr.HTTPStatus, string(serr.Code), serr.Message, serr.Details)
			return
		}
		httputil.InternalError(w, err.Error())
		return
	}

	vars := make(map[string]any, len(cctx.Vars))
	for k, v := range cctx.Vars {
		vars[k] = v
	}

	httputil.WriteJSON(w, http.StatusOK, debugFlowResponse{
		Request:  cctx.Request,
		Response: cctx.Response,
		Vars:     vars,
		Logs:     cctx.Logs,
	})
}

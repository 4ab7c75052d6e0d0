package adminapi

import (
	"net/http"

	"github.com/r3e-network/debugproxy/infrastructure/errors"
	"github.com/r3e-network/debugproxy/infrastructure/httputil"
)

// caStatusResponse mirrors ca.Status with JSON tags suited to the admin API.
type caStatusResponse struct {
	Loaded       bool   `json:"loaded"`
	CommonName   string `json:"common_name,omitempty"`
	NotBefore    string `json:"not_before,omitempty"`
	NotAfter     string `json:"not_after,omitempty"`
	CertPath     string `json:"cert_path,omitempty"`
	Trusted      string `json:"trusted"`
	TrustMessage string `json:"trust_message,omitempty"`
}

// caStatus serves GET /api/ca/status.
func (s *Server) caStatus(w http.ResponseWriter, r *http.Request) {
	st := s.ca.StatusReport(r.Context())
	resp := caStatusResponse{
		Loaded:       st.Loaded,
		CommonName:   st.CommonName,
		CertPath:     st.CertPath,
		Trusted:      st.Trusted,
		TrustMessage: st.TrustMessage,
	}
	if st.Loaded {
		resp.NotBefore = st.NotBefore.UTC().Format(http.TimeFormat)
		resp.NotAfter = st.NotAfter.UTC().Format(http.TimeFormat)
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// caImportRequest is the /api/ca/import request body: a PEM-encoded RSA
// private key and matching CA certificate.
type caImportRequest struct {
	KeyPEM  string `json:"key_pem"`
	CertPEM string `json:"cert_pem"`
}

type caImportResponse struct {
	Imported bool `json:"imported"`
}

// caImport serves POST /api/ca/import.
func (s *Server) caImport(w http.ResponseWriter, r *http.Request) {
	var req caImportRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	if req.KeyPEM == "" || req.CertPEM == "" {
		httputil.BadRequest(w, "key_pem and cert_pem are both required")
		return
	}
	if err := s.ca.Import([]byte(req.KeyPEM), []byte(req.CertPEM)); err != nil {
		if serr := errors.GetServiceError(err); serr != nil {
			httputil.WriteErrorResponse(w, r, serr.HTTPStatus, string(serr.Code), serr.Message, serr.Details)
			return
		}
		httputil.InternalError(w, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, caImportResponse{Imported: true})
}

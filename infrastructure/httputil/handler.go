package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/r3e-network/debugproxy/infrastructure/logging"
)

// NotFoundErr maps to 404 Not Found when returned from a HandleJSON/HandleNoBody handler.
type NotFoundErr struct{ Message string }

func (e *NotFoundErr) Error() string { return e.Message }

// ValidationErr maps to 400 Bad Request.
type ValidationErr struct{ Message string }

func (e *ValidationErr) Error() string { return e.Message }

// ConflictErr maps to 409 Conflict.
type ConflictErr struct{ Message string }

func (e *ConflictErr) Error() string { return e.Message }

// UnavailableErr maps to 503 Service Unavailable.
type UnavailableErr struct{ Message string }

func (e *UnavailableErr) Error() string { return e.Message }

// handleError logs the error and writes the appropriate HTTP status based on
// its concrete type.
func handleError(w http.ResponseWriter, r *http.Request, logger *logging.Logger, err error) {
	if logger != nil {
		logger.WithContext(r.Context()).WithError(err).Error("handler failed")
	}

	var notFound *NotFoundErr
	var validation *ValidationErr
	var conflict *ConflictErr
	var unavailable *UnavailableErr

	switch {
	case errors.As(err, &notFound):
		NotFound(w, notFound.Error())
	case errors.As(err, &validation):
		BadRequest(w, validation.Error())
	case errors.As(err, &conflict):
		Conflict(w, conflict.Error())
	case errors.As(err, &unavailable):
		ServiceUnavailable(w, unavailable.Error())
	default:
		InternalError(w, "internal server error")
	}
}

// DecodeJSON decodes a JSON request body into v, writing an error response
// and returning false on failure.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			WriteErrorResponse(w, r, http.StatusRequestEntityTooLarge, "", "request body too large", map[string]any{
				"limit_bytes": maxErr.Limit,
			})
			return false
		}
		BadRequest(w, "invalid request body")
		return false
	}
	return true
}

// DecodeJSONOptional decodes a JSON body into v when present, returning true
// when the body is empty.
func DecodeJSONOptional(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if r == nil || r.Body == nil || r.Body == http.NoBody {
		return true
	}

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return true
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			WriteErrorResponse(w, r, http.StatusRequestEntityTooLarge, "", "request body too large", map[string]any{
				"limit_bytes": maxErr.Limit,
			})
			return false
		}
		BadRequest(w, "invalid request body")
		return false
	}
	return true
}

// HandleJSON decodes a JSON request body into Req, calls fn, and writes the
// result as JSON. Eliminates the repeated decode -> execute -> respond
// boilerplate in admin API handlers.
func HandleJSON[Req any, Resp any](
	logger *logging.Logger,
	fn func(ctx context.Context, req *Req) (Resp, error),
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req Req
		if !DecodeJSON(w, r, &req) {
			return
		}
		resp, err := fn(r.Context(), &req)
		if err != nil {
			handleError(w, r, logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

// HandleNoBody handles requests that carry no JSON body (typically GET/DELETE).
func HandleNoBody[Resp any](
	logger *logging.Logger,
	fn func(ctx context.Context) (Resp, error),
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp, err := fn(r.Context())
		if err != nil {
			handleError(w, r, logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

// RespondCreated writes a 201 Created response with the given data.
func RespondCreated(w http.ResponseWriter, data interface{}) {
	WriteJSON(w, http.StatusCreated, data)
}

// RespondNoContent writes a 204 No Content response.
func RespondNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// RequireJSONContentType checks that the request declares application/json.
func RequireJSONContentType(w http.ResponseWriter, r *http.Request) bool {
	if r.Header.Get("Content-Type") != "application/json" {
		BadRequest(w, "Content-Type must be application/json")
		return false
	}
	return true
}

package errors

import (
	"errors"
	"net/http"
	"testing"
)

func TestServiceError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *ServiceError
		want string
	}{
		{
			name: "error without underlying error",
			err:  New(ErrCodeNotFound, "test message", http.StatusNotFound),
			want: "[ADMIN_6003] test message",
		},
		{
			name: "error with underlying error",
			err:  Wrap(ErrCodeInternal, "test message", http.StatusInternalServerError, errors.New("underlying")),
			want: "[ADMIN_6006] test message: underlying",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestServiceError_Unwrap(t *testing.T) {
	underlying := errors.New("underlying error")
	err := Wrap(ErrCodeInternal, "test", http.StatusInternalServerError, underlying)

	if got := err.Unwrap(); got != underlying {
		t.Errorf("Unwrap() = %v, want %v", got, underlying)
	}
}

func TestServiceError_WithDetails(t *testing.T) {
	err := New(ErrCodeInvalidInput, "test", http.StatusBadRequest)
	err.WithDetails("field", "username").WithDetails("reason", "too short")

	if len(err.Details) != 2 {
		t.Errorf("Details length = %d, want 2", len(err.Details))
	}

	if err.Details["field"] != "username" {
		t.Errorf("Details[field] = %v, want username", err.Details["field"])
	}

	if err.Details["reason"] != "too short" {
		t.Errorf("Details[reason] = %v, want too short", err.Details["reason"])
	}
}

func TestBadGateway(t *testing.T) {
	underlying := errors.New("connection reset")
	err := BadGateway(underlying)

	if err.Code != ErrCodeBadGateway {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeBadGateway)
	}
	if err.HTTPStatus != http.StatusBadGateway {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusBadGateway)
	}
	if err.Err != underlying {
		t.Errorf("Err = %v, want %v", err.Err, underlying)
	}
}

func TestUpstreamTimeout(t *testing.T) {
	err := UpstreamTimeout("example.com")

	if err.Code != ErrCodeUpstreamTimeout {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeUpstreamTimeout)
	}
	if err.HTTPStatus != http.StatusGatewayTimeout {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusGatewayTimeout)
	}
	if err.Details["host"] != "example.com" {
		t.Errorf("Details[host] = %v, want example.com", err.Details["host"])
	}
}

func TestMalformedRequest(t *testing.T) {
	err := MalformedRequest("missing host header")

	if err.Code != ErrCodeMalformedRequest {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeMalformedRequest)
	}
	if err.HTTPStatus != http.StatusBadRequest {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusBadRequest)
	}
}

func TestLeafCertFailed(t *testing.T) {
	underlying := errors.New("rsa key generation failed")
	err := LeafCertFailed("example.com", underlying)

	if err.Code != ErrCodeLeafCertFailed {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeLeafCertFailed)
	}
	if err.Details["host"] != "example.com" {
		t.Errorf("Details[host] = %v, want example.com", err.Details["host"])
	}
}

func TestCAImportInvalid(t *testing.T) {
	err := CAImportInvalid("certificate is not a CA")

	if err.Code != ErrCodeCAImportInvalid {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeCAImportInvalid)
	}
	if err.HTTPStatus != http.StatusBadRequest {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusBadRequest)
	}
}

func TestTunnelSetupFailed(t *testing.T) {
	underlying := errors.New("bind failed")
	err := TunnelSetupFailed("example.com", underlying)

	if err.Code != ErrCodeTunnelSetupFailed {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeTunnelSetupFailed)
	}
	if err.HTTPStatus != http.StatusBadGateway {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusBadGateway)
	}
}

func TestFlowNotFound(t *testing.T) {
	err := FlowNotFound("flow-1")

	if err.Code != ErrCodeFlowNotFound {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeFlowNotFound)
	}
	if err.HTTPStatus != http.StatusNotFound {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusNotFound)
	}
	if err.Details["flow_id"] != "flow-1" {
		t.Errorf("Details[flow_id] = %v, want flow-1", err.Details["flow_id"])
	}
}

func TestNodeExecFailed(t *testing.T) {
	underlying := errors.New("component threw")
	err := NodeExecFailed("script", underlying)

	if err.Code != ErrCodeNodeExecFailed {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeNodeExecFailed)
	}
	if err.Details["node_kind"] != "script" {
		t.Errorf("Details[node_kind] = %v, want script", err.Details["node_kind"])
	}
}

func TestCyclicGraph(t *testing.T) {
	err := CyclicGraph("flow-1")

	if err.Code != ErrCodeCyclicGraph {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeCyclicGraph)
	}
	if err.HTTPStatus != http.StatusUnprocessableEntity {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusUnprocessableEntity)
	}
}

func TestComponentNotFound(t *testing.T) {
	err := ComponentNotFound("json-body-modify")

	if err.Code != ErrCodeComponentNotFound {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeComponentNotFound)
	}
	if err.Details["component_id"] != "json-body-modify" {
		t.Errorf("Details[component_id] = %v, want json-body-modify", err.Details["component_id"])
	}
}

func TestScriptCompileFailed(t *testing.T) {
	underlying := errors.New("unexpected token")
	err := ScriptCompileFailed(underlying)

	if err.Code != ErrCodeScriptCompileFailed {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeScriptCompileFailed)
	}
	if err.HTTPStatus != http.StatusBadRequest {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusBadRequest)
	}
}

func TestScriptThrew(t *testing.T) {
	underlying := errors.New("ReferenceError: x is not defined")
	err := ScriptThrew(underlying)

	if err.Code != ErrCodeScriptThrew {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeScriptThrew)
	}
	if err.HTTPStatus != http.StatusUnprocessableEntity {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusUnprocessableEntity)
	}
}

func TestScriptTimeout(t *testing.T) {
	err := ScriptTimeout(2000)

	if err.Code != ErrCodeScriptTimeout {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeScriptTimeout)
	}
	if err.Details["budget_millis"] != 2000 {
		t.Errorf("Details[budget_millis] = %v, want 2000", err.Details["budget_millis"])
	}
}

func TestStoreUnavailable(t *testing.T) {
	underlying := errors.New("file not found")
	err := StoreUnavailable(underlying)

	if err.Code != ErrCodeStoreUnavailable {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeStoreUnavailable)
	}
	if err.HTTPStatus != http.StatusServiceUnavailable {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusServiceUnavailable)
	}
}

func TestInvalidDocument(t *testing.T) {
	err := InvalidDocument("flow", "missing start node")

	if err.Code != ErrCodeInvalidDocument {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeInvalidDocument)
	}
	if err.Details["kind"] != "flow" {
		t.Errorf("Details[kind] = %v, want flow", err.Details["kind"])
	}
}

func TestInvalidInput(t *testing.T) {
	err := InvalidInput("email", "invalid format")

	if err.Code != ErrCodeInvalidInput {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeInvalidInput)
	}

	if err.HTTPStatus != http.StatusBadRequest {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusBadRequest)
	}

	if err.Details["field"] != "email" {
		t.Errorf("Details[field] = %v, want email", err.Details["field"])
	}
}

func TestMissingParameter(t *testing.T) {
	err := MissingParameter("id")

	if err.Code != ErrCodeMissingParameter {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeMissingParameter)
	}

	if err.Details["parameter"] != "id" {
		t.Errorf("Details[parameter] = %v, want id", err.Details["parameter"])
	}
}

func TestNotFound(t *testing.T) {
	err := NotFound("request", "123")

	if err.Code != ErrCodeNotFound {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeNotFound)
	}

	if err.HTTPStatus != http.StatusNotFound {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusNotFound)
	}

	if err.Details["resource"] != "request" {
		t.Errorf("Details[resource] = %v, want request", err.Details["resource"])
	}

	if err.Details["id"] != "123" {
		t.Errorf("Details[id] = %v, want 123", err.Details["id"])
	}
}

func TestConflict(t *testing.T) {
	err := Conflict("resource locked")

	if err.Code != ErrCodeConflict {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeConflict)
	}

	if err.HTTPStatus != http.StatusConflict {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusConflict)
	}

	if err.Message != "resource locked" {
		t.Errorf("Message = %v, want resource locked", err.Message)
	}
}

func TestRateLimitExceeded(t *testing.T) {
	err := RateLimitExceeded(100, "1m")

	if err.Code != ErrCodeRateLimitExceeded {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeRateLimitExceeded)
	}

	if err.HTTPStatus != http.StatusTooManyRequests {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusTooManyRequests)
	}

	if err.Details["limit"] != 100 {
		t.Errorf("Details[limit] = %v, want 100", err.Details["limit"])
	}
}

func TestInternal(t *testing.T) {
	underlying := errors.New("unexpected nil pointer")
	err := Internal("internal error", underlying)

	if err.Code != ErrCodeInternal {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeInternal)
	}

	if err.HTTPStatus != http.StatusInternalServerError {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusInternalServerError)
	}

	if err.Err != underlying {
		t.Errorf("Err = %v, want %v", err.Err, underlying)
	}
}

func TestTimeout(t *testing.T) {
	err := Timeout("flow debug execution")

	if err.Code != ErrCodeTimeout {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeTimeout)
	}

	if err.HTTPStatus != http.StatusGatewayTimeout {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusGatewayTimeout)
	}

	if err.Details["operation"] != "flow debug execution" {
		t.Errorf("Details[operation] = %v, want flow debug execution", err.Details["operation"])
	}
}

func TestIsServiceError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "service error",
			err:  New(ErrCodeInternal, "test", http.StatusInternalServerError),
			want: true,
		},
		{
			name: "standard error",
			err:  errors.New("standard error"),
			want: false,
		},
		{
			name: "nil error",
			err:  nil,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsServiceError(tt.err); got != tt.want {
				t.Errorf("IsServiceError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetServiceError(t *testing.T) {
	serviceErr := New(ErrCodeInternal, "test", http.StatusInternalServerError)
	standardErr := errors.New("standard error")

	tests := []struct {
		name string
		err  error
		want *ServiceError
	}{
		{
			name: "service error",
			err:  serviceErr,
			want: serviceErr,
		},
		{
			name: "standard error",
			err:  standardErr,
			want: nil,
		},
		{
			name: "nil error",
			err:  nil,
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GetServiceError(tt.err)
			if got != tt.want {
				t.Errorf("GetServiceError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{
			name: "service error",
			err:  New(ErrCodeNotFound, "test", http.StatusNotFound),
			want: http.StatusNotFound,
		},
		{
			name: "standard error",
			err:  errors.New("standard error"),
			want: http.StatusInternalServerError,
		},
		{
			name: "nil error",
			err:  nil,
			want: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetHTTPStatus(tt.err); got != tt.want {
				t.Errorf("GetHTTPStatus() = %v, want %v", got, tt.want)
			}
		})
	}
}

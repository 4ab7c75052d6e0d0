// Package errors provides a unified, structured error taxonomy for the proxy.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unique error code.
type ErrorCode string

const (
	// Proxy engine / transport errors (1xxx)
	ErrCodeBadGateway      ErrorCode = "PROXY_1001"
	ErrCodeUpstreamTimeout ErrorCode = "PROXY_1002"
	ErrCodeListenerFailed  ErrorCode = "PROXY_1003"
	ErrCodeMalformedRequest ErrorCode = "PROXY_1004"

	// MITM / certificate authority errors (2xxx)
	ErrCodeCAUnavailable    ErrorCode = "MITM_2001"
	ErrCodeLeafCertFailed   ErrorCode = "MITM_2002"
	ErrCodeCAImportInvalid  ErrorCode = "MITM_2003"
	ErrCodeTunnelSetupFailed ErrorCode = "MITM_2004"

	// Flow engine execution errors (3xxx)
	ErrCodeFlowNotFound     ErrorCode = "FLOW_3001"
	ErrCodeNodeExecFailed   ErrorCode = "FLOW_3002"
	ErrCodeCyclicGraph      ErrorCode = "FLOW_3003"
	ErrCodeComponentNotFound ErrorCode = "FLOW_3004"

	// Script sandbox errors (4xxx)
	ErrCodeScriptCompileFailed ErrorCode = "SCRIPT_4001"
	ErrCodeScriptThrew         ErrorCode = "SCRIPT_4002"
	ErrCodeScriptTimeout       ErrorCode = "SCRIPT_4003"

	// Document/config store errors (5xxx)
	ErrCodeStoreUnavailable ErrorCode = "STORE_5001"
	ErrCodeInvalidDocument  ErrorCode = "STORE_5002"

	// Admin/control API errors (6xxx)
	ErrCodeInvalidInput      ErrorCode = "ADMIN_6001"
	ErrCodeMissingParameter  ErrorCode = "ADMIN_6002"
	ErrCodeNotFound          ErrorCode = "ADMIN_6003"
	ErrCodeConflict          ErrorCode = "ADMIN_6004"
	ErrCodeRateLimitExceeded ErrorCode = "ADMIN_6005"
	ErrCodeInternal          ErrorCode = "ADMIN_6006"
	ErrCodeTimeout           ErrorCode = "ADMIN_6007"
)

// ServiceError represents a structured error with code, message, and HTTP status.
type ServiceError struct {
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	HTTPStatus int                    `json:"-"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Err        error                  `json:"-"`
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// WithDetails adds additional details to the error.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new ServiceError.
func New(code ErrorCode, message string, httpStatus int) *ServiceError {
	return &ServiceError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an existing error with a ServiceError.
func Wrap(code ErrorCode, message string, httpStatus int, err error) *ServiceError {
	return &ServiceError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// Proxy engine errors

// BadGateway wraps an upstream round-trip failure.
func BadGateway(err error) *ServiceError {
	return Wrap(ErrCodeBadGateway, "upstream round trip failed", http.StatusBadGateway, err)
}

// UpstreamTimeout reports that the upstream did not respond in time.
func UpstreamTimeout(host string) *ServiceError {
	return New(ErrCodeUpstreamTimeout, "upstream timed out", http.StatusGatewayTimeout).
		WithDetails("host", host)
}

// ListenerFailed wraps a proxy listener bind/accept failure.
func ListenerFailed(err error) *ServiceError {
	return Wrap(ErrCodeListenerFailed, "proxy listener failed", http.StatusInternalServerError, err)
}

// MalformedRequest reports a request the proxy could not parse.
func MalformedRequest(reason string) *ServiceError {
	return New(ErrCodeMalformedRequest, "malformed request", http.StatusBadRequest).
		WithDetails("reason", reason)
}

// MITM / certificate authority errors

// CAUnavailable reports that the root CA material could not be loaded.
func CAUnavailable(err error) *ServiceError {
	return Wrap(ErrCodeCAUnavailable, "certificate authority unavailable", http.StatusInternalServerError, err)
}

// LeafCertFailed wraps a leaf certificate minting failure.
func LeafCertFailed(host string, err error) *ServiceError {
	return Wrap(ErrCodeLeafCertFailed, "leaf certificate minting failed", http.StatusInternalServerError, err).
		WithDetails("host", host)
}

// CAImportInvalid reports that an imported CA key/cert pair failed validation.
func CAImportInvalid(reason string) *ServiceError {
	return New(ErrCodeCAImportInvalid, "invalid certificate authority material", http.StatusBadRequest).
		WithDetails("reason", reason)
}

// TunnelSetupFailed wraps a CONNECT tunnel/MITM listener setup failure.
func TunnelSetupFailed(host string, err error) *ServiceError {
	return Wrap(ErrCodeTunnelSetupFailed, "tunnel setup failed", http.StatusBadGateway, err).
		WithDetails("host", host)
}

// Flow engine errors

// FlowNotFound reports that a referenced flow does not exist.
func FlowNotFound(id string) *ServiceError {
	return New(ErrCodeFlowNotFound, "flow not found", http.StatusNotFound).
		WithDetails("flow_id", id)
}

// NodeExecFailed wraps a flow node execution failure.
func NodeExecFailed(nodeKind string, err error) *ServiceError {
	return Wrap(ErrCodeNodeExecFailed, "flow node execution failed", http.StatusInternalServerError, err).
		WithDetails("node_kind", nodeKind)
}

// CyclicGraph reports that a flow graph traversal detected a cycle.
func CyclicGraph(flowID string) *ServiceError {
	return New(ErrCodeCyclicGraph, "flow graph contains a cycle", http.StatusUnprocessableEntity).
		WithDetails("flow_id", flowID)
}

// ComponentNotFound reports that a referenced component id does not exist.
func ComponentNotFound(id string) *ServiceError {
	return New(ErrCodeComponentNotFound, "component not found", http.StatusNotFound).
		WithDetails("component_id", id)
}

// Script sandbox errors

// ScriptCompileFailed wraps a script parse/compile failure.
func ScriptCompileFailed(err error) *ServiceError {
	return Wrap(ErrCodeScriptCompileFailed, "script failed to compile", http.StatusBadRequest, err)
}

// ScriptThrew wraps an uncaught exception raised by a user script.
func ScriptThrew(err error) *ServiceError {
	return Wrap(ErrCodeScriptThrew, "script execution threw", http.StatusUnprocessableEntity, err)
}

// ScriptTimeout reports that a script exceeded its execution budget.
func ScriptTimeout(budgetMillis int) *ServiceError {
	return New(ErrCodeScriptTimeout, "script execution timed out", http.StatusGatewayTimeout).
		WithDetails("budget_millis", budgetMillis)
}

// Document/config store errors

// StoreUnavailable wraps a failure to reach a flow or component store.
func StoreUnavailable(err error) *ServiceError {
	return Wrap(ErrCodeStoreUnavailable, "document store unavailable", http.StatusServiceUnavailable, err)
}

// InvalidDocument reports a store document that failed validation.
func InvalidDocument(kind, reason string) *ServiceError {
	return New(ErrCodeInvalidDocument, "invalid document", http.StatusUnprocessableEntity).
		WithDetails("kind", kind).
		WithDetails("reason", reason)
}

// Admin/control API errors

// InvalidInput reports a validation failure on a request field.
func InvalidInput(field, reason string) *ServiceError {
	return New(ErrCodeInvalidInput, "invalid input", http.StatusBadRequest).
		WithDetails("field", field).
		WithDetails("reason", reason)
}

// MissingParameter reports a required parameter that was not supplied.
func MissingParameter(param string) *ServiceError {
	return New(ErrCodeMissingParameter, "missing required parameter", http.StatusBadRequest).
		WithDetails("parameter", param)
}

// NotFound reports a generic admin API resource lookup miss.
func NotFound(resource, id string) *ServiceError {
	return New(ErrCodeNotFound, "resource not found", http.StatusNotFound).
		WithDetails("resource", resource).
		WithDetails("id", id)
}

// Conflict reports a generic admin API state conflict.
func Conflict(message string) *ServiceError {
	return New(ErrCodeConflict, message, http.StatusConflict)
}

// RateLimitExceeded reports that a caller exceeded the admin API's rate limit.
func RateLimitExceeded(limit int, window string) *ServiceError {
	return New(ErrCodeRateLimitExceeded, "rate limit exceeded", http.StatusTooManyRequests).
		WithDetails("limit", limit).
		WithDetails("window", window)
}

// Internal wraps an unexpected internal error.
func Internal(message string, err error) *ServiceError {
	return Wrap(ErrCodeInternal, message, http.StatusInternalServerError, err)
}

// Timeout reports a generic operation timeout.
func Timeout(operation string) *ServiceError {
	return New(ErrCodeTimeout, "operation timed out", http.StatusGatewayTimeout).
		WithDetails("operation", operation)
}

// Helper functions

// IsServiceError checks if an error is a ServiceError.
func IsServiceError(err error) bool {
	var serviceErr *ServiceError
	return errors.As(err, &serviceErr)
}

// GetServiceError extracts a ServiceError from an error chain.
func GetServiceError(err error) *ServiceError {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr
	}
	return nil
}

// GetHTTPStatus returns the HTTP status code for an error.
func GetHTTPStatus(err error) int {
	if serviceErr := GetServiceError(err); serviceErr != nil {
		return serviceErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

package engine

import (
	"fmt"
	"net/http"
)

// Code identifies a fixed failure kind. Every engine failure is reported as
// exactly one of these so transport layers can map it onto their own response
// protocol without inspecting message text.
type Code string

const (
	CodeMissingCredential   Code = "missing_credential"
	CodeInvalidCredential   Code = "invalid_credential"
	CodeUnsupportedProvider Code = "unsupported_provider"
	CodeNetworkFailure      Code = "network_failure"
	CodeUpstreamFailure     Code = "upstream_failure"
	CodeRateLimited         Code = "rate_limited"
	CodeForbidden           Code = "forbidden"
	CodeTimeout             Code = "timeout"
	CodeInvalidRequest      Code = "invalid_request"
	CodeTransportFailure    Code = "transport_failure"
	CodeUnknown             Code = "unknown"
)

// HTTPStatus returns the canonical HTTP status for a code.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeMissingCredential, CodeInvalidCredential:
		return http.StatusUnauthorized
	case CodeUnsupportedProvider, CodeInvalidRequest:
		return http.StatusBadRequest
	case CodeForbidden:
		return http.StatusForbidden
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeNetworkFailure, CodeUpstreamFailure, CodeTransportFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Error is the canonical engine failure. Messages never carry a credential in
// clear form; Classify masks secrets before they reach one of these.
type Error struct {
	Code           Code   `json:"code"`
	Message        string `json:"message"`
	HTTPStatus     int    `json:"-"`
	UpstreamDetail string `json:"upstream_detail,omitempty"`
}

func (e *Error) Error() string {
	if e.UpstreamDetail != "" {
		return fmt.Sprintf("%s: %s (upstream: %s)", e.Code, e.Message, e.UpstreamDetail)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// New creates an Error with the code's canonical status.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message, HTTPStatus: code.HTTPStatus()}
}

// Newf creates an Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// NotReady is the failure returned when an ingestion call arrives before the
// session is active.
func NotReady() *Error {
	return New(CodeInvalidRequest, "session is not ready")
}

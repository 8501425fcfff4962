package engine

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// Classify maps an upstream failure (HTTP status plus response body, or a
// transport error) into the fixed taxonomy. The secret, when provided, is
// masked out of every message before it is surfaced.
func Classify(status int, body []byte, secret string) *Error {
	message := upstreamMessage(body)
	masked := MaskSecretIn(message, secret)

	code := codeForStatus(status)
	if c := codeForMessage(message); c != "" {
		code = c
	}

	err := New(code, classifyText(code))
	err.UpstreamDetail = masked
	return err
}

// ClassifyTransport maps a dial/read/write error into the taxonomy.
func ClassifyTransport(cause error, secret string) *Error {
	if cause == nil {
		return nil
	}
	var engErr *Error
	if errors.As(cause, &engErr) {
		return engErr
	}

	code := CodeTransportFailure
	switch {
	case errors.Is(cause, context.DeadlineExceeded):
		code = CodeTimeout
	case errors.Is(cause, context.Canceled):
		code = CodeTransportFailure
	default:
		var netErr net.Error
		if errors.As(cause, &netErr) {
			if netErr.Timeout() {
				code = CodeTimeout
			} else {
				code = CodeNetworkFailure
			}
		}
	}

	err := New(code, classifyText(code))
	err.UpstreamDetail = MaskSecretIn(cause.Error(), secret)
	return err
}

// upstreamMessage extracts a human-readable message from an upstream error
// body. Bodies are JSON with a nested error.message in the common case, but
// plain text also occurs (proxies, load balancers).
func upstreamMessage(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return ""
	}
	if msg := gjson.GetBytes(body, "error.message"); msg.Exists() {
		return strings.TrimSpace(msg.String())
	}
	if msg := gjson.GetBytes(body, "message"); msg.Exists() {
		return strings.TrimSpace(msg.String())
	}
	return trimmed
}

func codeForStatus(status int) Code {
	switch status {
	case http.StatusUnauthorized:
		return CodeInvalidCredential
	case http.StatusForbidden:
		return CodeForbidden
	case http.StatusTooManyRequests:
		return CodeRateLimited
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return CodeInvalidRequest
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return CodeTimeout
	}
	if status >= 500 {
		return CodeUpstreamFailure
	}
	return CodeUnknown
}

func codeForMessage(message string) Code {
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "invalid api key"),
		strings.Contains(lower, "incorrect api key"),
		strings.Contains(lower, "invalid_api_key"):
		return CodeInvalidCredential
	case strings.Contains(lower, "no api key"),
		strings.Contains(lower, "missing api key"):
		return CodeMissingCredential
	case strings.Contains(lower, "rate limit"):
		return CodeRateLimited
	case strings.Contains(lower, "quota"):
		return CodeRateLimited
	case strings.Contains(lower, "forbidden"),
		strings.Contains(lower, "not allowed to"):
		return CodeForbidden
	case strings.Contains(lower, "timed out"),
		strings.Contains(lower, "timeout"):
		return CodeTimeout
	}
	return ""
}

func classifyText(code Code) string {
	switch code {
	case CodeMissingCredential:
		return "upstream credential is missing"
	case CodeInvalidCredential:
		return "upstream rejected the credential"
	case CodeUnsupportedProvider:
		return "provider is not supported"
	case CodeNetworkFailure:
		return "network failure reaching upstream"
	case CodeUpstreamFailure:
		return "upstream service failure"
	case CodeRateLimited:
		return "upstream rate limit exceeded"
	case CodeForbidden:
		return "upstream denied access"
	case CodeTimeout:
		return "upstream request timed out"
	case CodeInvalidRequest:
		return "upstream rejected the request"
	case CodeTransportFailure:
		return "upstream transport failure"
	default:
		return "unexpected upstream failure"
	}
}

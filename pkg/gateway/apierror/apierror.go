// Package apierror maps engine failures onto the gateway's single JSON error
// envelope.
package apierror

import (
	"context"
	"errors"
	"net/http"

	"github.com/paperwave/studio/pkg/engine"
)

// Payload is the wire form of one failure.
type Payload struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// Envelope wraps every error response body.
type Envelope struct {
	Error *Payload `json:"error"`
}

// FromError reduces any error to a wire payload and HTTP status. Engine
// errors keep their taxonomy; everything else collapses to an opaque
// internal error so incidental detail never leaks to callers.
func FromError(err error, requestID string) (*Payload, int) {
	if err == nil {
		return nil, http.StatusOK
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &Payload{
			Code:      string(engine.CodeTimeout),
			Message:   "request timeout",
			RequestID: requestID,
		}, http.StatusGatewayTimeout
	}
	if errors.Is(err, context.Canceled) {
		return &Payload{
			Code:      string(engine.CodeTransportFailure),
			Message:   "request cancelled",
			RequestID: requestID,
		}, http.StatusRequestTimeout
	}

	var engErr *engine.Error
	if errors.As(err, &engErr) && engErr != nil {
		status := engErr.HTTPStatus
		if status == 0 {
			status = engErr.Code.HTTPStatus()
		}
		return &Payload{
			Code:      string(engErr.Code),
			Message:   engErr.Message,
			RequestID: requestID,
		}, status
	}

	return &Payload{
		Code:      string(engine.CodeUnknown),
		Message:   "internal error",
		RequestID: requestID,
	}, http.StatusInternalServerError
}

package apierror

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/paperwave/studio/pkg/engine"
)

func TestFromError_Nil(t *testing.T) {
	payload, status := FromError(nil, "req_1")
	if payload != nil || status != http.StatusOK {
		t.Fatalf("FromError(nil) = %v, %d", payload, status)
	}
}

func TestFromError_EngineError(t *testing.T) {
	err := fmt.Errorf("handler: %w", engine.New(engine.CodeRateLimited, "slow down"))
	payload, status := FromError(err, "req_1")
	if status != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", status)
	}
	if payload.Code != string(engine.CodeRateLimited) || payload.Message != "slow down" {
		t.Fatalf("payload = %+v", payload)
	}
	if payload.RequestID != "req_1" {
		t.Fatalf("request id = %q", payload.RequestID)
	}
}

func TestFromError_ContextErrors(t *testing.T) {
	payload, status := FromError(context.DeadlineExceeded, "")
	if status != http.StatusGatewayTimeout || payload.Code != string(engine.CodeTimeout) {
		t.Fatalf("deadline: %+v, %d", payload, status)
	}
	payload, status = FromError(context.Canceled, "")
	if status != http.StatusRequestTimeout {
		t.Fatalf("cancel status = %d", status)
	}
	_ = payload
}

func TestFromError_UnknownOpaque(t *testing.T) {
	payload, status := FromError(fmt.Errorf("pq: connection refused to 10.0.0.3"), "req_2")
	if status != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", status)
	}
	if payload.Message != "internal error" {
		t.Fatalf("unknown error leaked detail: %q", payload.Message)
	}
}

package mw

import (
	"net/http"
	"strconv"
	"time"

	"github.com/paperwave/studio/pkg/gateway/apierror"
	"github.com/paperwave/studio/pkg/gateway/auth"
	"github.com/paperwave/studio/pkg/gateway/config"
	"github.com/paperwave/studio/pkg/gateway/ratelimit"
)

func RateLimit(cfg config.Config, limiter *ratelimit.Limiter, next http.Handler) http.Handler {
	if limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Health endpoints must remain cheap and reliable.
		if r.URL.Path == "/healthz" {
			next.ServeHTTP(w, r)
			return
		}
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		caller := "anonymous"
		if c, ok := auth.CallerFrom(r.Context()); ok {
			caller = ratelimit.CallerKeyFromToken(c.Token)
		}

		dec := limiter.AcquireRequest(caller, time.Now())
		if !dec.Allowed {
			reqID, _ := RequestIDFrom(r.Context())
			if dec.RetryAfter > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(dec.RetryAfter))
			}
			writeJSONError(w, http.StatusTooManyRequests, &apierror.Payload{
				Code:      "rate_limited",
				Message:   "rate limit exceeded",
				RequestID: reqID,
			})
			return
		}
		if dec.Permit != nil {
			defer dec.Permit.Release()
		}

		next.ServeHTTP(w, r)
	})
}

package httpx

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const (
	healthResponse      = `{"status":"ok"}`
	unhealthyResponse   = `{"status":"unavailable"}`
	healthCheckDeadline = 2 * time.Second
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// healthHandler returns 200 when every dependency answers, 503 otherwise.
func healthHandler(logger *slog.Logger, deps ...Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, status := healthResponse, http.StatusOK

		ctx, cancel := context.WithTimeout(r.Context(), healthCheckDeadline)
		defer cancel()
		for _, dep := range deps {
			if dep == nil {
				continue
			}
			if err := dep.PingContext(ctx); err != nil {
				if logger != nil {
					logger.WarnContext(ctx, "health check failed", "error", err)
				}
				body, status = unhealthyResponse, http.StatusServiceUnavailable
				break
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if r.Method == http.MethodHead {
			return
		}
		if _, err := io.WriteString(w, body); err != nil {
			// Nothing more to do if the client connection is gone.
			return
		}
	}
}

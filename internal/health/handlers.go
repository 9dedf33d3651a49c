package health

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/noah-isme/backend-invoice/internal/common"
)

const defaultTimeout = 500 * time.Millisecond

// Check is one dependency probed by the readiness endpoint.
type Check struct {
	Name    string
	Timeout time.Duration
	Probe   func(ctx context.Context) error
}

// Handler exposes HTTP handlers for health endpoints.
type Handler struct {
	Checks []Check
}

var draining atomic.Bool

// SetReady flips the process readiness. The API clears it when shutdown
// begins so load balancers stop routing new requests.
func SetReady(ready bool) {
	draining.Store(!ready)
}

// IsReady reports the flag set by SetReady.
func IsReady() bool {
	return !draining.Load()
}

// Live reports liveness status.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready probes every dependency and answers 503 when any probe fails or the
// process is shutting down.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if !IsReady() {
		common.JSON(w, http.StatusServiceUnavailable, map[string]any{"status": "draining"})
		return
	}
	results := make(map[string]string, len(h.Checks))
	healthy := true
	for _, c := range h.Checks {
		if err := c.run(r.Context()); err != nil {
			results[c.Name] = err.Error()
			healthy = false
			continue
		}
		results[c.Name] = "ok"
	}
	status, code := "ok", http.StatusOK
	if !healthy {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	common.JSON(w, code, map[string]any{"status": status, "checks": results})
}

func (c Check) run(ctx context.Context) error {
	if c.Probe == nil {
		return nil
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.Probe(ctx)
}

package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

const (
	StatusUp   = "up"
	StatusDown = "down"
)

// DependencyStatus is one store's answer to a readiness probe
type DependencyStatus struct {
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

// HealthReport is the readiness body
type HealthReport struct {
	Timestamp    time.Time                   `json:"timestamp"`
	Dependencies map[string]DependencyStatus `json:"dependencies"`
	Status       string                      `json:"status"`
}

// CheckFunc pings one dependency
type CheckFunc func(ctx context.Context) error

// HealthChecker pings the gateway's stores. Both mirrors must answer before
// the process reports ready.
type HealthChecker struct {
	mu      sync.RWMutex
	checks  map[string]CheckFunc
	timeout time.Duration
	now     func() time.Time
}

// NewHealthChecker gives each check 2s
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{
		checks:  make(map[string]CheckFunc),
		timeout: 2 * time.Second,
		now:     time.Now,
	}
}

// Register adds a dependency check such as "postgres" or "mongo"
func (h *HealthChecker) Register(name string, check CheckFunc) *HealthChecker {
	h.mu.Lock()
	h.checks[name] = check
	h.mu.Unlock()
	return h
}

// Check pings every dependency concurrently
func (h *HealthChecker) Check(ctx context.Context) HealthReport {
	h.mu.RLock()
	checks := make(map[string]CheckFunc, len(h.checks))
	for name, fn := range h.checks {
		checks[name] = fn
	}
	h.mu.RUnlock()

	report := HealthReport{
		Timestamp:    h.now(),
		Dependencies: make(map[string]DependencyStatus, len(checks)),
		Status:       StatusUp,
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for name, fn := range checks {
		wg.Add(1)
		go func(name string, fn CheckFunc) {
			defer wg.Done()
			dep := h.ping(ctx, fn)

			mu.Lock()
			report.Dependencies[name] = dep
			if dep.Status != StatusUp {
				report.Status = StatusDown
			}
			mu.Unlock()
		}(name, fn)
	}
	wg.Wait()
	return report
}

func (h *HealthChecker) ping(ctx context.Context, fn CheckFunc) DependencyStatus {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	start := time.Now()
	err := fn(ctx)
	dep := DependencyStatus{Status: StatusUp, LatencyMS: time.Since(start).Milliseconds()}
	if err != nil {
		dep.Status = StatusDown
		dep.Error = err.Error()
	}
	return dep
}

// ReadyHandler answers 503 while any dependency is down
func (h *HealthChecker) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := h.Check(r.Context())
		code := http.StatusOK
		if report.Status != StatusUp {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, report)
	}
}

// LiveHandler answers 200 as long as the process can serve HTTP
func LiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": StatusUp})
	}
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

package handlers

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"
)

// HealthChecker defines the interface for health checking components
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthHandler handles health check requests.
// The service is unhealthy only when no network backend answers; a failing
// network or cache degrades it.
type HealthHandler struct {
	networks map[string]HealthChecker
	cache    HealthChecker
}

// NewHealthHandler creates a new health handler. cache may be nil.
func NewHealthHandler(networks map[string]HealthChecker, cache HealthChecker) *HealthHandler {
	return &HealthHandler{
		networks: networks,
		cache:    cache,
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Services  map[string]string `json:"services"`
}

// checkNetworks runs every network check concurrently and returns the failures by name
func (h *HealthHandler) checkNetworks(ctx context.Context) map[string]error {
	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		failures = make(map[string]error)
	)

	for name, checker := range h.networks {
		wg.Add(1)
		go func(name string, checker HealthChecker) {
			defer wg.Done()
			if err := checker.HealthCheck(ctx); err != nil {
				mu.Lock()
				failures[name] = err
				mu.Unlock()
			}
		}(name, checker)
	}
	wg.Wait()

	return failures
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Services:  make(map[string]string),
	}

	failures := h.checkNetworks(ctx)

	names := make([]string, 0, len(h.networks))
	for name := range h.networks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err, failed := failures[name]; failed {
			response.Services[name] = "unhealthy: " + err.Error()
		} else {
			response.Services[name] = "healthy"
		}
	}

	switch {
	case len(h.networks) > 0 && len(failures) == len(h.networks):
		response.Status = "unhealthy"
	case len(failures) > 0:
		response.Status = "degraded"
	}

	// Check cache
	if h.cache != nil {
		if err := h.cache.HealthCheck(ctx); err != nil {
			if response.Status == "healthy" {
				response.Status = "degraded"
			}
			response.Services["cache"] = "unhealthy: " + err.Error()
		} else {
			response.Services["cache"] = "healthy"
		}
	}

	status := http.StatusOK
	if response.Status == "unhealthy" {
		status = http.StatusServiceUnavailable
	}

	respondJSON(w, status, response)
}

// Ready handles GET /ready (Kubernetes readiness probe)
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if len(h.networks) > 0 && len(h.checkNetworks(ctx)) == len(h.networks) {
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// Live handles GET /live (Kubernetes liveness probe)
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("alive"))
}

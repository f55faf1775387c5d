package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bimakw/referral-dashboard/internal/testutil"
)

func networks(eth, bnb bool) map[string]HealthChecker {
	return map[string]HealthChecker{
		"eth": testutil.NewMockHealthChecker(eth),
		"bnb": testutil.NewMockHealthChecker(bnb),
	}
}

func decodeHealth(t *testing.T, rec *httptest.ResponseRecorder) HealthResponse {
	t.Helper()
	var response HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return response
}

func TestNewHealthHandler(t *testing.T) {
	handler := NewHealthHandler(networks(true, true), testutil.NewMockHealthChecker(true))
	if handler == nil {
		t.Fatal("expected non-nil handler")
	}
}

func TestHealthHandler_Health_AllHealthy(t *testing.T) {
	handler := NewHealthHandler(networks(true, true), testutil.NewMockHealthChecker(true))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	handler.Health(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}

	response := decodeHealth(t, rec)
	if response.Status != "healthy" {
		t.Errorf("expected status healthy, got %s", response.Status)
	}
	for _, name := range []string{"eth", "bnb", "cache"} {
		if response.Services[name] != "healthy" {
			t.Errorf("expected %s healthy, got %s", name, response.Services[name])
		}
	}
	if response.Timestamp == "" {
		t.Error("expected non-empty timestamp")
	}
}

func TestHealthHandler_Health_OneNetworkDown(t *testing.T) {
	handler := NewHealthHandler(networks(true, false), nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	handler.Health(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200 for degraded, got %d", rec.Code)
	}
	response := decodeHealth(t, rec)
	if response.Status != "degraded" {
		t.Errorf("expected status degraded, got %s", response.Status)
	}
	if response.Services["bnb"] == "healthy" {
		t.Error("expected bnb to be unhealthy")
	}
}

func TestHealthHandler_Health_AllNetworksDown(t *testing.T) {
	handler := NewHealthHandler(networks(false, false), testutil.NewMockHealthChecker(true))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	handler.Health(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", rec.Code)
	}
	if response := decodeHealth(t, rec); response.Status != "unhealthy" {
		t.Errorf("expected status unhealthy, got %s", response.Status)
	}
}

func TestHealthHandler_Health_CacheUnhealthy(t *testing.T) {
	handler := NewHealthHandler(networks(true, true), testutil.NewMockHealthChecker(false))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	handler.Health(rec, req)

	// Cache unhealthy should result in "degraded" status, not "unhealthy"
	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200 for degraded, got %d", rec.Code)
	}
	response := decodeHealth(t, rec)
	if response.Status != "degraded" {
		t.Errorf("expected status degraded, got %s", response.Status)
	}
	if response.Services["cache"] == "healthy" {
		t.Error("expected cache to be unhealthy")
	}
}

func TestHealthHandler_Health_NoCache(t *testing.T) {
	handler := NewHealthHandler(networks(true, true), nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	handler.Health(rec, req)

	response := decodeHealth(t, rec)
	if _, exists := response.Services["cache"]; exists {
		t.Error("expected no cache entry when cache is disabled")
	}
}

func TestHealthHandler_Ready(t *testing.T) {
	tests := []struct {
		name     string
		eth, bnb bool
		expected int
	}{
		{"all up", true, true, http.StatusOK},
		{"one up", true, false, http.StatusOK},
		{"none up", false, false, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewHealthHandler(networks(tt.eth, tt.bnb), nil)

			req := httptest.NewRequest(http.MethodGet, "/ready", nil)
			rec := httptest.NewRecorder()

			handler.Ready(rec, req)

			if rec.Code != tt.expected {
				t.Errorf("expected status %d, got %d", tt.expected, rec.Code)
			}
		})
	}
}

func TestHealthHandler_Live(t *testing.T) {
	handler := NewHealthHandler(networks(false, false), nil)

	req := httptest.NewRequest(http.MethodGet, "/live", nil)
	rec := httptest.NewRecorder()

	handler.Live(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
	if rec.Body.String() != "alive" {
		t.Errorf("expected body 'alive', got %s", rec.Body.String())
	}
}

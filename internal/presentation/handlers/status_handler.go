package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bimakw/referral-dashboard/internal/application/services"
	"github.com/bimakw/referral-dashboard/internal/domain/entities"
)

// StatusHandler reports the indexing status of every network
type StatusHandler struct {
	status     *services.StatusService
	dataSource entities.DataSource
}

// NewStatusHandler creates a new status handler. status is nil when the
// log-scan source is active.
func NewStatusHandler(status *services.StatusService, dataSource entities.DataSource) *StatusHandler {
	return &StatusHandler{
		status:     status,
		dataSource: dataSource,
	}
}

// RegisterRoutes registers the status routes
func (h *StatusHandler) RegisterRoutes(r chi.Router) {
	r.Get("/status", h.GetStatus)
}

// StatusResponse is the API response for indexer status
type StatusResponse struct {
	Data       map[entities.Chain]entities.NetworkStatus `json:"data"`
	DataSource entities.DataSource                       `json:"data_source"`
}

// GetStatus handles GET /api/v1/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	response := StatusResponse{
		Data:       map[entities.Chain]entities.NetworkStatus{},
		DataSource: h.dataSource,
	}
	if h.status != nil {
		response.Data = h.status.Snapshot()
	}

	respondJSON(w, http.StatusOK, response)
}

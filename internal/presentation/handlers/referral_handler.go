package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/bimakw/referral-dashboard/internal/application/services"
	"github.com/bimakw/referral-dashboard/internal/domain/entities"
)

// ReferralHandler handles one-shot referral summary lookups
type ReferralHandler struct {
	service *services.ReferralService
	logger  *zap.Logger
}

// NewReferralHandler creates a new referral handler
func NewReferralHandler(service *services.ReferralService, logger *zap.Logger) *ReferralHandler {
	return &ReferralHandler{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers the referral routes
func (h *ReferralHandler) RegisterRoutes(r chi.Router) {
	r.Get("/referrals/{address}", h.GetSummary)
}

// GetSummary handles GET /api/v1/referrals/{address}
func (h *ReferralHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")

	response, err := h.service.GetSummary(r.Context(), address)
	if err != nil {
		if errors.Is(err, entities.ErrInvalidAddress) {
			respondError(w, http.StatusBadRequest, "Invalid address format")
			return
		}
		h.logger.Error("Failed to get referral summary", zap.Error(err), zap.String("address", address))
		respondError(w, http.StatusInternalServerError, "Failed to get referral summary")
		return
	}

	respondJSON(w, http.StatusOK, response)
}

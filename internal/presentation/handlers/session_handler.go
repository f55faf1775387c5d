package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/bimakw/referral-dashboard/internal/application/services"
	"github.com/bimakw/referral-dashboard/internal/domain/entities"
)

// maxBodyBytes bounds request bodies of session updates
const maxBodyBytes = 1 << 10

// SessionHandler exposes dashboard sessions over HTTP
type SessionHandler struct {
	manager *services.SessionManager
	logger  *zap.Logger
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(manager *services.SessionManager, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{
		manager: manager,
		logger:  logger,
	}
}

// RegisterRoutes registers the session routes
func (h *SessionHandler) RegisterRoutes(r chi.Router) {
	r.Post("/sessions", h.Create)
	r.Route("/sessions/{id}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Delete("/", h.Delete)
		r.Put("/address", h.SetAddress)
		r.Post("/refresh", h.Refresh)
	})
}

// SessionDTO is the API representation of a session
type SessionDTO struct {
	ID        string `json:"id"`
	CreatedAt string `json:"created_at"`
	services.AggregatorState
}

// SessionResponse is the API response for session operations
type SessionResponse struct {
	Data SessionDTO `json:"data"`
}

// SetAddressRequest is the body of PUT /sessions/{id}/address
type SetAddressRequest struct {
	Address string `json:"address"`
}

// Create handles POST /api/v1/sessions
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	session := h.manager.Create()
	respondJSON(w, http.StatusCreated, sessionResponse(session))
}

// Get handles GET /api/v1/sessions/{id}
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	session, ok := h.lookup(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, sessionResponse(session))
}

// SetAddress handles PUT /api/v1/sessions/{id}/address
func (h *SessionHandler) SetAddress(w http.ResponseWriter, r *http.Request) {
	session, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var req SetAddressRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := session.Aggregator.SetAddress(req.Address); err != nil {
		if errors.Is(err, entities.ErrInvalidAddress) {
			respondError(w, http.StatusBadRequest, "Invalid address format")
			return
		}
		h.logger.Error("Failed to set session address", zap.Error(err), zap.String("session_id", session.ID))
		respondError(w, http.StatusInternalServerError, "Failed to set address")
		return
	}

	respondJSON(w, http.StatusAccepted, sessionResponse(session))
}

// Refresh handles POST /api/v1/sessions/{id}/refresh
func (h *SessionHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	session, ok := h.lookup(w, r)
	if !ok {
		return
	}

	session.Aggregator.Refresh()
	respondJSON(w, http.StatusAccepted, sessionResponse(session))
}

// Delete handles DELETE /api/v1/sessions/{id}
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if !h.manager.Delete(chi.URLParam(r, "id")) {
		respondError(w, http.StatusNotFound, "session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SessionHandler) lookup(w http.ResponseWriter, r *http.Request) (*services.Session, bool) {
	session, ok := h.manager.Get(chi.URLParam(r, "id"))
	if !ok {
		respondError(w, http.StatusNotFound, "session not found")
		return nil, false
	}
	return session, true
}

func sessionResponse(session *services.Session) SessionResponse {
	return SessionResponse{
		Data: SessionDTO{
			ID:              session.ID,
			CreatedAt:       session.CreatedAt.UTC().Format(time.RFC3339),
			AggregatorState: session.Aggregator.Snapshot(),
		},
	}
}

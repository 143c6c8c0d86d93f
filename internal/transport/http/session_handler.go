package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"survey-session-service/internal/app"
	"survey-session-service/internal/domain"
)

// SessionHandler exposes the one REST entry point the live subsystem owns:
// starting a durable session instance from a template, which mints the join
// code participants will connect with.
type SessionHandler struct {
	service  *app.SessionService
	verifier *TokenVerifier
}

func NewSessionHandler(service *app.SessionService, verifier *TokenVerifier) *SessionHandler {
	return &SessionHandler{service: service, verifier: verifier}
}

type startSessionRequest struct {
	TemplateID int64 `json:"templateId"`
}

type startSessionResponse struct {
	JoinCode  string    `json:"joinCode"`
	CreatedAt time.Time `json:"createdAt"`
}

func (h *SessionHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	email, err := h.verifier.Email(bearerToken(r))
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	inst, err := h.service.StartSession(r.Context(), email, req.TemplateID)
	switch {
	case errors.Is(err, domain.ErrTemplateNotFound):
		http.Error(w, "session template not found", http.StatusNotFound)
		return
	case errors.Is(err, domain.ErrNotOwner):
		http.Error(w, "not the template owner", http.StatusForbidden)
		return
	case err != nil:
		log.Printf("start session from template %d: %v", req.TemplateID, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(startSessionResponse{
		JoinCode:  inst.JoinCode,
		CreatedAt: inst.CreatedAt,
	})
}

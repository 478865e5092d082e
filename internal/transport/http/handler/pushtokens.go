package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/offerhub-api/internal/application/pushtoken"
	"github.com/offerhub-api/internal/domain"
	"github.com/offerhub-api/internal/pkg/validate"
	"github.com/offerhub-api/internal/transport/http/middleware"
)

// PushTokenHandler handles device push token registration.
type PushTokenHandler struct {
	svc pushtoken.Service
}

func NewPushTokenHandler(svc pushtoken.Service) *PushTokenHandler {
	return &PushTokenHandler{svc: svc}
}

func (h *PushTokenHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req domain.UpsertPushTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	t, err := h.svc.Upsert(r.Context(), claims.UserID, req)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *PushTokenHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := h.svc.DeactivateOwned(r.Context(), claims.UserID, chi.URLParam(r, "token")); err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "token deactivated"})
}

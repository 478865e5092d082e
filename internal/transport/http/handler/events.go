package handler

import (
	"encoding/json"
	"net/http"

	"github.com/offerhub-api/internal/application/notification"
	"github.com/offerhub-api/internal/domain"
	"github.com/offerhub-api/internal/pkg/validate"
	"github.com/offerhub-api/internal/transport/http/middleware"
)

// NewMessageRequest is posted by the chat subsystem when a message lands.
// Only the fact of the message is consumed; the transcript stays external.
type NewMessageRequest struct {
	MessageID   string `json:"message_id" validate:"required"`
	RecipientID string `json:"recipient_id" validate:"required"`
	ListingID   string `json:"listing_id"`
	Preview     string `json:"preview" validate:"required"`
}

// EventHandler ingests external domain events into the notification pipeline.
type EventHandler struct {
	generator *notification.Generator
}

func NewEventHandler(generator *notification.Generator) *EventHandler {
	return &EventHandler{generator: generator}
}

func (h *EventHandler) NewMessage(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req NewMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	err := h.generator.HandleEvent(r.Context(), domain.NewMessageEvent{
		MessageID:   req.MessageID,
		SenderID:    claims.UserID,
		RecipientID: req.RecipientID,
		ListingID:   req.ListingID,
		Preview:     req.Preview,
	})
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, MessageEnvelope{Message: "event accepted"})
}

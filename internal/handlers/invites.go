package handlers

import (
	"errors"
	"net/http"

	"github.com/HammerMeetNail/livebingo/internal/middleware"
	"github.com/HammerMeetNail/livebingo/internal/services"
)

type InviteHandler struct {
	invites      *services.InviteService
	participants *services.ParticipantService
}

func NewInviteHandler(invites *services.InviteService, participants *services.ParticipantService) *InviteHandler {
	return &InviteHandler{invites: invites, participants: participants}
}

type inviteRequest struct {
	Email string `json:"email"`
}

func (h *InviteHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req inviteRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	sessionID := r.PathValue("id")
	inviterName := ""
	participant, err := h.participants.Get(r.Context(), sessionID, middleware.IdentityFromContext(r.Context()))
	switch {
	case err == nil:
		inviterName = participant.Name
	case errors.Is(err, services.ErrParticipantNotFound), errors.Is(err, services.ErrIdentityRequired):
	default:
		writeServiceError(w, r, err)
		return
	}

	if err := h.invites.Send(r.Context(), sessionID, inviterName, req.Email); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"sent": true})
}

package handlers

import (
	"net/http"
	"strconv"

	"github.com/HammerMeetNail/livebingo/internal/middleware"
	"github.com/HammerMeetNail/livebingo/internal/models"
	"github.com/HammerMeetNail/livebingo/internal/services"
)

type SessionHandler struct {
	sessions     *services.SessionService
	participants *services.ParticipantService
	feed         *services.FeedService
}

func NewSessionHandler(sessions *services.SessionService, participants *services.ParticipantService, feed *services.FeedService) *SessionHandler {
	return &SessionHandler{
		sessions:     sessions,
		participants: participants,
		feed:         feed,
	}
}

type createSessionRequest struct {
	Items string `json:"items"`
}

type joinResponse struct {
	Joined      bool                `json:"joined"`
	Participant *models.Participant `json:"participant"`
}

type renameRequest struct {
	Name string `json:"name"`
}

func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	session, err := h.sessions.Create(r.Context(), middleware.IdentityFromContext(r.Context()), req.Items)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *SessionHandler) Recent(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.feed.Recent(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": summaries})
}

func (h *SessionHandler) Join(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	identity := middleware.IdentityFromContext(r.Context())

	joined, err := h.participants.EnsureJoined(r.Context(), sessionID, identity)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	participant, err := h.participants.Get(r.Context(), sessionID, identity)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	status := http.StatusOK
	if joined {
		status = http.StatusCreated
	}
	writeJSON(w, status, joinResponse{Joined: joined, Participant: participant})
}

func (h *SessionHandler) Participants(w http.ResponseWriter, r *http.Request) {
	participants, err := h.participants.List(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"participants": participants})
}

func (h *SessionHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeServiceError(w, r, services.ErrInvalidCell)
		return
	}

	participant, err := h.participants.Toggle(r.Context(), r.PathValue("id"), middleware.IdentityFromContext(r.Context()), index)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, participant)
}

func (h *SessionHandler) Rename(w http.ResponseWriter, r *http.Request) {
	var req renameRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	participant, err := h.participants.Rename(r.Context(), r.PathValue("id"), middleware.IdentityFromContext(r.Context()), req.Name)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, participant)
}

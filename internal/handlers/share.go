package handlers

import (
	"errors"
	"net/http"

	"github.com/skip2/go-qrcode"

	"github.com/HammerMeetNail/livebingo/internal/middleware"
	"github.com/HammerMeetNail/livebingo/internal/services"
)

const qrSize = 320

// ShareHandler serves the images used to spread a session: a QR code of
// the join link and an OpenGraph board preview.
type ShareHandler struct {
	sessions     *services.SessionService
	participants *services.ParticipantService
	baseURL      string
}

func NewShareHandler(sessions *services.SessionService, participants *services.ParticipantService, baseURL string) *ShareHandler {
	return &ShareHandler{sessions: sessions, participants: participants, baseURL: baseURL}
}

func (h *ShareHandler) QR(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	png, err := qrcode.Encode(services.JoinURL(h.baseURL, session.ID), qrcode.Medium, qrSize)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

// Board renders the session layout. Cells the caller has marked are
// highlighted when the caller has joined.
func (h *ShareHandler) Board(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	session, err := h.sessions.Get(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, services.ErrSessionNotFound) {
			http.NotFound(w, r)
			return
		}
		writeServiceError(w, r, err)
		return
	}

	var marked []int
	if identity := middleware.IdentityFromContext(r.Context()); identity != "" {
		participant, err := h.participants.Get(r.Context(), sessionID, identity)
		if err == nil {
			marked = participant.CheckedIndices
		}
	}

	png, err := services.RenderBoardPNG(session, marked)
	if err != nil {
		http.Error(w, "Failed to render image", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "private, no-cache")
	w.Header().Set("X-Robots-Tag", "noindex")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

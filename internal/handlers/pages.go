package handlers

import (
	"bytes"
	"embed"
	"errors"
	"html/template"
	"net/http"

	"github.com/HammerMeetNail/livebingo/internal/logging"
	"github.com/HammerMeetNail/livebingo/internal/middleware"
	"github.com/HammerMeetNail/livebingo/internal/models"
	"github.com/HammerMeetNail/livebingo/internal/services"
)

//go:embed templates/*.html
var templateFS embed.FS

// PageHandler serves the read-only HTML pages that join links, QR codes and
// sign-in redirects land on.
type PageHandler struct {
	templates    *template.Template
	sessions     *services.SessionService
	participants *services.ParticipantService
	feed         *services.FeedService
	baseURL      string
}

func NewPageHandler(sessions *services.SessionService, participants *services.ParticipantService, feed *services.FeedService, baseURL string) (*PageHandler, error) {
	templates, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	return &PageHandler{
		templates:    templates,
		sessions:     sessions,
		participants: participants,
		feed:         feed,
		baseURL:      baseURL,
	}, nil
}

type pageData struct {
	Title string
	Error string

	Sessions []models.SessionSummary

	SessionID    string
	Session      *models.Session
	Rows         [][]cellView
	Participants []participantView
	JoinURL      string
}

type cellView struct {
	Text   string
	Gap    bool
	Marked bool
}

type participantView struct {
	Name   string
	Marked int
	Self   bool
}

func (h *PageHandler) Home(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.feed.Recent(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	h.render(w, http.StatusOK, "home.html", pageData{
		Title:    "Live Bingo",
		Error:    r.URL.Query().Get("error"),
		Sessions: summaries,
	})
}

// Session shows the board with the caller's marks and who is playing.
func (h *PageHandler) Session(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	data := pageData{
		Title:     "Session " + sessionID,
		Error:     r.URL.Query().Get("error"),
		SessionID: sessionID,
	}

	session, err := h.sessions.Get(r.Context(), sessionID)
	if errors.Is(err, services.ErrSessionNotFound) {
		h.render(w, http.StatusNotFound, "session.html", data)
		return
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	participants, err := h.participants.List(r.Context(), sessionID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	identity := middleware.IdentityFromContext(r.Context())
	var self *models.Participant
	for i := range participants {
		p := &participants[i]
		if p.UserID == identity {
			self = p
		}
		data.Participants = append(data.Participants, participantView{
			Name:   p.Name,
			Marked: len(p.CheckedIndices),
			Self:   p.UserID == identity,
		})
	}

	for row := 0; row < models.Rows; row++ {
		cells := make([]cellView, 0, models.Cols)
		for col, slot := range session.Layout.Row(row) {
			if slot == nil {
				cells = append(cells, cellView{Gap: true})
				continue
			}
			cells = append(cells, cellView{
				Text:   *slot,
				Marked: self != nil && self.IsChecked(row*models.Cols+col),
			})
		}
		data.Rows = append(data.Rows, cells)
	}

	data.Session = session
	data.JoinURL = services.JoinURL(h.baseURL, session.ID)
	h.render(w, http.StatusOK, "session.html", data)
}

func (h *PageHandler) render(w http.ResponseWriter, status int, name string, data pageData) {
	var buf bytes.Buffer
	if err := h.templates.ExecuteTemplate(&buf, name, data); err != nil {
		logging.Error("Template render failed", map[string]interface{}{"template": name, "error": err.Error()})
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

package handlers

import (
	"net/http"
	"time"

	"github.com/HammerMeetNail/livebingo/internal/middleware"
)

type IdentityHandler struct {
	issuer middleware.IdentityIssuer
}

func NewIdentityHandler(issuer middleware.IdentityIssuer) *IdentityHandler {
	return &IdentityHandler{issuer: issuer}
}

type identityResponse struct {
	Identity string `json:"identity"`
}

type tokenResponse struct {
	Identity  string    `json:"identity"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (h *IdentityHandler) Me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, identityResponse{Identity: middleware.IdentityFromContext(r.Context())})
}

// Token hands the caller's identity back as a bearer token for clients
// that do not keep cookies.
func (h *IdentityHandler) Token(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())
	if identity == "" {
		writeError(w, http.StatusUnauthorized, codeIdentityUnavailable, "Identity unavailable")
		return
	}
	token, expires, err := h.issuer.Issue(identity)
	if err != nil {
		writeError(w, http.StatusUnauthorized, codeIdentityUnavailable, "Identity unavailable")
		return
	}
	writeJSON(w, http.StatusCreated, tokenResponse{Identity: identity, Token: token, ExpiresAt: expires})
}

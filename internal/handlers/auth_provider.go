package handlers

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"net/url"
	"strings"

	"github.com/HammerMeetNail/livebingo/internal/logging"
	"github.com/HammerMeetNail/livebingo/internal/services"
)

const (
	oauthStateCookieName = "oauth_state"
	oauthNonceCookieName = "oauth_nonce"
	oauthNextCookieName  = "oauth_next"
	oauthCookieMaxAge    = 10 * 60 // 10 minutes
)

// ProviderLinker maps a verified provider account onto a stable identity.
type ProviderLinker interface {
	FromProvider(provider services.Provider, subject string) string
}

// IdentityCookieSetter stores an identity in the caller's identity cookie.
type IdentityCookieSetter interface {
	SetCookie(w http.ResponseWriter, identity string) error
}

// ProviderAuthHandler runs the OIDC authorization-code flow. A successful
// login replaces the browser's anonymous identity with one derived from the
// provider account, so the same account plays as the same participant on
// every device.
type ProviderAuthHandler struct {
	linker    ProviderLinker
	cookies   IdentityCookieSetter
	providers map[string]services.OAuthProvider
	secure    bool
}

func NewProviderAuthHandler(linker ProviderLinker, cookies IdentityCookieSetter, providers map[services.Provider]services.OAuthProvider, secure bool) *ProviderAuthHandler {
	normalized := make(map[string]services.OAuthProvider, len(providers))
	for key, provider := range providers {
		normalized[strings.ToLower(string(key))] = provider
	}

	return &ProviderAuthHandler{
		linker:    linker,
		cookies:   cookies,
		providers: normalized,
		secure:    secure,
	}
}

func (h *ProviderAuthHandler) ProviderStart(w http.ResponseWriter, r *http.Request) {
	provider := h.getProvider(r)
	if provider == nil {
		http.NotFound(w, r)
		return
	}

	state, err := generateSecureToken(32)
	if err != nil {
		writeError(w, http.StatusInternalServerError, codeInternal, "Failed to start provider auth")
		return
	}
	nonce, err := generateSecureToken(32)
	if err != nil {
		writeError(w, http.StatusInternalServerError, codeInternal, "Failed to start provider auth")
		return
	}

	h.setOAuthCookie(w, oauthStateCookieName, state)
	h.setOAuthCookie(w, oauthNonceCookieName, nonce)
	h.setOAuthCookie(w, oauthNextCookieName, localPath(r.URL.Query().Get("next")))

	http.Redirect(w, r, provider.AuthCodeURL(state, nonce), http.StatusFound)
}

func (h *ProviderAuthHandler) ProviderCallback(w http.ResponseWriter, r *http.Request) {
	provider := h.getProvider(r)
	if provider == nil {
		http.NotFound(w, r)
		return
	}

	if providerErr := r.URL.Query().Get("error"); providerErr != "" {
		h.redirectToError(w, r, providerErr)
		return
	}

	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	if code == "" || state == "" {
		h.redirectToError(w, r, "oauth_missing")
		return
	}

	stateCookie, err := r.Cookie(oauthStateCookieName)
	if err != nil || subtle.ConstantTimeCompare([]byte(stateCookie.Value), []byte(state)) != 1 {
		h.redirectToError(w, r, "oauth_invalid")
		return
	}

	nonceCookie, err := r.Cookie(oauthNonceCookieName)
	if err != nil || nonceCookie.Value == "" {
		h.redirectToError(w, r, "oauth_invalid")
		return
	}

	claims, err := provider.ExchangeAndVerify(r.Context(), code, nonceCookie.Value)
	if err != nil {
		logging.Warn("Provider exchange failed", map[string]interface{}{"error": err.Error()})
		h.redirectToError(w, r, "oauth_exchange")
		return
	}
	if strings.TrimSpace(claims.Subject) == "" {
		h.redirectToError(w, r, "oauth_invalid")
		return
	}

	identity := h.linker.FromProvider(claims.Provider, claims.Subject)
	if err := h.cookies.SetCookie(w, identity); err != nil {
		logging.Error("Provider identity cookie failed", map[string]interface{}{"error": err.Error()})
		h.redirectToError(w, r, codeIdentityUnavailable)
		return
	}

	next := "/"
	if cookie, err := r.Cookie(oauthNextCookieName); err == nil {
		if path := localPath(cookie.Value); path != "" {
			next = path
		}
	}
	for _, name := range []string{oauthStateCookieName, oauthNonceCookieName, oauthNextCookieName} {
		h.setOAuthCookie(w, name, "")
	}
	http.Redirect(w, r, next, http.StatusFound)
}

func (h *ProviderAuthHandler) getProvider(r *http.Request) services.OAuthProvider {
	providerKey := strings.ToLower(r.PathValue("provider"))
	if providerKey == "" {
		return nil
	}
	return h.providers[providerKey]
}

// setOAuthCookie stores a short-lived flow value; an empty value clears it.
func (h *ProviderAuthHandler) setOAuthCookie(w http.ResponseWriter, name, value string) {
	maxAge := oauthCookieMaxAge
	if value == "" {
		maxAge = -1
	}
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/api/auth/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *ProviderAuthHandler) redirectToError(w http.ResponseWriter, r *http.Request, code string) {
	if len(code) > 60 {
		code = code[:60]
	}
	http.Redirect(w, r, "/?error="+url.QueryEscape(code), http.StatusFound)
}

func generateSecureToken(size int) (string, error) {
	data := make([]byte, size)
	if _, err := rand.Read(data); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// localPath accepts only same-origin absolute paths such as /play/abc123.
func localPath(value string) string {
	value = strings.TrimSpace(value)
	if !strings.HasPrefix(value, "/") || strings.HasPrefix(value, "//") || len(value) > 200 {
		return ""
	}
	if strings.ContainsAny(value, "\\\r\n") {
		return ""
	}
	return value
}

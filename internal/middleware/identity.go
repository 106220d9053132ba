package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/HammerMeetNail/livebingo/internal/logging"
)

const IdentityCookieName = "bingo_identity"

type contextKey string

const (
	identityContextKey contextKey = "identity"
	mintedContextKey   contextKey = "identity_minted"
)

// IdentityIssuer is the part of services.IdentityService the middleware uses.
type IdentityIssuer interface {
	NewAnonymous() string
	Issue(identity string) (string, time.Time, error)
	Verify(token string) (string, error)
}

// Identity attaches the caller's identity to the request context.
//
// A bearer token must verify or the request is rejected. Browsers without a
// valid identity cookie are given a fresh anonymous identity.
type Identity struct {
	issuer IdentityIssuer
	secure bool
}

func NewIdentity(issuer IdentityIssuer, secure bool) *Identity {
	return &Identity{issuer: issuer, secure: secure}
}

func (m *Identity) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "" {
			token, ok := strings.CutPrefix(auth, "Bearer ")
			if !ok {
				writeCodedError(w, http.StatusUnauthorized, "identity_unavailable", "Invalid authorization header")
				return
			}
			identity, err := m.issuer.Verify(strings.TrimSpace(token))
			if err != nil {
				writeCodedError(w, http.StatusUnauthorized, "identity_unavailable", "Invalid identity token")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
			return
		}

		if cookie, err := r.Cookie(IdentityCookieName); err == nil && cookie.Value != "" {
			if identity, err := m.issuer.Verify(cookie.Value); err == nil {
				next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
				return
			}
		}

		identity := m.issuer.NewAnonymous()
		if err := m.SetCookie(w, identity); err != nil {
			logging.Error("Failed to issue identity", map[string]interface{}{"error": err.Error()})
			writeCodedError(w, http.StatusUnauthorized, "identity_unavailable", "Identity unavailable")
			return
		}
		ctx := context.WithValue(WithIdentity(r.Context(), identity), mintedContextKey, true)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SetCookie issues a token for identity and stores it in the identity cookie.
func (m *Identity) SetCookie(w http.ResponseWriter, identity string) error {
	token, expires, err := m.issuer.Issue(identity)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     IdentityCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func WithIdentity(ctx context.Context, identity string) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

// IdentityMinted reports whether the identity in ctx was created for this
// request rather than carried by a verified token or cookie.
func IdentityMinted(ctx context.Context) bool {
	minted, _ := ctx.Value(mintedContextKey).(bool)
	return minted
}

// IdentityFromContext returns "" when no identity is attached.
func IdentityFromContext(ctx context.Context) string {
	identity, _ := ctx.Value(identityContextKey).(string)
	return identity
}

package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/hlog"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const IdentityContextKey ContextKey = "identity"

// Identity is the per-request view of the session cookie.
type Identity struct {
	SessionID string
	User      *GithubUser
	Token     string
}

func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, IdentityContextKey, id)
}

// FromContext returns the identity set by Session, or nil.
func FromContext(ctx context.Context) *Identity {
	if id, ok := ctx.Value(IdentityContextKey).(*Identity); ok {
		return id
	}
	return nil
}

// Session makes sure every request carries a valid session token. Missing,
// expired or forged tokens are replaced by a fresh anonymous session.
func (a *Authenticator) Session(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := tokenFromRequest(r, a.cfg.CookieName)

		var id Identity
		claims, err := a.Parse(token)
		switch {
		case err == nil:
			id.SessionID = claims.Subject
			id.User = claims.User()
			if claims.ExpiresAt != nil && time.Until(claims.ExpiresAt.Time) < a.cfg.TokenTTL/2 {
				if token, err = a.Issue(id.SessionID, id.User); err != nil {
					http.Error(w, "Failed to refresh session", http.StatusInternalServerError)
					return
				}
				a.setCookie(w, r, token)
			}
		default:
			if !errors.Is(err, ErrNoToken) {
				hlog.FromRequest(r).Debug().Err(err).Msg("replacing invalid session token")
			}
			id.SessionID = NewSessionID()
			if token, err = a.Issue(id.SessionID, nil); err != nil {
				http.Error(w, "Failed to create session", http.StatusInternalServerError)
				return
			}
			a.setCookie(w, r, token)
		}
		id.Token = token

		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), &id)))
	})
}

// RequireUser rejects requests without a logged-in user when auth is
// enabled. With auth disabled it passes everything through.
func (a *Authenticator) RequireUser(next http.Handler) http.Handler {
	if !a.Enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := FromContext(r.Context())
		if id == nil || id.User == nil {
			http.Error(w, "Authentication required", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *Authenticator) setCookie(w http.ResponseWriter, r *http.Request, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     a.cfg.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(a.cfg.TokenTTL / time.Second),
		HttpOnly: true,
		Secure:   isHTTPS(r),
		SameSite: http.SameSiteLaxMode,
	})
}

// tokenFromRequest prefers an Authorization bearer token over the cookie.
func tokenFromRequest(r *http.Request, cookieName string) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	if c, err := r.Cookie(cookieName); err == nil {
		return c.Value
	}
	return ""
}

func isHTTPS(r *http.Request) bool {
	return r.TLS != nil || strings.HasPrefix(r.Header.Get("X-Forwarded-Proto"), "https")
}

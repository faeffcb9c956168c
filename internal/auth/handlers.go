package auth

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/hlog"
)

const stateCookieName = "oauth_state"

// Register mounts the /auth routes. The status route is always available;
// the login flow only when auth is enabled. Handlers expect Session to run
// first.
func (a *Authenticator) Register(mux *http.ServeMux) {
	mux.HandleFunc("/auth/status", a.handleStatus)
	if !a.Enabled() {
		return
	}
	mux.HandleFunc("/auth/github", a.handleLogin)
	mux.HandleFunc("/auth/callback", a.handleCallback)
	mux.HandleFunc("/auth/me", a.handleMe)
	mux.HandleFunc("/auth/logout", a.handleLogout)
}

func (a *Authenticator) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := FromContext(r.Context())
	writeJSON(w, r, map[string]bool{
		"enabled":       a.Enabled(),
		"authenticated": id != nil && id.User != nil,
	})
}

func (a *Authenticator) handleLogin(w http.ResponseWriter, r *http.Request) {
	state := GenerateState()

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		MaxAge:   600, // 10 minutes
		HttpOnly: true,
		Secure:   isHTTPS(r),
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, a.LoginURL(state), http.StatusTemporaryRedirect)
}

func (a *Authenticator) handleCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")

	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil || state == "" || stateCookie.Value != state {
		http.Error(w, "Invalid state parameter", http.StatusBadRequest)
		return
	}
	http.SetCookie(w, &http.Cookie{Name: stateCookieName, Value: "", Path: "/", MaxAge: -1})

	if code == "" {
		http.Error(w, "Missing code parameter", http.StatusBadRequest)
		return
	}

	accessToken, err := a.ExchangeCode(r.Context(), code)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("oauth code exchange failed")
		http.Error(w, "Failed to exchange code for token", http.StatusInternalServerError)
		return
	}

	user, err := a.GithubUser(r.Context(), accessToken)
	if err != nil {
		http.Error(w, "Failed to get user info: "+err.Error(), http.StatusForbidden)
		return
	}

	// Logging in keeps the session: the analysis and transcript survive.
	sessionID := NewSessionID()
	if id := FromContext(r.Context()); id != nil {
		sessionID = id.SessionID
	}
	token, err := a.Issue(sessionID, user)
	if err != nil {
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}
	a.setCookie(w, r, token)

	hlog.FromRequest(r).Info().Str("login", user.Login).Msg("user logged in")
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (a *Authenticator) handleMe(w http.ResponseWriter, r *http.Request) {
	id := FromContext(r.Context())
	if id == nil || id.User == nil {
		http.Error(w, "Not logged in", http.StatusUnauthorized)
		return
	}
	writeJSON(w, r, AuthResponse{User: *id.User, Token: id.Token})
}

func (a *Authenticator) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessionID := NewSessionID()
	if id := FromContext(r.Context()); id != nil {
		sessionID = id.SessionID
	}
	token, err := a.Issue(sessionID, nil)
	if err != nil {
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}
	a.setCookie(w, r, token)
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("failed to encode response")
	}
}

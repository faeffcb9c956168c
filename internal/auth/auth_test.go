package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

func newTestAuthenticator(enabled bool) *Authenticator {
	return New(Config{
		JwtSecret:    "test-secret",
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "http://localhost/auth/callback",
		Enabled:      enabled,
	})
}

// fakeGithub serves the OAuth token exchange, /user and org membership.
func fakeGithub(t *testing.T, member bool) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/login/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST request, got %s", r.Method)
		}
		if r.Header.Get("Accept") != "application/json" {
			t.Errorf("Expected Accept header 'application/json', got %q", r.Header.Get("Accept"))
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		if r.PostForm.Get("code") != "good-code" {
			_, _ = w.Write([]byte(`{"error":"bad_verification_code","error_description":"The code passed is incorrect or expired."}`))
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"gho_test","token_type":"bearer"}`))
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer gho_test" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.Header.Get("Accept") != "application/vnd.github.v3+json" {
			t.Errorf("Expected Github API Accept header")
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(GithubUser{Login: "octocat", Name: "The Octocat", Email: "octo@example.com"})
	})
	mux.HandleFunc("/orgs/acme/members/octocat", func(w http.ResponseWriter, r *http.Request) {
		if member {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})
	return httptest.NewServer(mux)
}

func TestNewDefaults(t *testing.T) {
	a := New(Config{})
	if a.CookieName() != defaultCookieName {
		t.Errorf("Expected cookie name %q, got %q", defaultCookieName, a.CookieName())
	}
	if a.cfg.TokenTTL != defaultTokenTTL {
		t.Errorf("Expected token TTL %v, got %v", defaultTokenTTL, a.cfg.TokenTTL)
	}
	if len(a.secret) != 32 {
		t.Errorf("Expected generated 32-byte secret, got %d bytes", len(a.secret))
	}
	if a.Enabled() {
		t.Error("Expected auth disabled by default")
	}
}

func TestIssueAndParse(t *testing.T) {
	a := newTestAuthenticator(false)
	sid := NewSessionID()

	token, err := a.Issue(sid, nil)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	claims, err := a.Parse(token)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.Subject != sid {
		t.Errorf("Expected subject %q, got %q", sid, claims.Subject)
	}
	if claims.User() != nil {
		t.Error("Expected anonymous session to have no user")
	}

	token, err = a.Issue(sid, &GithubUser{Login: "octocat", Name: "The Octocat"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	claims, err = a.Parse(token)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if u := claims.User(); u == nil || u.Login != "octocat" || u.Name != "The Octocat" {
		t.Errorf("Unexpected user %+v", u)
	}

	if _, err := a.Issue("", nil); err == nil {
		t.Error("Expected error for empty session id")
	}
}

func TestParseRejects(t *testing.T) {
	a := newTestAuthenticator(false)
	other := New(Config{JwtSecret: "other-secret"})

	foreign, _ := other.Issue(NewSessionID(), nil)

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   NewSessionID(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})
	expiredToken, _ := expired.SignedString(a.secret)

	notUUID := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "not-a-session",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	notUUIDToken, _ := notUUID.SignedString(a.secret)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: NewSessionID()},
	})
	noneToken, _ := none.SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "invalid-token"},
		{"wrong secret", foreign},
		{"expired", expiredToken},
		{"subject not a uuid", notUUIDToken},
		{"none algorithm", noneToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := a.Parse(tt.token); err == nil {
				t.Error("Expected parse error")
			}
		})
	}
}

func TestGenerateState(t *testing.T) {
	state1 := GenerateState()
	state2 := GenerateState()

	if state1 == state2 {
		t.Error("GenerateState should produce different values")
	}
	if len(state1) == 0 {
		t.Error("GenerateState should not return empty string")
	}
}

func TestLoginURL(t *testing.T) {
	a := newTestAuthenticator(true)
	u, err := url.Parse(a.LoginURL("abc"))
	if err != nil {
		t.Fatalf("parse login url: %v", err)
	}
	if u.Host != "github.com" || u.Path != "/login/oauth/authorize" {
		t.Errorf("Unexpected authorize endpoint %s", u)
	}
	q := u.Query()
	if q.Get("client_id") != "client-id" || q.Get("state") != "abc" || q.Get("redirect_uri") != "http://localhost/auth/callback" {
		t.Errorf("Unexpected query %v", q)
	}
	if strings.Contains(q.Get("scope"), "read:org") {
		t.Error("Expected no read:org scope without an org restriction")
	}

	a = New(Config{ClientID: "c", AllowedOrg: "acme"})
	u, _ = url.Parse(a.LoginURL("s"))
	if !strings.Contains(u.Query().Get("scope"), "read:org") {
		t.Error("Expected read:org scope with an org restriction")
	}
}

func TestExchangeCode(t *testing.T) {
	gh := fakeGithub(t, true)
	defer gh.Close()

	a := New(Config{ClientID: "c", ClientSecret: "s", TokenURL: gh.URL + "/login/oauth/access_token"})

	token, err := a.ExchangeCode(t.Context(), "good-code")
	if err != nil {
		t.Fatalf("ExchangeCode: %v", err)
	}
	if token != "gho_test" {
		t.Errorf("Expected token gho_test, got %q", token)
	}

	_, err = a.ExchangeCode(t.Context(), "bad-code")
	if err == nil || !strings.Contains(err.Error(), "incorrect or expired") {
		t.Errorf("Expected exchange error with description, got %v", err)
	}
}

func TestGithubUser(t *testing.T) {
	tests := []struct {
		name    string
		org     string
		member  bool
		token   string
		wantErr string
	}{
		{name: "no org restriction", token: "gho_test"},
		{name: "org member", org: "acme", member: true, token: "gho_test"},
		{name: "not an org member", org: "acme", member: false, token: "gho_test", wantErr: "not a member"},
		{name: "bad token", token: "nope", wantErr: "status 401"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gh := fakeGithub(t, tt.member)
			defer gh.Close()

			a := New(Config{APIURL: gh.URL, AllowedOrg: tt.org})
			user, err := a.GithubUser(t.Context(), tt.token)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("Expected error containing %q, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if user.Login != "octocat" {
				t.Errorf("Expected login octocat, got %q", user.Login)
			}
		})
	}
}

func TestClaimsSerialization(t *testing.T) {
	claims := Claims{
		Login: "octocat",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: uuid.NewString(),
		},
	}
	data, err := json.Marshal(claims)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(data)
	if !strings.Contains(s, `"login":"octocat"`) || !strings.Contains(s, `"sub":`) {
		t.Errorf("Unexpected claims JSON %s", s)
	}
	if strings.Contains(s, `"email"`) {
		t.Errorf("Expected empty fields to be omitted, got %s", s)
	}
}

func BenchmarkIssue(b *testing.B) {
	a := newTestAuthenticator(false)
	sid := NewSessionID()
	for b.Loop() {
		_, _ = a.Issue(sid, nil)
	}
}

func BenchmarkParse(b *testing.B) {
	a := newTestAuthenticator(false)
	token, _ := a.Issue(NewSessionID(), nil)
	for b.Loop() {
		_, _ = a.Parse(token)
	}
}

package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	defaultCookieName = "codelens_session"
	defaultTokenTTL   = 24 * time.Hour

	githubAuthorizeURL = "https://github.com/login/oauth/authorize"
	githubTokenURL     = "https://github.com/login/oauth/access_token"
	githubAPIURL       = "https://api.github.com"
)

var ErrNoToken = errors.New("no session token")

type GithubUser struct {
	Login     string `json:"login"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

type AuthResponse struct {
	User  GithubUser `json:"user"`
	Token string     `json:"token,omitempty"`
}

// Claims is the session token payload. Subject carries the session id; the
// GitHub fields are empty until the browser logs in.
type Claims struct {
	Login     string `json:"login,omitempty"`
	Name      string `json:"name,omitempty"`
	Email     string `json:"email,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
	jwt.RegisteredClaims
}

// User returns the logged-in GitHub user, or nil for an anonymous session.
func (c *Claims) User() *GithubUser {
	if c.Login == "" {
		return nil
	}
	return &GithubUser{Login: c.Login, Name: c.Name, Email: c.Email, AvatarURL: c.AvatarURL}
}

type Config struct {
	JwtSecret    string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AllowedOrg   string
	Enabled      bool
	CookieName   string
	// TokenTTL is the lifetime of a session token; zero means 24h.
	TokenTTL time.Duration

	// GitHub endpoints, overridable for tests and GitHub Enterprise.
	AuthorizeURL string
	TokenURL     string
	APIURL       string
}

// Authenticator issues and validates session tokens and runs the optional
// GitHub OAuth login.
type Authenticator struct {
	cfg    Config
	secret []byte
	http   *http.Client
}

func New(cfg Config) *Authenticator {
	if cfg.CookieName == "" {
		cfg.CookieName = defaultCookieName
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = defaultTokenTTL
	}
	if cfg.AuthorizeURL == "" {
		cfg.AuthorizeURL = githubAuthorizeURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = githubTokenURL
	}
	if cfg.APIURL == "" {
		cfg.APIURL = githubAPIURL
	}

	secret := []byte(cfg.JwtSecret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			panic(fmt.Sprintf("auth: generate secret: %v", err))
		}
		log.Warn().Msg("no JWT secret configured; session tokens will not survive a restart")
	}

	return &Authenticator{
		cfg:    cfg,
		secret: secret,
		http:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Enabled reports whether GitHub login is required for the console.
func (a *Authenticator) Enabled() bool {
	return a.cfg.Enabled
}

func (a *Authenticator) CookieName() string {
	return a.cfg.CookieName
}

// NewSessionID returns a fresh random session id.
func NewSessionID() string {
	return uuid.NewString()
}

// Issue signs a session token for sessionID, carrying user when non-nil.
func (a *Authenticator) Issue(sessionID string, user *GithubUser) (string, error) {
	if sessionID == "" {
		return "", errors.New("session id is required")
	}
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(a.cfg.TokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Subject:   sessionID,
		},
	}
	if user != nil {
		claims.Login = user.Login
		claims.Name = user.Name
		claims.Email = user.Email
		claims.AvatarURL = user.AvatarURL
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// Parse validates a session token and returns its claims.
func (a *Authenticator) Parse(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrNoToken
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if _, err := uuid.Parse(claims.Subject); err != nil {
		return nil, fmt.Errorf("invalid session id: %w", err)
	}
	return claims, nil
}

// GenerateState creates a random state parameter for OAuth
func GenerateState() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "fallback-state-" + fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return base64.URLEncoding.EncodeToString(b)
}

// LoginURL returns the GitHub OAuth authorize URL for state.
func (a *Authenticator) LoginURL(state string) string {
	scope := "read:user,user:email"
	if a.cfg.AllowedOrg != "" {
		scope += ",read:org"
	}
	q := url.Values{}
	q.Set("client_id", a.cfg.ClientID)
	q.Set("redirect_uri", a.cfg.RedirectURL)
	q.Set("scope", scope)
	q.Set("state", state)
	return a.cfg.AuthorizeURL + "?" + q.Encode()
}

// ExchangeCode exchanges an OAuth code for a GitHub access token.
func (a *Authenticator) ExchangeCode(ctx context.Context, code string) (string, error) {
	form := url.Values{}
	form.Set("client_id", a.cfg.ClientID)
	form.Set("client_secret", a.cfg.ClientSecret)
	form.Set("code", code)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.http.Do(req)
	if err != nil {
		return "", err
	}
	defer closeBody(resp)

	var result struct {
		AccessToken      string `json:"access_token"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	if result.AccessToken == "" {
		if result.ErrorDescription != "" {
			return "", fmt.Errorf("failed to get access token: %s", result.ErrorDescription)
		}
		return "", fmt.Errorf("failed to get access token")
	}
	return result.AccessToken, nil
}

// GithubUser fetches the authenticated user and enforces the org restriction.
func (a *Authenticator) GithubUser(ctx context.Context, accessToken string) (*GithubUser, error) {
	resp, err := a.githubGet(ctx, accessToken, "/user")
	if err != nil {
		return nil, err
	}
	defer closeBody(resp)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GitHub API returned status %d", resp.StatusCode)
	}

	var user GithubUser
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, err
	}

	if a.cfg.AllowedOrg != "" && !a.isOrgMember(ctx, accessToken, user.Login, a.cfg.AllowedOrg) {
		return nil, fmt.Errorf("user is not a member of the required organization")
	}
	return &user, nil
}

func (a *Authenticator) isOrgMember(ctx context.Context, accessToken, username, org string) bool {
	resp, err := a.githubGet(ctx, accessToken, fmt.Sprintf("/orgs/%s/members/%s", url.PathEscape(org), url.PathEscape(username)))
	if err != nil {
		return false
	}
	defer closeBody(resp)

	// 204 means user is a public member, 200 means private member
	return resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusNoContent
}

func (a *Authenticator) githubGet(ctx context.Context, accessToken, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(a.cfg.APIURL, "/")+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	return a.http.Do(req)
}

func closeBody(resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close response body")
	}
}

package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

type Specification struct {
	BackendURL     string                 `yaml:"backendURL" envconfig:"BACKEND_URL"`
	RequestTimeout time.Duration          `yaml:"requestTimeout" split_words:"true"`
	AnalysisType   string                 `yaml:"analysisType" split_words:"true"`
	RepoPath       string                 `yaml:"repoPath" split_words:"true"`
	LogLevel       string                 `yaml:"logLevel" split_words:"true"`
	Port           int                    `yaml:"port" split_words:"true"`
	Assistant      AssistantSpecification `yaml:"assistant"`
	Session        SessionSpecification   `yaml:"session"`
	Auth           AuthSpecification      `yaml:"auth"`

	flags *pflag.FlagSet `ignored:"true"`
}

type AssistantSpecification struct {
	Provider  string `yaml:"provider"`
	APIKey    string `yaml:"apiKey" envconfig:"API_KEY"`
	Model     string `yaml:"model"`
	ProjectID string `yaml:"projectID" envconfig:"PROJECT_ID"`
	Location  string `yaml:"location"`
}

type SessionSpecification struct {
	MaxSessions int           `yaml:"maxSessions" split_words:"true"`
	TTL         time.Duration `yaml:"ttl"`
	CookieName  string        `yaml:"cookieName" split_words:"true"`
}

type AuthSpecification struct {
	Enabled            bool   `yaml:"enabled"`
	JwtSecret          string `yaml:"jwtSecret" split_words:"true"`
	GithubClientID     string `yaml:"githubClientID" split_words:"true"`
	GithubClientSecret string `yaml:"githubClientSecret" split_words:"true"`
	GithubRedirectURL  string `yaml:"githubRedirectURL" split_words:"true"`
	GithubAllowedOrg   string `yaml:"githubAllowedOrg" split_words:"true"`
}

const envPrefix = "CODELENS"

func (s *Specification) Usage() {
	fmt.Fprint(os.Stderr, s.flags.FlagUsages())
}

// Load => defaults < YAML < .env/env < flags.
// configPath may be ""; if so we auto-discover.
func Load(configPath string, fs *pflag.FlagSet) (Specification, error) {
	return LoadArgs(configPath, fs, os.Args[1:])
}

// LoadArgs is Load with an explicit argument list.
func LoadArgs(configPath string, fs *pflag.FlagSet, args []string) (Specification, error) {
	var cfg Specification

	setDefaults(&cfg)
	bindFlags(fs, &cfg, args)

	path := configPath
	if path == "" {
		if v := os.Getenv(envPrefix + "_CONFIG"); v != "" {
			path = v
		} else {
			for _, cand := range []string{
				"config/codelens.yaml",
				"config/config.yaml",
				"./codelens.yaml",
				"./config.yaml",
			} {
				if fileExists(cand) {
					path = cand
					break
				}
			}
		}
	}

	if path != "" {
		if !fileExists(path) {
			return Specification{}, fmt.Errorf("config file not found: %s", path)
		}
		if err := loadYAML(path, &cfg); err != nil {
			return Specification{}, fmt.Errorf("load yaml %s: %w", path, err)
		}
	}

	// .env never overrides variables already present in the environment
	if fileExists(".env") {
		if err := godotenv.Load(".env"); err != nil {
			return Specification{}, fmt.Errorf("load .env: %w", err)
		}
	}

	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Specification{}, fmt.Errorf("env override: %w", err)
	}

	if err := fs.Parse(args); err != nil {
		return Specification{}, err
	}
	applyChangedFlags(fs, &cfg)

	if err := cfg.validate(); err != nil {
		return Specification{}, err
	}
	return cfg, nil
}

func (s *Specification) validate() error {
	if strings.TrimSpace(s.BackendURL) == "" {
		return fmt.Errorf("CODELENS_BACKEND_URL is required (env/file/flag)")
	}
	u, err := url.Parse(s.BackendURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid backend url %q", s.BackendURL)
	}
	if s.RequestTimeout < 0 {
		return fmt.Errorf("request timeout must not be negative")
	}
	if strings.TrimSpace(s.LogLevel) == "" {
		s.LogLevel = "info"
	}
	if strings.TrimSpace(s.AnalysisType) == "" {
		s.AnalysisType = "code"
	}
	if s.Session.MaxSessions <= 0 {
		return fmt.Errorf("session max sessions must be positive, got %d", s.Session.MaxSessions)
	}
	if s.Auth.Enabled && strings.TrimSpace(s.Auth.GithubClientID) == "" {
		return fmt.Errorf("auth is enabled but no GitHub client id is configured")
	}
	return nil
}

// ---------- helpers ----------

func loadYAML(path string, into any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(b, into)
}

func fileExists(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && !fi.IsDir()
}

func bindFlags(fs *pflag.FlagSet, c *Specification, args []string) {
	fs.String("config", "", "Path to config file")

	// --config is needed before fs.Parse, which runs after discovery.
	for i, a := range args {
		if a == "--config" {
			if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
				_ = os.Setenv(envPrefix+"_CONFIG", args[i+1])
			}
		} else if strings.HasPrefix(a, "--config=") {
			parts := strings.SplitN(a, "=", 2)
			if len(parts) == 2 {
				_ = os.Setenv(envPrefix+"_CONFIG", parts[1])
			}
		}
	}

	fs.String("backend-url", c.BackendURL, "Base URL of the analysis backend")
	fs.Duration("request-timeout", c.RequestTimeout, "Backend request timeout (0 disables)")
	fs.String("type", c.AnalysisType, "Analysis type (code|changelog)")
	fs.String("repo", c.RepoPath, "Repository path to analyze")

	fs.String("log-level", c.LogLevel, "Log level (debug|info|warn|error)")
	fs.Int("port", c.Port, "Console server port")

	fs.String("assistant-provider", c.Assistant.Provider, "Chat assistant (backend, stub, openai, vertexai)")
	fs.String("assistant-api-key", c.Assistant.APIKey, "Assistant provider API key")
	fs.String("assistant-model", c.Assistant.Model, "Assistant chat model")
	fs.String("assistant-project-id", c.Assistant.ProjectID, "Assistant provider project ID")
	fs.String("assistant-location", c.Assistant.Location, "Assistant provider location/region")

	fs.Int("session-max-sessions", c.Session.MaxSessions, "Maximum number of live console sessions")
	fs.Duration("session-ttl", c.Session.TTL, "Idle lifetime of a console session")
	fs.String("session-cookie-name", c.Session.CookieName, "Name of the session cookie")

	fs.Bool("auth-enabled", c.Auth.Enabled, "Enable GitHub OAuth authentication")
	fs.String("auth-jwt-secret", c.Auth.JwtSecret, "JWT secret for signing session tokens")
	fs.String("auth-github-client-id", c.Auth.GithubClientID, "GitHub OAuth App Client ID")
	fs.String("auth-github-client-secret", c.Auth.GithubClientSecret, "GitHub OAuth App Client Secret")
	fs.String("auth-github-redirect-url", c.Auth.GithubRedirectURL, "GitHub OAuth App Redirect URL")
	fs.String("auth-github-allowed-org", c.Auth.GithubAllowedOrg, "Optional: Restrict login to a GitHub organization")

	copied := pflag.NewFlagSet("temp", pflag.ContinueOnError)
	*copied = *fs
	c.flags = copied
}

func applyChangedFlags(fs *pflag.FlagSet, c *Specification) {
	setStr := func(name string, dst *string) {
		if fs.Changed(name) {
			v, _ := fs.GetString(name)
			*dst = v
		}
	}
	setInt := func(name string, dst *int) {
		if fs.Changed(name) {
			v, _ := fs.GetInt(name)
			*dst = v
		}
	}
	setBool := func(name string, dst *bool) {
		if fs.Changed(name) {
			v, _ := fs.GetBool(name)
			*dst = v
		}
	}
	setDur := func(name string, dst *time.Duration) {
		if fs.Changed(name) {
			v, _ := fs.GetDuration(name)
			*dst = v
		}
	}

	setStr("backend-url", &c.BackendURL)
	setDur("request-timeout", &c.RequestTimeout)
	setStr("type", &c.AnalysisType)
	setStr("repo", &c.RepoPath)

	setStr("log-level", &c.LogLevel)
	setInt("port", &c.Port)

	setStr("assistant-provider", &c.Assistant.Provider)
	setStr("assistant-api-key", &c.Assistant.APIKey)
	setStr("assistant-model", &c.Assistant.Model)
	setStr("assistant-project-id", &c.Assistant.ProjectID)
	setStr("assistant-location", &c.Assistant.Location)

	setInt("session-max-sessions", &c.Session.MaxSessions)
	setDur("session-ttl", &c.Session.TTL)
	setStr("session-cookie-name", &c.Session.CookieName)

	setBool("auth-enabled", &c.Auth.Enabled)
	setStr("auth-jwt-secret", &c.Auth.JwtSecret)
	setStr("auth-github-client-id", &c.Auth.GithubClientID)
	setStr("auth-github-client-secret", &c.Auth.GithubClientSecret)
	setStr("auth-github-redirect-url", &c.Auth.GithubRedirectURL)
	setStr("auth-github-allowed-org", &c.Auth.GithubAllowedOrg)
}

func setDefaults(c *Specification) {
	c.BackendURL = "http://localhost:5000"
	c.RequestTimeout = 60 * time.Second
	c.AnalysisType = "code"
	c.LogLevel = "info"
	c.Port = 8080
	c.Assistant.Provider = "backend"
	c.Assistant.Location = "us-central1"
	c.Session.MaxSessions = 1024
	c.Session.TTL = 2 * time.Hour
	c.Session.CookieName = "codelens_session"
	c.Auth.GithubRedirectURL = "http://localhost:8080/auth/callback"
	c.Auth.Enabled = false
}

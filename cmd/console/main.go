package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	zlog "github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/seanblong/codelens/internal/assistant"
	"github.com/seanblong/codelens/internal/auth"
	"github.com/seanblong/codelens/internal/backend"
	"github.com/seanblong/codelens/internal/config"
	"github.com/seanblong/codelens/internal/console"
	"github.com/seanblong/codelens/internal/session"
)

func main() {
	fs := pflag.NewFlagSet("codelens-console", pflag.ExitOnError)

	cfg, err := config.Load("", fs)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	fs.Usage = cfg.Usage

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Invalid log level '%s': %v", cfg.LogLevel, err)
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
	zlog.Logger = logger
	logger.Info().
		Str("backend", cfg.BackendURL).
		Str("assistant", cfg.Assistant.Provider).
		Str("log_level", cfg.LogLevel).
		Bool("auth_enabled", cfg.Auth.Enabled).
		Msg("starting codelens console")

	bc := backend.New(cfg.BackendURL, cfg.RequestTimeout)

	provider, err := assistant.ParseProvider(cfg.Assistant.Provider)
	if err != nil {
		log.Fatalf("Invalid assistant provider: %v", err)
	}
	ac, err := assistant.NewClient(context.Background(), &assistant.ClientConfig{
		Provider:  provider,
		APIKey:    cfg.Assistant.APIKey,
		Model:     cfg.Assistant.Model,
		ProjectID: cfg.Assistant.ProjectID,
		Location:  cfg.Assistant.Location,
		Backend:   bc,
	})
	if err != nil {
		log.Fatalf("Failed to create assistant client: %v", err)
	}

	authn := auth.New(auth.Config{
		JwtSecret:    cfg.Auth.JwtSecret,
		ClientID:     cfg.Auth.GithubClientID,
		ClientSecret: cfg.Auth.GithubClientSecret,
		RedirectURL:  cfg.Auth.GithubRedirectURL,
		AllowedOrg:   cfg.Auth.GithubAllowedOrg,
		Enabled:      cfg.Auth.Enabled,
		CookieName:   cfg.Session.CookieName,
		TokenTTL:     cfg.Session.TTL,
	})
	if authn.Enabled() {
		logger.Info().Str("allowed_org", cfg.Auth.GithubAllowedOrg).Msg("authentication is ENABLED")
	} else {
		logger.Info().Msg("authentication is DISABLED - running in open mode")
	}

	srv, err := console.New(console.Options{
		Backend:      bc,
		Assistant:    ac,
		Sessions:     session.NewRegistry(cfg.Session.MaxSessions, cfg.Session.TTL),
		Auth:         authn,
		AnalysisType: cfg.AnalysisType,
		ReplyTimeout: cfg.RequestTimeout,
	})
	if err != nil {
		log.Fatalf("Failed to create console: %v", err)
	}

	handler := hlog.NewHandler(logger)(
		hlog.RequestIDHandler("req_id", "X-Request-Id")(
			hlog.AccessHandler(func(r *http.Request, status, size int, dur time.Duration) {
				hlog.FromRequest(r).Info().Str("method", r.Method).Str("path", r.URL.Path).Int("status", status).Int("size", size).Dur("dur", dur).Msg("http")
			})(srv.Handler()),
		),
	)

	address := fmt.Sprintf(":%d", cfg.Port)
	s := &http.Server{Addr: address, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	logger.Info().Str("addr", s.Addr).Msg("console listening")
	log.Fatal(s.ListenAndServe())
}

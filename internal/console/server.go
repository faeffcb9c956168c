// Package console serves the browser front end: a page shell plus HTML
// fragments rendered for each form submission.
package console

import (
	"bytes"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/hlog"

	"github.com/seanblong/codelens/internal/assistant"
	"github.com/seanblong/codelens/internal/auth"
	"github.com/seanblong/codelens/internal/backend"
	"github.com/seanblong/codelens/internal/render"
	"github.com/seanblong/codelens/internal/session"
)

// maxUploadMemory bounds the multipart form held in memory; larger uploads
// spill to temporary files.
const maxUploadMemory = 32 << 20

type Options struct {
	Backend   backend.Client
	Assistant assistant.Client
	Sessions  *session.Registry
	Auth      *auth.Authenticator
	// AnalysisType preselects the type control in the page shell.
	AnalysisType string
	// ReplyTimeout bounds each assistant reply. Zero or less means
	// defaultReplyTimeout.
	ReplyTimeout time.Duration
}

const defaultReplyTimeout = 2 * time.Minute

type Server struct {
	backend      backend.Client
	assistant    assistant.Client
	sessions     *session.Registry
	auth         *auth.Authenticator
	html         *render.HTMLRenderer
	analysisType string
	replyTimeout time.Duration
}

func New(opts Options) (*Server, error) {
	switch {
	case opts.Backend == nil:
		return nil, errors.New("console: backend client is required")
	case opts.Assistant == nil:
		return nil, errors.New("console: assistant client is required")
	case opts.Sessions == nil:
		return nil, errors.New("console: session registry is required")
	case opts.Auth == nil:
		return nil, errors.New("console: authenticator is required")
	}
	kind := opts.AnalysisType
	if kind == "" {
		kind = backend.KindCode
	}
	replyTimeout := opts.ReplyTimeout
	if replyTimeout <= 0 {
		replyTimeout = defaultReplyTimeout
	}
	return &Server{
		backend:      opts.Backend,
		assistant:    opts.Assistant,
		sessions:     opts.Sessions,
		auth:         opts.Auth,
		html:         render.NewHTMLRenderer(),
		analysisType: kind,
		replyTimeout: replyTimeout,
	}, nil
}

// Handler returns the console routes. Everything except /healthz runs with
// a session; /ui routes additionally require a login when auth is enabled.
func (s *Server) Handler() http.Handler {
	ui := http.NewServeMux()
	ui.HandleFunc("/ui/analysis", s.handleAnalysis)
	ui.HandleFunc("/ui/chat", s.handleChat)
	ui.HandleFunc("/ui/transcript", s.handleTranscript)
	ui.HandleFunc("/ui/upload", s.handleUpload)
	ui.HandleFunc("/ui/events", s.handleEvents)

	app := http.NewServeMux()
	app.HandleFunc("/", s.handleIndex)
	app.Handle("/ui/", s.auth.RequireUser(ui))
	s.auth.Register(app)

	root := http.NewServeMux()
	root.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	root.Handle("/", s.auth.Session(app))
	return root
}

// session returns the state of the caller's session. Session must have run.
func (s *Server) session(r *http.Request) (*session.Session, bool) {
	id := auth.FromContext(r.Context())
	if id == nil {
		return nil, false
	}
	return s.sessions.Get(id.SessionID), true
}

// existingSession is session without the create: an expired session stays
// gone.
func (s *Server) existingSession(r *http.Request) (*session.Session, bool) {
	id := auth.FromContext(r.Context())
	if id == nil {
		return nil, false
	}
	return s.sessions.Lookup(id.SessionID)
}

// writeFragment renders into a buffer first so a template failure never
// leaves a half-written fragment.
func (s *Server) writeFragment(w http.ResponseWriter, r *http.Request, status int, fn func(*bytes.Buffer) error) {
	var buf bytes.Buffer
	if err := fn(&buf); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("render fragment")
		http.Error(w, "Failed to render response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("write fragment")
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	s.writeFragment(w, r, status, func(buf *bytes.Buffer) error {
		return s.html.Error(buf, render.BuildError(err))
	})
}

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	return false
}

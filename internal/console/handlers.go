package console

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/hlog"

	"github.com/seanblong/codelens/internal/auth"
	"github.com/seanblong/codelens/internal/backend"
	"github.com/seanblong/codelens/internal/render"
	"github.com/seanblong/codelens/internal/session"
)

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	// The page shell opens the session that /ui/events later attaches to.
	if _, ok := s.session(r); !ok {
		http.Error(w, "No session", http.StatusInternalServerError)
		return
	}

	data := pageData{
		AnalysisType: s.analysisType,
		AuthEnabled:  s.auth.Enabled(),
	}
	if id := auth.FromContext(r.Context()); id != nil && id.User != nil {
		data.User = id.User.Login
	}

	s.writeFragment(w, r, http.StatusOK, func(buf *bytes.Buffer) error {
		return pageTemplate.Execute(buf, data)
	})
}

// handleAnalysis runs one analysis or changelog request. A response whose
// submission has been superseded by a newer one is answered with 204 and
// never rendered.
func (s *Server) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	sess, ok := s.session(r)
	if !ok {
		http.Error(w, "No session", http.StatusInternalServerError)
		return
	}
	if err := r.ParseForm(); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	kind := strings.TrimSpace(r.PostForm.Get("analysis_type"))
	if kind == "" {
		kind = s.analysisType
	}
	repoPath := strings.TrimSpace(r.PostForm.Get("repo_path"))
	logger := hlog.FromRequest(r).With().Str("type", kind).Str("repo_path", repoPath).Logger()

	start := time.Now()
	ticket := sess.BeginAnalysis()
	res, err := backend.Submit(r.Context(), s.backend, kind, repoPath)

	if err != nil {
		if !sess.Current(ticket) {
			logger.Debug().Err(err).Msg("discarding stale analysis failure")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		logger.Warn().Err(err).Dur("dur", time.Since(start)).Msg("analysis failed")
		s.writeError(w, r, http.StatusOK, err)
		return
	}

	// Changelogs complete the ticket with no cache so a later chat does not
	// see an analysis that belonged to a superseded submission.
	if !sess.CompleteAnalysis(ticket, res.Analysis) {
		logger.Debug().Msg("discarding stale analysis result")
		w.WriteHeader(http.StatusNoContent)
		return
	}
	logger.Info().Int("files", res.Analysis.Len()).Dur("dur", time.Since(start)).Msg("analysis served")

	s.writeFragment(w, r, http.StatusOK, func(buf *bytes.Buffer) error {
		if res.Analysis != nil {
			return s.html.Analysis(buf, render.BuildAnalysis(res.Analysis))
		}
		return s.html.Changelog(buf, render.BuildChangelog(res.Changelog))
	})
}

// handleChat appends the message, waits for the reply and returns the
// transcript as committed so far. Replies to earlier messages that are still
// outstanding hold back later ones; they reach the page over /ui/events.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	sess, ok := s.session(r)
	if !ok {
		http.Error(w, "No session", http.StatusInternalServerError)
		return
	}
	if err := r.ParseForm(); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	ticket, err := sess.BeginChat(r.PostForm.Get("message"))
	if errors.Is(err, session.ErrEmptyMessage) {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	// Every ticket must complete or later replies would never commit, so the
	// call outlives a disconnected browser but not the reply timeout.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), s.replyTimeout)
	defer cancel()
	reply, err := s.assistant.Reply(ctx, ticket.Message, ticket.Context)
	if err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("chat reply failed")
	}
	sess.CompleteChat(ticket, reply, err)

	s.renderTranscript(w, r, sess)
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	sess, ok := s.session(r)
	if !ok {
		http.Error(w, "No session", http.StatusInternalServerError)
		return
	}
	s.renderTranscript(w, r, sess)
}

func (s *Server) renderTranscript(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	s.writeFragment(w, r, http.StatusOK, func(buf *bytes.Buffer) error {
		return s.html.Transcript(buf, render.BuildTranscript(sess.Transcript()))
	})
}

// handleUpload forwards the uploaded files to the backend in one request.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	var headers []*multipart.FileHeader
	if r.MultipartForm != nil {
		headers = r.MultipartForm.File["files"]
	}
	if len(headers) == 0 {
		s.writeError(w, r, http.StatusBadRequest, backend.ErrNoFiles)
		return
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			hlog.FromRequest(r).Warn().Err(err).Msg("remove multipart temp files")
		}
	}()

	files := make([]backend.File, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("open %s: %w", fh.Filename, err))
			return
		}
		defer f.Close()
		files = append(files, backend.File{Name: fh.Filename, Content: f})
	}

	results, err := s.backend.AnalyzeFiles(r.Context(), files)
	if err != nil {
		hlog.FromRequest(r).Warn().Err(err).Int("files", len(files)).Msg("upload analysis failed")
		s.writeError(w, r, http.StatusOK, err)
		return
	}

	s.writeFragment(w, r, http.StatusOK, func(buf *bytes.Buffer) error {
		return s.html.Upload(buf, render.BuildUpload(results))
	})
}

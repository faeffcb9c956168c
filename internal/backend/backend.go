// Package backend talks to the analysis service that computes metrics,
// changelogs and chat replies.
package backend

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/seanblong/codelens/pkg/models"
)

const (
	PathAnalyze      = "/analyze"
	PathChangelog    = "/changelog"
	PathChat         = "/api/chat"
	PathAnalyzeFiles = "/api/analyze/files"
)

// KindCode is the analysis type that selects the metrics endpoint. Every
// other value selects the changelog.
const KindCode = "code"

var ErrNoFiles = errors.New("no files to upload")

// EndpointFor maps an analysis type to the backend path serving it.
func EndpointFor(kind string) string {
	if kind == KindCode {
		return PathAnalyze
	}
	return PathChangelog
}

// Client is the set of backend calls the console and CLI make.
type Client interface {
	Analyze(ctx context.Context, repoPath string) (*models.AnalysisResponse, error)
	Changelog(ctx context.Context, repoPath string) (*models.ChangelogResponse, error)
	Chat(ctx context.Context, message string, analysis *models.AnalysisResponse) (*models.ChatResponse, error)
	AnalyzeFiles(ctx context.Context, files []File) ([]models.UploadResult, error)
}

// File is one upload part.
type File struct {
	Name    string
	Content io.Reader
}

// StatusError is returned for non-2xx backend responses.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend returned %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("backend returned %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// Result holds the response of whichever endpoint Submit picked; exactly one
// field is set.
type Result struct {
	Analysis  *models.AnalysisResponse
	Changelog *models.ChangelogResponse
}

// Submit sends repoPath to the endpoint selected by kind.
func Submit(ctx context.Context, c Client, kind, repoPath string) (Result, error) {
	if EndpointFor(kind) == PathAnalyze {
		a, err := c.Analyze(ctx, repoPath)
		if err != nil {
			return Result{}, err
		}
		return Result{Analysis: a}, nil
	}
	cl, err := c.Changelog(ctx, repoPath)
	if err != nil {
		return Result{}, err
	}
	return Result{Changelog: cl}, nil
}

type HTTPClient struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the service at baseURL. A zero timeout leaves
// requests bounded only by their context.
func New(baseURL string, timeout time.Duration) *HTTPClient {
	transport := &http.Transport{}
	if skipTLS, _ := strconv.ParseBool(os.Getenv("CODELENS_SKIP_TLS_VERIFY")); skipTLS {
		transport.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: true,
		}
	}
	return NewWithHTTPClient(baseURL, &http.Client{
		Timeout:   timeout,
		Transport: transport,
	})
}

func NewWithHTTPClient(baseURL string, hc *http.Client) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    hc,
	}
}

func (c *HTTPClient) Analyze(ctx context.Context, repoPath string) (*models.AnalysisResponse, error) {
	var out models.AnalysisResponse
	if err := c.postJSON(ctx, PathAnalyze, models.RepoRequest{RepoPath: repoPath}, &out); err != nil {
		return nil, fmt.Errorf("analyze %s: %w", repoPath, err)
	}
	return &out, nil
}

func (c *HTTPClient) Changelog(ctx context.Context, repoPath string) (*models.ChangelogResponse, error) {
	var out models.ChangelogResponse
	if err := c.postJSON(ctx, PathChangelog, models.RepoRequest{RepoPath: repoPath}, &out); err != nil {
		return nil, fmt.Errorf("changelog %s: %w", repoPath, err)
	}
	return &out, nil
}

func (c *HTTPClient) Chat(ctx context.Context, message string, analysis *models.AnalysisResponse) (*models.ChatResponse, error) {
	var out models.ChatResponse
	req := models.ChatRequest{Message: message, Context: analysis}
	if err := c.postJSON(ctx, PathChat, req, &out); err != nil {
		return nil, fmt.Errorf("chat: %w", err)
	}
	return &out, nil
}

// AnalyzeFiles uploads every file as a "files" part of one multipart request.
func (c *HTTPClient) AnalyzeFiles(ctx context.Context, files []File) ([]models.UploadResult, error) {
	if len(files) == 0 {
		return nil, ErrNoFiles
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, f := range files {
		part, err := mw.CreateFormFile("files", f.Name)
		if err != nil {
			return nil, fmt.Errorf("analyze files: %w", err)
		}
		if _, err := io.Copy(part, f.Content); err != nil {
			return nil, fmt.Errorf("analyze files: read %s: %w", f.Name, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("analyze files: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+PathAnalyzeFiles, &buf)
	if err != nil {
		return nil, fmt.Errorf("analyze files: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	out := []models.UploadResult{}
	if err := c.do(req, &out); err != nil {
		return nil, fmt.Errorf("analyze files: %w", err)
	}
	return out, nil
}

func (c *HTTPClient) postJSON(ctx context.Context, path string, in, out any) error {
	b, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return c.do(req, out)
}

func (c *HTTPClient) do(req *http.Request, out any) error {
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close response body")
		}
	}()

	log.Debug().Str("path", req.URL.Path).Int("status", resp.StatusCode).Dur("dur", time.Since(start)).Msg("backend call")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{StatusCode: resp.StatusCode, Message: errorMessage(resp.Body)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// errorMessage extracts "detail" (FastAPI) or "error" (Flask) from an error
// body, falling back to the trimmed text.
func errorMessage(r io.Reader) string {
	b, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(b) == 0 {
		return ""
	}
	var e struct {
		Detail any    `json:"detail"`
		Error  string `json:"error"`
	}
	if json.Unmarshal(b, &e) == nil {
		if s, ok := e.Detail.(string); ok && s != "" {
			return s
		}
		if e.Error != "" {
			return e.Error
		}
	}
	return strings.TrimSpace(string(b))
}

package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/go-git/go-git/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seanblong/codelens/internal/assistant"
	"github.com/seanblong/codelens/internal/backend"
	"github.com/seanblong/codelens/pkg/models"
)

type fakeService struct {
	mu        sync.Mutex
	repoPaths []string
	uploaded  []string
	failWith  int
}

func (f *fakeService) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	decodeRepo := func(r *http.Request) string {
		var req models.RepoRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		f.mu.Lock()
		f.repoPaths = append(f.repoPaths, req.RepoPath)
		f.mu.Unlock()
		return req.RepoPath
	}
	mux.HandleFunc(backend.PathAnalyze, func(w http.ResponseWriter, r *http.Request) {
		decodeRepo(r)
		if f.failWith != 0 {
			w.WriteHeader(f.failWith)
			_, _ = w.Write([]byte(`{"detail":"boom"}`))
			return
		}
		_, _ = w.Write([]byte(`{"app.py":{"basic_metrics":{"total_lines":12,"code_lines":9},"functions":[{"name":"main"}]}}`))
	})
	mux.HandleFunc(backend.PathChangelog, func(w http.ResponseWriter, r *http.Request) {
		decodeRepo(r)
		_, _ = w.Write([]byte(`{"changelog":"- abc1234: Initial commit (dev)"}`))
	})
	mux.HandleFunc(backend.PathAnalyzeFiles, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		var out []models.UploadResult
		for _, fh := range r.MultipartForm.File["files"] {
			f.mu.Lock()
			f.uploaded = append(f.uploaded, fh.Filename)
			f.mu.Unlock()
			out = append(out, models.UploadResult{Filename: fh.Filename, Lines: 1, Complexity: 2})
		}
		_ = json.NewEncoder(w).Encode(out)
	})
	return mux
}

func newService(t *testing.T, f *fakeService) backend.Client {
	t.Helper()
	ts := httptest.NewServer(f.handler(t))
	t.Cleanup(ts.Close)
	return backend.New(ts.URL, 0)
}

func TestRun_CodeAnalysisWithChat(t *testing.T) {
	svc := &fakeService{}
	var out bytes.Buffer

	err := run(t.Context(), newService(t, svc), assistant.NewStubClient(), options{
		kind: "code",
		repo: "/src/project",
		chat: "  what should I fix?  ",
	}, &out)
	require.NoError(t, err)

	s := out.String()
	assert.Contains(t, s, "== Summary ==")
	assert.Contains(t, s, "== Documentation ==")
	assert.Contains(t, s, "app.py")
	assert.Contains(t, s, "You: what should I fix?")
	assert.Contains(t, s, "Assistant: Received your message about 1 files")
	assert.Equal(t, []string{"/src/project"}, svc.repoPaths)
}

func TestRun_Changelog(t *testing.T) {
	svc := &fakeService{}
	var out bytes.Buffer

	err := run(t.Context(), newService(t, svc), assistant.NewStubClient(), options{
		kind: "changelog",
		repo: "/src/project",
		chat: "summarize",
	}, &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "== Changelog ==\n- abc1234: Initial commit (dev)\n")
	assert.Contains(t, out.String(), "Assistant: Received your message\n")
}

func TestRun_BackendErrorIsPrintedAndChatContinues(t *testing.T) {
	svc := &fakeService{failWith: http.StatusInternalServerError}
	var out bytes.Buffer

	err := run(t.Context(), newService(t, svc), assistant.NewStubClient(), options{
		kind: "code",
		repo: "/src/project",
		chat: "still there?",
	}, &out)
	assert.ErrorIs(t, err, errFailed)
	assert.Contains(t, out.String(), "Error: analyze /src/project: backend returned 500: boom")
	assert.Contains(t, out.String(), "Assistant: Received your message\n")
}

func TestRun_BlankChatSkipped(t *testing.T) {
	var out bytes.Buffer
	err := run(t.Context(), newService(t, &fakeService{}), assistant.NewStubClient(), options{
		kind: "code",
		repo: "/r",
		chat: "   ",
	}, &out)
	require.NoError(t, err)
	assert.NotContains(t, out.String(), "You:")
}

func TestRun_Upload(t *testing.T) {
	dir := t.TempDir()
	for name, body := range map[string]string{"a.py": "x\n", "pkg/b.py": "y\n", "README.md": "docs\n"} {
		p := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	}
	svc := &fakeService{}
	var out bytes.Buffer

	err := run(t.Context(), newService(t, svc), assistant.NewStubClient(), options{
		uploadDir: dir,
		exts:      []string{".py"},
	}, &out)
	require.NoError(t, err)

	uploaded := append([]string(nil), svc.uploaded...)
	sort.Strings(uploaded)
	assert.Equal(t, []string{"a.py", "pkg/b.py"}, uploaded)
	assert.Contains(t, out.String(), "File")
	assert.Contains(t, out.String(), "pkg/b.py")
	assert.Empty(t, svc.repoPaths, "upload mode does not analyze a repository")
}

func TestRun_UploadNothingMatches(t *testing.T) {
	var out bytes.Buffer
	err := run(t.Context(), newService(t, &fakeService{}), assistant.NewStubClient(), options{
		uploadDir: t.TempDir(),
		exts:      []string{".py"},
	}, &out)
	assert.ErrorIs(t, err, errFailed)
	assert.Contains(t, out.String(), "Error: no files to upload")
}

func TestRun_DefaultsToEnclosingRepository(t *testing.T) {
	root, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	_, err = git.PlainInit(root, false)
	require.NoError(t, err)
	sub := filepath.Join(root, "internal")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	t.Chdir(sub)

	svc := &fakeService{}
	var out bytes.Buffer
	err = run(t.Context(), newService(t, svc), assistant.NewStubClient(), options{kind: "code"}, &out)
	require.NoError(t, err)
	require.Len(t, svc.repoPaths, 1)
	got, err := filepath.EvalSymlinks(svc.repoPaths[0])
	require.NoError(t, err)
	assert.Equal(t, root, got)
}

func TestRun_NoRepository(t *testing.T) {
	t.Chdir(t.TempDir())
	var out bytes.Buffer
	err := run(t.Context(), newService(t, &fakeService{}), assistant.NewStubClient(), options{kind: "code"}, &out)
	require.Error(t, err)
	assert.NotErrorIs(t, err, errFailed)
	assert.Contains(t, err.Error(), "no --repo given")
}

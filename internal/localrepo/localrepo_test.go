package localrepo

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func realpath(t *testing.T, p string) string {
	t.Helper()
	r, err := filepath.EvalSymlinks(p)
	require.NoError(t, err)
	return r
}

func TestDetect_FromSubdirectory(t *testing.T) {
	dir := realpath(t, t.TempDir())
	r, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	writeFile(t, filepath.Join(dir, "src", "app.py"), "print('hi')\n")
	wt, err := r.Worktree()
	require.NoError(t, err)
	_, err = wt.Add("src/app.py")
	require.NoError(t, err)
	hash, err := wt.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{Name: "Dev", Email: "dev@example.com", When: time.Now()},
	})
	require.NoError(t, err)

	repo, err := Detect(filepath.Join(dir, "src"))
	require.NoError(t, err)
	assert.Equal(t, dir, realpath(t, repo.Root))
	assert.Equal(t, "master", repo.Branch)
	assert.Equal(t, hash.String()[:7], repo.Head)
}

func TestDetect_EmptyRepository(t *testing.T) {
	dir := realpath(t, t.TempDir())
	_, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	repo, err := Detect(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, realpath(t, repo.Root))
	assert.Empty(t, repo.Branch)
	assert.Empty(t, repo.Head)
}

func TestDetect_NotRepository(t *testing.T) {
	_, err := Detect(t.TempDir())
	assert.ErrorIs(t, err, ErrNotRepository)
}

func TestCollect(t *testing.T) {
	root := t.TempDir()
	for _, p := range []string{
		"main.py",
		"pkg/util.py",
		"pkg/README.md",
		"logo.png",
		".git/config",
		"vendor/lib.py",
		"node_modules/x/index.js",
		"web/app.js",
		"pkg/__pycache__/util.cpython-312.pyc",
	} {
		writeFile(t, filepath.Join(root, p), "x\n")
	}

	tests := []struct {
		name string
		exts []string
		want []string
	}{
		{
			name: "extension filter",
			exts: []string{".py"},
			want: []string{"main.py", "pkg/util.py"},
		},
		{
			name: "extension without dot and mixed case",
			exts: []string{"PY", "js"},
			want: []string{"main.py", "pkg/util.py", "web/app.js"},
		},
		{
			name: "no filter skips binaries and vendored dirs",
			want: []string{"main.py", "pkg/README.md", "pkg/util.py", "web/app.js"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Collect(root, tt.exts)
			require.NoError(t, err)
			rels := make([]string, len(got))
			for i, p := range got {
				rels[i] = rel(root, p)
			}
			assert.Equal(t, tt.want, rels)
		})
	}
}

func TestCollect_MissingRoot(t *testing.T) {
	_, err := Collect(filepath.Join(t.TempDir(), "missing"), nil)
	assert.Error(t, err)
}

func TestOpen(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.py"), "one\n")
	writeFile(t, filepath.Join(root, "sub", "b.py"), "two\n")

	files, closeAll, err := Open(root, []string{filepath.Join(root, "a.py"), filepath.Join(root, "sub", "b.py")})
	require.NoError(t, err)
	defer closeAll()

	require.Len(t, files, 2)
	assert.Equal(t, "a.py", files[0].Name)
	assert.Equal(t, "sub/b.py", files[1].Name)
	b, err := io.ReadAll(files[1].Content)
	require.NoError(t, err)
	assert.Equal(t, "two\n", string(b))
}

func TestOpen_MissingFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.py"), "one\n")

	_, _, err := Open(root, []string{filepath.Join(root, "a.py"), filepath.Join(root, "gone.py")})
	assert.Error(t, err)
}

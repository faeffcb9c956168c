// Package localrepo inspects the working copy the command-line client runs
// against: which git repository it is in and which files to upload.
package localrepo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/karrick/godirwalk"
	"github.com/rs/zerolog/log"

	"github.com/seanblong/codelens/internal/backend"
)

var ErrNotRepository = errors.New("not a git repository")

// Repo describes the git working tree containing a path.
type Repo struct {
	Root   string
	Branch string
	// Head is the abbreviated commit hash; empty before the first commit.
	Head string
}

// Detect finds the repository containing path, walking up parent
// directories like git does.
func Detect(path string) (*Repo, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	r, err := git.PlainOpenWithOptions(abs, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, fmt.Errorf("%s: %w", abs, ErrNotRepository)
		}
		return nil, fmt.Errorf("open repository %s: %w", abs, err)
	}

	wt, err := r.Worktree()
	if err != nil {
		return nil, fmt.Errorf("worktree %s: %w", abs, err)
	}
	repo := &Repo{Root: wt.Filesystem.Root()}

	head, err := r.Head()
	switch {
	case errors.Is(err, plumbing.ErrReferenceNotFound):
		// Fresh repository without commits.
	case err != nil:
		return nil, fmt.Errorf("resolve HEAD: %w", err)
	default:
		if head.Name().IsBranch() {
			repo.Branch = head.Name().Short()
		}
		repo.Head = head.Hash().String()[:7]
	}
	return repo, nil
}

// skipDirs are never descended into when collecting files.
var skipDirs = map[string]bool{
	".git":          true,
	"vendor":        true,
	"node_modules":  true,
	".venv":         true,
	"venv":          true,
	"__pycache__":   true,
	".pytest_cache": true,
	".idea":         true,
	".cache":        true,
}

// binaryExts are skipped when no extension filter is given.
var binaryExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".pdf": true, ".webp": true,
	".zip": true, ".svg": true, ".exe": true, ".dll": true, ".so": true, ".pyc": true,
}

// Collect returns the files under root whose extension is in exts, sorted.
// An empty exts selects every non-binary file.
func Collect(root string, exts []string) ([]string, error) {
	root = filepath.Clean(root)
	want := make(map[string]bool, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		want[e] = true
	}

	if fi, err := os.Stat(root); err != nil {
		return nil, err
	} else if !fi.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}

	var files []string
	err := godirwalk.Walk(root, &godirwalk.Options{
		Unsorted: true,
		Callback: func(path string, de *godirwalk.Dirent) error {
			if de.IsDir() {
				if path != root && skipDirs[de.Name()] {
					return godirwalk.SkipThis
				}
				return nil
			}
			if !de.IsRegular() {
				return nil
			}
			ext := strings.ToLower(filepath.Ext(path))
			if len(want) > 0 {
				if !want[ext] {
					return nil
				}
			} else if binaryExts[ext] {
				return nil
			}
			files = append(files, path)
			return nil
		},
		ErrorCallback: func(path string, err error) godirwalk.ErrorAction {
			log.Warn().Err(err).Str("path", path).Msg("skipping unreadable path")
			return godirwalk.SkipNode
		},
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}

	sort.Strings(files)
	return files, nil
}

// Open opens paths as upload parts named relative to root. The returned
// function closes every opened file.
func Open(root string, paths []string) ([]backend.File, func(), error) {
	var opened []*os.File
	closeAll := func() {
		for _, f := range opened {
			if err := f.Close(); err != nil {
				log.Warn().Err(err).Str("path", f.Name()).Msg("failed to close file")
			}
		}
	}

	files := make([]backend.File, 0, len(paths))
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		opened = append(opened, f)
		files = append(files, backend.File{Name: rel(root, p), Content: f})
	}
	return files, closeAll, nil
}

func rel(root, p string) string {
	r, err := filepath.Rel(root, p)
	if err != nil {
		return p
	}
	return filepath.ToSlash(r)
}

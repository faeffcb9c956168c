package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/seanblong/codelens/internal/assistant"
	"github.com/seanblong/codelens/internal/backend"
	"github.com/seanblong/codelens/internal/config"
	"github.com/seanblong/codelens/internal/localrepo"
	"github.com/seanblong/codelens/internal/render"
	"github.com/seanblong/codelens/internal/session"
)

type options struct {
	kind      string
	repo      string
	uploadDir string
	exts      []string
	chat      string
}

// errFailed marks a run whose failures were already printed.
var errFailed = errors.New("one or more requests failed")

func main() {
	fs := pflag.NewFlagSet("codelens-analyze", pflag.ExitOnError)
	uploadDir := fs.String("upload", "", "Upload the files under this directory for per-file analysis instead of analyzing a repository")
	exts := fs.StringSlice("ext", nil, "Only upload files with these extensions, e.g. --ext .py,.js")
	chat := fs.String("chat", "", "Ask the assistant about the results")

	cfg, err := config.Load("", fs)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	fs.Usage = cfg.Usage

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Invalid log level '%s': %v", cfg.LogLevel, err)
	}
	zlog.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	bc := backend.New(cfg.BackendURL, cfg.RequestTimeout)
	provider, err := assistant.ParseProvider(cfg.Assistant.Provider)
	if err != nil {
		log.Fatalf("Invalid assistant provider: %v", err)
	}
	ac, err := assistant.NewClient(ctx, &assistant.ClientConfig{
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

	o := options{
		kind:      cfg.AnalysisType,
		repo:      cfg.RepoPath,
		uploadDir: *uploadDir,
		exts:      *exts,
		chat:      *chat,
	}
	if err := run(ctx, bc, ac, o, os.Stdout); err != nil {
		if !errors.Is(err, errFailed) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

// run performs one analysis (repository or upload) and an optional chat
// turn, writing text renderings to out. Request failures are printed as
// error banners and reported as errFailed once everything has run.
func run(ctx context.Context, bc backend.Client, ac assistant.Client, o options, out io.Writer) error {
	tr := render.NewTextRenderer()
	sess := session.New("cli")
	failed := false

	report := func(err error) error {
		failed = true
		zlog.Debug().Err(err).Msg("request failed")
		return tr.Error(out, render.BuildError(err))
	}

	if o.uploadDir != "" {
		if err := upload(ctx, bc, tr, o, out); err != nil {
			if rerr := report(err); rerr != nil {
				return rerr
			}
		}
	} else {
		repoPath := o.repo
		if repoPath == "" {
			repo, err := localrepo.Detect(".")
			if err != nil {
				return fmt.Errorf("no --repo given: %w", err)
			}
			zlog.Info().Str("root", repo.Root).Str("branch", repo.Branch).Str("head", repo.Head).Msg("analyzing enclosing repository")
			repoPath = repo.Root
		}

		ticket := sess.BeginAnalysis()
		res, err := backend.Submit(ctx, bc, o.kind, repoPath)
		switch {
		case err != nil:
			if rerr := report(err); rerr != nil {
				return rerr
			}
		case res.Analysis != nil:
			sess.CompleteAnalysis(ticket, res.Analysis)
			if err := tr.Analysis(out, render.BuildAnalysis(res.Analysis)); err != nil {
				return err
			}
		default:
			sess.CompleteAnalysis(ticket, nil)
			if err := tr.Changelog(out, render.BuildChangelog(res.Changelog)); err != nil {
				return err
			}
		}
	}

	if o.chat != "" {
		ticket, err := sess.BeginChat(o.chat)
		if err == nil {
			reply, rerr := ac.Reply(ctx, ticket.Message, ticket.Context)
			if rerr != nil {
				failed = true
			}
			sess.CompleteChat(ticket, reply, rerr)
			if _, err := fmt.Fprintln(out); err != nil {
				return err
			}
			if err := tr.Transcript(out, render.BuildTranscript(sess.Transcript())); err != nil {
				return err
			}
		} else if !errors.Is(err, session.ErrEmptyMessage) {
			return err
		}
	}

	if failed {
		return errFailed
	}
	return nil
}

func upload(ctx context.Context, bc backend.Client, tr *render.TextRenderer, o options, out io.Writer) error {
	paths, err := localrepo.Collect(o.uploadDir, o.exts)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return backend.ErrNoFiles
	}
	zlog.Info().Int("files", len(paths)).Str("dir", o.uploadDir).Msg("uploading files")

	files, closeAll, err := localrepo.Open(o.uploadDir, paths)
	if err != nil {
		return err
	}
	defer closeAll()

	results, err := bc.AnalyzeFiles(ctx, files)
	if err != nil {
		return err
	}
	return tr.Upload(out, render.BuildUpload(results))
}

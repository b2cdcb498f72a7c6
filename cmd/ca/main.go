package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/bkyoung/change-attribution/internal/adapter/attachment"
	"github.com/bkyoung/change-attribution/internal/adapter/cli"
	"github.com/bkyoung/change-attribution/internal/adapter/git"
	githubadapter "github.com/bkyoung/change-attribution/internal/adapter/github"
	"github.com/bkyoung/change-attribution/internal/adapter/jira"
	"github.com/bkyoung/change-attribution/internal/adapter/observability"
	"github.com/bkyoung/change-attribution/internal/adapter/progress"
	storeAdapter "github.com/bkyoung/change-attribution/internal/adapter/store"
	"github.com/bkyoung/change-attribution/internal/adapter/store/sqlite"
	"github.com/bkyoung/change-attribution/internal/config"
	"github.com/bkyoung/change-attribution/internal/usecase/attribute"
	"github.com/bkyoung/change-attribution/internal/usecase/collect"
	"github.com/bkyoung/change-attribution/internal/usecase/pipeline"
	"github.com/bkyoung/change-attribution/internal/usecase/scan"
	"github.com/bkyoung/change-attribution/internal/version"
)

func main() {
	if err := run(); err != nil {
		// Redact tracker and API tokens from URLs in error messages before logging
		log.Println(observability.RedactURLSecrets(err.Error()))
		os.Exit(1)
	}
}

func run() error {
	// Create cancellable context with signal handling for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(config.LoaderOptions{
		ConfigPaths: defaultConfigPaths(),
		FileName:    "ca",
		EnvPrefix:   "CA",
	})
	if err != nil {
		return fmt.Errorf("config load failed: %w", err)
	}

	logger := observability.NewLogger(cfg.Observability.Logging)

	if err := cfg.EnsureDirs(); err != nil {
		return fmt.Errorf("prepare artifact directories: %w", err)
	}

	// Initialize run-history store if enabled
	var recorder pipeline.Recorder
	var history cli.HistorySource
	if cfg.Store.Enabled {
		// Create store directory if it doesn't exist
		storeDir := filepath.Dir(cfg.Store.Path)
		if err := os.MkdirAll(storeDir, 0755); err != nil {
			log.Printf("warning: failed to create store directory: %v", err)
		} else {
			sqliteStore, err := sqlite.NewStore(cfg.Store.Path)
			if err != nil {
				log.Printf("warning: failed to initialize store: %v", err)
			} else {
				rec := storeAdapter.NewRecorder(sqliteStore, logger)
				recorder = rec
				history = sqliteStore
				// Ensure the database is closed on exit
				defer rec.Close()
			}
		}
	}

	stages := pipeline.New(pipeline.Deps{
		Sources:  buildSources(cfg, logger),
		Projects: pipelineProjects(cfg),
		OpenHistory: func(dir string) (scan.History, error) {
			return git.Open(dir)
		},
		Cloner: attribute.ClonerFunc(func(ctx context.Context, src, dest string) (attribute.Repo, error) {
			return git.Clone(ctx, src, dest)
		}),
		NewDownloader: func(bar pipeline.Reporter) pipeline.Downloader {
			return attachment.New(cfg.Download, cfg.Paths.DownloadsDir, bar, logger)
		},
		Recorder: recorder,
		NewProgress: func(total int) pipeline.Reporter {
			return progress.New(total)
		},
		Paths: pipeline.Paths{
			Outputs:   cfg.Paths.OutputsDir,
			Downloads: cfg.Paths.DownloadsDir,
		},
		TrackerBase: cfg.Jira.BrowseURL,
		Log:         logger,
	})

	root := cli.NewRootCommand(cli.Dependencies{
		Pipeline: stages,
		History:  history,
		DefaultScan: cli.DefaultScan{
			MaxCommitsPerBranch: cfg.Scan.MaxCommitsPerBranch,
			MaxCommitsPerIssue:  cfg.Scan.MaxCommitsPerIssue,
			MessageLimit:        cfg.Scan.MessageLimit,
		},
		DefaultExtensions: cfg.Match.Extensions,
		Version:           version.Value(),
	})

	if err := root.ExecuteContext(ctx); err != nil {
		if errors.Is(err, cli.ErrVersionRequested) {
			return nil
		}
		return fmt.Errorf("command failed: %w", err)
	}
	return nil
}

// buildSources assembles the configured issue sources: Jira CSV exports read
// from a local directory, and GitHub issues collected through the API.
func buildSources(cfg config.Config, logger *logrus.Logger) []collect.Source {
	var sources []collect.Source
	if cfg.Jira.CSVDir != "" {
		sources = append(sources, jira.NewReader(cfg.Jira.CSVDir, logger))
	}
	if len(cfg.GitHub.Repos) > 0 {
		sources = append(sources, githubadapter.NewFromConfig(cfg.GitHub, logger))
	}
	return sources
}

// pipelineProjects flattens the configured project map into the stable order
// the stages iterate in.
func pipelineProjects(cfg config.Config) []pipeline.Project {
	names := make([]string, 0, len(cfg.Projects))
	for name := range cfg.Projects {
		names = append(names, name)
	}
	sort.Strings(names)

	projects := make([]pipeline.Project, 0, len(names))
	for _, name := range names {
		p := cfg.Projects[name]
		projects = append(projects, pipeline.Project{
			Name:        name,
			LocalPath:   p.LocalPath,
			BrowseURL:   p.BrowseURL,
			TagPrefixes: p.TagPrefixes,
		})
	}
	return projects
}

func defaultConfigPaths() []string {
	paths := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "ca"))
	}
	return paths
}

// Compile-time interface compliance checks
var _ cli.PipelineRunner = (*pipeline.Stages)(nil)
var _ cli.HistorySource = (*sqlite.Store)(nil)
var _ pipeline.Recorder = (*storeAdapter.Recorder)(nil)
var _ pipeline.Downloader = (*attachment.Downloader)(nil)
var _ collect.Source = (*jira.Reader)(nil)
var _ collect.Source = (*githubadapter.Collector)(nil)
var _ scan.History = (*git.Engine)(nil)
var _ attribute.Repo = (*git.Engine)(nil)

package pipeline

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/samber/lo"

	"github.com/bkyoung/change-attribution/internal/adapter/output/json"
	"github.com/bkyoung/change-attribution/internal/domain"
)

// FetchLogsRequest narrows the download to the named projects; empty fetches
// every project in the scan artifact.
type FetchLogsRequest struct {
	Projects []string
}

// FetchLogsResult reports the download stage outcome.
type FetchLogsResult struct {
	Total      int
	Downloaded int
	Skipped    int
	Failed     int
	Dir        string
}

// FetchLogs downloads the log attachments for every issue in the scan
// artifact. Individual download failures are recorded by the downloader and
// do not fail the stage.
func (s *Stages) FetchLogs(ctx context.Context, req FetchLogsRequest) (FetchLogsResult, error) {
	if s.deps.NewDownloader == nil {
		return FetchLogsResult{}, fmt.Errorf("no downloader configured")
	}

	commitsPath := filepath.Join(s.deps.Paths.Outputs, json.CommitsFile)
	artifact, err := json.LoadIssueCommits(commitsPath)
	if err != nil {
		return FetchLogsResult{}, fmt.Errorf("load scan artifact (run the scan stage first): %w", err)
	}

	names := selectNames(lo.Keys(artifact), req.Projects)
	selected := domain.ProjectIssueCommits{}
	withLogs := 0
	for _, name := range names {
		selected[name] = artifact[name]
		for _, ic := range artifact[name] {
			if len(ic.Issue.Logs) > 0 {
				withLogs++
			}
		}
	}

	runID := s.begin(ctx, "fetch-logs", "all", withLogs)
	bar := s.progress(withLogs)
	defer finishProgress(bar)

	stats, err := s.deps.NewDownloader(bar).Run(ctx, selected)
	if err != nil {
		return FetchLogsResult{}, err
	}

	s.finish(ctx, runID, stats.Downloaded, s.deps.Paths.Downloads)
	return FetchLogsResult{
		Total:      stats.Total,
		Downloaded: stats.Downloaded,
		Skipped:    stats.Skipped,
		Failed:     stats.Failed,
		Dir:        s.deps.Paths.Downloads,
	}, nil
}

package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bkyoung/change-attribution/internal/adapter/output/json"
	"github.com/bkyoung/change-attribution/internal/usecase/collect"
)

// CollectRequest narrows collection to the named sources ("jira", "github");
// empty keeps every configured source.
type CollectRequest struct {
	Sources []string
}

// CollectResult reports what the collect stage gathered and where it was
// written.
type CollectResult struct {
	Issues       int
	WithLogs     int
	IssuesPath   string
	WithLogsPath string
}

// Collect gathers issues from the configured sources, persists the full set,
// and persists the subset carrying log attachments for the stages downstream.
func (s *Stages) Collect(ctx context.Context, req CollectRequest) (CollectResult, error) {
	sources := s.selectSources(req.Sources)
	if len(sources) == 0 {
		return CollectResult{}, fmt.Errorf("no issue sources configured")
	}

	runID := s.begin(ctx, "collect", "all", 0)

	issues, err := collect.New(sources, s.log).Run(ctx)
	if err != nil {
		return CollectResult{}, err
	}

	result := CollectResult{
		Issues:       len(issues),
		IssuesPath:   filepath.Join(s.deps.Paths.Outputs, json.IssuesFile),
		WithLogsPath: filepath.Join(s.deps.Paths.Outputs, json.LogIssuesFile),
	}
	if err := json.Save(result.IssuesPath, issues); err != nil {
		return CollectResult{}, fmt.Errorf("save collected issues: %w", err)
	}

	withLogs := collect.WithLogs(issues)
	result.WithLogs = len(withLogs)
	if err := json.Save(result.WithLogsPath, withLogs); err != nil {
		return CollectResult{}, fmt.Errorf("save issues with logs: %w", err)
	}

	s.finish(ctx, runID, result.WithLogs, result.WithLogsPath)
	return result, nil
}

func (s *Stages) selectSources(requested []string) []collect.Source {
	if len(requested) == 0 {
		return s.deps.Sources
	}
	var out []collect.Source
	for _, source := range s.deps.Sources {
		for _, name := range requested {
			if strings.EqualFold(source.Name(), name) {
				out = append(out, source)
				break
			}
		}
	}
	return out
}

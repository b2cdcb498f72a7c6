package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/bkyoung/change-attribution/internal/adapter/output/json"
	"github.com/bkyoung/change-attribution/internal/domain"
	"github.com/bkyoung/change-attribution/internal/usecase/scan"
)

// ScanRequest bounds one scan run. Projects empty means every project the
// collected issues name; the bounds come pre-resolved from config and flags.
type ScanRequest struct {
	Projects            []string
	Extensions          []string
	MaxCommitsPerBranch int
	MaxCommitsPerIssue  int
	MessageLimit        int
}

// ScanResult reports the scan stage outcome.
type ScanResult struct {
	// Projects counts the project repositories scanned successfully.
	Projects int
	// Issues counts the issues that entered the scan.
	Issues int
	// Matched counts issues with at least one fix commit before filtering.
	Matched int
	// Kept counts issues surviving the deleted-chunk filter.
	Kept         int
	ArtifactPath string
	// Skipped names projects dropped for missing configuration or an
	// unopenable repository.
	Skipped []string
}

// Scan walks each project's repository for fix commits, keeps the issues
// whose commits delete tracked source lines, and writes the scan artifact.
// A project that cannot be scanned is skipped; its issues simply stay out of
// the artifact.
func (s *Stages) Scan(ctx context.Context, req ScanRequest) (ScanResult, error) {
	withLogsPath := filepath.Join(s.deps.Paths.Outputs, json.LogIssuesFile)
	issues, err := json.LoadIssues(withLogsPath)
	if err != nil {
		return ScanResult{}, fmt.Errorf("load collected issues (run the collect stage first): %w", err)
	}

	grouped := lo.GroupBy(issues, func(issue domain.Issue) string { return issue.ProjectName })
	names := selectNames(lo.Keys(grouped), req.Projects)

	result := ScanResult{
		ArtifactPath: filepath.Join(s.deps.Paths.Outputs, json.CommitsFile),
	}
	artifact := domain.ProjectIssueCommits{}

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return ScanResult{}, err
		}

		projectIssues := grouped[name]
		project, ok := s.project(name)
		if !ok {
			s.log.WithFields(logrus.Fields{
				"project": name, "issues": len(projectIssues),
			}).Warn("no configuration for project, skipping")
			result.Skipped = append(result.Skipped, name)
			continue
		}

		kept, matched, err := s.scanProject(ctx, project, projectIssues, req)
		if err != nil {
			if ctx.Err() != nil {
				return ScanResult{}, err
			}
			s.log.WithError(err).WithField("project", name).Error("project scan failed")
			result.Skipped = append(result.Skipped, name)
			continue
		}

		artifact[name] = kept
		result.Projects++
		result.Issues += len(projectIssues)
		result.Matched += matched
		result.Kept += len(kept)
	}

	if err := json.Save(result.ArtifactPath, artifact); err != nil {
		return ScanResult{}, fmt.Errorf("save scan artifact: %w", err)
	}
	return result, nil
}

// scanProject scans one repository under its own run record and applies the
// deleted-chunk filter. It returns the filtered issues and how many issues
// matched at least one commit before filtering.
func (s *Stages) scanProject(ctx context.Context, project Project, issues []domain.Issue, req ScanRequest) (map[string]domain.IssueCommits, int, error) {
	history, err := s.deps.OpenHistory(project.LocalPath)
	if err != nil {
		return nil, 0, domain.NewFailure(domain.FailureConfiguration, "repository "+project.LocalPath, err)
	}

	runID := s.begin(ctx, "scan", strings.ToLower(project.Name), len(issues))
	bar := s.progress(-1)
	defer finishProgress(bar)

	scanner := scan.New(history, scan.Options{
		BrowseURL:           project.BrowseURL,
		MaxCommitsPerBranch: req.MaxCommitsPerBranch,
		MaxCommitsPerIssue:  req.MaxCommitsPerIssue,
		MessageLimit:        req.MessageLimit,
		Progress:            bar,
	}, s.log.WithField("project", project.Name))

	found, err := scanner.Scan(ctx, issues)
	if err != nil {
		return nil, 0, err
	}
	matched := lo.CountBy(lo.Values(found), func(ic domain.IssueCommits) bool {
		return ic.CommitCount > 0
	})

	kept, _ := scan.RetainAttributable(found, req.Extensions, s.log.WithField("project", project.Name))
	s.finish(ctx, runID, len(kept), filepath.Join(s.deps.Paths.Outputs, json.CommitsFile))
	return kept, matched, nil
}

package pipeline

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/bkyoung/change-attribution/internal/adapter/output/csv"
	"github.com/bkyoung/change-attribution/internal/adapter/output/json"
	"github.com/bkyoung/change-attribution/internal/domain"
	"github.com/bkyoung/change-attribution/internal/usecase/export"
)

// ExportRequest narrows the export to the named projects; empty exports
// every attributed project.
type ExportRequest struct {
	Projects []string
}

// ExportResult reports what the export stage wrote.
type ExportResult struct {
	// IssuesBefore and IssuesAfter count issues across projects before and
	// after pruning.
	IssuesBefore int
	IssuesAfter  int
	PrunedPath   string
	ReportPaths  []string
	Summaries    []domain.ProjectSummary
}

// Export prunes issues that attribution could not place, writes the pruned
// artifact, and writes the CSV reports: one issue listing per project, the
// project summary, and the affected-version statistics.
func (s *Stages) Export(ctx context.Context, req ExportRequest) (ExportResult, error) {
	attrsPath := filepath.Join(s.deps.Paths.Outputs, json.AttributionsFile)
	attrs, err := json.LoadAttributions(attrsPath)
	if err != nil {
		return ExportResult{}, fmt.Errorf("load attribution artifact (run the attribute stage first): %w", err)
	}
	commitsPath := filepath.Join(s.deps.Paths.Outputs, json.CommitsFile)
	commits, err := json.LoadIssueCommits(commitsPath)
	if err != nil {
		return ExportResult{}, fmt.Errorf("load scan artifact (run the scan stage first): %w", err)
	}

	names := selectNames(lo.Keys(attrs), req.Projects)
	result := ExportResult{
		PrunedPath: filepath.Join(s.deps.Paths.Outputs, json.PrunedFile),
	}

	inputCount := 0
	for _, name := range names {
		inputCount += len(attrs[name])
	}
	runID := s.begin(ctx, "export", "all", inputCount)

	pruned := domain.ProjectAttributions{}
	var versionRows []domain.VersionStat
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return ExportResult{}, err
		}

		kept, stats := export.Prune(attrs[name], s.log.WithField("project", name))
		pruned[name] = kept
		result.IssuesBefore += stats.Before
		result.IssuesAfter += stats.After

		rows, withoutVersions := export.VersionStats(name, kept)
		versionRows = append(versionRows, rows...)
		if withoutVersions > 0 {
			s.log.WithFields(logrus.Fields{
				"project": name, "issues": withoutVersions,
			}).Warn("attributed issues naming no affected version")
		}
	}

	if err := json.Save(result.PrunedPath, pruned); err != nil {
		return ExportResult{}, fmt.Errorf("save pruned artifact: %w", err)
	}

	var summaries []domain.ProjectSummary
	for _, name := range selectNames(lo.Keys(commits), req.Projects) {
		summaries = append(summaries, export.Summarize(name, commits[name]))

		path := filepath.Join(s.deps.Paths.Outputs, csv.IssuesFileName(name))
		if err := csv.WriteIssues(path, s.deps.TrackerBase, commits[name]); err != nil {
			return ExportResult{}, err
		}
		result.ReportPaths = append(result.ReportPaths, path)
	}
	result.Summaries = summaries

	summaryPath := filepath.Join(s.deps.Paths.Outputs, csv.SummaryFile)
	if err := csv.WriteSummaries(summaryPath, summaries); err != nil {
		return ExportResult{}, err
	}
	result.ReportPaths = append(result.ReportPaths, summaryPath)

	versionsPath := filepath.Join(s.deps.Paths.Outputs, csv.VersionStatsFile)
	if err := csv.WriteVersionStats(versionsPath, versionRows); err != nil {
		return ExportResult{}, err
	}
	result.ReportPaths = append(result.ReportPaths, versionsPath)

	s.finish(ctx, runID, result.IssuesAfter, result.PrunedPath)
	s.log.WithFields(logrus.Fields{
		"issues_before": result.IssuesBefore,
		"issues_after":  result.IssuesAfter,
		"reports":       len(result.ReportPaths),
	}).Info("export complete")
	return result, nil
}

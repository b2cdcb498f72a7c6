// Package csv exports the final datasets as spreadsheet-ready reports: one
// issues-with-commits file per project, a per-project summary, and the
// affected-version prevalence table.
package csv

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"github.com/bkyoung/change-attribution/internal/domain"
)

// Report file names, relative to the outputs directory.
const (
	SummaryFile      = "summary_by_project.csv"
	VersionStatsFile = "affected_versions_summary.csv"
)

var issueHeaders = []string{
	"Issue key",
	"Issue Link",
	"Summary",
	"Status",
	"Priority",
	"Affect Versions",
	"Created",
	"Commit Count",
	"Commit SHAs",
	"Commit GitHub URLs",
}

var safeName = strings.NewReplacer("/", "_", " ", "_")

// IssuesFileName names one project's issue report, with path and space
// characters made filesystem-safe.
func IssuesFileName(project string) string {
	return safeName.Replace(project) + "_issues_with_commits.csv"
}

// WriteIssues writes one project's issues and their fix commits, sorted by
// issue key. trackerBase is the tracker's browse URL; empty leaves the link
// column blank.
func WriteIssues(path, trackerBase string, issues map[string]domain.IssueCommits) error {
	rows := make([][]string, 0, len(issues)+1)
	rows = append(rows, issueHeaders)

	keys := lo.Keys(issues)
	sort.Strings(keys)
	for _, key := range keys {
		record := issues[key]
		issue := record.Issue

		link := ""
		if trackerBase != "" && issue.Key != "" {
			link = strings.TrimRight(trackerBase, "/") + "/" + issue.Key
		}
		shas := lo.Map(record.Commits, func(c domain.Commit, _ int) string { return c.SHA })
		urls := lo.Map(record.Commits, func(c domain.Commit, _ int) string { return c.URL })

		rows = append(rows, []string{
			issue.Key,
			link,
			issue.Summary,
			issue.Status,
			issue.Priority,
			strings.Join(issue.Affects, "; "),
			issue.Created,
			strconv.Itoa(record.CommitCount),
			strings.Join(shas, "; "),
			strings.Join(urls, "; "),
		})
	}
	return writeRows(path, rows)
}

// WriteSummaries writes the per-project dataset summary, sorted by project.
func WriteSummaries(path string, summaries []domain.ProjectSummary) error {
	rows := make([][]string, 0, len(summaries)+1)
	rows = append(rows, []string{
		"Project",
		"Total Issues",
		"Issues with Commits",
		"Total Commits Found",
		"Avg Commits per Issue",
		"Most Common Status",
		"Most Common Priority",
	})

	ordered := make([]domain.ProjectSummary, len(summaries))
	copy(ordered, summaries)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Project < ordered[j].Project })

	for _, s := range ordered {
		rows = append(rows, []string{
			s.Project,
			strconv.Itoa(s.TotalIssues),
			strconv.Itoa(s.IssuesWithCommits),
			strconv.Itoa(s.TotalCommits),
			fmt.Sprintf("%.2f", s.AvgCommits),
			s.TopStatus,
			s.TopPriority,
		})
	}
	return writeRows(path, rows)
}

// WriteVersionStats writes affected-version prevalence rows in the order
// given, which the export stage has already ranked per project.
func WriteVersionStats(path string, stats []domain.VersionStat) error {
	rows := make([][]string, 0, len(stats)+1)
	rows = append(rows, []string{"Project", "Version", "Issue Count", "Percentage", "Sample Issues"})

	for _, s := range stats {
		rows = append(rows, []string{
			s.Project,
			s.Version,
			strconv.Itoa(s.IssueCount),
			fmt.Sprintf("%.1f", s.Percentage),
			strings.Join(s.SampleKeys, ", "),
		})
	}
	return writeRows(path, rows)
}

func writeRows(path string, rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create report directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report file: %w", err)
	}
	defer file.Close()

	if err := csv.NewWriter(file).WriteAll(rows); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

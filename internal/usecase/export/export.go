// Package export refines the attributed dataset for publication: it prunes
// issues that attribution could not place, and aggregates the per-version and
// per-project statistics the CSV exports report.
package export

import (
	"sort"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/bkyoung/change-attribution/internal/domain"
)

// sampleKeysPerVersion bounds the example issue keys in version statistics.
const sampleKeysPerVersion = 3

// PruneStats reports how many issues survived pruning.
type PruneStats struct {
	Before int
	After  int
}

// Prune drops issues whose every analysis result carries an empty change
// list: nothing was attributed, so the issue adds no lines to the dataset.
func Prune(issues map[string]domain.IssueAttribution, log logrus.FieldLogger) (map[string]domain.IssueAttribution, PruneStats) {
	out := make(map[string]domain.IssueAttribution, len(issues))
	for key, attribution := range issues {
		attributed := lo.SomeBy(attribution.AnalysisResults, func(r domain.AnalysisResult) bool {
			return len(r.Changes) > 0
		})
		if attributed {
			out[key] = attribution
		}
	}

	stats := PruneStats{Before: len(issues), After: len(out)}
	log.WithFields(logrus.Fields{
		"before": stats.Before, "after": stats.After,
	}).Info("pruned unattributed issues")
	return out, stats
}

// VersionStats aggregates affected-version prevalence over one project's
// pruned issues. Percentages are relative to the pruned issue count; sample
// keys are collected in sorted-key order, at most three per version. The
// second return value counts issues naming no affected version at all.
func VersionStats(project string, issues map[string]domain.IssueAttribution) ([]domain.VersionStat, int) {
	counts := make(map[string]int)
	samples := make(map[string][]string)
	withoutVersions := 0

	keys := lo.Keys(issues)
	sort.Strings(keys)

	for _, key := range keys {
		versions := lo.Filter(issues[key].Issue.Affects, func(v string, _ int) bool {
			return v != ""
		})
		if len(versions) == 0 {
			withoutVersions++
			continue
		}
		for _, version := range versions {
			counts[version]++
			if len(samples[version]) < sampleKeysPerVersion {
				samples[version] = append(samples[version], key)
			}
		}
	}

	total := len(issues)
	stats := make([]domain.VersionStat, 0, len(counts))
	for version, count := range counts {
		percentage := 0.0
		if total > 0 {
			percentage = float64(count) / float64(total) * 100
		}
		stats = append(stats, domain.VersionStat{
			Project:    project,
			Version:    version,
			IssueCount: count,
			Percentage: percentage,
			SampleKeys: samples[version],
		})
	}

	sort.Slice(stats, func(i, j int) bool {
		if stats[i].IssueCount != stats[j].IssueCount {
			return stats[i].IssueCount > stats[j].IssueCount
		}
		return stats[i].Version < stats[j].Version
	})
	return stats, withoutVersions
}

// Summarize builds the dataset summary row for one project's scanned issues.
func Summarize(project string, issues map[string]domain.IssueCommits) domain.ProjectSummary {
	summary := domain.ProjectSummary{
		Project:     project,
		TotalIssues: len(issues),
	}

	statuses := make(map[string]int)
	priorities := make(map[string]int)
	for _, ic := range issues {
		summary.TotalCommits += ic.CommitCount
		if ic.CommitCount > 0 {
			summary.IssuesWithCommits++
		}
		statuses[ic.Issue.Status]++
		priorities[ic.Issue.Priority]++
	}

	if summary.TotalIssues > 0 {
		summary.AvgCommits = float64(summary.TotalCommits) / float64(summary.TotalIssues)
	}
	summary.TopStatus = mostCommon(statuses)
	summary.TopPriority = mostCommon(priorities)
	return summary
}

// mostCommon returns the highest-count key, breaking ties alphabetically so
// summaries are stable across runs.
func mostCommon(counts map[string]int) string {
	best := ""
	bestCount := 0
	keys := lo.Keys(counts)
	sort.Strings(keys)
	for _, key := range keys {
		if counts[key] > bestCount {
			best = key
			bestCount = counts[key]
		}
	}
	return best
}

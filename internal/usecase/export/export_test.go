package export_test

import (
	"testing"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bkyoung/change-attribution/internal/domain"
	"github.com/bkyoung/change-attribution/internal/usecase/export"
)

// attributed builds an issue record whose analysis results carry the given
// numbers of attributed changes; 0 models a failed or empty analysis.
func attributed(key string, affects []string, changeCounts ...int) domain.IssueAttribution {
	results := make([]domain.AnalysisResult, 0, len(changeCounts))
	for _, n := range changeCounts {
		results = append(results, domain.AnalysisResult{
			AffectedVersion: "1.0.0",
			Changes:         make([]domain.LineAttribution, n),
		})
	}
	return domain.IssueAttribution{
		Issue:           domain.Issue{Key: key, Affects: affects},
		AnalysisResults: results,
	}
}

func TestPrune_DropsIssuesWithoutAttributedChanges(t *testing.T) {
	log, _ := logtest.NewNullLogger()
	issues := map[string]domain.IssueAttribution{
		"HBASE-1": attributed("HBASE-1", []string{"2.0.0"}, 4),
		"HBASE-2": attributed("HBASE-2", []string{"2.0.0"}, 0, 0),
		"HBASE-3": attributed("HBASE-3", []string{"2.1.0"}, 0, 2),
		"HBASE-4": attributed("HBASE-4", []string{"2.1.0"}),
	}

	pruned, stats := export.Prune(issues, log)

	assert.Equal(t, export.PruneStats{Before: 4, After: 2}, stats)
	require.Len(t, pruned, 2)
	assert.Contains(t, pruned, "HBASE-1")
	assert.Contains(t, pruned, "HBASE-3")
}

func TestPrune_EmptyInput(t *testing.T) {
	log, _ := logtest.NewNullLogger()

	pruned, stats := export.Prune(nil, log)

	assert.Equal(t, export.PruneStats{}, stats)
	assert.Empty(t, pruned)
}

func TestVersionStats_CountsAndPercentages(t *testing.T) {
	issues := map[string]domain.IssueAttribution{
		"Z-1": attributed("Z-1", []string{"3.4.0", "3.5.0"}, 1),
		"Z-2": attributed("Z-2", []string{"3.4.0"}, 1),
		"Z-3": attributed("Z-3", []string{""}, 1),
		"Z-4": attributed("Z-4", nil, 1),
	}

	stats, withoutVersions := export.VersionStats("zookeeper", issues)

	assert.Equal(t, 2, withoutVersions)
	require.Len(t, stats, 2)

	assert.Equal(t, "zookeeper", stats[0].Project)
	assert.Equal(t, "3.4.0", stats[0].Version)
	assert.Equal(t, 2, stats[0].IssueCount)
	assert.InDelta(t, 50.0, stats[0].Percentage, 0.001)
	assert.Equal(t, []string{"Z-1", "Z-2"}, stats[0].SampleKeys)

	assert.Equal(t, "3.5.0", stats[1].Version)
	assert.Equal(t, 1, stats[1].IssueCount)
	assert.InDelta(t, 25.0, stats[1].Percentage, 0.001)
	assert.Equal(t, []string{"Z-1"}, stats[1].SampleKeys)
}

func TestVersionStats_SampleKeysCappedInKeyOrder(t *testing.T) {
	issues := map[string]domain.IssueAttribution{
		"A-5": attributed("A-5", []string{"1.0.0"}, 1),
		"A-1": attributed("A-1", []string{"1.0.0"}, 1),
		"A-4": attributed("A-4", []string{"1.0.0"}, 1),
		"A-2": attributed("A-2", []string{"1.0.0"}, 1),
		"A-3": attributed("A-3", []string{"1.0.0"}, 1),
	}

	stats, withoutVersions := export.VersionStats("hbase", issues)

	assert.Zero(t, withoutVersions)
	require.Len(t, stats, 1)
	assert.Equal(t, 5, stats[0].IssueCount)
	assert.InDelta(t, 100.0, stats[0].Percentage, 0.001)
	assert.Equal(t, []string{"A-1", "A-2", "A-3"}, stats[0].SampleKeys)
}

func TestVersionStats_SortsByCountThenVersion(t *testing.T) {
	issues := map[string]domain.IssueAttribution{
		"K-1": attributed("K-1", []string{"2.0.0"}, 1),
		"K-2": attributed("K-2", []string{"1.0.0"}, 1),
		"K-3": attributed("K-3", []string{"0.9.0", "1.0.0"}, 1),
	}

	stats, _ := export.VersionStats("hbase", issues)

	require.Len(t, stats, 3)
	assert.Equal(t, "1.0.0", stats[0].Version)
	assert.Equal(t, "0.9.0", stats[1].Version)
	assert.Equal(t, "2.0.0", stats[2].Version)
}

func TestVersionStats_EmptyInput(t *testing.T) {
	stats, withoutVersions := export.VersionStats("hbase", nil)

	assert.Empty(t, stats)
	assert.Zero(t, withoutVersions)
}

func TestSummarize(t *testing.T) {
	issues := map[string]domain.IssueCommits{
		"H-1": {
			Issue:       domain.Issue{Key: "H-1", Status: "Resolved", Priority: "Major"},
			CommitCount: 2,
		},
		"H-2": {
			Issue:       domain.Issue{Key: "H-2", Status: "Resolved", Priority: "Critical"},
			CommitCount: 1,
		},
		"H-3": {
			Issue: domain.Issue{Key: "H-3", Status: "Closed", Priority: "Minor"},
		},
	}

	summary := export.Summarize("hbase", issues)

	assert.Equal(t, "hbase", summary.Project)
	assert.Equal(t, 3, summary.TotalIssues)
	assert.Equal(t, 2, summary.IssuesWithCommits)
	assert.Equal(t, 3, summary.TotalCommits)
	assert.InDelta(t, 1.0, summary.AvgCommits, 0.001)
	assert.Equal(t, "Resolved", summary.TopStatus)
	// All priorities tie at one; the alphabetically first wins.
	assert.Equal(t, "Critical", summary.TopPriority)
}

func TestSummarize_EmptyProject(t *testing.T) {
	summary := export.Summarize("hbase", nil)

	assert.Equal(t, "hbase", summary.Project)
	assert.Zero(t, summary.TotalIssues)
	assert.Zero(t, summary.AvgCommits)
	assert.Empty(t, summary.TopStatus)
}

package scan

import (
	"github.com/sirupsen/logrus"

	"github.com/bkyoung/change-attribution/internal/domain"
)

// FilterStats reports how many issues survived the attributability filter.
type FilterStats struct {
	Before int
	After  int
}

// RetainAttributable keeps only issues whose fix commits deleted at least one
// line in a modified, tracked source file. Attribution matches a fix commit's
// deleted lines against the affected version's content, so an issue without
// any such line can never produce a match.
func RetainAttributable(issues map[string]domain.IssueCommits, extensions []string, log logrus.FieldLogger) (map[string]domain.IssueCommits, FilterStats) {
	out := make(map[string]domain.IssueCommits, len(issues))
	for key, record := range issues {
		if hasDeletedSourceLine(record.Commits, extensions) {
			out[key] = record
		}
	}

	stats := FilterStats{Before: len(issues), After: len(out)}
	log.WithFields(logrus.Fields{
		"before": stats.Before, "after": stats.After,
	}).Info("dropped issues with nothing to attribute")
	return out, stats
}

func hasDeletedSourceLine(commits []domain.Commit, extensions []string) bool {
	for _, commit := range commits {
		for _, file := range commit.FilesChanged.Files {
			if file.Kind != domain.ChangeModify || !domain.HasAnyExtension(file.Path, extensions) {
				continue
			}
			for _, chunk := range file.Chunks {
				for _, change := range chunk.Changes {
					if change.Kind == domain.LineDelete {
						return true
					}
				}
			}
		}
	}
	return false
}

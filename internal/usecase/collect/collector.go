// Package collect gathers defect reports from issue trackers and narrows
// them to the ones carrying log attachments, which are the only issues the
// downstream dataset can use.
package collect

import (
	"context"
	"fmt"
	"strings"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/bkyoung/change-attribution/internal/domain"
)

// Source is one issue provider: a tracker CSV export tree or a GitHub
// repository listing.
type Source interface {
	Name() string
	Issues(ctx context.Context) ([]domain.Issue, error)
}

// Collector merges issues from all configured sources.
type Collector struct {
	sources []Source
	log     logrus.FieldLogger
}

func New(sources []Source, log logrus.FieldLogger) *Collector {
	return &Collector{sources: sources, log: log}
}

// Run gathers issues from every source, deduplicated by key in first-seen
// order. A failing source fails the run: the collect stage seeds everything
// downstream, and a silently partial dataset is worse than no dataset.
func (c *Collector) Run(ctx context.Context) ([]domain.Issue, error) {
	var out []domain.Issue
	seen := make(map[string]bool)

	for _, source := range c.sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		issues, err := source.Issues(ctx)
		if err != nil {
			return nil, fmt.Errorf("collect from %s: %w", source.Name(), err)
		}

		fresh := 0
		for _, issue := range issues {
			if issue.Key == "" || seen[issue.Key] {
				continue
			}
			seen[issue.Key] = true
			out = append(out, issue)
			fresh++
		}
		c.log.WithFields(logrus.Fields{
			"source": source.Name(), "issues": len(issues), "new": fresh,
		}).Info("source collected")
	}

	byProject := lo.CountValuesBy(out, func(issue domain.Issue) string {
		return issue.ProjectName
	})
	c.log.WithFields(logrus.Fields{
		"issues": len(out), "projects": byProject,
	}).Info("collection complete")

	return out, nil
}

// WithLogs keeps issues that have at least one attachment whose filename
// contains "log" (case-insensitive), recording those attachments on the
// issue's Logs field.
func WithLogs(issues []domain.Issue) []domain.Issue {
	var out []domain.Issue
	for _, issue := range issues {
		logs := lo.Filter(issue.Attachments, func(a domain.Attachment, _ int) bool {
			return strings.Contains(strings.ToLower(a.Filename), "log")
		})
		if len(logs) == 0 {
			continue
		}
		issue.Logs = logs
		out = append(out, issue)
	}
	return out
}

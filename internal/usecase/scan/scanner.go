// Package scan finds the fix commits for tracker issues by walking branch
// history once and matching every issue key against each commit message.
package scan

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/bkyoung/change-attribution/internal/diff"
	"github.com/bkyoung/change-attribution/internal/domain"
)

// History is the view of repository history the scanner walks.
type History interface {
	Branches() ([]string, error)
	WalkBranch(ctx context.Context, branch string, limit int, visit func(domain.Commit) error) error
	CommitPatch(ctx context.Context, rev string) (string, error)
}

// Progress receives coarse progress updates during long walks. It is
// satisfied by *progressbar.ProgressBar.
type Progress interface {
	Describe(text string)
	Add(n int) error
}

// Options bound the scan and shape the stored commit records.
type Options struct {
	// BrowseURL is the repository's web front end, used to build commit
	// links. Empty leaves links unset.
	BrowseURL string
	// MaxCommitsPerBranch caps how many commits each branch walk visits.
	MaxCommitsPerBranch int
	// MaxCommitsPerIssue caps how many fix commits are recorded per issue.
	MaxCommitsPerIssue int
	// MessageLimit truncates stored commit messages to this many characters.
	MessageLimit int
	// Progress, when set, receives one Add per visited commit and a Describe
	// per branch.
	Progress Progress
}

const (
	defaultMaxCommitsPerBranch = 50000
	defaultMaxCommitsPerIssue  = 5
	defaultMessageLimit        = 300
)

// errScanComplete ends the walk once every issue holds its maximum number of
// commits. It never escapes Scan.
var errScanComplete = errors.New("all issues at commit capacity")

// Scanner matches issue keys against commit messages across all branches of
// one repository.
type Scanner struct {
	history History
	opts    Options
	log     logrus.FieldLogger
}

func New(history History, opts Options, log logrus.FieldLogger) *Scanner {
	if opts.MaxCommitsPerBranch <= 0 {
		opts.MaxCommitsPerBranch = defaultMaxCommitsPerBranch
	}
	if opts.MaxCommitsPerIssue <= 0 {
		opts.MaxCommitsPerIssue = defaultMaxCommitsPerIssue
	}
	if opts.MessageLimit <= 0 {
		opts.MessageLimit = defaultMessageLimit
	}
	return &Scanner{history: history, opts: opts, log: log}
}

type issueMatcher struct {
	issue   domain.Issue
	pattern *regexp.Regexp
	commits []domain.Commit
}

// Scan walks every branch once, newest commits first, and matches all issue
// keys in a single pass. A commit is examined once no matter how many
// branches reach it; the first branch to see it names its Branch field.
// Merge commits count as seen but are never matched. The result holds an
// entry for every input issue, including those with no commits.
func (s *Scanner) Scan(ctx context.Context, issues []domain.Issue) (map[string]domain.IssueCommits, error) {
	out := make(map[string]domain.IssueCommits, len(issues))
	if len(issues) == 0 {
		return out, nil
	}

	matchers := make([]*issueMatcher, 0, len(issues))
	byKey := make(map[string]*issueMatcher, len(issues))
	for _, issue := range issues {
		if _, dup := byKey[issue.Key]; dup {
			continue
		}
		m := &issueMatcher{issue: issue, pattern: keyPattern(issue.Key)}
		matchers = append(matchers, m)
		byKey[issue.Key] = m
	}

	branches, err := s.history.Branches()
	if err != nil {
		return nil, domain.NewFailure(domain.FailureOperational, "list branches", err)
	}

	processed := make(map[string]struct{})
	remaining := len(matchers)
	scanned := 0

	for i, branch := range branches {
		if remaining == 0 {
			break
		}
		s.describe(fmt.Sprintf("scanning %s (%d/%d)", branch, i+1, len(branches)))

		err := s.history.WalkBranch(ctx, branch, s.opts.MaxCommitsPerBranch, func(c domain.Commit) error {
			s.step()
			if _, ok := processed[c.FullSHA]; ok {
				return nil
			}
			processed[c.FullSHA] = struct{}{}
			scanned++
			if c.NumParents > 1 {
				return nil
			}

			var record *domain.Commit
			for _, m := range matchers {
				if len(m.commits) >= s.opts.MaxCommitsPerIssue {
					continue
				}
				if !m.pattern.MatchString(c.Message) {
					continue
				}
				if record == nil {
					r, err := s.storedCommit(ctx, c)
					if err != nil {
						if ctx.Err() != nil {
							return ctx.Err()
						}
						s.log.WithError(err).WithField("sha", c.SHA).Warn("skipping unreadable commit")
						return nil
					}
					record = &r
				}
				m.commits = append(m.commits, *record)
				if len(m.commits) == s.opts.MaxCommitsPerIssue {
					remaining--
				}
			}
			if remaining == 0 {
				return errScanComplete
			}
			return nil
		})
		switch {
		case err == nil:
		case errors.Is(err, errScanComplete):
			s.log.Info("every issue reached its commit cap, ending scan early")
		case ctx.Err() != nil:
			return nil, err
		default:
			s.log.WithError(err).WithField("branch", branch).Warn("skipping branch")
		}
	}

	matched := 0
	for _, m := range matchers {
		if m.commits == nil {
			m.commits = []domain.Commit{}
		}
		if len(m.commits) > 0 {
			matched++
		}
		out[m.issue.Key] = domain.IssueCommits{
			Issue:       m.issue,
			Commits:     m.commits,
			CommitCount: len(m.commits),
		}
	}

	s.log.WithFields(logrus.Fields{
		"branches": len(branches),
		"commits":  scanned,
		"issues":   len(matchers),
		"matched":  matched,
	}).Info("commit scan complete")

	return out, nil
}

// keyPattern matches an issue key at the start of any message line, in the
// three spellings committers actually use: bare, #-prefixed, and bracketed.
func keyPattern(key string) *regexp.Regexp {
	k := regexp.QuoteMeta(key)
	return regexp.MustCompile(`(?im)^(?:` + k + `\b|#` + k + `\b|\[` + k + `\])`)
}

// storedCommit shapes a matched commit for the scan artifact: trimmed and
// truncated message, browse link, and per-file change totals.
func (s *Scanner) storedCommit(ctx context.Context, c domain.Commit) (domain.Commit, error) {
	c.Message = truncateMessage(strings.TrimSpace(c.Message), s.opts.MessageLimit)
	if s.opts.BrowseURL != "" {
		c.URL = strings.TrimRight(s.opts.BrowseURL, "/") + "/commit/" + c.FullSHA
	}
	set, err := s.filesChanged(ctx, c.FullSHA)
	if err != nil {
		return domain.Commit{}, err
	}
	c.FilesChanged = set
	return c, nil
}

// filesChanged extracts the full per-file change structure of a commit's
// diff against its first parent. Chunk detail is kept: the attribution stage
// reads the fix commit's deleted lines straight from this record.
func (s *Scanner) filesChanged(ctx context.Context, rev string) (domain.FileChangeSet, error) {
	patch, err := s.history.CommitPatch(ctx, rev)
	if err != nil {
		return domain.FileChangeSet{}, err
	}

	files := diff.Parse(patch)
	set := domain.FileChangeSet{
		TotalFiles: len(files),
		Files:      make([]domain.FileChange, 0, len(files)),
	}
	for _, file := range files {
		set.TotalInsertions += file.Insertions
		set.TotalDeletions += file.Deletions
		set.Files = append(set.Files, file)
	}
	sort.Slice(set.Files, func(i, j int) bool {
		if set.Files[i].LinesChanged != set.Files[j].LinesChanged {
			return set.Files[i].LinesChanged > set.Files[j].LinesChanged
		}
		return set.Files[i].Path < set.Files[j].Path
	})
	return set, nil
}

func truncateMessage(message string, limit int) string {
	runes := []rune(message)
	if len(runes) <= limit {
		return message
	}
	return string(runes[:limit]) + "..."
}

func (s *Scanner) describe(text string) {
	if s.opts.Progress != nil {
		s.opts.Progress.Describe(text)
	}
}

func (s *Scanner) step() {
	if s.opts.Progress != nil {
		_ = s.opts.Progress.Add(1)
	}
}

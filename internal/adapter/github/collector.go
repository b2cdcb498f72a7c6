// Package github collects closed, log-related issues from GitHub
// repositories and maps them onto the tracker issue model so the rest of the
// pipeline does not care where an issue came from.
package github

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	gh "github.com/google/go-github/v57/github"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/bkyoung/change-attribution/internal/config"
	"github.com/bkyoung/change-attribution/internal/domain"
)

// jiraDateLayout renders GitHub timestamps the way tracker exports format
// theirs, keeping the merged dataset uniform.
const jiraDateLayout = "02/Jan/06 15:04"

// Lister is the slice of the GitHub issues API the collector uses. The real
// *github.IssuesService satisfies it.
type Lister interface {
	ListByRepo(ctx context.Context, owner, repo string, opts *gh.IssueListByRepoOptions) ([]*gh.Issue, *gh.Response, error)
}

// Collector gathers issues from the configured repositories. Every API call
// waits on the rate limiter first; the authenticated quota is 5000/hour and a
// full listing of a large repo burns thousands of pages.
type Collector struct {
	lister    Lister
	limiter   *rate.Limiter
	repos     []config.GitHubRepo
	maxIssues int
	log       logrus.FieldLogger
}

// New builds a collector over an existing API surface. Tests use it with a
// fake lister.
func New(lister Lister, cfg config.GitHubConfig, log logrus.FieldLogger) *Collector {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}
	return &Collector{
		lister:    lister,
		limiter:   rate.NewLimiter(rate.Limit(rps), 1),
		repos:     cfg.Repos,
		maxIssues: cfg.MaxIssues,
		log:       log,
	}
}

// NewFromConfig builds a collector with an authenticated API client.
func NewFromConfig(cfg config.GitHubConfig, log logrus.FieldLogger) *Collector {
	client := gh.NewClient(nil)
	if token := cfg.Token; token != "" && !strings.HasPrefix(token, "${") {
		client = client.WithAuthToken(token)
	} else {
		log.Warn("no GitHub token configured; unauthenticated rate limits apply")
	}
	return New(client.Issues, cfg, log)
}

func (c *Collector) Name() string { return "github" }

// Issues collects from every configured repository in order.
func (c *Collector) Issues(ctx context.Context) ([]domain.Issue, error) {
	var out []domain.Issue
	for _, repo := range c.repos {
		issues, err := c.collectRepo(ctx, repo)
		if err != nil {
			return nil, fmt.Errorf("collect %s/%s: %w", repo.Owner, repo.Repo, err)
		}
		c.log.WithFields(logrus.Fields{
			"repo": repo.Owner + "/" + repo.Repo, "issues": len(issues),
		}).Info("repository collected")
		out = append(out, issues...)
	}
	return out, nil
}

func (c *Collector) collectRepo(ctx context.Context, repo config.GitHubRepo) ([]domain.Issue, error) {
	project := repo.Project
	if project == "" {
		project = repo.Repo
	}

	opts := &gh.IssueListByRepoOptions{
		State:       "closed",
		ListOptions: gh.ListOptions{PerPage: 100},
	}

	var out []domain.Issue
	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}

		issues, resp, err := c.lister.ListByRepo(ctx, repo.Owner, repo.Repo, opts)
		if err != nil {
			return nil, fmt.Errorf("list issues: %w", err)
		}

		for _, issue := range issues {
			if issue.IsPullRequest() {
				continue
			}
			// not_planned closures have no fix commit to find.
			if issue.GetStateReason() != "completed" {
				continue
			}
			if !logRelated(issue.GetTitle(), issue.GetBody()) {
				continue
			}
			out = append(out, mapIssue(repo, project, issue))
			if c.maxIssues > 0 && len(out) >= c.maxIssues {
				return out, nil
			}
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return out, nil
}

// logRelated reports whether the issue text mentions logs. A plain substring
// check subsumes matching on log-file link shapes: every such link contains
// "log" itself.
func logRelated(title, body string) bool {
	return strings.Contains(strings.ToLower(title), "log") ||
		strings.Contains(strings.ToLower(body), "log")
}

func mapIssue(repo config.GitHubRepo, project string, issue *gh.Issue) domain.Issue {
	out := domain.Issue{
		Key:         fmt.Sprintf("%s-%d", strings.ToUpper(repo.Repo), issue.GetNumber()),
		ID:          strconv.FormatInt(issue.GetID(), 10),
		Summary:     issue.GetTitle(),
		Status:      "Closed",
		ProjectName: project,
		// GitHub issues carry no priority field.
		Priority:    "Unknown",
		Attachments: extractAttachments(issue.GetBody()),
	}
	if created := issue.GetCreatedAt(); !created.IsZero() {
		out.Created = created.Format(jiraDateLayout)
	}
	if closed := issue.GetClosedAt(); !closed.IsZero() {
		out.Resolved = closed.Format(jiraDateLayout)
	}
	return out
}

var (
	markdownImage = regexp.MustCompile(`!\[(.*?)\]\((.*?)\)`)
	fileLink      = regexp.MustCompile(`(?i)\[(.*?)\]\((\S*?\.(?:log|txt|pdf|zip|tar\.gz|csv|json))\)`)
	directFileURL = regexp.MustCompile(`(?i)(https?://\S*?\.(?:png|jpg|jpeg|gif|pdf|log|txt|zip|tar\.gz|csv|json))\b`)
	userUpload    = regexp.MustCompile(`(https://user-images\.githubusercontent\.com/[^\s)]+)`)
)

// extractAttachments pulls attachment references out of the issue body:
// markdown images, markdown links to data files, bare file URLs, and GitHub
// user-upload URLs. Deduplicated by URL since the patterns overlap.
func extractAttachments(body string) []domain.Attachment {
	if body == "" {
		return nil
	}

	var attachments []domain.Attachment

	for _, m := range markdownImage.FindAllStringSubmatch(body, -1) {
		name := m[1]
		if name == "" {
			name = "image"
		}
		attachments = append(attachments, domain.Attachment{Filename: name, URL: m[2]})
	}
	for _, m := range fileLink.FindAllStringSubmatch(body, -1) {
		attachments = append(attachments, domain.Attachment{Filename: m[1], URL: m[2]})
	}
	for _, m := range directFileURL.FindAllStringSubmatch(body, -1) {
		attachments = append(attachments, domain.Attachment{Filename: lastSegment(m[1]), URL: m[1]})
	}
	for _, m := range userUpload.FindAllStringSubmatch(body, -1) {
		attachments = append(attachments, domain.Attachment{Filename: lastSegment(m[1]), URL: m[1]})
	}

	return lo.UniqBy(attachments, func(a domain.Attachment) string { return a.URL })
}

func lastSegment(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		parts := strings.Split(strings.TrimSuffix(u.Path, "/"), "/")
		return parts[len(parts)-1]
	}
	parts := strings.Split(rawURL, "/")
	return parts[len(parts)-1]
}

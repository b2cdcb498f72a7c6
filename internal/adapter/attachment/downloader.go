// Package attachment downloads issue log attachments into a per-project,
// per-issue directory tree for offline analysis.
package attachment

import (
	"context"
	stdjson "encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/bkyoung/change-attribution/internal/adapter/observability"
	"github.com/bkyoung/change-attribution/internal/adapter/output/json"
	"github.com/bkyoung/change-attribution/internal/config"
	"github.com/bkyoung/change-attribution/internal/domain"
)

// File names written alongside the downloaded attachments.
const (
	// MetadataFile describes the owning issue inside each issue directory.
	MetadataFile = "issue_metadata.json"
	// FailedFile accumulates download failures at the downloads root, across
	// runs, so auth-gated attachments can be fetched by hand later.
	FailedFile = "failed_downloads.json"
)

const (
	defaultMaxRetries = 3
	defaultTimeout    = 30 * time.Second
)

// errAuthRequired marks a 401 response. Retrying cannot help; the tracker
// wants credentials this tool does not carry.
var errAuthRequired = errors.New("authentication required")

var sanitizer = strings.NewReplacer(
	"<", "_", ">", "_", ":", "_", `"`, "_", "|", "_", "?", "_", "*", "_",
)

// Progress receives one update per issue. It is satisfied by
// *progressbar.ProgressBar.
type Progress interface {
	Describe(text string)
	Add(n int) error
}

// Stats reports the outcome of one download batch. Skipped counts files that
// were already present from an earlier run.
type Stats struct {
	Total      int
	Downloaded int
	Skipped    int
	Failed     int
}

// FailedDownload records one attachment that could not be fetched.
type FailedDownload struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
	Issue    string `json:"issue"`
	Project  string `json:"project"`
}

// issueMetadata is saved next to each issue's downloaded files.
type issueMetadata struct {
	IssueKey string   `json:"issue_key"`
	Summary  string   `json:"summary"`
	Status   string   `json:"status"`
	Priority string   `json:"priority"`
	Created  string   `json:"created"`
	Affects  []string `json:"affects"`
}

// Downloader fetches log attachments over HTTP with retries and stores them
// under <dir>/<project>/<issue>/<filename>.
type Downloader struct {
	client      *http.Client
	dir         string
	maxRetries  int
	userAgent   string
	backoffUnit time.Duration
	progress    Progress
	log         logrus.FieldLogger
}

func New(cfg config.DownloadConfig, dir string, progress Progress, log logrus.FieldLogger) *Downloader {
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = defaultMaxRetries
	}

	timeout := defaultTimeout
	if cfg.Timeout != "" {
		parsed, err := time.ParseDuration(cfg.Timeout)
		if err != nil {
			log.WithField("timeout", cfg.Timeout).Warn("invalid download timeout, using 30s")
		} else {
			timeout = parsed
		}
	}

	return &Downloader{
		client:      &http.Client{Timeout: timeout},
		dir:         dir,
		maxRetries:  retries,
		userAgent:   cfg.UserAgent,
		backoffUnit: time.Second,
		progress:    progress,
		log:         log,
	}
}

// Run downloads every log attachment in the artifact. Issues without log
// attachments are skipped entirely. Individual download failures are recorded
// in FailedFile and counted, never fatal; only filesystem errors and context
// cancellation abort the batch.
func (d *Downloader) Run(ctx context.Context, artifact domain.ProjectIssueCommits) (Stats, error) {
	var stats Stats
	var failures []FailedDownload

	projects := lo.Keys(artifact)
	sort.Strings(projects)
	for _, project := range projects {
		keys := lo.Keys(artifact[project])
		sort.Strings(keys)
		for _, key := range keys {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
			issue := artifact[project][key].Issue
			if len(issue.Logs) == 0 {
				continue
			}
			d.describe(project + "/" + key)

			issueDir := filepath.Join(d.dir, sanitize(project), sanitize(key))
			if err := os.MkdirAll(issueDir, 0o755); err != nil {
				return stats, fmt.Errorf("create issue directory: %w", err)
			}
			if err := json.Save(filepath.Join(issueDir, MetadataFile), metadataFor(issue)); err != nil {
				return stats, err
			}

			for _, att := range issue.Logs {
				stats.Total++
				outcome, err := d.fetchOne(ctx, issueDir, att)
				if err != nil {
					if ctx.Err() != nil {
						return stats, ctx.Err()
					}
					stats.Failed++
					failures = append(failures, FailedDownload{
						Filename: att.Filename, URL: att.URL, Issue: key, Project: project,
					})
					d.log.WithFields(logrus.Fields{
						"project": project,
						"issue":   key,
						"file":    att.Filename,
						"error":   observability.RedactURLSecrets(err.Error()),
					}).Warn("attachment download failed")
					continue
				}
				switch outcome {
				case outcomeDownloaded:
					stats.Downloaded++
				case outcomeSkipped:
					stats.Skipped++
				}
			}
			d.step()
		}
	}

	if len(failures) > 0 {
		if err := d.saveFailures(failures); err != nil {
			d.log.WithError(err).Warn("could not record failed downloads")
		}
	}
	d.log.WithFields(logrus.Fields{
		"total":      stats.Total,
		"downloaded": stats.Downloaded,
		"skipped":    stats.Skipped,
		"failed":     stats.Failed,
	}).Info("attachment download complete")
	return stats, nil
}

type outcome int

const (
	outcomeDownloaded outcome = iota
	outcomeSkipped
)

func (d *Downloader) fetchOne(ctx context.Context, issueDir string, att domain.Attachment) (outcome, error) {
	if att.URL == "" {
		return 0, errors.New("attachment has no url")
	}

	name := att.Filename
	if name == "" {
		name = "unknown.log"
	}
	// Base keeps hostile filenames from escaping the issue directory.
	path := filepath.Join(issueDir, filepath.Base(sanitize(name)))
	if _, err := os.Stat(path); err == nil {
		d.log.WithField("file", name).Debug("already downloaded")
		return outcomeSkipped, nil
	}

	if err := d.download(ctx, att.URL, path); err != nil {
		return 0, err
	}
	return outcomeDownloaded, nil
}

// download fetches url into path, retrying transient failures with
// exponential backoff. A 401 aborts immediately.
func (d *Downloader) download(ctx context.Context, url, path string) error {
	var lastErr error
	for attempt := 0; attempt < d.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(1<<(attempt-1)) * d.backoffUnit):
			}
		}

		lastErr = d.fetch(ctx, url, path)
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, errAuthRequired) || ctx.Err() != nil {
			return lastErr
		}
	}
	return lastErr
}

func (d *Downloader) fetch(ctx context.Context, url, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if d.userAgent != "" {
		req.Header.Set("User-Agent", d.userAgent)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return errAuthRequired
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("http %s", resp.Status)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	if _, err := io.Copy(file, resp.Body); err != nil {
		file.Close()
		// Remove the partial so a rerun does not mistake it for a complete
		// download.
		os.Remove(path)
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return file.Close()
}

// saveFailures appends to any failure list from earlier runs. A corrupt list
// is replaced.
func (d *Downloader) saveFailures(failures []FailedDownload) error {
	path := filepath.Join(d.dir, FailedFile)
	var existing []FailedDownload
	if data, err := os.ReadFile(path); err == nil {
		_ = stdjson.Unmarshal(data, &existing)
	}
	return json.Save(path, append(existing, failures...))
}

func metadataFor(issue domain.Issue) issueMetadata {
	affects := issue.Affects
	if affects == nil {
		affects = []string{}
	}
	return issueMetadata{
		IssueKey: issue.Key,
		Summary:  issue.Summary,
		Status:   issue.Status,
		Priority: issue.Priority,
		Created:  issue.Created,
		Affects:  affects,
	}
}

func sanitize(name string) string {
	return sanitizer.Replace(name)
}

func (d *Downloader) describe(text string) {
	if d.progress != nil {
		d.progress.Describe(text)
	}
}

func (d *Downloader) step() {
	if d.progress != nil {
		_ = d.progress.Add(1)
	}
}

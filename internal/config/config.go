package config

import (
	"fmt"
	"os"
	"strings"
)

// Config represents the full application configuration.
type Config struct {
	Projects      map[string]ProjectConfig `yaml:"projects"`
	Jira          JiraConfig               `yaml:"jira"`
	GitHub        GitHubConfig             `yaml:"github"`
	Scan          ScanConfig               `yaml:"scan"`
	Match         MatchConfig              `yaml:"match"`
	Paths         PathsConfig              `yaml:"paths"`
	Download      DownloadConfig           `yaml:"download"`
	Store         StoreConfig              `yaml:"store"`
	Observability ObservabilityConfig      `yaml:"observability"`
}

// ProjectConfig ties a tracker project to its git repository and the tag
// naming convention its releases use. TagPrefixes is ordered; resolution
// tries each prefix in turn after the exact-name lookup.
type ProjectConfig struct {
	URL         string   `yaml:"url"`
	LocalPath   string   `yaml:"localPath"`
	BrowseURL   string   `yaml:"browseURL"`
	TagPrefixes []string `yaml:"tagPrefixes"`
}

// JiraConfig locates tracker CSV exports and the issue browse endpoint used
// when exporting links.
type JiraConfig struct {
	CSVDir    string `yaml:"csvDir"`
	BrowseURL string `yaml:"browseURL"`
}

// GitHubConfig configures issue collection through the GitHub API.
type GitHubConfig struct {
	Token string `yaml:"token"`
	// MaxIssues caps collection per repository; 0 means unbounded.
	MaxIssues int `yaml:"maxIssues"`
	// RequestsPerSecond paces API calls under the authenticated quota
	// (5000/hour is about 1.4/s).
	RequestsPerSecond float64      `yaml:"requestsPerSecond"`
	Repos             []GitHubRepo `yaml:"repos"`
}

// GitHubRepo names one repository to collect issues from. Project is the
// dataset project name the issues are filed under; it defaults to the repo
// name when empty.
type GitHubRepo struct {
	Owner   string `yaml:"owner"`
	Repo    string `yaml:"repo"`
	Project string `yaml:"project"`
}

// ScanConfig bounds the commit scan.
type ScanConfig struct {
	// MaxCommitsPerBranch caps how deep each branch walk goes.
	MaxCommitsPerBranch int `yaml:"maxCommitsPerBranch"`
	// MaxCommitsPerIssue caps how many fix commits are kept per issue.
	MaxCommitsPerIssue int `yaml:"maxCommitsPerIssue"`
	// MessageLimit truncates stored commit messages to this many characters.
	MessageLimit int `yaml:"messageLimit"`
}

// MatchConfig restricts attribution to tracked source-file extensions.
type MatchConfig struct {
	Extensions []string `yaml:"extensions"`
}

// PathsConfig holds the working directories for stage artifacts.
type PathsConfig struct {
	InputsDir    string `yaml:"inputsDir"`
	OutputsDir   string `yaml:"outputsDir"`
	DownloadsDir string `yaml:"downloadsDir"`
}

// DownloadConfig configures attachment downloads.
type DownloadConfig struct {
	MaxRetries int    `yaml:"maxRetries"`
	Timeout    string `yaml:"timeout"`
	UserAgent  string `yaml:"userAgent"`
}

// StoreConfig configures the run-history database.
type StoreConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// ObservabilityConfig configures logging.
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig selects log verbosity and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, human
}

// Project returns the configuration for the named tracker project. Lookup is
// case-insensitive because tracker exports and config files rarely agree on
// casing.
func (c Config) Project(name string) (ProjectConfig, bool) {
	p, ok := c.Projects[strings.ToLower(name)]
	return p, ok
}

// EnsureDirs creates the output directories once at startup so later stages
// can assume they exist.
func (c Config) EnsureDirs() error {
	for _, dir := range []string{c.Paths.OutputsDir, c.Paths.DownloadsDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create dir %s: %w", dir, err)
		}
	}
	return nil
}

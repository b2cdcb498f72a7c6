// Package json persists pipeline stage artifacts. Each stage writes one
// indented JSON file and the next stage loads it back, so stages can be rerun
// independently.
package json

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bkyoung/change-attribution/internal/domain"
)

// Stage artifact file names, relative to the outputs directory.
const (
	IssuesFile       = "issues.json"
	LogIssuesFile    = "issues_with_logs.json"
	CommitsFile      = "issues_with_commits.json"
	AttributionsFile = "attributions.json"
	PrunedFile       = "issues_with_impacted_lines.json"
)

// Save writes v to path as indented JSON, creating parent directories.
func Save(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create artifact directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create artifact file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	return nil
}

// LoadIssues reads a collect-stage artifact.
func LoadIssues(path string) ([]domain.Issue, error) {
	var issues []domain.Issue
	if err := load(path, &issues); err != nil {
		return nil, err
	}
	return issues, nil
}

// LoadIssueCommits reads a scan-stage artifact.
func LoadIssueCommits(path string) (domain.ProjectIssueCommits, error) {
	var artifact domain.ProjectIssueCommits
	if err := load(path, &artifact); err != nil {
		return nil, err
	}
	return artifact, nil
}

// LoadAttributions reads an attribute-stage artifact.
func LoadAttributions(path string) (domain.ProjectAttributions, error) {
	var artifact domain.ProjectAttributions
	if err := load(path, &artifact); err != nil {
		return nil, err
	}
	return artifact, nil
}

func load(path string, v any) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open artifact: %w", err)
	}
	defer file.Close()

	if err := json.NewDecoder(file).Decode(v); err != nil {
		return domain.NewFailure(domain.FailureParse, "decode "+filepath.Base(path), err)
	}
	return nil
}

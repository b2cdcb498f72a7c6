// Package jira reads tracker CSV exports into domain issues. Exports arrive
// as directory trees of per-project, per-slice CSV files, so the reader scans
// recursively and deduplicates across files.
package jira

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/bkyoung/change-attribution/internal/domain"
)

// singleFields are the one-column issue fields, matched by exact header name.
var singleFields = []string{
	"Summary", "Issue key", "Issue id", "Issue Type", "Status",
	"Project name", "Priority", "Resolution", "Created", "Resolved",
}

// Reader collects issues from every *.csv under a directory tree.
type Reader struct {
	dir string
	log logrus.FieldLogger
}

func NewReader(dir string, log logrus.FieldLogger) *Reader {
	return &Reader{dir: dir, log: log}
}

func (r *Reader) Name() string { return "jira" }

// Issues reads all CSV exports under the reader's directory. Issue keys are
// deduplicated across files with the first occurrence winning, matching how
// tracker exports overlap when sliced by date.
func (r *Reader) Issues(ctx context.Context) ([]domain.Issue, error) {
	files, err := csvFiles(r.dir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		r.log.WithField("dir", r.dir).Warn("no csv exports found")
		return nil, nil
	}

	var out []domain.Issue
	seen := make(map[string]bool)

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		issues, err := r.readFile(path, seen)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		r.log.WithFields(logrus.Fields{"file": path, "issues": len(issues)}).Debug("export read")
		out = append(out, issues...)
	}

	return out, nil
}

func csvFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".csv") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	sort.Strings(files)
	return files, nil
}

func (r *Reader) readFile(path string, seen map[string]bool) ([]domain.Issue, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1 // exports repeat multi-value columns unevenly

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	cols, err := indexColumns(header)
	if err != nil {
		return nil, err
	}

	var out []domain.Issue
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		issue := cols.issue(row)
		if issue.Key == "" || seen[issue.Key] {
			continue
		}
		seen[issue.Key] = true
		out = append(out, issue)
	}
	return out, nil
}

// columns maps the export's header row to field positions. Multi-value
// fields repeat their header once per value, so those collect every index.
type columns struct {
	single      map[string]int
	affects     []int
	fixes       []int
	attachments []int
}

func indexColumns(header []string) (columns, error) {
	cols := columns{single: make(map[string]int, len(singleFields))}

	for i, name := range header {
		switch name {
		case "Affects Version/s":
			cols.affects = append(cols.affects, i)
		case "Fix Version/s":
			cols.fixes = append(cols.fixes, i)
		case "Attachment":
			cols.attachments = append(cols.attachments, i)
		default:
			for _, field := range singleFields {
				if name == field {
					if _, taken := cols.single[field]; !taken {
						cols.single[field] = i
					}
					break
				}
			}
		}
	}

	if _, ok := cols.single["Issue key"]; !ok {
		return columns{}, errors.New("no Issue key column; not an issue export")
	}
	return cols, nil
}

func (c columns) issue(row []string) domain.Issue {
	issue := domain.Issue{
		Key:         c.cell(row, "Issue key"),
		ID:          c.cell(row, "Issue id"),
		Type:        c.cell(row, "Issue Type"),
		Summary:     c.cell(row, "Summary"),
		Status:      c.cell(row, "Status"),
		ProjectName: c.cell(row, "Project name"),
		Priority:    c.cell(row, "Priority"),
		Resolution:  c.cell(row, "Resolution"),
		Created:     c.cell(row, "Created"),
		Resolved:    c.cell(row, "Resolved"),
		Affects:     values(row, c.affects),
		FixVersions: values(row, c.fixes),
	}
	for _, value := range values(row, c.attachments) {
		issue.Attachments = append(issue.Attachments, parseAttachment(value))
	}
	return issue
}

func (c columns) cell(row []string, field string) string {
	idx, ok := c.single[field]
	if !ok || idx >= len(row) {
		return ""
	}
	return row[idx]
}

func values(row []string, indices []int) []string {
	var out []string
	for _, idx := range indices {
		if idx >= len(row) {
			continue
		}
		if value := strings.TrimSpace(row[idx]); value != "" {
			out = append(out, value)
		}
	}
	return out
}

// parseAttachment splits an export attachment cell. The documented shape is
// "date;username;filename;url"; SplitN keeps semicolons inside the URL
// intact. Cells with fewer fields are preserved raw in Filename.
func parseAttachment(cell string) domain.Attachment {
	parts := strings.SplitN(cell, ";", 4)
	if len(parts) < 4 {
		return domain.Attachment{Filename: cell}
	}
	return domain.Attachment{
		Date:     parts[0],
		Username: parts[1],
		Filename: parts[2],
		URL:      parts[3],
	}
}

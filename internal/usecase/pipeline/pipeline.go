// Package pipeline orchestrates the dataset stages end to end: collect
// issues, scan repositories for fix commits, download log attachments,
// attribute fix lines to affected versions, and export the refined dataset.
// Each stage loads the previous stage's artifact, so stages can be rerun
// independently.
package pipeline

import (
	"context"
	"sort"
	"strings"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/bkyoung/change-attribution/internal/adapter/attachment"
	"github.com/bkyoung/change-attribution/internal/domain"
	"github.com/bkyoung/change-attribution/internal/usecase/attribute"
	"github.com/bkyoung/change-attribution/internal/usecase/collect"
	"github.com/bkyoung/change-attribution/internal/usecase/scan"
)

// Reporter receives coarse progress updates during a stage. It matches the
// contract of the scan, attribute, and download progress consumers, so one
// bar serves any of them.
type Reporter interface {
	Describe(text string)
	Add(n int) error
	Finish() error
}

// Recorder persists run history. Every method must tolerate store failure
// without failing the stage.
type Recorder interface {
	Begin(ctx context.Context, stage, project string, inputCount int) string
	Finish(ctx context.Context, runID string, outputCount int, outputPath string)
	SaveAttributions(ctx context.Context, runID string, issues map[string]domain.IssueAttribution)
}

// Downloader fetches the log attachments named by a scan artifact.
type Downloader interface {
	Run(ctx context.Context, artifact domain.ProjectIssueCommits) (attachment.Stats, error)
}

// Project names one configured repository and how its versions are tagged.
type Project struct {
	Name        string
	LocalPath   string
	BrowseURL   string
	TagPrefixes []string
}

// Paths locates the artifact directories shared by the stages.
type Paths struct {
	Outputs   string
	Downloads string
}

// Deps carries the collaborators a Stages needs. Recorder and NewProgress
// may be nil; the affected features simply switch off.
type Deps struct {
	Sources       []collect.Source
	Projects      []Project
	OpenHistory   func(dir string) (scan.History, error)
	Cloner        attribute.Cloner
	NewDownloader func(progress Reporter) Downloader
	Recorder      Recorder
	NewProgress   func(total int) Reporter
	Paths         Paths
	// TrackerBase is the issue tracker's browse URL, used for issue links in
	// the exported CSVs.
	TrackerBase string
	Log         *logrus.Logger
}

// Stages runs the pipeline stages.
type Stages struct {
	deps Deps
	log  *logrus.Logger
}

func New(deps Deps) *Stages {
	log := deps.Log
	if log == nil {
		log = logrus.New()
	}
	return &Stages{deps: deps, log: log}
}

// project returns the configuration for the named project, matching
// case-insensitively because tracker exports and config files rarely agree
// on casing.
func (s *Stages) project(name string) (Project, bool) {
	for _, p := range s.deps.Projects {
		if strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	return Project{}, false
}

// selectNames sorts the given names and, when the request names projects,
// narrows to those (case-insensitive).
func selectNames(names []string, requested []string) []string {
	out := append([]string{}, names...)
	sort.Strings(out)
	if len(requested) == 0 {
		return out
	}
	want := lo.Map(requested, func(name string, _ int) string { return strings.ToLower(name) })
	return lo.Filter(out, func(name string, _ int) bool {
		return lo.Contains(want, strings.ToLower(name))
	})
}

func (s *Stages) begin(ctx context.Context, stage, project string, inputCount int) string {
	if s.deps.Recorder == nil {
		return ""
	}
	return s.deps.Recorder.Begin(ctx, stage, project, inputCount)
}

func (s *Stages) finish(ctx context.Context, runID string, outputCount int, outputPath string) {
	if s.deps.Recorder == nil {
		return
	}
	s.deps.Recorder.Finish(ctx, runID, outputCount, outputPath)
}

func (s *Stages) saveAttributions(ctx context.Context, runID string, issues map[string]domain.IssueAttribution) {
	if s.deps.Recorder == nil {
		return
	}
	s.deps.Recorder.SaveAttributions(ctx, runID, issues)
}

// progress returns a Reporter for total units of work, or nil when progress
// reporting is not wired.
func (s *Stages) progress(total int) Reporter {
	if s.deps.NewProgress == nil {
		return nil
	}
	return s.deps.NewProgress(total)
}

func finishProgress(bar Reporter) {
	if bar != nil {
		_ = bar.Finish()
	}
}

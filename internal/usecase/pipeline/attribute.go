package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/samber/lo"

	"github.com/bkyoung/change-attribution/internal/adapter/output/json"
	"github.com/bkyoung/change-attribution/internal/domain"
	"github.com/bkyoung/change-attribution/internal/usecase/attribute"
)

// AttributeRequest selects which scanned projects to attribute and where
// disposable clones may be created.
type AttributeRequest struct {
	Projects   []string
	Extensions []string
	// WorkDir hosts disposable clones; empty means the system temp dir.
	WorkDir string
}

// AttributeResult reports the attribute stage outcome.
type AttributeResult struct {
	Projects int
	Issues   int
	// Results counts (issue, affected version, fix commit) analysis results.
	Results int
	// Attributed counts results with at least one attributed file.
	Attributed int
	// Errored counts results carrying an error marker.
	Errored      int
	ArtifactPath string
	// Skipped names projects dropped for missing configuration or a missing
	// repository mirror.
	Skipped []string
}

// Attribute links every scanned issue's fix commits to its affected versions,
// one disposable clone per (issue, version) unit, and writes the attribution
// artifact. A project whose mirror is missing is skipped; per-unit failures
// are recorded inside the results and never abort the stage.
func (s *Stages) Attribute(ctx context.Context, req AttributeRequest) (AttributeResult, error) {
	commitsPath := filepath.Join(s.deps.Paths.Outputs, json.CommitsFile)
	artifact, err := json.LoadIssueCommits(commitsPath)
	if err != nil {
		return AttributeResult{}, fmt.Errorf("load scan artifact (run the scan stage first): %w", err)
	}

	names := selectNames(lo.Keys(artifact), req.Projects)
	result := AttributeResult{
		ArtifactPath: filepath.Join(s.deps.Paths.Outputs, json.AttributionsFile),
	}
	out := domain.ProjectAttributions{}

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return AttributeResult{}, err
		}

		issues := artifact[name]
		project, ok := s.project(name)
		if !ok {
			s.log.WithField("project", name).Warn("no configuration for project, skipping")
			result.Skipped = append(result.Skipped, name)
			continue
		}

		attributions, err := s.attributeProject(ctx, project, issues, req)
		if err != nil {
			if ctx.Err() != nil {
				return AttributeResult{}, err
			}
			if domain.FailureIs(err, domain.FailureConfiguration) {
				s.log.WithError(err).WithField("project", name).Error("project not attributable")
				result.Skipped = append(result.Skipped, name)
				continue
			}
			return AttributeResult{}, err
		}

		out[name] = attributions
		result.Projects++
		result.Issues += len(attributions)
		for _, attribution := range attributions {
			for _, analysis := range attribution.AnalysisResults {
				result.Results++
				if analysis.Error != "" {
					result.Errored++
				}
				if len(analysis.Changes) > 0 {
					result.Attributed++
				}
			}
		}
	}

	if err := json.Save(result.ArtifactPath, out); err != nil {
		return AttributeResult{}, fmt.Errorf("save attribution artifact: %w", err)
	}
	return result, nil
}

// attributeProject runs one project's attribution under its own run record.
func (s *Stages) attributeProject(ctx context.Context, project Project, issues map[string]domain.IssueCommits, req AttributeRequest) (map[string]domain.IssueAttribution, error) {
	runID := s.begin(ctx, "attribute", strings.ToLower(project.Name), len(issues))
	bar := s.progress(countUnits(issues))
	defer finishProgress(bar)

	pipe := attribute.New(s.deps.Cloner, attribute.Options{
		Source:      project.LocalPath,
		BrowseURL:   project.BrowseURL,
		TagPrefixes: project.TagPrefixes,
		Extensions:  req.Extensions,
		WorkDir:     req.WorkDir,
		Progress:    bar,
	}, s.log)

	attributions, err := pipe.Run(ctx, issues)
	if err != nil {
		return nil, err
	}

	s.saveAttributions(ctx, runID, attributions)
	s.finish(ctx, runID, len(attributions), filepath.Join(s.deps.Paths.Outputs, json.AttributionsFile))
	return attributions, nil
}

// countUnits estimates the (issue, affected version) units a project run
// will analyze, for progress bar sizing.
func countUnits(issues map[string]domain.IssueCommits) int {
	total := 0
	for _, ic := range issues {
		if len(ic.Commits) == 0 {
			continue
		}
		for _, version := range ic.Issue.Affects {
			if version != "" {
				total++
			}
		}
	}
	return total
}

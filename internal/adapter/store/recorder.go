package store

import (
	"context"
	"sort"
	"time"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/bkyoung/change-attribution/internal/domain"
	"github.com/bkyoung/change-attribution/internal/store"
)

// Recorder writes run history around pipeline stages. Persistence failures
// are logged and swallowed: losing a history row must never fail a stage. All
// methods tolerate a nil receiver, so callers wire history unconditionally
// and disable it by passing nil.
type Recorder struct {
	store store.Store
	log   logrus.FieldLogger
}

// NewRecorder creates a recorder over the given store.
func NewRecorder(s store.Store, log logrus.FieldLogger) *Recorder {
	return &Recorder{store: s, log: log}
}

// Begin records the start of a stage run and returns its run ID. An empty ID
// means recording is off for this run; Finish and SaveAttributions accept it
// and do nothing.
func (r *Recorder) Begin(ctx context.Context, stage, project string, inputCount int) string {
	if r == nil {
		return ""
	}

	now := time.Now()
	run := store.Run{
		RunID:      store.GenerateRunID(now, stage, project),
		Stage:      stage,
		Project:    project,
		StartedAt:  now,
		InputCount: inputCount,
	}
	if err := r.store.CreateRun(ctx, run); err != nil {
		r.log.WithError(err).Warn("could not record run start")
		return ""
	}
	return run.RunID
}

// Finish marks the run complete with what it produced.
func (r *Recorder) Finish(ctx context.Context, runID string, outputCount int, outputPath string) {
	if r == nil || runID == "" {
		return
	}
	if err := r.store.FinishRun(ctx, runID, time.Now(), outputCount, outputPath); err != nil {
		r.log.WithError(err).Warn("could not record run completion")
	}
}

// SaveAttributions flattens one project's attribution results into history
// records, one per (issue, version, fix commit) analysis.
func (r *Recorder) SaveAttributions(ctx context.Context, runID string, issues map[string]domain.IssueAttribution) {
	if r == nil || runID == "" || len(issues) == 0 {
		return
	}

	keys := lo.Keys(issues)
	sort.Strings(keys)

	var records []store.AttributionRecord
	for _, key := range keys {
		for _, result := range issues[key].AnalysisResults {
			records = append(records, recordFor(runID, key, result))
		}
	}
	if err := r.store.SaveAttributions(ctx, records); err != nil {
		r.log.WithError(err).Warn("could not record attributions")
	}
}

// recordFor reduces a full analysis result to its line counts.
func recordFor(runID, issueKey string, result domain.AnalysisResult) store.AttributionRecord {
	matched, unidentified := 0, 0
	for _, change := range result.Changes {
		matched += len(change.AffectedVersion.ModifiedLines)
		unidentified += len(change.FixingCommit.UnidentifiedLines)
	}
	return store.AttributionRecord{
		RunID:             runID,
		IssueKey:          issueKey,
		AffectedVersion:   result.AffectedVersion,
		ResolvedSHA:       result.AffectedVersionSHA,
		FixingSHA:         result.FixingCommitSHA,
		MatchedLines:      matched,
		UnidentifiedLines: unidentified,
		Error:             result.Error,
	}
}

// Close closes the underlying store.
func (r *Recorder) Close() {
	if r == nil {
		return
	}
	if err := r.store.Close(); err != nil {
		r.log.WithError(err).Warn("could not close history store")
	}
}

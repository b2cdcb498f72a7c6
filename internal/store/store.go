package store

import (
	"context"
	"time"
)

// Store defines the persistence layer for pipeline run history.
type Store interface {
	// Run management
	CreateRun(ctx context.Context, run Run) error
	FinishRun(ctx context.Context, runID string, finishedAt time.Time, outputCount int, outputPath string) error
	ListRuns(ctx context.Context, limit int) ([]Run, error)

	// Attribution persistence
	SaveAttributions(ctx context.Context, records []AttributionRecord) error
	ListAttributions(ctx context.Context, runID string) ([]AttributionRecord, error)

	// Utility
	Close() error
}

// Run represents one execution of a pipeline stage. FinishedAt is zero while
// the run is still in flight or was aborted.
type Run struct {
	RunID       string
	Stage       string
	Project     string
	StartedAt   time.Time
	FinishedAt  time.Time
	InputCount  int
	OutputCount int
	OutputPath  string
}

// Duration reports how long the run took, or zero for a run that never
// finished.
func (r Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() || r.FinishedAt.Before(r.StartedAt) {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// AttributionRecord summarizes one (issue, affected version, fix commit)
// analysis for the history database. Line-level detail stays in the JSON
// artifact; the record keeps the counts and any failure text.
type AttributionRecord struct {
	ID                int64
	RunID             string
	IssueKey          string
	AffectedVersion   string
	ResolvedSHA       string
	FixingSHA         string
	MatchedLines      int
	UnidentifiedLines int
	Error             string
}

// Attributed reports whether the analysis placed any fix lines in the
// affected version.
func (a AttributionRecord) Attributed() bool {
	return a.Error == "" && a.MatchedLines > 0
}

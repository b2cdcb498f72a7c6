package pipeline_test

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"github.com/bkyoung/change-attribution/internal/domain"
	"github.com/bkyoung/change-attribution/internal/usecase/pipeline"
)

// fakeRecorder captures run-history calls for assertions.
type fakeRecorder struct {
	mu       sync.Mutex
	begun    []string       // "stage/project"
	inputs   map[string]int // runID -> input count
	finished map[string]int // runID -> output count
	saved    map[string]int // runID -> issues recorded
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{
		inputs:   make(map[string]int),
		finished: make(map[string]int),
		saved:    make(map[string]int),
	}
}

func (r *fakeRecorder) Begin(_ context.Context, stage, project string, inputCount int) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := fmt.Sprintf("run-%d", len(r.begun)+1)
	r.begun = append(r.begun, stage+"/"+project)
	r.inputs[id] = inputCount
	return id
}

func (r *fakeRecorder) Finish(_ context.Context, runID string, outputCount int, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished[runID] = outputCount
}

func (r *fakeRecorder) SaveAttributions(_ context.Context, runID string, issues map[string]domain.IssueAttribution) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved[runID] = len(issues)
}

// newStages builds a Stages over the given deps with a capturing null logger.
func newStages(deps pipeline.Deps) (*pipeline.Stages, *logtest.Hook) {
	log, hook := logtest.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	deps.Log = log
	return pipeline.New(deps), hook
}

// issueWithLog returns an issue carrying one log attachment, ready for the
// collect filter and the download stage.
func issueWithLog(key, project string, affects ...string) domain.Issue {
	return domain.Issue{
		Key:         key,
		Summary:     "server crashes on restart",
		Status:      "Resolved",
		ProjectName: project,
		Priority:    "Major",
		Created:     "2014-03-01 10:00:00",
		Affects:     affects,
		Attachments: []domain.Attachment{
			{Filename: key + "-server.log", URL: "https://tracker.example.org/attachment/" + key},
		},
		Logs: []domain.Attachment{
			{Filename: key + "-server.log", URL: "https://tracker.example.org/attachment/" + key},
		},
	}
}

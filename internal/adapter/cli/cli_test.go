package cli_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bkyoung/change-attribution/internal/adapter/cli"
	"github.com/bkyoung/change-attribution/internal/domain"
	"github.com/bkyoung/change-attribution/internal/store"
	"github.com/bkyoung/change-attribution/internal/usecase/pipeline"
)

type pipelineStub struct {
	collectReq   *pipeline.CollectRequest
	collectRes   pipeline.CollectResult
	scanReq      *pipeline.ScanRequest
	scanRes      pipeline.ScanResult
	fetchReq     *pipeline.FetchLogsRequest
	fetchRes     pipeline.FetchLogsResult
	attributeReq *pipeline.AttributeRequest
	attributeRes pipeline.AttributeResult
	exportReq    *pipeline.ExportRequest
	exportRes    pipeline.ExportResult
	err          error
}

func (s *pipelineStub) Collect(_ context.Context, req pipeline.CollectRequest) (pipeline.CollectResult, error) {
	s.collectReq = &req
	return s.collectRes, s.err
}

func (s *pipelineStub) Scan(_ context.Context, req pipeline.ScanRequest) (pipeline.ScanResult, error) {
	s.scanReq = &req
	return s.scanRes, s.err
}

func (s *pipelineStub) FetchLogs(_ context.Context, req pipeline.FetchLogsRequest) (pipeline.FetchLogsResult, error) {
	s.fetchReq = &req
	return s.fetchRes, s.err
}

func (s *pipelineStub) Attribute(_ context.Context, req pipeline.AttributeRequest) (pipeline.AttributeResult, error) {
	s.attributeReq = &req
	return s.attributeRes, s.err
}

func (s *pipelineStub) Export(_ context.Context, req pipeline.ExportRequest) (pipeline.ExportResult, error) {
	s.exportReq = &req
	return s.exportRes, s.err
}

type historyStub struct {
	runs    []store.Run
	records []store.AttributionRecord
	limit   int
	runID   string
}

func (h *historyStub) ListRuns(_ context.Context, limit int) ([]store.Run, error) {
	h.limit = limit
	return h.runs, nil
}

func (h *historyStub) ListAttributions(_ context.Context, runID string) ([]store.AttributionRecord, error) {
	h.runID = runID
	return h.records, nil
}

// execute runs the command tree with captured writers.
func execute(t *testing.T, deps cli.Dependencies, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	deps.Args = cli.Arguments{OutWriter: &out, ErrWriter: &errOut}
	root := cli.NewRootCommand(deps)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), errOut.String(), err
}

func TestVersionFlagPrintsVersion(t *testing.T) {
	out, _, err := execute(t, cli.Dependencies{Pipeline: &pipelineStub{}, Version: "v1.2.3"}, "--version")
	if !errors.Is(err, cli.ErrVersionRequested) {
		t.Fatalf("expected ErrVersionRequested, got %v", err)
	}
	if got := strings.TrimSpace(out); got != "v1.2.3" {
		t.Errorf("expected version output v1.2.3, got %q", got)
	}
}

func TestVersionFlagDefaultsWhenUnset(t *testing.T) {
	out, _, err := execute(t, cli.Dependencies{Pipeline: &pipelineStub{}}, "--version")
	if !errors.Is(err, cli.ErrVersionRequested) {
		t.Fatalf("expected ErrVersionRequested, got %v", err)
	}
	if got := strings.TrimSpace(out); got != "v0.0.0" {
		t.Errorf("expected fallback version v0.0.0, got %q", got)
	}
}

func TestCollectCommandPassesSources(t *testing.T) {
	stub := &pipelineStub{collectRes: pipeline.CollectResult{Issues: 12, WithLogs: 7}}
	out, _, err := execute(t, cli.Dependencies{Pipeline: stub}, "collect", "--source", "jira")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stub.collectReq == nil {
		t.Fatal("collect was not invoked")
	}
	if len(stub.collectReq.Sources) != 1 || stub.collectReq.Sources[0] != "jira" {
		t.Errorf("expected sources [jira], got %v", stub.collectReq.Sources)
	}
	if !strings.Contains(out, "Collected 12 issues, 7 with log attachments.") {
		t.Errorf("missing collect summary in output: %q", out)
	}
}

func TestScanCommandUsesConfigDefaults(t *testing.T) {
	stub := &pipelineStub{}
	deps := cli.Dependencies{
		Pipeline:          stub,
		DefaultScan:       cli.DefaultScan{MaxCommitsPerBranch: 50000, MaxCommitsPerIssue: 5, MessageLimit: 300},
		DefaultExtensions: []string{".java"},
	}
	if _, _, err := execute(t, deps, "scan"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stub.scanReq == nil {
		t.Fatal("scan was not invoked")
	}
	req := *stub.scanReq
	if req.MaxCommitsPerBranch != 50000 || req.MaxCommitsPerIssue != 5 || req.MessageLimit != 300 {
		t.Errorf("expected config defaults, got %+v", req)
	}
	if len(req.Extensions) != 1 || req.Extensions[0] != ".java" {
		t.Errorf("expected default extensions [.java], got %v", req.Extensions)
	}
}

func TestScanCommandFlagOverrides(t *testing.T) {
	stub := &pipelineStub{}
	deps := cli.Dependencies{
		Pipeline:          stub,
		DefaultScan:       cli.DefaultScan{MaxCommitsPerBranch: 50000},
		DefaultExtensions: []string{".java"},
	}
	_, _, err := execute(t, deps, "scan",
		"--project", "zookeeper",
		"--max-commits", "100",
		"--extensions", "go,py")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	req := *stub.scanReq
	if req.MaxCommitsPerBranch != 100 {
		t.Errorf("expected max commits 100, got %d", req.MaxCommitsPerBranch)
	}
	if len(req.Projects) != 1 || req.Projects[0] != "zookeeper" {
		t.Errorf("expected projects [zookeeper], got %v", req.Projects)
	}
	if len(req.Extensions) != 2 || req.Extensions[0] != ".go" || req.Extensions[1] != ".py" {
		t.Errorf("expected normalized extensions [.go .py], got %v", req.Extensions)
	}
}

func TestScanCommandWarnsOnNonPositiveBound(t *testing.T) {
	stub := &pipelineStub{}
	deps := cli.Dependencies{
		Pipeline:    stub,
		DefaultScan: cli.DefaultScan{MaxCommitsPerBranch: 50000},
	}
	_, errOut, err := execute(t, deps, "scan", "--max-commits", "-5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(errOut, "warning: --max-commits must be positive") {
		t.Errorf("expected a warning on stderr, got %q", errOut)
	}
	if stub.scanReq.MaxCommitsPerBranch != 50000 {
		t.Errorf("expected fallback to config default 50000, got %d", stub.scanReq.MaxCommitsPerBranch)
	}
}

func TestScanCommandPrintsSkippedProjects(t *testing.T) {
	stub := &pipelineStub{scanRes: pipeline.ScanResult{Projects: 1, Skipped: []string{"hbase"}}}
	out, _, err := execute(t, cli.Dependencies{Pipeline: stub}, "scan")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "Skipped: hbase") {
		t.Errorf("expected skipped projects in output, got %q", out)
	}
}

func TestFetchLogsCommandPrintsStats(t *testing.T) {
	stub := &pipelineStub{fetchRes: pipeline.FetchLogsResult{
		Total: 4, Downloaded: 3, Skipped: 1, Dir: "downloads",
	}}
	out, _, err := execute(t, cli.Dependencies{Pipeline: stub}, "fetch-logs", "--project", "zookeeper")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stub.fetchReq == nil || len(stub.fetchReq.Projects) != 1 {
		t.Fatalf("expected one project in request, got %+v", stub.fetchReq)
	}
	if !strings.Contains(out, "Downloaded 3 of 4 log attachments (1 already present, 0 failed) into downloads") {
		t.Errorf("missing download summary in output: %q", out)
	}
}

func TestAttributeCommandPassesFlags(t *testing.T) {
	stub := &pipelineStub{}
	deps := cli.Dependencies{Pipeline: stub, DefaultExtensions: []string{".java"}}
	_, _, err := execute(t, deps, "attribute", "--project", "zookeeper", "--work-dir", "/tmp/clones")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	req := *stub.attributeReq
	if len(req.Projects) != 1 || req.Projects[0] != "zookeeper" {
		t.Errorf("expected projects [zookeeper], got %v", req.Projects)
	}
	if req.WorkDir != "/tmp/clones" {
		t.Errorf("expected work dir /tmp/clones, got %q", req.WorkDir)
	}
	if len(req.Extensions) != 1 || req.Extensions[0] != ".java" {
		t.Errorf("expected default extensions [.java], got %v", req.Extensions)
	}
}

func TestExportCommandPrintsSummaryTable(t *testing.T) {
	stub := &pipelineStub{exportRes: pipeline.ExportResult{
		IssuesBefore: 10,
		IssuesAfter:  4,
		ReportPaths:  []string{"out/zookeeper_issues_with_commits.csv"},
		Summaries: []domain.ProjectSummary{
			{Project: "zookeeper", TotalIssues: 10, IssuesWithCommits: 4, TotalCommits: 6, AvgCommits: 0.6},
		},
	}}
	out, _, err := execute(t, cli.Dependencies{Pipeline: stub}, "export")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "Pruned 10 issues to 4 with attributed lines.") {
		t.Errorf("missing prune summary in output: %q", out)
	}
	if !strings.Contains(out, "Zookeeper") {
		t.Errorf("expected title-cased project row, got %q", out)
	}
	if !strings.Contains(out, "out/zookeeper_issues_with_commits.csv") {
		t.Errorf("expected report paths in output, got %q", out)
	}
}

func TestStageErrorPropagates(t *testing.T) {
	stub := &pipelineStub{err: errors.New("no issue sources configured")}
	_, _, err := execute(t, cli.Dependencies{Pipeline: stub}, "collect")
	if err == nil || !strings.Contains(err.Error(), "no issue sources") {
		t.Fatalf("expected stage error to propagate, got %v", err)
	}
}

func TestHistoryCommandRequiresStore(t *testing.T) {
	_, _, err := execute(t, cli.Dependencies{Pipeline: &pipelineStub{}}, "history")
	if err == nil || !strings.Contains(err.Error(), "disabled") {
		t.Fatalf("expected a disabled-store error, got %v", err)
	}
}

func TestHistoryCommandListsRuns(t *testing.T) {
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	history := &historyStub{runs: []store.Run{{
		RunID:       "20260301T100000-scan-zookeeper",
		Stage:       "scan",
		Project:     "zookeeper",
		StartedAt:   started,
		FinishedAt:  started.Add(90 * time.Second),
		InputCount:  42,
		OutputCount: 9,
	}}}
	out, _, err := execute(t, cli.Dependencies{Pipeline: &pipelineStub{}, History: history}, "history", "--limit", "5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if history.limit != 5 {
		t.Errorf("expected limit 5 passed through, got %d", history.limit)
	}
	if !strings.Contains(out, "20260301T100000-scan-zookeeper") {
		t.Errorf("expected run ID in output, got %q", out)
	}
	if !strings.Contains(out, "Scan") || !strings.Contains(out, "Zookeeper") {
		t.Errorf("expected title-cased stage and project, got %q", out)
	}
	if !strings.Contains(out, "1m30s") {
		t.Errorf("expected run duration in output, got %q", out)
	}
}

func TestHistoryCommandShowsUnfinishedRunDuration(t *testing.T) {
	history := &historyStub{runs: []store.Run{{
		RunID:     "20260301T100000-collect-all",
		Stage:     "collect",
		Project:   "all",
		StartedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}}}
	out, _, err := execute(t, cli.Dependencies{Pipeline: &pipelineStub{}, History: history}, "history")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "-") {
		t.Errorf("expected dash for unfinished run, got %q", out)
	}
}

func TestHistoryCommandListsRunAttributions(t *testing.T) {
	history := &historyStub{records: []store.AttributionRecord{
		{IssueKey: "ZOOKEEPER-1", AffectedVersion: "3.4.0", MatchedLines: 3},
		{IssueKey: "ZOOKEEPER-2", AffectedVersion: "9.9.9", Error: "Could not resolve version 9.9.9"},
	}}
	out, _, err := execute(t, cli.Dependencies{Pipeline: &pipelineStub{}, History: history}, "history", "--run", "run-7")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if history.runID != "run-7" {
		t.Errorf("expected run ID run-7 passed through, got %q", history.runID)
	}
	if !strings.Contains(out, "attributed") {
		t.Errorf("expected attributed status in output, got %q", out)
	}
	if !strings.Contains(out, "Could not resolve version 9.9.9") {
		t.Errorf("expected error marker in output, got %q", out)
	}
}

package pipeline_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bkyoung/change-attribution/internal/adapter/attachment"
	"github.com/bkyoung/change-attribution/internal/domain"
	"github.com/bkyoung/change-attribution/internal/usecase/pipeline"
)

type fakeDownloader struct {
	artifact domain.ProjectIssueCommits
	stats    attachment.Stats
	err      error
}

func (d *fakeDownloader) Run(_ context.Context, artifact domain.ProjectIssueCommits) (attachment.Stats, error) {
	d.artifact = artifact
	return d.stats, d.err
}

func TestFetchLogs_DownloadsScannedIssueLogs(t *testing.T) {
	outputs := t.TempDir()
	downloads := t.TempDir()
	writeScanArtifact(t, outputs, zookeeperScanArtifact(issueWithLog("ZOOKEEPER-1", "zookeeper", "3.4.0")))

	downloader := &fakeDownloader{stats: attachment.Stats{Total: 1, Downloaded: 1}}
	recorder := newFakeRecorder()
	stages, _ := newStages(pipeline.Deps{
		NewDownloader: func(pipeline.Reporter) pipeline.Downloader { return downloader },
		Recorder:      recorder,
		Paths:         pipeline.Paths{Outputs: outputs, Downloads: downloads},
	})

	result, err := stages.FetchLogs(context.Background(), pipeline.FetchLogsRequest{})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Total)
	assert.Equal(t, 1, result.Downloaded)
	assert.Zero(t, result.Failed)
	assert.Equal(t, downloads, result.Dir)

	require.Contains(t, downloader.artifact, "zookeeper")
	assert.Contains(t, downloader.artifact["zookeeper"], "ZOOKEEPER-1")

	assert.Equal(t, []string{"fetch-logs/all"}, recorder.begun)
	assert.Equal(t, 1, recorder.inputs["run-1"])
	assert.Equal(t, 1, recorder.finished["run-1"])
}

func TestFetchLogs_ProjectFilter(t *testing.T) {
	outputs := t.TempDir()
	artifact := zookeeperScanArtifact(issueWithLog("ZOOKEEPER-1", "zookeeper", "3.4.0"))
	artifact["hbase"] = map[string]domain.IssueCommits{
		"HBASE-42": {Issue: issueWithLog("HBASE-42", "hbase", "0.94.0")},
	}
	writeScanArtifact(t, outputs, artifact)

	downloader := &fakeDownloader{}
	stages, _ := newStages(pipeline.Deps{
		NewDownloader: func(pipeline.Reporter) pipeline.Downloader { return downloader },
		Paths:         pipeline.Paths{Outputs: outputs, Downloads: t.TempDir()},
	})

	_, err := stages.FetchLogs(context.Background(), pipeline.FetchLogsRequest{Projects: []string{"HBase"}})
	require.NoError(t, err)

	assert.Contains(t, downloader.artifact, "hbase")
	assert.NotContains(t, downloader.artifact, "zookeeper")
}

func TestFetchLogs_NoDownloaderConfigured(t *testing.T) {
	stages, _ := newStages(pipeline.Deps{Paths: pipeline.Paths{Outputs: t.TempDir()}})

	_, err := stages.FetchLogs(context.Background(), pipeline.FetchLogsRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no downloader")
}

func TestFetchLogs_MissingScanArtifact(t *testing.T) {
	stages, _ := newStages(pipeline.Deps{
		NewDownloader: func(pipeline.Reporter) pipeline.Downloader { return &fakeDownloader{} },
		Paths:         pipeline.Paths{Outputs: t.TempDir()},
	})

	_, err := stages.FetchLogs(context.Background(), pipeline.FetchLogsRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scan stage")
}

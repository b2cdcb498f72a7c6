// Package cli maps the pipeline stages onto a cobra command tree. Commands
// stay thin: flags resolve against config defaults, the pipeline runner does
// the work, and each command prints a short outcome summary.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/bkyoung/change-attribution/internal/store"
	"github.com/bkyoung/change-attribution/internal/usecase/pipeline"
)

// ErrVersionRequested indicates the user requested the CLI version and no further work should be done.
var ErrVersionRequested = errors.New("version requested")

// PipelineRunner defines the stage operations the commands invoke.
type PipelineRunner interface {
	Collect(ctx context.Context, req pipeline.CollectRequest) (pipeline.CollectResult, error)
	Scan(ctx context.Context, req pipeline.ScanRequest) (pipeline.ScanResult, error)
	FetchLogs(ctx context.Context, req pipeline.FetchLogsRequest) (pipeline.FetchLogsResult, error)
	Attribute(ctx context.Context, req pipeline.AttributeRequest) (pipeline.AttributeResult, error)
	Export(ctx context.Context, req pipeline.ExportRequest) (pipeline.ExportResult, error)
}

// HistorySource reads recorded run history. Nil means the store is disabled.
type HistorySource interface {
	ListRuns(ctx context.Context, limit int) ([]store.Run, error)
	ListAttributions(ctx context.Context, runID string) ([]store.AttributionRecord, error)
}

// Arguments encapsulates IO writers injected from the host process.
type Arguments struct {
	OutWriter io.Writer
	ErrWriter io.Writer
}

// DefaultScan holds the scan bounds from config.
type DefaultScan struct {
	MaxCommitsPerBranch int
	MaxCommitsPerIssue  int
	MessageLimit        int
}

// Dependencies captures the collaborators for the CLI.
type Dependencies struct {
	Pipeline          PipelineRunner
	History           HistorySource
	Args              Arguments
	DefaultScan       DefaultScan
	DefaultExtensions []string
	Version           string
}

// NewRootCommand constructs the root Cobra command.
func NewRootCommand(deps Dependencies) *cobra.Command {
	versionString := deps.Version
	if versionString == "" {
		versionString = "v0.0.0"
	}

	root := &cobra.Command{
		Use:   "ca",
		Short: "Link defect reports to the source lines their fixes touched",
	}
	root.SilenceUsage = true
	root.SilenceErrors = true

	outWriter := deps.Args.OutWriter
	if outWriter == nil {
		outWriter = os.Stdout
	}
	errWriter := deps.Args.ErrWriter
	if errWriter == nil {
		errWriter = os.Stderr
	}
	root.SetOut(outWriter)
	root.SetErr(errWriter)

	root.AddCommand(collectCommand(deps.Pipeline))
	root.AddCommand(scanCommand(deps.Pipeline, deps.DefaultScan, deps.DefaultExtensions))
	root.AddCommand(fetchLogsCommand(deps.Pipeline))
	root.AddCommand(attributeCommand(deps.Pipeline, deps.DefaultExtensions))
	root.AddCommand(exportCommand(deps.Pipeline))
	root.AddCommand(historyCommand(deps.History))

	var showVersion bool
	root.PersistentFlags().BoolVarP(&showVersion, "version", "v", false, "Show version and exit")
	versionHandler := func(cmd *cobra.Command, args []string) error {
		if showVersion {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), versionString)
			return ErrVersionRequested
		}
		return nil
	}
	root.PersistentPreRunE = versionHandler
	root.PreRunE = versionHandler
	root.RunE = func(cmd *cobra.Command, args []string) error {
		if err := versionHandler(cmd, args); err != nil {
			return err
		}
		return cmd.Help()
	}

	return root
}

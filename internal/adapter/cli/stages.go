package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/bkyoung/change-attribution/internal/usecase/pipeline"
)

func collectCommand(runner PipelineRunner) *cobra.Command {
	var sources []string

	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Import issues from the configured trackers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := runner.Collect(cmd.Context(), pipeline.CollectRequest{Sources: sources})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "Collected %d issues, %d with log attachments.\n", result.Issues, result.WithLogs)
			_, _ = fmt.Fprintf(out, "Artifacts: %s, %s\n", result.IssuesPath, result.WithLogsPath)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&sources, "source", []string{}, "Issue sources to collect from (jira, github); default all configured")
	return cmd
}

func scanCommand(runner PipelineRunner, defaults DefaultScan, defaultExtensions []string) *cobra.Command {
	var projects []string
	var extensions []string
	var maxCommits int
	var maxCommitsPerIssue int
	var messageLimit int

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Find the fix commits for collected issues",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := runner.Scan(cmd.Context(), pipeline.ScanRequest{
				Projects:            projects,
				Extensions:          resolveExtensions(extensions, defaultExtensions),
				MaxCommitsPerBranch: resolveBound(cmd, "max-commits", maxCommits, defaults.MaxCommitsPerBranch),
				MaxCommitsPerIssue:  resolveBound(cmd, "max-commits-per-issue", maxCommitsPerIssue, defaults.MaxCommitsPerIssue),
				MessageLimit:        resolveBound(cmd, "message-limit", messageLimit, defaults.MessageLimit),
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "Scanned %d projects: %d issues, %d matched a fix commit, %d attributable.\n",
				result.Projects, result.Issues, result.Matched, result.Kept)
			if len(result.Skipped) > 0 {
				_, _ = fmt.Fprintf(out, "Skipped: %s\n", strings.Join(result.Skipped, ", "))
			}
			_, _ = fmt.Fprintf(out, "Artifact: %s\n", result.ArtifactPath)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&projects, "project", []string{}, "Projects to scan; default all collected")
	cmd.Flags().StringSliceVar(&extensions, "extensions", []string{}, "Source file extensions to track (default from config)")
	cmd.Flags().IntVar(&maxCommits, "max-commits", 0, "Commits to walk per branch (0 uses config default)")
	cmd.Flags().IntVar(&maxCommitsPerIssue, "max-commits-per-issue", 0, "Fix commits to record per issue (0 uses config default)")
	cmd.Flags().IntVar(&messageLimit, "message-limit", 0, "Commit message characters to store (0 uses config default)")
	return cmd
}

func fetchLogsCommand(runner PipelineRunner) *cobra.Command {
	var projects []string

	cmd := &cobra.Command{
		Use:   "fetch-logs",
		Short: "Download the log attachments of scanned issues",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := runner.FetchLogs(cmd.Context(), pipeline.FetchLogsRequest{Projects: projects})
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(),
				"Downloaded %d of %d log attachments (%d already present, %d failed) into %s\n",
				result.Downloaded, result.Total, result.Skipped, result.Failed, result.Dir)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&projects, "project", []string{}, "Projects to download logs for; default all scanned")
	return cmd
}

func attributeCommand(runner PipelineRunner, defaultExtensions []string) *cobra.Command {
	var projects []string
	var extensions []string
	var workDir string

	cmd := &cobra.Command{
		Use:   "attribute",
		Short: "Link fix commits to the affected versions' source lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := runner.Attribute(cmd.Context(), pipeline.AttributeRequest{
				Projects:   projects,
				Extensions: resolveExtensions(extensions, defaultExtensions),
				WorkDir:    workDir,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "Analyzed %d projects: %d issues, %d results (%d attributed, %d errored).\n",
				result.Projects, result.Issues, result.Results, result.Attributed, result.Errored)
			if len(result.Skipped) > 0 {
				_, _ = fmt.Fprintf(out, "Skipped: %s\n", strings.Join(result.Skipped, ", "))
			}
			_, _ = fmt.Fprintf(out, "Artifact: %s\n", result.ArtifactPath)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&projects, "project", []string{}, "Projects to attribute; default all scanned")
	cmd.Flags().StringSliceVar(&extensions, "extensions", []string{}, "Source file extensions to match (default from config)")
	cmd.Flags().StringVar(&workDir, "work-dir", "", "Directory for disposable clones (default system temp)")
	return cmd
}

func exportCommand(runner PipelineRunner) *cobra.Command {
	var projects []string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Prune unattributed issues and write the CSV reports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := runner.Export(cmd.Context(), pipeline.ExportRequest{Projects: projects})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "Pruned %d issues to %d with attributed lines.\n",
				result.IssuesBefore, result.IssuesAfter)

			if len(result.Summaries) > 0 {
				title := cases.Title(language.English)
				w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				_, _ = fmt.Fprintln(w, "PROJECT\tISSUES\tWITH COMMITS\tCOMMITS\tAVG")
				for _, summary := range result.Summaries {
					_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%.2f\n",
						title.String(summary.Project),
						summary.TotalIssues,
						summary.IssuesWithCommits,
						summary.TotalCommits,
						summary.AvgCommits)
				}
				if err := w.Flush(); err != nil {
					return err
				}
			}

			_, _ = fmt.Fprintf(out, "Reports: %s\n", strings.Join(result.ReportPaths, ", "))
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&projects, "project", []string{}, "Projects to export; default all attributed")
	return cmd
}

// resolveBound returns the CLI value if the flag was explicitly set and
// positive, otherwise the config default. Non-positive values warn and fall
// back.
func resolveBound(cmd *cobra.Command, flagName string, cliValue, configDefault int) int {
	if !cmd.Flags().Changed(flagName) {
		return configDefault
	}
	if cliValue <= 0 {
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "warning: --%s must be positive, using config default %d\n", flagName, configDefault)
		return configDefault
	}
	return cliValue
}

// resolveExtensions normalizes CLI extensions to a leading dot, falling back
// to the config defaults when none were given.
func resolveExtensions(cliValues, defaults []string) []string {
	if len(cliValues) == 0 {
		return defaults
	}
	out := make([]string, 0, len(cliValues))
	for _, ext := range cliValues {
		ext = strings.TrimSpace(ext)
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		out = append(out, ext)
	}
	return out
}

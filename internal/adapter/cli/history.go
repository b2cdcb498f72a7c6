package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/bkyoung/change-attribution/internal/store"
)

const defaultHistoryLimit = 10

func historyCommand(history HistorySource) *cobra.Command {
	var limit int
	var runID string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded pipeline runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if history == nil {
				return fmt.Errorf("run history is disabled; enable the store in the configuration")
			}
			if runID != "" {
				return printAttributions(cmd, history, runID)
			}
			if limit <= 0 {
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "warning: --limit must be positive, using %d\n", defaultHistoryLimit)
				limit = defaultHistoryLimit
			}
			return printRuns(cmd, history, limit)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", defaultHistoryLimit, "Maximum number of runs to list")
	cmd.Flags().StringVar(&runID, "run", "", "Show the attribution records of one run")
	return cmd
}

func printRuns(cmd *cobra.Command, history HistorySource, limit int) error {
	runs, err := history.ListRuns(cmd.Context(), limit)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}
	if len(runs) == 0 {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No recorded runs.")
		return nil
	}

	title := cases.Title(language.English)
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "RUN\tSTAGE\tPROJECT\tSTARTED\tDURATION\tIN\tOUT")
	for _, run := range runs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%d\n",
			run.RunID,
			title.String(run.Stage),
			title.String(run.Project),
			run.StartedAt.Format("2006-01-02 15:04:05"),
			formatRunDuration(run),
			run.InputCount,
			run.OutputCount,
		)
	}
	return w.Flush()
}

func printAttributions(cmd *cobra.Command, history HistorySource, runID string) error {
	records, err := history.ListAttributions(cmd.Context(), runID)
	if err != nil {
		return fmt.Errorf("list attributions: %w", err)
	}
	if len(records) == 0 {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "No attribution records for run %s.\n", runID)
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ISSUE\tVERSION\tMATCHED\tUNIDENTIFIED\tSTATUS")
	for _, record := range records {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n",
			record.IssueKey,
			record.AffectedVersion,
			record.MatchedLines,
			record.UnidentifiedLines,
			recordStatus(record),
		)
	}
	return w.Flush()
}

// formatRunDuration shows "-" for runs that never finished.
func formatRunDuration(run store.Run) string {
	if run.FinishedAt.IsZero() {
		return "-"
	}
	return run.Duration().Round(time.Millisecond).String()
}

func recordStatus(record store.AttributionRecord) string {
	switch {
	case record.Error != "":
		return record.Error
	case record.Attributed():
		return "attributed"
	default:
		return "no match"
	}
}

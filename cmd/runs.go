package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/supervision-reconciler/internal/model"
	"github.com/sells-group/supervision-reconciler/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect reconciliation run history",
	Long:  "Commands for listing and viewing reconciliation runs and their review queues.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List reconciliation runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := requireStore(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		runs, err := st.ListRuns(ctx, store.RunFilter{Status: model.RunStatus(status), Limit: limit})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show full details of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := requireStore(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

// -- runs review --

var runsReviewCmd = &cobra.Command{
	Use:   "review <run-id>",
	Short: "List the submissions of a run that need review",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := requireStore(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		items, err := st.ListReview(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs review")
		}
		if len(items) == 0 {
			fmt.Fprintln(os.Stderr, "Nothing to review.")
			return nil
		}
		formatAssignments(os.Stdout, items)
		return nil
	},
}

// -- runs compliance --

var runsComplianceCmd = &cobra.Command{
	Use:   "compliance <run-id>",
	Short: "Show the quota status of every store in a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := requireStore(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		records, err := st.ListCompliance(ctx, args[0], model.ComplianceStatus(status))
		if err != nil {
			return eris.Wrap(err, "runs compliance")
		}
		formatCompliance(os.Stdout, records)
		return nil
	},
}

func init() {
	runsListCmd.Flags().String("status", "", "filter by run status (running, complete, failed)")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")
	runsComplianceCmd.Flags().String("status", "", "filter by record status (COMPLIANT, DEFICIT, EXCESS)")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsReviewCmd)
	runsCmd.AddCommand(runsComplianceCmd)
	rootCmd.AddCommand(runsCmd)
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSOURCE\tSTATUS\tTOTAL\tREVIEW\tSTARTED\tDURATION")
	_, _ = fmt.Fprintln(w, "--\t------\t------\t-----\t------\t-------\t--------")

	for _, r := range runs {
		dur := ""
		if r.FinishedAt != nil {
			dur = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
			truncateID(r.ID),
			r.Source,
			r.Status,
			r.Summary.Total,
			r.Summary.NeedsReview,
			r.StartedAt.Format("2006-01-02 15:04"),
			dur,
		)
	}
	_ = w.Flush()
}

// formatAssignments writes one line per assignment.
func formatAssignments(out io.Writer, items []model.Assignment) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SUBMISSION\tTYPE\tSUBMITTED\tSUBMITTER\tSTORE\tMETHOD\tCONFIDENCE")
	for _, a := range items {
		storeID := "-"
		if a.StoreID != 0 {
			storeID = fmt.Sprint(a.StoreID)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%.2f\n",
			a.SubmissionID, a.Type, a.SubmittedAt.Format("2006-01-02 15:04"), a.Submitter, storeID, a.Method, a.Confidence)
	}
	_ = w.Flush()
}

// formatCompliance writes one line per compliance record.
func formatCompliance(out io.Writer, records []model.ComplianceRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "STORE\tPERIOD\tTYPE\tACTUAL\tEXPECTED\tSTATUS")
	for _, r := range records {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%d\t%s\n", r.StoreID, r.Period, r.InspectionType, r.Actual, r.Expected, r.Status)
	}
	_ = w.Flush()
}

// printSummary writes the counts of a finished run.
func printSummary(out io.Writer, runID string, s model.RunSummary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Run:\t%s\n", runID)
	_, _ = fmt.Fprintf(w, "Total:\t%d\n", s.Total)
	_, _ = fmt.Fprintf(w, "Resolved:\t%d\n", s.Resolved)
	_, _ = fmt.Fprintf(w, "Unresolved:\t%d\n", s.Unresolved)
	_, _ = fmt.Fprintf(w, "Redistributed:\t%d\n", s.Redistributed)
	_, _ = fmt.Fprintf(w, "Excluded:\t%d\n", s.Excluded)
	_, _ = fmt.Fprintf(w, "Needs review:\t%d\n", s.NeedsReview)

	methods := make([]string, 0, len(s.ByMethod))
	for m := range s.ByMethod {
		methods = append(methods, string(m))
	}
	sort.Strings(methods)
	for _, m := range methods {
		_, _ = fmt.Fprintf(w, "  %s:\t%d\n", m, s.ByMethod[model.Method(m)])
	}
	for _, st := range []model.ComplianceStatus{model.StatusCompliant, model.StatusDeficit, model.StatusExcess} {
		_, _ = fmt.Fprintf(w, "%s:\t%d\n", st, s.ByStatus[st])
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

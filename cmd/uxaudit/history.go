package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/uxaudit/internal/config"
	"github.com/nao1215/uxaudit/internal/database"
	"github.com/nao1215/uxaudit/internal/model"
)

// historyDateLayout is used for run timestamps in text output.
const historyDateLayout = "2006-01-02 15:04:05"

// noHistoryMessage is printed when no run has been recorded yet.
const noHistoryMessage = "No audit history found."

// NewHistoryCmd creates the history command.
// This command lists audits recorded in the history database.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show past audit runs",
		Long: `History lists audit runs recorded by 'uxaudit analyze'.

Without arguments it lists recent runs, newest first. With a run ID it
shows the outcome counts, failed targets and top recommendations of that run.

Examples:
  # List recent runs
  uxaudit history

  # List runs of one site
  uxaudit history --seed https://example.com/

  # Show one run
  uxaudit history 20260301T100000Z-abcd1234

  # Output JSON
  uxaudit history --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	cmd.Flags().StringP("seed", "s", "",
		"Only list runs of this seed URL")
	cmd.Flags().IntP("limit", "n", 20,
		"Maximum number of runs to list (0 = all)")
	cmd.Flags().Int("top", 10,
		"Number of recommendations to show for a run")
	cmd.Flags().BoolP("json", "j", false,
		"Output in JSON format")
	cmd.Flags().String("db-dir", config.XDGDataDir(),
		"Directory containing the history database")

	return cmd
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, args []string) error {
	dbDir, err := cmd.Flags().GetString("db-dir")
	if err != nil {
		return err
	}
	jsonOutput, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()

	if _, err := os.Stat(filepath.Join(dbDir, database.FileName)); errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(out, noHistoryMessage)
		return nil
	}

	db, err := database.Open(dbDir, database.Options{CreateIfNotExists: false, EnableWAL: true})
	if err != nil {
		return fmt.Errorf("failed to open history database: %w", err)
	}
	defer db.Close()

	ctx := cmd.Context()

	if len(args) == 1 {
		top, err := cmd.Flags().GetInt("top")
		if err != nil {
			return err
		}
		return showRun(ctx, out, db, args[0], top, jsonOutput)
	}

	seed, err := cmd.Flags().GetString("seed")
	if err != nil {
		return err
	}
	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return err
	}
	return listRuns(ctx, out, db, seed, limit, jsonOutput)
}

// runListEntry is the JSON form of a listed run.
type runListEntry struct {
	RunID           string                `json:"run_id"`
	SeedURL         string                `json:"seed_url"`
	Model           string                `json:"model,omitempty"`
	Status          model.RunStatus       `json:"status"`
	Error           string                `json:"error,omitempty"`
	StartedAt       time.Time             `json:"started_at"`
	CompletedAt     time.Time             `json:"completed_at"`
	Counts          map[model.Outcome]int `json:"counts"`
	Recommendations int                   `json:"recommendations"`
}

// listRuns prints the run list.
func listRuns(ctx context.Context, out io.Writer, db *database.HistoryDB, seed string, limit int, jsonOutput bool) error {
	runs, err := db.ListRuns(ctx, seed, limit)
	if err != nil {
		return err
	}

	if jsonOutput {
		entries := make([]runListEntry, 0, len(runs))
		for _, r := range runs {
			entries = append(entries, runListEntry(r))
		}
		return writeJSON(out, entries)
	}

	if len(runs) == 0 {
		fmt.Fprintln(out, noHistoryMessage)
		return nil
	}

	fmt.Fprintf(out, "Audit runs (%d):\n\n", len(runs))
	fmt.Fprintf(out, "  %-26s  %-19s  %-16s  %-5s  %s\n", "Run ID", "Started", "Status", "Recs", "Seed")
	for _, r := range runs {
		fmt.Fprintf(out, "  %-26s  %-19s  %-16s  %-5d  %s\n",
			r.RunID,
			r.StartedAt.Local().Format(historyDateLayout),
			r.Status,
			r.Recommendations,
			r.SeedURL,
		)
	}
	return nil
}

// runDetail is the JSON form of a single run.
type runDetail struct {
	RunID           string                 `json:"run_id"`
	SeedURL         string                 `json:"seed_url"`
	Model           string                 `json:"model,omitempty"`
	Status          model.RunStatus        `json:"status"`
	Error           string                 `json:"error,omitempty"`
	StartedAt       time.Time              `json:"started_at"`
	CompletedAt     time.Time              `json:"completed_at"`
	Counts          map[model.Outcome]int  `json:"counts"`
	Failed          []model.ManifestEntry  `json:"failed,omitempty"`
	Recommendations []model.Recommendation `json:"recommendations"`
}

// showRun prints one run with its counts, failures and top recommendations.
func showRun(ctx context.Context, out io.Writer, db *database.HistoryDB, runID string, top int, jsonOutput bool) error {
	report, err := db.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	failed, err := db.FailedTargets(ctx, runID)
	if err != nil {
		return err
	}
	recs, err := db.TopRecommendations(ctx, runID, top)
	if err != nil {
		return err
	}

	detail := runDetail{
		RunID:           report.RunID,
		SeedURL:         report.SeedURL,
		Model:           report.Model,
		Status:          report.Status,
		Error:           report.Error,
		StartedAt:       report.StartedAt,
		CompletedAt:     report.CompletedAt,
		Counts:          report.Counts(),
		Failed:          failed,
		Recommendations: recs,
	}
	if jsonOutput {
		return writeJSON(out, detail)
	}

	fmt.Fprintf(out, "Run %s\n", detail.RunID)
	fmt.Fprintf(out, "  Seed:     %s\n", detail.SeedURL)
	if detail.Model != "" {
		fmt.Fprintf(out, "  Model:    %s\n", detail.Model)
	}
	fmt.Fprintf(out, "  Started:  %s\n", detail.StartedAt.Local().Format(historyDateLayout))
	fmt.Fprintf(out, "  Duration: %s\n", report.Duration().Round(time.Millisecond))
	fmt.Fprintf(out, "  Status:   %s\n", detail.Status)
	if detail.Error != "" {
		fmt.Fprintf(out, "  Error:    %s\n", detail.Error)
	}

	fmt.Fprintf(out, "\nOutcomes:\n")
	for _, o := range model.AllOutcomes() {
		if n := detail.Counts[o]; n > 0 {
			fmt.Fprintf(out, "  %-16s  %d\n", o, n)
		}
	}

	if len(failed) > 0 {
		fmt.Fprintf(out, "\nFailed targets (%d):\n", len(failed))
		for _, e := range failed {
			fmt.Fprintf(out, "  [%s] %s %s", e.Outcome, e.Target.ID, e.Target.URL)
			if e.ErrorKind != "" {
				fmt.Fprintf(out, " (%s)", e.ErrorKind)
			}
			fmt.Fprintln(out)
		}
	}

	fmt.Fprintf(out, "\nTop recommendations (%d of %d):\n", len(recs), len(report.Recommendations))
	if len(recs) == 0 {
		fmt.Fprintln(out, "  none")
	}
	for _, r := range recs {
		fmt.Fprintf(out, "  [%s] %s (impact %s, effort %s)\n", r.Priority, r.Title, r.Impact, r.Effort)
	}
	return nil
}

// writeJSON writes v as indented JSON.
func writeJSON(out io.Writer, v any) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

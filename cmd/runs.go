package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/estimator/internal/model"
	"github.com/sells-group/estimator/internal/render"
	"github.com/sells-group/estimator/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect stored estimates",
	Long:  "Commands for listing, viewing, and summarizing stored estimates.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored estimates",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		provider, _ := cmd.Flags().GetString("provider")
		job, _ := cmd.Flags().GetString("job")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		ests, err := st.ListEstimates(ctx, store.EstimateFilter{
			Provider: provider,
			JobName:  job,
			Limit:    limit,
			Offset:   offset,
		})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(ests) == 0 {
			fmt.Fprintln(os.Stderr, "No estimates found.")
			return nil
		}

		formatEstimateList(os.Stdout, ests)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <estimate-id>",
	Short: "Show full details of an estimate",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		est, err := st.GetEstimate(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		if asTable, _ := cmd.Flags().GetBool("table"); asTable {
			printEstimate(os.Stdout, os.Stderr, est)
			return nil
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(est)
	},
}

// -- runs stats --

var runsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate estimate statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		since, _ := cmd.Flags().GetDuration("since")
		ests, err := st.ListEstimates(ctx, store.EstimateFilter{Limit: 10000}) // high limit for stats
		if err != nil {
			return eris.Wrap(err, "runs stats")
		}

		var cutoff time.Time
		if since > 0 {
			cutoff = time.Now().Add(-since)
		}
		formatEstimateStats(os.Stdout, computeEstimateStats(ests, cutoff))
		return nil
	},
}

func init() {
	runsListCmd.Flags().String("provider", "", "filter by provider (anthropic, openai, gemini, import)")
	runsListCmd.Flags().String("job", "", "filter by job name substring")
	runsListCmd.Flags().Int("limit", 50, "max number of estimates to display")
	runsListCmd.Flags().Int("offset", 0, "number of estimates to skip")

	runsShowCmd.Flags().Bool("table", false, "print the item table instead of JSON")

	runsStatsCmd.Flags().Duration("since", 7*24*time.Hour, "time window for stats (e.g. 24h, 168h, 0 for all)")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsStatsCmd)
	rootCmd.AddCommand(runsCmd)
}

// estimateStats holds aggregate statistics computed from stored estimates.
type estimateStats struct {
	Total      int
	Fallback   int
	WithWarn   int
	ByProvider map[string]int
	SumTotal   int64
	MaxTotal   int64
}

// computeEstimateStats aggregates the estimates created at or after cutoff.
// A zero cutoff includes everything.
func computeEstimateStats(ests []model.Estimate, cutoff time.Time) estimateStats {
	s := estimateStats{ByProvider: map[string]int{}}
	for _, e := range ests {
		if !cutoff.IsZero() && e.CreatedAt.Before(cutoff) {
			continue
		}
		s.Total++
		s.ByProvider[e.Provider]++
		if e.UsedFallback {
			s.Fallback++
		}
		if len(e.Warnings) > 0 {
			s.WithWarn++
		}
		s.SumTotal += e.Totals.Total
		s.MaxTotal = max(s.MaxTotal, e.Totals.Total)
	}
	return s
}

// formatEstimateStats writes aggregate stats to w.
func formatEstimateStats(out io.Writer, s estimateStats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Estimates:\t%d\n", s.Total)
	_, _ = fmt.Fprintf(w, "Fallback:\t%d\n", s.Fallback)
	_, _ = fmt.Fprintf(w, "With warnings:\t%d\n", s.WithWarn)

	providers := make([]string, 0, len(s.ByProvider))
	for p := range s.ByProvider {
		providers = append(providers, p)
	}
	sort.Strings(providers)
	for _, p := range providers {
		_, _ = fmt.Fprintf(w, "  %s:\t%d\n", p, s.ByProvider[p])
	}

	if s.Total > 0 {
		_, _ = fmt.Fprintf(w, "Avg total:\t%s円\n", render.Yen(s.SumTotal/int64(s.Total)))
		_, _ = fmt.Fprintf(w, "Max total:\t%s円\n", render.Yen(s.MaxTotal))
	}
	_ = w.Flush()
}

var listBorder = lipgloss.NewStyle().Foreground(lipgloss.Color("#7f849c"))

// formatEstimateList writes a table of estimates to out.
func formatEstimateList(out io.Writer, ests []model.Estimate) {
	rows := make([][]string, 0, len(ests))
	for _, e := range ests {
		name := []rune(e.Job.Name)
		if len(name) > 20 {
			name = append(name[:19], '…')
		}
		flags := ""
		if e.UsedFallback {
			flags = "fallback"
		} else if len(e.Warnings) > 0 {
			flags = fmt.Sprintf("%d warning(s)", len(e.Warnings))
		}
		rows = append(rows, []string{
			truncateID(e.ID),
			string(name),
			e.Provider,
			render.Yen(e.Totals.Total),
			e.CreatedAt.Local().Format("2006-01-02 15:04"),
			flags,
		})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(listBorder).
		Headers("ID", "JOB", "PROVIDER", "TOTAL", "CREATED", "").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			s := lipgloss.NewStyle().Padding(0, 1)
			if row == table.HeaderRow {
				return s.Bold(true)
			}
			if col == 3 {
				return s.Align(lipgloss.Right)
			}
			return s
		})
	_, _ = fmt.Fprintln(out, t.Render())
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

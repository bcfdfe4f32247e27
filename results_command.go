package main

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/soocke/score-split-go/store"
)

func newResultsCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "results [run-id]",
		Short: "Show recorded runs, or the scores of one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cfg.ResultsDB == "" {
				return fmt.Errorf("no results database configured")
			}
			st, err := store.Open(cfg.ResultsDB)
			if err != nil {
				return err
			}
			defer st.Close()

			out := cmd.OutOrStdout()
			if len(args) == 1 {
				run, err := st.GetRun(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				results, err := st.ListResults(cmd.Context(), run.ID)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Run %s (%s, %s) started %s\n", run.ID, run.Status, run.Source, humanize.Time(run.StartedAt))
				if len(results) == 0 {
					fmt.Fprintln(out, "No splits scored")
					return nil
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Split", "Score", "Confidence", "Frame", "Detected"},
					resultRows(run, results),
					[]columnAlignment{alignRight, alignRight, alignRight, alignRight, alignLeft},
				))
				return nil
			}

			runs, err := st.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded")
				return nil
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Status", "Source", "Splits", "Frames", "Started", "Splits File"},
				runRows(runs),
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs to list")
	return cmd
}

func runRows(runs []store.Run) [][]string {
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{
			r.ID,
			r.Status,
			r.Source,
			strconv.Itoa(r.SplitCount),
			humanize.Comma(r.Frames),
			humanize.Time(r.StartedAt),
			r.SplitsPath,
		})
	}
	return rows
}

func resultRows(run store.Run, results []store.SplitResult) [][]string {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		rows = append(rows, []string{
			fmt.Sprintf("%d/%d", r.SplitIndex, run.SplitCount),
			humanize.Comma(r.Score),
			fmt.Sprintf("%.4f", r.Confidence),
			strconv.FormatUint(r.FrameSequence, 10),
			humanize.Time(r.DetectedAt),
		})
	}
	return rows
}

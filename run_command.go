package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/soocke/score-split-go/app"
	"github.com/soocke/score-split-go/config"
	"github.com/soocke/score-split-go/debug"
	"github.com/soocke/score-split-go/metrics"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var (
		source      string
		input       string
		fps         float64
		start       time.Duration
		threshold   float64
		metricsAddr string
		resultsDB   string
		noStore     bool
		debugFlag   bool
	)

	cmd := &cobra.Command{
		Use:   "run [frames...]",
		Short: "Watch a frame source and score each split in order",
		Long: `Reads frames from the configured source and checks each one against the
current split. A split is scored once its trigger is found and the score
region reads as a number; the run then moves on to the next split.

Sources: screen (default), video (--input file.mp4), dir (--input folder,
new images are checked as they appear) and files (image paths as args).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("source") {
				cfg.Source = source
			}
			if flags.Changed("input") {
				cfg.Input = input
			}
			if flags.Changed("fps") {
				cfg.FPS = fps
			}
			if flags.Changed("start") {
				cfg.StartSeconds = start.Seconds()
			}
			if flags.Changed("threshold") {
				cfg.Threshold = threshold
			}
			if flags.Changed("metrics-addr") {
				cfg.MetricsAddr = metricsAddr
			}
			if flags.Changed("results-db") {
				cfg.ResultsDB = resultsDB
			}
			if noStore {
				cfg.ResultsDB = ""
			}
			if debugFlag {
				cfg.Debug = true
			}
			if len(args) > 0 && !flags.Changed("source") {
				cfg.Source = "files"
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger := NewLogger(parseLevel(cfg.LogLevel, cfg.Debug), cfg.LogFormat, cmd.ErrOrStderr())
			runCtx := cmd.Context()

			container, err := app.BuildContainer(runCtx, cfg, logger, newRecognizer, args)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := container.Close(); cerr != nil {
					logger.Warn("close components", "error", cerr)
				}
			}()

			if cfg.MetricsAddr != "" {
				metrics.StartServer(runCtx, cfg.MetricsAddr, container.Registry, logger)
			}
			if cfg.Debug {
				debug.StartRuntimeLogger(runCtx, 30*time.Second, logger)
			}

			sum, runErr := container.Execute(runCtx)
			fmt.Fprint(cmd.OutOrStdout(), renderSummary(cfg, sum))
			return runErr
		},
	}

	cmd.Flags().StringVar(&source, "source", "", "Frame source: "+strings.Join(config.Sources, ", "))
	cmd.Flags().StringVarP(&input, "input", "i", "", "Video file or directory for the video and dir sources")
	cmd.Flags().Float64Var(&fps, "fps", 0, "Frames per second sampled from a video source")
	cmd.Flags().DurationVar(&start, "start", 0, "Offset into the video to start from")
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "Minimum trigger match confidence (0-1)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	cmd.Flags().StringVar(&resultsDB, "results-db", "", "SQLite database for run results")
	cmd.Flags().BoolVar(&noStore, "no-store", false, "Do not record the run")
	cmd.Flags().BoolVar(&debugFlag, "debug", false, "Verbose logging and runtime stats")

	return cmd
}

func renderSummary(cfg *config.Config, sum app.Summary) string {
	var b strings.Builder
	if len(sum.Results) > 0 {
		rows := make([][]string, 0, len(sum.Results))
		for _, r := range sum.Results {
			rows = append(rows, []string{
				strconv.Itoa(r.SplitIndex),
				humanize.Comma(r.Score),
				fmt.Sprintf("%.4f", r.Confidence),
				strconv.FormatUint(r.FrameSequence, 10),
				formatOffset(cfg.Source, r.FrameOffset),
			})
		}
		b.WriteString(renderTable(
			[]string{"Split", "Score", "Confidence", "Frame", "Offset"},
			rows,
			[]columnAlignment{alignRight, alignRight, alignRight, alignRight, alignRight},
		))
		b.WriteString("\n")
	}

	status := "incomplete"
	if sum.Exhausted {
		status = "complete"
	}
	fmt.Fprintf(&b, "%s: %d split(s) scored from %s frame(s)", status, sum.Scored, humanize.Comma(sum.Frames))
	if sum.RunID != "" {
		fmt.Fprintf(&b, ", run %s", sum.RunID)
	}
	b.WriteString("\n")

	if len(sum.Failures) > 0 {
		kinds := make([]string, 0, len(sum.Failures))
		for k, n := range sum.Failures {
			kinds = append(kinds, fmt.Sprintf("%s=%d", k, n))
		}
		sort.Strings(kinds)
		fmt.Fprintf(&b, "unscored frames: %s\n", strings.Join(kinds, " "))
	}
	return b.String()
}

func formatOffset(source string, d time.Duration) string {
	if source != "video" {
		return "-"
	}
	return d.Truncate(time.Millisecond).String()
}

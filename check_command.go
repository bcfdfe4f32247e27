package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/soocke/score-split-go/app"
	"github.com/soocke/score-split-go/domain/codec"
	"github.com/soocke/score-split-go/domain/match"
	"github.com/soocke/score-split-go/domain/split"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	var (
		index     int
		matchOnly bool
	)

	cmd := &cobra.Command{
		Use:   "check <frame>",
		Short: "Check one frame image against a split",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			frame, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			logger := ctx.log()
			out := cmd.OutOrStdout()

			if matchOnly {
				f, err := split.LoadFile(cfg.SplitsPath)
				if err != nil {
					return err
				}
				if index < 0 || index >= len(f.Splits) {
					return fmt.Errorf("split %d out of range (0-%d)", index, len(f.Splits)-1)
				}
				res, err := matchTrigger(frame, f.Splits[index].TriggerImage, f.Method)
				if err != nil {
					return err
				}
				threshold := f.Threshold
				if threshold == 0 {
					threshold = cfg.Threshold
				}
				found := res.Confidence > threshold
				fmt.Fprintf(out, "split %d: confidence %.4f at %d,%d (threshold %.4f, found %t)\n",
					index, res.Confidence, res.Location.X, res.Location.Y, threshold, found)
				return nil
			}

			rec, err := newRecognizer(cfg, logger)
			if err != nil {
				return err
			}
			m, err := app.NewManager(cfg, rec, logger)
			if err != nil {
				return err
			}
			defer m.Close()
			if m.Len() == 0 {
				return fmt.Errorf("no splits loaded from %s", cfg.SplitsPath)
			}
			if index < 0 || index >= m.Len() {
				return fmt.Errorf("split %d out of range (0-%d)", index, m.Len()-1)
			}
			for m.Index() < index {
				m.Advance()
			}

			res, err := m.Check(frame)
			if err != nil {
				var ce *split.CheckError
				if errors.As(err, &ce) {
					fmt.Fprintf(out, "split %d: %s (confidence %.4f)\n", ce.SplitIndex, ce.Kind, ce.Confidence)
				}
				return err
			}
			fmt.Fprintf(out, "split %d: score %d (confidence %.4f at %d,%d)\n",
				res.SplitIndex, res.Score, res.Confidence, res.Location.X, res.Location.Y)
			return nil
		},
	}

	cmd.Flags().IntVarP(&index, "split", "n", 0, "Index of the split to check against")
	cmd.Flags().BoolVar(&matchOnly, "match-only", false, "Only report the trigger match confidence, skip OCR")
	return cmd
}

func matchTrigger(frame, trigger []byte, method match.Method) (match.Result, error) {
	f, err := codec.Decode(frame)
	if err != nil {
		return match.Result{}, fmt.Errorf("frame: %w", err)
	}
	t, err := codec.Decode(trigger)
	if err != nil {
		return match.Result{}, fmt.Errorf("trigger: %w", err)
	}
	return match.MatchImage(f, t, match.Options{Method: method, Stride: 1})
}

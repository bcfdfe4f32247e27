package main

import (
	"errors"
	"fmt"
	"image"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/soocke/score-split-go/domain/capture"
	"github.com/soocke/score-split-go/domain/codec"
	"github.com/soocke/score-split-go/domain/match"
	"github.com/soocke/score-split-go/domain/region"
	"github.com/soocke/score-split-go/domain/split"
)

func newSplitsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "splits",
		Short: "Create and inspect splits files",
	}
	cmd.AddCommand(newSplitsInitCommand(ctx))
	cmd.AddCommand(newSplitsAddCommand(ctx))
	cmd.AddCommand(newSplitsListCommand(ctx))
	return cmd
}

func newSplitsInitCommand(ctx *commandContext) *cobra.Command {
	var (
		threshold float64
		method    string
		overwrite bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create an empty splits file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := cfg.SplitsPath
			if !overwrite {
				if _, err := os.Stat(path); err == nil {
					return fmt.Errorf("%s already exists (use --overwrite)", path)
				}
			}
			m, err := match.ParseMethod(method)
			if err != nil {
				return err
			}
			if threshold == 0 {
				threshold = cfg.Threshold
			}
			if err := split.NewFile(threshold, m).Save(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s (threshold %.2f, %s)\n", path, threshold, m)
			return nil
		},
	}

	cmd.Flags().Float64Var(&threshold, "threshold", 0, "Match threshold stored in the file")
	cmd.Flags().StringVar(&method, "method", match.CCorrNormed.String(), "Correlation method: ccorr_normed or ccoeff_normed")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace an existing file")
	return cmd
}

func newSplitsAddCommand(ctx *commandContext) *cobra.Command {
	var (
		triggerPath string
		fromPath    string
		videoPath   string
		at          time.Duration
		triggerRect string
		scoreRect   string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Append a split to the splits file",
		Long: `Appends a split made of a trigger image and the rectangle that holds its
score. The trigger is either an image file (--trigger) or cut out of a full
frame (--from image or --video file --at offset) with --trigger-rect.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			loc, err := region.ParseRectangle(scoreRect)
			if err != nil {
				return fmt.Errorf("--score: %w", err)
			}

			frame, err := loadReferenceFrame(cmd, fromPath, videoPath, at)
			if err != nil {
				return err
			}
			trigger, err := buildTrigger(triggerPath, triggerRect, frame)
			if err != nil {
				return err
			}
			if frame != nil {
				if err := fitsFrame(frame, trigger, loc); err != nil {
					return err
				}
			}

			f, err := split.LoadFile(cfg.SplitsPath)
			if errors.Is(err, os.ErrNotExist) {
				f, err = split.NewFile(cfg.Threshold, cfg.MatchMethod()), nil
			}
			if err != nil {
				return err
			}
			f.Add(trigger, loc)
			if err := f.Save(cfg.SplitsPath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added split %d to %s\n", len(f.Splits)-1, cfg.SplitsPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&triggerPath, "trigger", "", "Trigger image file")
	cmd.Flags().StringVar(&fromPath, "from", "", "Full frame image to cut the trigger from")
	cmd.Flags().StringVar(&videoPath, "video", "", "Video to take the reference frame from")
	cmd.Flags().DurationVar(&at, "at", 0, "Offset of the reference frame in --video")
	cmd.Flags().StringVar(&triggerRect, "trigger-rect", "", "Trigger rectangle x,y,w,h within the reference frame")
	cmd.Flags().StringVar(&scoreRect, "score", "", "Score rectangle x,y,w,h in frame coordinates")
	_ = cmd.MarkFlagRequired("score")
	cmd.MarkFlagsMutuallyExclusive("trigger", "from", "video")
	return cmd
}

func loadReferenceFrame(cmd *cobra.Command, fromPath, videoPath string, at time.Duration) (*image.Gray, error) {
	var data []byte
	var err error
	switch {
	case fromPath != "":
		data, err = os.ReadFile(fromPath)
	case videoPath != "":
		data, err = capture.FrameAt(cmd.Context(), "", videoPath, at)
	default:
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return codec.Decode(data)
}

func buildTrigger(triggerPath, triggerRect string, frame *image.Gray) ([]byte, error) {
	if triggerPath != "" {
		data, err := os.ReadFile(triggerPath)
		if err != nil {
			return nil, err
		}
		if _, err := codec.Decode(data); err != nil {
			return nil, fmt.Errorf("trigger %s: %w", triggerPath, err)
		}
		return data, nil
	}
	if frame == nil {
		return nil, errors.New("one of --trigger, --from or --video is required")
	}
	if triggerRect == "" {
		return nil, errors.New("--trigger-rect is required with --from or --video")
	}
	r, err := region.ParseRectangle(triggerRect)
	if err != nil {
		return nil, fmt.Errorf("--trigger-rect: %w", err)
	}
	crop, err := region.Crop(frame, r)
	if err != nil {
		return nil, fmt.Errorf("--trigger-rect: %w", err)
	}
	return codec.Encode(crop, codec.PNG)
}

// fitsFrame verifies the trigger matches inside the reference frame and the
// score rectangle lies within it.
func fitsFrame(frame *image.Gray, trigger []byte, loc region.Rectangle) error {
	if _, err := region.Crop(frame, loc); err != nil {
		return fmt.Errorf("--score: %w", err)
	}
	t, err := codec.Decode(trigger)
	if err != nil {
		return err
	}
	if _, err := match.MatchImage(frame, t, match.Options{Stride: 1}); err != nil {
		return fmt.Errorf("trigger: %w", err)
	}
	return nil
}

func newSplitsListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List splits in the splits file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			f, err := split.LoadFile(cfg.SplitsPath)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %d split(s), threshold %.2f, %s\n", cfg.SplitsPath, len(f.Splits), f.Threshold, f.Method)
			if len(f.Splits) == 0 {
				return nil
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Index", "Trigger", "Size", "Score Location"},
				splitRows(f.Splits),
				[]columnAlignment{alignRight, alignRight, alignRight, alignLeft},
			))
			return nil
		},
	}
}

func splitRows(splits []split.Split) [][]string {
	rows := make([][]string, 0, len(splits))
	for i, s := range splits {
		dims := "invalid"
		if img, err := codec.Decode(s.TriggerImage); err == nil {
			b := img.Bounds()
			dims = fmt.Sprintf("%dx%d", b.Dx(), b.Dy())
		}
		rows = append(rows, []string{
			strconv.Itoa(i),
			dims,
			humanize.Bytes(uint64(len(s.TriggerImage))),
			strings.ReplaceAll(s.ScoreLocation.String(), ",", ", "),
		})
	}
	return rows
}

package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/soocke/score-split-go/domain/capture"
	"github.com/soocke/score-split-go/domain/split"
	"github.com/soocke/score-split-go/metrics"
	"github.com/soocke/score-split-go/store"
)

// OutcomeScored labels successful checks in the Recorder.
const OutcomeScored = metrics.OutcomeScored

// Recorder observes runner progress. The Prometheus collectors implement it.
type Recorder interface {
	ObserveFrame(source string)
	ObserveCheck(outcome string, confidence float64, d time.Duration)
	ObserveScore(score int64)
	SetCurrentSplit(i int)
}

// ResultRecorder persists split results.
type ResultRecorder interface {
	RecordResult(ctx context.Context, r store.SplitResult) error
}

// RunnerOptions wires a Runner.
type RunnerOptions struct {
	Source     capture.Source
	SourceName string
	Manager    *split.Manager
	Results    ResultRecorder // optional
	RunID      string
	Recorder   Recorder // optional
	Logger     *slog.Logger
	// FailureWarnAfter is how many consecutive frames must fail with the
	// same kind before a warning is logged.
	FailureWarnAfter int
	// OnScore is called after a result is recorded, before advancing.
	OnScore func(store.SplitResult)
}

// Summary describes a finished run.
type Summary struct {
	RunID     string
	Frames    int64
	Scored    int
	Failures  map[split.Kind]int
	Results   []store.SplitResult
	Exhausted bool
}

// Runner pulls frames from a source, checks them against the current split
// and advances when a score is read.
type Runner struct {
	opts RunnerOptions
	log  *slog.Logger

	lastKind split.Kind
	streak   int
}

func NewRunner(opts RunnerOptions) *Runner {
	if opts.FailureWarnAfter <= 0 {
		opts.FailureWarnAfter = 10
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Runner{opts: opts, log: log}
}

// Run processes frames until the source ends, ctx is cancelled or every
// split has been scored. Cancellation is observed between frames; a check
// in progress always completes. The returned error is ctx.Err() on
// cancellation and nil on a normal end.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	m := r.opts.Manager
	sum := Summary{RunID: r.opts.RunID, Failures: map[split.Kind]int{}}
	if m == nil || r.opts.Source == nil {
		return sum, errors.New("runner: manager and source are required")
	}
	r.setCurrent(m.Index())
	r.log.Info("run started", "run", r.opts.RunID, "source", r.opts.SourceName, "splits", m.Len(), "threshold", m.Threshold(), "method", m.Method().String())

	for {
		if m.Exhausted() {
			sum.Exhausted = true
			r.log.Info("all splits scored", "run", r.opts.RunID, "frames", sum.Frames)
			return sum, nil
		}
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		frame, err := r.opts.Source.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, capture.ErrClosed) {
				r.log.Info("source exhausted", "run", r.opts.RunID, "frames", sum.Frames, "scored", sum.Scored)
				return sum, nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return sum, ctxErr
			}
			return sum, fmt.Errorf("next frame: %w", err)
		}
		sum.Frames++
		if r.opts.Recorder != nil {
			r.opts.Recorder.ObserveFrame(r.opts.SourceName)
		}

		done, err := r.handle(ctx, frame, &sum)
		if err != nil {
			return sum, err
		}
		if done {
			sum.Exhausted = true
			return sum, nil
		}
	}
}

// handle checks one frame. It reports done when the manager has no current
// split.
func (r *Runner) handle(ctx context.Context, frame capture.Frame, sum *Summary) (bool, error) {
	m := r.opts.Manager
	start := time.Now()
	res, err := m.Check(frame.Data)
	elapsed := time.Since(start)

	if err == nil {
		r.streak, r.lastKind = 0, split.KindUnknown
		if r.opts.Recorder != nil {
			r.opts.Recorder.ObserveCheck(OutcomeScored, res.Confidence, elapsed)
			r.opts.Recorder.ObserveScore(res.Score)
		}
		result := store.SplitResult{
			RunID:         r.opts.RunID,
			SplitIndex:    res.SplitIndex,
			Score:         res.Score,
			Confidence:    res.Confidence,
			FrameSequence: frame.Sequence,
			FrameOffset:   frame.Offset,
			DetectedAt:    frame.CapturedAt,
		}
		if r.opts.Results != nil {
			if err := r.opts.Results.RecordResult(ctx, result); err != nil {
				return false, fmt.Errorf("record split %d: %w", res.SplitIndex, err)
			}
		}
		sum.Scored++
		sum.Results = append(sum.Results, result)
		r.log.Info("split scored",
			"split", res.SplitIndex,
			"score", res.Score,
			"confidence", res.Confidence,
			"frame", frame.Sequence,
			"offset", frame.Offset,
		)
		if r.opts.OnScore != nil {
			r.opts.OnScore(result)
		}
		r.setCurrent(m.Advance())
		return false, nil
	}

	kind := split.KindOf(err)
	var confidence float64
	var ce *split.CheckError
	if errors.As(err, &ce) {
		confidence = ce.Confidence
	}
	if r.opts.Recorder != nil {
		r.opts.Recorder.ObserveCheck(kind.String(), confidence, elapsed)
	}
	switch kind {
	case split.KindNoCurrentSplit:
		return true, nil
	case split.KindTriggerNotFound:
		r.streak, r.lastKind = 0, split.KindUnknown
		sum.Failures[kind]++
		r.log.Debug("trigger not found", "split", m.Index(), "confidence", confidence, "frame", frame.Sequence)
		return false, nil
	}

	sum.Failures[kind]++
	if kind == r.lastKind {
		r.streak++
	} else {
		r.lastKind, r.streak = kind, 1
	}
	attrs := []any{"split", m.Index(), "kind", kind.String(), "frame", frame.Sequence, "confidence", confidence, "error", err}
	if r.streak%r.opts.FailureWarnAfter == 0 {
		r.log.Warn("check keeps failing", append(attrs, "consecutive", r.streak)...)
	} else {
		r.log.Debug("check failed", attrs...)
	}
	return false, nil
}

func (r *Runner) setCurrent(i int) {
	if r.opts.Recorder != nil {
		r.opts.Recorder.SetCurrentSplit(i)
	}
}

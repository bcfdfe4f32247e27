package app

import (
	"bytes"
	"context"
	"errors"
	"image"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/soocke/score-split-go/config"
	"github.com/soocke/score-split-go/domain/capture"
	"github.com/soocke/score-split-go/domain/codec"
	"github.com/soocke/score-split-go/domain/recognize"
	"github.com/soocke/score-split-go/domain/region"
	"github.com/soocke/score-split-go/domain/split"
	"github.com/soocke/score-split-go/store"
)

// scriptedRecognizer returns the next text of its script on every call.
type scriptedRecognizer struct {
	script []string
	calls  int
}

func (s *scriptedRecognizer) DetectWords(img *image.Gray) ([]image.Rectangle, error) {
	return []image.Rectangle{img.Bounds()}, nil
}

func (s *scriptedRecognizer) GroupIntoLines(_ *image.Gray, words []image.Rectangle) []recognize.Line {
	return []recognize.Line{{Box: words[0], Words: words}}
}

func (s *scriptedRecognizer) Recognize(*image.Gray, []recognize.Line) ([]*string, error) {
	txt := s.script[min(s.calls, len(s.script)-1)]
	s.calls++
	return []*string{&txt}, nil
}

// sliceSource replays encoded frames.
type sliceSource struct {
	frames [][]byte
	pos    int
}

func (s *sliceSource) Next(ctx context.Context) (capture.Frame, error) {
	if err := ctx.Err(); err != nil {
		return capture.Frame{}, err
	}
	if s.pos >= len(s.frames) {
		return capture.Frame{}, io.EOF
	}
	s.pos++
	return capture.Frame{
		Data:       s.frames[s.pos-1],
		Sequence:   uint64(s.pos),
		CapturedAt: time.Now(),
		Offset:     time.Duration(s.pos) * time.Second,
	}, nil
}

func (s *sliceSource) Close() error { return nil }

type countingRecorder struct {
	frames   int
	outcomes map[string]int
	scores   []int64
	current  []int
}

func (c *countingRecorder) ObserveFrame(string) { c.frames++ }
func (c *countingRecorder) ObserveCheck(outcome string, _ float64, _ time.Duration) {
	if c.outcomes == nil {
		c.outcomes = map[string]int{}
	}
	c.outcomes[outcome]++
}
func (c *countingRecorder) ObserveScore(s int64)  { c.scores = append(c.scores, s) }
func (c *countingRecorder) SetCurrentSplit(i int) { c.current = append(c.current, i) }

type memResults struct{ results []store.SplitResult }

func (m *memResults) RecordResult(_ context.Context, r store.SplitResult) error {
	m.results = append(m.results, r)
	return nil
}

func texture(w, h int, seed uint32) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	s := seed
	for i := range img.Pix {
		s = s*1664525 + 1013904223
		img.Pix[i] = uint8(s >> 24)
	}
	return img
}

func encode(t *testing.T, img image.Image) []byte {
	t.Helper()
	data, err := codec.Encode(img, codec.PNG)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return data
}

var testScoreLoc = region.Rectangle{X: 100, Y: 60, Width: 50, Height: 20}

// fixture returns a manager with one split per frame; each split's trigger is
// cut from its frame.
func fixture(t *testing.T, rec recognize.Recognizer, frames ...*image.Gray) *split.Manager {
	t.Helper()
	m, err := split.NewManager(rec, split.Options{})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	for _, f := range frames {
		trig, err := region.Crop(f, region.Rectangle{X: 20, Y: 10, Width: 32, Height: 24})
		if err != nil {
			t.Fatalf("crop: %v", err)
		}
		m.AddSplit(encode(t, trig), testScoreLoc)
	}
	return m
}

func solidFrame(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 128
	}
	return img
}

func TestRunner_AdvancesOnScoreAndStopsWhenExhausted(t *testing.T) {
	a, b := texture(160, 100, 1), texture(160, 100, 2)
	rec := &scriptedRecognizer{script: []string{"100", "200"}}
	m := fixture(t, rec, a, b)
	src := &sliceSource{frames: [][]byte{
		encode(t, solidFrame(160, 100)),
		encode(t, a),
		encode(t, a), // split 1 is current now, so a no longer matches
		encode(t, b),
		encode(t, b), // never read
	}}
	results := &memResults{}
	metrics := &countingRecorder{}

	sum, err := NewRunner(RunnerOptions{
		Source: src, SourceName: "files", Manager: m, Results: results, RunID: "run-1", Recorder: metrics,
	}).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !sum.Exhausted || sum.Scored != 2 || sum.Frames != 4 {
		t.Fatalf("unexpected summary %+v", sum)
	}
	if sum.Failures[split.KindTriggerNotFound] != 2 {
		t.Fatalf("expected 2 trigger misses, got %v", sum.Failures)
	}
	if len(results.results) != 2 {
		t.Fatalf("expected 2 recorded results, got %d", len(results.results))
	}
	first, second := results.results[0], results.results[1]
	if first.SplitIndex != 0 || first.Score != 100 || first.FrameSequence != 2 || first.RunID != "run-1" {
		t.Fatalf("unexpected first result %+v", first)
	}
	if second.SplitIndex != 1 || second.Score != 200 || second.FrameSequence != 4 || second.FrameOffset != 4*time.Second {
		t.Fatalf("unexpected second result %+v", second)
	}
	if m.Index() != 2 {
		t.Fatalf("expected manager at terminal index, got %d", m.Index())
	}
	if metrics.frames != 4 || metrics.outcomes[OutcomeScored] != 2 || metrics.outcomes["trigger_not_found"] != 2 {
		t.Fatalf("unexpected recorder state %+v", metrics)
	}
	if got := metrics.current; len(got) != 3 || got[2] != 2 {
		t.Fatalf("unexpected current split updates %v", got)
	}
}

func TestRunner_WarnsOnRepeatedFailures(t *testing.T) {
	a := texture(160, 100, 5)
	rec := &scriptedRecognizer{script: []string{"x1"}}
	m := fixture(t, rec, a)
	frame := encode(t, a)
	src := &sliceSource{frames: [][]byte{frame, frame, frame, frame}}

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelInfo}))
	sum, err := NewRunner(RunnerOptions{Source: src, Manager: m, Logger: logger, FailureWarnAfter: 2}).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Exhausted || sum.Scored != 0 || sum.Failures[split.KindNotANumber] != 4 {
		t.Fatalf("unexpected summary %+v", sum)
	}
	if n := strings.Count(logs.String(), "check keeps failing"); n != 2 {
		t.Fatalf("expected 2 warnings, got %d:\n%s", n, logs.String())
	}
	if strings.Contains(logs.String(), "trigger not found") {
		t.Fatalf("trigger misses must stay below info level")
	}
}

func TestRunner_EmptyManagerEndsImmediately(t *testing.T) {
	m, err := split.NewManager(&scriptedRecognizer{script: []string{"1"}}, split.Options{})
	if err != nil {
		t.Fatal(err)
	}
	src := &sliceSource{frames: [][]byte{[]byte("unused")}}
	sum, err := NewRunner(RunnerOptions{Source: src, Manager: m}).Run(context.Background())
	if err != nil || !sum.Exhausted || sum.Frames != 0 {
		t.Fatalf("expected immediate end, got %+v, %v", sum, err)
	}
}

func TestRunner_StopsOnCancel(t *testing.T) {
	m := fixture(t, &scriptedRecognizer{script: []string{"1"}}, texture(160, 100, 9))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewRunner(RunnerOptions{Source: &sliceSource{frames: [][]byte{{1}}}, Manager: m}).Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestContainerExecute_RecordsRun(t *testing.T) {
	a := texture(160, 100, 11)
	m := fixture(t, &scriptedRecognizer{script: []string{"4242"}}, a)
	st, err := store.Open(filepath.Join(t.TempDir(), "results.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	cfg := config.DefaultConfig()
	cfg.Source = "files"
	cfg.SplitsPath = "test.ssplt"
	c := &Container{
		Config:  cfg,
		Manager: m,
		Store:   st,
		Source:  &sliceSource{frames: [][]byte{encode(t, a)}},
	}
	defer c.Close()

	sum, err := c.Execute(context.Background())
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if sum.RunID == "" || sum.Scored != 1 {
		t.Fatalf("unexpected summary %+v", sum)
	}
	ctx := context.Background()
	run, err := st.GetRun(ctx, sum.RunID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if run.Status != store.StatusCompleted || run.Frames != 1 || run.SplitCount != 1 {
		t.Fatalf("unexpected run %+v", run)
	}
	results, err := st.ListResults(ctx, sum.RunID)
	if err != nil || len(results) != 1 || results[0].Score != 4242 {
		t.Fatalf("unexpected results %+v, %v", results, err)
	}
}

func TestOpenSource_Files(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Source = "files"
	if _, err := OpenSource(context.Background(), cfg, nil, nil); err == nil {
		t.Fatal("expected error without inputs")
	}
	src, err := OpenSource(context.Background(), cfg, nil, []string{dir})
	if err == nil {
		src.Close()
		t.Fatal("expected error for a directory without images")
	}
}

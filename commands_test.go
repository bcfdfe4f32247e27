package main

import (
	"bytes"
	"encoding/json"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/soocke/score-split-go/app"
	"github.com/soocke/score-split-go/config"
	"github.com/soocke/score-split-go/domain/split"
	"github.com/soocke/score-split-go/store"
)

type testEnv struct {
	dir        string
	configPath string
	splitsPath string
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	env := testEnv{
		dir:        dir,
		configPath: filepath.Join(dir, "config.json"),
		splitsPath: filepath.Join(dir, "run.ssplt"),
	}
	cfg := config.DefaultConfig()
	cfg.SplitsPath = env.splitsPath
	cfg.ResultsDB = filepath.Join(dir, "results.db")
	cfg.LogFormat = "text"
	require.NoError(t, cfg.Save(env.configPath))
	return env
}

func (e testEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"--config", e.configPath}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func writeFrame(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	seed := uint32(7)
	for i := range img.Pix {
		seed = seed*1664525 + 1013904223
		img.Pix[i] = uint8(seed >> 24)
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func TestConfigInitAndShow(t *testing.T) {
	env := newTestEnv(t)
	target := filepath.Join(env.dir, "nested", "fresh.json")

	out, err := env.run(t, "config", "init", "--path", target)
	require.NoError(t, err)
	require.Contains(t, out, target)
	require.FileExists(t, target)

	_, err = env.run(t, "config", "init", "--path", target)
	require.ErrorContains(t, err, "already exists")

	_, err = env.run(t, "config", "init", "--path", target, "--overwrite")
	require.NoError(t, err)

	out, err = env.run(t, "config", "show")
	require.NoError(t, err)
	var shown config.Config
	require.NoError(t, json.Unmarshal([]byte(out), &shown))
	require.Equal(t, env.splitsPath, shown.SplitsPath)
}

func TestSplitsInitAddList(t *testing.T) {
	env := newTestEnv(t)
	framePath := filepath.Join(env.dir, "frame.png")
	writeFrame(t, framePath, 80, 50)

	out, err := env.run(t, "splits", "init", "--threshold", "0.9", "--method", "ccoeff_normed")
	require.NoError(t, err)
	require.Contains(t, out, "ccoeff_normed")

	_, err = env.run(t, "splits", "init")
	require.ErrorContains(t, err, "already exists")

	out, err = env.run(t, "splits", "add", "--from", framePath, "--trigger-rect", "10,10,16,12", "--score", "40,30,30,15")
	require.NoError(t, err)
	require.Contains(t, out, "Added split 0")

	_, err = env.run(t, "splits", "add", "--from", framePath, "--trigger-rect", "10,10,16,12", "--score", "70,30,30,15")
	require.Error(t, err, "score rectangle outside the reference frame")

	f, err := split.LoadFile(env.splitsPath)
	require.NoError(t, err)
	require.Len(t, f.Splits, 1)
	require.Equal(t, 0.9, f.Threshold)

	out, err = env.run(t, "splits", "list")
	require.NoError(t, err)
	require.Contains(t, out, "16x12")
	require.Contains(t, out, "40, 30, 30, 15")
}

func TestSplitsAddRequiresTrigger(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.run(t, "splits", "add", "--score", "0,0,5,5")
	require.ErrorContains(t, err, "--trigger")

	bad := filepath.Join(env.dir, "bad.png")
	require.NoError(t, os.WriteFile(bad, []byte("not an image"), 0o644))
	_, err = env.run(t, "splits", "add", "--trigger", bad, "--score", "0,0,5,5")
	require.Error(t, err)
	require.NoFileExists(t, env.splitsPath)
}

func TestCheckMatchOnly(t *testing.T) {
	env := newTestEnv(t)
	framePath := filepath.Join(env.dir, "frame.png")
	writeFrame(t, framePath, 80, 50)

	_, err := env.run(t, "splits", "add", "--from", framePath, "--trigger-rect", "20,5,24,16", "--score", "0,30,40,20")
	require.NoError(t, err)

	out, err := env.run(t, "check", framePath, "--match-only")
	require.NoError(t, err)
	require.Contains(t, out, "confidence 1.0000 at 20,5")
	require.Contains(t, out, "found true")

	_, err = env.run(t, "check", framePath, "--match-only", "--split", "3")
	require.ErrorContains(t, err, "out of range")
}

func TestResultsCommand(t *testing.T) {
	env := newTestEnv(t)
	out, err := env.run(t, "results")
	require.NoError(t, err)
	require.Contains(t, out, "No runs recorded")

	st, err := store.Open(filepath.Join(env.dir, "results.db"))
	require.NoError(t, err)
	ctx := t.Context()
	run, err := st.CreateRun(ctx, env.splitsPath, "files", 2)
	require.NoError(t, err)
	require.NoError(t, st.RecordResult(ctx, store.SplitResult{
		RunID:         run.ID,
		SplitIndex:    0,
		Score:         12345,
		Confidence:    0.99,
		FrameSequence: 4,
		DetectedAt:    time.Now(),
	}))
	require.NoError(t, st.FinishRun(ctx, run.ID, store.StatusStopped, 9))
	require.NoError(t, st.Close())

	out, err = env.run(t, "results")
	require.NoError(t, err)
	require.Contains(t, out, run.ID)
	require.Contains(t, out, store.StatusStopped)

	out, err = env.run(t, "results", run.ID)
	require.NoError(t, err)
	require.Contains(t, out, "12,345")
	require.Contains(t, out, "0/2")

	_, err = env.run(t, "results", "missing")
	require.ErrorIs(t, err, store.ErrRunNotFound)
}

func TestRenderSummary(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Source = "video"
	sum := app.Summary{
		RunID:     "abc",
		Frames:    1500,
		Scored:    1,
		Exhausted: true,
		Failures:  map[split.Kind]int{split.KindTriggerNotFound: 1499},
		Results: []store.SplitResult{
			{SplitIndex: 0, Score: 9001, Confidence: 0.97, FrameSequence: 1500, FrameOffset: 2500 * time.Millisecond},
		},
	}
	out := renderSummary(cfg, sum)
	for _, want := range []string{"9,001", "2.5s", "complete: 1 split(s) scored from 1,500 frame(s), run abc", "trigger_not_found=1499"} {
		if !strings.Contains(out, want) {
			t.Fatalf("summary missing %q:\n%s", want, out)
		}
	}
}

package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"os/exec"
	"testing"
	"time"
)

func setHelperCommand(t *testing.T, duration string) *[][]string {
	t.Helper()
	var calls [][]string
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		calls = append(calls, append([]string{name}, args...))
		cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=TestHelperProcess")
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", "CAPTURE_HELPER_TOOL="+name, "CAPTURE_HELPER_DURATION="+duration)
		return cmd
	}
	t.Cleanup(func() { commandContext = original })
	return &calls
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	switch os.Getenv("CAPTURE_HELPER_TOOL") {
	case "ffprobe":
		fmt.Fprintln(os.Stdout, os.Getenv("CAPTURE_HELPER_DURATION"))
	case "ffmpeg":
		for i := 0; i < 3; i++ {
			img := image.NewGray(image.Rect(0, 0, 6, 4))
			img.Pix[0] = uint8(i)
			if err := png.Encode(os.Stdout, img); err != nil {
				os.Exit(2)
			}
		}
	default:
		os.Exit(3)
	}
	os.Exit(0)
}

func TestDuration(t *testing.T) {
	setHelperCommand(t, "12.500000")
	d, err := Duration(context.Background(), "", "clip.mp4")
	if err != nil {
		t.Fatalf("duration: %v", err)
	}
	if d != 12500*time.Millisecond {
		t.Fatalf("expected 12.5s, got %s", d)
	}
}

func TestOpenVideo_RejectsSeekOutsideDuration(t *testing.T) {
	setHelperCommand(t, "10")
	for _, start := range []time.Duration{-time.Second, 11 * time.Second} {
		if _, err := OpenVideo(context.Background(), VideoOptions{Path: "clip.mp4", Start: start}); !errors.Is(err, ErrSeekOutOfRange) {
			t.Fatalf("start %s: expected ErrSeekOutOfRange, got %v", start, err)
		}
	}
}

func TestVideoSource_FramesAndOffsets(t *testing.T) {
	calls := setHelperCommand(t, "60")
	src, err := OpenVideo(context.Background(), VideoOptions{Path: "clip.mp4", FPS: 2, Start: 10 * time.Second})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer src.Close()

	ctx := context.Background()
	for i, want := range []time.Duration{10 * time.Second, 10500 * time.Millisecond, 11 * time.Second} {
		f, err := src.Next(ctx)
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if f.Offset != want || f.Sequence != uint64(i+1) {
			t.Fatalf("frame %d: offset %s seq %d", i, f.Offset, f.Sequence)
		}
	}
	if _, err := src.Next(ctx); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}

	ffmpegArgs := (*calls)[1]
	if ffmpegArgs[0] != "ffmpeg" || findArg(ffmpegArgs, "-ss") < 0 || ffmpegArgs[findArg(ffmpegArgs, "-ss")+1] != "10.000" {
		t.Fatalf("unexpected ffmpeg invocation %v", ffmpegArgs)
	}
	if idx := findArg(ffmpegArgs, "-vf"); idx < 0 || ffmpegArgs[idx+1] != "fps=2" {
		t.Fatalf("expected fps filter in %v", ffmpegArgs)
	}
}

func findArg(args []string, flag string) int {
	for i, a := range args {
		if a == flag {
			return i
		}
	}
	return -1
}

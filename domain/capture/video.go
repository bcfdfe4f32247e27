package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ErrSeekOutOfRange is returned for a start offset outside the video.
var ErrSeekOutOfRange = errors.New("seek outside video duration")

var commandContext = exec.CommandContext

// VideoOptions configures a VideoSource.
type VideoOptions struct {
	Path    string
	FPS     float64       // frames per second sampled from the video (default 2)
	Start   time.Duration // seek position
	FFmpeg  string        // binary, default "ffmpeg"
	FFprobe string        // binary, default "ffprobe"
	Logger  *slog.Logger
}

// VideoSource decodes a video file with ffmpeg and yields PNG frames at a
// fixed rate.
type VideoSource struct {
	opts     VideoOptions
	cmd      *exec.Cmd
	cancel   context.CancelFunc
	stdout   io.ReadCloser
	stderr   *bytes.Buffer
	split    *PNGSplitter
	seq      uint64
	duration time.Duration
	once     sync.Once
	waitErr  error
	logger   *slog.Logger
}

// Duration asks ffprobe for the container duration of path.
func Duration(ctx context.Context, ffprobe, path string) (time.Duration, error) {
	if strings.TrimSpace(ffprobe) == "" {
		ffprobe = "ffprobe"
	}
	cmd := commandContext(ctx, ffprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		"--", path,
	) //nolint:gosec
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}
	secs, err := strconv.ParseFloat(strings.TrimSpace(string(output)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration: %w", err)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

// OpenVideo validates the seek position against the duration reported by
// ffprobe and starts ffmpeg.
func OpenVideo(ctx context.Context, opts VideoOptions) (*VideoSource, error) {
	if strings.TrimSpace(opts.Path) == "" {
		return nil, errors.New("video source: empty path")
	}
	if opts.FPS <= 0 {
		opts.FPS = 2
	}
	if opts.FFmpeg == "" {
		opts.FFmpeg = "ffmpeg"
	}
	if opts.Start < 0 {
		return nil, fmt.Errorf("%w: %s", ErrSeekOutOfRange, opts.Start)
	}
	duration, err := Duration(ctx, opts.FFprobe, opts.Path)
	if err != nil {
		return nil, err
	}
	if opts.Start > duration {
		return nil, fmt.Errorf("%w: %s > %s", ErrSeekOutOfRange, opts.Start, duration)
	}

	runCtx, cancel := context.WithCancel(ctx)
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-ss", strconv.FormatFloat(opts.Start.Seconds(), 'f', 3, 64),
		"-i", opts.Path,
		"-vf", "fps=" + strconv.FormatFloat(opts.FPS, 'f', -1, 64),
		"-f", "image2pipe", "-vcodec", "png", "pipe:1",
	}
	cmd := commandContext(runCtx, opts.FFmpeg, args...) //nolint:gosec
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("ffmpeg stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}
	if opts.Logger != nil {
		opts.Logger.Info("video source started", "path", opts.Path, "fps", opts.FPS, "start", opts.Start, "duration", duration)
	}
	return &VideoSource{
		opts:     opts,
		cmd:      cmd,
		cancel:   cancel,
		stdout:   stdout,
		stderr:   stderr,
		split:    NewPNGSplitter(stdout),
		duration: duration,
		logger:   opts.Logger,
	}, nil
}

// Duration returns the probed length of the video.
func (v *VideoSource) Duration() time.Duration { return v.duration }

// Next returns the next sampled frame. Offset is the frame's position in
// the video.
func (v *VideoSource) Next(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	data, err := v.split.Next()
	if err != nil {
		if errors.Is(err, io.EOF) {
			if werr := v.wait(); werr != nil {
				return Frame{}, werr
			}
			return Frame{}, io.EOF
		}
		if werr := v.wait(); werr != nil {
			return Frame{}, werr
		}
		return Frame{}, fmt.Errorf("read ffmpeg output: %w", err)
	}
	v.seq++
	offset := v.opts.Start + time.Duration(float64(v.seq-1)/v.opts.FPS*float64(time.Second))
	return Frame{Data: data, Sequence: v.seq, CapturedAt: time.Now(), Offset: offset}, nil
}

func (v *VideoSource) wait() error {
	v.once.Do(func() {
		if err := v.cmd.Wait(); err != nil {
			v.waitErr = fmt.Errorf("ffmpeg: %w: %s", err, strings.TrimSpace(v.stderr.String()))
		}
	})
	return v.waitErr
}

// Close stops ffmpeg.
func (v *VideoSource) Close() error {
	v.cancel()
	_ = v.stdout.Close()
	_ = v.wait()
	return nil
}

// FrameAt extracts a single PNG frame at offset; used to cut trigger images
// from a recording.
func FrameAt(ctx context.Context, ffmpeg, path string, offset time.Duration) ([]byte, error) {
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	cmd := commandContext(ctx, ffmpeg,
		"-hide_banner", "-loglevel", "error",
		"-ss", strconv.FormatFloat(offset.Seconds(), 'f', 3, 64),
		"-i", path,
		"-frames:v", "1",
		"-f", "image2pipe", "-vcodec", "png", "pipe:1",
	) //nolint:gosec
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg frame: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no frame at %s", ErrSeekOutOfRange, offset)
	}
	return out, nil
}

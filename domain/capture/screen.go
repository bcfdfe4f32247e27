package capture

import (
	"context"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const captureStatsLogInterval = 5 * time.Second

// ScreenOptions configures a ScreenSource.
type ScreenOptions struct {
	// Interval between captures; zero captures as fast as possible.
	Interval time.Duration
	// Selection limits capture to a screen rectangle; nil captures the
	// full screen.
	Selection *image.Rectangle
	Logger    *slog.Logger
}

// ScreenSource captures the screen on a background loop and keeps only the
// latest frame. Next hands out each new frame at most once; frames produced
// while the consumer is busy are dropped.
type ScreenSource struct {
	running      atomic.Bool
	latest       atomic.Pointer[Frame]
	captures     atomic.Uint64
	skipped      atomic.Uint64
	captureNanos atomic.Uint64
	sequence     atomic.Uint64

	opts    ScreenOptions
	logger  *slog.Logger
	grab    func(*image.Rectangle) (*image.RGBA, error)
	notify  chan struct{}
	stop    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
	started time.Time
	lastSeq uint64
}

// NewScreenSource constructs a source. The capture loop starts with the
// first call to Start or Next.
func NewScreenSource(opts ScreenOptions) *ScreenSource {
	return newScreenSource(opts, grabber)
}

func newScreenSource(opts ScreenOptions, grab func(*image.Rectangle) (*image.RGBA, error)) *ScreenSource {
	return &ScreenSource{
		opts:   opts,
		logger: opts.Logger,
		grab:   grab,
		notify: make(chan struct{}, 1),
		stop:   make(chan struct{}),
	}
}

// Start launches the capture loop. Calling it again is a no-op.
func (s *ScreenSource) Start() {
	if !s.running.CompareAndSwap(false, true) {
		return
	}
	s.started = time.Now()
	s.wg.Add(1)
	go s.loop()
}

// Running reports whether the capture loop is active.
func (s *ScreenSource) Running() bool { return s.running.Load() }

// LatestFrame returns the freshest capture, or a zero Frame.
func (s *ScreenSource) LatestFrame() Frame {
	snap := s.latest.Load()
	if snap == nil {
		return Frame{}
	}
	return *snap
}

func (s *ScreenSource) Stats() CaptureStats {
	captures := s.captures.Load()
	skipped := s.skipped.Load()
	total := s.captureNanos.Load()
	var avg time.Duration
	avgMicros := 0.0
	if captures > 0 && total > 0 {
		avg = time.Duration(total / captures)
		avgMicros = float64(avg) / float64(time.Microsecond)
	}
	snapshot := s.LatestFrame()
	age := time.Duration(0)
	if !snapshot.CapturedAt.IsZero() {
		age = time.Since(snapshot.CapturedAt)
	}
	return CaptureStats{
		Captures:         captures,
		Skipped:          skipped,
		AvgCapture:       avg,
		AvgCaptureMicros: avgMicros,
		LastCapture:      snapshot.CapturedAt,
		LatestFrameAge:   age,
		Sequence:         snapshot.Sequence,
	}
}

// Next blocks until a frame newer than the previous one is available.
func (s *ScreenSource) Next(ctx context.Context) (Frame, error) {
	select {
	case <-s.stop:
		return Frame{}, ErrClosed
	default:
	}
	s.Start()
	for {
		if snap := s.latest.Load(); snap != nil && snap.Sequence > s.lastSeq {
			s.lastSeq = snap.Sequence
			return *snap, nil
		}
		select {
		case <-ctx.Done():
			return Frame{}, ctx.Err()
		case <-s.stop:
			return Frame{}, ErrClosed
		case <-s.notify:
		}
	}
}

// Close stops the capture loop and waits for it to exit.
func (s *ScreenSource) Close() error {
	s.once.Do(func() { close(s.stop) })
	s.wg.Wait()
	s.running.Store(false)
	return nil
}

func (s *ScreenSource) loop() {
	defer s.wg.Done()
	logTicker := time.NewTicker(captureStatsLogInterval)
	defer logTicker.Stop()
	for {
		select {
		case <-s.stop:
			return
		default:
		}
		start := time.Now()
		img, err := s.grab(s.opts.Selection)
		var data []byte
		if err == nil && img != nil {
			data, err = encodePNG(img)
		}
		if err != nil || data == nil {
			s.skipped.Add(1)
			if err != nil && s.logger != nil {
				s.logger.Error("screen capture", "error", err)
			}
			if !s.sleep(10 * time.Millisecond) {
				return
			}
			continue
		}

		elapsed := time.Since(start)
		s.captureNanos.Add(uint64(elapsed.Nanoseconds()))
		s.captures.Add(1)
		seq := s.sequence.Add(1)
		now := time.Now()
		s.latest.Store(&Frame{Data: data, Sequence: seq, CapturedAt: now, Offset: now.Sub(s.started)})
		select {
		case s.notify <- struct{}{}:
		default:
		}

		select {
		case <-logTicker.C:
			s.logStats()
		default:
		}

		wait := s.opts.Interval - elapsed
		if wait < 200*time.Microsecond {
			wait = 200 * time.Microsecond
		}
		if !s.sleep(wait) {
			return
		}
	}
}

// sleep waits for d and reports false when the source was closed meanwhile.
func (s *ScreenSource) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-s.stop:
		return false
	case <-t.C:
		return true
	}
}

func (s *ScreenSource) logStats() {
	if s.logger == nil {
		return
	}
	stats := s.Stats()
	s.logger.Debug("capture.stats",
		"captures", stats.Captures,
		"skipped", stats.Skipped,
		"avg_capture", stats.AvgCapture,
		"age", stats.LatestFrameAge,
	)
}

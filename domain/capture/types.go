// Package capture produces encoded frames for the split manager from the
// screen, a video file, a watched directory or a fixed list of files.
package capture

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned by Next after Close.
var ErrClosed = errors.New("frame source closed")

// Frame is one encoded image and where it came from.
type Frame struct {
	Data       []byte
	Sequence   uint64 // 1-based, per source
	CapturedAt time.Time
	// Offset is the position in the input stream when the source has one
	// (video), else the time since the source started.
	Offset time.Duration
	Name   string // file name for file based sources
}

// Source yields frames in order. Next returns io.EOF once the input is
// exhausted. Sources are consumed by a single goroutine.
type Source interface {
	Next(ctx context.Context) (Frame, error)
	Close() error
}

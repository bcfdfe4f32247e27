package capture

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var imageExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".bmp": true,
	".gif": true, ".tif": true, ".tiff": true, ".webp": true,
}

// IsImageFile reports whether name has a supported image extension.
func IsImageFile(name string) bool {
	return imageExts[strings.ToLower(filepath.Ext(name))]
}

// FileSource reads an explicit list of image files in the given order.
type FileSource struct {
	paths   []string
	pos     int
	started time.Time
}

func NewFileSource(paths []string) *FileSource {
	return &FileSource{paths: append([]string(nil), paths...), started: time.Now()}
}

func (f *FileSource) Next(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	if f.pos >= len(f.paths) {
		return Frame{}, io.EOF
	}
	path := f.paths[f.pos]
	f.pos++
	data, err := os.ReadFile(path)
	if err != nil {
		return Frame{}, err
	}
	now := time.Now()
	return Frame{Data: data, Sequence: uint64(f.pos), CapturedAt: now, Offset: now.Sub(f.started), Name: path}, nil
}

func (f *FileSource) Close() error { return nil }

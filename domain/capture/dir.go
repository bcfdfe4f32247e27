package capture

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 300 * time.Millisecond

// DirOptions configures a DirSource.
type DirOptions struct {
	Dir string
	// Debounce is how long a file must stay unchanged before it is read.
	Debounce time.Duration
	Logger   *slog.Logger
}

// DirSource emits the images already in a directory in name order, then
// every image file created there afterwards.
type DirSource struct {
	opts    DirOptions
	watcher *fsnotify.Watcher
	files   chan string
	stop    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
	seq     uint64
	started time.Time
	logger  *slog.Logger
}

// WatchDir starts watching opts.Dir.
func WatchDir(opts DirOptions) (*DirSource, error) {
	if opts.Debounce <= 0 {
		opts.Debounce = defaultDebounce
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(opts.Dir); err != nil {
		w.Close()
		return nil, fmt.Errorf("watch %s: %w", opts.Dir, err)
	}
	entries, err := os.ReadDir(opts.Dir)
	if err != nil {
		w.Close()
		return nil, err
	}
	var existing []string
	for _, e := range entries {
		if !e.IsDir() && IsImageFile(e.Name()) {
			existing = append(existing, e.Name())
		}
	}
	sort.Strings(existing)

	d := &DirSource{
		opts:    opts,
		watcher: w,
		files:   make(chan string, 256),
		stop:    make(chan struct{}),
		started: time.Now(),
		logger:  opts.Logger,
	}
	d.wg.Add(1)
	go d.loop(existing)
	if d.logger != nil {
		d.logger.Info("watching directory", "dir", opts.Dir, "existing", len(existing), "debounce", opts.Debounce)
	}
	return d, nil
}

func (d *DirSource) loop(existing []string) {
	defer d.wg.Done()
	defer close(d.files)
	seen := make(map[string]bool, len(existing))
	for _, name := range existing {
		seen[name] = true
		select {
		case d.files <- name:
		case <-d.stop:
			return
		}
	}

	pending := map[string]time.Time{}
	ticker := time.NewTicker(d.opts.Debounce / 3)
	defer ticker.Stop()
	for {
		select {
		case <-d.stop:
			return
		case ev, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			name := filepath.Base(ev.Name)
			if !IsImageFile(name) || seen[name] {
				continue
			}
			pending[name] = time.Now()
		case <-ticker.C:
			now := time.Now()
			var ready []string
			for name, t := range pending {
				if now.Sub(t) >= d.opts.Debounce {
					ready = append(ready, name)
				}
			}
			sort.Strings(ready)
			for _, name := range ready {
				delete(pending, name)
				seen[name] = true
				select {
				case d.files <- name:
				case <-d.stop:
					return
				}
			}
		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			if d.logger != nil {
				d.logger.Warn("watch error", "dir", d.opts.Dir, "error", err)
			}
		}
	}
}

// Next blocks until a new image is ready. It returns io.EOF after Close.
func (d *DirSource) Next(ctx context.Context) (Frame, error) {
	for {
		select {
		case <-ctx.Done():
			return Frame{}, ctx.Err()
		case name, ok := <-d.files:
			if !ok {
				return Frame{}, io.EOF
			}
			path := filepath.Join(d.opts.Dir, name)
			data, err := os.ReadFile(path)
			if err != nil {
				if d.logger != nil {
					d.logger.Warn("read watched file", "path", path, "error", err)
				}
				continue
			}
			d.seq++
			now := time.Now()
			return Frame{Data: data, Sequence: d.seq, CapturedAt: now, Offset: now.Sub(d.started), Name: path}, nil
		}
	}
}

// Close stops watching.
func (d *DirSource) Close() error {
	var err error
	d.once.Do(func() {
		close(d.stop)
		err = d.watcher.Close()
		d.wg.Wait()
	})
	return err
}

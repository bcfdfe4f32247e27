package split

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/soocke/score-split-go/domain/match"
	"github.com/soocke/score-split-go/domain/region"
)

// FileVersion is the only .ssplt layout understood.
const FileVersion = 1

// File is the on-disk form of a split list. Trigger images are stored as
// base64 inside the JSON document.
type File struct {
	Version   int          `json:"version"`
	Threshold float64      `json:"threshold"`
	Method    match.Method `json:"method"`
	Splits    []Split      `json:"splits"`
}

// LoadFile reads and validates a .ssplt document.
func LoadFile(path string) (*File, error) {
	lock := flock.New(path + ".lock")
	if err := lock.RLock(); err != nil {
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}
	defer lock.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &f, nil
}

// Validate checks the version, threshold and rectangles.
func (f *File) Validate() error {
	if f.Version != FileVersion {
		return fmt.Errorf("unsupported splits file version %d", f.Version)
	}
	if f.Threshold != 0 {
		if err := validThreshold(f.Threshold); err != nil {
			return err
		}
	}
	for i, s := range f.Splits {
		if len(s.TriggerImage) == 0 {
			return fmt.Errorf("split %d: empty trigger image", i)
		}
		if err := s.ScoreLocation.Validate(); err != nil {
			return fmt.Errorf("split %d: %w", i, err)
		}
	}
	return nil
}

// Save writes f atomically: a temp file in the same directory is renamed
// over path while the lock file is held.
func (f *File) Save(path string) error {
	if f.Version == 0 {
		f.Version = FileVersion
	}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock %s: %w", path, err)
	}
	defer lock.Unlock()

	tmp, err := os.CreateTemp(dir, ".ssplt-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Snapshot captures the split list, threshold and method.
func (m *Manager) Snapshot() *File {
	m.mu.Lock()
	defer m.mu.Unlock()
	f := &File{Version: FileVersion, Threshold: m.threshold, Method: m.matchOpts.Method, Splits: make([]Split, len(m.splits))}
	for i, s := range m.splits {
		f.Splits[i] = s.clone()
	}
	return f
}

// Load appends the splits of f in file order and adopts its threshold and
// method. The index is left unchanged.
func (m *Manager) Load(f *File) error {
	if err := f.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range f.Splits {
		m.splits = append(m.splits, s.clone())
	}
	if f.Threshold != 0 {
		m.threshold = f.Threshold
	}
	m.matchOpts.Method = f.Method
	return nil
}

// Open loads the splits file at path into m.
func (m *Manager) Open(path string) error {
	f, err := LoadFile(path)
	if err != nil {
		return err
	}
	return m.Load(f)
}

// Save writes the manager's splits to path.
func (m *Manager) Save(path string) error {
	return m.Snapshot().Save(path)
}

// NewFile returns an empty document with the given threshold and method.
func NewFile(threshold float64, method match.Method) *File {
	return &File{Version: FileVersion, Threshold: threshold, Method: method}
}

// Add appends a split to the document.
func (f *File) Add(trigger []byte, loc region.Rectangle) {
	f.Splits = append(f.Splits, Split{TriggerImage: trigger, ScoreLocation: loc}.clone())
}

// Package split holds the split state machine: an ordered list of splits, a
// cursor into it and the check pipeline that turns a frame into a score.
package split

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/soocke/score-split-go/domain/codec"
	"github.com/soocke/score-split-go/domain/match"
	"github.com/soocke/score-split-go/domain/recognize"
	"github.com/soocke/score-split-go/domain/region"
	"github.com/soocke/score-split-go/domain/score"
)

// Manager owns the split list, the current index and the recognizer.
// It is safe for concurrent use; checks are serialised.
type Manager struct {
	mu        sync.Mutex
	splits    []Split
	index     int
	threshold float64
	matchOpts match.Options
	rec       recognize.Recognizer
	templates *lru.Cache[int, *match.Template]
	listeners []Listener
	logger    *slog.Logger
}

// NewManager creates an empty manager at index 0. The manager takes
// ownership of rec and closes it in Close when it implements io.Closer.
func NewManager(rec recognize.Recognizer, opts Options) (*Manager, error) {
	if rec == nil {
		return nil, errors.New("split manager: nil recognizer")
	}
	th := opts.Threshold
	if th == 0 {
		th = DefaultThreshold
	}
	if err := validThreshold(th); err != nil {
		return nil, err
	}
	size := opts.CacheSize
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[int, *match.Template](size)
	if err != nil {
		return nil, fmt.Errorf("trigger cache: %w", err)
	}
	return &Manager{
		threshold: th,
		matchOpts: match.Options{Method: opts.Method, Stride: opts.Stride, Refine: opts.Refine},
		rec:       rec,
		templates: cache,
		logger:    opts.Logger,
	}, nil
}

func validThreshold(th float64) error {
	if math.IsNaN(th) || th < 0 || th > 1 {
		return fmt.Errorf("threshold %v outside [0,1]", th)
	}
	return nil
}

// AddSplit appends a split. The trigger bytes are copied and not validated
// until a check needs them.
func (m *Manager) AddSplit(trigger []byte, loc region.Rectangle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.splits = append(m.splits, Split{TriggerImage: trigger, ScoreLocation: loc}.clone())
}

// Check runs the pipeline for the current split against an encoded frame.
// It never changes the split list or the index.
func (m *Manager) Check(frame []byte) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.index >= len(m.splits) {
		return Result{}, &CheckError{Kind: KindNoCurrentSplit, SplitIndex: m.index}
	}
	img, err := codec.Decode(frame)
	if err != nil {
		return Result{}, &CheckError{Kind: KindDecode, SplitIndex: m.index, Err: fmt.Errorf("frame: %w", err)}
	}
	idx := m.index
	sp := m.splits[idx]

	tmpl, err := m.template(idx, sp)
	if err != nil {
		return Result{}, &CheckError{Kind: KindDecode, SplitIndex: idx, Err: fmt.Errorf("trigger: %w", err)}
	}
	res, err := match.Match(img, tmpl, m.matchOpts)
	if err != nil {
		return Result{}, &CheckError{Kind: KindInvalidTemplateSize, SplitIndex: idx, Err: err}
	}
	if res.Confidence <= m.threshold {
		return Result{}, &CheckError{Kind: KindTriggerNotFound, SplitIndex: idx, Confidence: res.Confidence}
	}
	if m.logger != nil {
		m.logger.Debug("trigger matched", "split", idx, "x", res.Location.X, "y", res.Location.Y, "confidence", res.Confidence)
	}

	crop, err := region.Crop(img, sp.ScoreLocation)
	if err != nil {
		return Result{}, &CheckError{Kind: KindOutOfBounds, SplitIndex: idx, Confidence: res.Confidence, Err: err}
	}
	lines, err := recognize.Run(m.rec, crop)
	if err != nil {
		return Result{}, &CheckError{Kind: KindRecognitionFailed, SplitIndex: idx, Confidence: res.Confidence, Err: err}
	}
	value, err := score.Parse(lines)
	if err != nil {
		return Result{}, &CheckError{Kind: classify(err), SplitIndex: idx, Confidence: res.Confidence, Err: err}
	}
	return Result{Score: value, SplitIndex: idx, Location: res.Location, Confidence: res.Confidence}, nil
}

// CheckScore is Check reduced to the score and whether one was found.
func (m *Manager) CheckScore(frame []byte) (int64, bool) {
	res, err := m.Check(frame)
	if err != nil {
		return 0, false
	}
	return res.Score, true
}

// template returns the decoded trigger of split idx, caching successes only.
func (m *Manager) template(idx int, sp Split) (*match.Template, error) {
	if t, ok := m.templates.Get(idx); ok {
		return t, nil
	}
	img, err := codec.Decode(sp.TriggerImage)
	if err != nil {
		return nil, err
	}
	t := match.NewTemplate(img)
	m.templates.Add(idx, t)
	return t, nil
}

// Advance moves to the next split and returns the new index. At the
// terminal index it is a no-op.
func (m *Manager) Advance() int {
	m.mu.Lock()
	prev := m.index
	if m.index < len(m.splits) {
		m.index++
	}
	next := m.index
	listeners := append([]Listener(nil), m.listeners...)
	m.mu.Unlock()

	if next == prev {
		return next
	}
	if m.logger != nil {
		m.logger.Debug("split advanced", "from", prev, "to", next)
	}
	for _, l := range listeners {
		l(prev, next)
	}
	return next
}

// AddListener registers l for index changes.
func (m *Manager) AddListener(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// Index returns the current split index.
func (m *Manager) Index() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.index
}

// Len returns the number of splits.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.splits)
}

// Exhausted reports whether the index has passed the last split.
func (m *Manager) Exhausted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.index >= len(m.splits)
}

// Splits returns a copy of the split list.
func (m *Manager) Splits() []Split {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Split, len(m.splits))
	for i, s := range m.splits {
		out[i] = s.clone()
	}
	return out
}

// Current returns a copy of the current split.
func (m *Manager) Current() (Split, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.index >= len(m.splits) {
		return Split{}, false
	}
	return m.splits[m.index].clone(), true
}

// Threshold returns the match confidence a trigger must exceed.
func (m *Manager) Threshold() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.threshold
}

// SetThreshold replaces the threshold; values outside [0,1] are rejected.
func (m *Manager) SetThreshold(th float64) error {
	if err := validThreshold(th); err != nil {
		return err
	}
	m.mu.Lock()
	m.threshold = th
	m.mu.Unlock()
	return nil
}

// Method returns the correlation method used for trigger matching.
func (m *Manager) Method() match.Method {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.matchOpts.Method
}

// Close releases the recognizer.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.rec.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

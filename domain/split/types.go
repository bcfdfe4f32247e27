package split

import (
	"image"
	"log/slog"

	"github.com/soocke/score-split-go/domain/match"
	"github.com/soocke/score-split-go/domain/region"
)

// DefaultThreshold is the match confidence a frame must exceed.
const DefaultThreshold = 0.95

// DefaultCacheSize bounds the decoded trigger cache.
const DefaultCacheSize = 16

// Split is one scored interval: the trigger marking its end and where the
// score is printed on that frame.
type Split struct {
	TriggerImage  []byte           `json:"trigger_image"`
	ScoreLocation region.Rectangle `json:"score_location"`
}

func (s Split) clone() Split {
	s.TriggerImage = append([]byte(nil), s.TriggerImage...)
	return s
}

// Result is a successful check.
type Result struct {
	Score      int64
	SplitIndex int
	Location   image.Point
	Confidence float64
}

// Options configures a Manager.
type Options struct {
	// Threshold in [0,1]; zero selects DefaultThreshold.
	Threshold float64
	Method    match.Method
	Stride    int
	Refine    bool
	CacheSize int
	Logger    *slog.Logger
}

// Listener is invoked after the split index moves.
type Listener func(prev, next int)

package recognize

import (
	"errors"
	"image"
)

// ErrRecognition wraps failures reported by a recognition backend.
var ErrRecognition = errors.New("text recognition failed")

// Line is a group of word boxes merged into one text line candidate.
type Line struct {
	Box   image.Rectangle
	Words []image.Rectangle
}

// Recognizer exposes the three OCR capabilities, consumed in order.
// Implementations need not be reentrant; callers serialise access.
type Recognizer interface {
	// DetectWords returns word bounding boxes in raster coordinates.
	DetectWords(img *image.Gray) ([]image.Rectangle, error)
	// GroupIntoLines merges word boxes into lines ordered top to bottom.
	GroupIntoLines(img *image.Gray, words []image.Rectangle) []Line
	// Recognize returns one slot per line; a nil slot means the line
	// could not be recognized.
	Recognize(img *image.Gray, lines []Line) ([]*string, error)
}

// Run executes the three stages in order and returns the per-line texts.
func Run(r Recognizer, img *image.Gray) ([]*string, error) {
	words, err := r.DetectWords(img)
	if err != nil {
		return nil, err
	}
	lines := r.GroupIntoLines(img, words)
	return r.Recognize(img, lines)
}

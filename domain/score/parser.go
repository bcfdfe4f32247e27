// Package score turns recognized text lines into an integer score.
package score

import (
	"errors"
	"fmt"
	"strconv"
)

var (
	// ErrAmbiguousScoreRegion means the score region did not yield exactly
	// one line. Unrecognized lines count.
	ErrAmbiguousScoreRegion = errors.New("score region is ambiguous")
	// ErrNoScoreText means no line carried more than one character.
	ErrNoScoreText = errors.New("no score text")
	// ErrNotANumber means the selected text is not a base-10 integer.
	ErrNotANumber = errors.New("score text is not a number")
)

// Parse interprets the per-line output of a recognizer. The text is used as
// produced; surrounding whitespace, signs or separators are not stripped.
func Parse(lines []*string) (int64, error) {
	if len(lines) != 1 {
		return 0, fmt.Errorf("%w: %d lines", ErrAmbiguousScoreRegion, len(lines))
	}
	var text string
	found := false
	for _, l := range lines {
		if l != nil && len(*l) > 1 {
			text, found = *l, true
			break
		}
	}
	if !found {
		return 0, ErrNoScoreText
	}
	v, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %w", ErrNotANumber, text, err)
	}
	return v, nil
}

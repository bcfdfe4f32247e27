package split

import (
	"errors"
	"fmt"

	"github.com/soocke/score-split-go/domain/codec"
	"github.com/soocke/score-split-go/domain/match"
	"github.com/soocke/score-split-go/domain/recognize"
	"github.com/soocke/score-split-go/domain/region"
	"github.com/soocke/score-split-go/domain/score"
)

// Kind classifies why a check produced no score.
type Kind int

const (
	KindUnknown Kind = iota
	KindDecode
	KindInvalidTemplateSize
	KindOutOfBounds
	KindNoCurrentSplit
	KindTriggerNotFound
	KindAmbiguousScoreRegion
	KindNoScoreText
	KindNotANumber
	KindRecognitionFailed
)

// Kinds lists every failure kind in declaration order.
var Kinds = []Kind{
	KindDecode, KindInvalidTemplateSize, KindOutOfBounds, KindNoCurrentSplit,
	KindTriggerNotFound, KindAmbiguousScoreRegion, KindNoScoreText,
	KindNotANumber, KindRecognitionFailed,
}

func (k Kind) String() string {
	switch k {
	case KindDecode:
		return "decode_error"
	case KindInvalidTemplateSize:
		return "invalid_template_size"
	case KindOutOfBounds:
		return "out_of_bounds"
	case KindNoCurrentSplit:
		return "no_current_split"
	case KindTriggerNotFound:
		return "trigger_not_found"
	case KindAmbiguousScoreRegion:
		return "ambiguous_score_region"
	case KindNoScoreText:
		return "no_score_text"
	case KindNotANumber:
		return "not_a_number"
	case KindRecognitionFailed:
		return "recognition_failed"
	default:
		return "unknown"
	}
}

// Sentinels matched by errors.Is against a *CheckError of the same kind.
var (
	ErrDecode               = errors.New("decode error")
	ErrInvalidTemplateSize  = errors.New("invalid template size")
	ErrOutOfBounds          = errors.New("score location out of bounds")
	ErrNoCurrentSplit       = errors.New("no current split")
	ErrTriggerNotFound      = errors.New("trigger not found")
	ErrAmbiguousScoreRegion = errors.New("ambiguous score region")
	ErrNoScoreText          = errors.New("no score text")
	ErrNotANumber           = errors.New("not a number")
	ErrRecognitionFailed    = errors.New("recognition failed")
)

func (k Kind) sentinel() error {
	switch k {
	case KindDecode:
		return ErrDecode
	case KindInvalidTemplateSize:
		return ErrInvalidTemplateSize
	case KindOutOfBounds:
		return ErrOutOfBounds
	case KindNoCurrentSplit:
		return ErrNoCurrentSplit
	case KindTriggerNotFound:
		return ErrTriggerNotFound
	case KindAmbiguousScoreRegion:
		return ErrAmbiguousScoreRegion
	case KindNoScoreText:
		return ErrNoScoreText
	case KindNotANumber:
		return ErrNotANumber
	case KindRecognitionFailed:
		return ErrRecognitionFailed
	default:
		return nil
	}
}

// CheckError is returned by Manager.Check for every non-score outcome.
type CheckError struct {
	Kind       Kind
	SplitIndex int
	// Confidence is the best match confidence when it was computed, else 0.
	Confidence float64
	Err        error
}

func (e *CheckError) Error() string {
	msg := fmt.Sprintf("split %d: %s", e.SplitIndex, e.Kind)
	if e.Kind == KindTriggerNotFound {
		msg += fmt.Sprintf(" (confidence %.4f)", e.Confidence)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CheckError) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel of e's kind.
func (e *CheckError) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// KindOf extracts the kind from err, or KindUnknown.
func KindOf(err error) Kind {
	var ce *CheckError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindUnknown
}

// classify maps errors from the pipeline packages onto kinds.
func classify(err error) Kind {
	switch {
	case errors.Is(err, codec.ErrDecode):
		return KindDecode
	case errors.Is(err, match.ErrInvalidTemplateSize):
		return KindInvalidTemplateSize
	case errors.Is(err, region.ErrOutOfBounds), errors.Is(err, region.ErrInvalidRectangle):
		return KindOutOfBounds
	case errors.Is(err, score.ErrAmbiguousScoreRegion):
		return KindAmbiguousScoreRegion
	case errors.Is(err, score.ErrNoScoreText):
		return KindNoScoreText
	case errors.Is(err, score.ErrNotANumber):
		return KindNotANumber
	case errors.Is(err, recognize.ErrRecognition):
		return KindRecognitionFailed
	default:
		return KindUnknown
	}
}

// Package tesseract implements recognize.Recognizer on top of libtesseract
// through gosseract.
package tesseract

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"

	"github.com/soocke/score-split-go/domain/codec"
	"github.com/soocke/score-split-go/domain/recognize"
	"github.com/soocke/score-split-go/domain/region"
)

// DigitWhitelist restricts recognition to characters found in scores.
const DigitWhitelist = "0123456789"

// Options configures the engine.
type Options struct {
	TessdataPrefix string  // directory holding <lang>.traineddata; empty uses the library default
	Language       string  // default "eng"
	Whitelist      string  // default DigitWhitelist; "-" disables the whitelist
	MinConfidence  float64 // words below this confidence (0-100) are dropped
	MinHeight      int     // rasters shorter than this are upscaled before OCR (default 48)
	LinePadding    int     // pixels added around a line box before recognition (default 4)
	Group          recognize.GroupOptions
	Logger         *slog.Logger
}

// Engine owns a single tesseract client. All calls are serialised.
type Engine struct {
	mu     sync.Mutex
	client *gosseract.Client
	opts   Options
	logger *slog.Logger
}

// New loads the language model and warms the engine up so that a missing or
// broken model fails here rather than on the first frame.
func New(opts Options) (*Engine, error) {
	if opts.Language == "" {
		opts.Language = "eng"
	}
	if opts.Whitelist == "" {
		opts.Whitelist = DigitWhitelist
	}
	if opts.MinHeight <= 0 {
		opts.MinHeight = 48
	}
	if opts.LinePadding <= 0 {
		opts.LinePadding = 4
	}
	if opts.TessdataPrefix != "" {
		model := filepath.Join(opts.TessdataPrefix, opts.Language+".traineddata")
		if _, err := os.Stat(model); err != nil {
			return nil, fmt.Errorf("tesseract model %s: %w", model, err)
		}
	}
	client := gosseract.NewClient()
	if opts.TessdataPrefix != "" {
		if err := client.SetTessdataPrefix(opts.TessdataPrefix); err != nil {
			client.Close()
			return nil, fmt.Errorf("set tessdata prefix: %w", err)
		}
	}
	if err := client.SetLanguage(opts.Language); err != nil {
		client.Close()
		return nil, fmt.Errorf("set language %q: %w", opts.Language, err)
	}
	if opts.Whitelist != "-" {
		if err := client.SetWhitelist(opts.Whitelist); err != nil {
			client.Close()
			return nil, fmt.Errorf("set whitelist: %w", err)
		}
	}
	e := &Engine{client: client, opts: opts, logger: opts.Logger}
	if err := e.warmUp(); err != nil {
		client.Close()
		return nil, fmt.Errorf("initialise tesseract: %w", err)
	}
	if e.logger != nil {
		e.logger.Info("tesseract engine ready", "version", client.Version(), "language", opts.Language)
	}
	return e, nil
}

func (e *Engine) warmUp() error {
	blank := image.NewGray(image.Rect(0, 0, 32, 32))
	for i := range blank.Pix {
		blank.Pix[i] = 255
	}
	data, err := codec.Encode(blank, codec.PNG)
	if err != nil {
		return err
	}
	if err := e.client.SetImageFromBytes(data); err != nil {
		return err
	}
	_, err = e.client.Text()
	return err
}

// Close releases the tesseract client.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client == nil {
		return nil
	}
	err := e.client.Close()
	e.client = nil
	return err
}

// DetectWords runs sparse-text segmentation and returns word boxes in the
// coordinates of img.
func (e *Engine) DetectWords(img *image.Gray) ([]image.Rectangle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client == nil {
		return nil, fmt.Errorf("%w: engine closed", recognize.ErrRecognition)
	}
	scaled, factor := e.upscale(img)
	data, err := codec.Encode(scaled, codec.PNG)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", recognize.ErrRecognition, err)
	}
	if err := e.client.SetPageSegMode(gosseract.PSM_SPARSE_TEXT); err != nil {
		return nil, fmt.Errorf("%w: page seg mode: %v", recognize.ErrRecognition, err)
	}
	if err := e.client.SetImageFromBytes(data); err != nil {
		return nil, fmt.Errorf("%w: set image: %v", recognize.ErrRecognition, err)
	}
	boxes, err := e.client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, fmt.Errorf("%w: bounding boxes: %v", recognize.ErrRecognition, err)
	}
	words := make([]image.Rectangle, 0, len(boxes))
	for _, b := range boxes {
		if strings.TrimSpace(b.Word) == "" || b.Confidence < e.opts.MinConfidence {
			continue
		}
		r := image.Rect(b.Box.Min.X/factor, b.Box.Min.Y/factor, ceilDiv(b.Box.Max.X, factor), ceilDiv(b.Box.Max.Y, factor))
		words = append(words, region.Clamp(r, img.Bounds()))
	}
	if e.logger != nil {
		e.logger.Debug("tesseract words", "count", len(words), "raw", len(boxes))
	}
	return words, nil
}

// GroupIntoLines merges word boxes with recognize.GroupLines.
func (e *Engine) GroupIntoLines(_ *image.Gray, words []image.Rectangle) []recognize.Line {
	return recognize.GroupLines(words, e.opts.Group)
}

// Recognize reads each line crop in single-line mode. Lines that produce no
// text get a nil slot.
func (e *Engine) Recognize(img *image.Gray, lines []recognize.Line) ([]*string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client == nil {
		return nil, fmt.Errorf("%w: engine closed", recognize.ErrRecognition)
	}
	if err := e.client.SetPageSegMode(gosseract.PSM_SINGLE_LINE); err != nil {
		return nil, fmt.Errorf("%w: page seg mode: %v", recognize.ErrRecognition, err)
	}
	out := make([]*string, len(lines))
	for i, l := range lines {
		text, err := e.readLine(img, l.Box)
		if err != nil {
			if errors.Is(err, region.ErrOutOfBounds) || errors.Is(err, region.ErrInvalidRectangle) {
				continue
			}
			return nil, fmt.Errorf("%w: line %d: %v", recognize.ErrRecognition, i, err)
		}
		if text != "" {
			out[i] = &text
		}
	}
	return out, nil
}

func (e *Engine) readLine(img *image.Gray, box image.Rectangle) (string, error) {
	padded := region.Clamp(box.Inset(-e.opts.LinePadding), img.Bounds())
	crop, err := region.Crop(img, region.Rectangle{
		X: padded.Min.X - img.Bounds().Min.X, Y: padded.Min.Y - img.Bounds().Min.Y,
		Width: padded.Dx(), Height: padded.Dy(),
	})
	if err != nil {
		return "", err
	}
	scaled, _ := e.upscale(crop)
	data, err := codec.Encode(scaled, codec.PNG)
	if err != nil {
		return "", err
	}
	if err := e.client.SetImageFromBytes(data); err != nil {
		return "", err
	}
	text, err := e.client.Text()
	if err != nil {
		return "", err
	}
	return strings.Join(strings.Fields(text), " "), nil
}

// upscale enlarges small rasters by an integer factor; tesseract is poor at
// glyphs only a few pixels tall.
func (e *Engine) upscale(img *image.Gray) (image.Image, int) {
	h := img.Bounds().Dy()
	if h <= 0 || h >= e.opts.MinHeight {
		return img, 1
	}
	factor := min(ceilDiv(e.opts.MinHeight, h), 4)
	b := img.Bounds()
	return imaging.Resize(img, b.Dx()*factor, b.Dy()*factor, imaging.Lanczos), factor
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

var _ recognize.Recognizer = (*Engine)(nil)

package region

import (
	"errors"
	"fmt"
	"image"
	"strconv"
	"strings"
)

var (
	// ErrOutOfBounds is returned when a rectangle does not lie fully inside
	// the frame it is applied to.
	ErrOutOfBounds = errors.New("rectangle out of frame bounds")
	// ErrInvalidRectangle is returned for non-positive width or height.
	ErrInvalidRectangle = errors.New("invalid rectangle")
)

// Rectangle is a pixel rectangle with a top-left origin.
type Rectangle struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Rect converts r to an image.Rectangle.
func (r Rectangle) Rect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

func (r Rectangle) String() string {
	return fmt.Sprintf("%d,%d,%d,%d", r.X, r.Y, r.Width, r.Height)
}

// Validate reports non-positive dimensions.
func (r Rectangle) Validate() error {
	if r.Width <= 0 || r.Height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidRectangle, r.Width, r.Height)
	}
	return nil
}

// ParseRectangle parses "x,y,width,height".
func ParseRectangle(s string) (Rectangle, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return Rectangle{}, fmt.Errorf("%w: want x,y,width,height, got %q", ErrInvalidRectangle, s)
	}
	var vals [4]int
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return Rectangle{}, fmt.Errorf("%w: %q: %v", ErrInvalidRectangle, s, err)
		}
		vals[i] = v
	}
	r := Rectangle{X: vals[0], Y: vals[1], Width: vals[2], Height: vals[3]}
	if err := r.Validate(); err != nil {
		return Rectangle{}, err
	}
	return r, nil
}

// Crop copies the pixels of frame inside r into a new raster whose bounds
// start at (0,0). r is relative to the frame's top-left corner. The result
// never shares memory with frame.
func Crop(frame *image.Gray, r Rectangle) (*image.Gray, error) {
	if frame == nil {
		return nil, errors.New("nil frame")
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	fb := frame.Bounds()
	if r.X < 0 || r.Y < 0 || r.X > fb.Dx()-r.Width || r.Y > fb.Dy()-r.Height {
		return nil, fmt.Errorf("%w: %s exceeds %dx%d", ErrOutOfBounds, r, fb.Dx(), fb.Dy())
	}
	out := image.NewGray(image.Rect(0, 0, r.Width, r.Height))
	for y := 0; y < r.Height; y++ {
		off := (fb.Min.Y-frame.Rect.Min.Y+r.Y+y)*frame.Stride + (fb.Min.X - frame.Rect.Min.X + r.X)
		copy(out.Pix[y*out.Stride:y*out.Stride+r.Width], frame.Pix[off:off+r.Width])
	}
	return out, nil
}

// Clamp intersects rect with bounds; used for padded OCR line crops where
// overflow is expected rather than a configuration error.
func Clamp(rect, bounds image.Rectangle) image.Rectangle {
	return rect.Intersect(bounds)
}

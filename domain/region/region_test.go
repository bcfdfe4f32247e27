package region

import (
	"errors"
	"image"
	"math"
	"testing"
)

func numbered(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = uint8(i % 251)
	}
	return img
}

func TestCrop_SizeMatchesRectangle(t *testing.T) {
	frame := numbered(100, 60)
	rects := []Rectangle{
		{X: 0, Y: 0, Width: 100, Height: 60},
		{X: 10, Y: 5, Width: 40, Height: 20},
		{X: 99, Y: 59, Width: 1, Height: 1},
	}
	for _, r := range rects {
		out, err := Crop(frame, r)
		if err != nil {
			t.Fatalf("crop %v: %v", r, err)
		}
		if out.Bounds().Dx() != r.Width || out.Bounds().Dy() != r.Height {
			t.Fatalf("crop %v produced %v", r, out.Bounds())
		}
		if out.GrayAt(0, 0) != frame.GrayAt(r.X, r.Y) {
			t.Fatalf("crop %v origin pixel mismatch", r)
		}
		last := out.GrayAt(r.Width-1, r.Height-1)
		if last != frame.GrayAt(r.X+r.Width-1, r.Y+r.Height-1) {
			t.Fatalf("crop %v last pixel mismatch", r)
		}
	}
}

func TestCrop_FailsOutsideBounds(t *testing.T) {
	frame := numbered(50, 40)
	rects := []Rectangle{
		{X: -1, Y: 0, Width: 10, Height: 10},
		{X: 0, Y: -1, Width: 10, Height: 10},
		{X: 41, Y: 0, Width: 10, Height: 10},
		{X: 0, Y: 31, Width: 10, Height: 10},
		{X: 0, Y: 0, Width: 51, Height: 1},
		{X: math.MaxInt, Y: 0, Width: 10, Height: 10},
		{X: 0, Y: math.MaxInt - 5, Width: 10, Height: 10},
	}
	for _, r := range rects {
		if _, err := Crop(frame, r); !errors.Is(err, ErrOutOfBounds) {
			t.Fatalf("crop %v: expected ErrOutOfBounds, got %v", r, err)
		}
	}
}

func TestCrop_RejectsEmptyRectangle(t *testing.T) {
	frame := numbered(10, 10)
	if _, err := Crop(frame, Rectangle{Width: 0, Height: 3}); !errors.Is(err, ErrInvalidRectangle) {
		t.Fatalf("expected ErrInvalidRectangle, got %v", err)
	}
}

func TestCrop_DoesNotAliasFrame(t *testing.T) {
	frame := numbered(20, 20)
	out, err := Crop(frame, Rectangle{X: 2, Y: 2, Width: 5, Height: 5})
	if err != nil {
		t.Fatalf("crop: %v", err)
	}
	before := out.Pix[0]
	frame.Pix[2*frame.Stride+2] = ^frame.Pix[2*frame.Stride+2]
	if out.Pix[0] != before {
		t.Fatalf("crop shares memory with the frame")
	}
}

func TestCrop_SubImageFrame(t *testing.T) {
	frame := numbered(30, 30)
	sub := frame.SubImage(image.Rect(10, 10, 30, 30)).(*image.Gray)
	out, err := Crop(sub, Rectangle{X: 1, Y: 2, Width: 3, Height: 3})
	if err != nil {
		t.Fatalf("crop: %v", err)
	}
	if out.GrayAt(0, 0) != frame.GrayAt(11, 12) {
		t.Fatalf("rectangle must be relative to the sub image origin")
	}
	if _, err := Crop(sub, Rectangle{X: 18, Y: 0, Width: 3, Height: 3}); !errors.Is(err, ErrOutOfBounds) {
		t.Fatalf("expected ErrOutOfBounds on sub image, got %v", err)
	}
}

func TestParseRectangle(t *testing.T) {
	r, err := ParseRectangle("123, 166,473,66")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if r != (Rectangle{X: 123, Y: 166, Width: 473, Height: 66}) {
		t.Fatalf("unexpected rectangle %+v", r)
	}
	if r.String() != "123,166,473,66" {
		t.Fatalf("unexpected String %q", r.String())
	}
	for _, bad := range []string{"", "1,2,3", "a,b,c,d", "0,0,0,5", "0,0,5,-1"} {
		if _, err := ParseRectangle(bad); !errors.Is(err, ErrInvalidRectangle) {
			t.Fatalf("ParseRectangle(%q): expected ErrInvalidRectangle, got %v", bad, err)
		}
	}
}

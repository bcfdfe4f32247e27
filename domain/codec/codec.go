package codec

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/draw"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // registers the webp decoder
)

// ErrDecode is returned for empty, malformed or unsupported image buffers.
var ErrDecode = errors.New("decode image")

// Format selects the encoding used by Encode.
type Format int

const (
	PNG Format = iota
	JPEG
)

func (f Format) String() string {
	switch f {
	case PNG:
		return "png"
	case JPEG:
		return "jpeg"
	default:
		return "unknown"
	}
}

// DefaultJPEGQuality mirrors the encoder default used for frames.
const DefaultJPEGQuality = 95

// Decode turns a compressed image buffer (png, jpeg, gif, bmp, tiff, webp)
// into a single-channel raster whose bounds start at (0,0).
func Decode(data []byte) (*image.Gray, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty buffer", ErrDecode)
	}
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return ToGray(img), nil
}

// DecodeBase64 decodes a standard base64 string and then the image it holds.
func DecodeBase64(s string) (*image.Gray, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: base64: %v", ErrDecode, err)
	}
	return Decode(data)
}

// Encode compresses img. JPEG output uses DefaultJPEGQuality.
func Encode(img image.Image, f Format) ([]byte, error) {
	return EncodeQuality(img, f, DefaultJPEGQuality)
}

// EncodeQuality is Encode with an explicit JPEG quality (ignored for PNG).
func EncodeQuality(img image.Image, f Format, quality int) ([]byte, error) {
	if img == nil {
		return nil, errors.New("encode image: nil image")
	}
	var buf bytes.Buffer
	var err error
	switch f {
	case PNG:
		err = imaging.Encode(&buf, img, imaging.PNG)
	case JPEG:
		err = imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality))
	default:
		return nil, fmt.Errorf("encode image: unsupported format %v", f)
	}
	if err != nil {
		return nil, fmt.Errorf("encode image %s: %w", f, err)
	}
	return buf.Bytes(), nil
}

// ToGray converts any image to an independently owned *image.Gray with its
// bounds moved to the origin.
func ToGray(img image.Image) *image.Gray {
	b := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	if g, ok := img.(*image.Gray); ok {
		for y := 0; y < b.Dy(); y++ {
			src := g.Pix[(y+b.Min.Y-g.Rect.Min.Y)*g.Stride+(b.Min.X-g.Rect.Min.X):]
			copy(out.Pix[y*out.Stride:y*out.Stride+b.Dx()], src[:b.Dx()])
		}
		return out
	}
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out
}

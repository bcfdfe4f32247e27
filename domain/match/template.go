package match

import (
	"fmt"
	"image"
	"math"
	"strings"
)

// Method enumerates the supported correlation formulas.
type Method int

const (
	// CCorrNormed is normalized cross-correlation without mean removal.
	CCorrNormed Method = iota
	// CCoeffNormed is zero-mean normalized cross-correlation.
	CCoeffNormed
)

func (m Method) String() string {
	switch m {
	case CCorrNormed:
		return "ccorr_normed"
	case CCoeffNormed:
		return "ccoeff_normed"
	default:
		return "unknown"
	}
}

// ParseMethod accepts the String form of a Method. Empty selects CCorrNormed.
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "ccorr_normed", "ccorr":
		return CCorrNormed, nil
	case "ccoeff_normed", "ccoeff", "zncc":
		return CCoeffNormed, nil
	default:
		return CCorrNormed, fmt.Errorf("unknown match method %q", s)
	}
}

func (m Method) MarshalText() ([]byte, error) {
	if m != CCorrNormed && m != CCoeffNormed {
		return nil, fmt.Errorf("unknown match method %d", int(m))
	}
	return []byte(m.String()), nil
}

func (m *Method) UnmarshalText(b []byte) error {
	parsed, err := ParseMethod(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Template caches trigger pixels and summary statistics so a trigger can be
// matched against many frames without recomputation. Safe for concurrent
// reads.
type Template struct {
	pix   []float64
	W, H  int
	sumT  float64
	sumT2 float64
	meanT float64
	stdT  float64
}

// NewTemplate precomputes trigger statistics.
func NewTemplate(img *image.Gray) *Template {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	t := &Template{pix: make([]float64, w*h), W: w, H: h}
	if w == 0 || h == 0 {
		return t
	}
	for y := 0; y < h; y++ {
		row := img.Pix[(y+b.Min.Y-img.Rect.Min.Y)*img.Stride+(b.Min.X-img.Rect.Min.X):]
		for x := 0; x < w; x++ {
			v := float64(row[x])
			t.pix[y*w+x] = v
			t.sumT += v
			t.sumT2 += v * v
		}
	}
	n := float64(w * h)
	t.meanT = t.sumT / n
	if varT := (t.sumT2 - t.sumT*t.sumT/n) / n; varT > 0 {
		t.stdT = math.Sqrt(varT)
	}
	return t
}

// Size returns the template width and height.
func (t *Template) Size() (int, int) { return t.W, t.H }

package match

import (
	"errors"
	"fmt"
	"image"
	"math"
)

// ErrInvalidTemplateSize is returned when the trigger is empty or larger than
// the frame in either dimension.
var ErrInvalidTemplateSize = errors.New("invalid template size")

const eps = 1e-9

// Options configures a template match.
type Options struct {
	Method Method
	Stride int  // Coarse stride for scanning (default 1, exhaustive)
	Refine bool // If true and Stride>1, do an exhaustive pass around the coarse best window
}

// Result holds the best window position (top-left, frame coordinates) and its
// confidence in [0,1].
type Result struct {
	Location   image.Point
	Confidence float64
}

// framePrecomp stores per-frame grayscale values and their summed-area tables
// (integral images). The integrals allow O(1) window sum and energy queries.
type framePrecomp struct {
	gray       []float64
	integral   []float64
	integralSq []float64
	W, H       int
}

func buildFramePrecomp(frame *image.Gray) *framePrecomp {
	b := frame.Bounds()
	W, H := b.Dx(), b.Dy()
	need := W * H
	p := &framePrecomp{
		gray:       make([]float64, need),
		integral:   make([]float64, need),
		integralSq: make([]float64, need),
		W:          W,
		H:          H,
	}
	for y := 0; y < H; y++ {
		row := frame.Pix[(y+b.Min.Y-frame.Rect.Min.Y)*frame.Stride+(b.Min.X-frame.Rect.Min.X):]
		var rowSum, rowSum2 float64
		for x := 0; x < W; x++ {
			v := float64(row[x])
			off := y*W + x
			p.gray[off] = v
			rowSum += v
			rowSum2 += v * v
			if y == 0 {
				p.integral[off] = rowSum
				p.integralSq[off] = rowSum2
			} else {
				p.integral[off] = p.integral[(y-1)*W+x] + rowSum
				p.integralSq[off] = p.integralSq[(y-1)*W+x] + rowSum2
			}
		}
	}
	return p
}

// integralSum returns the inclusive sum over rectangle [x0..x1] x [y0..y1]
// from an integral image stored in row-major order with width W.
func integralSum(I []float64, W int, x0, y0, x1, y1 int) float64 {
	if x0 > x1 || y0 > y1 {
		return 0
	}
	A := func(x, y int) float64 {
		if x < 0 || y < 0 {
			return 0
		}
		return I[y*W+x]
	}
	return A(x1, y1) - A(x0-1, y1) - A(x1, y0-1) + A(x0-1, y0-1)
}

// Match slides t over every same-sized window of frame and returns the
// location of the global correlation maximum.
func Match(frame *image.Gray, t *Template, opts Options) (Result, error) {
	if frame == nil || t == nil {
		return Result{}, fmt.Errorf("%w: nil frame or template", ErrInvalidTemplateSize)
	}
	fb := frame.Bounds()
	W, H := fb.Dx(), fb.Dy()
	if t.W == 0 || t.H == 0 || W < t.W || H < t.H {
		return Result{}, fmt.Errorf("%w: trigger %dx%d, frame %dx%d", ErrInvalidTemplateSize, t.W, t.H, W, H)
	}
	stride := opts.Stride
	if stride <= 0 {
		stride = 1
	}
	pre := buildFramePrecomp(frame)

	bestX, bestY, bestScore := 0, 0, -1.0
	for y := 0; y <= H-t.H; y += stride {
		for x := 0; x <= W-t.W; x += stride {
			if s := scoreAt(pre, t, x, y, opts.Method); s > bestScore {
				bestScore, bestX, bestY = s, x, y
			}
		}
	}
	if opts.Refine && stride > 1 {
		minY := max(0, bestY-stride)
		maxY := min(H-t.H, bestY+stride)
		minX := max(0, bestX-stride)
		maxX := min(W-t.W, bestX+stride)
		for y := minY; y <= maxY; y++ {
			for x := minX; x <= maxX; x++ {
				if s := scoreAt(pre, t, x, y, opts.Method); s > bestScore {
					bestScore, bestX, bestY = s, x, y
				}
			}
		}
	}
	return Result{
		Location:   image.Pt(bestX+fb.Min.X, bestY+fb.Min.Y),
		Confidence: clamp01(bestScore),
	}, nil
}

// MatchImage is Match for a one-off trigger raster.
func MatchImage(frame, trigger *image.Gray, opts Options) (Result, error) {
	if trigger == nil {
		return Result{}, fmt.Errorf("%w: nil trigger", ErrInvalidTemplateSize)
	}
	return Match(frame, NewTemplate(trigger), opts)
}

func scoreAt(pre *framePrecomp, t *Template, x, y int, method Method) float64 {
	w, h := t.W, t.H
	n := float64(w * h)
	switch method {
	case CCoeffNormed:
		sumF := integralSum(pre.integral, pre.W, x, y, x+w-1, y+h-1)
		sumF2 := integralSum(pre.integralSq, pre.W, x, y, x+w-1, y+h-1)
		meanF := sumF / n
		varF := (sumF2 - sumF*sumF/n) / n
		if t.stdT <= eps {
			// flat trigger: only an identical flat window matches
			if varF <= eps && math.Abs(meanF-t.meanT) <= eps {
				return 1
			}
			return 0
		}
		if varF <= eps {
			return 0
		}
		numer := cross(pre, t, x, y) - n*meanF*t.meanT
		denom := n * math.Sqrt(varF) * t.stdT
		if denom <= 0 {
			return 0
		}
		return numer / denom
	default:
		sumF2 := integralSum(pre.integralSq, pre.W, x, y, x+w-1, y+h-1)
		denom := math.Sqrt(sumF2 * t.sumT2)
		if denom <= eps {
			return 0
		}
		return cross(pre, t, x, y) / denom
	}
}

// cross returns Σ F·T for the window whose top-left corner is (x,y).
func cross(pre *framePrecomp, t *Template, x, y int) float64 {
	var sum float64
	for py := 0; py < t.H; py++ {
		frow := pre.gray[(y+py)*pre.W+x : (y+py)*pre.W+x+t.W]
		trow := t.pix[py*t.W : (py+1)*t.W]
		for px, tv := range trow {
			sum += frow[px] * tv
		}
	}
	return sum
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

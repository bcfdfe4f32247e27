package recognize

import (
	"image"
	"sort"
)

// GroupOptions tunes GroupLines.
type GroupOptions struct {
	// MinVerticalOverlap is the fraction of the smaller box height two boxes
	// must share vertically to sit on the same line.
	MinVerticalOverlap float64
	// MaxGapFactor bounds the horizontal gap between a line and the next
	// word, in multiples of the taller of the two.
	MaxGapFactor float64
}

// DefaultGroupOptions returns the grouping used by the bundled backends.
func DefaultGroupOptions() GroupOptions {
	return GroupOptions{MinVerticalOverlap: 0.5, MaxGapFactor: 1.5}
}

// GroupLines merges word boxes into lines. Words are visited left to right;
// a word extends the line it overlaps most vertically when the horizontal gap
// is small enough, otherwise it opens a new line. Lines are returned top to
// bottom, then left to right, with their words sorted by x.
func GroupLines(words []image.Rectangle, opts GroupOptions) []Line {
	if opts.MinVerticalOverlap <= 0 {
		opts.MinVerticalOverlap = DefaultGroupOptions().MinVerticalOverlap
	}
	if opts.MaxGapFactor <= 0 {
		opts.MaxGapFactor = DefaultGroupOptions().MaxGapFactor
	}
	sorted := make([]image.Rectangle, 0, len(words))
	for _, w := range words {
		if !w.Empty() {
			sorted = append(sorted, w.Canon())
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Min.X != sorted[j].Min.X {
			return sorted[i].Min.X < sorted[j].Min.X
		}
		return sorted[i].Min.Y < sorted[j].Min.Y
	})

	var lines []*Line
	for _, w := range sorted {
		best, bestOverlap := -1, 0.0
		for i, l := range lines {
			ov := overlapRatio(l.Box, w)
			if ov < opts.MinVerticalOverlap {
				continue
			}
			gap := w.Min.X - l.Box.Max.X
			limit := opts.MaxGapFactor * float64(max(l.Box.Dy(), w.Dy()))
			if float64(gap) > limit {
				continue
			}
			if ov > bestOverlap {
				best, bestOverlap = i, ov
			}
		}
		if best < 0 {
			lines = append(lines, &Line{Box: w, Words: []image.Rectangle{w}})
			continue
		}
		lines[best].Box = lines[best].Box.Union(w)
		lines[best].Words = append(lines[best].Words, w)
	}

	out := make([]Line, len(lines))
	for i, l := range lines {
		out[i] = *l
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Box.Min.Y != out[j].Box.Min.Y {
			return out[i].Box.Min.Y < out[j].Box.Min.Y
		}
		return out[i].Box.Min.X < out[j].Box.Min.X
	})
	return out
}

// overlapRatio returns the vertical overlap of a and b divided by the smaller
// of the two heights.
func overlapRatio(a, b image.Rectangle) float64 {
	top := max(a.Min.Y, b.Min.Y)
	bottom := min(a.Max.Y, b.Max.Y)
	if bottom <= top {
		return 0
	}
	h := min(a.Dy(), b.Dy())
	if h <= 0 {
		return 0
	}
	return float64(bottom-top) / float64(h)
}

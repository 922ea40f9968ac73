// Package viewport implements the zoom and pan window over an ordered
// sample sequence. All transitions are pure functions of the current
// window and the sequence length n; Controller wraps them for a single
// interactive session.
package viewport

import "math"

const (
	MinRange        = 10
	ZoomInFactor    = 0.5
	ZoomOutFactor   = 2.0
	WheelZoomIn     = 0.8
	WheelZoomOut    = 1.2
	PanFraction     = 0.25
	DragSensitivity = 0.1
)

// Viewport is an inclusive index window [Start, End] over a sequence of
// length n, with 0 <= Start <= End <= n-1.
type Viewport struct {
	Start int `json:"start_index"`
	End   int `json:"end_index"`
}

// Range is the number of steps spanned by the window.
func (v Viewport) Range() int {
	return v.End - v.Start
}

// Len is the number of samples inside the window.
func (v Viewport) Len() int {
	return v.Range() + 1
}

// Full reports whether v covers the whole sequence.
func (v Viewport) Full(n int) bool {
	return n > 0 && v.Start == 0 && v.End == n-1
}

// Reset returns the full-range window. ok is false for an empty sequence.
func Reset(n int) (Viewport, bool) {
	if n <= 0 {
		return Viewport{}, false
	}
	return Viewport{Start: 0, End: n - 1}, true
}

// Clamp coerces an arbitrary window into [0, n-1], swapping inverted bounds.
func Clamp(v Viewport, n int) Viewport {
	if n <= 0 {
		return Viewport{}
	}
	if v.Start > v.End {
		v.Start, v.End = v.End, v.Start
	}
	v.Start = clampInt(v.Start, 0, n-1)
	v.End = clampInt(v.End, 0, n-1)
	return v
}

// nextRange scales r by factor and bounds it to [MinRange, n-1]. The upper
// bound wins when the sequence is shorter than MinRange.
func nextRange(r int, factor float64, n int) int {
	next := int(math.Round(float64(r) * factor))
	if next < MinRange {
		next = MinRange
	}
	if next > n-1 {
		next = n - 1
	}
	return next
}

// CenterZoom places a window of about r steps around center. When one side
// hits a boundary the window is extended from the other side up to r steps.
// An odd r away from both edges spans r-1 steps.
func CenterZoom(center, r, n int) Viewport {
	if n <= 0 {
		return Viewport{}
	}
	if r > n-1 {
		r = n - 1
	}
	half := r / 2
	start := max(0, center-half)
	end := min(n-1, center+half)
	if end-start < r {
		if start == 0 {
			end = min(n-1, start+r)
		} else if end == n-1 {
			start = max(0, end-r)
		}
	}
	return Viewport{Start: start, End: end}
}

func zoomCentered(v Viewport, n int, factor float64) Viewport {
	if n <= 0 {
		return Viewport{}
	}
	v = Clamp(v, n)
	r := nextRange(v.Range(), factor, n)
	center := (v.Start + v.End) / 2
	return CenterZoom(center, r, n)
}

// ZoomIn halves the window around its center, never below MinRange steps.
func ZoomIn(v Viewport, n int) Viewport {
	return zoomCentered(v, n, ZoomInFactor)
}

// ZoomOut doubles the window around its center and snaps to the full
// range once it gets there.
func ZoomOut(v Viewport, n int) Viewport {
	next := zoomCentered(v, n, ZoomOutFactor)
	if next.Full(n) {
		full, _ := Reset(n)
		return full
	}
	return next
}

// ZoomAtAnchor rescales the window by factor while keeping the sample at
// anchorFraction of the current window under the pointer.
func ZoomAtAnchor(v Viewport, n int, anchorFraction, factor float64) Viewport {
	if n <= 0 {
		return Viewport{}
	}
	v = Clamp(v, n)
	r := v.Range()
	if r == 0 {
		full, _ := Reset(n)
		return full
	}
	if math.IsNaN(anchorFraction) {
		anchorFraction = 0.5
	}
	anchorFraction = math.Max(0, math.Min(1, anchorFraction))

	anchor := int(math.Floor(float64(v.Start) + float64(r)*anchorFraction))
	next := nextRange(r, factor, n)
	leftSpan := int(math.Floor(float64(anchor-v.Start) * float64(next) / float64(r)))

	start := anchor - leftSpan
	end := start + next
	if start < 0 {
		start = 0
		end = next
	}
	if end >= n {
		end = n - 1
		start = max(0, end-next)
	}
	return Viewport{Start: start, End: end}
}

// Wheel zooms at the pointer: a negative deltaY zooms in, anything else
// zooms out.
func Wheel(v Viewport, n int, anchorFraction, deltaY float64) Viewport {
	factor := WheelZoomOut
	if deltaY < 0 {
		factor = WheelZoomIn
	}
	return ZoomAtAnchor(v, n, anchorFraction, factor)
}

// PanBy shifts the window by fraction of its range; a negative fraction
// pans left. A pan that would leave [0, n-1] is rejected and v is
// returned unchanged.
func PanBy(v Viewport, n int, fraction float64) Viewport {
	if n <= 0 {
		return Viewport{}
	}
	v = Clamp(v, n)
	r := v.Range()
	amount := max(1, int(math.Floor(float64(r)*math.Abs(fraction))))
	if fraction < 0 {
		amount = -amount
	}
	start, end := v.Start+amount, v.End+amount
	if start < 0 || end > n-1 {
		return v
	}
	return Viewport{Start: start, End: end}
}

// PanLeft reveals earlier samples by a quarter of the window.
func PanLeft(v Viewport, n int) Viewport {
	return PanBy(v, n, -PanFraction)
}

// PanRight reveals later samples by a quarter of the window.
func PanRight(v Viewport, n int) Viewport {
	return PanBy(v, n, PanFraction)
}

// Slide moves v by shift samples, keeping its range and sliding it back
// inside [0, n-1] instead of truncating it.
func Slide(v Viewport, n int, shift int) Viewport {
	if n <= 0 {
		return Viewport{}
	}
	v = Clamp(v, n)
	r := v.Range()
	start, end := v.Start+shift, v.End+shift
	if start < 0 {
		start, end = 0, r
	}
	if end >= n {
		end = n - 1
		start = end - r
	}
	return Viewport{Start: start, End: end}
}

func clampInt(x, lo, hi int) int {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

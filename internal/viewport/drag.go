package viewport

import "math"

// DragSession is the scratch state between a drag start and a drag end.
type DragSession struct {
	AnchorX float64
	Start   Viewport
}

// BeginDrag snapshots the pointer position and the window it grabbed.
func BeginDrag(v Viewport, pointerX float64) DragSession {
	return DragSession{AnchorX: pointerX, Start: v}
}

// To returns the window after the pointer moved to pointerX over a surface
// pixelWidth wide. Dragging right reveals earlier samples. The shift is
// always applied to the window captured at drag start, so moves do not
// accumulate rounding.
func (d DragSession) To(pointerX, pixelWidth float64, n int, sensitivity float64) Viewport {
	if n <= 0 {
		return Viewport{}
	}
	if pixelWidth <= 0 || math.IsNaN(pointerX) {
		return Clamp(d.Start, n)
	}
	deltaX := pointerX - d.AnchorX
	shift := int(math.Floor(-(deltaX / pixelWidth) * float64(n) * sensitivity))
	return Slide(d.Start, n, shift)
}

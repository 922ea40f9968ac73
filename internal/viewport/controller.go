package viewport

// Controller owns the window of one interactive chart session. It is not
// safe for concurrent use; callers deliver one event at a time.
type Controller struct {
	n           int
	view        Viewport
	drag        *DragSession
	sensitivity float64
}

// NewController starts a session over a sequence of length n at full range.
func NewController(n int) *Controller {
	c := &Controller{n: max(n, 0), sensitivity: DragSensitivity}
	c.Reset()
	return c
}

// N returns the sequence length the controller was built for.
func (c *Controller) N() int {
	return c.n
}

// View returns the current window; ok is false for an empty sequence.
func (c *Controller) View() (Viewport, bool) {
	if c.n == 0 {
		return Viewport{}, false
	}
	return c.view, true
}

// Reset returns to the full range and drops any drag in progress.
func (c *Controller) Reset() {
	c.drag = nil
	c.view, _ = Reset(c.n)
}

// Dragging reports whether a drag session is open.
func (c *Controller) Dragging() bool {
	return c.drag != nil
}

// BeginDrag opens a drag session anchored at pointerX.
func (c *Controller) BeginDrag(pointerX float64) {
	if c.n == 0 {
		return
	}
	d := BeginDrag(c.view, pointerX)
	c.drag = &d
}

// DragTo pans relative to the drag anchor. Without an open session it is a
// no-op.
func (c *Controller) DragTo(pointerX, pixelWidth float64) {
	if c.n == 0 || c.drag == nil {
		return
	}
	c.view = c.drag.To(pointerX, pixelWidth, c.n, c.sensitivity)
}

// EndDrag closes the drag session. Safe to call at any time.
func (c *Controller) EndDrag() {
	c.drag = nil
}

// Handle applies ev and returns the resulting window.
func (c *Controller) Handle(ev Event) (Viewport, bool) {
	if c.n == 0 {
		return Viewport{}, false
	}
	switch ev.Kind {
	case EventDragStart:
		c.BeginDrag(ev.PointerX)
	case EventDragMove:
		c.DragTo(ev.PointerX, ev.PixelWidth)
	case EventDragEnd:
		c.EndDrag()
	case EventReset:
		c.Reset()
	default:
		c.view = Apply(c.view, c.n, ev)
	}
	return c.view, true
}

package viewport

// EventKind names a gesture delivered by the chart surface.
type EventKind string

const (
	EventReset     EventKind = "reset"
	EventZoomIn    EventKind = "zoom_in"
	EventZoomOut   EventKind = "zoom_out"
	EventPanLeft   EventKind = "pan_left"
	EventPanRight  EventKind = "pan_right"
	EventWheel     EventKind = "wheel"
	EventDragStart EventKind = "drag_start"
	EventDragMove  EventKind = "drag_move"
	EventDragEnd   EventKind = "drag_end"
)

// Valid reports whether k is a known gesture.
func (k EventKind) Valid() bool {
	switch k {
	case EventReset, EventZoomIn, EventZoomOut, EventPanLeft, EventPanRight,
		EventWheel, EventDragStart, EventDragMove, EventDragEnd:
		return true
	}
	return false
}

// Stateless reports whether k can be applied without a drag session.
func (k EventKind) Stateless() bool {
	switch k {
	case EventDragStart, EventDragMove, EventDragEnd:
		return false
	}
	return k.Valid()
}

// Event is one gesture. Wheel events carry DeltaY and AnchorFraction,
// drag events carry PointerX and PixelWidth.
type Event struct {
	Kind           EventKind `json:"type"`
	DeltaY         float64   `json:"delta_y,omitempty"`
	AnchorFraction float64   `json:"anchor_fraction,omitempty"`
	PointerX       float64   `json:"pointer_x,omitempty"`
	PixelWidth     float64   `json:"pixel_width,omitempty"`
}

// Apply is the update function for button and wheel gestures. Drag
// gestures and unknown kinds leave v unchanged; they need a Controller.
func Apply(v Viewport, n int, ev Event) Viewport {
	if n <= 0 {
		return Viewport{}
	}
	switch ev.Kind {
	case EventReset:
		full, _ := Reset(n)
		return full
	case EventZoomIn:
		return ZoomIn(v, n)
	case EventZoomOut:
		return ZoomOut(v, n)
	case EventPanLeft:
		return PanLeft(v, n)
	case EventPanRight:
		return PanRight(v, n)
	case EventWheel:
		return Wheel(v, n, ev.AnchorFraction, ev.DeltaY)
	}
	return Clamp(v, n)
}

package viewport

import (
	"math"
	"math/rand"
	"testing"
)

func TestReset(t *testing.T) {
	if _, ok := Reset(0); ok {
		t.Error("Reset(0) should report no viewport")
	}
	v, ok := Reset(5)
	if !ok || v != (Viewport{0, 4}) {
		t.Errorf("Reset(5) = %v, %v; want {0 4}, true", v, ok)
	}
	again, _ := Reset(5)
	if again != v {
		t.Errorf("Reset is not idempotent: %v != %v", again, v)
	}
}

func TestClamp(t *testing.T) {
	tests := []struct {
		name string
		in   Viewport
		n    int
		want Viewport
	}{
		{"inside", Viewport{3, 7}, 10, Viewport{3, 7}},
		{"negative start", Viewport{-5, 4}, 10, Viewport{0, 4}},
		{"end past n", Viewport{2, 40}, 10, Viewport{2, 9}},
		{"inverted", Viewport{8, 2}, 10, Viewport{2, 8}},
		{"empty sequence", Viewport{1, 2}, 0, Viewport{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Clamp(tt.in, tt.n); got != tt.want {
				t.Errorf("Clamp(%v, %d) = %v, want %v", tt.in, tt.n, got, tt.want)
			}
		})
	}
}

func TestCenterZoom(t *testing.T) {
	tests := []struct {
		name         string
		center, r, n int
		want         Viewport
	}{
		{"interior even", 49, 50, 100, Viewport{24, 74}},
		{"interior odd", 51, 11, 100, Viewport{46, 56}},
		{"left boundary", 4, 18, 100, Viewport{0, 18}},
		{"right boundary", 94, 18, 100, Viewport{81, 99}},
		{"odd at left boundary", 3, 11, 100, Viewport{0, 11}},
		{"odd at right boundary", 96, 11, 100, Viewport{88, 99}},
		{"range exceeds sequence", 2, 20, 5, Viewport{0, 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CenterZoom(tt.center, tt.r, tt.n)
			if got != tt.want {
				t.Errorf("CenterZoom(%d, %d, %d) = %v, want %v", tt.center, tt.r, tt.n, got, tt.want)
			}
		})
	}
}

func TestZoomIn(t *testing.T) {
	tests := []struct {
		name string
		in   Viewport
		n    int
		want Viewport
	}{
		{"full range", Viewport{0, 99}, 100, Viewport{24, 74}},
		{"floors at min range", Viewport{0, 15}, 100, Viewport{2, 12}},
		{"near right edge", Viewport{80, 99}, 100, Viewport{84, 94}},
		{"odd target range", Viewport{40, 62}, 100, Viewport{46, 56}},
		{"short sequence saturates", Viewport{0, 4}, 5, Viewport{0, 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ZoomIn(tt.in, tt.n); got != tt.want {
				t.Errorf("ZoomIn(%v, %d) = %v, want %v", tt.in, tt.n, got, tt.want)
			}
		})
	}
}

func TestZoomOut(t *testing.T) {
	tests := []struct {
		name string
		in   Viewport
		n    int
		want Viewport
	}{
		{"back to full", Viewport{24, 74}, 100, Viewport{0, 99}},
		{"right edge", Viewport{90, 99}, 100, Viewport{81, 99}},
		{"left edge", Viewport{0, 9}, 100, Viewport{0, 18}},
		{"already full", Viewport{0, 99}, 100, Viewport{0, 99}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ZoomOut(tt.in, tt.n); got != tt.want {
				t.Errorf("ZoomOut(%v, %d) = %v, want %v", tt.in, tt.n, got, tt.want)
			}
		})
	}
}

func TestZoomRoundTrip(t *testing.T) {
	for _, n := range []int{2, 11, 12, 57, 100, 101, 1000, 4097} {
		full, _ := Reset(n)
		got := ZoomOut(ZoomIn(full, n), n)
		if got != full {
			t.Errorf("n=%d: ZoomOut(ZoomIn(full)) = %v, want %v", n, got, full)
		}
	}
}

func TestZoomAtAnchor(t *testing.T) {
	tests := []struct {
		name     string
		in       Viewport
		n        int
		fraction float64
		factor   float64
		want     Viewport
	}{
		{"center zoom in", Viewport{0, 99}, 100, 0.5, WheelZoomIn, Viewport{10, 89}},
		{"left anchor", Viewport{0, 99}, 100, 0, WheelZoomIn, Viewport{0, 79}},
		{"right anchor", Viewport{0, 99}, 100, 1, WheelZoomIn, Viewport{20, 99}},
		{"zoom out clamps left", Viewport{0, 49}, 100, 0.5, WheelZoomOut, Viewport{0, 59}},
		{"fraction above one is clamped", Viewport{0, 99}, 100, 3, WheelZoomIn, Viewport{20, 99}},
		{"zero range resets", Viewport{5, 5}, 100, 0.5, WheelZoomIn, Viewport{0, 99}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ZoomAtAnchor(tt.in, tt.n, tt.fraction, tt.factor)
			if got != tt.want {
				t.Errorf("ZoomAtAnchor(%v, %d, %v, %v) = %v, want %v",
					tt.in, tt.n, tt.fraction, tt.factor, got, tt.want)
			}
		})
	}
}

func TestWheelDirection(t *testing.T) {
	full := Viewport{0, 99}
	if got := Wheel(full, 100, 0.5, -120); got != (Viewport{10, 89}) {
		t.Errorf("negative delta should zoom in, got %v", got)
	}
	if got := Wheel(Viewport{10, 89}, 100, 0.5, 120); got.Range() <= 79 {
		t.Errorf("positive delta should zoom out, got %v", got)
	}
}

func TestZoomAtAnchorKeepsAnchorInside(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 2000; i++ {
		n := 2 + rng.Intn(500)
		a, b := rng.Intn(n), rng.Intn(n)
		v := Clamp(Viewport{a, b}, n)
		if v.Range() == 0 {
			continue
		}
		fraction := rng.Float64()
		factor := WheelZoomIn
		if rng.Intn(2) == 0 {
			factor = WheelZoomOut
		}
		anchor := int(math.Floor(float64(v.Start) + float64(v.Range())*fraction))
		got := ZoomAtAnchor(v, n, fraction, factor)
		if anchor < got.Start || anchor > got.End {
			t.Fatalf("anchor %d fell outside %v (from %v, n=%d, fraction=%v, factor=%v)",
				anchor, got, v, n, fraction, factor)
		}
	}
}

func TestPanBy(t *testing.T) {
	tests := []struct {
		name     string
		in       Viewport
		n        int
		fraction float64
		want     Viewport
	}{
		{"right", Viewport{24, 74}, 100, PanFraction, Viewport{36, 86}},
		{"left", Viewport{24, 74}, 100, -PanFraction, Viewport{12, 62}},
		{"right past end rejected", Viewport{60, 99}, 100, PanFraction, Viewport{60, 99}},
		{"left past start rejected", Viewport{3, 53}, 100, -PanFraction, Viewport{3, 53}},
		{"at least one sample", Viewport{0, 3}, 10, PanFraction, Viewport{1, 4}},
		{"full range cannot move", Viewport{0, 99}, 100, PanFraction, Viewport{0, 99}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PanBy(tt.in, tt.n, tt.fraction); got != tt.want {
				t.Errorf("PanBy(%v, %d, %v) = %v, want %v", tt.in, tt.n, tt.fraction, got, tt.want)
			}
		})
	}
}

func TestDragSession(t *testing.T) {
	tests := []struct {
		name     string
		start    Viewport
		pointerX float64
		want     Viewport
	}{
		{"drag right reveals earlier", Viewport{20, 69}, 750, Viewport{16, 65}},
		{"drag left reveals later", Viewport{20, 69}, 50, Viewport{23, 72}},
		{"slides at left edge", Viewport{2, 51}, 750, Viewport{0, 49}},
		{"slides at right edge", Viewport{50, 99}, 50, Viewport{50, 99}},
		{"no movement", Viewport{20, 69}, 400, Viewport{20, 69}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := BeginDrag(tt.start, 400)
			got := d.To(tt.pointerX, 1000, 100, DragSensitivity)
			if got != tt.want {
				t.Errorf("drag to %v = %v, want %v", tt.pointerX, got, tt.want)
			}
			if got.Range() != tt.start.Range() {
				t.Errorf("drag changed range: %d -> %d", tt.start.Range(), got.Range())
			}
		})
	}
}

func TestDragSession_ZeroWidth(t *testing.T) {
	d := BeginDrag(Viewport{20, 69}, 400)
	if got := d.To(900, 0, 100, DragSensitivity); got != (Viewport{20, 69}) {
		t.Errorf("zero pixel width should keep the start window, got %v", got)
	}
}

func TestApply(t *testing.T) {
	n := 100
	v := Viewport{24, 74}
	tests := []struct {
		ev   Event
		want Viewport
	}{
		{Event{Kind: EventReset}, Viewport{0, 99}},
		{Event{Kind: EventZoomIn}, ZoomIn(v, n)},
		{Event{Kind: EventZoomOut}, Viewport{0, 99}},
		{Event{Kind: EventPanLeft}, Viewport{12, 62}},
		{Event{Kind: EventPanRight}, Viewport{36, 86}},
		{Event{Kind: EventWheel, DeltaY: -1, AnchorFraction: 0.5}, Wheel(v, n, 0.5, -1)},
		{Event{Kind: EventDragMove, PointerX: 10, PixelWidth: 100}, v},
		{Event{Kind: "bogus"}, v},
	}
	for _, tt := range tests {
		t.Run(string(tt.ev.Kind), func(t *testing.T) {
			if got := Apply(v, n, tt.ev); got != tt.want {
				t.Errorf("Apply(%v, %s) = %v, want %v", v, tt.ev.Kind, got, tt.want)
			}
		})
	}
	if got := Apply(v, 0, Event{Kind: EventZoomIn}); got != (Viewport{}) {
		t.Errorf("Apply on empty sequence = %v, want zero viewport", got)
	}
}

func TestReachableStatesHoldInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	kinds := []EventKind{
		EventReset, EventZoomIn, EventZoomOut, EventPanLeft, EventPanRight,
		EventWheel, EventDragStart, EventDragMove, EventDragEnd,
	}
	for _, n := range []int{1, 2, 9, 10, 11, 37, 100, 1000} {
		c := NewController(n)
		for i := 0; i < 5000; i++ {
			ev := Event{
				Kind:           kinds[rng.Intn(len(kinds))],
				DeltaY:         rng.Float64()*240 - 120,
				AnchorFraction: rng.Float64(),
				PointerX:       rng.Float64() * 1200,
				PixelWidth:     800,
			}
			v, ok := c.Handle(ev)
			if !ok {
				t.Fatalf("n=%d: viewport missing", n)
			}
			if v.Start < 0 || v.Start > v.End || v.End > n-1 {
				t.Fatalf("n=%d: invalid viewport %v after %s", n, v, ev.Kind)
			}
			if n >= MinRange && v.Range() < MinRange-1 {
				t.Fatalf("n=%d: window %v narrower than %d samples after %s", n, v, MinRange, ev.Kind)
			}
		}
	}
}

// Package chart turns a bet's EV records into the data behind the EV
// chart: the filtered sample sequence, sustained-EV segments, overlay
// lines, point markers, and windowed slices of all of those.
package chart

import (
	"cmp"
	"math"
	"slices"

	"github.com/rewired-gh/evgraph/internal/models"
	"github.com/rewired-gh/evgraph/internal/segment"
	"github.com/rewired-gh/evgraph/internal/viewport"
)

// LabelLayout formats sample labels as day/month/year, 24h clock.
const LabelLayout = "02/01/2006, 15:04:05"

// MarkerKind classifies how a sample point is drawn.
type MarkerKind string

const (
	MarkerNormal    MarkerKind = "normal"
	MarkerAppeared  MarkerKind = "appeared"
	MarkerPlaced    MarkerKind = "placed"
	MarkerSuspended MarkerKind = "suspended"
)

// OverlayKind names a vertical reference line.
type OverlayKind string

const (
	OverlaySessionStart OverlayKind = "session_start"
	OverlaySessionEnd   OverlayKind = "session_end"
	OverlayBetAppeared  OverlayKind = "bet_appeared"
	OverlayBetPlaced    OverlayKind = "bet_placed"
)

// Overlay is a vertical reference line at a point in time.
type Overlay struct {
	Kind   OverlayKind `json:"kind"`
	Label  string      `json:"label"`
	TimeMs int64       `json:"time"`
}

// Chart is everything needed to draw a bet's EV chart. Viewport is nil and
// Empty is true when no record survived filtering.
type Chart struct {
	BetID    string             `json:"bet_id"`
	Samples  []models.Sample    `json:"samples"`
	Markers  []MarkerKind       `json:"markers"`
	Segments []segment.Segment  `json:"segments"`
	Overlays []Overlay          `json:"overlays"`
	Viewport *viewport.Viewport `json:"viewport"`
	Stats    Stats              `json:"stats"`
	Empty    bool               `json:"empty"`
}

// N is the length of the sample sequence.
func (c *Chart) N() int {
	return len(c.Samples)
}

// BuildSamples keeps the records with a timestamp and a finite EV and maps
// them to samples ordered by time.
func BuildSamples(records []models.EVRecord) []models.Sample {
	samples := make([]models.Sample, 0, len(records))
	for _, r := range records {
		if r.Time.IsZero() || math.IsNaN(r.Profit) || math.IsInf(r.Profit, 0) {
			continue
		}
		samples = append(samples, models.Sample{
			TimestampMs:        r.Time.UnixMilli(),
			EVPercent:          r.Profit,
			Odds:               r.Koef,
			FairOdds:           r.AvgKoef,
			PinnacleOdds:       r.PinnacleKoef,
			PinnacleSuspended:  r.PinnacleSuspended,
			BookmakerSuspended: r.BookmakerSuspended,
			Label:              r.Time.UTC().Format(LabelLayout),
		})
	}
	slices.SortStableFunc(samples, func(a, b models.Sample) int {
		return cmp.Compare(a.TimestampMs, b.TimestampMs)
	})
	return samples
}

// Build assembles the chart for bet. session may be nil.
func Build(bet *models.Bet, session *models.Session, records []models.EVRecord, opts segment.Options) *Chart {
	samples := BuildSamples(records)
	c := &Chart{
		BetID:    bet.BetID,
		Samples:  samples,
		Markers:  markers(bet, samples),
		Segments: segment.Detect(samples, opts),
		Overlays: overlays(bet, session, samples),
		Stats:    summarize(samples),
	}
	if c.Segments == nil {
		c.Segments = []segment.Segment{}
	}
	if v, ok := viewport.Reset(len(samples)); ok {
		c.Viewport = &v
	} else {
		c.Empty = true
	}
	return c
}

func markers(bet *models.Bet, samples []models.Sample) []MarkerKind {
	appeared := bet.Time.UnixMilli()
	var placed int64 = -1
	if bet.PlacedAt != nil {
		placed = bet.PlacedAt.UnixMilli()
	}
	out := make([]MarkerKind, len(samples))
	for i, s := range samples {
		switch {
		case s.TimestampMs == appeared:
			out[i] = MarkerAppeared
		case s.TimestampMs == placed:
			out[i] = MarkerPlaced
		case s.Suspended():
			out[i] = MarkerSuspended
		default:
			out[i] = MarkerNormal
		}
	}
	return out
}

// overlays places the bet lines unconditionally and the session lines only
// when they fall inside the data range.
func overlays(bet *models.Bet, session *models.Session, samples []models.Sample) []Overlay {
	out := []Overlay{{Kind: OverlayBetAppeared, Label: "EV Bet Appeared", TimeMs: bet.Time.UnixMilli()}}
	if bet.PlacedAt != nil {
		out = append(out, Overlay{Kind: OverlayBetPlaced, Label: "Placed", TimeMs: bet.PlacedAt.UnixMilli()})
	}
	if session == nil || len(samples) == 0 {
		return out
	}
	lo, hi := samples[0].TimestampMs, samples[len(samples)-1].TimestampMs
	inRange := func(t int64) bool { return t >= lo && t <= hi }

	if start := session.StartTime.UnixMilli(); inRange(start) {
		out = append(out, Overlay{Kind: OverlaySessionStart, Label: "Session Start", TimeMs: start})
	}
	if session.EndTime != nil {
		if end := session.EndTime.UnixMilli(); inRange(end) {
			out = append(out, Overlay{Kind: OverlaySessionEnd, Label: "Session End", TimeMs: end})
		}
	}
	return out
}

// Window is the visible slice of a chart.
type Window struct {
	Viewport viewport.Viewport `json:"viewport"`
	Samples  []models.Sample   `json:"samples"`
	Markers  []MarkerKind      `json:"markers"`
	Segments []segment.Segment `json:"segments"`
}

// Window slices the chart to v after clamping it. ok is false for an empty
// chart.
func (c *Chart) Window(v viewport.Viewport) (Window, bool) {
	n := c.N()
	if n == 0 {
		return Window{}, false
	}
	v = viewport.Clamp(v, n)
	samples := c.Samples[v.Start : v.End+1]
	w := Window{
		Viewport: v,
		Samples:  samples,
		Segments: segment.Visible(c.Segments, samples[0].TimestampMs, samples[len(samples)-1].TimestampMs),
	}
	if len(c.Markers) == n {
		w.Markers = c.Markers[v.Start : v.End+1]
	}
	return w, true
}

package models

import (
	"fmt"
	"time"
)

// SegmentAlert is a sustained-EV segment found on a recently updated bet.
type SegmentAlert struct {
	BetID         string
	Home          string
	Away          string
	Market        string
	BookmakerName string
	EventURL      *string
	StartTime     time.Time
	EndTime       time.Time
	Level         float64
	DetectedAt    time.Time
}

// Key identifies the segment across scans.
func (a SegmentAlert) Key() string {
	return fmt.Sprintf("%s:%d", a.BetID, a.StartTime.UnixMilli())
}

// Duration is the span covered by the segment.
func (a SegmentAlert) Duration() time.Duration {
	return a.EndTime.Sub(a.StartTime)
}

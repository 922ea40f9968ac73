// Package segment finds runs of sustained high EV in a sample sequence.
package segment

import (
	"time"

	"github.com/rewired-gh/evgraph/internal/models"
)

// Segment is a maximal run of samples that opened at or above the EV
// threshold and kept going with close timestamps and non-decreasing odds.
// Level is the EV of the opening sample.
type Segment struct {
	StartTime int64   `json:"start_time"`
	EndTime   int64   `json:"end_time"`
	Level     float64 `json:"level"`
}

// Options tunes detection.
type Options struct {
	Threshold float64
	MaxGap    time.Duration
}

// DefaultOptions opens segments at 5% EV and bridges gaps up to 4s.
func DefaultOptions() Options {
	return Options{Threshold: 5.0, MaxGap: 4 * time.Second}
}

// Detect scans samples once, left to right. A sample at or above the
// threshold opens a candidate; the candidate extends while the next sample
// is at most MaxGap after the last included one and its odds are present
// and not lower. Candidates that never extend are dropped. Samples consumed
// by a segment are not reconsidered as openers, so segments never overlap.
func Detect(samples []models.Sample, opts Options) []Segment {
	maxGapMs := opts.MaxGap.Milliseconds()
	var out []Segment

	for i := 0; i < len(samples); i++ {
		open := samples[i]
		if !(open.EVPercent >= opts.Threshold) {
			continue
		}

		last := i
		for j := i + 1; j < len(samples); j++ {
			if !extends(samples[last], samples[j], maxGapMs) {
				break
			}
			last = j
		}

		if last > i {
			out = append(out, Segment{
				StartTime: open.TimestampMs,
				EndTime:   samples[last].TimestampMs,
				Level:     open.EVPercent,
			})
		}
		i = last
	}
	return out
}

func extends(prev, next models.Sample, maxGapMs int64) bool {
	if next.TimestampMs-prev.TimestampMs > maxGapMs {
		return false
	}
	if prev.Odds == nil || next.Odds == nil {
		return false
	}
	return *next.Odds >= *prev.Odds
}

// Visible returns the segments that overlap the time range [fromMs, toMs].
func Visible(segments []Segment, fromMs, toMs int64) []Segment {
	out := make([]Segment, 0, len(segments))
	for _, s := range segments {
		if s.StartTime <= toMs && s.EndTime >= fromMs {
			out = append(out, s)
		}
	}
	return out
}

package chart

import (
	"math"

	"github.com/rewired-gh/evgraph/internal/models"
)

// Stats summarizes the EV series of a chart.
type Stats struct {
	Count    int     `json:"count"`
	MeanEV   float64 `json:"mean_ev"`
	StdDevEV float64 `json:"stddev_ev"`
	MaxEV    float64 `json:"max_ev"`
	FirstMs  int64   `json:"first_time"`
	LastMs   int64   `json:"last_time"`
}

// welford keeps a running mean and sum of squared deviations.
type welford struct {
	count int
	mean  float64
	m2    float64
}

func (w *welford) add(x float64) {
	w.count++
	delta := x - w.mean
	w.mean += delta / float64(w.count)
	delta2 := x - w.mean
	w.m2 += delta * delta2
}

func (w *welford) stddev() float64 {
	if w.count < 2 {
		return 0
	}
	return math.Sqrt(w.m2 / float64(w.count-1))
}

func summarize(samples []models.Sample) Stats {
	if len(samples) == 0 {
		return Stats{}
	}
	var w welford
	maxEV := math.Inf(-1)
	for _, s := range samples {
		w.add(s.EVPercent)
		maxEV = math.Max(maxEV, s.EVPercent)
	}
	return Stats{
		Count:    w.count,
		MeanEV:   w.mean,
		StdDevEV: w.stddev(),
		MaxEV:    maxEV,
		FirstMs:  samples[0].TimestampMs,
		LastMs:   samples[len(samples)-1].TimestampMs,
	}
}

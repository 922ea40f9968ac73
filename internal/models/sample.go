package models

// Sample is one point of a bet's EV time series, as fed to the viewport
// and segment code. Odds is nil when the bookmaker had no price.
type Sample struct {
	TimestampMs        int64    `json:"time"`
	EVPercent          float64  `json:"profit"`
	Odds               *float64 `json:"koef"`
	FairOdds           float64  `json:"fair_odds"`
	PinnacleOdds       *float64 `json:"pinnacle_odds"`
	PinnacleSuspended  *bool    `json:"pinnacle_suspended"`
	BookmakerSuspended *bool    `json:"bookmaker_suspended"`
	Label              string   `json:"label"`
}

// Suspended reports whether either side had suspended the market.
func (s Sample) Suspended() bool {
	return (s.PinnacleSuspended != nil && *s.PinnacleSuspended) ||
		(s.BookmakerSuspended != nil && *s.BookmakerSuspended)
}

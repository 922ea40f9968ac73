package models

import (
	"errors"
	"time"
)

// Bet statuses that count as placed.
const (
	StatusWin     = "WIN"
	StatusLoss    = "LOSS"
	StatusPending = "PENDING"
	StatusPush    = "PUSH"
)

// PlacedStatuses lists the statuses of bets that reached the bookmaker.
var PlacedStatuses = []string{StatusWin, StatusLoss, StatusPending, StatusPush}

// IsPlaced reports whether status is one of PlacedStatuses.
func IsPlaced(status string) bool {
	for _, s := range PlacedStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// Bet is a value bet picked up by the bot. Time is when the opportunity
// appeared; PlacedAt is set once it was actually placed.
type Bet struct {
	ID              int64      `json:"id"`
	BetID           string     `json:"bet_id"`
	Profit          float64    `json:"profit"`
	Koef            float64    `json:"koef"`
	AvgKoef         float64    `json:"avg_koef"`
	LiveTime        int        `json:"live_time"`
	Home            string     `json:"home"`
	Away            string     `json:"away"`
	PinnacleEventID *int64     `json:"pinnacle_event_id"`
	CloudbetEventID *string    `json:"cloudbet_event_id"`
	SportName       *string    `json:"sport_name"`
	LeagueName      *string    `json:"league_name"`
	Market          string     `json:"market"`
	PinnacleMarket  string     `json:"pinnacle_market"`
	Probability     float64    `json:"probability"`
	BookmakerName   string     `json:"bookmaker_name"`
	PeriodID        int        `json:"period_id"`
	Time            time.Time  `json:"time"`
	Status          string     `json:"status"`
	Batch           int        `json:"batch"`
	KellyFraction   *float64   `json:"kelly_fraction"`
	BetSize         *float64   `json:"bet_size"`
	Strategy        *string    `json:"strategy"`
	WinAmount       *float64   `json:"win_amount"`
	UpdatedAt       *time.Time `json:"updated_at"`
	PlacedAt        *time.Time `json:"placed_at"`
	EventURL        *string    `json:"event_url"`
	EventTime       *string    `json:"event_time"`
}

// Validate checks bet field constraints.
func (b *Bet) Validate() error {
	if b.BetID == "" {
		return errors.New("bet ID must not be empty")
	}
	if b.Time.IsZero() {
		return errors.New("bet time must be set")
	}
	if b.Market == "" {
		return errors.New("market must not be empty")
	}
	if b.Koef < 0 || b.AvgKoef < 0 {
		return errors.New("odds must not be negative")
	}
	return nil
}

// EVRecord is one EV observation for a bet's market. Profit is the EV in
// percent; AvgKoef is the fair odds.
type EVRecord struct {
	ID                 int64     `json:"id"`
	BetID              string    `json:"bet_id"`
	Profit             float64   `json:"profit"`
	AvgKoef            float64   `json:"avg_koef"`
	Koef               *float64  `json:"koef"`
	PinnacleKoef       *float64  `json:"pinnacle_koef"`
	LiveTime           int       `json:"live_time"`
	PinnacleEventID    *int64    `json:"pinnacle_event_id"`
	CloudbetEventID    *string   `json:"cloudbet_event_id"`
	SportName          *string   `json:"sport_name"`
	EventName          *string   `json:"event_name"`
	Market             string    `json:"market"`
	PinnacleMarket     string    `json:"pinnacle_market"`
	Probability        float64   `json:"probability"`
	EVNoVig            float64   `json:"ev_no_vig"`
	BookmakerName      string    `json:"bookmaker_name"`
	Time               time.Time `json:"time"`
	Status             string    `json:"status"`
	Batch              int       `json:"batch"`
	Home               string    `json:"home"`
	Away               string    `json:"away"`
	PinnacleSuspended  *bool     `json:"pinnacle_suspended"`
	BookmakerSuspended *bool     `json:"bookmaker_suspended"`
	EventURL           *string   `json:"event_url"`
}

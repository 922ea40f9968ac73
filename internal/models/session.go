// Package models defines the domain entities: bot sessions, bets, EV
// records, and the chart samples derived from them.
package models

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Session is one run of the betting bot, bounded by StartTime and an
// optional EndTime. A nil EndTime means the session is still open.
type Session struct {
	ID                   int64           `json:"id"`
	StartTime            time.Time       `json:"start_time"`
	EndTime              *time.Time      `json:"end_time"`
	StartTotalBalance    float64         `json:"start_total_balance"`
	EndTotalBalance      *float64        `json:"end_total_balance"`
	AccountsStartBalance json.RawMessage `json:"accounts_start_balance"`
	AccountsEndBalance   json.RawMessage `json:"accounts_end_balance"`
	ActiveAccounts       json.RawMessage `json:"active_accounts"`
	IsActive             bool            `json:"is_active"`
	OddsRanges           json.RawMessage `json:"odds_ranges"`
	ProfitPercent        *float64        `json:"profit_percent"`
	ProfitFormula        *string         `json:"profit_formula"`
	Strategy             *string         `json:"strategy"`
	MaxBet               *float64        `json:"max_bet"`
}

// Validate checks session field constraints.
func (s *Session) Validate() error {
	if s.StartTime.IsZero() {
		return errors.New("session start time must be set")
	}
	if s.EndTime != nil && s.EndTime.Before(s.StartTime) {
		return errors.New("session end time must not precede start time")
	}
	if s.StartTotalBalance < 0 {
		return errors.New("start total balance must not be negative")
	}
	return nil
}

// Contains reports whether t falls inside the session window.
func (s *Session) Contains(t time.Time) bool {
	if t.Before(s.StartTime) {
		return false
	}
	return s.EndTime == nil || !t.After(*s.EndTime)
}

// BalanceChange is the end balance minus the start balance, computed in
// decimal so cents do not drift. ok is false while the session is open.
func (s *Session) BalanceChange() (decimal.Decimal, bool) {
	if s.EndTotalBalance == nil {
		return decimal.Zero, false
	}
	end := decimal.NewFromFloat(*s.EndTotalBalance)
	start := decimal.NewFromFloat(s.StartTotalBalance)
	return end.Sub(start).Round(2), true
}

// SessionStats counts the bets that fall inside a session.
type SessionStats struct {
	TotalBets  int `json:"total_bets"`
	PlacedBets int `json:"placed_bets"`
}

// SessionSummary is the list view of a session. Stats is nil when the
// caller did not ask for them.
type SessionSummary struct {
	Session
	*SessionStats
	BalanceChange *decimal.Decimal `json:"balance_change,omitempty"`
}

// Summarize builds the list view of s.
func Summarize(s Session, stats *SessionStats) SessionSummary {
	sum := SessionSummary{Session: s, SessionStats: stats}
	if change, ok := s.BalanceChange(); ok {
		sum.BalanceChange = &change
	}
	return sum
}

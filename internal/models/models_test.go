package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestSessionValidate(t *testing.T) {
	now := time.Now()
	before := now.Add(-time.Hour)
	tests := []struct {
		name    string
		session Session
		wantErr bool
	}{
		{"valid open session", Session{StartTime: now}, false},
		{"valid closed session", Session{StartTime: before, EndTime: &now}, false},
		{"missing start", Session{}, true},
		{"end before start", Session{StartTime: now, EndTime: &before}, true},
		{"negative balance", Session{StartTime: now, StartTotalBalance: -1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.session.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Session.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSessionContains(t *testing.T) {
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)
	closed := Session{StartTime: start, EndTime: &end}
	open := Session{StartTime: start}

	if closed.Contains(start.Add(-time.Second)) {
		t.Error("time before start should be outside")
	}
	if !closed.Contains(start) || !closed.Contains(end) {
		t.Error("window bounds should be inclusive")
	}
	if closed.Contains(end.Add(time.Second)) {
		t.Error("time after end should be outside")
	}
	if !open.Contains(end.Add(24 * time.Hour)) {
		t.Error("open session should contain any later time")
	}
}

func TestSessionBalanceChange(t *testing.T) {
	s := Session{StartTime: time.Now(), StartTotalBalance: 100.10}
	if _, ok := s.BalanceChange(); ok {
		t.Error("open session should have no balance change")
	}
	end := 150.35
	s.EndTotalBalance = &end
	change, ok := s.BalanceChange()
	if !ok {
		t.Fatal("expected balance change")
	}
	if change.String() != "50.25" {
		t.Errorf("balance change = %s, want 50.25", change.String())
	}
}

func TestSummarizeJSON(t *testing.T) {
	s := Session{ID: 7, StartTime: time.Now()}

	raw, err := json.Marshal(Summarize(s, nil))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(raw), "total_bets") {
		t.Errorf("stats should be omitted when nil: %s", raw)
	}

	raw, err = json.Marshal(Summarize(s, &SessionStats{TotalBets: 3, PlacedBets: 1}))
	if err != nil {
		t.Fatal(err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded["id"].(float64) != 7 || decoded["total_bets"].(float64) != 3 || decoded["placed_bets"].(float64) != 1 {
		t.Errorf("unexpected summary JSON: %s", raw)
	}
}

func TestBetValidate(t *testing.T) {
	valid := Bet{BetID: "b-1", Time: time.Now(), Market: "1X2", Koef: 2.1, AvgKoef: 1.9}
	if err := valid.Validate(); err != nil {
		t.Errorf("valid bet rejected: %v", err)
	}
	noID := valid
	noID.BetID = ""
	if err := noID.Validate(); err == nil {
		t.Error("expected error for empty bet ID")
	}
	noTime := valid
	noTime.Time = time.Time{}
	if err := noTime.Validate(); err == nil {
		t.Error("expected error for zero time")
	}
}

func TestIsPlaced(t *testing.T) {
	for _, s := range []string{"WIN", "LOSS", "PENDING", "PUSH"} {
		if !IsPlaced(s) {
			t.Errorf("%s should count as placed", s)
		}
	}
	for _, s := range []string{"created", "", "win"} {
		if IsPlaced(s) {
			t.Errorf("%q should not count as placed", s)
		}
	}
}

func TestSampleSuspended(t *testing.T) {
	yes, no := true, false
	tests := []struct {
		name   string
		sample Sample
		want   bool
	}{
		{"no flags", Sample{}, false},
		{"both false", Sample{PinnacleSuspended: &no, BookmakerSuspended: &no}, false},
		{"pinnacle", Sample{PinnacleSuspended: &yes}, true},
		{"bookmaker", Sample{BookmakerSuspended: &yes}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.sample.Suspended(); got != tt.want {
				t.Errorf("Suspended() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSegmentAlertKey(t *testing.T) {
	start := time.Date(2026, 3, 14, 12, 0, 1, 500_000_000, time.UTC)
	a := SegmentAlert{BetID: "b1", StartTime: start, EndTime: start.Add(8 * time.Second)}
	if got := a.Key(); got != "b1:1773489601500" {
		t.Errorf("Key() = %q", got)
	}
	if a.Duration() != 8*time.Second {
		t.Errorf("Duration() = %v", a.Duration())
	}
	later := a
	later.StartTime = start.Add(time.Millisecond)
	if later.Key() == a.Key() {
		t.Error("segments with different starts must have different keys")
	}
}

package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rewired-gh/evgraph/internal/chart"
	"github.com/rewired-gh/evgraph/internal/models"
	"github.com/rewired-gh/evgraph/internal/segment"
	"github.com/rewired-gh/evgraph/internal/storage"
)

func TestEscapeMarkdownV2(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Hello World", "Hello World"},
		{"Hello_World", "Hello\\_World"},
		{"Test*bold*", "Test\\*bold\\*"},
		{"EV: 6.25%", "EV: 6\\.25%"},
		{"[link](url)", "\\[link\\]\\(url\\)"},
		{"~strikethrough~", "\\~strikethrough\\~"},
		{"`code`", "\\`code\\`"},
		{">blockquote", "\\>blockquote"},
		{"#header", "\\#header"},
		{"+plus-minus", "\\+plus\\-minus"},
		{"=equal|pipe", "\\=equal\\|pipe"},
		{"{brace}", "\\{brace\\}"},
		{"end!", "end\\!"},
		{"", ""},
		{"_*[]()~`>#+-=|{}.!", "\\_\\*\\[\\]\\(\\)\\~\\`\\>\\#\\+\\-\\=\\|\\{\\}\\.\\!"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := escapeMarkdownV2(tt.input)
			if result != tt.expected {
				t.Errorf("escapeMarkdownV2(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestNewClient_InvalidChatID(t *testing.T) {
	_, err := NewClient("", "not-a-number", 3, time.Second)
	if err == nil {
		t.Error("Expected error for invalid chat ID, got nil")
	}
}

func TestFormatSegments(t *testing.T) {
	start := time.Date(2026, 3, 14, 12, 0, 1, 0, time.UTC)
	url := "https://example.com/event/1"
	alerts := []models.SegmentAlert{
		{
			BetID:         "bet_1",
			Home:          "St. Pauli",
			Away:          "Hamburg",
			Market:        "1X2",
			BookmakerName: "cloudbet",
			EventURL:      &url,
			StartTime:     start,
			EndTime:       start.Add(8 * time.Second),
			Level:         6.3,
			DetectedAt:    start.Add(time.Minute),
		},
		{
			BetID:     "bet-2",
			Home:      "A",
			Away:      "B",
			Market:    "total",
			StartTime: start,
			EndTime:   start.Add(90 * time.Second),
			Level:     5,
		},
	}

	msg := formatSegments(alerts)
	for _, want := range []string{
		"*Sustained EV Segments*",
		"📅 Detected: 2026\\-03\\-14 12:01:01 UTC",
		"1\\. [St\\. Pauli vs Hamburg](https://example.com/event/1)",
		"🎯 1X2 @ cloudbet \\(`bet\\_1`\\)",
		"*6\\.3%* for 8s \\(12:00:01 → 12:00:09\\)",
		"2\\. A vs B\n",
		"*5\\.0%* for 1m30s",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q:\n%s", want, msg)
		}
	}
}

func chartWithSegments(n int) *chart.Chart {
	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC).UnixMilli()
	c := &chart.Chart{BetID: "b1", Stats: chart.Stats{Count: 40, MeanEV: 3.5, MaxEV: 7.25}}
	for i := 0; i < n; i++ {
		from := base + int64(i)*60_000
		c.Segments = append(c.Segments, segment.Segment{StartTime: from, EndTime: from + 5000, Level: 7.4})
	}
	return c
}

func TestEVReply(t *testing.T) {
	lookupOf := func(c *chart.Chart, err error) ChartLookup {
		return func(context.Context, string) (*chart.Chart, error) { return c, err }
	}

	tests := []struct {
		name   string
		lookup ChartLookup
		args   string
		want   []string
	}{
		{"disabled", nil, "b1", []string{"not enabled"}},
		{"usage", lookupOf(nil, nil), "  ", []string{"Usage: /ev <bet\\_id>"}},
		{"too many args", lookupOf(nil, nil), "a b", []string{"Usage"}},
		{"not found", lookupOf(nil, fmt.Errorf("bet x: %w", storage.ErrNotFound)), "x", []string{"Bet `x` not found"}},
		{"failure", lookupOf(nil, errors.New("boom")), "x", []string{"Lookup failed"}},
		{"empty chart", lookupOf(&chart.Chart{Empty: true}, nil), "b1", []string{"No EV records for bet `b1`"}},
		{"no segments", lookupOf(chartWithSegments(0), nil), "b1", []string{"40 samples", "No sustained segments"}},
		{"segments", lookupOf(chartWithSegments(2), nil), "b1", []string{
			"*EV segments for* `b1`",
			"max 7\\.25%",
			"1\\. *7\\.4%* for 5s \\(12:00:00 → 12:00:05 UTC\\)",
			"2\\. *7\\.4%* for 5s \\(12:01:00 → 12:01:05 UTC\\)",
		}},
		{"capped", lookupOf(chartWithSegments(13), nil), "b1", []string{"10\\. ", "and 3 more"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := evReply(context.Background(), tt.lookup, tt.args)
			for _, want := range tt.want {
				if !strings.Contains(got, want) {
					t.Errorf("reply missing %q:\n%s", want, got)
				}
			}
		})
	}
}

// Package monitor periodically scans recently updated bets for new
// sustained-EV segments.
package monitor

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rewired-gh/evgraph/internal/chart"
	"github.com/rewired-gh/evgraph/internal/logger"
	"github.com/rewired-gh/evgraph/internal/models"
	"github.com/rewired-gh/evgraph/internal/segment"
	"github.com/rewired-gh/evgraph/internal/storage"
)

type Config struct {
	Lookback           time.Duration
	TopK               int
	CooldownMultiplier int
	BetLimit           int
	Segment            segment.Options
}

func DefaultConfig() Config {
	return Config{
		Lookback:           15 * time.Minute,
		TopK:               10,
		CooldownMultiplier: 30,
		BetLimit:           500,
		Segment:            segment.DefaultOptions(),
	}
}

// Notifier delivers alerts and cycle health to a chat.
type Notifier interface {
	SendSegments(alerts []models.SegmentAlert) error
	SendError(err error) error
	SendRecovery(failures int) error
}

type Monitor struct {
	store            storage.Store
	notifiedSegments map[string]time.Time
	config           Config
	now              func() time.Time
}

func New(s storage.Store, config Config) *Monitor {
	return &Monitor{
		store:            s,
		notifiedSegments: make(map[string]time.Time),
		config:           config,
		now:              time.Now,
	}
}

// Scan returns every segment that ended within the lookback on a bet
// updated within the lookback.
func (m *Monitor) Scan(ctx context.Context) ([]models.SegmentAlert, error) {
	now := m.now()
	since := now.Add(-m.config.Lookback)

	bets, err := m.store.BetsUpdatedSince(ctx, since, m.config.BetLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load updated bets: %w", err)
	}
	logger.Debug("Scanning %d bets updated since %s", len(bets), since.Format(time.RFC3339))

	var alerts []models.SegmentAlert
	for i := range bets {
		bet := &bets[i]
		records, err := m.store.EVRecordsForBet(ctx, bet)
		if err != nil {
			return nil, fmt.Errorf("failed to load EV records for bet %s: %w", bet.BetID, err)
		}
		for _, seg := range segment.Detect(chart.BuildSamples(records), m.config.Segment) {
			if seg.EndTime < since.UnixMilli() {
				continue
			}
			alerts = append(alerts, alertFor(bet, seg, now))
		}
	}
	return alerts, nil
}

func alertFor(bet *models.Bet, seg segment.Segment, now time.Time) models.SegmentAlert {
	return models.SegmentAlert{
		BetID:         bet.BetID,
		Home:          bet.Home,
		Away:          bet.Away,
		Market:        bet.Market,
		BookmakerName: bet.BookmakerName,
		EventURL:      bet.EventURL,
		StartTime:     time.UnixMilli(seg.StartTime).UTC(),
		EndTime:       time.UnixMilli(seg.EndTime).UTC(),
		Level:         seg.Level,
		DetectedAt:    now,
	}
}

// FilterRecentlySent drops alerts notified within cooldown and forgets
// notifications older than that.
func (m *Monitor) FilterRecentlySent(alerts []models.SegmentAlert, cooldown time.Duration) []models.SegmentAlert {
	now := m.now()
	for key, sentAt := range m.notifiedSegments {
		if now.Sub(sentAt) >= cooldown {
			delete(m.notifiedSegments, key)
		}
	}

	var result []models.SegmentAlert
	for _, alert := range alerts {
		if _, sent := m.notifiedSegments[alert.Key()]; sent {
			continue
		}
		result = append(result, alert)
	}
	return result
}

func (m *Monitor) RecordNotified(alerts []models.SegmentAlert) {
	now := m.now()
	for _, alert := range alerts {
		m.notifiedSegments[alert.Key()] = now
	}
}

// PostProcessAlerts keeps unsent alerts, strongest first, capped at TopK.
func (m *Monitor) PostProcessAlerts(alerts []models.SegmentAlert, pollInterval time.Duration) []models.SegmentAlert {
	cooldown := time.Duration(m.config.CooldownMultiplier) * pollInterval
	alerts = m.FilterRecentlySent(alerts, cooldown)

	sort.SliceStable(alerts, func(i, j int) bool {
		if alerts[i].Level != alerts[j].Level {
			return alerts[i].Level > alerts[j].Level
		}
		return alerts[i].Duration() > alerts[j].Duration()
	})

	if len(alerts) > m.config.TopK {
		alerts = alerts[:m.config.TopK]
	}
	return alerts
}

// RunCycle scans, post-processes and notifies. Alerts are recorded as
// notified only once the notifier accepted them. A nil notifier only logs.
func (m *Monitor) RunCycle(ctx context.Context, pollInterval time.Duration, notifier Notifier) error {
	startTime := time.Now()
	logger.Info("Starting segment scan")

	alerts, err := m.Scan(ctx)
	if err != nil {
		return err
	}
	logger.Info("Detected %d segments in lookback window", len(alerts))

	alerts = m.PostProcessAlerts(alerts, pollInterval)
	if len(alerts) == 0 {
		logger.Info("No new segments this cycle")
	} else if notifier == nil {
		logger.Debug("%d new segments but notifications are disabled", len(alerts))
	} else if err := notifier.SendSegments(alerts); err != nil {
		logger.Error("Failed to send segment notification: %v", err)
	} else {
		logger.Info("Sent notification with %d segments", len(alerts))
		m.RecordNotified(alerts)
	}

	logger.Info("Segment scan completed in %v", time.Since(startTime))
	return nil
}

// Run executes a cycle immediately and then every pollInterval until ctx
// is done. The first failure of a streak and the recovery that ends it are
// reported to the notifier.
func (m *Monitor) Run(ctx context.Context, pollInterval time.Duration, notifier Notifier) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	consecutiveFailures := 0
	handleCycleResult := func(err error) {
		if err != nil {
			consecutiveFailures++
			logger.Error("Segment scan failed: %v", err)
			if consecutiveFailures == 1 && notifier != nil {
				if sendErr := notifier.SendError(err); sendErr != nil {
					logger.Warn("Failed to send error notification: %v", sendErr)
				}
			}
			return
		}
		if consecutiveFailures > 0 && notifier != nil {
			if sendErr := notifier.SendRecovery(consecutiveFailures); sendErr != nil {
				logger.Warn("Failed to send recovery notification: %v", sendErr)
			}
		}
		consecutiveFailures = 0
	}

	handleCycleResult(m.RunCycle(ctx, pollInterval, notifier))
	for {
		select {
		case <-ctx.Done():
			logger.Info("Monitor stopped")
			return
		case <-ticker.C:
			handleCycleResult(m.RunCycle(ctx, pollInterval, notifier))
		}
	}
}

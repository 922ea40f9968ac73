// Package storage reads bot sessions, bets and EV records from SQLite or
// Postgres.
package storage

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/rewired-gh/evgraph/internal/models"
)

// ErrNotFound is returned (wrapped) when a session or bet does not exist.
var ErrNotFound = errors.New("not found")

// Store is the read side used by the API, the monitor and the Telegram
// commands. Implementations are safe for concurrent use.
type Store interface {
	// ListSessions returns sessions newest first. limit <= 0 means no limit.
	ListSessions(ctx context.Context, limit int) ([]models.Session, error)
	// SessionStats counts bets per session. Sessions without bets are
	// absent from the result.
	SessionStats(ctx context.Context, ids []int64) (map[int64]models.SessionStats, error)
	GetSession(ctx context.Context, id int64) (*models.Session, error)
	// SessionBets returns the bets that appeared or were placed inside the
	// session window, oldest update first. An unknown session has no bets.
	SessionBets(ctx context.Context, sessionID int64, limit int) ([]models.Bet, error)
	GetBet(ctx context.Context, betID string) (*models.Bet, error)
	// EVRecordsForBet returns every EV observation of the bet's market,
	// oldest first.
	EVRecordsForBet(ctx context.Context, bet *models.Bet) ([]models.EVRecord, error)
	// BetsUpdatedSince returns bets whose last update (or creation when
	// never updated) is at or after since, oldest first.
	BetsUpdatedSince(ctx context.Context, since time.Time, limit int) ([]models.Bet, error)
	Ping(ctx context.Context) error
	Close() error
}

// queryArgs collects bind values and renders placeholders for the driver.
type queryArgs struct {
	vals   []any
	dollar bool
	conv   func(time.Time) any
}

func (a *queryArgs) add(v any) string {
	if t, ok := v.(time.Time); ok && a.conv != nil {
		v = a.conv(t)
	}
	a.vals = append(a.vals, v)
	if a.dollar {
		return "$" + strconv.Itoa(len(a.vals))
	}
	return "?"
}

func (a *queryArgs) list(ids []int64) string {
	ph := make([]string, len(ids))
	for i, id := range ids {
		ph[i] = a.add(id)
	}
	return strings.Join(ph, ",")
}

const placedStatusList = `'WIN','LOSS','PENDING','PUSH'`

const betCols = `id, bet_id, profit, koef, avg_koef, live_time, home, away,
	pinnacle_event_id, cloudbet_event_id, sport_name, league_name, market,
	pinnacle_market, probability, bookmaker_name, period_id, time, status, batch,
	kelly_fraction, bet_size, strategy, win_amount, updated_at, placed_at,
	event_url, event_time`

const sessionCols = `id, start_time, end_time, start_total_balance, end_total_balance,
	accounts_start_balance, accounts_end_balance, active_accounts, is_active,
	odds_ranges, profit_percent, profit_formula, strategy, max_bet`

const evCols = `id, bet_id, profit, avg_koef, koef, pinnacle_koef, live_time,
	pinnacle_event_id, cloudbet_event_id, sport_name, event_name, market,
	pinnacle_market, probability, ev_no_vig, bookmaker_name, time, status, batch,
	home, away, pinnacle_suspended, bookmaker_suspended, event_url`

// sessionWindow matches bets placed or appearing inside [start, end]. A nil
// end leaves the window open. Each column is checked against both bounds on
// its own, so a bet placed before start that appears after end is excluded.
func sessionWindow(a *queryArgs, s *models.Session) string {
	if s.EndTime == nil {
		return "((placed_at IS NOT NULL AND placed_at >= " + a.add(s.StartTime) +
			") OR time >= " + a.add(s.StartTime) + ")"
	}
	return "((placed_at IS NOT NULL AND placed_at >= " + a.add(s.StartTime) +
		" AND placed_at <= " + a.add(*s.EndTime) +
		") OR (time >= " + a.add(s.StartTime) + " AND time <= " + a.add(*s.EndTime) + "))"
}

// evFilter matches EV records by bet ID, by Pinnacle event and market, or
// by Cloudbet event and market, using only the keys the bet carries.
func evFilter(a *queryArgs, bet *models.Bet) string {
	conds := []string{"bet_id = " + a.add(bet.BetID)}
	if bet.PinnacleEventID != nil && *bet.PinnacleEventID != 0 && bet.PinnacleMarket != "" {
		conds = append(conds, "(pinnacle_event_id = "+a.add(*bet.PinnacleEventID)+
			" AND pinnacle_market = "+a.add(bet.PinnacleMarket)+")")
	}
	if bet.CloudbetEventID != nil && *bet.CloudbetEventID != "" && bet.Market != "" {
		conds = append(conds, "(cloudbet_event_id = "+a.add(*bet.CloudbetEventID)+
			" AND market = "+a.add(bet.Market)+")")
	}
	return strings.Join(conds, " OR ")
}

// statsQuery counts total and placed bets per session in one grouped scan.
func statsQuery(a *queryArgs, ids []int64) string {
	return `
		SELECT s.id,
		       COUNT(b.id),
		       COUNT(CASE WHEN b.status IN (` + placedStatusList + `) THEN 1 END)
		FROM bot_sessions s
		LEFT JOIN bothub_bets b ON (
			(b.placed_at IS NOT NULL AND b.placed_at >= s.start_time
			 AND (s.end_time IS NULL OR b.placed_at <= s.end_time))
			OR
			(b.time >= s.start_time AND (s.end_time IS NULL OR b.time <= s.end_time))
		)
		WHERE s.id IN (` + a.list(ids) + `)
		GROUP BY s.id`
}

func limitClause(a *queryArgs, limit int) string {
	if limit <= 0 {
		return ""
	}
	return " LIMIT " + a.add(limit)
}

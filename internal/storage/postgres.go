package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rewired-gh/evgraph/internal/logger"
	"github.com/rewired-gh/evgraph/internal/models"
)

// Postgres reads the bot's own database through a pgx connection pool.
type Postgres struct {
	pool      *pgxpool.Pool
	closeOnce sync.Once
}

var _ Store = (*Postgres)(nil)

// PostgresOptions tunes the connection pool.
type PostgresOptions struct {
	MinConns       int32
	MaxConns       int32
	ConnectTimeout time.Duration
}

// NewPostgres connects to connURL and verifies the connection with a ping.
func NewPostgres(ctx context.Context, connURL string, opts PostgresOptions) (*Postgres, error) {
	poolConfig, err := pgxpool.ParseConfig(connURL)
	if err != nil {
		return nil, fmt.Errorf("invalid postgres config: %w", err)
	}
	if opts.MaxConns > 0 {
		poolConfig.MaxConns = opts.MaxConns
	}
	poolConfig.MinConns = opts.MinConns
	poolConfig.ConnConfig.ConnectTimeout = opts.ConnectTimeout

	ctxTimeout := ctx
	if opts.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctxTimeout, cancel = context.WithTimeout(ctx, opts.ConnectTimeout)
		defer cancel()
	}

	pool, err := pgxpool.NewWithConfig(ctxTimeout, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctxTimeout); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}

	logger.Info("Postgres pool ready: host=%s port=%d db=%s max_conns=%d",
		poolConfig.ConnConfig.Host, poolConfig.ConnConfig.Port,
		poolConfig.ConnConfig.Database, poolConfig.MaxConns)

	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Close() error {
	p.closeOnce.Do(p.pool.Close)
	return nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// EnsureSchema creates the bot tables when they are missing. The bot owns
// the schema in production; this is for fresh databases.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS bot_sessions (
			id                     BIGSERIAL PRIMARY KEY,
			start_time             TIMESTAMPTZ NOT NULL,
			end_time               TIMESTAMPTZ,
			start_total_balance    DOUBLE PRECISION NOT NULL,
			end_total_balance      DOUBLE PRECISION,
			accounts_start_balance JSON,
			accounts_end_balance   JSON,
			active_accounts        JSON,
			is_active              BOOLEAN NOT NULL DEFAULT TRUE,
			odds_ranges            JSON,
			profit_percent         DOUBLE PRECISION,
			profit_formula         TEXT,
			strategy               TEXT,
			max_bet                DOUBLE PRECISION
		)`,
		`CREATE TABLE IF NOT EXISTS bothub_bets (
			id                BIGSERIAL PRIMARY KEY,
			bet_id            TEXT NOT NULL,
			profit            DOUBLE PRECISION NOT NULL,
			koef              DOUBLE PRECISION NOT NULL,
			avg_koef          DOUBLE PRECISION NOT NULL,
			live_time         INTEGER NOT NULL DEFAULT 1,
			home              TEXT NOT NULL,
			away              TEXT NOT NULL,
			pinnacle_event_id BIGINT,
			cloudbet_event_id TEXT,
			sport_name        TEXT,
			league_name       TEXT,
			market            TEXT NOT NULL,
			pinnacle_market   TEXT NOT NULL,
			probability       DOUBLE PRECISION NOT NULL,
			bookmaker_name    TEXT NOT NULL,
			period_id         INTEGER NOT NULL,
			time              TIMESTAMPTZ NOT NULL,
			status            TEXT NOT NULL DEFAULT 'created',
			batch             INTEGER NOT NULL,
			kelly_fraction    DOUBLE PRECISION,
			bet_size          DOUBLE PRECISION,
			strategy          TEXT,
			win_amount        DOUBLE PRECISION,
			updated_at        TIMESTAMPTZ DEFAULT now(),
			placed_at         TIMESTAMPTZ,
			event_url         TEXT,
			event_time        TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS ev_bets (
			id                  BIGSERIAL PRIMARY KEY,
			bet_id              TEXT NOT NULL,
			profit              DOUBLE PRECISION NOT NULL,
			avg_koef            DOUBLE PRECISION NOT NULL,
			koef                DOUBLE PRECISION,
			pinnacle_koef       DOUBLE PRECISION,
			live_time           INTEGER NOT NULL,
			pinnacle_event_id   BIGINT,
			cloudbet_event_id   TEXT,
			sport_name          TEXT,
			event_name          TEXT,
			market              TEXT NOT NULL,
			pinnacle_market     TEXT NOT NULL,
			probability         DOUBLE PRECISION NOT NULL,
			ev_no_vig           DOUBLE PRECISION NOT NULL,
			bookmaker_name      TEXT NOT NULL,
			time                TIMESTAMPTZ NOT NULL,
			status              TEXT NOT NULL DEFAULT 'created',
			batch               INTEGER NOT NULL,
			home                TEXT NOT NULL,
			away                TEXT NOT NULL,
			pinnacle_suspended  BOOLEAN,
			bookmaker_suspended BOOLEAN,
			event_url           TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ev_bets_bet_id ON ev_bets(bet_id)`,
		`CREATE INDEX IF NOT EXISTS idx_ev_bets_pinnacle ON ev_bets(pinnacle_event_id, pinnacle_market)`,
		`CREATE INDEX IF NOT EXISTS idx_ev_bets_cloudbet ON ev_bets(cloudbet_event_id, market)`,
	}
	for _, stmt := range stmts {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

func (p *Postgres) args() *queryArgs {
	return &queryArgs{dollar: true}
}

// pgSessionCols reads JSON columns as text so NULL and malformed values
// reach the caller untouched.
const pgSessionCols = `id, start_time, end_time, start_total_balance, end_total_balance,
	accounts_start_balance::text, accounts_end_balance::text, active_accounts::text, is_active,
	odds_ranges::text, profit_percent, profit_formula, strategy, max_bet`

func (p *Postgres) ListSessions(ctx context.Context, limit int) ([]models.Session, error) {
	a := p.args()
	rows, err := p.pool.Query(ctx,
		`SELECT `+pgSessionCols+` FROM bot_sessions ORDER BY start_time DESC`+limitClause(a, limit),
		a.vals...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()
	sessions := []models.Session{}
	for rows.Next() {
		sess, err := scanPgSession(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, *sess)
	}
	return sessions, rows.Err()
}

func (p *Postgres) SessionStats(ctx context.Context, ids []int64) (map[int64]models.SessionStats, error) {
	stats := make(map[int64]models.SessionStats, len(ids))
	if len(ids) == 0 {
		return stats, nil
	}
	a := p.args()
	rows, err := p.pool.Query(ctx, statsQuery(a, ids), a.vals...)
	if err != nil {
		return nil, fmt.Errorf("failed to query session stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id, total, placed int64
		if err := rows.Scan(&id, &total, &placed); err != nil {
			return nil, fmt.Errorf("failed to scan session stats: %w", err)
		}
		stats[id] = models.SessionStats{TotalBets: int(total), PlacedBets: int(placed)}
	}
	return stats, rows.Err()
}

func (p *Postgres) GetSession(ctx context.Context, id int64) (*models.Session, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+pgSessionCols+` FROM bot_sessions WHERE id = $1`, id)
	sess, err := scanPgSession(row.Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("session %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return sess, nil
}

func (p *Postgres) SessionBets(ctx context.Context, sessionID int64, limit int) ([]models.Bet, error) {
	sess, err := p.GetSession(ctx, sessionID)
	if errors.Is(err, ErrNotFound) {
		return []models.Bet{}, nil
	}
	if err != nil {
		return nil, err
	}
	a := p.args()
	query := `SELECT ` + betCols + ` FROM bothub_bets WHERE ` + sessionWindow(a, sess) +
		` ORDER BY updated_at ASC NULLS LAST, id ASC` + limitClause(a, limit)
	return p.queryBets(ctx, query, a.vals...)
}

func (p *Postgres) GetBet(ctx context.Context, betID string) (*models.Bet, error) {
	// bet_id is not unique in the bot schema; the first row wins
	row := p.pool.QueryRow(ctx,
		`SELECT `+betCols+` FROM bothub_bets WHERE bet_id = $1 ORDER BY id ASC LIMIT 1`, betID)
	bet, err := scanPgBet(row.Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("bet %s: %w", betID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bet: %w", err)
	}
	return bet, nil
}

func (p *Postgres) EVRecordsForBet(ctx context.Context, bet *models.Bet) ([]models.EVRecord, error) {
	a := p.args()
	rows, err := p.pool.Query(ctx,
		`SELECT `+evCols+` FROM ev_bets WHERE `+evFilter(a, bet)+` ORDER BY time ASC, id ASC`,
		a.vals...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ev records: %w", err)
	}
	defer rows.Close()
	records := []models.EVRecord{}
	for rows.Next() {
		r, err := scanPgEVRecord(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ev record: %w", err)
		}
		records = append(records, *r)
	}
	return records, rows.Err()
}

func (p *Postgres) BetsUpdatedSince(ctx context.Context, since time.Time, limit int) ([]models.Bet, error) {
	a := p.args()
	query := `SELECT ` + betCols + ` FROM bothub_bets WHERE COALESCE(updated_at, time) >= ` + a.add(since) +
		` ORDER BY COALESCE(updated_at, time) ASC, id ASC` + limitClause(a, limit)
	return p.queryBets(ctx, query, a.vals...)
}

func (p *Postgres) queryBets(ctx context.Context, query string, args ...any) ([]models.Bet, error) {
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bets: %w", err)
	}
	defer rows.Close()
	bets := []models.Bet{}
	for rows.Next() {
		b, err := scanPgBet(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bet: %w", err)
		}
		bets = append(bets, *b)
	}
	return bets, rows.Err()
}

func scanPgSession(scan func(...any) error) (*models.Session, error) {
	var sess models.Session
	var startBal, endBal, active, odds *string
	err := scan(
		&sess.ID, &sess.StartTime, &sess.EndTime, &sess.StartTotalBalance, &sess.EndTotalBalance,
		&startBal, &endBal, &active, &sess.IsActive,
		&odds, &sess.ProfitPercent, &sess.ProfitFormula, &sess.Strategy, &sess.MaxBet,
	)
	if err != nil {
		return nil, err
	}
	sess.StartTime = sess.StartTime.UTC()
	sess.EndTime = utcOrNil(sess.EndTime)
	sess.AccountsStartBalance = rawFromText(startBal)
	sess.AccountsEndBalance = rawFromText(endBal)
	sess.ActiveAccounts = rawFromText(active)
	sess.OddsRanges = rawFromText(odds)
	return &sess, nil
}

func scanPgBet(scan func(...any) error) (*models.Bet, error) {
	var b models.Bet
	var liveTime, periodID, batch int32
	err := scan(
		&b.ID, &b.BetID, &b.Profit, &b.Koef, &b.AvgKoef, &liveTime, &b.Home, &b.Away,
		&b.PinnacleEventID, &b.CloudbetEventID, &b.SportName, &b.LeagueName, &b.Market,
		&b.PinnacleMarket, &b.Probability, &b.BookmakerName, &periodID, &b.Time, &b.Status, &batch,
		&b.KellyFraction, &b.BetSize, &b.Strategy, &b.WinAmount, &b.UpdatedAt, &b.PlacedAt,
		&b.EventURL, &b.EventTime,
	)
	if err != nil {
		return nil, err
	}
	b.LiveTime, b.PeriodID, b.Batch = int(liveTime), int(periodID), int(batch)
	b.Time = b.Time.UTC()
	b.UpdatedAt = utcOrNil(b.UpdatedAt)
	b.PlacedAt = utcOrNil(b.PlacedAt)
	return &b, nil
}

func scanPgEVRecord(scan func(...any) error) (*models.EVRecord, error) {
	var r models.EVRecord
	var liveTime, batch int32
	err := scan(
		&r.ID, &r.BetID, &r.Profit, &r.AvgKoef, &r.Koef, &r.PinnacleKoef, &liveTime,
		&r.PinnacleEventID, &r.CloudbetEventID, &r.SportName, &r.EventName, &r.Market,
		&r.PinnacleMarket, &r.Probability, &r.EVNoVig, &r.BookmakerName, &r.Time, &r.Status, &batch,
		&r.Home, &r.Away, &r.PinnacleSuspended, &r.BookmakerSuspended, &r.EventURL,
	)
	if err != nil {
		return nil, err
	}
	r.LiveTime, r.Batch = int(liveTime), int(batch)
	r.Time = r.Time.UTC()
	return &r, nil
}

func utcOrNil(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func rawFromText(s *string) json.RawMessage {
	if s == nil || *s == "" {
		return nil
	}
	return json.RawMessage(*s)
}

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rewired-gh/evgraph/internal/models"
	_ "modernc.org/sqlite"
)

// SQLite stores times as Unix nanoseconds and JSON columns as text.
type SQLite struct {
	db *sql.DB
}

var _ Store = (*SQLite)(nil)

// NewSQLite opens or creates the SQLite database at dbPath.
// An empty dbPath defaults to $TMPDIR/evgraph/data.db.
func NewSQLite(dbPath string) (*SQLite, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "evgraph", "data.db")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	s := &SQLite{db: db}
	if err := s.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLite) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS bot_sessions (
			id                     INTEGER PRIMARY KEY AUTOINCREMENT,
			start_time             INTEGER NOT NULL,
			end_time               INTEGER,
			start_total_balance    REAL NOT NULL,
			end_total_balance      REAL,
			accounts_start_balance TEXT,
			accounts_end_balance   TEXT,
			active_accounts        TEXT,
			is_active              INTEGER NOT NULL DEFAULT 1,
			odds_ranges            TEXT,
			profit_percent         REAL,
			profit_formula         TEXT,
			strategy               TEXT,
			max_bet                REAL
		)`,
		`CREATE TABLE IF NOT EXISTS bothub_bets (
			id                INTEGER PRIMARY KEY AUTOINCREMENT,
			bet_id            TEXT NOT NULL UNIQUE,
			profit            REAL NOT NULL,
			koef              REAL NOT NULL,
			avg_koef          REAL NOT NULL,
			live_time         INTEGER NOT NULL DEFAULT 1,
			home              TEXT NOT NULL,
			away              TEXT NOT NULL,
			pinnacle_event_id INTEGER,
			cloudbet_event_id TEXT,
			sport_name        TEXT,
			league_name       TEXT,
			market            TEXT NOT NULL,
			pinnacle_market   TEXT NOT NULL,
			probability       REAL NOT NULL,
			bookmaker_name    TEXT NOT NULL,
			period_id         INTEGER NOT NULL,
			time              INTEGER NOT NULL,
			status            TEXT NOT NULL DEFAULT 'created',
			batch             INTEGER NOT NULL,
			kelly_fraction    REAL,
			bet_size          REAL,
			strategy          TEXT,
			win_amount        REAL,
			updated_at        INTEGER,
			placed_at         INTEGER,
			event_url         TEXT,
			event_time        TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS ev_bets (
			id                  INTEGER PRIMARY KEY AUTOINCREMENT,
			bet_id              TEXT NOT NULL,
			profit              REAL NOT NULL,
			avg_koef            REAL NOT NULL,
			koef                REAL,
			pinnacle_koef       REAL,
			live_time           INTEGER NOT NULL,
			pinnacle_event_id   INTEGER,
			cloudbet_event_id   TEXT,
			sport_name          TEXT,
			event_name          TEXT,
			market              TEXT NOT NULL,
			pinnacle_market     TEXT NOT NULL,
			probability         REAL NOT NULL,
			ev_no_vig           REAL NOT NULL,
			bookmaker_name      TEXT NOT NULL,
			time                INTEGER NOT NULL,
			status              TEXT NOT NULL DEFAULT 'created',
			batch               INTEGER NOT NULL,
			home                TEXT NOT NULL,
			away                TEXT NOT NULL,
			pinnacle_suspended  INTEGER,
			bookmaker_suspended INTEGER,
			event_url           TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ev_bets_bet_id ON ev_bets(bet_id)`,
		`CREATE INDEX IF NOT EXISTS idx_ev_bets_pinnacle ON ev_bets(pinnacle_event_id, pinnacle_market)`,
		`CREATE INDEX IF NOT EXISTS idx_ev_bets_cloudbet ON ev_bets(cloudbet_event_id, market)`,
		`CREATE INDEX IF NOT EXISTS idx_bothub_bets_time ON bothub_bets(time)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLite) args() *queryArgs {
	return &queryArgs{conv: func(t time.Time) any { return t.UnixNano() }}
}

// AddSession inserts a session and returns its ID.
func (s *SQLite) AddSession(ctx context.Context, session *models.Session) (int64, error) {
	if err := session.Validate(); err != nil {
		return 0, fmt.Errorf("invalid session: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO bot_sessions
			(start_time, end_time, start_total_balance, end_total_balance,
			 accounts_start_balance, accounts_end_balance, active_accounts, is_active,
			 odds_ranges, profit_percent, profit_formula, strategy, max_bet)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		session.StartTime.UnixNano(), nanosOrNil(session.EndTime),
		session.StartTotalBalance, session.EndTotalBalance,
		jsonOrNil(session.AccountsStartBalance), jsonOrNil(session.AccountsEndBalance),
		jsonOrNil(session.ActiveAccounts), session.IsActive,
		jsonOrNil(session.OddsRanges), session.ProfitPercent, session.ProfitFormula,
		session.Strategy, session.MaxBet,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert session: %w", err)
	}
	return res.LastInsertId()
}

// AddBet inserts a bet and returns its row ID.
func (s *SQLite) AddBet(ctx context.Context, bet *models.Bet) (int64, error) {
	if err := bet.Validate(); err != nil {
		return 0, fmt.Errorf("invalid bet: %w", err)
	}
	status := bet.Status
	if status == "" {
		status = "created"
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO bothub_bets
			(bet_id, profit, koef, avg_koef, live_time, home, away,
			 pinnacle_event_id, cloudbet_event_id, sport_name, league_name, market,
			 pinnacle_market, probability, bookmaker_name, period_id, time, status, batch,
			 kelly_fraction, bet_size, strategy, win_amount, updated_at, placed_at,
			 event_url, event_time)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		bet.BetID, bet.Profit, bet.Koef, bet.AvgKoef, bet.LiveTime, bet.Home, bet.Away,
		bet.PinnacleEventID, bet.CloudbetEventID, bet.SportName, bet.LeagueName, bet.Market,
		bet.PinnacleMarket, bet.Probability, bet.BookmakerName, bet.PeriodID,
		bet.Time.UnixNano(), status, bet.Batch,
		bet.KellyFraction, bet.BetSize, bet.Strategy, bet.WinAmount,
		nanosOrNil(bet.UpdatedAt), nanosOrNil(bet.PlacedAt),
		bet.EventURL, bet.EventTime,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert bet: %w", err)
	}
	return res.LastInsertId()
}

// AddEVRecord inserts one EV observation and returns its row ID.
func (s *SQLite) AddEVRecord(ctx context.Context, r *models.EVRecord) (int64, error) {
	if r.BetID == "" || r.Time.IsZero() {
		return 0, errors.New("invalid ev record: bet ID and time are required")
	}
	status := r.Status
	if status == "" {
		status = "created"
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO ev_bets
			(bet_id, profit, avg_koef, koef, pinnacle_koef, live_time,
			 pinnacle_event_id, cloudbet_event_id, sport_name, event_name, market,
			 pinnacle_market, probability, ev_no_vig, bookmaker_name, time, status, batch,
			 home, away, pinnacle_suspended, bookmaker_suspended, event_url)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		r.BetID, r.Profit, r.AvgKoef, r.Koef, r.PinnacleKoef, r.LiveTime,
		r.PinnacleEventID, r.CloudbetEventID, r.SportName, r.EventName, r.Market,
		r.PinnacleMarket, r.Probability, r.EVNoVig, r.BookmakerName,
		r.Time.UnixNano(), status, r.Batch,
		r.Home, r.Away, r.PinnacleSuspended, r.BookmakerSuspended, r.EventURL,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert ev record: %w", err)
	}
	return res.LastInsertId()
}

func (s *SQLite) ListSessions(ctx context.Context, limit int) ([]models.Session, error) {
	a := s.args()
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sessionCols+` FROM bot_sessions ORDER BY start_time DESC`+limitClause(a, limit),
		a.vals...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()
	sessions := []models.Session{}
	for rows.Next() {
		sess, err := scanSQLiteSession(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, *sess)
	}
	return sessions, rows.Err()
}

func (s *SQLite) SessionStats(ctx context.Context, ids []int64) (map[int64]models.SessionStats, error) {
	stats := make(map[int64]models.SessionStats, len(ids))
	if len(ids) == 0 {
		return stats, nil
	}
	a := s.args()
	rows, err := s.db.QueryContext(ctx, statsQuery(a, ids), a.vals...)
	if err != nil {
		return nil, fmt.Errorf("failed to query session stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var st models.SessionStats
		if err := rows.Scan(&id, &st.TotalBets, &st.PlacedBets); err != nil {
			return nil, fmt.Errorf("failed to scan session stats: %w", err)
		}
		stats[id] = st
	}
	return stats, rows.Err()
}

func (s *SQLite) GetSession(ctx context.Context, id int64) (*models.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionCols+` FROM bot_sessions WHERE id = ?`, id)
	sess, err := scanSQLiteSession(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return sess, nil
}

func (s *SQLite) SessionBets(ctx context.Context, sessionID int64, limit int) ([]models.Bet, error) {
	sess, err := s.GetSession(ctx, sessionID)
	if errors.Is(err, ErrNotFound) {
		return []models.Bet{}, nil
	}
	if err != nil {
		return nil, err
	}
	a := s.args()
	query := `SELECT ` + betCols + ` FROM bothub_bets WHERE ` + sessionWindow(a, sess) +
		` ORDER BY updated_at ASC NULLS LAST, id ASC` + limitClause(a, limit)
	return s.queryBets(ctx, query, a.vals...)
}

func (s *SQLite) GetBet(ctx context.Context, betID string) (*models.Bet, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+betCols+` FROM bothub_bets WHERE bet_id = ?`, betID)
	bet, err := scanSQLiteBet(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("bet %s: %w", betID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bet: %w", err)
	}
	return bet, nil
}

func (s *SQLite) EVRecordsForBet(ctx context.Context, bet *models.Bet) ([]models.EVRecord, error) {
	a := s.args()
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+evCols+` FROM ev_bets WHERE `+evFilter(a, bet)+` ORDER BY time ASC, id ASC`,
		a.vals...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ev records: %w", err)
	}
	defer rows.Close()
	records := []models.EVRecord{}
	for rows.Next() {
		r, err := scanSQLiteEVRecord(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ev record: %w", err)
		}
		records = append(records, *r)
	}
	return records, rows.Err()
}

func (s *SQLite) BetsUpdatedSince(ctx context.Context, since time.Time, limit int) ([]models.Bet, error) {
	a := s.args()
	query := `SELECT ` + betCols + ` FROM bothub_bets WHERE COALESCE(updated_at, time) >= ` + a.add(since) +
		` ORDER BY COALESCE(updated_at, time) ASC, id ASC` + limitClause(a, limit)
	return s.queryBets(ctx, query, a.vals...)
}

func (s *SQLite) queryBets(ctx context.Context, query string, args ...any) ([]models.Bet, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bets: %w", err)
	}
	defer rows.Close()
	bets := []models.Bet{}
	for rows.Next() {
		b, err := scanSQLiteBet(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bet: %w", err)
		}
		bets = append(bets, *b)
	}
	return bets, rows.Err()
}

func scanSQLiteSession(scan func(...any) error) (*models.Session, error) {
	var sess models.Session
	var start int64
	var end sql.NullInt64
	var startBal, endBal, active, odds sql.NullString
	err := scan(
		&sess.ID, &start, &end, &sess.StartTotalBalance, &sess.EndTotalBalance,
		&startBal, &endBal, &active, &sess.IsActive,
		&odds, &sess.ProfitPercent, &sess.ProfitFormula, &sess.Strategy, &sess.MaxBet,
	)
	if err != nil {
		return nil, err
	}
	sess.StartTime = time.Unix(0, start).UTC()
	sess.EndTime = timeOrNil(end)
	sess.AccountsStartBalance = rawOrNil(startBal)
	sess.AccountsEndBalance = rawOrNil(endBal)
	sess.ActiveAccounts = rawOrNil(active)
	sess.OddsRanges = rawOrNil(odds)
	return &sess, nil
}

func scanSQLiteBet(scan func(...any) error) (*models.Bet, error) {
	var b models.Bet
	var at int64
	var updated, placed sql.NullInt64
	err := scan(
		&b.ID, &b.BetID, &b.Profit, &b.Koef, &b.AvgKoef, &b.LiveTime, &b.Home, &b.Away,
		&b.PinnacleEventID, &b.CloudbetEventID, &b.SportName, &b.LeagueName, &b.Market,
		&b.PinnacleMarket, &b.Probability, &b.BookmakerName, &b.PeriodID, &at, &b.Status, &b.Batch,
		&b.KellyFraction, &b.BetSize, &b.Strategy, &b.WinAmount, &updated, &placed,
		&b.EventURL, &b.EventTime,
	)
	if err != nil {
		return nil, err
	}
	b.Time = time.Unix(0, at).UTC()
	b.UpdatedAt = timeOrNil(updated)
	b.PlacedAt = timeOrNil(placed)
	return &b, nil
}

func scanSQLiteEVRecord(scan func(...any) error) (*models.EVRecord, error) {
	var r models.EVRecord
	var at int64
	err := scan(
		&r.ID, &r.BetID, &r.Profit, &r.AvgKoef, &r.Koef, &r.PinnacleKoef, &r.LiveTime,
		&r.PinnacleEventID, &r.CloudbetEventID, &r.SportName, &r.EventName, &r.Market,
		&r.PinnacleMarket, &r.Probability, &r.EVNoVig, &r.BookmakerName, &at, &r.Status, &r.Batch,
		&r.Home, &r.Away, &r.PinnacleSuspended, &r.BookmakerSuspended, &r.EventURL,
	)
	if err != nil {
		return nil, err
	}
	r.Time = time.Unix(0, at).UTC()
	return &r, nil
}

func nanosOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixNano()
}

func timeOrNil(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := time.Unix(0, n.Int64).UTC()
	return &t
}

func jsonOrNil(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func rawOrNil(s sql.NullString) json.RawMessage {
	if !s.Valid || s.String == "" {
		return nil
	}
	return json.RawMessage(s.String)
}

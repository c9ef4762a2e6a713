// Package candlestore persists closed candles to SQLite. The daemon
// writes every closed candle per (ticker, timeframe); the replay
// engine can seed from these rows instead of replaying a full cycle,
// with the contract that the result equals the linear replay.
package candlestore

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"dydx-ladder/internal/model"
)

const (
	defaultBatchSize  = 100
	defaultFlushDelay = 200 * time.Millisecond
)

// Config configures the store.
type Config struct {
	DBPath string // e.g. "<data_dir>/candles.db"
}

var _ model.CandleStore = (*Store)(nil)

// Store is a single-goroutine SQLite writer with transaction batching.
type Store struct {
	db *sql.DB

	// OnCommit fires after each batch commit with its size and latency
	// (optional, wired to metrics).
	OnCommit func(n int, dur time.Duration)
}

// DB returns the underlying sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// New opens (or creates) the database with WAL mode and the schema.
func New(cfg Config) (*Store, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[candlestore] opened database at %s", cfg.DBPath)
	return &Store{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS candles (
			ticker   TEXT    NOT NULL,
			tf_secs  INTEGER NOT NULL,
			t        INTEGER NOT NULL,
			open     REAL    NOT NULL,
			high     REAL    NOT NULL,
			low      REAL    NOT NULL,
			close    REAL    NOT NULL,
			volume   REAL    NOT NULL,
			PRIMARY KEY (ticker, tf_secs, t)
		);
	`)
	return err
}

// Run reads closed candles from candleCh and inserts them in batched
// transactions: every batchSize candles or every flushDelay, whichever
// first. Blocks until ctx is cancelled or candleCh is closed.
func (s *Store) Run(ctx context.Context, candleCh <-chan model.TickerCandle) {
	batch := make([]model.TickerCandle, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		if err := s.insertBatch(batch); err != nil {
			log.Printf("[candlestore] batch insert error: %v", err)
		} else if s.OnCommit != nil {
			s.OnCommit(len(batch), time.Since(start))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case tc, ok := <-candleCh:
			if !ok {
				flush()
				return
			}
			batch = append(batch, tc)
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}
		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

func (s *Store) insertBatch(batch []model.TickerCandle) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO candles (ticker, tf_secs, t, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, tc := range batch {
		c := tc.Candle
		if _, err := stmt.Exec(tc.Ticker, tc.TFSecs, c.T, c.Open, c.High, c.Low, c.Close, c.Volume); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// ReadSeries reads all candles for (ticker, tf) with T ≤ untilTS,
// ascending. untilTS ≤ 0 means no bound.
func (s *Store) ReadSeries(ticker string, tfSecs int64, untilTS int64) ([]model.Candle, error) {
	query := `SELECT t, open, high, low, close, volume FROM candles
	          WHERE ticker = ? AND tf_secs = ?`
	args := []any{ticker, tfSecs}
	if untilTS > 0 {
		query += ` AND t <= ?`
		args = append(args, untilTS)
	}
	query += ` ORDER BY t ASC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Candle
	for rows.Next() {
		var c model.Candle
		if err := rows.Scan(&c.T, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// LastBucket returns the newest stored bucket start for (ticker, tf),
// or 0 when none exist.
func (s *Store) LastBucket(ticker string, tfSecs int64) (int64, error) {
	var t sql.NullInt64
	err := s.db.QueryRow(
		`SELECT MAX(t) FROM candles WHERE ticker = ? AND tf_secs = ?`,
		ticker, tfSecs,
	).Scan(&t)
	if err != nil {
		return 0, err
	}
	if !t.Valid {
		return 0, nil
	}
	return t.Int64, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

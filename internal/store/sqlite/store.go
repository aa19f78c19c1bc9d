package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"stratify/internal/types"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the engine's persistent journal: the shared candle cache
// plus per-execution state, trades, and final summaries. A single
// connection in WAL mode serializes writers; reads are safe from
// concurrent executions.
type Store struct {
	db *sql.DB
}

// DB returns the underlying sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db }

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	return &Store{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS candles (
			symbol    TEXT    NOT NULL,
			timeframe TEXT    NOT NULL,
			ts        INTEGER NOT NULL,
			open      REAL    NOT NULL,
			high      REAL    NOT NULL,
			low       REAL    NOT NULL,
			close     REAL    NOT NULL,
			volume    REAL,
			PRIMARY KEY (symbol, timeframe, ts)
		);

		CREATE TABLE IF NOT EXISTS executions (
			id               INTEGER PRIMARY KEY AUTOINCREMENT,
			strategy_id      INTEGER NOT NULL,
			kind             TEXT    NOT NULL,
			exchange         TEXT    NOT NULL,
			symbol           TEXT    NOT NULL,
			timeframe        TEXT    NOT NULL,
			leverage         INTEGER NOT NULL,
			maker_fee        REAL    NOT NULL,
			taker_fee        REAL    NOT NULL,
			initial_value    REAL    NOT NULL,
			order_conditions TEXT    NOT NULL,
			indicators       TEXT    NOT NULL,
			running          INTEGER NOT NULL DEFAULT 0,
			start_ts         INTEGER NOT NULL,
			end_ts           INTEGER NOT NULL,
			error            TEXT    NOT NULL DEFAULT '',
			summary          TEXT    NOT NULL DEFAULT ''
		);

		CREATE TABLE IF NOT EXISTS trades (
			execution_id INTEGER NOT NULL,
			seq          INTEGER NOT NULL,
			data         TEXT    NOT NULL,
			PRIMARY KEY (execution_id, seq)
		);
	`)
	return err
}

// Range returns cached candles for [startTs, endTs], ordered by ts.
func (s *Store) Range(ctx context.Context, symbol, timeframe string, startTs, endTs int64) ([]types.Candle, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, open, high, low, close, volume FROM candles
		WHERE symbol = ? AND timeframe = ? AND ts BETWEEN ? AND ?
		ORDER BY ts`, symbol, timeframe, startTs, endTs)
	if err != nil {
		return nil, fmt.Errorf("sqlite candle range: %w", err)
	}
	defer rows.Close()

	var out []types.Candle
	for rows.Next() {
		var c types.Candle
		var vol sql.NullFloat64
		if err := rows.Scan(&c.Ts, &c.Open, &c.High, &c.Low, &c.Close, &vol); err != nil {
			return nil, fmt.Errorf("sqlite candle scan: %w", err)
		}
		c.Vol = vol.Float64
		out = append(out, c)
	}
	return out, rows.Err()
}

// Insert upserts candles into the cache in one transaction.
func (s *Store) Insert(ctx context.Context, symbol, timeframe string, candles []types.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO candles (symbol, timeframe, ts, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, c := range candles {
		if _, err := stmt.ExecContext(ctx, symbol, timeframe, c.Ts, c.Open, c.High, c.Low, c.Close, c.Vol); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// CreateExecution journals a new execution and assigns its id.
func (s *Store) CreateExecution(ctx context.Context, e *types.Execution) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO executions
		(strategy_id, kind, exchange, symbol, timeframe, leverage, maker_fee, taker_fee,
		 initial_value, order_conditions, indicators, running, start_ts, end_ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.StrategyID, string(e.Kind), e.Exchange, e.Symbol, e.Timeframe, e.Leverage,
		e.MakerFee, e.TakerFee, e.InitialTradableValue, e.OrderConditions, e.Indicators,
		boolInt(e.Running), e.StartTs, e.EndTs)
	if err != nil {
		return fmt.Errorf("sqlite create execution: %w", err)
	}
	e.ID, err = res.LastInsertId()
	return err
}

// GetExecution loads one execution by id.
func (s *Store) GetExecution(ctx context.Context, id int64) (*types.Execution, error) {
	var e types.Execution
	var kind string
	var running int
	err := s.db.QueryRowContext(ctx, `
		SELECT id, strategy_id, kind, exchange, symbol, timeframe, leverage, maker_fee,
		       taker_fee, initial_value, order_conditions, indicators, running, start_ts,
		       end_ts, error
		FROM executions WHERE id = ?`, id).Scan(
		&e.ID, &e.StrategyID, &kind, &e.Exchange, &e.Symbol, &e.Timeframe, &e.Leverage,
		&e.MakerFee, &e.TakerFee, &e.InitialTradableValue, &e.OrderConditions,
		&e.Indicators, &running, &e.StartTs, &e.EndTs, &e.Error)
	if err != nil {
		return nil, fmt.Errorf("sqlite get execution %d: %w", id, err)
	}
	e.Kind = types.ExecutionKind(kind)
	e.Running = running != 0
	return &e, nil
}

// SetRunning flips the journalled running flag.
func (s *Store) SetRunning(ctx context.Context, id int64, running bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE executions SET running = ? WHERE id = ?`, boolInt(running), id)
	if err != nil {
		return fmt.Errorf("sqlite set running: %w", err)
	}
	return nil
}

// IsRunning reads the journalled flag, so the store can serve as the
// flag store when no redis backend is configured.
func (s *Store) IsRunning(ctx context.Context, id int64) (bool, error) {
	var running int
	err := s.db.QueryRowContext(ctx,
		`SELECT running FROM executions WHERE id = ?`, id).Scan(&running)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("sqlite is running: %w", err)
	}
	return running != 0, nil
}

// FinishExecution marks an execution stopped, recording the failure
// text (empty on clean completion) and the final summary.
func (s *Store) FinishExecution(ctx context.Context, id int64, execErr string, summary types.Summary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE executions SET running = 0, error = ?, summary = ? WHERE id = ?`,
		execErr, string(data), id)
	if err != nil {
		return fmt.Errorf("sqlite finish execution: %w", err)
	}
	return nil
}

// AppendTrades journals fills in order; seq continues from what is
// already stored for the execution.
func (s *Store) AppendTrades(ctx context.Context, executionID int64, trades []types.Trade) error {
	if len(trades) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	var next int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM trades WHERE execution_id = ?`,
		executionID).Scan(&next); err != nil {
		tx.Rollback()
		return err
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO trades (execution_id, seq, data) VALUES (?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i, t := range trades {
		data, err := json.Marshal(t)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("marshal trade: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, executionID, next+int64(i), string(data)); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// ListTrades returns an execution's fills in journal order.
func (s *Store) ListTrades(ctx context.Context, executionID int64) ([]types.Trade, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM trades WHERE execution_id = ? ORDER BY seq`, executionID)
	if err != nil {
		return nil, fmt.Errorf("sqlite list trades: %w", err)
	}
	defer rows.Close()

	var out []types.Trade
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var t types.Trade
		if err := json.Unmarshal([]byte(data), &t); err != nil {
			return nil, fmt.Errorf("unmarshal trade: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// UpdateIndicators persists defaulted indicator parameters back onto
// the execution so later recomputations are stable.
func (s *Store) UpdateIndicators(ctx context.Context, id int64, indicators string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE executions SET indicators = ? WHERE id = ?`, indicators, id)
	if err != nil {
		return fmt.Errorf("sqlite update indicators: %w", err)
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

package storage

// sqlite.go — metadata de mercados y histórico de runs.
//
// Tablas:
//   - `markets`: una fila por mercado con la metadata de Gamma serializada en JSON.
//   - `fetch_info`: rango [start, end] descargado por clave de barras (token_interval).
//   - `runs`: resumen y métricas de cada backtest.
//   - `run_equity` / `run_trades`: curva de equity y trades cerrados por run.
//
// Los timestamps se guardan como unix ms (INTEGER) para no depender del
// formato de fechas del driver.

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/alejandrodnm/pmbacktest/internal/domain"
	"github.com/alejandrodnm/pmbacktest/internal/ports"
)

const schema = `
CREATE TABLE IF NOT EXISTS markets (
    market_id  TEXT PRIMARY KEY,
    data       TEXT    NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS fetch_info (
    token_id   TEXT PRIMARY KEY,
    start_ts   INTEGER NOT NULL,
    end_ts     INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
    id              TEXT PRIMARY KEY,
    created_at      INTEGER NOT NULL,
    strategy        TEXT    NOT NULL,
    markets         TEXT    NOT NULL,
    start_ts        INTEGER NOT NULL,
    end_ts          INTEGER NOT NULL,
    initial_capital REAL    NOT NULL DEFAULT 0,
    final_capital   REAL    NOT NULL DEFAULT 0,
    total_return    REAL    NOT NULL DEFAULT 0,
    total_trades    INTEGER NOT NULL DEFAULT 0,
    winning_trades  INTEGER NOT NULL DEFAULT 0,
    losing_trades   INTEGER NOT NULL DEFAULT 0,
    fees_paid       REAL    NOT NULL DEFAULT 0,
    metrics         TEXT    NOT NULL
);

CREATE TABLE IF NOT EXISTS run_equity (
    run_id TEXT    NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    ts     INTEGER NOT NULL,
    equity REAL    NOT NULL,
    PRIMARY KEY (run_id, ts)
);

CREATE TABLE IF NOT EXISTS run_trades (
    run_id     TEXT    NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    seq        INTEGER NOT NULL,
    market_id  TEXT    NOT NULL,
    outcome    TEXT    NOT NULL,
    side       TEXT    NOT NULL,
    quantity   REAL    NOT NULL,
    price      REAL    NOT NULL,
    entry      REAL    NOT NULL,
    pnl        REAL    NOT NULL,
    entry_time INTEGER NOT NULL,
    exit_time  INTEGER NOT NULL,
    PRIMARY KEY (run_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at DESC);
`

var (
	_ ports.RunStore      = (*SQLiteStorage)(nil)
	_ ports.MetadataCache = (*SQLiteStorage)(nil)
)

// SQLiteStorage implementa ports.RunStore y ports.MetadataCache usando SQLite (pure Go, sin CGo).
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage abre (o crea) la base de datos en la ruta dada y aplica el schema.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}
	return &SQLiteStorage{db: db}, nil
}

// --- MetadataCache ---

// LoadMarket devuelve el mercado cacheado; ok=false si no existe.
func (s *SQLiteStorage) LoadMarket(ctx context.Context, marketID string) (domain.Market, bool, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM markets WHERE market_id = ?`, marketID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Market{}, false, nil
	}
	if err != nil {
		return domain.Market{}, false, fmt.Errorf("storage.LoadMarket: %w", err)
	}

	var m domain.Market
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		return domain.Market{}, false, fmt.Errorf("storage.LoadMarket: decode %s: %w", marketID, err)
	}
	return m, true, nil
}

// SaveMarket hace upsert de la metadata de un mercado.
func (s *SQLiteStorage) SaveMarket(ctx context.Context, m domain.Market) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("storage.SaveMarket: encode: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO markets (market_id, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(market_id) DO UPDATE SET
			data       = excluded.data,
			updated_at = excluded.updated_at
	`, m.ID, string(data), time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("storage.SaveMarket: upsert %s: %w", m.ID, err)
	}
	return nil
}

// SaveFetchInfo registra el rango descargado para una clave de barras.
func (s *SQLiteStorage) SaveFetchInfo(ctx context.Context, info ports.FetchInfo) error {
	updated := info.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO fetch_info (token_id, start_ts, end_ts, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(token_id) DO UPDATE SET
			start_ts   = excluded.start_ts,
			end_ts     = excluded.end_ts,
			updated_at = excluded.updated_at
	`, info.TokenID, info.Start.UnixMilli(), info.End.UnixMilli(), updated.UnixMilli()); err != nil {
		return fmt.Errorf("storage.SaveFetchInfo: upsert %s: %w", info.TokenID, err)
	}
	return nil
}

// LoadFetchInfo devuelve el rango descargado; ok=false si nunca se descargó.
func (s *SQLiteStorage) LoadFetchInfo(ctx context.Context, tokenID string) (ports.FetchInfo, bool, error) {
	var start, end, updated int64
	err := s.db.QueryRowContext(ctx,
		`SELECT start_ts, end_ts, updated_at FROM fetch_info WHERE token_id = ?`, tokenID,
	).Scan(&start, &end, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return ports.FetchInfo{}, false, nil
	}
	if err != nil {
		return ports.FetchInfo{}, false, fmt.Errorf("storage.LoadFetchInfo: %w", err)
	}
	return ports.FetchInfo{
		TokenID:   tokenID,
		Start:     fromMillis(start),
		End:       fromMillis(end),
		UpdatedAt: fromMillis(updated),
	}, true, nil
}

// --- RunStore ---

// SaveRun persiste un run completo en una transacción. Si el run no trae ID se genera uno.
func (s *SQLiteStorage) SaveRun(ctx context.Context, run domain.RunRecord) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	markets, err := json.Marshal(run.Markets)
	if err != nil {
		return fmt.Errorf("storage.SaveRun: encode markets: %w", err)
	}
	metrics, err := json.Marshal(run.Metrics)
	if err != nil {
		return fmt.Errorf("storage.SaveRun: encode metrics: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.SaveRun: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO runs
			(id, created_at, strategy, markets, start_ts, end_ts, initial_capital,
			 final_capital, total_return, total_trades, winning_trades, losing_trades,
			 fees_paid, metrics)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.CreatedAt.UnixMilli(),
		run.Strategy,
		string(markets),
		run.Start.UnixMilli(),
		run.End.UnixMilli(),
		run.InitialCapital,
		run.FinalCapital,
		run.TotalReturn,
		run.TotalTrades,
		run.WinningTrades,
		run.LosingTrades,
		run.FeesPaid,
		string(metrics),
	); err != nil {
		return fmt.Errorf("storage.SaveRun: insert run %s: %w", run.ID, err)
	}

	eqStmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO run_equity (run_id, ts, equity) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("storage.SaveRun: prepare equity: %w", err)
	}
	defer eqStmt.Close()
	for _, p := range run.Equity {
		if _, err := eqStmt.ExecContext(ctx, run.ID, p.Timestamp.UnixMilli(), p.Equity); err != nil {
			return fmt.Errorf("storage.SaveRun: insert equity: %w", err)
		}
	}

	trStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO run_trades
			(run_id, seq, market_id, outcome, side, quantity, price, entry, pnl, entry_time, exit_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("storage.SaveRun: prepare trades: %w", err)
	}
	defer trStmt.Close()
	for i, t := range run.Trades {
		if _, err := trStmt.ExecContext(ctx,
			run.ID, i, t.MarketID, string(t.Outcome), string(t.Side),
			t.Quantity, t.Price, t.Entry, t.PnL,
			t.EntryTime.UnixMilli(), t.ExitTime.UnixMilli(),
		); err != nil {
			return fmt.Errorf("storage.SaveRun: insert trade %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.SaveRun: commit: %w", err)
	}
	return nil
}

// ListRuns devuelve los últimos runs (sin curva ni trades), más recientes primero.
func (s *SQLiteStorage) ListRuns(ctx context.Context, limit int) ([]domain.RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, strategy, markets, start_ts, end_ts, initial_capital,
		       final_capital, total_return, total_trades, winning_trades, losing_trades,
		       fees_paid, metrics
		FROM runs
		ORDER BY created_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage.ListRuns: query: %w", err)
	}
	defer rows.Close()

	var runs []domain.RunRecord
	for rows.Next() {
		var (
			r                        domain.RunRecord
			created, start, end      int64
			marketsJSON, metricsJSON string
		)
		if err := rows.Scan(
			&r.ID, &created, &r.Strategy, &marketsJSON, &start, &end,
			&r.InitialCapital, &r.FinalCapital, &r.TotalReturn,
			&r.TotalTrades, &r.WinningTrades, &r.LosingTrades,
			&r.FeesPaid, &metricsJSON,
		); err != nil {
			return nil, fmt.Errorf("storage.ListRuns: scan row: %w", err)
		}
		r.CreatedAt = fromMillis(created)
		r.Start = fromMillis(start)
		r.End = fromMillis(end)
		if err := json.Unmarshal([]byte(marketsJSON), &r.Markets); err != nil {
			return nil, fmt.Errorf("storage.ListRuns: decode markets %s: %w", r.ID, err)
		}
		if err := json.Unmarshal([]byte(metricsJSON), &r.Metrics); err != nil {
			return nil, fmt.Errorf("storage.ListRuns: decode metrics %s: %w", r.ID, err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// LoadEquity devuelve la curva de equity de un run ordenada por tiempo.
func (s *SQLiteStorage) LoadEquity(ctx context.Context, runID string) ([]domain.EquityPoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ts, equity FROM run_equity WHERE run_id = ? ORDER BY ts`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage.LoadEquity: query: %w", err)
	}
	defer rows.Close()

	var curve []domain.EquityPoint
	for rows.Next() {
		var ts int64
		var p domain.EquityPoint
		if err := rows.Scan(&ts, &p.Equity); err != nil {
			return nil, fmt.Errorf("storage.LoadEquity: scan row: %w", err)
		}
		p.Timestamp = fromMillis(ts)
		curve = append(curve, p)
	}
	return curve, rows.Err()
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

package timescale

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"delta-hedge-bot/internal/config"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	writeTimeout = 3 * time.Second
	cyclesTable  = "hedge_cycles"
)

var schemaName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// CycleRow is one hedge cycle as stored in the history table.
type CycleRow struct {
	Time      time.Time
	Coin      string
	Symbol    string
	DeltaPre  decimal.Decimal
	DeltaPost decimal.NullDecimal
	Side      string
	Qty       decimal.Decimal
	OrderID   string
	Outcome   string
	Polls     int
	Error     string
}

type Writer struct {
	db      *sql.DB
	log     *zap.Logger
	schema  string
	cycles  chan CycleRow
	started atomic.Bool
	dropped atomic.Uint64
}

// New returns nil, nil when history is disabled. A nil *Writer accepts and
// discards rows.
func New(cfg config.TimescaleConfig, log *zap.Logger) (*Writer, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("timescale dsn is required")
	}
	schema := strings.TrimSpace(cfg.Schema)
	if schema == "" {
		schema = "public"
	}
	if !schemaName.MatchString(schema) {
		return nil, fmt.Errorf("timescale schema %q is not a plain identifier", schema)
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	writer := newWriter(db, schema, cfg.QueueSize, log)
	if err := writer.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return writer, nil
}

func newWriter(db *sql.DB, schema string, queueSize int, log *zap.Logger) *Writer {
	if queueSize <= 0 {
		queueSize = 256
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Writer{
		db:     db,
		log:    log,
		schema: schema,
		cycles: make(chan CycleRow, queueSize),
	}
}

func (w *Writer) Start(ctx context.Context) {
	if w == nil {
		return
	}
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	go w.run(ctx)
}

func (w *Writer) Close() error {
	if w == nil || w.db == nil {
		return nil
	}
	return w.db.Close()
}

// EnqueueCycle never blocks; rows are dropped when the queue is full.
func (w *Writer) EnqueueCycle(row CycleRow) {
	if w == nil {
		return
	}
	select {
	case w.cycles <- row:
	default:
		if w.dropped.Add(1) == 1 {
			w.log.Warn("timescale cycle queue full")
		}
	}
}

// Dropped reports how many rows were discarded because the queue was full.
func (w *Writer) Dropped() uint64 {
	if w == nil {
		return 0
	}
	return w.dropped.Load()
}

func (w *Writer) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case row := <-w.cycles:
			w.writeCycle(ctx, row)
		}
	}
}

func (w *Writer) ensureSchema(ctx context.Context) error {
	if w.db == nil {
		return errors.New("timescale db not initialized")
	}
	if w.schema != "public" {
		if err := w.exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", w.schema)); err != nil {
			return err
		}
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		coin TEXT NOT NULL,
		symbol TEXT NOT NULL,
		delta_pre NUMERIC NOT NULL,
		delta_post NUMERIC,
		side TEXT NOT NULL,
		qty NUMERIC NOT NULL,
		order_id TEXT NOT NULL,
		outcome TEXT NOT NULL,
		polls INTEGER NOT NULL,
		error TEXT NOT NULL DEFAULT ''
	)`, w.table(cyclesTable))); err != nil {
		return err
	}
	if err := w.exec(ctx, "CREATE EXTENSION IF NOT EXISTS timescaledb"); err != nil {
		w.log.Warn("timescale extension ensure failed", zap.Error(err))
		return nil
	}
	if err := w.exec(ctx, fmt.Sprintf("SELECT create_hypertable('%s', 'ts', if_not_exists => TRUE)", w.table(cyclesTable))); err != nil {
		w.log.Warn("timescale hedge_cycles hypertable create failed", zap.Error(err))
	}
	return nil
}

func (w *Writer) writeCycle(ctx context.Context, row CycleRow) {
	if w.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if _, err := w.db.ExecContext(ctx, insertCycleQuery(w.table(cyclesTable)), cycleArgs(row)...); err != nil {
		w.log.Warn("timescale cycle insert failed", zap.Error(err))
	}
}

func insertCycleQuery(table string) string {
	return fmt.Sprintf(`INSERT INTO %s (
		ts, coin, symbol, delta_pre, delta_post, side, qty, order_id, outcome, polls, error
	) VALUES (
		$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
	)`, table)
}

func cycleArgs(row CycleRow) []any {
	ts := row.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	return []any{
		ts.UTC(),
		row.Coin,
		row.Symbol,
		row.DeltaPre,
		row.DeltaPost,
		row.Side,
		row.Qty,
		row.OrderID,
		row.Outcome,
		row.Polls,
		row.Error,
	}
}

func (w *Writer) exec(ctx context.Context, query string) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_, err := w.db.ExecContext(ctx, query)
	return err
}

func (w *Writer) table(name string) string {
	return w.schema + "." + name
}

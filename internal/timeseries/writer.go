// Package timeseries records per-cycle accounting rows in PostgreSQL so
// operators can chart balances and spreads over time. Writes are queued and
// best-effort; the trading cycle never blocks on the database.
package timeseries

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Sakeswap/sakeperp-arbitrageur/internal/config"
)

const writeTimeout = 3 * time.Second

// CycleRecord is one account-level row per completed cycle.
type CycleRecord struct {
	Time            time.Time
	TotalValue      decimal.Decimal
	DexQuoteBalance decimal.Decimal
	CexAccountValue decimal.Decimal
	PositionValue   decimal.Decimal
}

// PairRecord is one row per evaluated pair per cycle.
type PairRecord struct {
	Time        time.Time
	Pair        string
	AmmPrice    decimal.Decimal
	CexPrice    decimal.Decimal
	Spread      decimal.Decimal
	DexPosition decimal.Decimal
	CexPosition decimal.Decimal
}

type Writer struct {
	db        *sql.DB
	log       *zap.Logger
	schema    string
	cycles    chan CycleRecord
	pairs     chan PairRecord
	started   atomic.Bool
	dropCycle atomic.Uint64
	dropPair  atomic.Uint64
}

// New returns nil when accounting is disabled; a nil writer accepts and
// discards all records.
func New(cfg config.AccountingConfig, log *zap.Logger) (*Writer, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("accounting dsn is required")
	}
	schema := strings.TrimSpace(cfg.Schema)
	if schema == "" {
		schema = "public"
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
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	writer := &Writer{
		db:     db,
		log:    log,
		schema: schema,
		cycles: make(chan CycleRecord, queueSize),
		pairs:  make(chan PairRecord, queueSize),
	}
	if err := writer.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return writer, nil
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

func (w *Writer) EnqueueCycle(record CycleRecord) {
	if w == nil {
		return
	}
	select {
	case w.cycles <- record:
	default:
		if w.dropCycle.Add(1) == 1 && w.log != nil {
			w.log.Warn("accounting cycle queue full")
		}
	}
}

func (w *Writer) EnqueuePair(record PairRecord) {
	if w == nil {
		return
	}
	select {
	case w.pairs <- record:
	default:
		if w.dropPair.Add(1) == 1 && w.log != nil {
			w.log.Warn("accounting pair queue full")
		}
	}
}

func (w *Writer) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case record := <-w.cycles:
			w.writeCycle(ctx, record)
		case record := <-w.pairs:
			w.writePair(ctx, record)
		}
	}
}

func (w *Writer) table(name string) string {
	return w.schema + "." + name
}

func (w *Writer) exec(ctx context.Context, query string, args ...interface{}) error {
	_, err := w.db.ExecContext(ctx, query, args...)
	return err
}

func (w *Writer) ensureSchema(ctx context.Context) error {
	if w.db == nil {
		return errors.New("accounting db not initialized")
	}
	if w.schema != "public" {
		if err := w.exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", w.schema)); err != nil {
			return err
		}
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		total_value NUMERIC NOT NULL,
		dex_quote_balance NUMERIC NOT NULL,
		cex_account_value NUMERIC NOT NULL,
		position_value NUMERIC NOT NULL
	)`, w.table("account_cycles"))); err != nil {
		return err
	}
	return w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		pair TEXT NOT NULL,
		amm_price NUMERIC NOT NULL,
		cex_price NUMERIC NOT NULL,
		spread NUMERIC NOT NULL,
		dex_position NUMERIC NOT NULL,
		cex_position NUMERIC NOT NULL
	)`, w.table("pair_cycles")))
}

func (w *Writer) writeCycle(ctx context.Context, record CycleRecord) {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (
		ts, total_value, dex_quote_balance, cex_account_value, position_value
	) VALUES ($1,$2,$3,$4,$5)`, w.table("account_cycles"))
	if err := w.exec(ctx, query,
		record.Time,
		record.TotalValue,
		record.DexQuoteBalance,
		record.CexAccountValue,
		record.PositionValue,
	); err != nil && w.log != nil {
		w.log.Warn("accounting cycle write failed", zap.Error(err))
	}
}

func (w *Writer) writePair(ctx context.Context, record PairRecord) {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (
		ts, pair, amm_price, cex_price, spread, dex_position, cex_position
	) VALUES ($1,$2,$3,$4,$5,$6,$7)`, w.table("pair_cycles"))
	if err := w.exec(ctx, query,
		record.Time,
		record.Pair,
		record.AmmPrice,
		record.CexPrice,
		record.Spread,
		record.DexPosition,
		record.CexPosition,
	); err != nil && w.log != nil {
		w.log.Warn("accounting pair write failed", zap.Error(err))
	}
}

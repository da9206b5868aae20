package repository

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"slices"
	"time"

	"FXForecast/internal/domain/models"
	domrepo "FXForecast/internal/domain/repository"
	pkgch "FXForecast/pkg/clickhouse"
	applogger "FXForecast/pkg/logger"
)

// CHBarStore implements BarStore backed by ClickHouse.
type CHBarStore struct {
	db    *sql.DB
	table string
	l     *applogger.Logger
}

var _ domrepo.BarStore = (*CHBarStore)(nil)

func NewCHBarStore(ch *pkgch.Client) *CHBarStore {
	return &CHBarStore{db: ch.DB(), table: ch.Database() + "." + pkgch.BarsTable}
}

// SetLogger injects a structured logger.
func (s *CHBarStore) SetLogger(l *applogger.Logger) { s.l = l }

func (s *CHBarStore) GetBars(ctx context.Context, symbol string, tf domrepo.Timeframe, from, to time.Time) ([]models.Bar, error) {
	const qtpl = `
        SELECT ts, open, high, low, close, volume
        FROM %s
        FINAL
        WHERE symbol = ? AND timeframe = ? AND ts >= ? AND ts <= ?
        ORDER BY ts ASC
    `
	return s.query(ctx, "get_bars", symbol, tf, fmt.Sprintf(qtpl, s.table), symbol, string(tf), from, to)
}

func (s *CHBarStore) GetLatestBars(ctx context.Context, symbol string, tf domrepo.Timeframe, n int) ([]models.Bar, error) {
	const qtpl = `
        SELECT ts, open, high, low, close, volume
        FROM %s
        FINAL
        WHERE symbol = ? AND timeframe = ?
        ORDER BY ts DESC
        LIMIT ?
    `
	bars, err := s.query(ctx, "latest_bars", symbol, tf, fmt.Sprintf(qtpl, s.table), symbol, string(tf), n)
	if err != nil {
		return nil, err
	}
	slices.Reverse(bars)
	return bars, nil
}

func (s *CHBarStore) query(ctx context.Context, op, symbol string, tf domrepo.Timeframe, q string, args ...any) ([]models.Bar, error) {
	start := time.Now()
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		s.logError(op+" query error", symbol, tf, err)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	out := make([]models.Bar, 0, 1024)
	for rows.Next() {
		var (
			b   models.Bar
			vol sql.NullFloat64
		)
		if err := rows.Scan(&b.Date, &b.Open, &b.High, &b.Low, &b.Close, &vol); err != nil {
			s.logError(op+" scan error", symbol, tf, err)
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		b.Volume = math.NaN()
		if vol.Valid {
			b.Volume = vol.Float64
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		s.logError(op+" rows error", symbol, tf, err)
		return nil, fmt.Errorf("rows: %w", err)
	}
	if s.l != nil {
		s.l.Debug("clickhouse "+op+" ok",
			applogger.String("symbol", symbol),
			applogger.String("tf", string(tf)),
			applogger.Int("rows", len(out)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return out, nil
}

func (s *CHBarStore) logError(msg, symbol string, tf domrepo.Timeframe, err error) {
	if s.l == nil {
		return
	}
	s.l.Error("clickhouse "+msg,
		applogger.String("table", s.table),
		applogger.String("symbol", symbol),
		applogger.String("tf", string(tf)),
		applogger.Error(err),
	)
}

package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"FXForecast/internal/domain/models"
	domrepo "FXForecast/internal/domain/repository"
	pkgch "FXForecast/pkg/clickhouse"
	applogger "FXForecast/pkg/logger"
)

// CHPredictionLog stores forecasts in ClickHouse.
type CHPredictionLog struct {
	db    *sql.DB
	table string
	l     *applogger.Logger
}

var _ domrepo.PredictionSink = (*CHPredictionLog)(nil)

func NewCHPredictionLog(ch *pkgch.Client) *CHPredictionLog {
	return &CHPredictionLog{db: ch.DB(), table: ch.Database() + "." + pkgch.PredictionsTable}
}

func (s *CHPredictionLog) SetLogger(l *applogger.Logger) { s.l = l }

var predictionColumns = []string{
	"id", "symbol", "as_of", "horizon", "strategy", "predicted_change",
	"lower", "upper", "last_close", "predicted_price", "realized_vol", "created_at",
}

func insertForecastQuery(table string, rows int) string {
	tuple := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(predictionColumns)), ", ") + ")"
	values := make([]string, rows)
	for i := range values {
		values[i] = tuple
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", table, strings.Join(predictionColumns, ", "), strings.Join(values, ","))
}

func forecastArgs(f models.Forecast) []any {
	return []any{
		f.ID, f.Symbol, f.AsOf, uint16(f.Horizon), f.Strategy, f.PredictedChange,
		f.Lower, f.Upper, f.LastClose, f.PredictedPrice, f.RealizedVol, f.CreatedAt,
	}
}

func (s *CHPredictionLog) SaveForecast(ctx context.Context, f models.Forecast) error {
	return s.SaveForecasts(ctx, []models.Forecast{f})
}

// SaveForecasts inserts forecasts in chunks of multi-row VALUES.
func (s *CHPredictionLog) SaveForecasts(ctx context.Context, fs []models.Forecast) error {
	const chunkSize = 500
	for start := 0; start < len(fs); start += chunkSize {
		chunk := fs[start:min(start+chunkSize, len(fs))]
		args := make([]any, 0, len(chunk)*len(predictionColumns))
		for _, f := range chunk {
			args = append(args, forecastArgs(f)...)
		}
		if _, err := s.db.ExecContext(ctx, insertForecastQuery(s.table, len(chunk)), args...); err != nil {
			if s.l != nil {
				s.l.Error("clickhouse insert forecasts error", applogger.Int("rows", len(chunk)), applogger.Error(err))
			}
			return fmt.Errorf("insert forecasts: %w", err)
		}
	}
	return nil
}

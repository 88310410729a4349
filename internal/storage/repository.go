package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const (
	upsertInstrumentSQL = `INSERT INTO instruments (symbol, name)
    VALUES ($1, $2)
    ON CONFLICT (symbol) DO UPDATE
    SET name = EXCLUDED.name;`

	upsertDailyBarSQL = `INSERT INTO daily_bars (
        symbol,
        trade_date,
        open,
        high,
        low,
        close,
        volume,
        turnover
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8
    )
    ON CONFLICT (symbol, trade_date) DO UPDATE
    SET
        open     = EXCLUDED.open,
        high     = EXCLUDED.high,
        low      = EXCLUDED.low,
        close    = EXCLUDED.close,
        volume   = EXCLUDED.volume,
        turnover = EXCLUDED.turnover;`

	upsertStatementSQL = `INSERT INTO financial_statements (
        symbol,
        announce_date,
        period_end,
        revenue,
        net_profit,
        eps,
        roe
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7
    )
    ON CONFLICT (symbol, announce_date, period_end) DO UPDATE
    SET
        revenue    = EXCLUDED.revenue,
        net_profit = EXCLUDED.net_profit,
        eps        = EXCLUDED.eps,
        roe        = EXCLUDED.roe;`

	listDailyBarsSQL = `SELECT
        symbol,
        trade_date,
        open,
        high,
        low,
        close,
        volume,
        turnover,
        created_at
    FROM daily_bars
    WHERE symbol = $1
      AND trade_date >= $2
      AND trade_date < $3
    ORDER BY trade_date;`

	listMissingSQL = `SELECT i.symbol
    FROM instruments i
    LEFT JOIN instrument_checks c ON c.symbol = i.symbol
    WHERE NOT EXISTS (
        SELECT 1 FROM financial_statements f
        WHERE f.symbol = i.symbol AND f.period_end = $1
    )
      AND (c.last_checked_at IS NULL OR c.last_checked_at < $2)
    ORDER BY i.symbol
    LIMIT $3;`

	markCheckedSQL = `INSERT INTO instrument_checks (symbol, last_checked_at)
    VALUES ($1, $2)
    ON CONFLICT (symbol) DO UPDATE
    SET last_checked_at = EXCLUDED.last_checked_at;`
)

// BarStore defines operations for daily bar persistence.
type BarStore interface {
	SaveDailyBars(ctx context.Context, bars []DailyBar) (int64, error)
	ListDailyBars(ctx context.Context, symbol string, from, to time.Time) ([]DailyBar, error)
}

// StatementStore defines operations for financial statement persistence.
type StatementStore interface {
	SaveStatements(ctx context.Context, rows []FinancialStatement) (int64, error)
	ListMissing(ctx context.Context, periodEnd, checkedBefore time.Time, limit int) ([]string, error)
	MarkChecked(ctx context.Context, symbol string, date time.Time) error
}

// InstrumentStore records catalogue entries as they are paged.
type InstrumentStore interface {
	UpsertInstruments(ctx context.Context, symbols []string, names []string) error
}

// UpsertInstruments records catalogue entries, keeping the latest name.
func (s *Store) UpsertInstruments(ctx context.Context, symbols []string, names []string) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if len(symbols) != len(names) {
		return fmt.Errorf("symbols/names length mismatch: %d vs %d", len(symbols), len(names))
	}

	batch := &pgx.Batch{}
	for i := range symbols {
		batch.Queue(upsertInstrumentSQL, symbols[i], names[i])
	}
	br := pool.SendBatch(ctx, batch)
	defer br.Close()
	for range symbols {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("upsert instrument: %w", err)
		}
	}
	return nil
}

// SaveDailyBars deduplicates bars by (symbol, trade_date) keeping the last
// occurrence, then writes them in fixed-size batches, one transaction per
// batch. Returns the total row count written.
func (s *Store) SaveDailyBars(ctx context.Context, bars []DailyBar) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}

	bars = dedupeDailyBars(bars)

	var written int64
	for start := 0; start < len(bars); start += s.upsertBatchSize {
		end := start + s.upsertBatchSize
		if end > len(bars) {
			end = len(bars)
		}
		chunk := bars[start:end]

		tx, err := pool.Begin(ctx)
		if err != nil {
			return written, fmt.Errorf("begin bar batch: %w", err)
		}

		batch := &pgx.Batch{}
		for _, bar := range chunk {
			batch.Queue(upsertDailyBarSQL,
				bar.Symbol,
				bar.TradeDate,
				bar.Open.String(),
				bar.High.String(),
				bar.Low.String(),
				bar.Close.String(),
				bar.Volume,
				bar.Turnover.String(),
			)
		}

		n, execErr := execBatch(ctx, tx, batch, len(chunk))
		if execErr != nil {
			_ = tx.Rollback(ctx)
			return written, fmt.Errorf("upsert daily bars: %w", execErr)
		}
		if err := tx.Commit(ctx); err != nil {
			return written, fmt.Errorf("commit bar batch: %w", err)
		}
		written += n
	}
	return written, nil
}

// SaveStatements mirrors SaveDailyBars for financial statement rows.
func (s *Store) SaveStatements(ctx context.Context, rows []FinancialStatement) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}

	rows = dedupeStatements(rows)

	var written int64
	for start := 0; start < len(rows); start += s.upsertBatchSize {
		end := start + s.upsertBatchSize
		if end > len(rows) {
			end = len(rows)
		}
		chunk := rows[start:end]

		tx, err := pool.Begin(ctx)
		if err != nil {
			return written, fmt.Errorf("begin statement batch: %w", err)
		}

		batch := &pgx.Batch{}
		for _, row := range chunk {
			batch.Queue(upsertStatementSQL,
				row.Symbol,
				row.AnnounceDate,
				row.PeriodEnd,
				row.Revenue.String(),
				row.NetProfit.String(),
				row.EPS.String(),
				row.ROE.String(),
			)
		}

		n, execErr := execBatch(ctx, tx, batch, len(chunk))
		if execErr != nil {
			_ = tx.Rollback(ctx)
			return written, fmt.Errorf("upsert statements: %w", execErr)
		}
		if err := tx.Commit(ctx); err != nil {
			return written, fmt.Errorf("commit statement batch: %w", err)
		}
		written += n
	}
	return written, nil
}

func execBatch(ctx context.Context, tx pgx.Tx, batch *pgx.Batch, queued int) (int64, error) {
	br := tx.SendBatch(ctx, batch)
	defer br.Close()

	var affected int64
	for i := 0; i < queued; i++ {
		tag, err := br.Exec()
		if err != nil {
			return affected, err
		}
		affected += tag.RowsAffected()
	}
	return affected, nil
}

// ListDailyBars lists bars for one symbol within [from, to).
func (s *Store) ListDailyBars(ctx context.Context, symbol string, from, to time.Time) ([]DailyBar, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listDailyBarsSQL, symbol, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list daily bars: %w", queryErr)
	}
	defer rows.Close()

	bars := make([]DailyBar, 0)
	for rows.Next() {
		bar, scanErr := scanDailyBar(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		bars = append(bars, bar)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return bars, nil
}

// ListMissing returns symbols with no statement for periodEnd whose last
// check is absent or older than checkedBefore, in symbol order, capped.
func (s *Store) ListMissing(ctx context.Context, periodEnd, checkedBefore time.Time, limit int) ([]string, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listMissingSQL, periodEnd, checkedBefore, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list missing statements: %w", queryErr)
	}
	defer rows.Close()

	symbols := make([]string, 0, limit)
	for rows.Next() {
		var symbol string
		if err := rows.Scan(&symbol); err != nil {
			return nil, err
		}
		symbols = append(symbols, symbol)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return symbols, nil
}

// MarkChecked stamps the last statement check for a symbol.
func (s *Store) MarkChecked(ctx context.Context, symbol string, date time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, markCheckedSQL, symbol, date); execErr != nil {
		return fmt.Errorf("mark checked: %w", execErr)
	}
	return nil
}

// dedupeDailyBars keeps the last occurrence per natural key, preserving
// first-occurrence order.
func dedupeDailyBars(bars []DailyBar) []DailyBar {
	if len(bars) < 2 {
		return bars
	}
	type key struct {
		symbol string
		date   time.Time
	}
	index := make(map[key]int, len(bars))
	result := make([]DailyBar, 0, len(bars))
	for _, bar := range bars {
		k := key{symbol: bar.Symbol, date: bar.TradeDate}
		if pos, seen := index[k]; seen {
			result[pos] = bar
			continue
		}
		index[k] = len(result)
		result = append(result, bar)
	}
	return result
}

func dedupeStatements(rows []FinancialStatement) []FinancialStatement {
	if len(rows) < 2 {
		return rows
	}
	type key struct {
		symbol   string
		announce time.Time
		period   time.Time
	}
	index := make(map[key]int, len(rows))
	result := make([]FinancialStatement, 0, len(rows))
	for _, row := range rows {
		k := key{symbol: row.Symbol, announce: row.AnnounceDate, period: row.PeriodEnd}
		if pos, seen := index[k]; seen {
			result[pos] = row
			continue
		}
		index[k] = len(result)
		result = append(result, row)
	}
	return result
}

func scanDailyBar(rows pgx.Rows) (DailyBar, error) {
	var (
		bar         DailyBar
		openStr     string
		highStr     string
		lowStr      string
		closeStr    string
		turnoverStr string
	)

	if err := rows.Scan(
		&bar.Symbol,
		&bar.TradeDate,
		&openStr,
		&highStr,
		&lowStr,
		&closeStr,
		&bar.Volume,
		&turnoverStr,
		&bar.CreatedAt,
	); err != nil {
		return DailyBar{}, err
	}

	var err error
	if bar.Open, err = decimal.NewFromString(openStr); err != nil {
		return DailyBar{}, fmt.Errorf("parse open: %w", err)
	}
	if bar.High, err = decimal.NewFromString(highStr); err != nil {
		return DailyBar{}, fmt.Errorf("parse high: %w", err)
	}
	if bar.Low, err = decimal.NewFromString(lowStr); err != nil {
		return DailyBar{}, fmt.Errorf("parse low: %w", err)
	}
	if bar.Close, err = decimal.NewFromString(closeStr); err != nil {
		return DailyBar{}, fmt.Errorf("parse close: %w", err)
	}
	if bar.Turnover, err = decimal.NewFromString(turnoverStr); err != nil {
		return DailyBar{}, fmt.Errorf("parse turnover: %w", err)
	}

	return bar, nil
}

var (
	_ BarStore        = (*Store)(nil)
	_ StatementStore  = (*Store)(nil)
	_ InstrumentStore = (*Store)(nil)
)

package datasource

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"stratlab/internal/market"
	"stratlab/internal/store"
)

const barsSchema = `
CREATE TABLE IF NOT EXISTS bars (
    symbol     TEXT    NOT NULL,
    timeframe  TEXT    NOT NULL,
    bar_time   INTEGER NOT NULL,
    open       REAL    NOT NULL,
    high       REAL    NOT NULL,
    low        REAL    NOT NULL,
    close      REAL    NOT NULL,
    volume     REAL    NOT NULL,
    PRIMARY KEY (symbol, timeframe, bar_time)
);
`

// Cache 把K线落盘到 SQLite，在行情源不可用时提供降级数据。
type Cache struct {
	db *sql.DB
}

// NewCache 初始化K线缓存并建表。
func NewCache(st *store.Store) (*Cache, error) {
	if _, err := st.DB().Exec(barsSchema); err != nil {
		return nil, fmt.Errorf("初始化K线缓存表失败: %w", err)
	}
	return &Cache{db: st.DB()}, nil
}

// SaveBars 以 upsert 方式写入一批K线。
func (c *Cache) SaveBars(ctx context.Context, symbol, timeframe string, bars []market.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开启缓存写入事务失败: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO bars (symbol, timeframe, bar_time, open, high, low, close, volume)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(symbol, timeframe, bar_time) DO UPDATE SET
    open = excluded.open,
    high = excluded.high,
    low = excluded.low,
    close = excluded.close,
    volume = excluded.volume
`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("准备缓存写入语句失败: %w", err)
	}
	defer stmt.Close()

	for _, bar := range bars {
		if _, err := stmt.ExecContext(ctx,
			symbol,
			timeframe,
			bar.Time.UnixMilli(),
			bar.Open,
			bar.High,
			bar.Low,
			bar.Close,
			bar.Volume,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("写入K线缓存失败: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交K线缓存失败: %w", err)
	}
	return nil
}

// LoadBars 读取缓存中最近 limit 根K线，按时间升序返回。
func (c *Cache) LoadBars(ctx context.Context, symbol, timeframe string, limit int) ([]market.Bar, error) {
	rows, err := c.db.QueryContext(ctx, `
SELECT bar_time, open, high, low, close, volume
FROM (
    SELECT bar_time, open, high, low, close, volume
    FROM bars
    WHERE symbol = ? AND timeframe = ?
    ORDER BY bar_time DESC
    LIMIT ?
)
ORDER BY bar_time ASC
`, symbol, timeframe, limit)
	if err != nil {
		return nil, fmt.Errorf("读取K线缓存失败: %w", err)
	}
	defer rows.Close()

	var bars []market.Bar
	for rows.Next() {
		var (
			ts  int64
			bar market.Bar
		)
		if err := rows.Scan(&ts, &bar.Open, &bar.High, &bar.Low, &bar.Close, &bar.Volume); err != nil {
			return nil, fmt.Errorf("解析缓存K线失败: %w", err)
		}
		bar.Time = time.UnixMilli(ts).UTC()
		bars = append(bars, bar)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历缓存K线失败: %w", err)
	}

	return bars, nil
}

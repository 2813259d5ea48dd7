package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"stratlab/internal/evaluate"
)

const evaluationsSchema = `
CREATE TABLE IF NOT EXISTS evaluations (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    created_at  TEXT NOT NULL,
    symbol      TEXT NOT NULL,
    strategy    TEXT NOT NULL,
    total_score REAL NOT NULL,
    grade       TEXT NOT NULL,
    payload     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_evaluations_symbol ON evaluations(symbol, created_at);

CREATE TABLE IF NOT EXISTS evaluation_trades (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    evaluation_id INTEGER NOT NULL REFERENCES evaluations(id),
    entry_date    TEXT NOT NULL,
    exit_date     TEXT NOT NULL,
    direction     INTEGER NOT NULL,
    size          REAL NOT NULL,
    profit        REAL NOT NULL,
    close_type    TEXT NOT NULL
);
`

// EvaluationRecord 为持久化后的评估摘要。
type EvaluationRecord struct {
	ID         int64
	CreatedAt  time.Time
	Symbol     string
	Strategy   string
	TotalScore float64
	Grade      string
}

// Evaluations 负责评估结果的持久化与查询。
type Evaluations struct {
	db *sql.DB
}

// NewEvaluations 初始化评估存储并建表。
func NewEvaluations(st *Store) (*Evaluations, error) {
	if _, err := st.DB().Exec(evaluationsSchema); err != nil {
		return nil, fmt.Errorf("初始化评估表失败: %w", err)
	}
	return &Evaluations{db: st.DB()}, nil
}

// Save 落盘一份评估报告：摘要字段单独成列，完整报告以JSON收纳。
func (e *Evaluations) Save(ctx context.Context, symbol string, evaluation *evaluate.Evaluation) (int64, error) {
	payload, err := json.Marshal(evaluation)
	if err != nil {
		return 0, fmt.Errorf("序列化评估报告失败: %w", err)
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("开启评估写入事务失败: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
INSERT INTO evaluations (created_at, symbol, strategy, total_score, grade, payload)
VALUES (?, ?, ?, ?, ?, ?)
`,
		time.Now().UTC().Format(time.RFC3339),
		symbol,
		evaluation.StrategyName,
		evaluation.Rating.TotalScore,
		evaluation.Rating.Grade,
		string(payload),
	)
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("写入评估记录失败: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("获取评估记录ID失败: %w", err)
	}

	for _, trade := range evaluation.Backtest.Trades {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO evaluation_trades (evaluation_id, entry_date, exit_date, direction, size, profit, close_type)
VALUES (?, ?, ?, ?, ?, ?, ?)
`,
			id,
			trade.EntryDate.UTC().Format(time.RFC3339),
			trade.ExitDate.UTC().Format(time.RFC3339),
			trade.Direction,
			trade.Size,
			trade.Profit,
			string(trade.CloseType),
		); err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("写入交易明细失败: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("提交评估记录失败: %w", err)
	}
	return id, nil
}

// Recent 返回指定交易对最近的评估摘要，按时间倒序。
func (e *Evaluations) Recent(ctx context.Context, symbol string, limit int) ([]EvaluationRecord, error) {
	rows, err := e.db.QueryContext(ctx, `
SELECT id, created_at, symbol, strategy, total_score, grade
FROM evaluations
WHERE symbol = ?
ORDER BY created_at DESC, id DESC
LIMIT ?
`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("查询评估记录失败: %w", err)
	}
	defer rows.Close()

	var records []EvaluationRecord
	for rows.Next() {
		var (
			rec       EvaluationRecord
			createdAt string
		)
		if err := rows.Scan(&rec.ID, &createdAt, &rec.Symbol, &rec.Strategy, &rec.TotalScore, &rec.Grade); err != nil {
			return nil, fmt.Errorf("解析评估记录失败: %w", err)
		}
		ts, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("解析评估时间失败: %w", err)
		}
		rec.CreatedAt = ts
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历评估记录失败: %w", err)
	}
	return records, nil
}

// Load 按ID取回完整评估报告。
func (e *Evaluations) Load(ctx context.Context, id int64) (*evaluate.Evaluation, error) {
	var payload string
	err := e.db.QueryRowContext(ctx, `SELECT payload FROM evaluations WHERE id = ?`, id).Scan(&payload)
	if err != nil {
		return nil, fmt.Errorf("读取评估报告失败: %w", err)
	}

	var evaluation evaluate.Evaluation
	if err := json.Unmarshal([]byte(payload), &evaluation); err != nil {
		return nil, fmt.Errorf("反序列化评估报告失败: %w", err)
	}
	return &evaluation, nil
}

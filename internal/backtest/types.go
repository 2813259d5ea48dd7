package backtest

import (
	"time"

	"stratlab/internal/market"
)

// CloseType 标记一笔交易的平仓原因。
type CloseType string

const (
	CloseSignal    CloseType = "signal"      // 信号反转或归零
	CloseStopLoss  CloseType = "stop_loss"   // 触发止损
	CloseTimeStop  CloseType = "time_stop"   // 持仓超时
	CloseEndOfData CloseType = "end_of_data" // 数据结束强制平仓
)

// Position 表示回测过程中的未平仓持仓，由引擎独占持有。
type Position struct {
	EntryDate    time.Time
	EntryIndex   int
	EntryPrice   float64 // 首仓成交价（含滑点）
	Direction    int     // 1 做多，-1 做空
	Size         float64 // 累计持仓股数，始终为正
	StopPrice    float64
	Commission   float64 // 各开仓腿累计手续费
	Slippage     float64 // 各开仓腿累计滑点成本
	PyramidLevel int
	Watermark    float64 // 开仓以来最有利价格
}

// Trade 表示一笔已完成的完整交易，创建后不再修改。
type Trade struct {
	EntryDate  time.Time `json:"entry_date"`
	EntryPrice float64   `json:"entry_price"`
	ExitDate   time.Time `json:"exit_date"`
	ExitPrice  float64   `json:"exit_price"`
	Direction  int       `json:"direction"`
	Size       float64   `json:"size"`
	Profit     float64   `json:"profit"`     // 已扣除两腿手续费与滑点
	ProfitPct  float64   `json:"profit_pct"`
	Commission float64   `json:"commission"`
	Slippage   float64   `json:"slippage"`
	CloseType  CloseType `json:"close_type"`
}

// EquityPoint 记录每根K线结束时的账户快照。
// 多头时 TotalValue = Capital + HoldingValue；
// 空头开仓所得计入现金，TotalValue = Capital。
type EquityPoint struct {
	Date         time.Time `json:"date"`
	Capital      float64   `json:"capital"`
	Holdings     float64   `json:"holdings"` // 带方向的持仓股数
	HoldingValue float64   `json:"holding_value"`
	TotalValue   float64   `json:"total_value"`
	PyramidLevel int       `json:"pyramid_level"`
}

// Result 汇总一次回测的全部输出。
type Result struct {
	EquityCurve []EquityPoint `json:"equity_curve"`
	Trades      []Trade       `json:"trades"`
	PosData     []int         `json:"pos_data"` // 回显输入信号序列
	Metrics     Metrics       `json:"metrics"`
	Costs       CostReport    `json:"costs"`
}

// Runner 抽象一次完整的回测模拟，完整引擎与简化引擎共用同一契约。
type Runner interface {
	Run(bars []market.Bar, signals []int) (*Result, error)
}

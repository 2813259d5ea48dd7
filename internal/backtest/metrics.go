package backtest

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"stratlab/internal/indicator"
)

// 年化换算按252个交易日。
const tradingDaysPerYear = 252

// Summary 汇总交易笔数与胜率。
type Summary struct {
	TotalTrades      int     `json:"total_trades"`
	WinningTrades    int     `json:"winning_trades"`
	LosingTrades     int     `json:"losing_trades"`
	WinRate          float64 `json:"win_rate"`
	AvgTradeDuration float64 `json:"avg_trade_duration"` // 平均持仓天数
	ProfitLossRatio  float64 `json:"profit_loss_ratio"`
}

// Returns 汇总收益指标。
type Returns struct {
	TotalProfit  float64 `json:"total_profit"`
	ProfitPct    float64 `json:"profit_pct"`
	GrossProfit  float64 `json:"gross_profit"`
	GrossLoss    float64 `json:"gross_loss"`
	ProfitFactor float64 `json:"profit_factor"`
	AnnualReturn float64 `json:"annual_return"`
}

// Risk 汇总风险指标。
type Risk struct {
	MaxDrawdown         float64 `json:"max_drawdown"`
	MaxDrawdownDuration int     `json:"max_drawdown_duration"`
	Volatility          float64 `json:"volatility"`
	SharpeRatio         float64 `json:"sharpe_ratio"`
	SortinoRatio        float64 `json:"sortino_ratio"`
}

// Efficiency 汇总单笔交易效率指标。
type Efficiency struct {
	ProfitPerTrade float64 `json:"profit_per_trade"`
	AvgWin         float64 `json:"avg_win"`
	AvgLoss        float64 `json:"avg_loss"`
	LargestWin     float64 `json:"largest_win"`
	LargestLoss    float64 `json:"largest_loss"`
}

// Metrics 为一次回测的绩效指标汇总。
type Metrics struct {
	Summary    Summary    `json:"summary"`
	Returns    Returns    `json:"returns"`
	Risk       Risk       `json:"risk"`
	Efficiency Efficiency `json:"efficiency"`
}

// calculateMetrics 基于交易记录与资金曲线计算绩效指标。
// 所有零分母场景都回退为0，不产生NaN或无穷大。
func calculateMetrics(trades []Trade, equity []EquityPoint, initialCapital float64) Metrics {
	var m Metrics
	if len(equity) == 0 {
		return m
	}

	curve := make([]float64, len(equity))
	for i, point := range equity {
		curve[i] = point.TotalValue
	}

	totalTrades := len(trades)
	var winning int
	var totalProfit, grossProfit, grossLoss float64
	var largestWin, largestLoss float64
	var durationSum float64
	for _, t := range trades {
		totalProfit += t.Profit
		if t.Profit > 0 {
			winning++
			grossProfit += t.Profit
		} else {
			grossLoss += -t.Profit
		}
		if t.Profit > largestWin {
			largestWin = t.Profit
		}
		if t.Profit < largestLoss {
			largestLoss = t.Profit
		}
		durationSum += t.ExitDate.Sub(t.EntryDate).Hours() / 24
	}
	losing := totalTrades - winning

	m.Summary = Summary{
		TotalTrades:      totalTrades,
		WinningTrades:    winning,
		LosingTrades:     losing,
		WinRate:          indicator.SafeDivide(float64(winning), float64(totalTrades)),
		AvgTradeDuration: indicator.SafeDivide(durationSum, float64(totalTrades)),
		ProfitLossRatio: indicator.SafeDivide(
			indicator.SafeDivide(grossProfit, float64(winning)),
			indicator.SafeDivide(grossLoss, float64(losing)),
		),
	}

	m.Returns = Returns{
		TotalProfit:  totalProfit,
		ProfitPct:    indicator.SafeDivide(totalProfit, initialCapital),
		GrossProfit:  grossProfit,
		GrossLoss:    grossLoss,
		ProfitFactor: indicator.SafeDivide(grossProfit, grossLoss),
	}

	totalReturn := indicator.SafeDivide(curve[len(curve)-1]-curve[0], curve[0])
	if len(curve) > 0 && 1+totalReturn > 0 {
		m.Returns.AnnualReturn = math.Pow(1+totalReturn, tradingDaysPerYear/float64(len(curve))) - 1
	}

	maxDD, maxDDBars := drawdownStats(curve)
	dailyReturns := toDailyReturns(curve)

	var volatility, sharpe, sortino float64
	if len(dailyReturns) > 0 {
		std := stat.PopStdDev(dailyReturns, nil)
		mean := stat.Mean(dailyReturns, nil)
		volatility = std * math.Sqrt(tradingDaysPerYear)
		if std > 0 {
			sharpe = math.Sqrt(tradingDaysPerYear) * mean / std
		}
		negatives := negativeOnly(dailyReturns)
		if len(negatives) > 0 {
			downStd := stat.PopStdDev(negatives, nil)
			if downStd > 0 {
				sortino = math.Sqrt(tradingDaysPerYear) * mean / downStd
			}
		}
	}

	m.Risk = Risk{
		MaxDrawdown:         maxDD,
		MaxDrawdownDuration: maxDDBars,
		Volatility:          volatility,
		SharpeRatio:         sharpe,
		SortinoRatio:        sortino,
	}

	m.Efficiency = Efficiency{
		ProfitPerTrade: indicator.SafeDivide(totalProfit, float64(totalTrades)),
		AvgWin:         indicator.SafeDivide(grossProfit, float64(winning)),
		AvgLoss:        indicator.SafeDivide(-grossLoss, float64(losing)),
		LargestWin:     largestWin,
		LargestLoss:    largestLoss,
	}

	return m
}

// drawdownStats 返回最大回撤比例与最长回撤持续K线数。
// 未创新高的K线（含与峰值持平）都计入水下时长。
func drawdownStats(curve []float64) (float64, int) {
	if len(curve) == 0 {
		return 0, 0
	}
	peak := curve[0]
	maxDD := 0.0
	maxBars := 0
	underwater := 0
	for _, value := range curve[1:] {
		if value > peak {
			peak = value
			underwater = 0
			continue
		}
		if peak > 0 {
			dd := (peak - value) / peak
			if dd > maxDD {
				maxDD = dd
			}
		}
		underwater++
		if underwater > maxBars {
			maxBars = underwater
		}
	}
	return maxDD, maxBars
}

func toDailyReturns(curve []float64) []float64 {
	if len(curve) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		returns = append(returns, indicator.SafeDivide(curve[i]-curve[i-1], curve[i-1]))
	}
	return returns
}

func negativeOnly(returns []float64) []float64 {
	var out []float64
	for _, r := range returns {
		if r < 0 {
			out = append(out, r)
		}
	}
	return out
}

package evaluate

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"stratlab/internal/backtest"
	"stratlab/internal/indicator"
)

const tradingDaysPerYear = 252

// RiskMetrics 为从资金曲线派生的风险指标。
// 所有退化输入（零波动、零回撤、单点曲线）都回退为0。
type RiskMetrics struct {
	Volatility          float64 `json:"volatility"`
	MaxDrawdown         float64 `json:"max_drawdown"`
	MaxDrawdownDuration int     `json:"max_drawdown_duration"`
	DownsideRisk        float64 `json:"downside_risk"`
	SharpeRatio         float64 `json:"sharpe_ratio"`
	SortinoRatio        float64 `json:"sortino_ratio"`
	AnnualReturn        float64 `json:"annual_return"`
}

// calculateRiskMetrics 从资金曲线计算风险指标。
// 年化收益按自然日：(1+总收益)^(365/经过天数) - 1。
func calculateRiskMetrics(equity []backtest.EquityPoint, riskFreeRate float64) RiskMetrics {
	var m RiskMetrics
	if len(equity) < 2 {
		return m
	}

	curve := make([]float64, len(equity))
	for i, point := range equity {
		curve[i] = point.TotalValue
	}

	dailyReturns := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		dailyReturns = append(dailyReturns, indicator.SafeDivide(curve[i]-curve[i-1], curve[i-1]))
	}

	// 最大回撤与最长回撤持续时间，与峰值持平的K线同样计入水下时长
	peak := curve[0]
	underwater := 0
	for _, value := range curve[1:] {
		if value > peak {
			peak = value
			underwater = 0
			continue
		}
		if peak > 0 {
			dd := (peak - value) / peak
			if dd > m.MaxDrawdown {
				m.MaxDrawdown = dd
			}
		}
		underwater++
		if underwater > m.MaxDrawdownDuration {
			m.MaxDrawdownDuration = underwater
		}
	}

	std := stat.PopStdDev(dailyReturns, nil)
	mean := stat.Mean(dailyReturns, nil)
	m.Volatility = std * math.Sqrt(tradingDaysPerYear)

	if std > 0 {
		excess := mean - riskFreeRate/tradingDaysPerYear
		m.SharpeRatio = math.Sqrt(tradingDaysPerYear) * excess / std
	}

	var negatives []float64
	for _, r := range dailyReturns {
		if r < 0 {
			negatives = append(negatives, r)
		}
	}
	if len(negatives) > 0 {
		downStd := stat.PopStdDev(negatives, nil)
		m.DownsideRisk = downStd * math.Sqrt(tradingDaysPerYear)
		if downStd > 0 {
			m.SortinoRatio = math.Sqrt(tradingDaysPerYear) * mean / downStd
		}
	}

	elapsedDays := equity[len(equity)-1].Date.Sub(equity[0].Date).Hours() / 24
	totalReturn := indicator.SafeDivide(curve[len(curve)-1]-curve[0], curve[0])
	if elapsedDays > 0 && 1+totalReturn > 0 {
		m.AnnualReturn = math.Pow(1+totalReturn, 365/elapsedDays) - 1
	}

	return m
}

package regime

import (
	"time"

	"gonum.org/v1/gonum/stat"

	"stratlab/internal/backtest"
	"stratlab/internal/indicator"
	"stratlab/internal/market"
)

// Stats 汇总某一市场环境下的策略表现。
type Stats struct {
	Regime         Regime  `json:"regime"`
	TradeCount     int     `json:"trade_count"`
	WinCount       int     `json:"win_count"`
	WinRate        float64 `json:"win_rate"`
	TotalProfit    float64 `json:"total_profit"`
	AvgProfit      float64 `json:"avg_profit"`
	MaxProfit      float64 `json:"max_profit"`
	MaxLoss        float64 `json:"max_loss"`
	ProfitStd      float64 `json:"profit_std"`
	AvgHoldingDays float64 `json:"avg_holding_days"`
}

// Analysis 为按市场环境切分的交易分析结果。
type Analysis struct {
	ByRegime  map[Regime]Stats `json:"by_regime"`
	BarCounts map[Regime]int   `json:"regime_stats"`
}

// AnalyzeTrades 将每笔交易按开仓日期最接近的K线归入对应市场环境，
// 统计各环境下的胜率、平均收益、收益离散度与平均持仓时间。
func (c *Classifier) AnalyzeTrades(trades []backtest.Trade, bars []market.Bar) Analysis {
	regimes := c.Classify(bars)

	analysis := Analysis{
		ByRegime:  map[Regime]Stats{},
		BarCounts: map[Regime]int{},
	}
	for _, r := range regimes {
		analysis.BarCounts[r]++
	}
	if len(bars) == 0 {
		return analysis
	}

	grouped := map[Regime][]backtest.Trade{}
	for _, trade := range trades {
		r := regimes[nearestBar(bars, trade.EntryDate)]
		grouped[r] = append(grouped[r], trade)
	}

	for r, group := range grouped {
		stats := Stats{Regime: r, TradeCount: len(group)}
		stats.MaxProfit = group[0].Profit
		stats.MaxLoss = group[0].Profit
		profits := make([]float64, 0, len(group))
		var holdingDays float64
		for _, trade := range group {
			profits = append(profits, trade.Profit)
			stats.TotalProfit += trade.Profit
			if trade.Profit > 0 {
				stats.WinCount++
			}
			if trade.Profit > stats.MaxProfit {
				stats.MaxProfit = trade.Profit
			}
			if trade.Profit < stats.MaxLoss {
				stats.MaxLoss = trade.Profit
			}
			holdingDays += trade.ExitDate.Sub(trade.EntryDate).Hours() / 24
		}
		stats.WinRate = indicator.SafeDivide(float64(stats.WinCount), float64(stats.TradeCount))
		stats.AvgProfit = indicator.SafeDivide(stats.TotalProfit, float64(stats.TradeCount))
		stats.AvgHoldingDays = indicator.SafeDivide(holdingDays, float64(stats.TradeCount))
		if len(profits) > 1 {
			stats.ProfitStd = stat.PopStdDev(profits, nil)
		}
		analysis.ByRegime[r] = stats
	}

	return analysis
}

// nearestBar 返回时间上最接近目标日期的K线下标，K线按时间升序。
func nearestBar(bars []market.Bar, target time.Time) int {
	lo, hi := 0, len(bars)-1
	for lo < hi {
		mid := (lo + hi) / 2
		if bars[mid].Time.Before(target) {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo > 0 {
		prev := target.Sub(bars[lo-1].Time)
		next := bars[lo].Time.Sub(target)
		if prev < next {
			return lo - 1
		}
	}
	return lo
}

package evaluate

import (
	"fmt"

	"stratlab/internal/backtest"
	"stratlab/internal/indicator"
)

// PeriodPerformance 为按月/季/年切分的复利收益。
type PeriodPerformance struct {
	MonthlyReturns   map[string]float64 `json:"monthly_returns"`
	QuarterlyReturns map[string]float64 `json:"quarterly_returns"`
	YearlyReturns    map[string]float64 `json:"yearly_returns"`
	BestMonth        float64            `json:"best_month"`
	WorstMonth       float64            `json:"worst_month"`
	BestQuarter      float64            `json:"best_quarter"`
	WorstQuarter     float64            `json:"worst_quarter"`
	BestYear         float64            `json:"best_year"`
	WorstYear        float64            `json:"worst_year"`
}

// calculatePeriodPerformance 将逐日收益按周期复利合成。
func calculatePeriodPerformance(equity []backtest.EquityPoint) PeriodPerformance {
	perf := PeriodPerformance{
		MonthlyReturns:   map[string]float64{},
		QuarterlyReturns: map[string]float64{},
		YearlyReturns:    map[string]float64{},
	}
	if len(equity) < 2 {
		return perf
	}

	// 周期键 -> 累计(1+r)乘积
	monthly := map[string]float64{}
	quarterly := map[string]float64{}
	yearly := map[string]float64{}

	for i := 1; i < len(equity); i++ {
		r := indicator.SafeDivide(equity[i].TotalValue-equity[i-1].TotalValue, equity[i-1].TotalValue)
		date := equity[i].Date

		monthKey := date.Format("2006-01")
		quarterKey := fmt.Sprintf("%d-Q%d", date.Year(), (int(date.Month())-1)/3+1)
		yearKey := date.Format("2006")

		compound(monthly, monthKey, r)
		compound(quarterly, quarterKey, r)
		compound(yearly, yearKey, r)
	}

	perf.MonthlyReturns = finalize(monthly)
	perf.QuarterlyReturns = finalize(quarterly)
	perf.YearlyReturns = finalize(yearly)

	perf.BestMonth, perf.WorstMonth = extremes(perf.MonthlyReturns)
	perf.BestQuarter, perf.WorstQuarter = extremes(perf.QuarterlyReturns)
	perf.BestYear, perf.WorstYear = extremes(perf.YearlyReturns)

	return perf
}

func compound(acc map[string]float64, key string, r float64) {
	if _, ok := acc[key]; !ok {
		acc[key] = 1
	}
	acc[key] *= 1 + r
}

func finalize(acc map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(acc))
	for key, product := range acc {
		out[key] = product - 1
	}
	return out
}

func extremes(returns map[string]float64) (best, worst float64) {
	first := true
	for _, r := range returns {
		if first {
			best, worst = r, r
			first = false
			continue
		}
		if r > best {
			best = r
		}
		if r < worst {
			worst = r
		}
	}
	return best, worst
}

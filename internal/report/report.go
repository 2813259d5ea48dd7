// Package report 把评估结果渲染为终端可读的对比表格。
package report

import (
	"fmt"
	"io"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"stratlab/internal/evaluate"
	"stratlab/internal/regime"
)

// RenderComparison 输出策略横向对比表，按总分降序排列。
func RenderComparison(w io.Writer, symbol string, evaluations map[string]*evaluate.Evaluation) {
	keys := make([]string, 0, len(evaluations))
	for key := range evaluations {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		left, right := evaluations[keys[i]], evaluations[keys[j]]
		if left.Rating.TotalScore != right.Rating.TotalScore {
			return left.Rating.TotalScore > right.Rating.TotalScore
		}
		return keys[i] < keys[j]
	})

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("策略评估对比 · %s", symbol)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{
		"策略", "总分", "评级", "年化收益", "最大回撤", "夏普", "胜率", "交易数", "总成本",
	})

	for _, key := range keys {
		ev := evaluations[key]
		metrics := ev.Backtest.Metrics
		t.AppendRow(table.Row{
			ev.StrategyName,
			fmt.Sprintf("%.1f", ev.Rating.TotalScore),
			ev.Rating.Grade,
			fmt.Sprintf("%.2f%%", ev.RiskMetrics.AnnualReturn*100),
			fmt.Sprintf("%.2f%%", ev.RiskMetrics.MaxDrawdown*100),
			fmt.Sprintf("%.2f", ev.RiskMetrics.SharpeRatio),
			fmt.Sprintf("%.1f%%", metrics.Summary.WinRate*100),
			metrics.Summary.TotalTrades,
			fmt.Sprintf("%.2f", ev.Backtest.Costs.Analysis.TotalCost),
		})
	}

	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
		{Number: 7, Align: text.AlignRight},
		{Number: 8, Align: text.AlignRight},
		{Number: 9, Align: text.AlignRight},
	})

	t.Render()
}

// RenderDetail 输出单个策略的分项明细和市场环境拆解。
func RenderDetail(w io.Writer, ev *evaluate.Evaluation) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("策略明细 · %s", ev.StrategyName)
	t.SetStyle(table.StyleLight)

	metrics := ev.Backtest.Metrics
	t.AppendRows([]table.Row{
		{"绩效分", fmt.Sprintf("%.1f", ev.Rating.PerformanceScore)},
		{"风控分", fmt.Sprintf("%.1f", ev.Rating.RiskScore)},
		{"稳定分", fmt.Sprintf("%.1f", ev.Rating.StabilityScore)},
		{"净利润", fmt.Sprintf("%.2f", metrics.Returns.TotalProfit)},
		{"盈亏比", fmt.Sprintf("%.2f", metrics.Summary.ProfitLossRatio)},
		{"利润因子", fmt.Sprintf("%.2f", metrics.Returns.ProfitFactor)},
		{"索提诺", fmt.Sprintf("%.2f", ev.RiskMetrics.SortinoRatio)},
		{"回撤持续(根)", fmt.Sprintf("%d", ev.RiskMetrics.MaxDrawdownDuration)},
	})
	t.Render()

	renderRegimeBreakdown(w, ev.RegimeAnalysis)
}

func renderRegimeBreakdown(w io.Writer, analysis regime.Analysis) {
	if len(analysis.ByRegime) == 0 {
		return
	}

	order := []regime.Regime{
		regime.StrongBull, regime.Bull, regime.Range, regime.Bear, regime.StrongBear,
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("按市场环境拆解")
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"环境", "交易数", "胜率", "累计盈亏", "K线占比"})

	totalBars := 0
	for _, count := range analysis.BarCounts {
		totalBars += count
	}

	for _, r := range order {
		stats, ok := analysis.ByRegime[r]
		if !ok {
			continue
		}
		share := 0.0
		if totalBars > 0 {
			share = float64(analysis.BarCounts[r]) / float64(totalBars)
		}
		t.AppendRow(table.Row{
			string(r),
			stats.TradeCount,
			fmt.Sprintf("%.1f%%", stats.WinRate*100),
			fmt.Sprintf("%.2f", stats.TotalProfit),
			fmt.Sprintf("%.1f%%", share*100),
		})
	}

	t.Render()
}

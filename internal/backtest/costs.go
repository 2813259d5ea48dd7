package backtest

import (
	"time"

	"stratlab/internal/indicator"
)

// CostEntry 记录单笔成交的成本明细。
type CostEntry struct {
	Date       time.Time `json:"date"`
	Type       string    `json:"type"` // open / close
	Price      float64   `json:"price"`
	Size       float64   `json:"size"`
	Commission float64   `json:"commission"`
	Slippage   float64   `json:"slippage"`
}

// Ledger 维护一次回测的成本累计与成交流水。
// 一个实例只服务一次运行，Run 开始时必须 Reset。
type Ledger struct {
	totalCommission float64
	totalSlippage   float64
	entries         []CostEntry
}

// Reset 清空累计成本，供引擎在每次运行开始时调用。
func (l *Ledger) Reset() {
	l.totalCommission = 0
	l.totalSlippage = 0
	l.entries = nil
}

func (l *Ledger) record(entry CostEntry) {
	l.totalCommission += entry.Commission
	l.totalSlippage += entry.Slippage
	l.entries = append(l.entries, entry)
}

// TotalCommission 返回累计手续费。
func (l *Ledger) TotalCommission() float64 {
	return l.totalCommission
}

// TotalSlippage 返回累计滑点成本。
func (l *Ledger) TotalSlippage() float64 {
	return l.totalSlippage
}

// Entries 返回成交流水副本。
func (l *Ledger) Entries() []CostEntry {
	return append([]CostEntry(nil), l.entries...)
}

// CostBreakdown 按开平仓方向汇总成本。
type CostBreakdown struct {
	Commission float64 `json:"commission"`
	Slippage   float64 `json:"slippage"`
}

// CostAnalysis 汇总一次回测的成本结构。
type CostAnalysis struct {
	TotalCost            float64                  `json:"total_cost"`
	AvgCommissionPerFill float64                  `json:"avg_commission_per_fill"`
	AvgSlippagePerFill   float64                  `json:"avg_slippage_per_fill"`
	ByType               map[string]CostBreakdown `json:"cost_by_type"`
	CommissionShare      float64                  `json:"commission_pct"`
	SlippageShare        float64                  `json:"slippage_pct"`
}

// CostReport 为回测结果中的成本部分。
type CostReport struct {
	TotalCommission float64      `json:"total_commission"`
	TotalSlippage   float64      `json:"total_slippage"`
	Transactions    []CostEntry  `json:"transactions"`
	Analysis        CostAnalysis `json:"cost_analysis"`
}

// Report 生成成本汇总。
func (l *Ledger) Report() CostReport {
	report := CostReport{
		TotalCommission: l.totalCommission,
		TotalSlippage:   l.totalSlippage,
		Transactions:    l.Entries(),
	}

	if len(l.entries) == 0 {
		report.Analysis.ByType = map[string]CostBreakdown{}
		return report
	}

	byType := map[string]CostBreakdown{}
	for _, entry := range l.entries {
		agg := byType[entry.Type]
		agg.Commission += entry.Commission
		agg.Slippage += entry.Slippage
		byType[entry.Type] = agg
	}

	total := l.totalCommission + l.totalSlippage
	fills := float64(len(l.entries))
	report.Analysis = CostAnalysis{
		TotalCost:            total,
		AvgCommissionPerFill: l.totalCommission / fills,
		AvgSlippagePerFill:   l.totalSlippage / fills,
		ByType:               byType,
		CommissionShare:      indicator.SafeDivide(l.totalCommission, total),
		SlippageShare:        indicator.SafeDivide(l.totalSlippage, total),
	}
	return report
}

package backtest

import (
	"math"
	"testing"
	"time"

	"stratlab/internal/market"
	"stratlab/internal/sizing"
)

// makeBars 按日线间隔生成K线，prices 为 [open, high, low, close] 四元组。
func makeBars(prices [][4]float64) []market.Bar {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]market.Bar, len(prices))
	for i, p := range prices {
		bars[i] = market.Bar{
			Time:   start.AddDate(0, 0, i),
			Open:   p[0],
			High:   p[1],
			Low:    p[2],
			Close:  p[3],
			Volume: 1000,
		}
	}
	return bars
}

// frictionlessConfig 返回关闭止损、时间止损与交易成本的参数，
// 用于需要精确数值断言的场景。
func frictionlessConfig() Config {
	return Config{
		InitialCapital:      100000,
		Sizing:              sizing.PolicyFixed,
		MaxPositionFraction: 0.2,
		ATRPeriod:           14,
		SharesPerLot:        100,
	}
}

func TestRun_SignalLengthMismatch(t *testing.T) {
	engine, err := NewEngine(frictionlessConfig(), nil)
	if err != nil {
		t.Fatalf("NewEngine returned error: %v", err)
	}

	bars := makeBars([][4]float64{{10, 11, 9, 10}, {10, 11, 9, 10}})
	if _, err := engine.Run(bars, []int{1}); err == nil {
		t.Fatalf("expected error for mismatched signal length, got nil")
	}
}

func TestRun_LongRoundTrip(t *testing.T) {
	engine, err := NewEngine(frictionlessConfig(), nil)
	if err != nil {
		t.Fatalf("NewEngine returned error: %v", err)
	}

	bars := makeBars([][4]float64{
		{10, 10.5, 9.8, 10},
		{10, 11, 9.9, 10.5}, // 信号1，开盘价开仓
		{10.5, 11.5, 10.2, 11},
		{12, 12.5, 11.5, 12}, // 信号0，开盘价平仓
		{12, 12.2, 11.8, 12},
	})
	signals := []int{0, 1, 1, 0, 0}

	result, err := engine.Run(bars, signals)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if len(result.Trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(result.Trades))
	}

	trade := result.Trades[0]
	// 固定仓位 100000*0.2=20000，价格10，每手100股 -> 2000股
	if trade.Size != 2000 {
		t.Errorf("expected size 2000, got %f", trade.Size)
	}
	if trade.EntryPrice != 10 {
		t.Errorf("expected entry price 10, got %f", trade.EntryPrice)
	}
	if trade.ExitPrice != 12 {
		t.Errorf("expected exit price 12, got %f", trade.ExitPrice)
	}
	if trade.CloseType != CloseSignal {
		t.Errorf("expected close type signal, got %s", trade.CloseType)
	}
	if diff := math.Abs(trade.Profit - 4000); diff > 1e-9 {
		t.Errorf("expected profit 4000, got %f", trade.Profit)
	}

	final := result.EquityCurve[len(result.EquityCurve)-1]
	if diff := math.Abs(final.TotalValue - 104000); diff > 1e-9 {
		t.Errorf("expected final equity 104000, got %f", final.TotalValue)
	}
}

func TestRun_EquityInvariantWhileHoldingLong(t *testing.T) {
	engine, err := NewEngine(frictionlessConfig(), nil)
	if err != nil {
		t.Fatalf("NewEngine returned error: %v", err)
	}

	bars := makeBars([][4]float64{
		{10, 10.5, 9.8, 10},
		{10, 11, 9.9, 10.5},
		{10.5, 11.5, 10.2, 11},
		{11, 11.5, 10.8, 11.2},
		{11.2, 11.6, 11, 11.4},
	})
	signals := []int{0, 1, 1, 1, 1}

	result, err := engine.Run(bars, signals)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	// 持仓中的K线满足 total = capital + holdingValue
	for i := 1; i < len(result.EquityCurve)-1; i++ {
		point := result.EquityCurve[i]
		if point.Holdings == 0 {
			t.Fatalf("expected open position at bar %d", i)
		}
		sum := point.Capital + point.HoldingValue
		if diff := math.Abs(point.TotalValue - sum); diff > 1e-9 {
			t.Errorf("bar %d: total %f != capital+holding %f", i, point.TotalValue, sum)
		}
	}

	// 数据结束强平后最后一个快照必须无持仓
	final := result.EquityCurve[len(result.EquityCurve)-1]
	if final.Holdings != 0 || final.HoldingValue != 0 {
		t.Errorf("expected flat final point, got holdings=%f value=%f", final.Holdings, final.HoldingValue)
	}
	if final.TotalValue != final.Capital {
		t.Errorf("expected total==capital on final point, got %f vs %f", final.TotalValue, final.Capital)
	}
}

func TestRun_ShortEquityExcludesHoldingValue(t *testing.T) {
	engine, err := NewEngine(frictionlessConfig(), nil)
	if err != nil {
		t.Fatalf("NewEngine returned error: %v", err)
	}

	bars := makeBars([][4]float64{
		{10, 10.5, 9.8, 10},
		{10, 10.2, 9.5, 9.8},
		{9.8, 10, 9.4, 9.6},
		{9.6, 9.8, 9.2, 9.4},
	})
	signals := []int{0, -1, -1, -1}

	result, err := engine.Run(bars, signals)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	for i := 1; i < len(result.EquityCurve)-1; i++ {
		point := result.EquityCurve[i]
		if point.Holdings >= 0 {
			t.Fatalf("expected short holdings at bar %d, got %f", i, point.Holdings)
		}
		if point.HoldingValue != 0 {
			t.Errorf("bar %d: expected zero holding value for short, got %f", i, point.HoldingValue)
		}
		if point.TotalValue != point.Capital {
			t.Errorf("bar %d: expected total==capital for short, got %f vs %f", i, point.TotalValue, point.Capital)
		}
	}

	if len(result.Trades) != 1 || result.Trades[0].CloseType != CloseEndOfData {
		t.Fatalf("expected single end_of_data trade, got %+v", result.Trades)
	}
	// 开仓于10，按最后收盘9.4强平，2000股空头盈利1200
	if diff := math.Abs(result.Trades[0].Profit - 1200); diff > 1e-9 {
		t.Errorf("expected short profit 1200, got %f", result.Trades[0].Profit)
	}
}

func TestRun_StopLossTriggered(t *testing.T) {
	cfg := frictionlessConfig()
	cfg.StopLossFraction = 0.05

	engine, err := NewEngine(cfg, nil)
	if err != nil {
		t.Fatalf("NewEngine returned error: %v", err)
	}

	bars := makeBars([][4]float64{
		{10, 10.2, 9.9, 10},
		{10, 10.3, 9.9, 10.1}, // 开仓于10
		{10, 10.1, 9.4, 9.5},  // 最低价跌破止损价9.5
		{9.5, 9.6, 9.3, 9.4},
	})
	signals := []int{0, 1, 1, 1}

	result, err := engine.Run(bars, signals)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if len(result.Trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(result.Trades))
	}
	trade := result.Trades[0]
	if trade.CloseType != CloseStopLoss {
		t.Fatalf("expected stop_loss close, got %s", trade.CloseType)
	}
	if trade.ExitPrice != 9.5 {
		t.Errorf("expected exit at stop price 9.5, got %f", trade.ExitPrice)
	}
	if diff := math.Abs(trade.Profit - (-1000)); diff > 1e-9 {
		t.Errorf("expected loss -1000, got %f", trade.Profit)
	}
}

func TestRun_TrailingStopUsesWatermark(t *testing.T) {
	cfg := frictionlessConfig()
	cfg.StopLossFraction = 0.05
	cfg.TrailingStopFraction = 0.05

	engine, err := NewEngine(cfg, nil)
	if err != nil {
		t.Fatalf("NewEngine returned error: %v", err)
	}

	bars := makeBars([][4]float64{
		{10, 10.2, 9.9, 10},
		{10, 10.3, 9.9, 10.1}, // 开仓，水位升至10.3
		{10.2, 12, 10.1, 11.8}, // 水位升至12
		{11.8, 11.9, 11.3, 11.5}, // 最低11.3 <= 12*0.95=11.4 触发跟踪止损
		{11.5, 11.6, 11.2, 11.3},
	})
	signals := []int{0, 1, 1, 1, 1}

	result, err := engine.Run(bars, signals)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if len(result.Trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(result.Trades))
	}
	trade := result.Trades[0]
	if trade.CloseType != CloseStopLoss {
		t.Fatalf("expected stop_loss close, got %s", trade.CloseType)
	}
	if diff := math.Abs(trade.ExitPrice - 11.4); diff > 1e-9 {
		t.Errorf("expected trailing exit 11.4, got %f", trade.ExitPrice)
	}
}

func TestRun_TimeStopClosesAtBarBudget(t *testing.T) {
	cfg := frictionlessConfig()
	cfg.TimeStopBars = 2

	engine, err := NewEngine(cfg, nil)
	if err != nil {
		t.Fatalf("NewEngine returned error: %v", err)
	}

	bars := makeBars([][4]float64{
		{10, 10.2, 9.9, 10},
		{10, 10.3, 9.9, 10.1},
		{10.1, 10.4, 10, 10.2},
		{10.2, 10.5, 10.1, 10.3},
		{10.3, 10.6, 10.2, 10.4},
	})
	signals := []int{0, 1, 1, 1, 1}

	result, err := engine.Run(bars, signals)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if len(result.Trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(result.Trades))
	}
	trade := result.Trades[0]
	if trade.CloseType != CloseTimeStop {
		t.Fatalf("expected time_stop close, got %s", trade.CloseType)
	}
	// 开仓于第1根，持有满2根后在第3根开盘平仓
	if !trade.ExitDate.Equal(bars[3].Time) {
		t.Errorf("expected exit at bar 3, got %s", trade.ExitDate)
	}
	if trade.ExitPrice != 10.2 {
		t.Errorf("expected exit at open 10.2, got %f", trade.ExitPrice)
	}
}

func TestRun_AtMostOneEndOfDataClose(t *testing.T) {
	engine, err := NewEngine(frictionlessConfig(), nil)
	if err != nil {
		t.Fatalf("NewEngine returned error: %v", err)
	}

	bars := makeBars([][4]float64{
		{10, 10.5, 9.8, 10},
		{10, 11, 9.9, 10.5},
		{10.5, 11, 10, 10.2},
		{10.2, 10.5, 9.8, 10},
	})
	signals := []int{0, 1, -1, -1}

	result, err := engine.Run(bars, signals)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	endOfData := 0
	for _, trade := range result.Trades {
		if trade.CloseType == CloseEndOfData {
			endOfData++
		}
	}
	if endOfData != 1 {
		t.Errorf("expected exactly one end_of_data trade, got %d", endOfData)
	}
	if result.Trades[len(result.Trades)-1].CloseType != CloseEndOfData {
		t.Errorf("expected end_of_data to be the last trade")
	}
}

func TestRun_ReversalClosesThenReopens(t *testing.T) {
	engine, err := NewEngine(frictionlessConfig(), nil)
	if err != nil {
		t.Fatalf("NewEngine returned error: %v", err)
	}

	bars := makeBars([][4]float64{
		{10, 10.5, 9.8, 10},
		{10, 11, 9.9, 10.5},
		{11, 11.5, 10.5, 11},
		{11, 11.2, 10.5, 10.8},
	})
	signals := []int{0, 1, -1, -1}

	result, err := engine.Run(bars, signals)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if len(result.Trades) != 2 {
		t.Fatalf("expected 2 trades after reversal, got %d", len(result.Trades))
	}
	first, second := result.Trades[0], result.Trades[1]
	if first.Direction != 1 || first.CloseType != CloseSignal {
		t.Errorf("unexpected first trade: %+v", first)
	}
	if second.Direction != -1 {
		t.Errorf("expected reopened short, got direction %d", second.Direction)
	}
	if !second.EntryDate.Equal(bars[2].Time) {
		t.Errorf("expected short opened on reversal bar, got %s", second.EntryDate)
	}
}

func TestRun_PyramidAddsScaledLeg(t *testing.T) {
	cfg := Config{
		InitialCapital:      100000,
		Sizing:              sizing.PolicyPyramid,
		MaxPositionFraction: 0.5,
		ATRPeriod:           3,
		PyramidFactor:       0.5,
		MaxPyramidLevels:    2,
		SharesPerLot:        100,
	}

	engine, err := NewEngine(cfg, nil)
	if err != nil {
		t.Fatalf("NewEngine returned error: %v", err)
	}

	prices := make([][4]float64, 6)
	for i := range prices {
		open := 100 + 2*float64(i)
		close := open + 1
		prices[i] = [4]float64{open, close + 0.5, open - 0.5, close}
	}
	bars := makeBars(prices)
	signals := []int{0, 0, 1, 1, 1, 1}

	result, err := engine.Run(bars, signals)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if len(result.Trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(result.Trades))
	}
	trade := result.Trades[0]
	// 首仓400股 + 一次减半加仓100股
	if trade.Size != 500 {
		t.Errorf("expected pyramided size 500, got %f", trade.Size)
	}

	maxLevel := 0
	for _, point := range result.EquityCurve {
		if point.PyramidLevel > maxLevel {
			maxLevel = point.PyramidLevel
		}
	}
	if maxLevel != 2 {
		t.Errorf("expected max pyramid level 2, got %d", maxLevel)
	}

	// 现金模型对账：100000 + 400*(111-104) + 100*(111-107)
	final := result.EquityCurve[len(result.EquityCurve)-1]
	if diff := math.Abs(final.TotalValue - 103200); diff > 1e-9 {
		t.Errorf("expected final equity 103200, got %f", final.TotalValue)
	}
}

func TestRun_RepeatedRunsAreIsolated(t *testing.T) {
	cfg := frictionlessConfig()
	cfg.CommissionRate = 0.001
	cfg.SlippageRate = 0.002

	engine, err := NewEngine(cfg, nil)
	if err != nil {
		t.Fatalf("NewEngine returned error: %v", err)
	}

	bars := makeBars([][4]float64{
		{10, 10.5, 9.8, 10},
		{10, 11, 9.9, 10.5},
		{10.5, 11.5, 10.2, 11},
		{12, 12.5, 11.5, 12},
		{12, 12.2, 11.8, 12},
	})
	signals := []int{0, 1, 1, 0, 0}

	first, err := engine.Run(bars, signals)
	if err != nil {
		t.Fatalf("first Run returned error: %v", err)
	}
	second, err := engine.Run(bars, signals)
	if err != nil {
		t.Fatalf("second Run returned error: %v", err)
	}

	if first.Costs.TotalCommission != second.Costs.TotalCommission {
		t.Errorf("commission accumulated across runs: %f vs %f",
			first.Costs.TotalCommission, second.Costs.TotalCommission)
	}
	if first.Costs.TotalSlippage != second.Costs.TotalSlippage {
		t.Errorf("slippage accumulated across runs: %f vs %f",
			first.Costs.TotalSlippage, second.Costs.TotalSlippage)
	}
	if len(first.Trades) != len(second.Trades) {
		t.Fatalf("trade counts differ: %d vs %d", len(first.Trades), len(second.Trades))
	}
	if first.Trades[0].Profit != second.Trades[0].Profit {
		t.Errorf("profits differ across identical runs: %f vs %f",
			first.Trades[0].Profit, second.Trades[0].Profit)
	}
}

func TestRun_HigherCostsReduceProfit(t *testing.T) {
	bars := makeBars([][4]float64{
		{10, 10.5, 9.8, 10},
		{10, 11, 9.9, 10.5},
		{10.5, 11.5, 10.2, 11},
		{12, 12.5, 11.5, 12},
		{12, 12.2, 11.8, 12},
	})
	signals := []int{0, 1, 1, 0, 0}

	run := func(commission, slippage float64) *Result {
		cfg := frictionlessConfig()
		cfg.CommissionRate = commission
		cfg.SlippageRate = slippage
		engine, err := NewEngine(cfg, nil)
		if err != nil {
			t.Fatalf("NewEngine returned error: %v", err)
		}
		result, err := engine.Run(bars, signals)
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
		return result
	}

	free := run(0, 0)
	cheap := run(0.0003, 0.001)
	costly := run(0.003, 0.01)

	if !(free.Trades[0].Profit > cheap.Trades[0].Profit) {
		t.Errorf("expected frictionless profit above cheap: %f vs %f",
			free.Trades[0].Profit, cheap.Trades[0].Profit)
	}
	if !(cheap.Trades[0].Profit > costly.Trades[0].Profit) {
		t.Errorf("expected cheap profit above costly: %f vs %f",
			cheap.Trades[0].Profit, costly.Trades[0].Profit)
	}
	if !(costly.Costs.TotalCommission > cheap.Costs.TotalCommission) {
		t.Errorf("expected commission to grow with rate")
	}
	if free.Costs.TotalCommission != 0 || free.Costs.TotalSlippage != 0 {
		t.Errorf("expected zero costs in frictionless run, got %+v", free.Costs)
	}
}

func TestRun_CostTotalsMatchLedgerEntries(t *testing.T) {
	cfg := frictionlessConfig()
	cfg.CommissionRate = 0.0003
	cfg.SlippageRate = 0.001

	engine, err := NewEngine(cfg, nil)
	if err != nil {
		t.Fatalf("NewEngine returned error: %v", err)
	}

	bars := makeBars([][4]float64{
		{10, 10.5, 9.8, 10},
		{10, 11, 9.9, 10.5},
		{10.5, 11.5, 10.2, 11},
		{11, 11.2, 10.5, 10.8}, // 反手：平多开空
		{10.8, 11, 10.4, 10.6}, // 平空
		{10.6, 10.8, 10.3, 10.5},
	})
	signals := []int{0, 1, 1, -1, 0, 0}

	result, err := engine.Run(bars, signals)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if len(result.Trades) != 2 {
		t.Fatalf("expected 2 trades, got %d", len(result.Trades))
	}
	if got, want := len(result.Costs.Transactions), 2*len(result.Trades); got != want {
		t.Fatalf("expected %d ledger entries, got %d", want, got)
	}

	var sumCommission, sumSlippage float64
	for i, entry := range result.Costs.Transactions {
		if entry.Commission <= 0 || entry.Slippage <= 0 {
			t.Errorf("entry %d should carry positive costs, got %+v", i, entry)
		}
		sumCommission += entry.Commission
		sumSlippage += entry.Slippage
	}

	if math.Abs(result.Costs.TotalCommission-sumCommission) > 1e-9 {
		t.Errorf("total commission %f does not match ledger sum %f",
			result.Costs.TotalCommission, sumCommission)
	}
	if math.Abs(result.Costs.TotalSlippage-sumSlippage) > 1e-9 {
		t.Errorf("total slippage %f does not match ledger sum %f",
			result.Costs.TotalSlippage, sumSlippage)
	}

	analysis := result.Costs.Analysis
	if math.Abs(analysis.TotalCost-(sumCommission+sumSlippage)) > 1e-9 {
		t.Errorf("analysis total cost %f does not match ledger sum %f",
			analysis.TotalCost, sumCommission+sumSlippage)
	}

	var byTypeCommission float64
	for _, breakdown := range analysis.ByType {
		byTypeCommission += breakdown.Commission
	}
	if math.Abs(byTypeCommission-sumCommission) > 1e-9 {
		t.Errorf("by-type commission %f does not match ledger sum %f",
			byTypeCommission, sumCommission)
	}
}

func TestSimpleEngine_DateParityWithFullEngine(t *testing.T) {
	bars := makeBars([][4]float64{
		{10, 10.5, 9.8, 10},
		{10, 11, 9.9, 10.5},
		{10.5, 11.5, 10.2, 11},
		{12, 12.5, 11.5, 12},
		{12, 12.2, 11.8, 11.9},
		{11.9, 12, 11.5, 11.6},
	})
	signals := []int{0, 1, 1, 0, -1, -1}

	full, err := NewEngine(frictionlessConfig(), nil)
	if err != nil {
		t.Fatalf("NewEngine returned error: %v", err)
	}
	fullResult, err := full.Run(bars, signals)
	if err != nil {
		t.Fatalf("full Run returned error: %v", err)
	}

	simple := NewSimpleEngine(frictionlessConfig())
	simpleResult, err := simple.Run(bars, signals)
	if err != nil {
		t.Fatalf("simple Run returned error: %v", err)
	}

	if len(fullResult.Trades) != len(simpleResult.Trades) {
		t.Fatalf("trade counts differ: full=%d simple=%d",
			len(fullResult.Trades), len(simpleResult.Trades))
	}
	for i := range fullResult.Trades {
		ft, st := fullResult.Trades[i], simpleResult.Trades[i]
		if !ft.EntryDate.Equal(st.EntryDate) {
			t.Errorf("trade %d entry dates differ: %s vs %s", i, ft.EntryDate, st.EntryDate)
		}
		if !ft.ExitDate.Equal(st.ExitDate) {
			t.Errorf("trade %d exit dates differ: %s vs %s", i, ft.ExitDate, st.ExitDate)
		}
		if ft.Direction != st.Direction {
			t.Errorf("trade %d directions differ: %d vs %d", i, ft.Direction, st.Direction)
		}
	}
}

func TestNewEngine_RejectsUnknownPolicy(t *testing.T) {
	cfg := frictionlessConfig()
	cfg.Sizing = "martingale"
	if _, err := NewEngine(cfg, nil); err == nil {
		t.Fatalf("expected error for unknown sizing policy")
	}
}

func TestNewEngine_RejectsInvalidFractions(t *testing.T) {
	cfg := frictionlessConfig()
	cfg.StopLossFraction = 1.5
	if _, err := NewEngine(cfg, nil); err == nil {
		t.Fatalf("expected validation error for stop_loss_fraction=1.5")
	}
}

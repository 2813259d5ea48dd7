package backtest

import (
	"fmt"

	"stratlab/internal/market"
	"stratlab/internal/sizing"
)

// SimpleEngine 为低保真对照引擎：忽略仓位策略、止损与交易成本，
// 只在信号离开0时开仓、信号反转或归零时平仓。
// 在未配置止损与金字塔的前提下，它与完整引擎产生相同的开平仓日期，
// 用于交叉验证完整引擎的信号处理逻辑。
type SimpleEngine struct {
	cfg Config
}

// NewSimpleEngine 构建简化引擎。
func NewSimpleEngine(cfg Config) *SimpleEngine {
	return &SimpleEngine{cfg: cfg.normalize()}
}

// Run 执行简化回测。signals 必须与 bars 等长。
func (e *SimpleEngine) Run(bars []market.Bar, signals []int) (*Result, error) {
	if len(signals) != len(bars) {
		return nil, fmt.Errorf("backtest: 信号序列长度 %d 与K线数量 %d 不符", len(signals), len(bars))
	}

	result := &Result{
		PosData: append([]int(nil), signals...),
	}

	capital := e.cfg.InitialCapital
	var position *Position

	closeAt := func(price float64, bar market.Bar, closeType CloseType) {
		profit := (price - position.EntryPrice) * position.Size * float64(position.Direction)
		if position.Direction == 1 {
			capital += price * position.Size
		} else {
			capital -= price * position.Size
		}
		result.Trades = append(result.Trades, Trade{
			EntryDate:  position.EntryDate,
			EntryPrice: position.EntryPrice,
			ExitDate:   bar.Time,
			ExitPrice:  price,
			Direction:  position.Direction,
			Size:       position.Size,
			Profit:     profit,
			ProfitPct:  profit / (position.EntryPrice * position.Size),
			CloseType:  closeType,
		})
		position = nil
	}

	for i, bar := range bars {
		signal := signals[i]
		prevSignal := 0
		if i > 0 {
			prevSignal = signals[i-1]
		}

		if signal != prevSignal {
			if position != nil && (signal == 0 || signal == -prevSignal) {
				closeAt(bar.Open, bar, CloseSignal)
			}
			if signal != 0 && position == nil {
				// 始终按初始资金整手建仓，不考虑滑点与手续费
				size := sizing.Lots(e.cfg.InitialCapital, bar.Open, e.cfg.SharesPerLot)
				if size > 0 {
					if signal == 1 {
						capital -= bar.Open * size
					} else {
						capital += bar.Open * size
					}
					position = &Position{
						EntryDate:    bar.Time,
						EntryIndex:   i,
						EntryPrice:   bar.Open,
						Direction:    signal,
						Size:         size,
						PyramidLevel: 1,
					}
				}
			}
		}

		point := EquityPoint{
			Date:       bar.Time,
			Capital:    capital,
			TotalValue: capital,
		}
		if position != nil {
			point.Holdings = position.Size * float64(position.Direction)
			point.PyramidLevel = position.PyramidLevel
			if position.Direction == 1 {
				point.HoldingValue = bar.Close * position.Size
				point.TotalValue = capital + point.HoldingValue
			}
		}
		result.EquityCurve = append(result.EquityCurve, point)
	}

	if position != nil && len(bars) > 0 {
		last := bars[len(bars)-1]
		closeAt(last.Close, last, CloseEndOfData)
		curve := result.EquityCurve
		curve[len(curve)-1] = EquityPoint{
			Date:       last.Time,
			Capital:    capital,
			TotalValue: capital,
		}
	}

	result.Metrics = calculateMetrics(result.Trades, result.EquityCurve, e.cfg.InitialCapital)
	result.Costs = (&Ledger{}).Report()

	return result, nil
}

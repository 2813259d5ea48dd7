package backtest

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"stratlab/internal/indicator"
	"stratlab/internal/market"
	"stratlab/internal/risk"
	"stratlab/internal/sizing"
)

// Engine 按K线逐根回放策略信号，模拟仓位、止损与交易成本。
// 一个实例只能被单个goroutine使用；并行评估多个策略时每次运行使用独立实例。
type Engine struct {
	cfg    Config
	sizer  sizing.Sizer
	stop   risk.Rule
	ledger *Ledger
	logger *zap.Logger
}

// NewEngine 构建回测引擎，未知的仓位或止损策略立即报错。
func NewEngine(cfg Config, logger *zap.Logger) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	sizer, err := sizing.ForPolicy(cfg.Sizing)
	if err != nil {
		return nil, err
	}

	stop, err := risk.ForType(risk.StopComposite, cfg.StopLossFraction, cfg.TrailingStopFraction)
	if err != nil {
		return nil, err
	}

	return &Engine{
		cfg:    cfg,
		sizer:  sizer,
		stop:   stop,
		ledger: &Ledger{},
		logger: logger,
	}, nil
}

// Config 返回引擎生效的参数。
func (e *Engine) Config() Config {
	return e.cfg
}

// simState 聚合回测循环中的全部运行时状态，保证实例级隔离。
type simState struct {
	capital  float64
	position *Position
	result   *Result
}

// Run 执行一次完整回测。signals 必须与 bars 等长，取值限于{-1,0,1}。
// 每次调用开始时重置成本账本，结果之间互不污染。
func (e *Engine) Run(bars []market.Bar, signals []int) (*Result, error) {
	if len(signals) != len(bars) {
		return nil, fmt.Errorf("backtest: 信号序列长度 %d 与K线数量 %d 不符", len(signals), len(bars))
	}

	e.ledger.Reset()

	series := market.NewSeries(bars)
	atr := indicator.ATR(series, e.cfg.ATRPeriod)

	state := &simState{
		capital: e.cfg.InitialCapital,
		result: &Result{
			PosData: append([]int(nil), signals...),
		},
	}

	for i, bar := range bars {
		currentATR := 0.0
		if i < len(atr) {
			currentATR = atr[i]
		}
		signal := signals[i]
		prevSignal := 0
		if i > 0 {
			prevSignal = signals[i-1]
		}

		acted := false

		// 1. 时间止损
		if state.position != nil && e.cfg.TimeStopBars > 0 {
			if i-state.position.EntryIndex >= e.cfg.TimeStopBars {
				e.closePosition(state, bar.Open, bar, CloseTimeStop)
				acted = true
			}
		}

		// 2/3. 信号变化：先平不符方向的旧仓，再按新信号开仓
		if signal != prevSignal {
			if state.position != nil && (signal == 0 || signal == -prevSignal) {
				e.closePosition(state, bar.Open, bar, CloseSignal)
				acted = true
			}
			if signal != 0 && state.position == nil {
				if e.openPosition(state, bar.Open, signal, i, bar, currentATR) {
					acted = true
				}
			}
		} else if e.canPyramid(state, signal) {
			// 4. 金字塔加仓：收盘价自首仓起有利移动超过一个ATR
			if pyramidTriggered(state.position, bar.Close, currentATR) {
				if e.addPyramidLeg(state, bar, currentATR) {
					acted = true
				}
			}
		}

		// 5. 止损检查：当根K线已有开平仓动作时跳过
		if state.position != nil && !acted && e.stopsEnabled() {
			stopPrice := e.stop.Price(risk.Input{
				EntryPrice: state.position.EntryPrice,
				Direction:  state.position.Direction,
				Watermark:  state.position.Watermark,
				ATR:        currentATR,
			})
			if risk.Triggered(state.position.Direction, stopPrice, bar.High, bar.Low) {
				e.closePosition(state, stopPrice, bar, CloseStopLoss)
			} else {
				updateWatermark(state.position, bar)
			}
		}

		state.result.EquityCurve = append(state.result.EquityCurve, e.equityPoint(state, bar))
	}

	// 数据结束后未平仓位按最后收盘价强制平仓
	if state.position != nil && len(bars) > 0 {
		last := bars[len(bars)-1]
		e.closePosition(state, last.Close, last, CloseEndOfData)
		curve := state.result.EquityCurve
		curve[len(curve)-1] = e.equityPoint(state, last)
	}

	state.result.Metrics = calculateMetrics(state.result.Trades, state.result.EquityCurve, e.cfg.InitialCapital)
	state.result.Costs = e.ledger.Report()

	return state.result, nil
}

// Reset 将引擎恢复到可复用状态。新建实例等价于调用一次 Reset。
func (e *Engine) Reset() {
	e.ledger.Reset()
}

func (e *Engine) stopsEnabled() bool {
	return e.cfg.StopLossFraction > 0 || e.cfg.TrailingStopFraction > 0
}

func (e *Engine) canPyramid(state *simState, signal int) bool {
	return e.cfg.Sizing == sizing.PolicyPyramid &&
		state.position != nil &&
		signal == state.position.Direction &&
		state.position.PyramidLevel < e.cfg.MaxPyramidLevels
}

func pyramidTriggered(pos *Position, closePrice, atr float64) bool {
	if atr <= 0 {
		return false
	}
	if pos.Direction == 1 {
		return closePrice > pos.EntryPrice+atr
	}
	return closePrice < pos.EntryPrice-atr
}

func updateWatermark(pos *Position, bar market.Bar) {
	if pos.Direction == 1 {
		if bar.High > pos.Watermark {
			pos.Watermark = bar.High
		}
	} else if bar.Low < pos.Watermark {
		pos.Watermark = bar.Low
	}
}

// fillPrice 按订单方向施加滑点：买入抬价，卖出压价。
func (e *Engine) fillPrice(price float64, orderSign int) float64 {
	return price * (1 + e.cfg.SlippageRate*float64(orderSign))
}

// openPosition 按当前仓位策略计算规模并建仓，规模不足一手时静默放弃。
func (e *Engine) openPosition(state *simState, price float64, direction, index int, bar market.Bar, atr float64) bool {
	value := e.sizer.Value(sizing.Input{
		Capital:        state.capital,
		InitialCapital: e.cfg.InitialCapital,
		Price:          price,
		ATR:            atr,
		MaxFraction:    e.cfg.MaxPositionFraction,
	})

	fill := e.fillPrice(price, direction)
	size := sizing.Lots(value, fill, e.cfg.SharesPerLot)
	if size <= 0 {
		return false
	}

	commission := fill * size * e.cfg.CommissionRate
	slippage := math.Abs(fill-price) * size
	e.ledger.record(CostEntry{
		Date: bar.Time, Type: "open", Price: fill, Size: size,
		Commission: commission, Slippage: slippage,
	})

	// 多头占用现金，空头卖出所得计入现金
	if direction == 1 {
		state.capital -= fill*size + commission
	} else {
		state.capital += fill*size - commission
	}

	state.position = &Position{
		EntryDate:    bar.Time,
		EntryIndex:   index,
		EntryPrice:   fill,
		Direction:    direction,
		Size:         size,
		Commission:   commission,
		Slippage:     slippage,
		PyramidLevel: 1,
		Watermark:    price,
	}
	return true
}

// addPyramidLeg 以收盘价追加一笔按因子缩减的加仓。
func (e *Engine) addPyramidLeg(state *simState, bar market.Bar, atr float64) bool {
	pos := state.position
	value := sizing.PyramidValue(state.capital, e.cfg.MaxPositionFraction, e.cfg.PyramidFactor, pos.PyramidLevel)

	fill := e.fillPrice(bar.Close, pos.Direction)
	size := sizing.Lots(value, fill, e.cfg.SharesPerLot)
	if size <= 0 {
		return false
	}

	commission := fill * size * e.cfg.CommissionRate
	slippage := math.Abs(fill-bar.Close) * size
	e.ledger.record(CostEntry{
		Date: bar.Time, Type: "open", Price: fill, Size: size,
		Commission: commission, Slippage: slippage,
	})

	if pos.Direction == 1 {
		state.capital -= fill*size + commission
	} else {
		state.capital += fill*size - commission
	}

	pos.Size += size
	pos.Commission += commission
	pos.Slippage += slippage
	pos.PyramidLevel++
	return true
}

// closePosition 平掉全部持仓并生成交易记录，收益已扣除两腿成本。
func (e *Engine) closePosition(state *simState, price float64, bar market.Bar, closeType CloseType) {
	pos := state.position
	fill := e.fillPrice(price, -pos.Direction)

	commission := fill * pos.Size * e.cfg.CommissionRate
	slippage := math.Abs(fill-price) * pos.Size
	e.ledger.record(CostEntry{
		Date: bar.Time, Type: "close", Price: fill, Size: pos.Size,
		Commission: commission, Slippage: slippage,
	})

	if pos.Direction == 1 {
		state.capital += fill*pos.Size - commission
	} else {
		state.capital -= fill*pos.Size + commission
	}

	// 成交价差已含滑点，净收益再扣除两腿手续费
	profit := (fill-pos.EntryPrice)*pos.Size*float64(pos.Direction) - commission - pos.Commission

	state.result.Trades = append(state.result.Trades, Trade{
		EntryDate:  pos.EntryDate,
		EntryPrice: pos.EntryPrice,
		ExitDate:   bar.Time,
		ExitPrice:  fill,
		Direction:  pos.Direction,
		Size:       pos.Size,
		Profit:     profit,
		ProfitPct:  indicator.SafeDivide(profit, pos.EntryPrice*pos.Size),
		Commission: commission + pos.Commission,
		Slippage:   slippage + pos.Slippage,
		CloseType:  closeType,
	})

	state.position = nil
}

// equityPoint 生成当根K线的账户快照。
func (e *Engine) equityPoint(state *simState, bar market.Bar) EquityPoint {
	point := EquityPoint{
		Date:       bar.Time,
		Capital:    state.capital,
		TotalValue: state.capital,
	}
	if pos := state.position; pos != nil {
		point.Holdings = pos.Size * float64(pos.Direction)
		point.PyramidLevel = pos.PyramidLevel
		if pos.Direction == 1 {
			point.HoldingValue = bar.Close * pos.Size
			point.TotalValue = state.capital + point.HoldingValue
		}
	}
	return point
}

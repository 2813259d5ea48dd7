package backtest

import (
	"fmt"

	"go.uber.org/multierr"

	"stratlab/internal/sizing"
)

// Config 定义回测引擎参数，构造后在整次运行中不可变。
type Config struct {
	InitialCapital       float64       // 初始资金
	Sizing               sizing.Policy // 仓位管理策略
	MaxPositionFraction  float64       // 单笔最大仓位占比
	StopLossFraction     float64       // 固定止损比例，0表示禁用止损检查
	TrailingStopFraction float64       // 跟踪止损比例，0表示跟踪退化为固定
	SlippageRate         float64       // 滑点比例
	CommissionRate       float64       // 手续费率
	ATRPeriod            int           // ATR计算周期
	PyramidFactor        float64       // 金字塔加仓因子
	MaxPyramidLevels     int           // 最大金字塔级数
	TimeStopBars         int           // 时间止损K线数，0表示禁用
	SharesPerLot         int           // 每手股数
}

// DefaultConfig 返回与生产环境一致的默认参数。
func DefaultConfig() Config {
	return Config{
		InitialCapital:      100000,
		Sizing:              sizing.PolicyFixed,
		MaxPositionFraction: 0.2,
		StopLossFraction:    0.05,
		SlippageRate:        0.001,
		CommissionRate:      0.0003,
		ATRPeriod:           14,
		PyramidFactor:       0.5,
		MaxPyramidLevels:    3,
		TimeStopBars:        10,
		SharesPerLot:        100,
	}
}

func (c Config) normalize() Config {
	if c.InitialCapital <= 0 {
		c.InitialCapital = 100000
	}
	if c.Sizing == "" {
		c.Sizing = sizing.PolicyFixed
	}
	if c.MaxPositionFraction <= 0 {
		c.MaxPositionFraction = 0.2
	}
	if c.ATRPeriod <= 0 {
		c.ATRPeriod = 14
	}
	if c.PyramidFactor <= 0 {
		c.PyramidFactor = 0.5
	}
	if c.MaxPyramidLevels <= 0 {
		c.MaxPyramidLevels = 3
	}
	if c.SharesPerLot <= 0 {
		c.SharesPerLot = 100
	}
	return c
}

// Validate 对参数做范围校验。
func (c Config) Validate() error {
	var err error

	if c.MaxPositionFraction < 0 || c.MaxPositionFraction > 1 {
		err = multierr.Append(err, fmt.Errorf("backtest: max_position_fraction 必须位于[0,1]"))
	}
	if c.StopLossFraction < 0 || c.StopLossFraction >= 1 {
		err = multierr.Append(err, fmt.Errorf("backtest: stop_loss_fraction 必须位于[0,1)"))
	}
	if c.TrailingStopFraction < 0 || c.TrailingStopFraction >= 1 {
		err = multierr.Append(err, fmt.Errorf("backtest: trailing_stop_fraction 必须位于[0,1)"))
	}
	if c.SlippageRate < 0 || c.SlippageRate > 0.2 {
		err = multierr.Append(err, fmt.Errorf("backtest: slippage_rate 应位于[0,0.2]"))
	}
	if c.CommissionRate < 0 || c.CommissionRate > 0.1 {
		err = multierr.Append(err, fmt.Errorf("backtest: commission_rate 应位于[0,0.1]"))
	}
	if c.TimeStopBars < 0 {
		err = multierr.Append(err, fmt.Errorf("backtest: time_stop_bars 不能为负"))
	}

	if err != nil {
		return fmt.Errorf("backtest: 配置校验失败: %w", err)
	}
	return nil
}

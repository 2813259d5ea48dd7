// Package sizing 提供回测引擎使用的仓位管理策略。
// 所有策略都是无状态纯函数，按配置一次性选定，回测循环中不再做分支判断。
package sizing

import (
	"fmt"
	"math"
)

// Policy 枚举仓位管理策略。
type Policy string

const (
	PolicyFixed      Policy = "fixed"      // 固定金额
	PolicyPercent    Policy = "percent"    // 资金百分比
	PolicyKelly      Policy = "kelly"      // 凯利近似
	PolicyVolatility Policy = "volatility" // 波动率调整
	PolicyPyramid    Policy = "pyramid"    // 金字塔加仓
)

// 凯利近似使用固定的示例胜率与盈亏比，而非基于历史交易拟合。
// 这是刻意保留的简化实现，不是完整的凯利估计器。
const (
	kellyAssumedWinRate = 0.55
	kellyAssumedPayoff  = 1.5
)

// Input 汇总一次仓位计算所需的市场与账户状态。
type Input struct {
	Capital        float64 // 当前可用资金
	InitialCapital float64 // 初始资金
	Price          float64 // 当前成交参考价
	ATR            float64 // 当前ATR，可能为0
	MaxFraction    float64 // 单笔最大仓位占比
}

// Sizer 计算一笔新仓位应投入的资金量。
type Sizer interface {
	Value(in Input) float64
}

// ForPolicy 根据策略枚举返回对应的 Sizer，未知策略视为配置错误。
func ForPolicy(p Policy) (Sizer, error) {
	switch p {
	case PolicyFixed:
		return fixedSizer{}, nil
	case PolicyPercent:
		return percentSizer{}, nil
	case PolicyKelly:
		return kellySizer{}, nil
	case PolicyVolatility:
		return volatilitySizer{}, nil
	case PolicyPyramid:
		return pyramidSizer{}, nil
	default:
		return nil, fmt.Errorf("sizing: 未知仓位管理策略 %q", p)
	}
}

type fixedSizer struct{}

func (fixedSizer) Value(in Input) float64 {
	return math.Min(in.Capital, in.InitialCapital*in.MaxFraction)
}

type percentSizer struct{}

func (percentSizer) Value(in Input) float64 {
	return in.Capital * in.MaxFraction
}

type kellySizer struct{}

func (kellySizer) Value(in Input) float64 {
	kellyPct := kellyAssumedWinRate - (1-kellyAssumedWinRate)/kellyAssumedPayoff
	kellyPct = math.Max(0, math.Min(kellyPct, in.MaxFraction))
	return in.Capital * kellyPct
}

type volatilitySizer struct{}

func (volatilitySizer) Value(in Input) float64 {
	// ATR为0时退化为最大仓位占比，避免除零。
	if in.ATR > 0 && in.Price > 0 {
		factor := 1 / (in.ATR / in.Price)
		pct := math.Min(in.MaxFraction*factor, in.MaxFraction)
		return in.Capital * pct
	}
	return in.Capital * in.MaxFraction
}

type pyramidSizer struct{}

// 金字塔策略的首仓与百分比策略一致，后续加仓由引擎按 PyramidValue 缩放。
func (pyramidSizer) Value(in Input) float64 {
	return in.Capital * in.MaxFraction
}

// PyramidValue 计算第 level 次加仓的资金量，base 为资金与最大占比的乘积。
func PyramidValue(capital, maxFraction, factor float64, level int) float64 {
	base := capital * maxFraction
	return base * math.Pow(factor, float64(level))
}

// Lots 将资金量折算为整手股数，不足一手返回0。
func Lots(value, price float64, sharesPerLot int) float64 {
	if price <= 0 || sharesPerLot <= 0 {
		return 0
	}
	lot := float64(sharesPerLot)
	lots := math.Floor(value / (price * lot))
	if lots <= 0 {
		return 0
	}
	return lots * lot
}

// Package risk 提供止损价位的计算规则。
// 规则在引擎构造时一次性选定，回测循环中只做价格计算。
package risk

import (
	"fmt"
	"math"
)

// StopType 枚举止损策略。
type StopType string

const (
	StopFixed     StopType = "fixed"     // 固定比例止损
	StopTrailing  StopType = "trailing"  // 跟踪止损
	StopATR       StopType = "atr"       // ATR止损
	StopComposite StopType = "composite" // 复合止损
)

// ATR止损统一使用2倍ATR距离。
const atrStopMultiple = 2

// Input 汇总一次止损价计算所需的持仓状态。
type Input struct {
	EntryPrice float64 // 开仓成交价
	Direction  int     // 1 做多，-1 做空
	Watermark  float64 // 开仓以来的最有利价格
	ATR        float64 // 当前ATR
}

// Rule 计算当前应生效的止损价。
type Rule interface {
	Price(in Input) float64
}

// ForType 根据止损类型构造规则，未知类型视为配置错误。
// trailingFraction 为0时跟踪止损退化为固定止损。
func ForType(t StopType, stopFraction, trailingFraction float64) (Rule, error) {
	fixed := FixedRule{Fraction: stopFraction}
	trailing := TrailingRule{Fraction: trailingFraction, Fallback: fixed}
	atr := ATRRule{}

	switch t {
	case StopFixed:
		return fixed, nil
	case StopTrailing:
		return trailing, nil
	case StopATR:
		return atr, nil
	case StopComposite:
		return CompositeRule{Fixed: fixed, Trailing: trailing, ATR: atr}, nil
	default:
		return nil, fmt.Errorf("risk: 未知止损策略 %q", t)
	}
}

// FixedRule 相对开仓价固定比例止损。
type FixedRule struct {
	Fraction float64
}

func (r FixedRule) Price(in Input) float64 {
	return in.EntryPrice * (1 - r.Fraction*float64(in.Direction))
}

// TrailingRule 相对开仓以来最有利价格的跟踪止损。
type TrailingRule struct {
	Fraction float64
	Fallback FixedRule
}

func (r TrailingRule) Price(in Input) float64 {
	if r.Fraction <= 0 || in.Watermark <= 0 {
		return r.Fallback.Price(in)
	}
	if in.Direction == 1 {
		return in.Watermark * (1 - r.Fraction)
	}
	return in.Watermark * (1 + r.Fraction)
}

// ATRRule 相对开仓价按ATR倍数止损。
type ATRRule struct{}

func (ATRRule) Price(in Input) float64 {
	return in.EntryPrice - in.ATR*atrStopMultiple*float64(in.Direction)
}

// CompositeRule 取三种止损中的最保护值：多头取最高，空头取最低。
// 任一条件触发即止损。ATR为0（周期未满）时ATR分量不参与合成。
type CompositeRule struct {
	Fixed    FixedRule
	Trailing TrailingRule
	ATR      ATRRule
}

func (r CompositeRule) Price(in Input) float64 {
	fixed := r.Fixed.Price(in)
	trailing := r.Trailing.Price(in)
	if in.Direction == 1 {
		price := math.Max(fixed, trailing)
		if in.ATR > 0 {
			price = math.Max(price, r.ATR.Price(in))
		}
		return price
	}
	price := math.Min(fixed, trailing)
	if in.ATR > 0 {
		price = math.Min(price, r.ATR.Price(in))
	}
	return price
}

// Triggered 判断当前K线是否触发止损。
func Triggered(direction int, stopPrice, high, low float64) bool {
	if direction == 1 {
		return low <= stopPrice
	}
	return high >= stopPrice
}

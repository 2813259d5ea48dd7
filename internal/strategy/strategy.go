// Package strategy 提供产生交易信号的策略实现。
// 策略只读K线并输出与之等长的{-1,0,1}信号序列，引擎不会修改该序列。
package strategy

import (
	"fmt"

	"stratlab/internal/market"
)

// Strategy 为信号提供者契约。Calculate 返回的序列必须与输入K线等长。
type Strategy interface {
	Key() string
	Calculate(bars []market.Bar) ([]int, error)
}

// Spec 描述一条策略配置。
type Spec struct {
	Type   string
	Fast   int
	Slow   int
	Signal int
}

// Build 根据配置构造策略，未知类型视为配置错误。
func Build(spec Spec) (Strategy, error) {
	switch spec.Type {
	case "sma_cross":
		return NewSMACross(spec.Fast, spec.Slow), nil
	case "macd":
		return NewMACDHist(spec.Fast, spec.Slow, spec.Signal), nil
	default:
		return nil, fmt.Errorf("strategy: 未知策略类型 %q", spec.Type)
	}
}

// BuildAll 批量构造策略。
func BuildAll(specs []Spec) ([]Strategy, error) {
	strategies := make([]Strategy, 0, len(specs))
	for _, spec := range specs {
		s, err := Build(spec)
		if err != nil {
			return nil, err
		}
		strategies = append(strategies, s)
	}
	return strategies, nil
}

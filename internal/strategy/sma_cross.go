package strategy

import (
	"fmt"

	"stratlab/internal/indicator"
	"stratlab/internal/market"
)

// SMACross 双均线交叉策略：快线在慢线上方做多，下方做空。
type SMACross struct {
	fast int
	slow int
}

// NewSMACross 创建双均线策略，参数非法时使用10/30。
func NewSMACross(fast, slow int) *SMACross {
	if fast <= 0 || slow <= fast {
		fast, slow = 10, 30
	}
	return &SMACross{fast: fast, slow: slow}
}

func (s *SMACross) Key() string {
	return fmt.Sprintf("sma_cross_%d_%d", s.fast, s.slow)
}

func (s *SMACross) Calculate(bars []market.Bar) ([]int, error) {
	series := market.NewSeries(bars)
	signals := make([]int, len(bars))
	if len(bars) < s.slow {
		return signals, nil
	}

	fast := indicator.SMA(series.Close, s.fast)
	slow := indicator.SMA(series.Close, s.slow)

	for i := s.slow - 1; i < len(bars); i++ {
		switch {
		case fast[i] > slow[i]:
			signals[i] = 1
		case fast[i] < slow[i]:
			signals[i] = -1
		}
	}
	return signals, nil
}

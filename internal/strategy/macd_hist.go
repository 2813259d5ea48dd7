package strategy

import (
	"fmt"

	"stratlab/internal/indicator"
	"stratlab/internal/market"
)

// MACDHist 按MACD柱状图符号给出多空信号。
type MACDHist struct {
	fast   int
	slow   int
	signal int
}

// NewMACDHist 创建MACD策略，参数非法时使用12/26/9。
func NewMACDHist(fast, slow, signal int) *MACDHist {
	if fast <= 0 || slow <= fast || signal <= 0 {
		fast, slow, signal = 12, 26, 9
	}
	return &MACDHist{fast: fast, slow: slow, signal: signal}
}

func (m *MACDHist) Key() string {
	return fmt.Sprintf("macd_%d_%d_%d", m.fast, m.slow, m.signal)
}

func (m *MACDHist) Calculate(bars []market.Bar) ([]int, error) {
	series := market.NewSeries(bars)
	signals := make([]int, len(bars))
	warmup := m.slow + m.signal
	if len(bars) < warmup {
		return signals, nil
	}

	hist := indicator.MACDHist(series.Close, m.fast, m.slow, m.signal)
	for i := warmup - 1; i < len(bars); i++ {
		switch {
		case hist[i] > 0:
			signals[i] = 1
		case hist[i] < 0:
			signals[i] = -1
		}
	}
	return signals, nil
}

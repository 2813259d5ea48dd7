package indicator

import (
	talib "github.com/markcheno/go-talib"

	"stratlab/internal/market"
)

// TrueRange 计算真实波幅序列，首个元素取 high-low。
func TrueRange(s market.Series) []float64 {
	if s.Len() == 0 {
		return nil
	}
	tr := talib.TRange(s.High, s.Low, s.Close)
	if len(tr) > 0 {
		tr[0] = s.High[0] - s.Low[0]
	}
	return tr
}

// ATR 按简单移动平均对真实波幅做平滑，周期未满处为0。
func ATR(s market.Series, period int) []float64 {
	if s.Len() == 0 || period <= 0 {
		return nil
	}
	if s.Len() < period {
		return make([]float64, s.Len())
	}
	return talib.Sma(TrueRange(s), period)
}

// SMA 简单移动平均。
func SMA(values []float64, period int) []float64 {
	if len(values) < period || period <= 0 {
		return make([]float64, len(values))
	}
	return talib.Sma(values, period)
}

// RSI 相对强弱指标，0-100。
func RSI(values []float64, period int) []float64 {
	if len(values) <= period || period <= 0 {
		return make([]float64, len(values))
	}
	return talib.Rsi(values, period)
}

// MACDHist 返回MACD柱状图序列。
func MACDHist(values []float64, fast, slow, signal int) []float64 {
	if len(values) < slow+signal {
		return make([]float64, len(values))
	}
	_, _, hist := talib.Macd(values, fast, slow, signal)
	return hist
}

// PctChange 计算逐项涨跌幅，首个元素为0。
func PctChange(values []float64) []float64 {
	out := make([]float64, len(values))
	for i := 1; i < len(values); i++ {
		out[i] = SafeDivide(values[i]-values[i-1], values[i-1])
	}
	return out
}

// RollingStd 滚动标准差，周期未满处为0。
func RollingStd(values []float64, period int) []float64 {
	if len(values) < period || period <= 1 {
		return make([]float64, len(values))
	}
	return talib.StdDev(values, period, 1)
}

// Last 返回序列最后一个值，若为空则返回0。
func Last(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return values[len(values)-1]
}

// Prev 返回序列倒数第二个值，若不足两个元素则返回0。
func Prev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	return values[len(values)-2]
}

// MaxOf 返回序列最大值，空序列返回0。
func MaxOf(values []float64) float64 {
	max := 0.0
	for i, v := range values {
		if i == 0 || v > max {
			max = v
		}
	}
	return max
}

// SafeDivide 除法保护，除数为0时返回0。
func SafeDivide(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}

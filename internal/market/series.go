package market

import "time"

// Series 将K线数据拆分为便于指标计算的序列。
type Series struct {
	Times  []time.Time
	Open   []float64
	High   []float64
	Low    []float64
	Close  []float64
	Volume []float64
}

// NewSeries 从K线列表创建 Series，保持原有顺序。
func NewSeries(bars []Bar) Series {
	length := len(bars)
	series := Series{
		Times:  make([]time.Time, length),
		Open:   make([]float64, length),
		High:   make([]float64, length),
		Low:    make([]float64, length),
		Close:  make([]float64, length),
		Volume: make([]float64, length),
	}

	for i := 0; i < length; i++ {
		bar := bars[i]
		series.Times[i] = bar.Time.UTC()
		series.Open[i] = bar.Open
		series.High[i] = bar.High
		series.Low[i] = bar.Low
		series.Close[i] = bar.Close
		series.Volume[i] = bar.Volume
	}

	return series
}

// Len 返回序列长度。
func (s Series) Len() int {
	return len(s.Close)
}

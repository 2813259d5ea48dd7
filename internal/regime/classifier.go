// Package regime 基于价量动量指标对每根K线独立标注市场环境，
// 与任何策略或交易记录无关。
package regime

import (
	"math"

	"stratlab/internal/indicator"
	"stratlab/internal/market"
)

// Regime 枚举市场环境。
type Regime string

const (
	StrongBull Regime = "strong_bull" // 强势牛市
	Bull       Regime = "bull"        // 牛市
	Range      Regime = "range"       // 震荡市
	Bear       Regime = "bear"        // 熊市
	StrongBear Regime = "strong_bear" // 强势熊市
)

// Config 定义分类器参数。
type Config struct {
	SMAPeriod      int     // 长周期均线
	VolPeriod      int     // 波动率回看周期
	RSIPeriod      int
	VolumeMAPeriod int
	MACDFast       int
	MACDSlow       int
	MACDSignal     int
	BullThreshold  float64 // 价格偏离均线的牛市阈值
	BearThreshold  float64 // 价格偏离均线的熊市阈值
}

// DefaultConfig 返回默认分类参数。
func DefaultConfig() Config {
	return Config{
		SMAPeriod:      200,
		VolPeriod:      20,
		RSIPeriod:      14,
		VolumeMAPeriod: 20,
		MACDFast:       12,
		MACDSlow:       26,
		MACDSignal:     9,
		BullThreshold:  0.05,
		BearThreshold:  -0.05,
	}
}

func (c Config) normalize() Config {
	def := DefaultConfig()
	if c.SMAPeriod <= 0 {
		c.SMAPeriod = def.SMAPeriod
	}
	if c.VolPeriod <= 0 {
		c.VolPeriod = def.VolPeriod
	}
	if c.RSIPeriod <= 0 {
		c.RSIPeriod = def.RSIPeriod
	}
	if c.VolumeMAPeriod <= 0 {
		c.VolumeMAPeriod = def.VolumeMAPeriod
	}
	if c.MACDFast <= 0 {
		c.MACDFast = def.MACDFast
	}
	if c.MACDSlow <= 0 {
		c.MACDSlow = def.MACDSlow
	}
	if c.MACDSignal <= 0 {
		c.MACDSignal = def.MACDSignal
	}
	if c.BullThreshold == 0 {
		c.BullThreshold = def.BullThreshold
	}
	if c.BearThreshold == 0 {
		c.BearThreshold = def.BearThreshold
	}
	return c
}

// Classifier 市场环境分类器。
type Classifier struct {
	cfg Config
}

// NewClassifier 创建分类器。
func NewClassifier(cfg Config) *Classifier {
	return &Classifier{cfg: cfg.normalize()}
}

// minPeriods 返回需要满足的最长指标回看长度。
func (c *Classifier) minPeriods() int {
	min := c.cfg.SMAPeriod
	if c.cfg.VolPeriod > min {
		min = c.cfg.VolPeriod
	}
	if c.cfg.RSIPeriod > min {
		min = c.cfg.RSIPeriod
	}
	return min
}

// Classify 为每根K线标注市场环境。
// 历史不足最长回看周期的K线默认标注为震荡市，而非真实分类。
func (c *Classifier) Classify(bars []market.Bar) []Regime {
	regimes := make([]Regime, len(bars))
	for i := range regimes {
		regimes[i] = Range
	}

	minPeriods := c.minPeriods()
	if len(bars) < minPeriods {
		return regimes
	}

	series := market.NewSeries(bars)

	sma := indicator.SMA(series.Close, c.cfg.SMAPeriod)
	rsi := indicator.RSI(series.Close, c.cfg.RSIPeriod)
	volumeMA := indicator.SMA(series.Volume, c.cfg.VolumeMAPeriod)
	macdHist := indicator.MACDHist(series.Close, c.cfg.MACDFast, c.cfg.MACDSlow, c.cfg.MACDSignal)
	volatility := indicator.RollingStd(indicator.PctChange(series.Close), c.cfg.VolPeriod)

	strength := c.marketStrength(series, sma, rsi, volumeMA, macdHist, volatility)

	for i := minPeriods; i < len(bars); i++ {
		priceToSMA := indicator.SafeDivide(series.Close[i], sma[i]) - 1
		volumeRatio := indicator.SafeDivide(series.Volume[i], volumeMA[i])

		switch {
		case priceToSMA > c.cfg.BullThreshold:
			if strength[i] > 0.8 && rsi[i] > 70 && volumeRatio > 1.5 {
				regimes[i] = StrongBull
			} else {
				regimes[i] = Bull
			}
		case priceToSMA < c.cfg.BearThreshold:
			if strength[i] < 0.2 && rsi[i] < 30 && volumeRatio > 1.5 {
				regimes[i] = StrongBear
			} else {
				regimes[i] = Bear
			}
		}
	}

	return regimes
}

// marketStrength 将趋势、成交量、动量、MACD与波动率合成0-1市场强度，
// 各分项按自身序列最大值归一化后加权：0.3/0.2/0.2/0.2/0.1。
func (c *Classifier) marketStrength(series market.Series, sma, rsi, volumeMA, macdHist, volatility []float64) []float64 {
	length := series.Len()
	trend := make([]float64, length)
	volume := make([]float64, length)
	macdAbs := make([]float64, length)
	for i := 0; i < length; i++ {
		trend[i] = indicator.SafeDivide(math.Abs(series.Close[i]-sma[i]), sma[i])
		volume[i] = indicator.SafeDivide(series.Volume[i], volumeMA[i])
		macdAbs[i] = math.Abs(macdHist[i])
	}

	trendMax := indicator.MaxOf(trend)
	volumeMax := indicator.MaxOf(volume)
	macdMax := indicator.MaxOf(macdAbs)
	volMax := indicator.MaxOf(volatility)

	strength := make([]float64, length)
	for i := 0; i < length; i++ {
		strength[i] = indicator.SafeDivide(trend[i], trendMax)*0.3 +
			indicator.SafeDivide(volume[i], volumeMax)*0.2 +
			rsi[i]/100*0.2 +
			indicator.SafeDivide(macdAbs[i], macdMax)*0.2 +
			indicator.SafeDivide(volatility[i], volMax)*0.1
	}
	return strength
}

package market

import (
	"fmt"
	"time"
)

// Bar 表示单根OHLCV行情K线。
type Bar struct {
	Time   time.Time `json:"time_key"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Validate 校验K线序列是否按时间严格递增。
// 回测中的所有回看逻辑都依赖位置与时间顺序一致，乱序数据直接拒绝。
func Validate(bars []Bar) error {
	for i := 1; i < len(bars); i++ {
		if !bars[i].Time.After(bars[i-1].Time) {
			return fmt.Errorf("market: K线时间未严格递增: index=%d time=%s prev=%s",
				i, bars[i].Time.Format(time.RFC3339), bars[i-1].Time.Format(time.RFC3339))
		}
	}
	return nil
}

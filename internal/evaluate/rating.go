package evaluate

import (
	"math"

	"stratlab/internal/backtest"
	"stratlab/internal/regime"
)

// Rating 为策略综合评分：绩效40%、风控30%、稳定性30%。
type Rating struct {
	PerformanceScore float64 `json:"performance_score"`
	RiskScore        float64 `json:"risk_score"`
	StabilityScore   float64 `json:"stability_score"`
	TotalScore       float64 `json:"total_score"`
	Grade            string  `json:"letter_grade"`
}

// calculateRating 基于回测结果、风险指标与环境切分计算综合评分。
func calculateRating(result *backtest.Result, risk RiskMetrics, analysis regime.Analysis) Rating {
	performanceScore := math.Min(10, risk.AnnualReturn*10)
	riskScore := 10 * (1 - risk.MaxDrawdown)

	// 稳定性由三个因子平均：牛熊环境胜率一致性、交易频率充分性、整体胜率
	var factors []float64

	bull, hasBull := analysis.ByRegime[regime.Bull]
	bear, hasBear := analysis.ByRegime[regime.Bear]
	if hasBull && hasBear {
		max := math.Max(bull.WinRate, bear.WinRate)
		consistency := 0.0
		if max > 0 {
			consistency = math.Min(bull.WinRate, bear.WinRate) / max
		}
		factors = append(factors, consistency)
	}

	totalTrades := result.Metrics.Summary.TotalTrades
	factors = append(factors, math.Min(1, float64(totalTrades)/250))
	factors = append(factors, result.Metrics.Summary.WinRate)

	sum := 0.0
	for _, f := range factors {
		sum += f
	}
	stabilityScore := 10 * sum / float64(len(factors))

	totalScore := 0.4*performanceScore + 0.3*riskScore + 0.3*stabilityScore

	return Rating{
		PerformanceScore: performanceScore,
		RiskScore:        riskScore,
		StabilityScore:   stabilityScore,
		TotalScore:       totalScore,
		Grade:            scoreToGrade(totalScore),
	}
}

// scoreToGrade 将分数映射为评级。
func scoreToGrade(score float64) string {
	switch {
	case score >= 90:
		return "A+"
	case score >= 80:
		return "A"
	case score >= 70:
		return "B+"
	case score >= 60:
		return "B"
	case score >= 50:
		return "C+"
	case score >= 40:
		return "C"
	default:
		return "D"
	}
}

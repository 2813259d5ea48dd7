// Package evaluate 编排回测引擎与市场环境分类器，
// 对一组策略产生可比较、可解释的综合评估报告。
package evaluate

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"stratlab/internal/backtest"
	"stratlab/internal/market"
	"stratlab/internal/regime"
	"stratlab/internal/strategy"
)

// Evaluation 为单个策略的完整评估报告。
type Evaluation struct {
	StrategyName      string            `json:"strategy_name"`
	Backtest          *backtest.Result  `json:"backtest_result"`
	RegimeAnalysis    regime.Analysis   `json:"regime_analysis"`
	PeriodPerformance PeriodPerformance `json:"period_performance"`
	RiskMetrics       RiskMetrics       `json:"risk_metrics"`
	Rating            Rating            `json:"rating"`
}

// Options 控制评估行为。
type Options struct {
	Engine       backtest.Config
	Regime       regime.Config
	RiskFreeRate float64 // 年化无风险利率
	SimpleMode   bool    // 使用简化引擎交叉验证
	Parallelism  int     // EvaluateAll 并发度，0表示按策略数
}

// Evaluator 策略综合评估器。
type Evaluator struct {
	opts       Options
	classifier *regime.Classifier
	logger     *zap.Logger
}

// New 创建评估器。
func New(opts Options, logger *zap.Logger) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.RiskFreeRate == 0 {
		opts.RiskFreeRate = 0.03
	}
	return &Evaluator{
		opts:       opts,
		classifier: regime.NewClassifier(opts.Regime),
		logger:     logger,
	}
}

// newRunner 为每次评估构造全新引擎实例，避免成本账本跨运行累积。
func (e *Evaluator) newRunner() (backtest.Runner, error) {
	if e.opts.SimpleMode {
		return backtest.NewSimpleEngine(e.opts.Engine), nil
	}
	return backtest.NewEngine(e.opts.Engine, e.logger)
}

// Evaluate 全面评估单个策略：回测、环境切分、周期绩效、风险指标与评分。
// 零交易不是错误：返回零值指标与D级评分。
func (e *Evaluator) Evaluate(strat strategy.Strategy, bars []market.Bar) (*Evaluation, error) {
	signals, err := strat.Calculate(bars)
	if err != nil {
		return nil, fmt.Errorf("evaluate: 策略 %s 计算信号失败: %w", strat.Key(), err)
	}

	runner, err := e.newRunner()
	if err != nil {
		return nil, err
	}

	result, err := runner.Run(bars, signals)
	if err != nil {
		return nil, fmt.Errorf("evaluate: 策略 %s 回测失败: %w", strat.Key(), err)
	}

	regimeAnalysis := e.classifier.AnalyzeTrades(result.Trades, bars)
	riskMetrics := calculateRiskMetrics(result.EquityCurve, e.opts.RiskFreeRate)
	periodPerf := calculatePeriodPerformance(result.EquityCurve)
	rating := calculateRating(result, riskMetrics, regimeAnalysis)

	e.logger.Debug("策略评估完成",
		zap.String("strategy", strat.Key()),
		zap.Int("trades", result.Metrics.Summary.TotalTrades),
		zap.Float64("total_score", rating.TotalScore),
		zap.String("grade", rating.Grade),
	)

	return &Evaluation{
		StrategyName:      strat.Key(),
		Backtest:          result,
		RegimeAnalysis:    regimeAnalysis,
		PeriodPerformance: periodPerf,
		RiskMetrics:       riskMetrics,
		Rating:            rating,
	}, nil
}

// EvaluateAll 并行评估多个策略。每个策略独享引擎实例，
// 取消语义为“不再开始下一个策略的运行”，已开始的运行不中断。
func (e *Evaluator) EvaluateAll(ctx context.Context, strategies []strategy.Strategy, bars []market.Bar) (map[string]*Evaluation, error) {
	results := make(map[string]*Evaluation, len(strategies))
	var mu sync.Mutex

	group, ctx := errgroup.WithContext(ctx)
	if e.opts.Parallelism > 0 {
		group.SetLimit(e.opts.Parallelism)
	}

	for _, strat := range strategies {
		group.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			evaluation, err := e.Evaluate(strat, bars)
			if err != nil {
				return err
			}
			mu.Lock()
			results[strat.Key()] = evaluation
			mu.Unlock()
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Package app 聚合各子系统，驱动一次完整的策略评估流水线：
// 拉取行情 → 构建策略 → 并行评估 → 渲染报告 → 结果落盘。
package app

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"stratlab/internal/backtest"
	"stratlab/internal/config"
	"stratlab/internal/datasource"
	"stratlab/internal/evaluate"
	"stratlab/internal/regime"
	"stratlab/internal/report"
	"stratlab/internal/sizing"
	"stratlab/internal/store"
	"stratlab/internal/strategy"
)

// App 聚合核心依赖并驱动系统生命周期。
type App struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *store.Store
}

// New 创建 App 实例。
func New(cfg *config.Config, logger *zap.Logger, store *store.Store) *App {
	return &App{
		cfg:    cfg,
		logger: logger,
		store:  store,
	}
}

// Run 执行评估流水线。所有交易对处理完成后返回。
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("策略评估系统已初始化",
		zap.String("environment", a.cfg.App.Environment),
		zap.String("exchange", a.cfg.Data.Exchange),
		zap.Strings("symbols", a.cfg.Data.Symbols),
		zap.String("timeframe", a.cfg.Data.Timeframe),
	)

	client, err := datasource.NewClient(a.cfg.Data, a.logger)
	if err != nil {
		return err
	}

	var cache *datasource.Cache
	if a.cfg.Data.UseCache {
		cache, err = datasource.NewCache(a.store)
		if err != nil {
			return err
		}
	}

	service := datasource.NewService(a.cfg.Data, client, cache, a.logger)

	evalStore, err := store.NewEvaluations(a.store)
	if err != nil {
		return err
	}

	strategies, err := strategy.BuildAll(strategySpecs(a.cfg.Strategies))
	if err != nil {
		return err
	}
	if len(strategies) == 0 {
		return fmt.Errorf("app: 未配置任何策略")
	}

	evaluator := evaluate.New(evaluate.Options{
		Engine:       engineConfig(a.cfg.Backtest),
		Regime:       regimeConfig(a.cfg.Regime),
		RiskFreeRate: a.cfg.Evaluator.RiskFreeRate,
		SimpleMode:   a.cfg.Backtest.SimpleMode,
		Parallelism:  a.cfg.Evaluator.Parallelism,
	}, a.logger)

	barsBySymbol, err := service.FetchAll(ctx)
	if err != nil {
		return err
	}

	for _, symbol := range a.cfg.Data.Symbols {
		bars := barsBySymbol[symbol]
		if len(bars) == 0 {
			a.logger.Warn("跳过没有行情数据的交易对", zap.String("symbol", symbol))
			continue
		}

		evaluations, err := evaluator.EvaluateAll(ctx, strategies, bars)
		if err != nil {
			return fmt.Errorf("app: 评估 %s 失败: %w", symbol, err)
		}

		report.RenderComparison(os.Stdout, symbol, evaluations)
		for _, evaluation := range evaluations {
			report.RenderDetail(os.Stdout, evaluation)
			if _, err := evalStore.Save(ctx, symbol, evaluation); err != nil {
				a.logger.Error("评估结果落盘失败",
					zap.String("symbol", symbol),
					zap.String("strategy", evaluation.StrategyName),
					zap.Error(err),
				)
			}
		}

		a.logger.Info("交易对评估完成",
			zap.String("symbol", symbol),
			zap.Int("strategies", len(evaluations)),
			zap.Int("bars", len(bars)),
		)
	}

	return nil
}

func strategySpecs(items []config.StrategyConfig) []strategy.Spec {
	specs := make([]strategy.Spec, 0, len(items))
	for _, item := range items {
		specs = append(specs, strategy.Spec{
			Type:   item.Type,
			Fast:   item.Fast,
			Slow:   item.Slow,
			Signal: item.Signal,
		})
	}
	return specs
}

func engineConfig(cfg config.BacktestConfig) backtest.Config {
	return backtest.Config{
		InitialCapital:       cfg.InitialCapital,
		Sizing:               sizing.Policy(cfg.PositionSizing),
		MaxPositionFraction:  cfg.MaxPositionFraction,
		StopLossFraction:     cfg.StopLossFraction,
		TrailingStopFraction: cfg.TrailingStopFraction,
		SlippageRate:         cfg.SlippageRate,
		CommissionRate:       cfg.CommissionRate,
		ATRPeriod:            cfg.ATRPeriod,
		PyramidFactor:        cfg.PyramidFactor,
		MaxPyramidLevels:     cfg.MaxPyramidLevels,
		TimeStopBars:         cfg.TimeStopBars,
		SharesPerLot:         cfg.SharesPerLot,
	}
}

func regimeConfig(cfg config.RegimeConfig) regime.Config {
	return regime.Config{
		SMAPeriod:      cfg.SMAPeriod,
		VolPeriod:      cfg.VolPeriod,
		RSIPeriod:      cfg.RSIPeriod,
		VolumeMAPeriod: cfg.VolumeMAPeriod,
		MACDFast:       cfg.MACDFast,
		MACDSlow:       cfg.MACDSlow,
		MACDSignal:     cfg.MACDSignal,
		BullThreshold:  cfg.BullThreshold,
		BearThreshold:  cfg.BearThreshold,
	}
}

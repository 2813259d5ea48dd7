package config

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"stratlab/internal/sizing"
)

// Config 聚合了系统运行所需的全部配置项。
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Data       DataConfig       `mapstructure:"data"`
	Backtest   BacktestConfig   `mapstructure:"backtest"`
	Regime     RegimeConfig     `mapstructure:"regime"`
	Evaluator  EvaluatorConfig  `mapstructure:"evaluator"`
	Strategies []StrategyConfig `mapstructure:"strategies"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// AppConfig 控制应用级参数。
type AppConfig struct {
	Environment string `mapstructure:"environment"`
}

// DataConfig 描述行情数据来源。
type DataConfig struct {
	Exchange  string      `mapstructure:"exchange"`
	Symbols   []string    `mapstructure:"symbols"`
	Timeframe string      `mapstructure:"timeframe"`
	Limit     int         `mapstructure:"limit"`
	UseCache  bool        `mapstructure:"use_cache"`
	Retry     RetryConfig `mapstructure:"retry"`
}

// RetryConfig 统一控制重试机制。
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	MinDelay    time.Duration `mapstructure:"min_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// BacktestConfig 管理回测引擎参数。
type BacktestConfig struct {
	InitialCapital       float64 `mapstructure:"initial_capital"`
	PositionSizing       string  `mapstructure:"position_sizing"`
	MaxPositionFraction  float64 `mapstructure:"max_position_fraction"`
	StopLossFraction     float64 `mapstructure:"stop_loss_fraction"`
	TrailingStopFraction float64 `mapstructure:"trailing_stop_fraction"`
	SlippageRate         float64 `mapstructure:"slippage_rate"`
	CommissionRate       float64 `mapstructure:"commission_rate"`
	ATRPeriod            int     `mapstructure:"atr_period"`
	PyramidFactor        float64 `mapstructure:"pyramid_factor"`
	MaxPyramidLevels     int     `mapstructure:"max_pyramid_levels"`
	TimeStopBars         int     `mapstructure:"time_stop_bars"`
	SharesPerLot         int     `mapstructure:"shares_per_lot"`
	SimpleMode           bool    `mapstructure:"simple_mode"`
}

// RegimeConfig 管理市场环境分类参数。
type RegimeConfig struct {
	SMAPeriod      int     `mapstructure:"sma_period"`
	VolPeriod      int     `mapstructure:"volatility_period"`
	RSIPeriod      int     `mapstructure:"rsi_period"`
	VolumeMAPeriod int     `mapstructure:"volume_ma_period"`
	MACDFast       int     `mapstructure:"macd_fast"`
	MACDSlow       int     `mapstructure:"macd_slow"`
	MACDSignal     int     `mapstructure:"macd_signal"`
	BullThreshold  float64 `mapstructure:"bull_threshold"`
	BearThreshold  float64 `mapstructure:"bear_threshold"`
}

// EvaluatorConfig 管理评估器参数。
type EvaluatorConfig struct {
	RiskFreeRate float64 `mapstructure:"risk_free_rate"`
	Parallelism  int     `mapstructure:"parallelism"`
}

// StrategyConfig 描述一条参与评估的策略。
type StrategyConfig struct {
	Type   string `mapstructure:"type"`
	Fast   int    `mapstructure:"fast"`
	Slow   int    `mapstructure:"slow"`
	Signal int    `mapstructure:"signal"`
}

// DatabaseConfig 管理数据库连接。
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	InMemory        bool          `mapstructure:"in_memory"`
}

// LoggingConfig 控制日志输出。
type LoggingConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	Development      bool     `mapstructure:"development"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// Validate 对配置进行基本校验。
func (c *Config) Validate() error {
	var err error

	if c.App.Environment == "" {
		err = multierr.Append(err, errors.New("app.environment 不能为空"))
	}
	if c.Data.Exchange == "" {
		err = multierr.Append(err, errors.New("data.exchange 不能为空"))
	}
	if len(c.Data.Symbols) == 0 {
		err = multierr.Append(err, errors.New("data.symbols 至少包含一个交易对"))
	}
	if c.Data.Timeframe == "" {
		err = multierr.Append(err, errors.New("data.timeframe 不能为空"))
	}
	if c.Data.Limit <= 0 {
		err = multierr.Append(err, errors.New("data.limit 必须大于0"))
	}
	if c.Data.Retry.MaxAttempts <= 0 {
		err = multierr.Append(err, errors.New("data.retry.max_attempts 必须大于0"))
	}
	if c.Data.Retry.MinDelay <= 0 || c.Data.Retry.MaxDelay <= 0 {
		err = multierr.Append(err, errors.New("data.retry.delay 必须为正"))
	}
	if c.Data.Retry.MinDelay > c.Data.Retry.MaxDelay {
		err = multierr.Append(err, errors.New("data.retry.min_delay 不能大于 max_delay"))
	}
	if c.Backtest.InitialCapital <= 0 {
		err = multierr.Append(err, errors.New("backtest.initial_capital 必须大于0"))
	}
	if _, sizerErr := sizing.ForPolicy(sizing.Policy(c.Backtest.PositionSizing)); sizerErr != nil {
		err = multierr.Append(err, fmt.Errorf("backtest.position_sizing 不合法: %w", sizerErr))
	}
	if c.Backtest.MaxPositionFraction <= 0 || c.Backtest.MaxPositionFraction > 1 {
		err = multierr.Append(err, errors.New("backtest.max_position_fraction 必须位于(0,1]"))
	}
	if c.Backtest.StopLossFraction < 0 || c.Backtest.StopLossFraction >= 1 {
		err = multierr.Append(err, errors.New("backtest.stop_loss_fraction 必须位于[0,1)"))
	}
	if c.Backtest.TrailingStopFraction < 0 || c.Backtest.TrailingStopFraction >= 1 {
		err = multierr.Append(err, errors.New("backtest.trailing_stop_fraction 必须位于[0,1)"))
	}
	if c.Backtest.SlippageRate < 0 || c.Backtest.SlippageRate > 0.2 {
		err = multierr.Append(err, errors.New("backtest.slippage_rate 应位于[0,0.2]"))
	}
	if c.Backtest.CommissionRate < 0 || c.Backtest.CommissionRate > 0.1 {
		err = multierr.Append(err, errors.New("backtest.commission_rate 应位于[0,0.1]"))
	}
	if c.Backtest.ATRPeriod <= 0 {
		err = multierr.Append(err, errors.New("backtest.atr_period 必须大于0"))
	}
	if c.Backtest.SharesPerLot <= 0 {
		err = multierr.Append(err, errors.New("backtest.shares_per_lot 必须大于0"))
	}
	if c.Regime.SMAPeriod <= 0 {
		err = multierr.Append(err, errors.New("regime.sma_period 必须大于0"))
	}
	if c.Regime.BullThreshold <= c.Regime.BearThreshold {
		err = multierr.Append(err, errors.New("regime.bull_threshold 必须大于 bear_threshold"))
	}
	if c.Evaluator.RiskFreeRate < 0 || c.Evaluator.RiskFreeRate > 0.2 {
		err = multierr.Append(err, errors.New("evaluator.risk_free_rate 应位于[0,0.2]"))
	}
	if len(c.Strategies) == 0 {
		err = multierr.Append(err, errors.New("strategies 至少配置一条策略"))
	}
	for i, s := range c.Strategies {
		if s.Type == "" {
			err = multierr.Append(err, fmt.Errorf("strategies[%d].type 不能为空", i))
		}
	}
	if c.Database.Path == "" && !c.Database.InMemory {
		err = multierr.Append(err, errors.New("database.path 不能为空"))
	}
	if c.Database.MaxOpenConns <= 0 {
		err = multierr.Append(err, errors.New("database.max_open_conns 必须大于0"))
	}
	if c.Database.MaxIdleConns < 0 {
		err = multierr.Append(err, errors.New("database.max_idle_conns 不能为负"))
	}
	if c.Database.ConnMaxLifetime < 0 {
		err = multierr.Append(err, errors.New("database.conn_max_lifetime 不能为负"))
	}
	if c.Logging.Level == "" {
		err = multierr.Append(err, errors.New("logging.level 不能为空"))
	}
	if c.Logging.Encoding == "" {
		err = multierr.Append(err, errors.New("logging.encoding 不能为空"))
	}
	if len(c.Logging.OutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.output_paths 至少包含一个输出目标"))
	}
	if len(c.Logging.ErrorOutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.error_output_paths 至少包含一个输出目标"))
	}

	if err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}

	return nil
}

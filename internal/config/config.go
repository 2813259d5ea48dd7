package config

import (
	"errors"
	"fmt"
	"strings"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	defaultConfigPath = "configs/config.yaml"
	envPrefix         = "stratlab"
)

// Load 读取配置文件并结合环境变量返回 Config。
func Load(path string) (*Config, error) {
	v := viper.New()

	if path == "" {
		path = defaultConfigPath
	}

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix(envPrefix)
	replacer := strings.NewReplacer(".", "_")
	v.SetEnvKeyReplacer(replacer)
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("未找到配置文件 %q: %w", path, err)
		}
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.environment", "development")

	v.SetDefault("data.exchange", "binance")
	v.SetDefault("data.symbols", []string{"BTC/USDT"})
	v.SetDefault("data.timeframe", "1d")
	v.SetDefault("data.limit", 500)
	v.SetDefault("data.use_cache", true)
	v.SetDefault("data.retry.max_attempts", 5)
	v.SetDefault("data.retry.min_delay", "500ms")
	v.SetDefault("data.retry.max_delay", "5s")

	v.SetDefault("backtest.initial_capital", 100000.0)
	v.SetDefault("backtest.position_sizing", "fixed")
	v.SetDefault("backtest.max_position_fraction", 0.2)
	v.SetDefault("backtest.stop_loss_fraction", 0.05)
	v.SetDefault("backtest.trailing_stop_fraction", 0.0)
	v.SetDefault("backtest.slippage_rate", 0.001)
	v.SetDefault("backtest.commission_rate", 0.0003)
	v.SetDefault("backtest.atr_period", 14)
	v.SetDefault("backtest.pyramid_factor", 0.5)
	v.SetDefault("backtest.max_pyramid_levels", 3)
	v.SetDefault("backtest.time_stop_bars", 10)
	v.SetDefault("backtest.shares_per_lot", 100)
	v.SetDefault("backtest.simple_mode", false)

	v.SetDefault("regime.sma_period", 200)
	v.SetDefault("regime.volatility_period", 20)
	v.SetDefault("regime.rsi_period", 14)
	v.SetDefault("regime.volume_ma_period", 20)
	v.SetDefault("regime.macd_fast", 12)
	v.SetDefault("regime.macd_slow", 26)
	v.SetDefault("regime.macd_signal", 9)
	v.SetDefault("regime.bull_threshold", 0.05)
	v.SetDefault("regime.bear_threshold", -0.05)

	v.SetDefault("evaluator.risk_free_rate", 0.03)
	v.SetDefault("evaluator.parallelism", 4)

	v.SetDefault("database.path", "data/stratlab.db")
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 4)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.in_memory", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.encoding", "console")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.output_paths", []string{"stdout"})
	v.SetDefault("logging.error_output_paths", []string{"stderr"})
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

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
	envPrefix         = "tradercore"
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

// Default 返回带有全部默认值的配置，便于测试与干跑模式。
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		// 默认值解析失败属于编程错误。
		panic(fmt.Sprintf("解析默认配置失败: %v", err))
	}
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.tick_interval", "30s")

	v.SetDefault("risk.daily_risk_fraction", 0.06)
	v.SetDefault("risk.base_risk_fractions", map[string]float64{
		"forex":     0.010,
		"index":     0.008,
		"commodity": 0.008,
		"crypto":    0.012,
		"default":   0.010,
	})
	v.SetDefault("risk.max_concentration", 0.30)
	v.SetDefault("risk.max_daily_loss", 0.03)
	v.SetDefault("risk.daily_profit_target", 0.02)
	v.SetDefault("risk.daily_loss_reset_hour", 0)
	v.SetDefault("risk.soft_drawdown", 0.03)
	v.SetDefault("risk.hard_drawdown", 0.05)

	v.SetDefault("decision.noise_floor_r", 10.0)
	v.SetDefault("decision.min_ev_improvement", 0.0)
	v.SetDefault("decision.reverse_loss_factor", 0.6)
	v.SetDefault("decision.target_floor_ratio", 1.2)
	v.SetDefault("decision.volatility_target_mult", 1.5)
	v.SetDefault("decision.force_close_min_peak", 50.0)
	v.SetDefault("decision.force_close_max_current", 20.0)
	v.SetDefault("decision.force_close_giveback", 0.70)
	v.SetDefault("decision.force_reduce_min_peak", 30.0)
	v.SetDefault("decision.force_reduce_max_current", 10.0)
	v.SetDefault("decision.force_reduce_giveback", 0.60)
	v.SetDefault("decision.penalty_giveback", 0.40)
	v.SetDefault("decision.penalty_reversal", 0.30)
	v.SetDefault("decision.penalty_max_current", 30.0)
	v.SetDefault("decision.penalty_weight", 15.0)
	v.SetDefault("decision.pyramid_trigger_r", 30.0)
	v.SetDefault("decision.pyramid_fraction", 0.40)
	v.SetDefault("decision.max_adds", 2)
	v.SetDefault("decision.dca_min_r", -80.0)
	v.SetDefault("decision.dca_max_r", -30.0)
	v.SetDefault("decision.dca_fraction", 0.30)
	v.SetDefault("decision.max_dca", 1)
	v.SetDefault("decision.dca_min_improvement", 5.0)
	v.SetDefault("decision.dca_min_recovery", 0.60)
	v.SetDefault("decision.entry_confidence", 55.0)

	v.SetDefault("correlation.window_size", 100)
	v.SetDefault("correlation.min_samples", 20)
	v.SetDefault("correlation.dynamic_weight", 0.7)
	v.SetDefault("correlation.static_weight", 0.3)

	v.SetDefault("performance.max_records", 20)
	v.SetDefault("performance.min_samples", 5)
	v.SetDefault("performance.min_multiplier", 0.7)
	v.SetDefault("performance.max_multiplier", 1.3)
	v.SetDefault("performance.low_win_rate", 0.40)
	v.SetDefault("performance.high_win_rate", 0.60)

	v.SetDefault("exchange.enabled", false)
	v.SetDefault("exchange.use_sandbox", false)
	v.SetDefault("exchange.retry.max_attempts", 3)
	v.SetDefault("exchange.retry.min_delay", "500ms")
	v.SetDefault("exchange.retry.max_delay", "5s")

	v.SetDefault("execution.slippage", 0.01)
	v.SetDefault("execution.time_in_force", "GTC")
	v.SetDefault("execution.simulation", true)

	v.SetDefault("database.path", "data/trader_core.db")
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 4)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.in_memory", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.encoding", "console")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.output_paths", []string{"stdout"})
	v.SetDefault("logging.error_output_paths", []string{"stderr"})

	v.SetDefault("replay.enabled", false)
	v.SetDefault("replay.symbol", "BTC/USDT")
	v.SetDefault("replay.initial_equity", 10000.0)
	v.SetDefault("replay.steps", 500)
	v.SetDefault("replay.seed", 42)
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

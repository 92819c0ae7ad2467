package config

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
)

// Config 聚合了决策核心运行所需的全部配置项。
type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Risk        RiskConfig        `mapstructure:"risk"`
	Decision    DecisionConfig    `mapstructure:"decision"`
	Correlation CorrelationConfig `mapstructure:"correlation"`
	Performance PerformanceConfig `mapstructure:"performance"`
	Instruments InstrumentsConfig `mapstructure:"instruments"`
	Exchange    ExchangeConfig    `mapstructure:"exchange"`
	Execution   ExecutionConfig   `mapstructure:"execution"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Replay      ReplayConfig      `mapstructure:"replay"`
}

// AppConfig 控制应用级参数。
type AppConfig struct {
	Environment  string        `mapstructure:"environment"`
	TickInterval time.Duration `mapstructure:"tick_interval"`
}

// RiskConfig 管理仓位与资金风控参数。
type RiskConfig struct {
	DailyRiskFraction  float64            `mapstructure:"daily_risk_fraction"`
	BaseRiskFractions  map[string]float64 `mapstructure:"base_risk_fractions"`
	MaxConcentration   float64            `mapstructure:"max_concentration"`
	MaxDailyLoss       float64            `mapstructure:"max_daily_loss"`
	DailyProfitTarget  float64            `mapstructure:"daily_profit_target"`
	DailyLossResetHour int                `mapstructure:"daily_loss_reset_hour"`
	SoftDrawdown       float64            `mapstructure:"soft_drawdown"`
	HardDrawdown       float64            `mapstructure:"hard_drawdown"`
}

// BaseRiskFraction 返回品种类别对应的单笔风险比例。
func (c RiskConfig) BaseRiskFraction(class string) float64 {
	if f, ok := c.BaseRiskFractions[class]; ok && f > 0 {
		return f
	}
	if f, ok := c.BaseRiskFractions["default"]; ok && f > 0 {
		return f
	}
	return 0.01
}

// DecisionConfig 收录EV决策引擎的阈值。这些数值沿用原始策略的经验常数，
// 无推导来源，因此全部做成可调项。
type DecisionConfig struct {
	NoiseFloorR       float64 `mapstructure:"noise_floor_r"`
	MinEVImprovement  float64 `mapstructure:"min_ev_improvement"`
	ReverseLossFactor float64 `mapstructure:"reverse_loss_factor"`
	TargetFloorRatio  float64 `mapstructure:"target_floor_ratio"`
	VolatilityTarget  float64 `mapstructure:"volatility_target_mult"`

	ForceCloseMinPeak     float64 `mapstructure:"force_close_min_peak"`
	ForceCloseMaxCurrent  float64 `mapstructure:"force_close_max_current"`
	ForceCloseGiveback    float64 `mapstructure:"force_close_giveback"`
	ForceReduceMinPeak    float64 `mapstructure:"force_reduce_min_peak"`
	ForceReduceMaxCurrent float64 `mapstructure:"force_reduce_max_current"`
	ForceReduceGiveback   float64 `mapstructure:"force_reduce_giveback"`

	PenaltyGiveback   float64 `mapstructure:"penalty_giveback"`
	PenaltyReversal   float64 `mapstructure:"penalty_reversal"`
	PenaltyMaxCurrent float64 `mapstructure:"penalty_max_current"`
	PenaltyWeight     float64 `mapstructure:"penalty_weight"`

	PyramidTriggerR float64 `mapstructure:"pyramid_trigger_r"`
	PyramidFraction float64 `mapstructure:"pyramid_fraction"`
	MaxAdds         int     `mapstructure:"max_adds"`
	DCAMinR         float64 `mapstructure:"dca_min_r"`
	DCAMaxR         float64 `mapstructure:"dca_max_r"`
	DCAFraction     float64 `mapstructure:"dca_fraction"`
	MaxDCA          int     `mapstructure:"max_dca"`
	DCAMinImprove   float64 `mapstructure:"dca_min_improvement"`
	DCAMinRecovery  float64 `mapstructure:"dca_min_recovery"`
	EntryConfidence float64 `mapstructure:"entry_confidence"`
}

// CorrelationConfig 控制相关性跟踪器。
type CorrelationConfig struct {
	WindowSize    int                `mapstructure:"window_size"`
	MinSamples    int                `mapstructure:"min_samples"`
	DynamicWeight float64            `mapstructure:"dynamic_weight"`
	StaticWeight  float64            `mapstructure:"static_weight"`
	StaticPriors  map[string]float64 `mapstructure:"static_priors"`
}

// PerformanceConfig 控制绩效跟踪器。
type PerformanceConfig struct {
	MaxRecords    int     `mapstructure:"max_records"`
	MinSamples    int     `mapstructure:"min_samples"`
	MinMultiplier float64 `mapstructure:"min_multiplier"`
	MaxMultiplier float64 `mapstructure:"max_multiplier"`
	LowWinRate    float64 `mapstructure:"low_win_rate"`
	HighWinRate   float64 `mapstructure:"high_win_rate"`
}

// InstrumentConfig 描述单个品种的合约规格。
type InstrumentConfig struct {
	Class     string  `mapstructure:"class"`
	TickValue float64 `mapstructure:"tick_value"`
	TickSize  float64 `mapstructure:"tick_size"`
	LotStep   float64 `mapstructure:"lot_step"`
	MinLot    float64 `mapstructure:"min_lot"`
	MaxLot    float64 `mapstructure:"max_lot"`
}

// InstrumentsConfig 为品种到合约规格/类别的映射。
type InstrumentsConfig struct {
	Specs map[string]InstrumentConfig `mapstructure:"specs"`
}

// Class 返回品种所属类别，未知时归入 default。
func (c InstrumentsConfig) Class(symbol string) string {
	if spec, ok := c.Specs[symbol]; ok && spec.Class != "" {
		return spec.Class
	}
	return "default"
}

// RetryConfig 控制交易所调用的重试策略。
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	MinDelay    time.Duration `mapstructure:"min_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// ExchangeConfig 描述行情与执行所用的交易所接入。
type ExchangeConfig struct {
	Enabled    bool        `mapstructure:"enabled"`
	APIKey     string      `mapstructure:"api_key"`
	APISecret  string      `mapstructure:"api_secret"`
	APIPass    string      `mapstructure:"api_pass"`
	UseSandbox bool        `mapstructure:"use_sandbox"`
	Retry      RetryConfig `mapstructure:"retry"`
}

// ExecutionConfig 控制下单行为。
type ExecutionConfig struct {
	Slippage    float64 `mapstructure:"slippage"`
	TimeInForce string  `mapstructure:"time_in_force"`
	Simulation  bool    `mapstructure:"simulation"`
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

// ReplayConfig 控制回放/干跑模式。
type ReplayConfig struct {
	Enabled       bool    `mapstructure:"enabled"`
	Symbol        string  `mapstructure:"symbol"`
	InitialEquity float64 `mapstructure:"initial_equity"`
	Steps         int     `mapstructure:"steps"`
	Seed          int64   `mapstructure:"seed"`
}

// Validate 对配置进行基本校验。
func (c *Config) Validate() error {
	var err error

	if c.App.Environment == "" {
		err = multierr.Append(err, errors.New("app.environment 不能为空"))
	}
	if c.App.TickInterval <= 0 {
		err = multierr.Append(err, errors.New("app.tick_interval 必须大于0"))
	}
	if c.Risk.DailyRiskFraction <= 0 || c.Risk.DailyRiskFraction > 1 {
		err = multierr.Append(err, errors.New("risk.daily_risk_fraction 必须位于(0,1]"))
	}
	if c.Risk.MaxConcentration <= 0 || c.Risk.MaxConcentration > 1 {
		err = multierr.Append(err, errors.New("risk.max_concentration 必须位于(0,1]"))
	}
	if c.Risk.MaxDailyLoss <= 0 || c.Risk.MaxDailyLoss > 1 {
		err = multierr.Append(err, errors.New("risk.max_daily_loss 必须位于(0,1]"))
	}
	if c.Risk.DailyProfitTarget <= 0 {
		err = multierr.Append(err, errors.New("risk.daily_profit_target 必须大于0"))
	}
	if c.Risk.DailyLossResetHour < 0 || c.Risk.DailyLossResetHour > 23 {
		err = multierr.Append(err, errors.New("risk.daily_loss_reset_hour 必须位于[0,23]"))
	}
	if c.Risk.SoftDrawdown <= 0 || c.Risk.HardDrawdown <= c.Risk.SoftDrawdown {
		err = multierr.Append(err, errors.New("risk.soft_drawdown/hard_drawdown 必须满足 0 < soft < hard"))
	}
	if c.Decision.NoiseFloorR < 0 {
		err = multierr.Append(err, errors.New("decision.noise_floor_r 不能为负"))
	}
	if c.Decision.TargetFloorRatio < 1 {
		err = multierr.Append(err, errors.New("decision.target_floor_ratio 不能小于1"))
	}
	if c.Decision.ReverseLossFactor <= 0 || c.Decision.ReverseLossFactor > 1 {
		err = multierr.Append(err, errors.New("decision.reverse_loss_factor 必须位于(0,1]"))
	}
	if c.Decision.PyramidFraction <= 0 || c.Decision.PyramidFraction > 1 {
		err = multierr.Append(err, errors.New("decision.pyramid_fraction 必须位于(0,1]"))
	}
	if c.Decision.DCAFraction <= 0 || c.Decision.DCAFraction > 1 {
		err = multierr.Append(err, errors.New("decision.dca_fraction 必须位于(0,1]"))
	}
	if c.Decision.DCAMinR >= c.Decision.DCAMaxR {
		err = multierr.Append(err, errors.New("decision.dca_min_r 必须小于 dca_max_r"))
	}
	if c.Decision.MaxAdds < 0 || c.Decision.MaxDCA < 0 {
		err = multierr.Append(err, errors.New("decision.max_adds / max_dca 不能为负"))
	}
	if c.Correlation.WindowSize <= 0 {
		err = multierr.Append(err, errors.New("correlation.window_size 必须大于0"))
	}
	if c.Correlation.MinSamples <= 1 || c.Correlation.MinSamples > c.Correlation.WindowSize {
		err = multierr.Append(err, errors.New("correlation.min_samples 必须位于(1, window_size]"))
	}
	if w := c.Correlation.DynamicWeight + c.Correlation.StaticWeight; w <= 0.99 || w >= 1.01 {
		err = multierr.Append(err, errors.New("correlation.dynamic_weight 与 static_weight 之和应为1"))
	}
	if c.Performance.MaxRecords <= 0 {
		err = multierr.Append(err, errors.New("performance.max_records 必须大于0"))
	}
	if c.Performance.MinMultiplier <= 0 || c.Performance.MaxMultiplier < c.Performance.MinMultiplier {
		err = multierr.Append(err, errors.New("performance.min/max_multiplier 配置非法"))
	}
	if c.Performance.LowWinRate < 0 || c.Performance.HighWinRate <= c.Performance.LowWinRate || c.Performance.HighWinRate > 1 {
		err = multierr.Append(err, errors.New("performance.low/high_win_rate 配置非法"))
	}
	if c.Exchange.Enabled {
		if c.Exchange.Retry.MaxAttempts <= 0 {
			err = multierr.Append(err, errors.New("exchange.retry.max_attempts 必须大于0"))
		}
		if c.Exchange.Retry.MinDelay <= 0 || c.Exchange.Retry.MaxDelay < c.Exchange.Retry.MinDelay {
			err = multierr.Append(err, errors.New("exchange.retry.min/max_delay 配置非法"))
		}
	}
	if c.Execution.Slippage < 0 || c.Execution.Slippage > 0.2 {
		err = multierr.Append(err, errors.New("execution.slippage 应位于[0,0.2]"))
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
	if c.Replay.Enabled {
		if c.Replay.Symbol == "" {
			err = multierr.Append(err, errors.New("replay.symbol 不能为空"))
		}
		if c.Replay.InitialEquity <= 0 {
			err = multierr.Append(err, errors.New("replay.initial_equity 必须大于0"))
		}
		if c.Replay.Steps <= 0 {
			err = multierr.Append(err, errors.New("replay.steps 必须大于0"))
		}
	}

	if err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}

	return nil
}

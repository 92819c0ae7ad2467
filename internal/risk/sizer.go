package risk

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"trader-core/internal/config"
	"trader-core/internal/correlation"
	"trader-core/internal/performance"
)

// Sizer 把风险预算、止损距离与合约规格换算为开仓手数，
// 依次套用账户健康度、交易质量、信号置信度、并发持仓、
// 日内目标、分散化与历史绩效等乘数。
type Sizer struct {
	cfg          config.RiskConfig
	allocator    *BudgetAllocator
	correlations *correlation.Tracker
	performance  *performance.Tracker
	logger       *zap.Logger
}

// NewSizer 创建定量器。相关性与绩效跟踪器由引擎持有方注入。
func NewSizer(cfg config.RiskConfig, alloc *BudgetAllocator, corr *correlation.Tracker, perf *performance.Tracker, logger *zap.Logger) *Sizer {
	if alloc == nil {
		alloc = NewBudgetAllocator(cfg)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sizer{
		cfg:          cfg,
		allocator:    alloc,
		correlations: corr,
		performance:  perf,
		logger:       logger,
	}
}

// Size 计算开仓手数。任何退化输入都不会抛错，
// 而是回落到保守的最小手数并在结果中说明原因。
func (s *Sizer) Size(input SizingInput) SizingResult {
	result := SizingResult{
		Symbol: input.Spec.Symbol,
		Notes:  make([]string, 0, 2),
	}

	if input.Daily.Halted {
		result.Notes = append(result.Notes, "当日亏损已触及限制，停止开仓")
		return result
	}

	if !input.Spec.Valid() {
		result.Lots = conservativeMinLot(input.Spec)
		result.LowConfidence = true
		result.Notes = append(result.Notes, "合约规格无效，退回保守最小手数")
		return result
	}

	if input.StopDistance <= 0 || math.IsNaN(input.StopDistance) {
		result.Lots = input.Spec.MinLot
		result.LowConfidence = true
		result.Notes = append(result.Notes, "止损距离无效，退回最小手数")
		return result
	}

	if input.Balance <= 0 {
		result.Notes = append(result.Notes, "账户余额无效，放弃开仓")
		return result
	}

	mults := s.buildMultipliers(input)
	result.Multipliers = mults

	riskAmount := input.Balance * mults.Base *
		mults.Health * mults.Quality * mults.Confidence *
		mults.Concurrency * mults.DailyTarget *
		mults.Diversification * mults.Performance

	// 集中度约束独立于乘数链生效。
	equity := input.Equity
	if equity <= 0 {
		equity = input.Balance
	}
	maxRisk := s.allocator.MaxIncrementalRisk(equity, AggregateOpenRisk(input.Open))
	if riskAmount > maxRisk {
		result.Notes = append(result.Notes,
			fmt.Sprintf("风险额 %.2f 超出集中度上限 %.2f，按上限收敛", riskAmount, maxRisk))
		riskAmount = maxRisk
	}

	if riskAmount <= 0 {
		result.Notes = append(result.Notes, "风险预算耗尽，放弃开仓")
		return result
	}

	riskPerLot := input.StopDistance / input.Spec.TickSize * input.Spec.TickValue
	if riskPerLot <= 0 || math.IsInf(riskPerLot, 0) {
		result.Lots = input.Spec.MinLot
		result.LowConfidence = true
		result.Notes = append(result.Notes, "单手风险计算退化，退回最小手数")
		return result
	}

	lots := roundToStep(riskAmount/riskPerLot, input.Spec)
	if lots < input.Spec.MinLot {
		lots = input.Spec.MinLot
	}
	if lots > input.Spec.MaxLot {
		lots = input.Spec.MaxLot
	}

	result.Lots = lots
	result.RiskPerLot = riskPerLot
	result.RiskAmount = lots * riskPerLot

	s.logger.Debug("完成仓位定量",
		zap.String("symbol", input.Spec.Symbol),
		zap.Float64("lots", result.Lots),
		zap.Float64("risk_amount", result.RiskAmount),
	)

	return result
}

func (s *Sizer) buildMultipliers(input SizingInput) Multipliers {
	divFactor := 1.0
	if s.correlations != nil {
		open := make([]correlation.OpenExposure, 0, len(input.Open))
		for _, o := range input.Open {
			open = append(open, correlation.OpenExposure{Symbol: o.Symbol, Direction: o.Direction})
		}
		divFactor = s.correlations.DiversificationFactor(input.Spec.Symbol, input.Direction, open)
	}

	perfMult := 1.0
	if s.performance != nil {
		perfMult = s.performance.Multiplier(input.Spec.Symbol)
	}

	return Multipliers{
		Base:            s.cfg.BaseRiskFraction(input.Spec.Class),
		Health:          s.healthMultiplier(input.Balance, input.Equity),
		Quality:         qualityMultiplier(input.Quality),
		Confidence:      confidenceMultiplier(input.Confidence),
		Concurrency:     concurrencyMultiplier(len(input.Open)),
		DailyTarget:     s.dailyTargetMultiplier(input.Daily),
		Diversification: divFactor,
		Performance:     perfMult,
	}
}

// healthMultiplier 依据浮动回撤折减：回撤越深，风险越保守。
func (s *Sizer) healthMultiplier(balance, equity float64) float64 {
	if balance <= 0 || equity <= 0 || equity >= balance {
		return 1.0
	}
	drawdown := (balance - equity) / balance
	switch {
	case drawdown < s.cfg.SoftDrawdown:
		return 1.0
	case drawdown < s.cfg.HardDrawdown:
		return 0.75
	default:
		return 0.5
	}
}

// qualityMultiplier 把 0-1 的交易质量线性映射到 0.7-1.3。
func qualityMultiplier(quality float64) float64 {
	q := clampUnit(quality)
	return 0.7 + 0.6*q
}

// confidenceMultiplier 把 0-100 的信号置信度线性映射到 0.8-1.2。
func confidenceMultiplier(confidence float64) float64 {
	c := clampUnit(confidence / 100)
	return 0.8 + 0.4*c
}

// concurrencyMultiplier 持仓越多新仓越保守。
func concurrencyMultiplier(openCount int) float64 {
	switch {
	case openCount >= 3:
		return 0.7
	case openCount >= 2:
		return 0.85
	default:
		return 1.0
	}
}

// dailyTargetMultiplier 依据日内盈亏相对目标/限额的位置调节敞口：
// 达标后减速，接近目标平速，顺风小幅加速，逆风逐级降速。
func (s *Sizer) dailyTargetMultiplier(daily DailyStatus) float64 {
	if daily.StartEquity <= 0 {
		return 1.0
	}

	profit := daily.ProfitPercent()
	target := s.cfg.DailyProfitTarget
	lossLimit := s.cfg.MaxDailyLoss

	switch {
	case profit >= target:
		return 0.5
	case profit >= 0.7*target:
		return 1.0
	case profit > 0:
		return 1.2
	case profit >= -0.3*lossLimit:
		return 1.0
	case profit >= -0.6*lossLimit:
		return 0.7
	default:
		return 0.5
	}
}

// roundToStep 将手数向下取整到步进的整数倍。
// 指数与商品类按整手交易，其余按合约步进。
// 用 decimal 计算避免浮点步进误差。
func roundToStep(lots float64, spec ContractSpec) float64 {
	step := spec.LotStep
	if spec.wholeLot() && step < 1 {
		step = 1
	}

	stepDec := decimal.NewFromFloat(step)
	if stepDec.IsZero() {
		return lots
	}
	lotsDec := decimal.NewFromFloat(lots)
	units := lotsDec.Div(stepDec).Floor()
	out, _ := units.Mul(stepDec).Float64()
	return out
}

func conservativeMinLot(spec ContractSpec) float64 {
	if spec.MinLot > 0 {
		return spec.MinLot
	}
	return 0.01
}

func clampUnit(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

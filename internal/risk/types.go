package risk

import (
	"trader-core/internal/config"
	"trader-core/internal/market"
)

// ContractSpec 描述开仓品种的合约规格。
type ContractSpec struct {
	Symbol    string
	Class     string
	TickValue float64
	TickSize  float64
	LotStep   float64
	MinLot    float64
	MaxLot    float64
}

// SpecFromConfig 由配置构造合约规格。
func SpecFromConfig(symbol string, cfg config.InstrumentConfig) ContractSpec {
	return ContractSpec{
		Symbol:    symbol,
		Class:     cfg.Class,
		TickValue: cfg.TickValue,
		TickSize:  cfg.TickSize,
		LotStep:   cfg.LotStep,
		MinLot:    cfg.MinLot,
		MaxLot:    cfg.MaxLot,
	}
}

// Valid 报告规格是否足以做风险换算。
func (s ContractSpec) Valid() bool {
	return s.TickValue > 0 && s.TickSize > 0 && s.LotStep > 0 && s.MinLot > 0 && s.MaxLot >= s.MinLot
}

// wholeLot 报告该类别是否按整手交易。
func (s ContractSpec) wholeLot() bool {
	return s.Class == "index" || s.Class == "commodity"
}

// OpenRisk 描述一笔已开仓位占用的风险。
type OpenRisk struct {
	Symbol     string
	Direction  market.Direction
	RiskAmount float64
}

// DailyStatus 表示当日风控状态。
type DailyStatus struct {
	TradingDate   string
	StartEquity   float64
	CurrentEquity float64
	RealizedPnL   float64
	LossPercent   float64
	Halted        bool
}

// ProfitPercent 返回当日相对起始净值的盈亏比例。
func (d DailyStatus) ProfitPercent() float64 {
	if d.StartEquity <= 0 {
		return 0
	}
	return (d.CurrentEquity - d.StartEquity) / d.StartEquity
}

// SizingInput 为一次开仓定损定量的输入。
type SizingInput struct {
	Spec         ContractSpec
	Direction    market.Direction
	Balance      float64
	Equity       float64
	StopDistance float64
	Quality      float64 // 交易质量评分 0-1
	Confidence   float64 // 信号置信度 0-100
	Open         []OpenRisk
	Daily        DailyStatus
}

// Multipliers 记录仓位乘数链，便于审计每个折减来源。
type Multipliers struct {
	Base            float64
	Health          float64
	Quality         float64
	Confidence      float64
	Concurrency     float64
	DailyTarget     float64
	Diversification float64
	Performance     float64
}

// SizingResult 为定量输出。核心不抛错：退化输入给出保守手数并附原因。
type SizingResult struct {
	Symbol        string
	Lots          float64
	RiskAmount    float64
	RiskPerLot    float64
	LowConfidence bool
	Multipliers   Multipliers
	Notes         []string
}

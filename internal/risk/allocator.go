package risk

import "trader-core/internal/config"

// BudgetAllocator 基于日度风险预算做集中度控制：
// 单笔新仓的增量风险既不能超过预算剩余，也不能超过集中度上限。
type BudgetAllocator struct {
	cfg config.RiskConfig
}

// NewBudgetAllocator 创建预算分配器。
func NewBudgetAllocator(cfg config.RiskConfig) *BudgetAllocator {
	return &BudgetAllocator{cfg: cfg}
}

// DailyBudget 返回当日总风险预算。
func (a *BudgetAllocator) DailyBudget(equity float64) float64 {
	if equity <= 0 {
		return 0
	}
	return equity * a.cfg.DailyRiskFraction
}

// MaxIncrementalRisk 返回新仓可占用的最大增量风险：
// min(预算剩余, 预算×集中度上限)，下限为0。
// 该约束独立于定量乘数链生效。
func (a *BudgetAllocator) MaxIncrementalRisk(equity, aggregateOpenRisk float64) float64 {
	budget := a.DailyBudget(equity)
	if budget <= 0 {
		return 0
	}

	remaining := budget - aggregateOpenRisk
	if remaining < 0 {
		remaining = 0
	}

	ceiling := budget * a.cfg.MaxConcentration
	if remaining < ceiling {
		return remaining
	}
	return ceiling
}

// AggregateOpenRisk 汇总既有持仓占用的风险。
func AggregateOpenRisk(open []OpenRisk) float64 {
	var sum float64
	for _, o := range open {
		if o.RiskAmount > 0 {
			sum += o.RiskAmount
		}
	}
	return sum
}

package position

import (
	"math"
	"time"

	"trader-core/internal/market"
)

// Position 为执行端持有的只读持仓快照。
type Position struct {
	ID          string
	Symbol      string
	Direction   market.Direction
	Size        float64
	EntryPrice  float64
	StopPrice   float64
	TargetPrice float64 // 可选，0 表示未设置
	OpenedAt    time.Time
}

// StopDistance 返回入场价到止损价的绝对距离。
func (p Position) StopDistance() float64 {
	return math.Abs(p.EntryPrice - p.StopPrice)
}

// ProfitR 把当前价格盈亏换算为R百分比：
// 价格盈亏除以止损距离再乘100，100 即赚足一个风险单位。
// 止损距离为零时返回 NaN，由调用方按退化输入处理。
func (p Position) ProfitR(price float64) float64 {
	sd := p.StopDistance()
	if sd <= 0 {
		return math.NaN()
	}
	move := (price - p.EntryPrice) * p.Direction.Sign()
	return move / sd * 100
}

// Age 返回持仓存续时长。
func (p Position) Age(now time.Time) time.Duration {
	if p.OpenedAt.IsZero() {
		return 0
	}
	return now.Sub(p.OpenedAt)
}

package backtest

import (
	"fmt"
	"time"

	"trader-core/internal/market"
	"trader-core/internal/position"
)

// Simulator 维护单一品种的模拟仓位与账户权益。
// 手数变动按市价即时成交，不计滑点与手续费。
type Simulator struct {
	initialEquity float64
	equity        float64
	lastPrice     float64
	sequence      int

	pos     *position.Position
	lots    float64
	perUnit float64 // 每手每价格单位的货币价值

	equityHistory []float64
	returnHistory []float64
	tradeCount    int
	wins          int
	losses        int
}

// NewSimulator 创建模拟账户。perUnitValue 为每手对一个价格单位变动的货币价值。
func NewSimulator(initialEquity, perUnitValue float64) *Simulator {
	if initialEquity <= 0 {
		initialEquity = 10000
	}
	if perUnitValue <= 0 {
		perUnitValue = 1
	}
	return &Simulator{
		initialEquity: initialEquity,
		equity:        initialEquity,
		perUnit:       perUnitValue,
		equityHistory: []float64{initialEquity},
	}
}

// Advance 根据最新价格滚动浮动盈亏。
func (s *Simulator) Advance(price float64) {
	if price <= 0 {
		return
	}
	if s.lastPrice > 0 && s.pos != nil && s.lots > 0 {
		move := (price - s.lastPrice) * s.pos.Direction.Sign()
		pnl := move * s.lots * s.perUnit
		prevEquity := s.equity
		s.equity += pnl
		if prevEquity > 0 {
			s.returnHistory = append(s.returnHistory, pnl/prevEquity)
		}
	}
	s.lastPrice = price
	s.equityHistory = append(s.equityHistory, s.equity)
}

// Open 以市价开仓。
func (s *Simulator) Open(symbol string, dir market.Direction, lots, price, stop, target float64, ts time.Time) {
	if lots <= 0 || price <= 0 {
		return
	}
	s.sequence++
	s.pos = &position.Position{
		ID:          fmt.Sprintf("sim-%d", s.sequence),
		Symbol:      symbol,
		Direction:   dir,
		Size:        lots,
		EntryPrice:  price,
		StopPrice:   stop,
		TargetPrice: target,
		OpenedAt:    ts,
	}
	s.lots = lots
	s.tradeCount++
}

// Reduce 按比例减仓，fraction≥1 视为全平。返回被减掉的手数。
func (s *Simulator) Reduce(fraction, price float64) float64 {
	if s.pos == nil || fraction <= 0 {
		return 0
	}
	if fraction >= 1 {
		closed := s.lots
		s.settle(price, closed)
		s.pos = nil
		s.lots = 0
		return closed
	}

	closed := s.lots * fraction
	s.settle(price, closed)
	s.lots -= closed
	s.pos.Size = s.lots
	return closed
}

// Add 加仓并刷新均价。
func (s *Simulator) Add(lots, price float64) {
	if s.pos == nil || lots <= 0 || price <= 0 {
		return
	}
	total := s.lots + lots
	s.pos.EntryPrice = (s.pos.EntryPrice*s.lots + price*lots) / total
	s.lots = total
	s.pos.Size = total
}

// settle 统计一次平仓的胜负。盈亏已在 Advance 中按价计入权益。
func (s *Simulator) settle(price float64, lots float64) {
	if s.pos == nil || lots <= 0 {
		return
	}
	pnl := (price - s.pos.EntryPrice) * s.pos.Direction.Sign() * lots * s.perUnit
	if pnl > 0 {
		s.wins++
	} else {
		s.losses++
	}
}

// RealizedPnL 计算以当前价平掉指定手数的盈亏。
func (s *Simulator) RealizedPnL(price, lots float64) float64 {
	if s.pos == nil {
		return 0
	}
	return (price - s.pos.EntryPrice) * s.pos.Direction.Sign() * lots * s.perUnit
}

// Position 返回当前仓位，空仓时返回 false。
func (s *Simulator) Position() (position.Position, bool) {
	if s.pos == nil || s.lots <= 0 {
		return position.Position{}, false
	}
	return *s.pos, true
}

func (s *Simulator) Equity() float64 {
	return s.equity
}

func (s *Simulator) TradeCount() int {
	return s.tradeCount
}

func (s *Simulator) Wins() int {
	return s.wins
}

func (s *Simulator) Losses() int {
	return s.losses
}

func (s *Simulator) EquityHistory() []float64 {
	return append([]float64(nil), s.equityHistory...)
}

func (s *Simulator) ReturnHistory() []float64 {
	return append([]float64(nil), s.returnHistory...)
}

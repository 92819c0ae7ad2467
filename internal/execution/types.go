package execution

import (
	"time"

	"trader-core/internal/decision"
	"trader-core/internal/market"
	"trader-core/internal/position"
)

// OrderSide 表示下单方向。
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// Options 控制下单参数。
type Options struct {
	Slippage    float64
	TimeInForce string
	PostOnly    bool
}

// ManagePlan 描述对一笔已有仓位的调仓目标。
type ManagePlan struct {
	Position    position.Position
	Decision    decision.Decision
	MarketPrice float64
	GeneratedAt time.Time
}

// EntryPlan 描述一笔新开仓。
type EntryPlan struct {
	Symbol      string
	Direction   market.Direction
	Lots        float64
	MarketPrice float64
	StopPrice   float64
	TargetPrice float64
	GeneratedAt time.Time
}

// OrderRequest 抽象具体委托。
type OrderRequest struct {
	Symbol      string
	Type        string // market | limit
	Side        OrderSide
	Amount      float64
	Price       float64
	ReduceOnly  bool
	CloseAll    bool
	ClientOrder string
	Params      map[string]interface{}
}

// Result 为执行结果摘要。
type Result struct {
	Orders        []OrderRequest
	Executed      bool
	ExecutionTime time.Time
	Notes         []string
}

package monitor

import (
	"time"

	"trader-core/internal/decision"
	"trader-core/internal/execution"
	"trader-core/internal/market"
	"trader-core/internal/position"
	"trader-core/internal/risk"
)

// EventType 表示监控事件类型。
type EventType string

const (
	EventMarketSnapshot EventType = "market_snapshot"
	EventDecision       EventType = "decision"
	EventSizing         EventType = "sizing"
	EventExecution      EventType = "execution"
	EventTradeClosed    EventType = "trade_closed"
	EventError          EventType = "error"
)

// Event 封装通用监控事件。
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// MarketSnapshotPayload 记录行情快照。
type MarketSnapshotPayload struct {
	Snapshot market.Snapshot `json:"snapshot"`
}

// DecisionPayload 记录一次仓位决策及其依据。
type DecisionPayload struct {
	Position position.Position `json:"position"`
	Decision decision.Decision `json:"decision"`
}

// SizingPayload 记录定量过程，保留乘数链便于审计。
type SizingPayload struct {
	Input  risk.SizingInput  `json:"input"`
	Result risk.SizingResult `json:"result"`
}

// ExecutionPayload 记录订单执行结果。
type ExecutionPayload struct {
	Result execution.Result `json:"result"`
}

// TradeClosedPayload 记录平仓成交。
type TradeClosedPayload struct {
	Symbol    string    `json:"symbol"`
	Direction string    `json:"direction"`
	Lots      float64   `json:"lots"`
	PnL       float64   `json:"pnl"`
	ClosedAt  time.Time `json:"closed_at"`
}

// ErrorPayload 记录异常。
type ErrorPayload struct {
	Message string                 `json:"message"`
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}

package risk

import (
	"strings"
	"testing"

	"trader-core/internal/config"
	"trader-core/internal/market"
)

func cryptoSpec() ContractSpec {
	return ContractSpec{
		Symbol:    "BTC/USDT",
		Class:     "crypto",
		TickValue: 1,
		TickSize:  1,
		LotStep:   0.01,
		MinLot:    0.01,
		MaxLot:    1000,
	}
}

func baseInput() SizingInput {
	return SizingInput{
		Spec:         cryptoSpec(),
		Direction:    market.DirectionLong,
		Balance:      10000,
		Equity:       10000,
		StopDistance: 10,
		Quality:      0.5,
		Confidence:   50,
		Daily:        DailyStatus{TradingDate: "2026-08-31", StartEquity: 10000, CurrentEquity: 10000},
	}
}

func newTestSizer() *Sizer {
	cfg := config.Default().Risk
	return NewSizer(cfg, NewBudgetAllocator(cfg), nil, nil, nil)
}

func TestSize_BasicRiskBudget(t *testing.T) {
	sizer := newTestSizer()

	// 10000 * 1.2% crypto base risk = 120 at stake, 10 per lot.
	result := sizer.Size(baseInput())

	if result.Lots != 12 {
		t.Fatalf("expected 12 lots, got %.4f (notes=%v)", result.Lots, result.Notes)
	}
	if result.RiskAmount != 120 {
		t.Errorf("expected risk amount 120, got %.2f", result.RiskAmount)
	}
	if result.RiskPerLot != 10 {
		t.Errorf("expected risk per lot 10, got %.2f", result.RiskPerLot)
	}
	if result.LowConfidence {
		t.Errorf("healthy input should not be flagged low confidence")
	}

	m := result.Multipliers
	for name, got := range map[string]float64{
		"health":          m.Health,
		"quality":         m.Quality,
		"confidence":      m.Confidence,
		"concurrency":     m.Concurrency,
		"daily target":    m.DailyTarget,
		"diversification": m.Diversification,
		"performance":     m.Performance,
	} {
		if got != 1.0 {
			t.Errorf("%s multiplier should be neutral, got %.2f", name, got)
		}
	}
}

func TestSize_HaltedReturnsZero(t *testing.T) {
	sizer := newTestSizer()

	input := baseInput()
	input.Daily.Halted = true

	result := sizer.Size(input)
	if result.Lots != 0 {
		t.Fatalf("halted day must size zero lots, got %.4f", result.Lots)
	}
	if len(result.Notes) == 0 {
		t.Errorf("expected a halt note")
	}
}

func TestSize_InvalidSpecFallsBack(t *testing.T) {
	sizer := newTestSizer()

	input := baseInput()
	input.Spec.TickValue = 0

	result := sizer.Size(input)
	if result.Lots != input.Spec.MinLot {
		t.Errorf("expected fallback to min lot %.2f, got %.4f", input.Spec.MinLot, result.Lots)
	}
	if !result.LowConfidence {
		t.Errorf("invalid spec must be flagged low confidence")
	}
}

func TestSize_InvalidStopDistance(t *testing.T) {
	sizer := newTestSizer()

	input := baseInput()
	input.StopDistance = 0

	result := sizer.Size(input)
	if result.Lots != input.Spec.MinLot || !result.LowConfidence {
		t.Errorf("expected min-lot low-confidence fallback, got lots=%.4f low=%v",
			result.Lots, result.LowConfidence)
	}
}

func TestSize_LotStepRounding(t *testing.T) {
	sizer := newTestSizer()

	// 120 / 7 = 17.142857... must floor to the 0.01 step, never round up.
	input := baseInput()
	input.StopDistance = 7

	result := sizer.Size(input)
	if result.Lots != 17.14 {
		t.Errorf("expected 17.14 lots, got %.6f", result.Lots)
	}
}

func TestSize_WholeLotClasses(t *testing.T) {
	sizer := newTestSizer()

	input := baseInput()
	input.Spec = ContractSpec{
		Symbol:    "US500",
		Class:     "index",
		TickValue: 1,
		TickSize:  1,
		LotStep:   0.1,
		MinLot:    1,
		MaxLot:    100,
	}
	input.StopDistance = 7

	// 10000 * 0.8% index base = 80 at stake; 80/7 = 11.43 floors to 11 whole lots.
	result := sizer.Size(input)
	if result.Lots != 11 {
		t.Errorf("index class must trade whole lots, got %.4f", result.Lots)
	}
}

func TestSize_LotClamps(t *testing.T) {
	sizer := newTestSizer()

	input := baseInput()
	input.Spec.MaxLot = 5
	result := sizer.Size(input)
	if result.Lots != 5 {
		t.Errorf("expected max-lot clamp to 5, got %.4f", result.Lots)
	}

	input = baseInput()
	input.Balance = 10
	input.Equity = 10
	input.Daily.StartEquity = 10
	input.Daily.CurrentEquity = 10
	result = sizer.Size(input)
	if result.Lots != input.Spec.MinLot {
		t.Errorf("expected min-lot clamp, got %.4f", result.Lots)
	}
}

func TestSize_ConcentrationClamp(t *testing.T) {
	sizer := newTestSizer()

	// Budget 600, 550 already committed: only 50 of incremental risk left.
	input := baseInput()
	input.Open = []OpenRisk{{Symbol: "ETH/USDT", Direction: market.DirectionLong, RiskAmount: 550}}

	result := sizer.Size(input)
	if result.Lots != 5 {
		t.Fatalf("expected 5 lots under the concentration clamp, got %.4f", result.Lots)
	}
	found := false
	for _, note := range result.Notes {
		if strings.Contains(note, "集中度上限") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a concentration note, got %v", result.Notes)
	}
}

func TestSize_BudgetExhausted(t *testing.T) {
	sizer := newTestSizer()

	input := baseInput()
	input.Open = []OpenRisk{{Symbol: "ETH/USDT", Direction: market.DirectionLong, RiskAmount: 600}}

	result := sizer.Size(input)
	if result.Lots != 0 {
		t.Errorf("exhausted budget must size zero lots, got %.4f", result.Lots)
	}
}

func TestHealthMultiplier(t *testing.T) {
	sizer := newTestSizer()

	cases := []struct {
		balance, equity, want float64
	}{
		{10000, 10000, 1.0},
		{10000, 9800, 1.0},  // 2% drawdown, under soft limit
		{10000, 9600, 0.75}, // 4% drawdown, between limits
		{10000, 9400, 0.5},  // 6% drawdown, past hard limit
		{10000, 11000, 1.0}, // floating profit
		{0, 9000, 1.0},
	}
	for _, tc := range cases {
		if got := sizer.healthMultiplier(tc.balance, tc.equity); got != tc.want {
			t.Errorf("healthMultiplier(%.0f, %.0f) = %.2f, want %.2f",
				tc.balance, tc.equity, got, tc.want)
		}
	}
}

func TestDailyTargetMultiplier(t *testing.T) {
	sizer := newTestSizer()

	cases := []struct {
		name    string
		current float64
		want    float64
	}{
		{"target reached", 10200, 0.5},
		{"near target", 10150, 1.0},
		{"small profit", 10050, 1.2},
		{"flat", 10000, 1.0},
		{"small loss", 9995, 1.0},
		{"medium loss", 9850, 0.7},
		{"deep loss", 9750, 0.5},
	}
	for _, tc := range cases {
		daily := DailyStatus{StartEquity: 10000, CurrentEquity: tc.current}
		if got := sizer.dailyTargetMultiplier(daily); got != tc.want {
			t.Errorf("%s: got %.2f, want %.2f", tc.name, got, tc.want)
		}
	}

	if got := sizer.dailyTargetMultiplier(DailyStatus{}); got != 1.0 {
		t.Errorf("missing start equity should be neutral, got %.2f", got)
	}
}

func TestScalarMultipliers(t *testing.T) {
	if got := qualityMultiplier(0); got != 0.7 {
		t.Errorf("quality 0 should map to 0.7, got %.2f", got)
	}
	if got := qualityMultiplier(1); got != 1.3 {
		t.Errorf("quality 1 should map to 1.3, got %.2f", got)
	}
	if got := qualityMultiplier(2); got != 1.3 {
		t.Errorf("quality beyond 1 should clamp, got %.2f", got)
	}
	if got := confidenceMultiplier(0); got != 0.8 {
		t.Errorf("confidence 0 should map to 0.8, got %.2f", got)
	}
	if got := confidenceMultiplier(100); got != 1.2 {
		t.Errorf("confidence 100 should map to 1.2, got %.2f", got)
	}
	if got := concurrencyMultiplier(0); got != 1.0 {
		t.Errorf("no open positions should be neutral, got %.2f", got)
	}
	if got := concurrencyMultiplier(2); got != 0.85 {
		t.Errorf("two open positions should scale 0.85, got %.2f", got)
	}
	if got := concurrencyMultiplier(5); got != 0.7 {
		t.Errorf("many open positions should scale 0.7, got %.2f", got)
	}
}

func TestMaxIncrementalRisk(t *testing.T) {
	alloc := NewBudgetAllocator(config.Default().Risk)

	// 6% of 10000 is a 600 budget, 30% concentration caps a single trade at 180.
	if got := alloc.MaxIncrementalRisk(10000, 0); got != 180 {
		t.Errorf("fresh budget should cap at the concentration ceiling, got %.2f", got)
	}
	if got := alloc.MaxIncrementalRisk(10000, 550); got != 50 {
		t.Errorf("nearly spent budget should return the remainder, got %.2f", got)
	}
	if got := alloc.MaxIncrementalRisk(10000, 700); got != 0 {
		t.Errorf("overspent budget should return zero, got %.2f", got)
	}
	if got := alloc.MaxIncrementalRisk(0, 0); got != 0 {
		t.Errorf("no equity means no budget, got %.2f", got)
	}
}

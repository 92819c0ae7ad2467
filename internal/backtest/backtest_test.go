package backtest

import (
	"context"
	"math"
	"testing"
	"time"

	"trader-core/internal/app"
	"trader-core/internal/config"
	"trader-core/internal/feed"
	"trader-core/internal/market"
)

func TestCalculateMetrics(t *testing.T) {
	equity := []float64{10000, 10500, 10200, 11000}
	returns := []float64{0.05, -0.0286, 0.0784}

	metrics := calculateMetrics(equity, returns)

	if math.Abs(metrics.TotalReturn-0.10) > 1e-9 {
		t.Errorf("expected total return 10%%, got %.4f", metrics.TotalReturn)
	}
	// Deepest trough: 10200 after the 10500 peak.
	wantDD := (10500.0 - 10200.0) / 10500.0
	if math.Abs(metrics.MaxDrawdown-wantDD) > 1e-9 {
		t.Errorf("expected drawdown %.4f, got %.4f", wantDD, metrics.MaxDrawdown)
	}
	if metrics.SharpeRatio <= 0 {
		t.Errorf("positive mean return should give positive sharpe, got %.4f", metrics.SharpeRatio)
	}
}

func TestCalculateMetrics_Degenerate(t *testing.T) {
	if m := calculateMetrics(nil, nil); m.TotalReturn != 0 || m.MaxDrawdown != 0 || m.SharpeRatio != 0 {
		t.Errorf("empty history should zero all metrics, got %+v", m)
	}

	// Monotonic equity never draws down.
	m := calculateMetrics([]float64{100, 110, 120}, []float64{0.1, 0.1})
	if m.MaxDrawdown != 0 {
		t.Errorf("monotonic equity should have zero drawdown, got %.4f", m.MaxDrawdown)
	}
	if m.SharpeRatio != 0 {
		t.Errorf("zero-variance returns should collapse sharpe to 0, got %.4f", m.SharpeRatio)
	}
}

func TestSimulator_MarkToMarket(t *testing.T) {
	sim := NewSimulator(10000, 1)
	now := time.Now().UTC()

	sim.Advance(100)
	sim.Open("BTC/USDT", market.DirectionLong, 2, 100, 90, 120, now)
	sim.Advance(105)

	if got := sim.Equity(); got != 10010 {
		t.Errorf("2 lots up 5 should add 10, got %.2f", got)
	}

	sim.Advance(95)
	if got := sim.Equity(); got != 9990 {
		t.Errorf("2 lots down 5 from entry should cost 10, got %.2f", got)
	}
}

func TestSimulator_ReduceAndClose(t *testing.T) {
	sim := NewSimulator(10000, 1)
	now := time.Now().UTC()

	sim.Advance(100)
	sim.Open("BTC/USDT", market.DirectionLong, 4, 100, 90, 120, now)

	closed := sim.Reduce(0.25, 110)
	if closed != 1 {
		t.Errorf("expected 1 lot closed, got %.2f", closed)
	}
	pos, ok := sim.Position()
	if !ok || pos.Size != 3 {
		t.Errorf("expected 3 lots remaining, got %+v ok=%v", pos, ok)
	}

	closed = sim.Reduce(1, 110)
	if closed != 3 {
		t.Errorf("full close should return the remainder, got %.2f", closed)
	}
	if _, ok := sim.Position(); ok {
		t.Errorf("position should be gone after full close")
	}
	if sim.Wins() != 2 {
		t.Errorf("both settlements were profitable, got %d wins", sim.Wins())
	}
}

func TestSimulator_AddRefreshesAverage(t *testing.T) {
	sim := NewSimulator(10000, 1)
	now := time.Now().UTC()

	sim.Advance(100)
	sim.Open("BTC/USDT", market.DirectionLong, 2, 100, 90, 120, now)
	sim.Add(2, 110)

	pos, ok := sim.Position()
	if !ok {
		t.Fatalf("expected open position")
	}
	if pos.Size != 4 {
		t.Errorf("expected 4 lots, got %.2f", pos.Size)
	}
	if pos.EntryPrice != 105 {
		t.Errorf("expected volume-weighted entry 105, got %.2f", pos.EntryPrice)
	}
}

func TestSimulator_RealizedPnL(t *testing.T) {
	sim := NewSimulator(10000, 2)
	now := time.Now().UTC()

	sim.Advance(3000)
	sim.Open("ETH/USDT", market.DirectionShort, 3, 3000, 3150, 2700, now)

	if got := sim.RealizedPnL(2900, 3); got != 600 {
		t.Errorf("short down 100 on 3 lots at 2 per unit should earn 600, got %.2f", got)
	}
	if got := sim.RealizedPnL(3100, 1); got != -200 {
		t.Errorf("short up 100 on 1 lot should lose 200, got %.2f", got)
	}
}

func TestRandomWalkProvider_Deterministic(t *testing.T) {
	a := NewRandomWalkProvider("BTC/USDT", 20, 42)
	b := NewRandomWalkProvider("BTC/USDT", 20, 42)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		snapA, okA, errA := a.Next(ctx)
		snapB, okB, errB := b.Next(ctx)
		if errA != nil || errB != nil {
			t.Fatalf("step %d: errors %v %v", i, errA, errB)
		}
		if !okA || !okB {
			t.Fatalf("step %d: expected more snapshots", i)
		}
		if snapA.Price != snapB.Price {
			t.Fatalf("step %d: equal seeds must replay identically: %.6f vs %.6f", i, snapA.Price, snapB.Price)
		}
	}

	if _, ok, _ := a.Next(ctx); ok {
		t.Errorf("provider should stop after the configured steps")
	}
}

func TestRandomWalkProvider_SnapshotsAreUsable(t *testing.T) {
	provider := NewRandomWalkProvider("BTC/USDT", 5, 7)

	snap, ok, err := provider.Next(context.Background())
	if err != nil || !ok {
		t.Fatalf("Next: ok=%v err=%v", ok, err)
	}
	if snap.Price <= 0 {
		t.Errorf("expected positive price, got %.4f", snap.Price)
	}
	if len(snap.Frames) != 2 {
		t.Errorf("expected H1 and H4 frames, got %d", len(snap.Frames))
	}
	if snap.RetrievedAt.IsZero() {
		t.Errorf("expected retrieval timestamp")
	}
}

func TestSliceSnapshotProvider(t *testing.T) {
	snaps := []market.Snapshot{{Symbol: "A", Price: 1}, {Symbol: "B", Price: 2}}
	provider := NewSliceSnapshotProvider(snaps)
	ctx := context.Background()

	for i, want := range snaps {
		snap, ok, err := provider.Next(ctx)
		if err != nil || !ok {
			t.Fatalf("step %d: ok=%v err=%v", i, ok, err)
		}
		if snap.Symbol != want.Symbol {
			t.Errorf("step %d: got %s want %s", i, snap.Symbol, want.Symbol)
		}
	}
	if _, ok, _ := provider.Next(ctx); ok {
		t.Errorf("exhausted provider should report done")
	}
}

func TestAggregate(t *testing.T) {
	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	candles := makeTestCandles(8, start)

	merged := aggregate(candles, 4)
	if len(merged) != 2 {
		t.Fatalf("expected 2 merged candles, got %d", len(merged))
	}

	first := merged[0]
	if first.Open != candles[0].Open || first.Close != candles[3].Close {
		t.Errorf("merged open/close should bracket the chunk, got %+v", first)
	}
	if first.High != 14 || first.Low != 9 {
		t.Errorf("merged extremes wrong: high=%.1f low=%.1f", first.High, first.Low)
	}
	if first.Volume != 4000 {
		t.Errorf("merged volume should sum, got %.1f", first.Volume)
	}
}

func TestEnsureSpec(t *testing.T) {
	cfg := config.Default()

	EnsureSpec(cfg, "BTC/USDT")
	spec, ok := cfg.Instruments.Specs["BTC/USDT"]
	if !ok {
		t.Fatalf("expected an injected generic spec")
	}
	if spec.Class != "crypto" || spec.MinLot != 0.01 {
		t.Errorf("unexpected generic spec %+v", spec)
	}

	// An existing spec must win over the generic one.
	cfg.Instruments.Specs["EURUSD"] = config.InstrumentConfig{Class: "forex", TickValue: 10, TickSize: 0.0001, LotStep: 0.01, MinLot: 0.01, MaxLot: 50}
	EnsureSpec(cfg, "EURUSD")
	if got := cfg.Instruments.Specs["EURUSD"].Class; got != "forex" {
		t.Errorf("existing spec should be kept, got class %s", got)
	}
}

func TestEngineRun_FullReplay(t *testing.T) {
	cfg := config.Default()
	core, err := app.NewEngine(cfg, nil, nil)
	if err != nil {
		t.Fatalf("new core: %v", err)
	}

	steps := 100
	provider := NewRandomWalkProvider("BTC/USDT", steps, 42)
	engine, err := NewEngine(Config{Symbol: "BTC/USDT", InitialEquity: 10000, Steps: steps, Seed: 42}, cfg, provider, core, nil)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	result, err := engine.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(result.EquityCurve) != steps+1 {
		t.Errorf("expected %d equity points, got %d", steps+1, len(result.EquityCurve))
	}
	if result.FinalEquity != result.EquityCurve[len(result.EquityCurve)-1] {
		t.Errorf("final equity should close the curve: %.2f vs %.2f",
			result.FinalEquity, result.EquityCurve[len(result.EquityCurve)-1])
	}
	if result.FinalEquity <= 0 {
		t.Errorf("equity should stay positive over a short replay, got %.2f", result.FinalEquity)
	}
	if result.Metrics.MaxDrawdown < 0 {
		t.Errorf("drawdown is reported as a magnitude, got %.4f", result.Metrics.MaxDrawdown)
	}
	if result.Trades < 0 || result.Wins < 0 || result.Losses < 0 {
		t.Errorf("negative counters: trades=%d wins=%d losses=%d",
			result.Trades, result.Wins, result.Losses)
	}
}

func TestEngineRun_Deterministic(t *testing.T) {
	run := func() Result {
		cfg := config.Default()
		core, err := app.NewEngine(cfg, nil, nil)
		if err != nil {
			t.Fatalf("new core: %v", err)
		}
		provider := NewRandomWalkProvider("BTC/USDT", 60, 7)
		engine, err := NewEngine(Config{Symbol: "BTC/USDT", InitialEquity: 10000, Steps: 60, Seed: 7}, cfg, provider, core, nil)
		if err != nil {
			t.Fatalf("new engine: %v", err)
		}
		result, err := engine.Run(context.Background())
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		return result
	}

	a := run()
	b := run()
	if a.FinalEquity != b.FinalEquity || a.Trades != b.Trades {
		t.Errorf("equal seeds must replay identically: %+v vs %+v", a, b)
	}
}

func makeTestCandles(n int, start time.Time) []feed.Candle {
	out := make([]feed.Candle, n)
	for i := 0; i < n; i++ {
		p := 10 + float64(i)
		out[i] = feed.Candle{
			Timestamp: start.Add(time.Duration(i) * time.Hour),
			Open:      p,
			High:      p + 1,
			Low:       p - 1,
			Close:     p,
			Volume:    1000,
		}
	}
	return out
}

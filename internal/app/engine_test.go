package app

import (
	"context"
	"testing"
	"time"

	"trader-core/internal/config"
	"trader-core/internal/decision"
	"trader-core/internal/market"
	"trader-core/internal/monitor"
	"trader-core/internal/position"
	"trader-core/internal/store"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Instruments.Specs = map[string]config.InstrumentConfig{
		"BTC/USDT": {Class: "crypto", TickValue: 1, TickSize: 1, LotStep: 0.01, MinLot: 0.01, MaxLot: 1000},
	}
	return cfg
}

func newTestEngine(t *testing.T, withStore bool) *Engine {
	t.Helper()

	var st *store.Store
	if withStore {
		var err error
		st, err = store.NewSQLite(config.DatabaseConfig{InMemory: true})
		if err != nil {
			t.Fatalf("open store: %v", err)
		}
		t.Cleanup(func() { _ = st.Close() })
	}

	engine, err := NewEngine(testConfig(), st, nil)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return engine
}

func neutralSnapshot(symbol string, price float64) market.Snapshot {
	return market.Snapshot{
		Symbol: symbol,
		Price:  price,
		Frames: map[market.Timeframe]market.FrameFeatures{
			market.TimeframeH1: market.NeutralFrame(),
			market.TimeframeH4: market.NeutralFrame(),
		},
		Signal:      market.Signal{Direction: market.DirectionFlat},
		RetrievedAt: time.Now().UTC(),
	}
}

func TestEvaluateAll_SkipsMissingSnapshots(t *testing.T) {
	engine := newTestEngine(t, false)
	now := time.Now().UTC()

	positions := []position.Position{
		{ID: "p1", Symbol: "BTC/USDT", Direction: market.DirectionLong, Size: 1, EntryPrice: 100, StopPrice: 90},
		{ID: "p2", Symbol: "ETH/USDT", Direction: market.DirectionLong, Size: 1, EntryPrice: 100, StopPrice: 90},
	}
	snapshots := map[string]market.Snapshot{
		"BTC/USDT": neutralSnapshot("BTC/USDT", 101),
	}

	evals, err := engine.EvaluateAll(context.Background(), snapshots, positions, now)
	if err != nil {
		t.Fatalf("EvaluateAll: %v", err)
	}
	if len(evals) != 1 {
		t.Fatalf("expected 1 evaluation, got %d", len(evals))
	}
	if evals[0].Position.ID != "p1" {
		t.Errorf("unexpected position %s", evals[0].Position.ID)
	}
	if evals[0].Decision.Action.Type != decision.ActionHold {
		t.Errorf("neutral winner should hold, got %s", evals[0].Decision.Action)
	}
}

func TestSizeEntry_EndToEnd(t *testing.T) {
	engine := newTestEngine(t, true)
	ctx := context.Background()
	now := time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC)

	result, err := engine.SizeEntry(ctx, EntryRequest{
		Symbol:       "BTC/USDT",
		Direction:    market.DirectionLong,
		Balance:      10000,
		Equity:       10000,
		StopDistance: 10,
		Quality:      0.5,
		Confidence:   50,
		Now:          now,
	})
	if err != nil {
		t.Fatalf("SizeEntry: %v", err)
	}
	if result.Lots != 12 {
		t.Errorf("expected 12 lots, got %.4f (notes=%v)", result.Lots, result.Notes)
	}

	// The sizing decision must be persisted for audit.
	events, err := engine.Monitor().ListEvents(ctx, monitor.EventSizing, 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("expected 1 sizing event, got %d", len(events))
	}
}

func TestSizeEntry_UnknownSymbol(t *testing.T) {
	engine := newTestEngine(t, false)

	if _, err := engine.SizeEntry(context.Background(), EntryRequest{Symbol: "DOGE/USDT"}); err == nil {
		t.Fatalf("expected error for symbol without a contract spec")
	}
}

func TestSizeEntry_HaltedDayBlocksEntries(t *testing.T) {
	engine := newTestEngine(t, true)
	ctx := context.Background()
	now := time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC)

	if _, err := engine.RefreshDaily(ctx, now, 10000); err != nil {
		t.Fatalf("seed day: %v", err)
	}

	// A 4% drawdown trips the daily halt; sizing afterwards must be zero.
	result, err := engine.SizeEntry(ctx, EntryRequest{
		Symbol:       "BTC/USDT",
		Direction:    market.DirectionLong,
		Balance:      10000,
		Equity:       9600,
		StopDistance: 10,
		Quality:      0.5,
		Confidence:   50,
		Now:          now.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("SizeEntry: %v", err)
	}
	if result.Lots != 0 {
		t.Errorf("halted day must size zero lots, got %.4f (notes=%v)", result.Lots, result.Notes)
	}
}

func TestRecordClose_CleansUpState(t *testing.T) {
	engine := newTestEngine(t, true)
	ctx := context.Background()
	now := time.Now().UTC()

	pos := position.Position{ID: "p1", Symbol: "BTC/USDT", Direction: market.DirectionLong, Size: 2, EntryPrice: 100, StopPrice: 90}

	// Seed lifecycle state through an evaluation.
	engine.EvaluatePosition(ctx, neutralSnapshot("BTC/USDT", 104), pos, now)
	if _, ok := engine.decider.States().Get("p1"); !ok {
		t.Fatalf("expected lifecycle state after evaluation")
	}

	// A partial close keeps the state alive.
	if err := engine.RecordClose(ctx, pos, 1, 40, now); err != nil {
		t.Fatalf("partial close: %v", err)
	}
	if _, ok := engine.decider.States().Get("p1"); !ok {
		t.Errorf("partial close must keep lifecycle state")
	}

	// A full close drops it.
	if err := engine.RecordClose(ctx, pos, 2, 80, now); err != nil {
		t.Fatalf("full close: %v", err)
	}
	if _, ok := engine.decider.States().Get("p1"); ok {
		t.Errorf("full close must drop lifecycle state")
	}

	// Both closes feed the performance history.
	if got := engine.Performance().Summarize("BTC/USDT").Trades; got != 2 {
		t.Errorf("expected 2 performance records, got %d", got)
	}
}

func TestObservePrice_FeedsCorrelations(t *testing.T) {
	engine := newTestEngine(t, false)

	for i := 0; i < 5; i++ {
		engine.ObservePrice("BTC/USDT", 100+float64(i))
	}
	if got := engine.Correlations().SampleCount("BTC/USDT"); got != 4 {
		t.Errorf("expected 4 return samples, got %d", got)
	}
}

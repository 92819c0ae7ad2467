package risk

import (
	"context"
	"testing"
	"time"

	"trader-core/internal/config"
	"trader-core/internal/store"
)

func newTestTracker(t *testing.T) *DailyTracker {
	t.Helper()

	st, err := store.NewSQLite(config.DatabaseConfig{InMemory: true})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	tracker, err := NewDailyTracker(st.DB(), config.Default().Risk, nil)
	if err != nil {
		t.Fatalf("new tracker: %v", err)
	}
	return tracker
}

func TestDailyTracker_FirstUpdateStartsDay(t *testing.T) {
	tracker := newTestTracker(t)
	ts := time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC)

	status, err := tracker.Update(context.Background(), ts, 10000)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if status.TradingDate != "2026-08-31" {
		t.Errorf("expected trading date 2026-08-31, got %s", status.TradingDate)
	}
	if status.StartEquity != 10000 || status.CurrentEquity != 10000 {
		t.Errorf("first update should anchor start equity, got %+v", status)
	}
	if status.Halted {
		t.Errorf("fresh day must not be halted")
	}
}

func TestDailyTracker_HaltsOnLossBreach(t *testing.T) {
	tracker := newTestTracker(t)
	ctx := context.Background()
	ts := time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC)

	if _, err := tracker.Update(ctx, ts, 10000); err != nil {
		t.Fatalf("seed day: %v", err)
	}

	// 2% down stays within the 3% daily loss limit.
	status, err := tracker.Update(ctx, ts.Add(time.Hour), 9800)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if status.Halted {
		t.Fatalf("2%% loss must not halt")
	}

	// 4% down breaches the limit and must latch.
	status, err = tracker.Update(ctx, ts.Add(2*time.Hour), 9600)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !status.Halted {
		t.Fatalf("4%% loss must halt the day")
	}

	// A recovery inside the same day does not unlatch.
	status, err = tracker.Update(ctx, ts.Add(3*time.Hour), 9900)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !status.Halted {
		t.Errorf("halt must persist for the rest of the day")
	}
}

func TestDailyTracker_RecordTradeAccumulates(t *testing.T) {
	tracker := newTestTracker(t)
	ctx := context.Background()
	ts := time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC)

	if _, err := tracker.Update(ctx, ts, 10000); err != nil {
		t.Fatalf("seed day: %v", err)
	}
	if err := tracker.RecordTrade(ctx, "BTC/USDT", "LONG", 0.5, 120, ts.Add(time.Hour)); err != nil {
		t.Fatalf("record trade: %v", err)
	}
	if err := tracker.RecordTrade(ctx, "BTC/USDT", "LONG", 0.3, -40, ts.Add(2*time.Hour)); err != nil {
		t.Fatalf("record trade: %v", err)
	}

	status, err := tracker.Update(ctx, ts.Add(3*time.Hour), 10080)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if status.RealizedPnL != 80 {
		t.Errorf("expected realized pnl 80, got %.2f", status.RealizedPnL)
	}
}

func TestDailyTracker_RecordTradeRequiresSymbol(t *testing.T) {
	tracker := newTestTracker(t)

	if err := tracker.RecordTrade(context.Background(), "", "LONG", 1, 10, time.Now()); err == nil {
		t.Fatalf("expected error for empty symbol")
	}
}

func TestDailyTracker_RecentTrades(t *testing.T) {
	tracker := newTestTracker(t)
	ctx := context.Background()
	ts := time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC)

	if _, err := tracker.Update(ctx, ts, 10000); err != nil {
		t.Fatalf("seed day: %v", err)
	}
	for i, pnl := range []float64{10, -5, 30} {
		if err := tracker.RecordTrade(ctx, "ETH/USDT", "SHORT", 1, pnl, ts.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatalf("record trade %d: %v", i, err)
		}
	}
	if err := tracker.RecordTrade(ctx, "BTC/USDT", "LONG", 1, 99, ts.Add(time.Hour)); err != nil {
		t.Fatalf("record trade: %v", err)
	}

	pnls, err := tracker.RecentTrades(ctx, "ETH/USDT", 2)
	if err != nil {
		t.Fatalf("recent trades: %v", err)
	}
	if len(pnls) != 2 || pnls[0] != 30 || pnls[1] != -5 {
		t.Errorf("expected newest-first [30 -5], got %v", pnls)
	}
}

func TestTradingDay_ResetHour(t *testing.T) {
	// 02:00 UTC with a 4-hour reset still belongs to the previous day.
	ts := time.Date(2026, 8, 31, 2, 0, 0, 0, time.UTC)

	if got := tradingDay(ts, 0); got != "2026-08-31" {
		t.Errorf("reset 0: got %s", got)
	}
	if got := tradingDay(ts, 4); got != "2026-08-30" {
		t.Errorf("reset 4: got %s", got)
	}
	if got := tradingDay(ts, 99); got != "2026-08-31" {
		t.Errorf("out-of-range reset should act as midnight, got %s", got)
	}
}

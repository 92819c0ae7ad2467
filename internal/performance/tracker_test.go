package performance

import (
	"math"
	"testing"
	"time"

	"trader-core/internal/config"
)

func newTestTracker() *Tracker {
	return NewTracker(config.Default().Performance, nil)
}

func addTrades(tr *Tracker, symbol string, pnls []float64) {
	base := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)
	for i, pnl := range pnls {
		tr.Add(Record{Symbol: symbol, PnL: pnl, ClosedAt: base.Add(time.Duration(i) * time.Hour)})
	}
}

func TestMultiplier_ColdStartIsNeutral(t *testing.T) {
	tracker := newTestTracker()

	if got := tracker.Multiplier("BTC/USDT"); got != 1.0 {
		t.Errorf("no history should be neutral, got %.2f", got)
	}

	// Four trades sit under the five-sample floor.
	addTrades(tracker, "BTC/USDT", []float64{-10, -10, -10, -10})
	if got := tracker.Multiplier("BTC/USDT"); got != 1.0 {
		t.Errorf("below min samples should stay neutral, got %.2f", got)
	}
}

func TestMultiplier_WinRateBands(t *testing.T) {
	tracker := newTestTracker()

	// 1 win in 5: 20% win rate pins the minimum.
	addTrades(tracker, "COLD", []float64{10, -5, -5, -5, -5})
	if got := tracker.Multiplier("COLD"); got != 0.7 {
		t.Errorf("low win rate should floor at 0.7, got %.2f", got)
	}

	// 4 wins in 5: 80% win rate pins the maximum.
	addTrades(tracker, "HOT", []float64{10, 10, 10, 10, -5})
	if got := tracker.Multiplier("HOT"); got != 1.3 {
		t.Errorf("high win rate should cap at 1.3, got %.2f", got)
	}

	// 3 wins in 6: 50% sits midway in the 0.40-0.60 band.
	addTrades(tracker, "MID", []float64{10, 10, 10, -5, -5, -5})
	if got := tracker.Multiplier("MID"); math.Abs(got-1.0) > 1e-9 {
		t.Errorf("50%% win rate should interpolate to 1.0, got %.4f", got)
	}
}

func TestAdd_RingBounded(t *testing.T) {
	tracker := newTestTracker()
	maxRecords := config.Default().Performance.MaxRecords

	// Old losses must be evicted once the window fills with wins.
	pnls := make([]float64, 0, maxRecords*2)
	for i := 0; i < maxRecords; i++ {
		pnls = append(pnls, -10)
	}
	for i := 0; i < maxRecords; i++ {
		pnls = append(pnls, 10)
	}
	addTrades(tracker, "BTC/USDT", pnls)

	summary := tracker.Summarize("BTC/USDT")
	if summary.Trades != maxRecords {
		t.Fatalf("expected %d retained trades, got %d", maxRecords, summary.Trades)
	}
	if summary.WinRate != 1.0 {
		t.Errorf("all retained trades are wins, got win rate %.2f", summary.WinRate)
	}
}

func TestAdd_IgnoresEmptySymbol(t *testing.T) {
	tracker := newTestTracker()

	tracker.Add(Record{Symbol: "", PnL: 10})
	if got := tracker.Summarize("").Trades; got != 0 {
		t.Errorf("empty symbol should be dropped, got %d trades", got)
	}
}

func TestWinRate_ZeroPnLIsLoss(t *testing.T) {
	tracker := newTestTracker()

	addTrades(tracker, "BTC/USDT", []float64{0, 10})
	if got := tracker.WinRate("BTC/USDT"); got != 0.5 {
		t.Errorf("breakeven trade should not count as a win, got %.2f", got)
	}
}

func TestSummarize_Sharpe(t *testing.T) {
	tracker := newTestTracker()

	addTrades(tracker, "BTC/USDT", []float64{10, 20, 30, 40})
	summary := tracker.Summarize("BTC/USDT")
	if summary.Sharpe <= 0 {
		t.Errorf("uniformly positive trades should have positive sharpe, got %.4f", summary.Sharpe)
	}

	tracker = newTestTracker()
	addTrades(tracker, "FLAT", []float64{10, 10, 10})
	if got := tracker.Summarize("FLAT").Sharpe; got != 0 {
		t.Errorf("zero variance should collapse sharpe to 0, got %.4f", got)
	}
}

// Package performance 维护每个品种有界的已实现交易历史，
// 并据此推导仓位绩效乘数。
package performance

import (
	"math"
	"sync"
	"time"

	talib "github.com/markcheno/go-talib"
	"go.uber.org/zap"

	"trader-core/internal/config"
)

// Record 为一笔已实现交易的结果。
type Record struct {
	Symbol   string
	PnL      float64
	Win      bool
	ClosedAt time.Time
}

// Summary 汇总某品种的近期绩效。
type Summary struct {
	Trades     int
	WinRate    float64
	Sharpe     float64
	Multiplier float64
}

// Tracker 按品种维护至多 MaxRecords 笔的环形历史。
// 写入为单写者，读取持共享锁。
type Tracker struct {
	mu      sync.RWMutex
	cfg     config.PerformanceConfig
	records map[string][]Record
	logger  *zap.Logger
}

// NewTracker 创建绩效跟踪器。
func NewTracker(cfg config.PerformanceConfig, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		cfg:     cfg,
		records: make(map[string][]Record),
		logger:  logger,
	}
}

// Add 记录一笔已实现交易，超出容量时淘汰最旧记录。
func (t *Tracker) Add(rec Record) {
	if rec.Symbol == "" {
		return
	}
	rec.Win = rec.PnL > 0

	t.mu.Lock()
	defer t.mu.Unlock()

	window := append(t.records[rec.Symbol], rec)
	if excess := len(window) - t.cfg.MaxRecords; excess > 0 {
		window = window[excess:]
	}
	t.records[rec.Symbol] = window
}

// WinRate 返回某品种的近期胜率，无历史时为0。
func (t *Tracker) WinRate(symbol string) float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return winRate(t.records[symbol])
}

// Multiplier 按胜率推导绩效乘数：低于下限取最小值，
// 上下限之间线性插值，高于上限取最大值。
// 样本不足时返回中性的1.0，避免冷启动被惩罚。
func (t *Tracker) Multiplier(symbol string) float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	records := t.records[symbol]
	if len(records) < t.cfg.MinSamples {
		return 1.0
	}
	return t.multiplierFor(winRate(records))
}

// Summarize 返回某品种的绩效摘要。
func (t *Tracker) Summarize(symbol string) Summary {
	t.mu.RLock()
	records := append([]Record(nil), t.records[symbol]...)
	t.mu.RUnlock()

	summary := Summary{
		Trades:     len(records),
		WinRate:    winRate(records),
		Sharpe:     sharpe(records),
		Multiplier: 1.0,
	}
	if len(records) >= t.cfg.MinSamples {
		summary.Multiplier = t.multiplierFor(summary.WinRate)
	}
	return summary
}

func (t *Tracker) multiplierFor(rate float64) float64 {
	cfg := t.cfg
	switch {
	case rate < cfg.LowWinRate:
		return cfg.MinMultiplier
	case rate > cfg.HighWinRate:
		return cfg.MaxMultiplier
	default:
		span := cfg.HighWinRate - cfg.LowWinRate
		frac := (rate - cfg.LowWinRate) / span
		return cfg.MinMultiplier + frac*(cfg.MaxMultiplier-cfg.MinMultiplier)
	}
}

func winRate(records []Record) float64 {
	if len(records) == 0 {
		return 0
	}
	wins := 0
	for _, r := range records {
		if r.Win {
			wins++
		}
	}
	return float64(wins) / float64(len(records))
}

// sharpe 用交易盈亏序列的均值与标准差估计夏普值。
func sharpe(records []Record) float64 {
	if len(records) < 2 {
		return 0
	}

	pnls := make([]float64, len(records))
	var mean float64
	for i, r := range records {
		pnls[i] = r.PnL
		mean += r.PnL
	}
	mean /= float64(len(pnls))

	stds := talib.StdDev(pnls, len(pnls), 1.0)
	if len(stds) == 0 {
		return 0
	}
	std := stds[len(stds)-1]
	if std == 0 || math.IsNaN(std) {
		return 0
	}
	return mean / std
}

package backtest

import (
	"context"
	"math"
	"math/rand"
	"time"

	"trader-core/internal/feed"
	"trader-core/internal/market"
)

// SnapshotProvider 按时间顺序提供市场快照。
type SnapshotProvider interface {
	Next(ctx context.Context) (market.Snapshot, bool, error)
}

// SliceSnapshotProvider 以固定序列提供快照。
type SliceSnapshotProvider struct {
	snapshots []market.Snapshot
	index     int
}

func NewSliceSnapshotProvider(snaps []market.Snapshot) *SliceSnapshotProvider {
	return &SliceSnapshotProvider{snapshots: snaps}
}

func (p *SliceSnapshotProvider) Next(ctx context.Context) (market.Snapshot, bool, error) {
	if p.index >= len(p.snapshots) {
		return market.Snapshot{}, false, nil
	}
	snap := p.snapshots[p.index]
	p.index++
	return snap, true, nil
}

// RandomWalkProvider 用几何随机游走生成K线并组装快照，
// 供干跑模式在无真实行情时驱动决策循环。
type RandomWalkProvider struct {
	symbol    string
	steps     int
	generated int

	rng     *rand.Rand
	builder *feed.SnapshotBuilder
	candles []feed.Candle
	cursor  time.Time
	price   float64
}

// NewRandomWalkProvider 创建随机游走数据源。seed 相同则序列可复现。
func NewRandomWalkProvider(symbol string, steps int, seed int64) *RandomWalkProvider {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	p := &RandomWalkProvider{
		symbol:  symbol,
		steps:   steps,
		rng:     rng,
		builder: feed.NewSnapshotBuilder(),
		cursor:  time.Now().UTC().Add(-time.Duration(steps+60) * time.Hour).Truncate(time.Hour),
		price:   100.0,
	}

	// 预热一段历史，确保指标计算有足够样本。
	for i := 0; i < 60; i++ {
		p.candles = append(p.candles, p.nextCandle())
	}
	return p
}

func (p *RandomWalkProvider) nextCandle() feed.Candle {
	drift := p.rng.NormFloat64() * 0.0015
	open := p.price
	close := open * (1 + drift)
	high := math.Max(open, close) * (1 + math.Abs(p.rng.NormFloat64())*0.0005)
	low := math.Min(open, close) * (1 - math.Abs(p.rng.NormFloat64())*0.0005)
	volume := 800 + p.rng.Float64()*400

	candle := feed.Candle{
		Timestamp: p.cursor,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     close,
		Volume:    volume,
	}
	p.price = close
	p.cursor = p.cursor.Add(time.Hour)
	return candle
}

// Next 推进一根K线并返回最新快照。
func (p *RandomWalkProvider) Next(ctx context.Context) (market.Snapshot, bool, error) {
	if err := ctx.Err(); err != nil {
		return market.Snapshot{}, false, err
	}
	if p.generated >= p.steps {
		return market.Snapshot{}, false, nil
	}
	p.generated++

	p.candles = append(p.candles, p.nextCandle())
	if len(p.candles) > 240 {
		p.candles = p.candles[len(p.candles)-240:]
	}

	snap, err := p.builder.Build(p.symbol, map[market.Timeframe][]feed.Candle{
		market.TimeframeH1: p.candles,
		market.TimeframeH4: aggregate(p.candles, 4),
	}, p.signal(), p.cursor)
	if err != nil {
		return market.Snapshot{}, false, err
	}

	return snap, true, nil
}

// signal 用近期漂移给出方向信号，模拟上游模型输出。
func (p *RandomWalkProvider) signal() market.Signal {
	n := len(p.candles)
	if n < 12 {
		return market.Signal{Direction: market.DirectionFlat}
	}

	recent := p.candles[n-12:]
	start := recent[0].Close
	end := recent[len(recent)-1].Close
	if start <= 0 {
		return market.Signal{Direction: market.DirectionFlat}
	}

	drift := (end - start) / start
	switch {
	case drift > 0.002:
		return market.Signal{Direction: market.DirectionLong, Confidence: 65}
	case drift < -0.002:
		return market.Signal{Direction: market.DirectionShort, Confidence: 65}
	default:
		return market.Signal{Direction: market.DirectionFlat, Confidence: 40}
	}
}

// aggregate 把H1K线合并为更高级别。
func aggregate(candles []feed.Candle, factor int) []feed.Candle {
	if factor <= 1 || len(candles) == 0 {
		return candles
	}

	out := make([]feed.Candle, 0, len(candles)/factor+1)
	for i := 0; i < len(candles); i += factor {
		end := i + factor
		if end > len(candles) {
			end = len(candles)
		}
		chunk := candles[i:end]

		merged := feed.Candle{
			Timestamp: chunk[0].Timestamp,
			Open:      chunk[0].Open,
			High:      chunk[0].High,
			Low:       chunk[0].Low,
			Close:     chunk[len(chunk)-1].Close,
		}
		for _, c := range chunk {
			if c.High > merged.High {
				merged.High = c.High
			}
			if c.Low < merged.Low {
				merged.Low = c.Low
			}
			merged.Volume += c.Volume
		}
		out = append(out, merged)
	}
	return out
}

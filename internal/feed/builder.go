package feed

import (
	"fmt"
	"math"
	"sync"
	"time"

	talib "github.com/markcheno/go-talib"

	"trader-core/internal/market"
)

// 指标计算所需的最小K线数量，低于该值的时间级别退化为中性特征。
const minCandles = 30

const structureLookback = 20

// SnapshotBuilder 把原始K线转换为决策快照，带按时间级别的简单缓存。
type SnapshotBuilder struct {
	mu    sync.Mutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	key   string
	frame market.FrameFeatures
}

// NewSnapshotBuilder 创建 SnapshotBuilder。
func NewSnapshotBuilder() *SnapshotBuilder {
	return &SnapshotBuilder{
		cache: make(map[string]cacheEntry),
	}
}

// Build 用多级别K线组装快照。H1 级别承担价格、波动率、
// 结构位与量比的计算，缺失时回退到任一可用级别。
func (b *SnapshotBuilder) Build(symbol string, candles map[market.Timeframe][]Candle, signal market.Signal, now time.Time) (market.Snapshot, error) {
	if symbol == "" {
		return market.Snapshot{}, fmt.Errorf("feed: symbol 不能为空")
	}

	frames := make(map[market.Timeframe]market.FrameFeatures, len(candles))
	for tf, data := range candles {
		frames[tf] = b.frameFor(symbol, tf, data)
	}

	base := candles[market.TimeframeH1]
	if len(base) == 0 {
		for _, data := range candles {
			if len(data) > 0 {
				base = data
				break
			}
		}
	}
	if len(base) == 0 {
		return market.Snapshot{}, fmt.Errorf("feed: %s 无可用K线", symbol)
	}

	series := NewSeries(base)
	price := Last(series.Close)
	if price <= 0 || math.IsNaN(price) {
		return market.Snapshot{}, fmt.Errorf("feed: %s 最新价格无效", symbol)
	}

	snapshot := market.Snapshot{
		Symbol:      symbol,
		Price:       price,
		Frames:      frames,
		Volatility:  volatility(series),
		VolumeRatio: volumeRatio(series),
		Signal:      signal,
		RetrievedAt: now.UTC(),
	}
	snapshot.SupportDistance, snapshot.ResistanceDistance = structureDistances(series, price)

	return snapshot, nil
}

func (b *SnapshotBuilder) frameFor(symbol string, tf market.Timeframe, candles []Candle) market.FrameFeatures {
	if len(candles) < minCandles {
		return market.NeutralFrame()
	}

	series := NewSeries(candles)
	cacheKey := fmt.Sprintf("%s:%s:%d:%d", symbol, tf, series.Len(), series.Timestamps[series.Len()-1].Unix())
	mapKey := fmt.Sprintf("%s:%s", symbol, tf)

	b.mu.Lock()
	if entry, ok := b.cache[mapKey]; ok && entry.key == cacheKey {
		b.mu.Unlock()
		return entry.frame
	}
	b.mu.Unlock()

	frame := computeFrame(series)

	b.mu.Lock()
	b.cache[mapKey] = cacheEntry{key: cacheKey, frame: frame}
	b.mu.Unlock()

	return frame
}

// computeFrame 把指标压缩为三元特征：
// 趋势由EMA排列给分，动量取MACD柱相对价格的归一值，RSI直接取值。
func computeFrame(series Series) market.FrameFeatures {
	closePrices := series.Close

	ema12 := Last(talib.Ema(closePrices, 12))
	ema26 := Last(talib.Ema(closePrices, 26))
	_, _, macdHist := talib.Macd(closePrices, 12, 26, 9)
	rsi := Last(talib.Rsi(closePrices, 14))

	lastClose := Last(closePrices)

	trend := 0.5
	if !math.IsNaN(ema12) && !math.IsNaN(ema26) {
		if ema12 > ema26 {
			trend += 0.2
		} else if ema12 < ema26 {
			trend -= 0.2
		}
		if lastClose > ema26 {
			trend += 0.15
		} else if lastClose < ema26 {
			trend -= 0.15
		}
		if lastClose > ema12 {
			trend += 0.15
		} else if lastClose < ema12 {
			trend -= 0.15
		}
	}

	momentum := 0.0
	if hist := Last(macdHist); !math.IsNaN(hist) && lastClose > 0 {
		// MACD柱约占价格千分之几，放大后截断到[-1,1]。
		momentum = clamp(hist/lastClose*400, -1, 1)
	}

	if math.IsNaN(rsi) {
		rsi = 50
	}

	return market.FrameFeatures{
		Trend:    clamp(trend, 0, 1),
		Momentum: momentum,
		RSI:      rsi,
	}
}

// volatility 返回价格单位的ATR，数据不足时退化为0。
func volatility(series Series) float64 {
	if series.Len() < 15 {
		return 0
	}
	atr := Last(talib.Atr(series.High, series.Low, series.Close, 14))
	if math.IsNaN(atr) || atr < 0 {
		return 0
	}
	return atr
}

func volumeRatio(series Series) float64 {
	avg := average(SliceTail(series.Volume, 20))
	return SafeDivide(Last(series.Volume), avg)
}

// structureDistances 以近期极值近似支撑与阻力位。
func structureDistances(series Series, price float64) (support, resistance float64) {
	lows := SliceTail(series.Low, structureLookback)
	highs := SliceTail(series.High, structureLookback)
	if len(lows) == 0 || len(highs) == 0 {
		return 0, 0
	}

	low := lows[0]
	for _, v := range lows {
		if v < low {
			low = v
		}
	}
	high := highs[0]
	for _, v := range highs {
		if v > high {
			high = v
		}
	}

	if price > low {
		support = price - low
	}
	if high > price {
		resistance = high - price
	}
	return support, resistance
}

func average(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

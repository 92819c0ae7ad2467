// Package probability 把市场快照映射为持仓相关的概率估计。
// 所有函数均为纯函数：无副作用，输入缺失时退化为中性默认值。
package probability

import (
	"math"

	"trader-core/internal/market"
)

// 高级别时间框架，趋势/动量/分歧均在这三个级别上评估。
var trendFrames = []market.Timeframe{market.TimeframeH1, market.TimeframeH4, market.TimeframeD1}

// 超买超卖只看 H1/H4。
var reversalFrames = []market.Timeframe{market.TimeframeH1, market.TimeframeH4}

// Outcome 为持仓前景的概率分解，三项之和为1。
type Outcome struct {
	Continuation float64
	Reversal     float64
	Flat         float64
}

// Estimate 估计持仓方向上行情延续/反转/横盘的概率。
func Estimate(snap market.Snapshot, dir market.Direction) Outcome {
	ts := trendStrength(snap, dir)
	ms := momentumStrength(snap, dir)
	rev := reversalSignal(snap, dir)
	div := timeframeDivergence(snap, dir)

	oppose := 0.0
	if snap.Signal.Direction.Opposes(dir) {
		oppose = 1.0
	}

	continuation := 0.40*ts + 0.30*ms + 0.15*(1-rev) + 0.15*(1-div)
	reversal := 0.35*rev + 0.30*div + 0.35*oppose

	continuation = clamp01(continuation)
	reversal = clamp01(reversal)

	// 归一化保证 continuation+reversal ≤ 1，余量记为横盘。
	if sum := continuation + reversal; sum > 1 {
		continuation /= sum
		reversal /= sum
	}

	return Outcome{
		Continuation: continuation,
		Reversal:     reversal,
		Flat:         clamp01(1 - continuation - reversal),
	}
}

// Recovery 估计亏损持仓回到保本的概率。
func Recovery(snap market.Snapshot, dir market.Direction) float64 {
	alignment := trendStrength(snap, dir)
	agreement := signalAgreement(snap.Signal, dir)
	structure := structureSupport(snap, dir)
	volume := volumeFactor(snap.VolumeRatio)

	return clamp01(0.35*alignment + 0.30*agreement + 0.20*structure + 0.15*volume)
}

// trendStrength 为 H1/H4/D1 趋势分的方向调整均值：
// 多头直接取趋势分，空头取 1-趋势分。
func trendStrength(snap market.Snapshot, dir market.Direction) float64 {
	var sum float64
	for _, tf := range trendFrames {
		trend := snap.Frame(tf).Trend
		if dir == market.DirectionShort {
			trend = 1 - trend
		}
		sum += trend
	}
	return sum / float64(len(trendFrames))
}

// momentumStrength 把[-1,1]的动量按方向映射到[0,1]后取均值。
func momentumStrength(snap market.Snapshot, dir market.Direction) float64 {
	var sum float64
	for _, tf := range trendFrames {
		m := snap.Frame(tf).Momentum * dir.Sign()
		sum += (m + 1) / 2
	}
	return sum / float64(len(trendFrames))
}

// reversalSignal 统计 H1/H4 上的超买（多头）或超卖（空头）比例。
func reversalSignal(snap market.Snapshot, dir market.Direction) float64 {
	var flagged int
	for _, tf := range reversalFrames {
		rsi := snap.Frame(tf).RSI
		switch dir {
		case market.DirectionLong:
			if rsi > 70 {
				flagged++
			}
		case market.DirectionShort:
			if rsi < 30 {
				flagged++
			}
		}
	}
	return float64(flagged) / float64(len(reversalFrames))
}

// timeframeDivergence 统计 H1/H4/D1 中趋势与持仓方向相悖的比例。
func timeframeDivergence(snap market.Snapshot, dir market.Direction) float64 {
	var disagree int
	for _, tf := range trendFrames {
		trend := snap.Frame(tf).Trend
		switch dir {
		case market.DirectionLong:
			if trend < 0.5 {
				disagree++
			}
		case market.DirectionShort:
			if trend > 0.5 {
				disagree++
			}
		}
	}
	return float64(disagree) / float64(len(trendFrames))
}

// signalAgreement 把方向信号转为同意度：同向取置信度，
// 反向取 1-置信度，无信号视为中性。
func signalAgreement(sig market.Signal, dir market.Direction) float64 {
	conf := clamp01(sig.Confidence / 100)
	switch {
	case sig.Direction == market.DirectionFlat:
		return 0.5
	case sig.Direction == dir:
		return conf
	default:
		return 1 - conf
	}
}

// structureSupport 衡量保护性结构位（多头支撑/空头阻力）的远近，
// 距离缺失或波动率无效时退化为中性。
func structureSupport(snap market.Snapshot, dir market.Direction) float64 {
	dist := snap.SupportingDistance(dir)
	vol := snap.Volatility
	if dist <= 0 || vol <= 0 || math.IsNaN(dist) || math.IsNaN(vol) {
		return 0.5
	}
	return clamp01(1 - dist/(4*vol))
}

// volumeFactor 把量比映射到[0,1]，量比为2时视为满分。
func volumeFactor(ratio float64) float64 {
	if ratio <= 0 || math.IsNaN(ratio) {
		return 0.5
	}
	return clamp01(ratio / 2)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

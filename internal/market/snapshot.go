package market

import (
	"math"
	"strings"
	"time"
)

// Timeframe 标识快照中的时间级别。
type Timeframe string

const (
	TimeframeM15 Timeframe = "M15"
	TimeframeM30 Timeframe = "M30"
	TimeframeH1  Timeframe = "H1"
	TimeframeH4  Timeframe = "H4"
	TimeframeD1  Timeframe = "D1"
)

// Direction 表示方向信号或持仓方向。
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
	DirectionFlat  Direction = "FLAT"
)

// ParseDirection 归一化方向字符串，无法识别时返回 FLAT。
func ParseDirection(s string) Direction {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LONG", "BUY":
		return DirectionLong
	case "SHORT", "SELL":
		return DirectionShort
	default:
		return DirectionFlat
	}
}

// Sign 返回方向对应的符号：LONG=+1，SHORT=-1，FLAT=0。
func (d Direction) Sign() float64 {
	switch d {
	case DirectionLong:
		return 1
	case DirectionShort:
		return -1
	default:
		return 0
	}
}

// Opposes 判断两个方向是否互为对立（FLAT 与任何方向都不对立）。
func (d Direction) Opposes(other Direction) bool {
	if d == DirectionFlat || other == DirectionFlat {
		return false
	}
	return d != other
}

// FrameFeatures 描述单一时间级别的特征。
// Trend∈[0,1]（0.5为中性），Momentum∈[-1,1]，RSI∈[0,100]。
type FrameFeatures struct {
	Trend    float64
	Momentum float64
	RSI      float64
}

// Signal 为外部模型提供的方向信号。
type Signal struct {
	Direction  Direction
	Confidence float64 // 0-100
}

// Snapshot 为单个品种在某一评估时刻的市场快照。
// 每个tick由外部协作方重建一次，本核心只读。
type Snapshot struct {
	Symbol             string
	Price              float64
	Frames             map[Timeframe]FrameFeatures
	SupportDistance    float64 // 距最近支撑位的价格距离，>0 有效
	ResistanceDistance float64 // 距最近阻力位的价格距离，>0 有效
	Volatility         float64 // 瞬时波动率（价格单位）
	VolumeRatio        float64
	Signal             Signal
	RetrievedAt        time.Time
}

// NeutralFrame 为缺失时间级别的默认特征。
func NeutralFrame() FrameFeatures {
	return FrameFeatures{Trend: 0.5, Momentum: 0, RSI: 50}
}

// Frame 返回指定时间级别的特征，缺失或数值非法时退化为中性默认值。
func (s Snapshot) Frame(tf Timeframe) FrameFeatures {
	f, ok := s.Frames[tf]
	if !ok {
		return NeutralFrame()
	}
	f.Trend = cleanRange(f.Trend, 0, 1, 0.5)
	f.Momentum = cleanRange(f.Momentum, -1, 1, 0)
	f.RSI = cleanRange(f.RSI, 0, 100, 50)
	return f
}

// StructureDistance 返回持仓方向对应的关键结构位距离：
// 多头看阻力，空头看支撑。
func (s Snapshot) StructureDistance(dir Direction) float64 {
	switch dir {
	case DirectionLong:
		return s.ResistanceDistance
	case DirectionShort:
		return s.SupportDistance
	default:
		return 0
	}
}

// SupportingDistance 返回持仓方向的保护性结构位距离：
// 多头看支撑，空头看阻力。
func (s Snapshot) SupportingDistance(dir Direction) float64 {
	switch dir {
	case DirectionLong:
		return s.SupportDistance
	case DirectionShort:
		return s.ResistanceDistance
	default:
		return 0
	}
}

func cleanRange(v, lo, hi, fallback float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fallback
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

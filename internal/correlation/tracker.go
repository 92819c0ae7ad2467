// Package correlation 维护品种两两之间的滚动相关性估计，
// 为新开仓提供分散化系数。
package correlation

import (
	"math"
	"sort"
	"strings"
	"sync"

	talib "github.com/markcheno/go-talib"
	"go.uber.org/zap"

	"trader-core/internal/config"
	"trader-core/internal/market"
)

// OpenExposure 描述一笔已开仓位的品种与方向。
type OpenExposure struct {
	Symbol    string
	Direction market.Direction
}

// Tracker 将静态先验（品种类别对）与滚动收益率窗口的动态估计
// 按权重融合。写入为单写者，读取在小表副本上进行。
type Tracker struct {
	mu        sync.RWMutex
	cfg       config.CorrelationConfig
	classes   map[string]string
	returns   map[string][]float64
	lastPrice map[string]float64
	logger    *zap.Logger
}

// NewTracker 创建相关性跟踪器。classes 把品种映射到资产类别，
// 缺失的品种归入 default。
func NewTracker(cfg config.CorrelationConfig, classes map[string]string, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if classes == nil {
		classes = make(map[string]string)
	}
	return &Tracker{
		cfg:       cfg,
		classes:   classes,
		returns:   make(map[string][]float64),
		lastPrice: make(map[string]float64),
		logger:    logger,
	}
}

// AddSample 记录一个价格样本。首个样本仅作为基准价，
// 此后每个样本转为简单收益率进入窗口，窗口长度有界。
func (t *Tracker) AddSample(symbol string, price float64) {
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	last, ok := t.lastPrice[symbol]
	t.lastPrice[symbol] = price
	if !ok || last <= 0 {
		return
	}

	window := append(t.returns[symbol], price/last-1)
	if excess := len(window) - t.cfg.WindowSize; excess > 0 {
		window = window[excess:]
	}
	t.returns[symbol] = window
}

// SampleCount 返回某品种已积累的收益率样本数。
func (t *Tracker) SampleCount(symbol string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.returns[symbol])
}

// Correlation 返回两个品种在给定方向下的相关性估计∈[-1,1]。
// 动态估计与静态先验按配置权重融合；双方样本不足时退回静态先验。
// 方向不同时取相反数。
func (t *Tracker) Correlation(symbolA, symbolB string, dirA, dirB market.Direction) float64 {
	var corr float64
	if symbolA == symbolB {
		corr = 1
	} else {
		static := t.staticPrior(symbolA, symbolB)
		if dynamic, ok := t.dynamicEstimate(symbolA, symbolB); ok {
			corr = t.cfg.DynamicWeight*dynamic + t.cfg.StaticWeight*static
		} else {
			corr = static
		}
	}

	if dirA.Opposes(dirB) {
		corr = -corr
	}
	return clampCorr(corr)
}

// DiversificationFactor 计算候选仓位相对既有持仓组合的分散化系数：
// clamp(1 − 0.5·mean|方向调整后的相关性|, 0.5, 1.5)。无持仓时为1。
func (t *Tracker) DiversificationFactor(symbol string, dir market.Direction, open []OpenExposure) float64 {
	if len(open) == 0 {
		return 1.0
	}

	var sum float64
	for _, exp := range open {
		sum += math.Abs(t.Correlation(symbol, exp.Symbol, dir, exp.Direction))
	}
	mean := sum / float64(len(open))

	factor := 1 - 0.5*mean
	if factor < 0.5 {
		factor = 0.5
	}
	if factor > 1.5 {
		factor = 1.5
	}
	return factor
}

// dynamicEstimate 在双方样本均达标时，对齐窗口尾部并用
// Pearson 相关系数估计动态相关性。
func (t *Tracker) dynamicEstimate(symbolA, symbolB string) (float64, bool) {
	t.mu.RLock()
	a := append([]float64(nil), t.returns[symbolA]...)
	b := append([]float64(nil), t.returns[symbolB]...)
	t.mu.RUnlock()

	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n < t.cfg.MinSamples {
		return 0, false
	}

	a = a[len(a)-n:]
	b = b[len(b)-n:]

	series := talib.Correl(a, b, n)
	if len(series) == 0 {
		return 0, false
	}
	corr := series[len(series)-1]
	if math.IsNaN(corr) || math.IsInf(corr, 0) {
		return 0, false
	}
	return clampCorr(corr), true
}

// staticPrior 查询类别对的先验相关性，配置可覆盖内置表。
func (t *Tracker) staticPrior(symbolA, symbolB string) float64 {
	key := pairKey(t.class(symbolA), t.class(symbolB))
	if v, ok := t.cfg.StaticPriors[key]; ok {
		return clampCorr(v)
	}
	if v, ok := defaultPriors[key]; ok {
		return v
	}
	return 0.2
}

func (t *Tracker) class(symbol string) string {
	if c, ok := t.classes[symbol]; ok && c != "" {
		return c
	}
	return "default"
}

// 类别对的内置先验，键为排序后的 "a|b"。
var defaultPriors = map[string]float64{
	"forex|forex":         0.50,
	"index|index":         0.70,
	"commodity|commodity": 0.60,
	"crypto|crypto":       0.80,
	"forex|index":         0.30,
	"commodity|forex":     0.25,
	"commodity|index":     0.40,
	"crypto|forex":        0.20,
	"crypto|index":        0.30,
	"commodity|crypto":    0.20,
}

func pairKey(classA, classB string) string {
	pair := []string{strings.ToLower(classA), strings.ToLower(classB)}
	sort.Strings(pair)
	return pair[0] + "|" + pair[1]
}

func clampCorr(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}

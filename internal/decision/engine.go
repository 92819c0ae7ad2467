package decision

import (
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"trader-core/internal/config"
	"trader-core/internal/market"
	"trader-core/internal/position"
	"trader-core/internal/probability"
)

// Engine 对单个持仓在每个tick上枚举互斥的管理动作，
// 按期望值（R百分比）打分并选出最优者。
type Engine struct {
	cfg    config.DecisionConfig
	states *position.StateStore
	guards []overrideGuard
	logger *zap.Logger
}

// NewEngine 创建决策引擎。states 由引擎持有方注入，
// 同一账户的所有tick共享一份生命周期状态。
func NewEngine(cfg config.DecisionConfig, states *position.StateStore, logger *zap.Logger) *Engine {
	if states == nil {
		states = position.NewStateStore()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		cfg:    cfg,
		states: states,
		guards: buildOverrideGuards(cfg),
		logger: logger,
	}
}

// States 暴露生命周期状态存储，供持仓关闭时清理。
func (e *Engine) States() *position.StateStore {
	return e.states
}

// evalContext 汇集一次评估所需的全部中间量。
type evalContext struct {
	pos      position.Position
	snap     market.Snapshot
	state    position.State
	outcome  probability.Outcome
	currentR float64
	peakR    float64
	giveback float64
}

// Evaluate 为一个持仓给出本tick的管理动作。
// 任何退化输入都不会抛错，而是返回带诊断原因的 HOLD。
func (e *Engine) Evaluate(snap market.Snapshot, pos position.Position, now time.Time) Decision {
	if pos.Size <= 0 {
		return holdDecision("仓位数量无效，放弃评估", 0)
	}
	if snap.Price <= 0 || math.IsNaN(snap.Price) {
		return holdDecision("缺少有效市价，保持持仓", 0)
	}
	if pos.StopDistance() <= 0 {
		return holdDecision("止损距离无效，保持持仓", 0)
	}
	if pos.Direction != market.DirectionLong && pos.Direction != market.DirectionShort {
		return holdDecision("持仓方向无效，保持持仓", 0)
	}

	currentR := pos.ProfitR(snap.Price)
	if math.IsNaN(currentR) || math.IsInf(currentR, 0) {
		return holdDecision("盈亏计算退化，保持持仓", 0)
	}

	state := e.states.Observe(pos.ID, currentR, now)

	ctx := evalContext{
		pos:      pos,
		snap:     snap,
		state:    state,
		outcome:  probability.Estimate(snap, pos.Direction),
		currentR: currentR,
		peakR:    state.PeakProfitR,
	}
	if ctx.peakR > 0 {
		ctx.giveback = (ctx.peakR - ctx.currentR) / ctx.peakR
	}

	var dec Decision
	if currentR >= 0 {
		dec = e.evaluateWinning(ctx)
	} else {
		dec = e.evaluateLosing(ctx)
	}

	dec.ProfitR = currentR
	dec.PeakR = ctx.peakR

	e.logger.Debug("完成持仓评估",
		zap.String("position", pos.ID),
		zap.String("action", dec.Action.String()),
		zap.Float64("profit_r", currentR),
		zap.Float64("peak_r", ctx.peakR),
		zap.String("reason", dec.Reason),
	)

	return dec
}

// evaluateWinning 处理盈利持仓：先检查加仓资格，再在
// HOLD / SCALE_OUT(0.25) / SCALE_OUT(0.5) / CLOSE 中做EV选优，
// 选优前依次套用回吐护栏。
func (e *Engine) evaluateWinning(ctx evalContext) Decision {
	gain, loss := e.holdPayoffs(ctx)

	if dec, ok := e.tryPyramid(ctx, gain, loss); ok {
		return dec
	}

	evHold := ctx.outcome.Continuation*(ctx.currentR+gain) +
		ctx.outcome.Reversal*(ctx.currentR-loss) +
		ctx.outcome.Flat*ctx.currentR
	evClose := ctx.currentR

	candidates := []CandidateEV{
		{Action: holdAction, EV: evHold},
		{Action: scaleOutLight, EV: 0.25*ctx.currentR + 0.75*evHold},
		{Action: scaleOutHeavy, EV: 0.5*ctx.currentR + 0.5*evHold},
		{Action: closeAction, EV: evClose},
	}

	// 强制护栏先于EV选优。
	for _, guard := range e.guards {
		if action, reason, ok := guard.fire(ctx); ok {
			return Decision{
				Action:     action,
				Reason:     reason,
				Confidence: confidenceFrom(ctx.outcome),
				SizeDelta:  -action.Fraction * ctx.pos.Size,
				EV:         evByAction(candidates, action),
				Candidates: candidates,
			}
		}
	}

	applyGivebackPressure(candidates, ctx, e.cfg)

	best := pickBest(candidates)
	if best.Action.Type != ActionHold {
		holdAdj := adjustedByAction(candidates, holdAction)
		if best.Adjusted <= holdAdj+e.cfg.MinEVImprovement {
			best = candidates[0]
		}
	}

	return Decision{
		Action:     best.Action,
		Reason:     winningReason(best.Action),
		Confidence: confidenceFrom(ctx.outcome),
		SizeDelta:  -best.Action.Fraction * ctx.pos.Size,
		EV:         best.EV,
		Candidates: candidates,
	}
}

// evaluateLosing 处理亏损持仓：噪声带内无条件持有，
// 先检查补仓资格，再比较继续持有与认赔的期望值。
func (e *Engine) evaluateLosing(ctx evalContext) Decision {
	loss := math.Abs(ctx.currentR)
	if loss < e.cfg.NoiseFloorR {
		return holdDecision("亏损处于点差噪声带内，继续持有", 50)
	}

	recovery := probability.Recovery(ctx.snap, ctx.pos.Direction)

	if dec, ok := e.tryDCA(ctx, recovery); ok {
		return dec
	}

	// 持有期望：回本赚回当前亏损，失败则损失到止损的剩余距离。
	// 剩余距离按止损钉在-100R的近似取 100-loss。
	evHold := recovery*loss - (1-recovery)*(100-loss)
	evClose := 0.0

	candidates := []CandidateEV{
		{Action: holdAction, EV: evHold, Adjusted: evHold},
		{Action: closeAction, EV: evClose, Adjusted: evClose},
	}

	if evClose > evHold+e.cfg.MinEVImprovement {
		return Decision{
			Action:     closeAction,
			Reason:     fmt.Sprintf("回本概率 %.0f%% 不足以支撑持有期望，认赔离场", recovery*100),
			Confidence: (1 - recovery) * 100,
			SizeDelta:  -ctx.pos.Size,
			EV:         evClose,
			Candidates: candidates,
		}
	}

	return Decision{
		Action:     holdAction,
		Reason:     fmt.Sprintf("回本概率 %.0f%%，持有期望优于认赔", recovery*100),
		Confidence: recovery * 100,
		EV:         evHold,
		Candidates: candidates,
	}
}

// tryPyramid 评估顺势加仓：盈利达到触发线、次数未用尽、
// 信号同向且延续概率占优时，对增量部分估算EV，为正才加仓。
func (e *Engine) tryPyramid(ctx evalContext, gain, loss float64) (Decision, bool) {
	cfg := e.cfg
	if ctx.currentR < cfg.PyramidTriggerR || ctx.state.AddCount >= cfg.MaxAdds {
		return Decision{}, false
	}
	if ctx.snap.Signal.Direction != ctx.pos.Direction {
		return Decision{}, false
	}
	if ctx.outcome.Continuation <= ctx.outcome.Reversal {
		return Decision{}, false
	}

	// 增量部分从当前价入场，延续吃到目标差价，反转承受回撤。
	sliceEV := ctx.outcome.Continuation*gain - ctx.outcome.Reversal*loss
	if sliceEV <= 0 {
		return Decision{}, false
	}

	count := e.states.RecordAdd(ctx.pos.ID)
	action := Action{Type: ActionScaleIn, Fraction: cfg.PyramidFraction}

	return Decision{
		Action:     action,
		Reason:     fmt.Sprintf("顺势加仓（第%d次）：增量期望 %.1fR%%", count, sliceEV),
		Confidence: ctx.outcome.Continuation * 100,
		SizeDelta:  cfg.PyramidFraction * ctx.pos.Size,
		EV:         sliceEV,
	}, true
}

// tryDCA 评估摊低成本：亏损位于允许区间、次数未用尽、信号同向、
// 回本概率达标，且改善后的均价能把风险化亏损降低超过门槛。
func (e *Engine) tryDCA(ctx evalContext, recovery float64) (Decision, bool) {
	cfg := e.cfg
	if ctx.currentR < cfg.DCAMinR || ctx.currentR > cfg.DCAMaxR {
		return Decision{}, false
	}
	if ctx.state.DCACount >= cfg.MaxDCA {
		return Decision{}, false
	}
	if ctx.snap.Signal.Direction != ctx.pos.Direction {
		return Decision{}, false
	}
	if recovery <= cfg.DCAMinRecovery {
		return Decision{}, false
	}

	// 以当前价补入 f 倍仓位后，风险化亏损从 |r| 降为 |r|/(1+f)，
	// 改善量即补仓相对于原地持有的期望优势。
	loss := math.Abs(ctx.currentR)
	improvement := loss - loss/(1+cfg.DCAFraction)
	if improvement <= cfg.DCAMinImprove {
		return Decision{}, false
	}

	count := e.states.RecordDCA(ctx.pos.ID)
	action := Action{Type: ActionDCA, Fraction: cfg.DCAFraction}

	return Decision{
		Action:     action,
		Reason:     fmt.Sprintf("摊低成本（第%d次）：均价改善 %.1fR%%，回本概率 %.0f%%", count, improvement, recovery*100),
		Confidence: recovery * 100,
		SizeDelta:  cfg.DCAFraction * ctx.pos.Size,
		EV:         improvement,
	}, true
}

// holdPayoffs 计算持有的正反两面：距结构目标的潜在收益与
// 反转时按比例回吐的浮盈，均以R百分比表示。
func (e *Engine) holdPayoffs(ctx evalContext) (gain, loss float64) {
	sd := ctx.pos.StopDistance()

	var targetR float64
	if dist := ctx.snap.StructureDistance(ctx.pos.Direction); dist > 0 {
		targetR = ctx.currentR + dist/sd*100
	} else if ctx.snap.Volatility > 0 {
		targetR = ctx.currentR + e.cfg.VolatilityTarget*ctx.snap.Volatility/sd*100
	}

	if floor := e.cfg.TargetFloorRatio * ctx.currentR; targetR < floor {
		targetR = floor
	}

	gain = targetR - ctx.currentR
	if gain < 0 {
		gain = 0
	}
	loss = e.cfg.ReverseLossFactor * ctx.currentR
	return gain, loss
}

// applyGivebackPressure 在中等回吐且反转概率抬头时，
// 给退出候选加上与回吐深度成比例的倾斜，越彻底的退出倾斜越大。
func applyGivebackPressure(candidates []CandidateEV, ctx evalContext, cfg config.DecisionConfig) {
	pressure := 0.0
	if ctx.giveback > cfg.PenaltyGiveback &&
		ctx.outcome.Reversal > cfg.PenaltyReversal &&
		ctx.currentR < cfg.PenaltyMaxCurrent {
		pressure = ctx.giveback * ctx.outcome.Reversal * cfg.PenaltyWeight
	}

	for i := range candidates {
		adjusted := candidates[i].EV
		if pressure > 0 {
			switch {
			case candidates[i].Action.Type == ActionClose:
				adjusted += pressure
			case candidates[i].Action.Type == ActionScaleOut && candidates[i].Action.Fraction >= 0.5:
				adjusted += 0.75 * pressure
			case candidates[i].Action.Type == ActionScaleOut:
				adjusted += 0.5 * pressure
			}
		}
		candidates[i].Adjusted = adjusted
	}
}

// pickBest 取调整后EV最大者，打平时按扰动度偏向温和动作。
func pickBest(candidates []CandidateEV) CandidateEV {
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Adjusted > best.Adjusted {
			best = c
			continue
		}
		if c.Adjusted == best.Adjusted && c.Action.disruptionRank() < best.Action.disruptionRank() {
			best = c
		}
	}
	return best
}

func evByAction(candidates []CandidateEV, action Action) float64 {
	for _, c := range candidates {
		if c.Action == action {
			return c.EV
		}
	}
	return 0
}

func adjustedByAction(candidates []CandidateEV, action Action) float64 {
	for _, c := range candidates {
		if c.Action == action {
			return c.Adjusted
		}
	}
	return 0
}

func winningReason(action Action) string {
	switch action.Type {
	case ActionHold:
		return "持有期望占优，继续持仓"
	case ActionScaleOut:
		return fmt.Sprintf("部分止盈 %.0f%%，锁定浮盈并保留上行敞口", action.Fraction*100)
	case ActionClose:
		return "全部止盈期望最高，平仓离场"
	default:
		return "按期望值执行"
	}
}

func confidenceFrom(outcome probability.Outcome) float64 {
	dominant := math.Max(outcome.Continuation, math.Max(outcome.Reversal, outcome.Flat))
	return dominant * 100
}

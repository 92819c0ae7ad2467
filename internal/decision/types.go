package decision

import "fmt"

// ActionType 为决策动作的封闭集合。
type ActionType string

const (
	ActionHold     ActionType = "HOLD"
	ActionClose    ActionType = "CLOSE"
	ActionScaleOut ActionType = "SCALE_OUT"
	ActionScaleIn  ActionType = "SCALE_IN"
	ActionDCA      ActionType = "DCA"
)

// Action 携带动作类型及涉及的仓位比例（相对当前仓位）。
// HOLD/CLOSE 的 Fraction 分别恒为 0 和 1。
type Action struct {
	Type     ActionType
	Fraction float64
}

// String 便于日志与持久化。
func (a Action) String() string {
	switch a.Type {
	case ActionScaleOut, ActionScaleIn, ActionDCA:
		return fmt.Sprintf("%s(%.2f)", a.Type, a.Fraction)
	default:
		return string(a.Type)
	}
}

// disruptionRank 衡量动作对现有仓位的扰动程度，EV打平时取最小者。
func (a Action) disruptionRank() int {
	switch a.Type {
	case ActionHold:
		return 0
	case ActionScaleOut:
		if a.Fraction <= 0.25 {
			return 1
		}
		return 2
	case ActionClose:
		return 3
	default:
		return 0
	}
}

var (
	holdAction    = Action{Type: ActionHold}
	closeAction   = Action{Type: ActionClose, Fraction: 1}
	scaleOutLight = Action{Type: ActionScaleOut, Fraction: 0.25}
	scaleOutHeavy = Action{Type: ActionScaleOut, Fraction: 0.5}
)

// CandidateEV 记录单个候选动作的期望值，含回吐调整后的数值。
type CandidateEV struct {
	Action   Action
	EV       float64
	Adjusted float64
}

// Decision 为一次tick评估的输出。核心不向调用方抛错：
// 任何计算故障都以携带诊断原因的保守 HOLD 形式返回。
type Decision struct {
	Action     Action
	Reason     string
	Confidence float64 // 0-100
	SizeDelta  float64 // 正数加仓、负数减仓（手数）
	ProfitR    float64
	PeakR      float64
	EV         float64
	Candidates []CandidateEV
}

func holdDecision(reason string, confidence float64) Decision {
	return Decision{
		Action:     holdAction,
		Reason:     reason,
		Confidence: confidence,
	}
}

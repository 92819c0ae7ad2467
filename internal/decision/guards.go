package decision

import (
	"fmt"

	"trader-core/internal/config"
)

// overrideGuard 为有序护栏：命中即越过EV选优返回强制动作。
// 以数据驱动的谓词列表表达，便于独立于EV算术做单测。
type overrideGuard struct {
	name string
	fire func(ctx evalContext) (Action, string, bool)
}

func buildOverrideGuards(cfg config.DecisionConfig) []overrideGuard {
	return []overrideGuard{
		{
			name: "deep_giveback_close",
			fire: func(ctx evalContext) (Action, string, bool) {
				if ctx.peakR > cfg.ForceCloseMinPeak &&
					ctx.currentR < cfg.ForceCloseMaxCurrent &&
					ctx.giveback > cfg.ForceCloseGiveback {
					reason := fmt.Sprintf("浮盈自峰值 %.0fR%% 回吐 %.0f%%，强制平仓保护",
						ctx.peakR, ctx.giveback*100)
					return closeAction, reason, true
				}
				return Action{}, "", false
			},
		},
		{
			name: "giveback_scale_out",
			fire: func(ctx evalContext) (Action, string, bool) {
				if ctx.peakR > cfg.ForceReduceMinPeak &&
					ctx.currentR < cfg.ForceReduceMaxCurrent &&
					ctx.giveback > cfg.ForceReduceGiveback {
					reason := fmt.Sprintf("浮盈自峰值 %.0fR%% 回吐 %.0f%%，强制减半锁定",
						ctx.peakR, ctx.giveback*100)
					return scaleOutHeavy, reason, true
				}
				return Action{}, "", false
			},
		},
	}
}

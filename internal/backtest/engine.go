package backtest

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"trader-core/internal/app"
	"trader-core/internal/config"
	"trader-core/internal/decision"
	"trader-core/internal/market"
	"trader-core/internal/position"
	"trader-core/internal/risk"
)

// Result 汇总回放结果。
type Result struct {
	Metrics      Metrics
	EquityCurve  []float64
	ReturnSeries []float64
	Trades       int
	Wins         int
	Losses       int
	FinalEquity  float64
}

// Engine 用历史或合成快照驱动完整的决策与定量链路。
type Engine struct {
	cfg       Config
	appCfg    *config.Config
	provider  SnapshotProvider
	core      *app.Engine
	simulator *Simulator
	logger    *zap.Logger
}

// NewEngine 构建回放引擎。core 为组装完成的决策核心。
func NewEngine(cfg Config, appCfg *config.Config, provider SnapshotProvider, core *app.Engine, logger *zap.Logger) (*Engine, error) {
	if appCfg == nil {
		return nil, fmt.Errorf("backtest: 配置不能为空")
	}
	if provider == nil {
		return nil, fmt.Errorf("backtest: provider 不能为空")
	}
	if core == nil {
		return nil, fmt.Errorf("backtest: 决策核心不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cfg = cfg.normalize()
	EnsureSpec(appCfg, cfg.Symbol)

	spec := appCfg.Instruments.Specs[cfg.Symbol]
	perUnit := spec.TickValue / spec.TickSize

	return &Engine{
		cfg:       cfg,
		appCfg:    appCfg,
		provider:  provider,
		core:      core,
		simulator: NewSimulator(cfg.InitialEquity, perUnit),
		logger:    logger,
	}, nil
}

// EnsureSpec 为缺少合约规格的品种补一份通用规格，保证回放可定量。
func EnsureSpec(cfg *config.Config, symbol string) {
	if cfg.Instruments.Specs == nil {
		cfg.Instruments.Specs = make(map[string]config.InstrumentConfig)
	}
	if _, ok := cfg.Instruments.Specs[symbol]; ok {
		return
	}
	cfg.Instruments.Specs[symbol] = config.InstrumentConfig{
		Class:     "crypto",
		TickValue: 1,
		TickSize:  1,
		LotStep:   0.01,
		MinLot:    0.01,
		MaxLot:    1000,
	}
}

// Run 执行完整回放流程。
func (e *Engine) Run(ctx context.Context) (Result, error) {
	for {
		snap, ok, err := e.provider.Next(ctx)
		if err != nil {
			return Result{}, err
		}
		if !ok {
			break
		}

		e.simulator.Advance(snap.Price)
		e.core.ObservePrice(snap.Symbol, snap.Price)

		now := snap.RetrievedAt
		if pos, open := e.simulator.Position(); open {
			dec := e.core.EvaluatePosition(ctx, snap, pos, now)
			e.applyDecision(ctx, snap, pos, dec)
			continue
		}

		e.maybeOpen(ctx, snap)
	}

	metrics := calculateMetrics(e.simulator.EquityHistory(), e.simulator.ReturnHistory())
	return Result{
		Metrics:      metrics,
		EquityCurve:  e.simulator.EquityHistory(),
		ReturnSeries: e.simulator.ReturnHistory(),
		Trades:       e.simulator.TradeCount(),
		Wins:         e.simulator.Wins(),
		Losses:       e.simulator.Losses(),
		FinalEquity:  e.simulator.Equity(),
	}, nil
}

func (e *Engine) applyDecision(ctx context.Context, snap market.Snapshot, pos position.Position, dec decision.Decision) {
	price := snap.Price

	switch dec.Action.Type {
	case decision.ActionClose:
		pnl := e.simulator.RealizedPnL(price, pos.Size)
		closed := e.simulator.Reduce(1, price)
		if err := e.core.RecordClose(ctx, pos, closed, pnl, snap.RetrievedAt); err != nil {
			e.logger.Warn("记录平仓失败", zap.Error(err))
		}

	case decision.ActionScaleOut:
		lots := pos.Size * dec.Action.Fraction
		pnl := e.simulator.RealizedPnL(price, lots)
		closed := e.simulator.Reduce(dec.Action.Fraction, price)
		if closed > 0 {
			if err := e.core.RecordClose(ctx, pos, closed, pnl, snap.RetrievedAt); err != nil {
				e.logger.Warn("记录减仓失败", zap.Error(err))
			}
		}

	case decision.ActionScaleIn, decision.ActionDCA:
		e.simulator.Add(dec.SizeDelta, price)
	}
}

// maybeOpen 在空仓时依据方向信号开仓，止损距离取两倍波动率。
func (e *Engine) maybeOpen(ctx context.Context, snap market.Snapshot) {
	signal := snap.Signal
	if signal.Direction == market.DirectionFlat || signal.Confidence < e.appCfg.Decision.EntryConfidence {
		return
	}

	stopDistance := 2 * snap.Volatility
	if stopDistance <= 0 {
		stopDistance = snap.Price * 0.02
	}

	equity := e.simulator.Equity()
	result, err := e.core.SizeEntry(ctx, app.EntryRequest{
		Symbol:       snap.Symbol,
		Direction:    signal.Direction,
		Balance:      equity,
		Equity:       equity,
		StopDistance: stopDistance,
		Quality:      0.5,
		Confidence:   signal.Confidence,
		Open:         []risk.OpenRisk{},
		Now:          snap.RetrievedAt,
	})
	if err != nil {
		e.logger.Warn("开仓定量失败", zap.Error(err))
		return
	}
	if result.Lots <= 0 || result.LowConfidence {
		return
	}

	sign := signal.Direction.Sign()
	stop := snap.Price - stopDistance*sign
	target := snap.Price + 2*stopDistance*sign
	e.simulator.Open(snap.Symbol, signal.Direction, result.Lots, snap.Price, stop, target, snap.RetrievedAt)
}

package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"trader-core/internal/config"
	"trader-core/internal/correlation"
	"trader-core/internal/decision"
	"trader-core/internal/market"
	"trader-core/internal/monitor"
	"trader-core/internal/performance"
	"trader-core/internal/position"
	"trader-core/internal/risk"
	"trader-core/internal/store"
)

// Engine 聚合决策、定量与各类跟踪器，是外部调用的唯一入口。
type Engine struct {
	cfg     *config.Config
	logger  *zap.Logger
	decider *decision.Engine
	sizer   *risk.Sizer
	corr    *correlation.Tracker
	perf    *performance.Tracker
	daily   *risk.DailyTracker
	monitor *monitor.Service
}

// Evaluation 为一笔仓位的评估结果。
type Evaluation struct {
	Position position.Position
	Decision decision.Decision
}

// NewEngine 组装决策核心。store 为空时跳过日度风控与事件落库。
func NewEngine(cfg *config.Config, st *store.Store, logger *zap.Logger) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("app: 配置不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	classes := make(map[string]string, len(cfg.Instruments.Specs))
	for symbol := range cfg.Instruments.Specs {
		classes[symbol] = cfg.Instruments.Class(symbol)
	}

	corrTracker := correlation.NewTracker(cfg.Correlation, classes, logger)
	perfTracker := performance.NewTracker(cfg.Performance, logger)
	states := position.NewStateStore()
	decider := decision.NewEngine(cfg.Decision, states, logger)
	allocator := risk.NewBudgetAllocator(cfg.Risk)
	sizer := risk.NewSizer(cfg.Risk, allocator, corrTracker, perfTracker, logger)

	engine := &Engine{
		cfg:     cfg,
		logger:  logger,
		decider: decider,
		sizer:   sizer,
		corr:    corrTracker,
		perf:    perfTracker,
	}

	if st != nil {
		daily, err := risk.NewDailyTracker(st.DB(), cfg.Risk, logger)
		if err != nil {
			return nil, fmt.Errorf("app: 初始化日度风控失败: %w", err)
		}
		monitorSvc, err := monitor.NewService(st, logger)
		if err != nil {
			return nil, fmt.Errorf("app: 初始化监控服务失败: %w", err)
		}
		engine.daily = daily
		engine.monitor = monitorSvc
	}

	return engine, nil
}

// ObservePrice 喂入最新价格，驱动相关性窗口滚动。
func (e *Engine) ObservePrice(symbol string, price float64) {
	e.corr.AddSample(symbol, price)
}

// EvaluatePosition 对单笔仓位做一次管理决策并落库。
func (e *Engine) EvaluatePosition(ctx context.Context, snap market.Snapshot, pos position.Position, now time.Time) decision.Decision {
	dec := e.decider.Evaluate(snap, pos, now)
	if e.monitor != nil {
		e.monitor.RecordDecision(ctx, pos, dec)
	}
	return dec
}

// EvaluateAll 并发评估全部仓位。快照缺失的仓位被跳过并告警。
func (e *Engine) EvaluateAll(ctx context.Context, snapshots map[string]market.Snapshot, positions []position.Position, now time.Time) ([]Evaluation, error) {
	var mu sync.Mutex
	evaluations := make([]Evaluation, 0, len(positions))

	group, groupCtx := errgroup.WithContext(ctx)
	for _, pos := range positions {
		snap, ok := snapshots[pos.Symbol]
		if !ok {
			e.logger.Warn("缺少快照，跳过仓位评估", zap.String("symbol", pos.Symbol))
			continue
		}

		pos := pos
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			dec := e.EvaluatePosition(groupCtx, snap, pos, now)
			mu.Lock()
			evaluations = append(evaluations, Evaluation{Position: pos, Decision: dec})
			mu.Unlock()
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return evaluations, err
	}
	return evaluations, nil
}

// EntryRequest 描述一次开仓定量请求。
type EntryRequest struct {
	Symbol       string
	Direction    market.Direction
	Balance      float64
	Equity       float64
	StopDistance float64
	Quality      float64
	Confidence   float64
	Open         []risk.OpenRisk
	Now          time.Time
}

// SizeEntry 为新开仓定量。会先刷新当日风控状态，停交易时给零手数。
func (e *Engine) SizeEntry(ctx context.Context, req EntryRequest) (risk.SizingResult, error) {
	spec, ok := e.cfg.Instruments.Specs[req.Symbol]
	if !ok {
		return risk.SizingResult{Symbol: req.Symbol}, fmt.Errorf("app: 品种 %s 缺少合约规格", req.Symbol)
	}

	now := req.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var daily risk.DailyStatus
	if e.daily != nil {
		var err error
		daily, err = e.daily.Update(ctx, now, req.Equity)
		if err != nil {
			return risk.SizingResult{Symbol: req.Symbol}, err
		}
	}

	input := risk.SizingInput{
		Spec:         risk.SpecFromConfig(req.Symbol, spec),
		Direction:    req.Direction,
		Balance:      req.Balance,
		Equity:       req.Equity,
		StopDistance: req.StopDistance,
		Quality:      req.Quality,
		Confidence:   req.Confidence,
		Open:         req.Open,
		Daily:        daily,
	}

	result := e.sizer.Size(input)
	if e.monitor != nil {
		e.monitor.RecordSizing(ctx, input, result)
	}
	return result, nil
}

// RecordClose 记录一笔平仓：喂入绩效跟踪器、累计日度盈亏并清理仓位状态。
func (e *Engine) RecordClose(ctx context.Context, pos position.Position, lots, pnl float64, closedAt time.Time) error {
	if closedAt.IsZero() {
		closedAt = time.Now().UTC()
	}

	e.perf.Add(performance.Record{
		Symbol:   pos.Symbol,
		PnL:      pnl,
		ClosedAt: closedAt,
	})

	if lots >= pos.Size {
		e.decider.States().Drop(pos.ID)
	}

	if e.daily != nil {
		if err := e.daily.RecordTrade(ctx, pos.Symbol, string(pos.Direction), lots, pnl, closedAt); err != nil {
			return err
		}
	}
	if e.monitor != nil {
		e.monitor.RecordTradeClosed(ctx, monitor.TradeClosedPayload{
			Symbol:    pos.Symbol,
			Direction: string(pos.Direction),
			Lots:      lots,
			PnL:       pnl,
			ClosedAt:  closedAt,
		})
	}
	return nil
}

// RefreshDaily 用最新净值刷新当日风控状态。未接数据库时返回零值状态。
func (e *Engine) RefreshDaily(ctx context.Context, now time.Time, equity float64) (risk.DailyStatus, error) {
	if e.daily == nil {
		return risk.DailyStatus{}, nil
	}
	return e.daily.Update(ctx, now, equity)
}

// Monitor 暴露事件服务，供上层记录快照与异常。
func (e *Engine) Monitor() *monitor.Service {
	return e.monitor
}

// Performance 暴露绩效跟踪器。
func (e *Engine) Performance() *performance.Tracker {
	return e.perf
}

// Correlations 暴露相关性跟踪器。
func (e *Engine) Correlations() *correlation.Tracker {
	return e.corr
}

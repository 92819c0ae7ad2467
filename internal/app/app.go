package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"trader-core/internal/config"
	"trader-core/internal/decision"
	"trader-core/internal/execution"
	"trader-core/internal/market"
	"trader-core/internal/position"
	"trader-core/internal/store"
)

// SnapshotProvider 提供评估所需的行情快照。
type SnapshotProvider interface {
	Snapshots(ctx context.Context, symbols []string) (map[string]market.Snapshot, error)
}

// PortfolioSource 提供当前持仓与账户净值。
type PortfolioSource interface {
	Positions(ctx context.Context) ([]position.Position, error)
	Equity(ctx context.Context) (float64, error)
}

// OrderSubmitter 负责把委托提交到执行通道。
type OrderSubmitter interface {
	Execute(ctx context.Context, orders []execution.OrderRequest) (execution.Result, error)
}

// App 聚合核心依赖并驱动系统生命周期。
type App struct {
	cfg       *config.Config
	logger    *zap.Logger
	store     *store.Store
	provider  SnapshotProvider
	portfolio PortfolioSource
	submitter OrderSubmitter
}

// New 创建 App 实例。
func New(cfg *config.Config, logger *zap.Logger, store *store.Store, provider SnapshotProvider, portfolio PortfolioSource, submitter OrderSubmitter) *App {
	return &App{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		provider:  provider,
		portfolio: portfolio,
		submitter: submitter,
	}
}

// Run 按固定间隔驱动仓位管理循环，直到收到退出信号。
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("决策核心已初始化",
		zap.String("environment", a.cfg.App.Environment),
		zap.Duration("tick_interval", a.cfg.App.TickInterval),
		zap.Int("instruments", len(a.cfg.Instruments.Specs)),
	)

	engine, err := NewEngine(a.cfg, a.store, a.logger)
	if err != nil {
		return err
	}

	tickInterval := a.cfg.App.TickInterval
	if tickInterval <= 0 {
		tickInterval = time.Minute
	}

	if err := a.tick(ctx, engine); err != nil {
		a.logger.Error("首次评估失败", zap.Error(err))
	}

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("系统异常退出: %w", err)
			}
			a.logger.Info("系统收到退出信号，正在停止")
			return nil
		case <-ticker.C:
			if err := a.tick(ctx, engine); err != nil {
				a.logger.Error("执行评估循环失败", zap.Error(err))
			}
		}
	}
}

func (a *App) tick(ctx context.Context, engine *Engine) error {
	now := time.Now().UTC()

	positions, err := a.portfolio.Positions(ctx)
	if err != nil {
		a.recordError(ctx, engine, "获取持仓失败", err, nil)
		return err
	}
	if len(positions) == 0 {
		return nil
	}

	equity, err := a.portfolio.Equity(ctx)
	if err != nil {
		a.recordError(ctx, engine, "获取账户净值失败", err, nil)
		return err
	}
	if _, err := engine.RefreshDaily(ctx, now, equity); err != nil {
		a.recordError(ctx, engine, "刷新日度风控失败", err, nil)
		return err
	}

	symbols := make([]string, 0, len(positions))
	seen := make(map[string]struct{}, len(positions))
	for _, pos := range positions {
		if _, ok := seen[pos.Symbol]; ok {
			continue
		}
		seen[pos.Symbol] = struct{}{}
		symbols = append(symbols, pos.Symbol)
	}

	snapshots, err := a.provider.Snapshots(ctx, symbols)
	if err != nil {
		a.recordError(ctx, engine, "获取行情快照失败", err, nil)
		return err
	}

	for symbol, snap := range snapshots {
		engine.ObservePrice(symbol, snap.Price)
		if monitorSvc := engine.Monitor(); monitorSvc != nil {
			monitorSvc.RecordMarketSnapshot(ctx, snap)
		}
	}

	evaluations, err := engine.EvaluateAll(ctx, snapshots, positions, now)
	if err != nil {
		a.recordError(ctx, engine, "仓位评估失败", err, nil)
		return err
	}

	execOpts := execution.Options{
		Slippage:    a.cfg.Execution.Slippage,
		TimeInForce: a.cfg.Execution.TimeInForce,
	}

	for _, eval := range evaluations {
		if eval.Decision.Action.Type == decision.ActionHold {
			continue
		}

		snap := snapshots[eval.Position.Symbol]
		orders, err := execution.BuildManageOrders(execution.ManagePlan{
			Position:    eval.Position,
			Decision:    eval.Decision,
			MarketPrice: snap.Price,
			GeneratedAt: now,
		}, execOpts)
		if err != nil {
			a.recordError(ctx, engine, "生成委托失败", err, map[string]interface{}{"symbol": eval.Position.Symbol})
			continue
		}
		if len(orders) == 0 {
			continue
		}

		result, err := a.submitter.Execute(ctx, orders)
		if err != nil {
			a.recordError(ctx, engine, "提交委托失败", err, map[string]interface{}{"symbol": eval.Position.Symbol})
			continue
		}
		if monitorSvc := engine.Monitor(); monitorSvc != nil {
			monitorSvc.RecordExecution(ctx, result)
		}
	}

	return nil
}

func (a *App) recordError(ctx context.Context, engine *Engine, msg string, err error, ctxMap map[string]interface{}) {
	if monitorSvc := engine.Monitor(); monitorSvc != nil {
		monitorSvc.RecordError(ctx, msg, err, ctxMap)
	}
}

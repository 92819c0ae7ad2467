package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"trader-core/internal/app"
	"trader-core/internal/backtest"
	"trader-core/internal/config"
	"trader-core/internal/execution"
	"trader-core/internal/feed"
	"trader-core/internal/log"
	"trader-core/internal/store"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "配置文件路径，默认使用 configs/config.yaml")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	logger, err := log.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer func(logger *zap.Logger) {
		_ = logger.Sync()
	}(logger)

	sqliteStore, err := store.NewSQLite(cfg.Database)
	if err != nil {
		logger.Error("初始化数据库失败", zap.Error(err))
		os.Exit(1)
	}
	defer func() {
		if closeErr := sqliteStore.Close(); closeErr != nil {
			logger.Warn("关闭数据库失败", zap.Error(closeErr))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Replay.Enabled {
		if err := runReplay(ctx, cfg, sqliteStore, logger); err != nil {
			logger.Error("回放运行异常", zap.Error(err))
			os.Exit(1)
		}
		logger.Info("回放完成")
		return
	}

	if !cfg.Exchange.Enabled {
		logger.Error("实盘模式需要启用 exchange 配置，或改用 replay 模式")
		os.Exit(1)
	}

	exchangeFeed := feed.NewExchangeFeed(cfg.Exchange, logger)

	var executor *execution.Executor
	if cfg.Execution.Simulation {
		logger.Info("执行器处于模拟模式")
		executor = execution.NewExecutor(execution.NewSimulatedClient(), logger)
	} else {
		executor = execution.NewExecutor(exchangeFeed.Raw(), logger)
	}

	deciderApp := app.New(cfg, logger, sqliteStore, exchangeFeed, exchangeFeed, executor)

	if err := deciderApp.Run(ctx); err != nil {
		logger.Error("系统运行异常", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("系统已安全退出")
}

func runReplay(ctx context.Context, cfg *config.Config, st *store.Store, logger *zap.Logger) error {
	core, err := app.NewEngine(cfg, st, logger)
	if err != nil {
		return err
	}

	replayCfg := backtest.Config{
		Symbol:        cfg.Replay.Symbol,
		InitialEquity: cfg.Replay.InitialEquity,
		Steps:         cfg.Replay.Steps,
		Seed:          cfg.Replay.Seed,
	}
	provider := backtest.NewRandomWalkProvider(cfg.Replay.Symbol, cfg.Replay.Steps, cfg.Replay.Seed)

	engine, err := backtest.NewEngine(replayCfg, cfg, provider, core, logger)
	if err != nil {
		return err
	}

	result, err := engine.Run(ctx)
	if err != nil {
		return err
	}

	logger.Info("回放结果",
		zap.Float64("total_return", result.Metrics.TotalReturn),
		zap.Float64("max_drawdown", result.Metrics.MaxDrawdown),
		zap.Float64("sharpe", result.Metrics.SharpeRatio),
		zap.Int("trades", result.Trades),
		zap.Int("wins", result.Wins),
		zap.Int("losses", result.Losses),
		zap.Float64("final_equity", result.FinalEquity),
	)
	return nil
}

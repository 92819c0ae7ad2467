package feed

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	ccxt "github.com/ccxt/ccxt/go/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"trader-core/internal/config"
	"trader-core/internal/market"
	"trader-core/internal/position"
)

// ErrMaintenance 表示交易所处于维护状态，需要上层跳过本轮评估。
var ErrMaintenance = errors.New("exchange on maintenance")

const (
	candleLimitH1 = 120
	candleLimitH4 = 90
)

// ExchangeFeed 从交易所拉取K线与持仓，并组装成决策快照。
// 方向信号由上游模型提供，纯行情模式下保持中性。
type ExchangeFeed struct {
	cfg      config.ExchangeConfig
	logger   *zap.Logger
	exchange *ccxt.Binanceusdm
	builder  *SnapshotBuilder

	marketsMu     sync.Mutex
	marketsLoaded bool
}

// NewExchangeFeed 构造 Binance USDⓈ-M 数据源。
func NewExchangeFeed(cfg config.ExchangeConfig, logger *zap.Logger) *ExchangeFeed {
	if logger == nil {
		logger = zap.NewNop()
	}

	userConfig := map[string]interface{}{
		"enableRateLimit": true,
		"options": map[string]interface{}{
			"adjustForTimeDifference": true,
			"defaultType":             "future",
		},
	}
	if cfg.APIKey != "" {
		userConfig["apiKey"] = cfg.APIKey
	}
	if cfg.APISecret != "" {
		userConfig["secret"] = cfg.APISecret
	}
	if cfg.APIPass != "" {
		userConfig["password"] = cfg.APIPass
	}

	ex := ccxt.NewBinanceusdm(userConfig)
	if cfg.UseSandbox {
		ex.SetSandboxMode(true)
	}

	return &ExchangeFeed{
		cfg:      cfg,
		logger:   logger,
		exchange: ex,
		builder:  NewSnapshotBuilder(),
	}
}

// Raw 返回底层 ccxt 客户端，供执行器共用同一连接。
func (f *ExchangeFeed) Raw() *ccxt.Binanceusdm {
	return f.exchange
}

// Snapshots 并发拉取各品种的多级别K线并组装快照。
func (f *ExchangeFeed) Snapshots(ctx context.Context, symbols []string) (map[string]market.Snapshot, error) {
	snapshots := make(map[string]market.Snapshot, len(symbols))
	var mu sync.Mutex

	group, groupCtx := errgroup.WithContext(ctx)
	for _, symbol := range symbols {
		symbol := symbol
		group.Go(func() error {
			snap, err := f.snapshot(groupCtx, symbol)
			if err != nil {
				return err
			}
			mu.Lock()
			snapshots[symbol] = snap
			mu.Unlock()
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}
	return snapshots, nil
}

func (f *ExchangeFeed) snapshot(ctx context.Context, symbol string) (market.Snapshot, error) {
	var candlesH1, candlesH4 []Candle

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		data, err := f.fetchCandles(groupCtx, symbol, "1h", candleLimitH1)
		if err != nil {
			return err
		}
		candlesH1 = data
		return nil
	})
	group.Go(func() error {
		data, err := f.fetchCandles(groupCtx, symbol, "4h", candleLimitH4)
		if err != nil {
			return err
		}
		candlesH4 = data
		return nil
	})
	if err := group.Wait(); err != nil {
		return market.Snapshot{}, err
	}

	return f.builder.Build(symbol, map[market.Timeframe][]Candle{
		market.TimeframeH1: candlesH1,
		market.TimeframeH4: candlesH4,
	}, market.Signal{Direction: market.DirectionFlat}, time.Now().UTC())
}

func (f *ExchangeFeed) fetchCandles(ctx context.Context, symbol, timeframe string, limit int64) ([]Candle, error) {
	var raw []ccxt.OHLCV

	err := f.callWithRetry(ctx, fmt.Sprintf("fetch_ohlcv_%s_%s", symbol, timeframe), func() error {
		if err := f.ensureMarketsLoaded(ctx); err != nil {
			return err
		}

		result, err := f.exchange.FetchOHLCV(
			symbol,
			ccxt.WithFetchOHLCVTimeframe(timeframe),
			ccxt.WithFetchOHLCVLimit(limit),
		)
		if err != nil {
			return err
		}
		raw = result
		return nil
	})
	if err != nil {
		return nil, err
	}

	candles := make([]Candle, 0, len(raw))
	for _, item := range raw {
		candles = append(candles, Candle{
			Timestamp: time.UnixMilli(item.Timestamp).UTC(),
			Open:      item.Open,
			High:      item.High,
			Low:       item.Low,
			Close:     item.Close,
			Volume:    item.Volume,
		})
	}
	return candles, nil
}

// Positions 拉取全部非零持仓。
func (f *ExchangeFeed) Positions(ctx context.Context) ([]position.Position, error) {
	var raw []ccxt.Position

	err := f.callWithRetry(ctx, "fetch_positions", func() error {
		if err := f.ensureMarketsLoaded(ctx); err != nil {
			return err
		}
		result, err := f.exchange.FetchPositions()
		if err != nil {
			return err
		}
		raw = result
		return nil
	})
	if err != nil {
		return nil, err
	}

	positions := make([]position.Position, 0, len(raw))
	for _, rawPos := range raw {
		symbol := derefString(rawPos.Symbol)
		size := derefFloat(rawPos.Contracts)
		entry := derefFloat(rawPos.EntryPrice)
		if symbol == "" || size == 0 || entry <= 0 {
			continue
		}

		dir := market.ParseDirection(derefString(rawPos.Side))
		if dir == market.DirectionFlat {
			f.logger.Warn("持仓方向无法解析，跳过", zap.String("symbol", symbol))
			continue
		}

		positions = append(positions, position.Position{
			ID:         fmt.Sprintf("%s-%s", symbol, string(dir)),
			Symbol:     symbol,
			Direction:  dir,
			Size:       size,
			EntryPrice: entry,
			OpenedAt:   time.Now().UTC(),
		})
	}
	return positions, nil
}

// Equity 返回账户净值，按常见计价货币依次探测。
func (f *ExchangeFeed) Equity(ctx context.Context) (float64, error) {
	var balances ccxt.Balances

	err := f.callWithRetry(ctx, "fetch_balance", func() error {
		result, err := f.exchange.FetchBalance()
		if err != nil {
			return err
		}
		balances = result
		return nil
	})
	if err != nil {
		return 0, err
	}

	if balances.Total != nil {
		for _, code := range []string{"USDT", "USDC", "USD"} {
			if total, ok := balances.Total[code]; ok && total != nil && *total > 0 {
				return *total, nil
			}
		}
		for _, v := range balances.Total {
			if v != nil && *v > 0 {
				return *v, nil
			}
		}
	}
	return 0, errors.New("feed: 账户净值不可用")
}

func (f *ExchangeFeed) ensureMarketsLoaded(ctx context.Context) error {
	if f.marketsLoaded {
		return nil
	}

	f.marketsMu.Lock()
	defer f.marketsMu.Unlock()

	if f.marketsLoaded {
		return nil
	}

	loadErr := f.callWithRetry(ctx, "load_markets", func() error {
		_, err := f.exchange.LoadMarkets()
		return err
	})
	if loadErr != nil {
		return loadErr
	}

	f.marketsLoaded = true
	f.logger.Info("已完成市场元数据加载")
	return nil
}

func (f *ExchangeFeed) callWithRetry(ctx context.Context, operation string, fn func() error) error {
	attempt := 0
	delay := f.cfg.Retry.MinDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	maxDelay := f.cfg.Retry.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 5 * time.Second
	}
	maxAttempts := f.cfg.Retry.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		attempt++
		start := time.Now()
		err := fn()
		duration := time.Since(start)
		if err == nil {
			if attempt > 1 {
				f.logger.Info("交易所调用重试后成功",
					zap.String("operation", operation),
					zap.Int("attempts", attempt),
					zap.Duration("latency", duration),
				)
			}
			return nil
		}

		normalizedErr, retry := classifyError(err)

		if errors.Is(normalizedErr, ErrMaintenance) {
			f.logger.Warn("交易所维护中",
				zap.String("operation", operation),
				zap.Error(normalizedErr),
			)
			return normalizedErr
		}

		if !retry || attempt >= maxAttempts {
			f.logger.Error("交易所调用失败",
				zap.String("operation", operation),
				zap.Int("attempts", attempt),
				zap.Duration("latency", duration),
				zap.Error(normalizedErr),
			)
			return normalizedErr
		}

		wait := delay
		if wait > maxDelay {
			wait = maxDelay
		}

		f.logger.Warn("交易所调用失败，等待重试",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(normalizedErr),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}

func classifyError(err error) (error, bool) {
	if err == nil {
		return nil, false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err, false
	}

	var ccxtErr *ccxt.Error
	if errors.As(err, &ccxtErr) {
		switch ccxtErr.Type {
		case ccxt.NetworkErrorErrType,
			ccxt.RequestTimeoutErrType,
			ccxt.ExchangeNotAvailableErrType,
			ccxt.RateLimitExceededErrType,
			ccxt.DDoSProtectionErrType,
			ccxt.BadResponseErrType,
			ccxt.NullResponseErrType:
			return err, true
		case ccxt.OnMaintenanceErrType:
			return fmt.Errorf("%w: %s", ErrMaintenance, ccxtErr.Message), false
		default:
			return err, false
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return err, true
	}

	return err, false
}

func derefFloat(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	ccxt "github.com/ccxt/ccxt/go/v4"
	"go.uber.org/zap"
)

type orderClient interface {
	CreateMarketOrder(symbol string, side string, amount float64, options ...ccxt.CreateMarketOrderOptions) (ccxt.Order, error)
	CreateLimitOrder(symbol string, side string, amount float64, price float64, options ...ccxt.CreateLimitOrderOptions) (ccxt.Order, error)
}

// Executor 将委托提交给交易所，临时性错误按指数退避重试。
type Executor struct {
	client   orderClient
	logger   *zap.Logger
	maxRetry int
}

// NewExecutor 创建执行器。
func NewExecutor(client orderClient, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		client:   client,
		logger:   logger,
		maxRetry: 3,
	}
}

// Execute 依次提交订单。任一订单失败即停止，返回已执行部分的摘要。
func (e *Executor) Execute(ctx context.Context, orders []OrderRequest) (Result, error) {
	result := Result{
		Orders:        orders,
		ExecutionTime: time.Now().UTC(),
		Notes:         make([]string, 0),
	}

	if len(orders) == 0 {
		return result, nil
	}

	for _, order := range orders {
		if err := e.submitOrder(ctx, order); err != nil {
			result.Notes = append(result.Notes, fmt.Sprintf("下单失败: %v", err))
			return result, err
		}
	}

	result.Executed = true
	return result, nil
}

func (e *Executor) submitOrder(ctx context.Context, order OrderRequest) error {
	var err error
	for attempt := 1; attempt <= e.maxRetry; attempt++ {
		params := order.Params
		switch order.Type {
		case "market":
			var opts []ccxt.CreateMarketOrderOptions
			if len(params) > 0 {
				opts = append(opts, ccxt.WithCreateMarketOrderParams(params))
			}
			_, err = e.client.CreateMarketOrder(order.Symbol, string(order.Side), order.Amount, opts...)
		case "limit":
			var opts []ccxt.CreateLimitOrderOptions
			if len(params) > 0 {
				opts = append(opts, ccxt.WithCreateLimitOrderParams(params))
			}
			_, err = e.client.CreateLimitOrder(order.Symbol, string(order.Side), order.Amount, order.Price, opts...)
		default:
			return fmt.Errorf("execution: 不支持的订单类型 %s", order.Type)
		}

		if err == nil {
			return nil
		}

		if !retryable(err) {
			return err
		}

		wait := time.Duration(attempt) * time.Second
		e.logger.Warn("下单失败，准备重试",
			zap.String("symbol", order.Symbol),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}

	return fmt.Errorf("execution: 重试后仍下单失败: %w", err)
}

// retryable 判断错误是否为临时性交易所故障。
func retryable(err error) bool {
	if err == nil {
		return false
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
			return true
		default:
			return false
		}
	}

	return false
}

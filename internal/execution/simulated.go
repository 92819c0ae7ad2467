package execution

import (
	"sync"

	ccxt "github.com/ccxt/ccxt/go/v4"
)

// SimulatedClient 实现 orderClient，把委托记录在内存中，
// 供回放与测试环境替代真实交易所。
type SimulatedClient struct {
	mu     sync.Mutex
	orders []SimulatedOrder
}

// SimulatedOrder 为模拟成交的记录。
type SimulatedOrder struct {
	Symbol string
	Type   string
	Side   string
	Amount float64
	Price  float64
}

// NewSimulatedClient 创建模拟客户端。
func NewSimulatedClient() *SimulatedClient {
	return &SimulatedClient{}
}

func (c *SimulatedClient) CreateMarketOrder(symbol string, side string, amount float64, options ...ccxt.CreateMarketOrderOptions) (ccxt.Order, error) {
	c.record(SimulatedOrder{Symbol: symbol, Type: "market", Side: side, Amount: amount})
	return ccxt.Order{}, nil
}

func (c *SimulatedClient) CreateLimitOrder(symbol string, side string, amount float64, price float64, options ...ccxt.CreateLimitOrderOptions) (ccxt.Order, error) {
	c.record(SimulatedOrder{Symbol: symbol, Type: "limit", Side: side, Amount: amount, Price: price})
	return ccxt.Order{}, nil
}

func (c *SimulatedClient) record(order SimulatedOrder) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.orders = append(c.orders, order)
}

// Orders 返回已记录委托的副本。
func (c *SimulatedClient) Orders() []SimulatedOrder {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]SimulatedOrder, len(c.orders))
	copy(out, c.orders)
	return out
}

// Reset 清空记录。
func (c *SimulatedClient) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.orders = nil
}

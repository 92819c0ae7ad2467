package backtest

// Config 定义回放参数。
type Config struct {
	Symbol        string  // 品种名称
	InitialEquity float64 // 初始净值
	Steps         int     // 回放步数
	Seed          int64   // 随机种子，0表示随机
}

func (c *Config) normalize() Config {
	cfg := *c
	if cfg.Symbol == "" {
		cfg.Symbol = "EURUSD"
	}
	if cfg.InitialEquity <= 0 {
		cfg.InitialEquity = 10000
	}
	if cfg.Steps <= 0 {
		cfg.Steps = 500
	}
	return cfg
}

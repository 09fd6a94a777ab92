package gas

import (
	"fmt"
	"math/big"
	"time"
)

// Strategy gas 价格策略，实现 ports.GasPrice
//
// 约定：对同一个 elapsed 结果确定；随 elapsed 单调不减；不超过上限。
// 返回 nil 表示交给节点决定（eth_gasPrice）。
type Strategy interface {
	Price(elapsed time.Duration) *big.Int
}

// NodeDefault 使用节点建议的 gas 价格
type NodeDefault struct{}

func (NodeDefault) Price(time.Duration) *big.Int { return nil }

func (NodeDefault) String() string { return "node-default" }

// Fixed 固定 gas 价格
type Fixed struct {
	Wei *big.Int
}

// NewFixed 创建固定 gas 价格策略
func NewFixed(wei *big.Int) *Fixed {
	return &Fixed{Wei: new(big.Int).Set(wei)}
}

func (f *Fixed) Price(time.Duration) *big.Int {
	return new(big.Int).Set(f.Wei)
}

func (f *Fixed) String() string { return fmt.Sprintf("fixed(%s wei)", f.Wei) }

// Increasing 未确认时逐步提价：initial + increaseBy * floor(elapsed / every)，不超过 Max
type Increasing struct {
	Initial    *big.Int
	IncreaseBy *big.Int
	Every      time.Duration
	Max        *big.Int // nil 表示不设上限
}

// NewIncreasing 创建递增 gas 价格策略
func NewIncreasing(initial, increaseBy *big.Int, every time.Duration, max *big.Int) (*Increasing, error) {
	if initial == nil || initial.Sign() < 0 {
		return nil, fmt.Errorf("gas: initial price must be >= 0")
	}
	if increaseBy == nil || increaseBy.Sign() <= 0 {
		return nil, fmt.Errorf("gas: increase must be > 0")
	}
	if every <= 0 {
		return nil, fmt.Errorf("gas: increase interval must be > 0")
	}
	if max != nil && max.Cmp(initial) < 0 {
		return nil, fmt.Errorf("gas: max price %s below initial price %s", max, initial)
	}
	inc := &Increasing{
		Initial:    new(big.Int).Set(initial),
		IncreaseBy: new(big.Int).Set(increaseBy),
		Every:      every,
	}
	if max != nil {
		inc.Max = new(big.Int).Set(max)
	}
	return inc, nil
}

func (g *Increasing) Price(elapsed time.Duration) *big.Int {
	if elapsed < 0 {
		elapsed = 0
	}
	steps := big.NewInt(int64(elapsed / g.Every))
	price := new(big.Int).Mul(g.IncreaseBy, steps)
	price.Add(price, g.Initial)
	if g.Max != nil && price.Cmp(g.Max) > 0 {
		return new(big.Int).Set(g.Max)
	}
	return price
}

func (g *Increasing) String() string {
	return fmt.Sprintf("increasing(initial=%s +%s every %v max=%v)", g.Initial, g.IncreaseBy, g.Every, g.Max)
}

// Config gas 价格配置（单位 wei）
type Config struct {
	Price         *big.Int
	Increase      *big.Int
	IncreaseEvery time.Duration
	Max           *big.Int
}

// FromConfig 按配置选择策略：
//   - 配置了 increase：递增策略（初始价为 price，缺省为 0）
//   - 只配置了 price：固定策略
//   - 都未配置：节点默认
func FromConfig(cfg Config) (Strategy, error) {
	if cfg.Increase != nil && cfg.Increase.Sign() > 0 {
		initial := cfg.Price
		if initial == nil {
			initial = big.NewInt(0)
		}
		return NewIncreasing(initial, cfg.Increase, cfg.IncreaseEvery, cfg.Max)
	}
	if cfg.Price != nil && cfg.Price.Sign() > 0 {
		return NewFixed(cfg.Price), nil
	}
	return NodeDefault{}, nil
}

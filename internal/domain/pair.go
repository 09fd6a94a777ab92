package domain

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Token ERC-20 token 描述
type Token struct {
	Name     string
	Address  common.Address
	Decimals int32
}

// ToWei 把 token 单位的数量换算为链上整数（向下取整）
func (t Token) ToWei(amount decimal.Decimal) *big.Int {
	return amount.Shift(t.Decimals).Truncate(0).BigInt()
}

// FromWei 把链上整数换算为 token 单位
func (t Token) FromWei(v *big.Int) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v, -t.Decimals)
}

// Pair 交易对：Sell 为 base token（卖单支付），Buy 为 quote token（买单支付）
//
// 例如 WETH-DAI：Sell=WETH，Buy=DAI。
//   - 卖单：支付 Sell，换取 Buy
//   - 买单：支付 Buy，换取 Sell
type Pair struct {
	Name string
	Buy  Token
	Sell Token
}

// Classify 根据 token 对判断订单方向；与交易对两个方向都不匹配的订单返回 SideNone
func (p Pair) Classify(o Order) Side {
	switch {
	case o.PayToken == p.Sell.Address && o.BuyToken == p.Buy.Address:
		return SideSell
	case o.PayToken == p.Buy.Address && o.BuyToken == p.Sell.Address:
		return SideBuy
	default:
		return SideNone
	}
}

// Partition 把订单拆分为买单和卖单；不属于交易对的订单被丢弃
func (p Pair) Partition(orders []Order) (buys []Order, sells []Order) {
	buys = make([]Order, 0, len(orders))
	sells = make([]Order, 0, len(orders))
	for _, o := range orders {
		switch p.Classify(o) {
		case SideBuy:
			buys = append(buys, o)
		case SideSell:
			sells = append(sells, o)
		}
	}
	return buys, sells
}

// PayToken 某方向下单时支付的 token
func (p Pair) PayToken(side Side) Token {
	if side == SideSell {
		return p.Sell
	}
	return p.Buy
}

// BuyToken 某方向下单时换取的 token
func (p Pair) BuyToken(side Side) Token {
	if side == SideSell {
		return p.Buy
	}
	return p.Sell
}

// TokenFor 通过地址查找交易对中的 token
func (p Pair) TokenFor(addr common.Address) (Token, bool) {
	switch addr {
	case p.Buy.Address:
		return p.Buy, true
	case p.Sell.Address:
		return p.Sell, true
	}
	return Token{}, false
}

func (p Pair) String() string {
	if strings.TrimSpace(p.Name) != "" {
		return p.Name
	}
	return p.Sell.Address.Hex() + "-" + p.Buy.Address.Hex()
}

// TokenResolver 根据地址查 token（主要用于精度换算）
type TokenResolver func(addr common.Address) Token

// DefaultDecimals 未知 token 的默认精度
const DefaultDecimals = 18

// Resolver 交易对内的 token 用配置的精度，其余按 DefaultDecimals
func (p Pair) Resolver() TokenResolver {
	return func(addr common.Address) Token {
		if t, ok := p.TokenFor(addr); ok {
			return t
		}
		return Token{Name: addr.Hex(), Address: addr, Decimals: DefaultDecimals}
	}
}

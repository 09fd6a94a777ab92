package domain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Side 订单方向（由 token 对推导，不存储在订单上）
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
	// SideNone 不属于配置交易对的订单：不参与任何计算，也不会被操作
	SideNone Side = "none"
)

// Signature 订单的 ECDSA 签名（0x v1: v, r, s）
type Signature struct {
	V uint8
	R common.Hash
	S common.Hash
}

// Order 交易所订单领域模型（0x v1 语义：maker 支付 PayToken，换取 BuyToken）
//
// 订单是值对象：撤单或过期只会让它被新的订单取代，任何地方都不原地修改订单，
// 构建/签名/算费步骤都返回新的副本。
type Order struct {
	ExchangeAddress common.Address
	Maker           common.Address
	Taker           common.Address
	FeeRecipient    common.Address

	PayToken  common.Address  // maker token
	PayAmount decimal.Decimal // maker token amount（token 单位）
	BuyToken  common.Address  // taker token
	BuyAmount decimal.Decimal // taker token amount（token 单位）

	MakerFee decimal.Decimal
	TakerFee decimal.Decimal

	Expiration int64 // unix 秒
	Salt       *big.Int

	Signature *Signature // 未签名时为 nil
	Hash      common.Hash

	// UnavailableBuyAmount 链上已成交 + 已撤销的 BuyAmount（读取订单时填充）
	UnavailableBuyAmount decimal.Decimal
}

// IsSigned 是否已签名
func (o Order) IsSigned() bool {
	return o.Signature != nil
}

// RemainingBuyAmount 剩余可成交的 BuyAmount
func (o Order) RemainingBuyAmount() decimal.Decimal {
	rem := o.BuyAmount.Sub(o.UnavailableBuyAmount)
	if rem.IsNegative() {
		return decimal.Zero
	}
	return rem
}

// RemainingPayAmount 按剩余比例折算的 PayAmount，即该订单仍然锁定的余额
func (o Order) RemainingPayAmount() decimal.Decimal {
	if !o.BuyAmount.IsPositive() {
		return decimal.Zero
	}
	if o.UnavailableBuyAmount.IsZero() {
		return o.PayAmount
	}
	return o.PayAmount.Mul(o.RemainingBuyAmount()).Div(o.BuyAmount)
}

// IsLive 未过期（过期时间晚于 now+threshold）且未被完全消耗
func (o Order) IsLive(nowUnix int64, expiryThresholdSec int64) bool {
	if o.Expiration <= nowUnix+expiryThresholdSec {
		return false
	}
	return o.UnavailableBuyAmount.LessThan(o.BuyAmount)
}

func (o Order) String() string {
	return fmt.Sprintf("order(hash=%s pay=%s %s buy=%s %s exp=%d)",
		o.Hash.Hex(), o.PayAmount.String(), o.PayToken.Hex(), o.BuyAmount.String(), o.BuyToken.Hex(), o.Expiration)
}

// OrderIntent 带 Side 的待下单意图（由 band 策略产出）
type OrderIntent struct {
	Side      Side
	PayAmount decimal.Decimal
	BuyAmount decimal.Decimal
}

// Price 该意图对应的价格（buy token 每单位 sell token）
func (i OrderIntent) Price() decimal.Decimal {
	switch i.Side {
	case SideSell:
		if i.PayAmount.IsZero() {
			return decimal.Zero
		}
		return i.BuyAmount.Div(i.PayAmount)
	case SideBuy:
		if i.BuyAmount.IsZero() {
			return decimal.Zero
		}
		return i.PayAmount.Div(i.BuyAmount)
	}
	return decimal.Zero
}

// TotalLocked 订单列表锁定的 PayAmount 总和
func TotalLocked(orders []Order) decimal.Decimal {
	total := decimal.Zero
	for _, o := range orders {
		total = total.Add(o.RemainingPayAmount())
	}
	return total
}

package bands

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/betbot/keeper/internal/domain"
)

var one = decimal.NewFromInt(1)

// Band 一个价格区间及其目标挂单量。
//
// margin 是相对目标价的偏离比例；amount 以该方向支付的 token 计
// （买单为 buy token，卖单为 sell token）。
type Band struct {
	MinMargin  decimal.Decimal `yaml:"min_margin"`
	AvgMargin  decimal.Decimal `yaml:"avg_margin"`
	MaxMargin  decimal.Decimal `yaml:"max_margin"`
	MinAmount  decimal.Decimal `yaml:"min_amount"`
	AvgAmount  decimal.Decimal `yaml:"avg_amount"`
	MaxAmount  decimal.Decimal `yaml:"max_amount"`
	DustCutoff decimal.Decimal `yaml:"dust_cutoff"`
}

func (b Band) validate(side domain.Side) error {
	for name, v := range map[string]decimal.Decimal{
		"min_margin": b.MinMargin, "avg_margin": b.AvgMargin, "max_margin": b.MaxMargin,
		"min_amount": b.MinAmount, "avg_amount": b.AvgAmount, "max_amount": b.MaxAmount,
		"dust_cutoff": b.DustCutoff,
	} {
		if v.IsNegative() {
			return fmt.Errorf("%s 不能为负数", name)
		}
	}
	if b.MinMargin.GreaterThan(b.AvgMargin) || b.AvgMargin.GreaterThan(b.MaxMargin) {
		return fmt.Errorf("需要 min_margin <= avg_margin <= max_margin")
	}
	if b.MinMargin.Equal(b.MaxMargin) {
		return fmt.Errorf("min_margin 与 max_margin 不能相等")
	}
	if b.MinAmount.GreaterThan(b.AvgAmount) || b.AvgAmount.GreaterThan(b.MaxAmount) {
		return fmt.Errorf("需要 min_amount <= avg_amount <= max_amount")
	}
	if side == domain.SideBuy && b.MaxMargin.GreaterThanOrEqual(one) {
		return fmt.Errorf("买单 max_margin 必须小于 1")
	}
	return nil
}

// priceRange 该 band 覆盖的价格区间 (low, high)
func (b Band) priceRange(side domain.Side, target decimal.Decimal) (low, high decimal.Decimal) {
	if side == domain.SideBuy {
		return target.Mul(one.Sub(b.MaxMargin)), target.Mul(one.Sub(b.MinMargin))
	}
	return target.Mul(one.Add(b.MinMargin)), target.Mul(one.Add(b.MaxMargin))
}

// AvgPrice 新挂单使用的价格
func (b Band) AvgPrice(side domain.Side, target decimal.Decimal) decimal.Decimal {
	if side == domain.SideBuy {
		return target.Mul(one.Sub(b.AvgMargin))
	}
	return target.Mul(one.Add(b.AvgMargin))
}

// Includes 订单价格是否落在该 band 内。
// 买单区间为 (low, high]，卖单为 [low, high)：离目标价近的一端闭合。
func (b Band) Includes(side domain.Side, o domain.Order, target decimal.Decimal) bool {
	price, ok := OrderPrice(side, o)
	if !ok {
		return false
	}
	low, high := b.priceRange(side, target)
	if side == domain.SideBuy {
		return price.GreaterThan(low) && price.LessThanOrEqual(high)
	}
	return price.GreaterThanOrEqual(low) && price.LessThan(high)
}

// OrderPrice 订单价格（buy token / sell token）
func OrderPrice(side domain.Side, o domain.Order) (decimal.Decimal, bool) {
	switch side {
	case domain.SideBuy:
		if !o.BuyAmount.IsPositive() {
			return decimal.Zero, false
		}
		return o.PayAmount.Div(o.BuyAmount), true
	case domain.SideSell:
		if !o.PayAmount.IsPositive() {
			return decimal.Zero, false
		}
		return o.BuyAmount.Div(o.PayAmount), true
	}
	return decimal.Zero, false
}

package bands

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/betbot/keeper/internal/domain"
	"github.com/betbot/keeper/internal/ports"
)

// Bands 一份不可变的 band 快照，实现 ports.Bands
type Bands struct {
	BuyBands  []Band `yaml:"buy_bands"`
	SellBands []Band `yaml:"sell_bands"`
}

var _ ports.Bands = (*Bands)(nil)

// Validate 校验每个 band 并检查同方向 band 不重叠
func (b *Bands) Validate() error {
	for side, list := range map[domain.Side][]Band{domain.SideBuy: b.BuyBands, domain.SideSell: b.SellBands} {
		for i, band := range list {
			if err := band.validate(side); err != nil {
				return fmt.Errorf("%s_bands[%d]: %w", side, i, err)
			}
		}
		sorted := append([]Band(nil), list...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].MinMargin.LessThan(sorted[j].MinMargin) })
		for i := 1; i < len(sorted); i++ {
			if sorted[i].MinMargin.LessThan(sorted[i-1].MaxMargin) {
				return fmt.Errorf("%s_bands 区间重叠: [%s, %s] 与 [%s, %s]", side,
					sorted[i-1].MinMargin, sorted[i-1].MaxMargin, sorted[i].MinMargin, sorted[i].MaxMargin)
			}
		}
	}
	return nil
}

func (b *Bands) bands(side domain.Side) []Band {
	if side == domain.SideBuy {
		return b.BuyBands
	}
	return b.SellBands
}

// CancellableOrders 需要撤销的订单：
//   - 不在任何 band 内的订单
//   - band 内挂单总量超过 max_amount 时，从最大的订单开始撤，直到不超过 max_amount
func (b *Bands) CancellableOrders(buyOrders, sellOrders []domain.Order, target decimal.Decimal) []domain.Order {
	var out []domain.Order
	out = append(out, b.cancellable(domain.SideBuy, buyOrders, target)...)
	out = append(out, b.cancellable(domain.SideSell, sellOrders, target)...)
	return out
}

func (b *Bands) cancellable(side domain.Side, orders []domain.Order, target decimal.Decimal) []domain.Order {
	var out []domain.Order
	inBand := make([][]domain.Order, len(b.bands(side)))

	for _, o := range orders {
		idx := -1
		for i, band := range b.bands(side) {
			if band.Includes(side, o, target) {
				idx = i
				break
			}
		}
		if idx < 0 {
			out = append(out, o)
			continue
		}
		inBand[idx] = append(inBand[idx], o)
	}

	for i, band := range b.bands(side) {
		out = append(out, excessive(band, inBand[i])...)
	}
	return out
}

func excessive(band Band, orders []domain.Order) []domain.Order {
	total := domain.TotalLocked(orders)
	if total.LessThanOrEqual(band.MaxAmount) {
		return nil
	}
	sorted := append([]domain.Order(nil), orders...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].RemainingPayAmount().GreaterThan(sorted[j].RemainingPayAmount())
	})
	var out []domain.Order
	for _, o := range sorted {
		if total.LessThanOrEqual(band.MaxAmount) {
			break
		}
		out = append(out, o)
		total = total.Sub(o.RemainingPayAmount())
	}
	return out
}

// NewOrders 为挂单量低于 min_amount 的 band 补单到 avg_amount，受可用余额限制；
// 数量不超过 dust_cutoff 的订单不下。
func (b *Bands) NewOrders(buyOrders, sellOrders []domain.Order, buyBalance, sellBalance decimal.Decimal, target decimal.Decimal) []domain.OrderIntent {
	var out []domain.OrderIntent
	out = append(out, b.newOrders(domain.SideBuy, buyOrders, buyBalance, target)...)
	out = append(out, b.newOrders(domain.SideSell, sellOrders, sellBalance, target)...)
	return out
}

func (b *Bands) newOrders(side domain.Side, orders []domain.Order, balance decimal.Decimal, target decimal.Decimal) []domain.OrderIntent {
	if !target.IsPositive() {
		return nil
	}
	var out []domain.OrderIntent
	for _, band := range b.bands(side) {
		var inBand []domain.Order
		for _, o := range orders {
			if band.Includes(side, o, target) {
				inBand = append(inBand, o)
			}
		}
		total := domain.TotalLocked(inBand)
		if total.GreaterThanOrEqual(band.MinAmount) {
			continue
		}

		pay := decimal.Min(band.AvgAmount.Sub(total), balance)
		if !pay.IsPositive() || pay.LessThanOrEqual(band.DustCutoff) {
			continue
		}
		price := band.AvgPrice(side, target)
		if !price.IsPositive() {
			continue
		}

		intent := domain.OrderIntent{Side: side, PayAmount: pay}
		if side == domain.SideBuy {
			intent.BuyAmount = pay.DivRound(price, 18)
		} else {
			intent.BuyAmount = pay.Mul(price)
		}
		out = append(out, intent)
		balance = balance.Sub(pay)
	}
	return out
}

package keeper

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/keeper/internal/domain"
	"github.com/betbot/keeper/internal/metrics"
	"github.com/betbot/keeper/internal/ports"
)

// Synchronizer 每个 tick 执行一次订单对账
type Synchronizer struct {
	account         common.Address
	pair            domain.Pair
	minEthBalance   decimal.Decimal
	expiryThreshold time.Duration

	balances   ports.BalanceSource
	orders     ports.OrderSource
	exchange   ports.ExchangeGateway
	price      ports.PriceFeed
	bands      ports.BandsSource
	dispatcher *Dispatcher

	now func() time.Time
	log *logrus.Entry
}

// Synchronize 一次对账：
//  1. ETH 余额低于下限 → 撤销全部订单
//  2. 读取存活订单
//  3. 没有可用价格 → 撤销全部订单（不读取 band 配置）
//  4. 读取 band 快照，按交易对拆分买/卖单
//  5. 有需要撤的单 → 只撤单，本 tick 不下单
//  6. 可用余额 = token 余额 - 该方向存活订单锁定量
//  7. 按 band 下新单
//
// 读取失败直接返回错误，本 tick 不做任何动作。
func (s *Synchronizer) Synchronize(ctx context.Context) error {
	log := s.log.WithField("tick", uuid.NewString())
	now := s.now()

	eth, err := s.balances.NativeBalance(ctx, s.account)
	if err != nil {
		return fmt.Errorf("查询 ETH 余额失败: %w", err)
	}
	if eth.LessThan(s.minEthBalance) {
		log.Warnf("⚠️ ETH 余额 %s 低于下限 %s，撤销全部订单", eth, s.minEthBalance)
		return s.cancelAll(ctx, now)
	}

	orders, err := s.OurLiveOrders(ctx, now)
	if err != nil {
		return err
	}

	target, ok := s.price.Price(ctx)
	if !ok {
		log.Warn("⚠️ 没有可用价格，撤销全部订单")
		buys, sells := s.pair.Partition(orders)
		metrics.CancelAlls.Add(1)
		return s.dispatcher.CancelOrders(ctx, append(buys, sells...))
	}
	metrics.LivePrice.Set(target.String())

	bands, err := s.bands.Bands()
	if err != nil {
		return fmt.Errorf("加载 band 配置失败: %w", err)
	}
	buys, sells := s.pair.Partition(orders)
	log.Debugf("价格=%s 存活订单: buy=%d sell=%d", target, len(buys), len(sells))

	if cancellable := bands.CancellableOrders(buys, sells, target); len(cancellable) > 0 {
		return s.dispatcher.CancelOrders(ctx, cancellable)
	}

	buyBalance, err := s.balances.TokenBalance(ctx, s.pair.Buy, s.account)
	if err != nil {
		return fmt.Errorf("查询 %s 余额失败: %w", s.pair.Buy.Name, err)
	}
	sellBalance, err := s.balances.TokenBalance(ctx, s.pair.Sell, s.account)
	if err != nil {
		return fmt.Errorf("查询 %s 余额失败: %w", s.pair.Sell.Name, err)
	}
	buySpendable := buyBalance.Sub(domain.TotalLocked(buys))
	sellSpendable := sellBalance.Sub(domain.TotalLocked(sells))

	intents := bands.NewOrders(buys, sells, buySpendable, sellSpendable, target)
	if len(intents) == 0 {
		return nil
	}
	log.Infof("可用余额: %s=%s %s=%s，新订单 %d 个",
		s.pair.Buy.Name, buySpendable, s.pair.Sell.Name, sellSpendable, len(intents))
	return s.dispatcher.CreateOrders(ctx, intents, now)
}

// OurLiveOrders 本账户在交易对上仍然存活的订单（未过期、未被完全成交或撤销），
// 每个订单的 UnavailableBuyAmount 从链上读取。
func (s *Synchronizer) OurLiveOrders(ctx context.Context, now time.Time) ([]domain.Order, error) {
	raw, err := s.orders.OrdersByMaker(ctx, s.account)
	if err != nil {
		return nil, fmt.Errorf("读取订单失败: %w", err)
	}

	nowUnix := now.Unix()
	threshold := int64(s.expiryThreshold / time.Second)
	live := make([]domain.Order, 0, len(raw))
	for _, o := range raw {
		if o.Maker != s.account || o.Expiration <= nowUnix+threshold {
			continue
		}
		if s.pair.Classify(o) == domain.SideNone {
			continue
		}
		unavailable, err := s.exchange.UnavailableBuyAmount(ctx, o)
		if err != nil {
			return nil, fmt.Errorf("读取订单 %s 成交量失败: %w", o.Hash.Hex(), err)
		}
		o.UnavailableBuyAmount = unavailable
		if o.IsLive(nowUnix, threshold) {
			live = append(live, o)
		}
	}
	return live, nil
}

// CancelAll 撤销交易对上全部存活订单；不属于交易对的订单不处理
func (s *Synchronizer) CancelAll(ctx context.Context) error {
	return s.cancelAll(ctx, s.now())
}

func (s *Synchronizer) cancelAll(ctx context.Context, now time.Time) error {
	orders, err := s.OurLiveOrders(ctx, now)
	if err != nil {
		return err
	}
	buys, sells := s.pair.Partition(orders)
	metrics.CancelAlls.Add(1)
	return s.dispatcher.CancelOrders(ctx, append(buys, sells...))
}

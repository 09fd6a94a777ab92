package keeper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/betbot/keeper/internal/domain"
	"github.com/betbot/keeper/internal/metrics"
	"github.com/betbot/keeper/internal/ports"
)

// Dispatcher 执行同步器选出的撤单/下单动作
type Dispatcher struct {
	gateway ports.ExchangeGateway
	gas     ports.GasPrice

	serial      bool
	concurrency int
	lifetime    time.Duration

	log *logrus.Entry
}

// NewDispatcher 创建动作执行器。
// serial=true 时撤单逐个执行；否则并发执行，最多 concurrency 个同时在途（<=0 表示不限制）。
func NewDispatcher(gateway ports.ExchangeGateway, gas ports.GasPrice, serial bool, concurrency int, lifetime time.Duration, log *logrus.Entry) *Dispatcher {
	if log == nil {
		log = logrus.WithField("component", "dispatcher")
	}
	return &Dispatcher{
		gateway:     gateway,
		gas:         gas,
		serial:      serial,
		concurrency: concurrency,
		lifetime:    lifetime,
		log:         log,
	}
}

// CancelOrders 撤销全部给定订单并等待全部完成。
// 单个订单失败不影响其它订单，所有失败合并返回。
func (d *Dispatcher) CancelOrders(ctx context.Context, orders []domain.Order) error {
	if len(orders) == 0 {
		return nil
	}
	d.log.Infof("🗑️ 撤单 %d 个", len(orders))

	errs := make([]error, len(orders))
	cancel := func(i int) {
		o := orders[i]
		if err := d.gateway.CancelOrder(ctx, o, d.gas); err != nil {
			metrics.CancelErrors.Add(1)
			d.log.Errorf("❌ 撤单失败 %s: %v", o.Hash.Hex(), err)
			errs[i] = fmt.Errorf("cancel %s: %w", o.Hash.Hex(), err)
			return
		}
		metrics.OrdersCancel.Add(1)
		d.log.Infof("✅ 已撤单 %s", o.Hash.Hex())
	}

	if d.serial {
		for i := range orders {
			cancel(i)
		}
		return errors.Join(errs...)
	}

	var g errgroup.Group
	if d.concurrency > 0 {
		g.SetLimit(d.concurrency)
	}
	for i := range orders {
		i := i
		g.Go(func() error {
			cancel(i)
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// CreateOrders 按顺序下单：构建 → 算费 → 签名 → 提交；任一步失败即放弃本 tick 剩余的下单。
// 过期时间 = tickTime + 订单有效期。
func (d *Dispatcher) CreateOrders(ctx context.Context, intents []domain.OrderIntent, tickTime time.Time) error {
	expiration := tickTime.Add(d.lifetime).Unix()
	for i, intent := range intents {
		if err := d.createOrder(ctx, intent, expiration); err != nil {
			metrics.CreateErrors.Add(1)
			return fmt.Errorf("create order %d/%d (%s pay=%s buy=%s): %w",
				i+1, len(intents), intent.Side, intent.PayAmount, intent.BuyAmount, err)
		}
		metrics.OrdersCreated.Add(1)
	}
	return nil
}

func (d *Dispatcher) createOrder(ctx context.Context, intent domain.OrderIntent, expiration int64) error {
	order, err := d.gateway.CreateOrder(ctx, intent, expiration)
	if err != nil {
		return err
	}
	order, err = d.gateway.CalculateFees(ctx, order)
	if err != nil {
		return fmt.Errorf("calculate fees: %w", err)
	}
	order, err = d.gateway.SignOrder(ctx, order)
	if err != nil {
		return fmt.Errorf("sign: %w", err)
	}
	if err := d.gateway.SubmitOrder(ctx, order, d.gas); err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	d.log.Infof("📝 已下单 %s %s: pay=%s buy=%s price=%s",
		intent.Side, order.Hash.Hex(), intent.PayAmount, intent.BuyAmount, intent.Price().StringFixed(6))
	return nil
}

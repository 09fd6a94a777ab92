package exchange

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/betbot/keeper/internal/domain"
	"github.com/betbot/keeper/internal/exchange/relayer"
	"github.com/betbot/keeper/internal/exchange/zrx"
	"github.com/betbot/keeper/internal/ports"
)

// Gateway 把 0x 合约（链上）和 relayer（链下订单簿）组合成 keeper 使用的交易所接口
//
//   - 下单：本地构建 → relayer 算费 → 本地签名 → 提交 relayer（链下，不消耗 gas）
//   - 撤单：链上 cancelOrder（消耗 gas，受 gas 策略约束）
//   - 订单读取：relayer；剩余数量：链上 getUnavailableTakerTokenAmount
type Gateway struct {
	pair    domain.Pair
	zrx     *zrx.Exchange
	relayer *relayer.Client
}

var (
	_ ports.ExchangeGateway = (*Gateway)(nil)
	_ ports.OrderSource     = (*Gateway)(nil)
)

// NewGateway 创建交易所网关
func NewGateway(pair domain.Pair, ex *zrx.Exchange, rc *relayer.Client) *Gateway {
	return &Gateway{pair: pair, zrx: ex, relayer: rc}
}

// CreateOrder 按意图方向构建未签名订单
func (g *Gateway) CreateOrder(_ context.Context, intent domain.OrderIntent, expiration int64) (domain.Order, error) {
	if intent.Side != domain.SideBuy && intent.Side != domain.SideSell {
		return domain.Order{}, fmt.Errorf("无效的订单方向: %q", intent.Side)
	}
	if !intent.PayAmount.IsPositive() || !intent.BuyAmount.IsPositive() {
		return domain.Order{}, fmt.Errorf("订单数量必须大于 0: pay=%s buy=%s", intent.PayAmount, intent.BuyAmount)
	}
	return g.zrx.CreateOrder(
		g.pair.PayToken(intent.Side).Address, intent.PayAmount,
		g.pair.BuyToken(intent.Side).Address, intent.BuyAmount,
		expiration,
	)
}

func (g *Gateway) CalculateFees(ctx context.Context, order domain.Order) (domain.Order, error) {
	return g.relayer.CalculateFees(ctx, order)
}

func (g *Gateway) SignOrder(_ context.Context, order domain.Order) (domain.Order, error) {
	return g.zrx.SignOrder(order)
}

// SubmitOrder relayer 提交是链下操作，gas 策略不参与
func (g *Gateway) SubmitOrder(ctx context.Context, order domain.Order, _ ports.GasPrice) error {
	return g.relayer.SubmitOrder(ctx, order)
}

func (g *Gateway) CancelOrder(ctx context.Context, order domain.Order, gas ports.GasPrice) error {
	return g.zrx.CancelOrder(ctx, order, gas)
}

func (g *Gateway) UnavailableBuyAmount(ctx context.Context, order domain.Order) (decimal.Decimal, error) {
	return g.zrx.UnavailableBuyAmount(ctx, order)
}

func (g *Gateway) Approve(ctx context.Context, tokens []domain.Token, gas ports.GasPrice) error {
	return g.zrx.Approve(ctx, tokens, gas)
}

func (g *Gateway) OrdersByMaker(ctx context.Context, maker common.Address) ([]domain.Order, error) {
	return g.relayer.OrdersByMaker(ctx, maker)
}

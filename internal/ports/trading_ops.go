package ports

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/betbot/keeper/internal/domain"
)

// Small capability interfaces consumed by the keeper core. Concrete implementations live in
// internal/{pricefeed,gas,bands,chain,exchange}; tests use in-memory fakes.

// PriceFeed 参考价格来源。ok=false 表示当前没有可用价格（不是错误，也不会返回 0 价格）。
type PriceFeed interface {
	Price(ctx context.Context) (price decimal.Decimal, ok bool)
}

// GasPrice gas 价格策略。
//
// 约定：对同一个 elapsed 结果确定；随 elapsed 单调不减；不超过配置的上限。
// 返回 nil 表示交给节点决定（eth_gasPrice）。
type GasPrice interface {
	Price(elapsed time.Duration) *big.Int
}

// BalanceSource 账户余额（每次实时查询，不跨 tick 缓存）
type BalanceSource interface {
	NativeBalance(ctx context.Context, account common.Address) (decimal.Decimal, error)
	TokenBalance(ctx context.Context, token domain.Token, account common.Address) (decimal.Decimal, error)
}

// OrderSource 交易所（relayer）上属于某个 maker 的订单，未做存活过滤
type OrderSource interface {
	OrdersByMaker(ctx context.Context, maker common.Address) ([]domain.Order, error)
}

// Bands band 策略：决定撤哪些单、下哪些新单
type Bands interface {
	CancellableOrders(buyOrders, sellOrders []domain.Order, target decimal.Decimal) []domain.Order
	NewOrders(buyOrders, sellOrders []domain.Order, buyBalance, sellBalance decimal.Decimal, target decimal.Decimal) []domain.OrderIntent
}

// BandsSource 每个 tick 拉取一次不可变的 band 快照
type BandsSource interface {
	Bands() (Bands, error)
}

// ExchangeGateway 订单构建、算费、签名、提交与撤单
type ExchangeGateway interface {
	CreateOrder(ctx context.Context, intent domain.OrderIntent, expiration int64) (domain.Order, error)
	CalculateFees(ctx context.Context, order domain.Order) (domain.Order, error)
	SignOrder(ctx context.Context, order domain.Order) (domain.Order, error)
	SubmitOrder(ctx context.Context, order domain.Order, gas GasPrice) error
	CancelOrder(ctx context.Context, order domain.Order, gas GasPrice) error

	// UnavailableBuyAmount 已成交 + 已撤销的 BuyAmount
	UnavailableBuyAmount(ctx context.Context, order domain.Order) (decimal.Decimal, error)

	// Approve 授权交易所划转 token（启动时调用一次）
	Approve(ctx context.Context, tokens []domain.Token, gas GasPrice) error
}

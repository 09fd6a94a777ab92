// Package keeper 做市 keeper：按 band 配置在 0x relayer 上维护买卖挂单。
package keeper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/keeper/internal/domain"
	"github.com/betbot/keeper/internal/metrics"
	"github.com/betbot/keeper/internal/ports"
	"github.com/betbot/keeper/pkg/lifecycle"
	"github.com/betbot/keeper/pkg/retry"
)

// Options keeper 参数
type Options struct {
	Account       common.Address
	Pair          domain.Pair
	MinEthBalance decimal.Decimal

	OrderLifetime   time.Duration
	ExpiryThreshold time.Duration

	TickInterval       time.Duration
	InitialDelay       time.Duration
	ShutdownRetryDelay time.Duration

	SerialCancel      bool
	CancelConcurrency int
}

// Deps keeper 依赖的外部组件
type Deps struct {
	Balances  ports.BalanceSource
	Orders    ports.OrderSource
	Exchange  ports.ExchangeGateway
	PriceFeed ports.PriceFeed
	Bands     ports.BandsSource
	Gas       ports.GasPrice
}

// Keeper 把同步器、动作执行器和生命周期组装在一起
type Keeper struct {
	opts     Options
	exchange ports.ExchangeGateway
	gas      ports.GasPrice

	synchronizer *Synchronizer
	lifecycle    *lifecycle.Lifecycle
	log          *logrus.Entry

	mu        sync.Mutex
	lastTick  time.Time
	lastError string
}

// New 创建 keeper
func New(opts Options, deps Deps, log *logrus.Entry) (*Keeper, error) {
	if log == nil {
		log = logrus.WithField("component", "keeper")
	}
	if deps.Balances == nil || deps.Orders == nil || deps.Exchange == nil ||
		deps.PriceFeed == nil || deps.Bands == nil || deps.Gas == nil {
		return nil, fmt.Errorf("keeper 依赖不完整")
	}
	if opts.TickInterval <= 0 {
		return nil, fmt.Errorf("tick 间隔必须大于 0")
	}
	if opts.ShutdownRetryDelay <= 0 {
		opts.ShutdownRetryDelay = 5 * time.Second
	}

	k := &Keeper{
		opts:     opts,
		exchange: deps.Exchange,
		gas:      deps.Gas,
		log:      log,
	}
	k.synchronizer = &Synchronizer{
		account:         opts.Account,
		pair:            opts.Pair,
		minEthBalance:   opts.MinEthBalance,
		expiryThreshold: opts.ExpiryThreshold,
		balances:        deps.Balances,
		orders:          deps.Orders,
		exchange:        deps.Exchange,
		price:           deps.PriceFeed,
		bands:           deps.Bands,
		dispatcher: NewDispatcher(deps.Exchange, deps.Gas, opts.SerialCancel, opts.CancelConcurrency,
			opts.OrderLifetime, log.WithField("component", "dispatcher")),
		now: time.Now,
		log: log,
	}
	k.lifecycle = lifecycle.New(log.WithField("component", "lifecycle")).
		InitialDelay(opts.InitialDelay).
		OnStartup(k.Startup).
		Every(opts.TickInterval, k.synchronizer.Synchronize).
		OnTick(k.observeTick).
		OnShutdown("cancel-all", retry.Forever(opts.ShutdownRetryDelay), k.Shutdown)
	return k, nil
}

// Synchronizer 暴露同步器（测试与手动触发使用）
func (k *Keeper) Synchronizer() *Synchronizer {
	return k.synchronizer
}

// Run 运行到 ctx 结束并完成撤单
func (k *Keeper) Run(ctx context.Context) error {
	k.log.Infof("🚀 keeper 启动: account=%s pair=%s tick=%v", k.opts.Account.Hex(), k.opts.Pair, k.opts.TickInterval)
	return k.lifecycle.Run(ctx)
}

// Startup 授权交易所划转交易对的两个 token
func (k *Keeper) Startup(ctx context.Context) error {
	return k.exchange.Approve(ctx, []domain.Token{k.opts.Pair.Sell, k.opts.Pair.Buy}, k.gas)
}

// Shutdown 撤销全部存活订单
func (k *Keeper) Shutdown(ctx context.Context) error {
	k.log.Info("🛑 撤销全部订单 ...")
	return k.synchronizer.CancelAll(ctx)
}

func (k *Keeper) observeTick(elapsed time.Duration, err error) {
	metrics.ObserveTick(elapsed, err)
	k.mu.Lock()
	defer k.mu.Unlock()
	k.lastTick = time.Now()
	k.lastError = ""
	if err != nil {
		k.lastError = err.Error()
	}
}

// Status /status 接口内容
type Status struct {
	State     string    `json:"state"`
	Account   string    `json:"account"`
	Pair      string    `json:"pair"`
	LastTick  time.Time `json:"last_tick,omitempty"`
	LastError string    `json:"last_error,omitempty"`
}

// Status 当前状态快照
func (k *Keeper) Status() Status {
	k.mu.Lock()
	defer k.mu.Unlock()
	return Status{
		State:     k.lifecycle.State().String(),
		Account:   k.opts.Account.Hex(),
		Pair:      k.opts.Pair.String(),
		LastTick:  k.lastTick,
		LastError: k.lastError,
	}
}

package keeper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/keeper/internal/domain"
	"github.com/betbot/keeper/internal/ports"
)

var (
	account = common.HexToAddress("0xaaaa")
	weth    = domain.Token{Name: "WETH", Address: common.HexToAddress("0x01"), Decimals: 18}
	dai     = domain.Token{Name: "DAI", Address: common.HexToAddress("0x02"), Decimals: 18}
	zrxTok  = common.HexToAddress("0x03")
	pair    = domain.Pair{Name: "WETH-DAI", Sell: weth, Buy: dai}

	tickTime = time.Unix(1_700_000_000, 0)
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func buyOrder(id byte, pay, buy string) domain.Order {
	return domain.Order{
		Maker: account, PayToken: dai.Address, BuyToken: weth.Address,
		PayAmount: d(pay), BuyAmount: d(buy),
		Expiration: tickTime.Unix() + 3600, Hash: common.Hash{id},
	}
}

func sellOrder(id byte, pay, buy string) domain.Order {
	return domain.Order{
		Maker: account, PayToken: weth.Address, BuyToken: dai.Address,
		PayAmount: d(pay), BuyAmount: d(buy),
		Expiration: tickTime.Unix() + 3600, Hash: common.Hash{id},
	}
}

type fakeBalances struct {
	mu       sync.Mutex
	eth      decimal.Decimal
	tokens   map[common.Address]decimal.Decimal
	err      error
	ethCalls atomic.Int32
}

func (f *fakeBalances) NativeBalance(context.Context, common.Address) (decimal.Decimal, error) {
	f.ethCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.eth, f.err
}

func (f *fakeBalances) TokenBalance(_ context.Context, token domain.Token, _ common.Address) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return decimal.Zero, f.err
	}
	return f.tokens[token.Address], nil
}

type fakeOrders struct {
	mu     sync.Mutex
	orders []domain.Order
	err    error
}

func (f *fakeOrders) OrdersByMaker(context.Context, common.Address) ([]domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Order(nil), f.orders...), f.err
}

// fakeExchange 记录所有调用
type fakeExchange struct {
	mu          sync.Mutex
	calls       []string
	cancelled   []common.Hash
	unavailable map[common.Hash]decimal.Decimal
	queried     []common.Hash
	cancelErrs  map[common.Hash]error
	readErrs    map[common.Hash]error
	failStep    string
	approved    []domain.Token
	expirations []int64

	inFlight, maxInFlight atomic.Int32
	cancelDelay           time.Duration
}

var _ ports.ExchangeGateway = (*fakeExchange)(nil)

func (f *fakeExchange) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	if f.failStep != "" && f.failStep == call {
		return errors.New(call + " failed")
	}
	return nil
}

func (f *fakeExchange) CreateOrder(_ context.Context, intent domain.OrderIntent, expiration int64) (domain.Order, error) {
	f.mu.Lock()
	f.expirations = append(f.expirations, expiration)
	f.mu.Unlock()
	if err := f.record("create"); err != nil {
		return domain.Order{}, err
	}
	return domain.Order{
		Maker: account, PayToken: pair.PayToken(intent.Side).Address, BuyToken: pair.BuyToken(intent.Side).Address,
		PayAmount: intent.PayAmount, BuyAmount: intent.BuyAmount, Expiration: expiration,
	}, nil
}

func (f *fakeExchange) CalculateFees(_ context.Context, o domain.Order) (domain.Order, error) {
	if err := f.record("fees"); err != nil {
		return domain.Order{}, err
	}
	o.MakerFee = d("0.1")
	return o, nil
}

func (f *fakeExchange) SignOrder(_ context.Context, o domain.Order) (domain.Order, error) {
	if err := f.record("sign"); err != nil {
		return domain.Order{}, err
	}
	if o.MakerFee.IsZero() {
		return domain.Order{}, errors.New("signed before fees")
	}
	o.Signature = &domain.Signature{V: 27}
	return o, nil
}

func (f *fakeExchange) SubmitOrder(_ context.Context, o domain.Order, _ ports.GasPrice) error {
	if !o.IsSigned() {
		return errors.New("submitted unsigned order")
	}
	return f.record(fmt.Sprintf("submit:%s", o.PayAmount))
}

func (f *fakeExchange) CancelOrder(_ context.Context, o domain.Order, gas ports.GasPrice) error {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		m := f.maxInFlight.Load()
		if n <= m || f.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}
	if f.cancelDelay > 0 {
		time.Sleep(f.cancelDelay)
	}
	if gas == nil {
		return errors.New("no gas strategy")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "cancel")
	if err := f.cancelErrs[o.Hash]; err != nil {
		return err
	}
	f.cancelled = append(f.cancelled, o.Hash)
	return nil
}

func (f *fakeExchange) UnavailableBuyAmount(_ context.Context, o domain.Order) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queried = append(f.queried, o.Hash)
	if err := f.readErrs[o.Hash]; err != nil {
		return decimal.Zero, err
	}
	return f.unavailable[o.Hash], nil
}

func (f *fakeExchange) Approve(_ context.Context, tokens []domain.Token, _ ports.GasPrice) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.approved = append(f.approved, tokens...)
	return nil
}

func (f *fakeExchange) snapshot() (calls []string, cancelled []common.Hash) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...), append([]common.Hash(nil), f.cancelled...)
}

func (f *fakeExchange) count(call string) int {
	calls, _ := f.snapshot()
	n := 0
	for _, c := range calls {
		if c == call {
			n++
		}
	}
	return n
}

type fakeFeed struct {
	price decimal.Decimal
	ok    bool
}

func (f fakeFeed) Price(context.Context) (decimal.Decimal, bool) { return f.price, f.ok }

// fakeBands 返回固定结果并记录入参
type fakeBands struct {
	mu          sync.Mutex
	cancellable []domain.Order
	intents     []domain.OrderIntent

	gotBuys, gotSells          []domain.Order
	gotBuyBal, gotSellBal      decimal.Decimal
	cancelCalls, newOrderCalls int
}

func (f *fakeBands) CancellableOrders(buys, sells []domain.Order, _ decimal.Decimal) []domain.Order {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelCalls++
	f.gotBuys, f.gotSells = buys, sells
	return f.cancellable
}

func (f *fakeBands) NewOrders(buys, sells []domain.Order, buyBal, sellBal decimal.Decimal, _ decimal.Decimal) []domain.OrderIntent {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.newOrderCalls++
	f.gotBuys, f.gotSells = buys, sells
	f.gotBuyBal, f.gotSellBal = buyBal, sellBal
	return f.intents
}

type bandsFunc func() (ports.Bands, error)

func (f bandsFunc) Bands() (ports.Bands, error) { return f() }

func staticBands(b *fakeBands) ports.BandsSource {
	return bandsFunc(func() (ports.Bands, error) { return b, nil })
}

type fixedGas struct{}

func (fixedGas) Price(time.Duration) *big.Int { return big.NewInt(1_000_000_000) }

// fixture 一组默认状态健康的依赖
type fixture struct {
	balances *fakeBalances
	orders   *fakeOrders
	exchange *fakeExchange
	feed     fakeFeed
	bands    *fakeBands
	opts     Options
}

func newFixture(orders ...domain.Order) *fixture {
	return &fixture{
		balances: &fakeBalances{
			eth: d("5"),
			tokens: map[common.Address]decimal.Decimal{
				dai.Address:  d("1000"),
				weth.Address: d("10"),
			},
		},
		orders:   &fakeOrders{orders: orders},
		exchange: &fakeExchange{unavailable: map[common.Hash]decimal.Decimal{}, cancelErrs: map[common.Hash]error{}},
		feed:     fakeFeed{price: d("100"), ok: true},
		bands:    &fakeBands{},
		opts: Options{
			Account:            account,
			Pair:               pair,
			MinEthBalance:      d("1"),
			OrderLifetime:      10 * time.Minute,
			ExpiryThreshold:    2 * time.Minute,
			TickInterval:       time.Millisecond,
			ShutdownRetryDelay: time.Millisecond,
			CancelConcurrency:  4,
		},
	}
}

func (f *fixture) deps() Deps {
	return Deps{
		Balances:  f.balances,
		Orders:    f.orders,
		Exchange:  f.exchange,
		PriceFeed: f.feed,
		Bands:     staticBands(f.bands),
		Gas:       fixedGas{},
	}
}

func (f *fixture) synchronizer() *Synchronizer {
	k, err := New(f.opts, f.deps(), testLog())
	if err != nil {
		panic(err)
	}
	s := k.Synchronizer()
	s.now = func() time.Time { return tickTime }
	return s
}

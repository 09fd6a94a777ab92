package exchange

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/keeper/internal/chain"
	"github.com/betbot/keeper/internal/domain"
	"github.com/betbot/keeper/internal/exchange/relayer"
	"github.com/betbot/keeper/internal/exchange/zrx"
	"github.com/betbot/keeper/internal/ports"
)

var (
	exchangeAddr = common.HexToAddress("0x12459c951127e0c374ff9105dda097662a027093")
	weth         = domain.Token{Name: "WETH", Address: common.HexToAddress("0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"), Decimals: 18}
	usdc         = domain.Token{Name: "USDC", Address: common.HexToAddress("0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"), Decimals: 6}
	pair         = domain.Pair{Name: "WETH-USDC", Sell: weth, Buy: usdc}
)

// fakeRelayer 内存中的 SRA v0 relayer
type fakeRelayer struct {
	mu     sync.Mutex
	orders []relayer.Order
}

func (f *fakeRelayer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/orders":
		f.mu.Lock()
		defer f.mu.Unlock()
		maker := common.HexToAddress(r.URL.Query().Get("maker"))
		out := []relayer.Order{}
		for _, o := range f.orders {
			if o.Maker == maker {
				out = append(out, o)
			}
		}
		_ = json.NewEncoder(w).Encode(out)
	case r.Method == http.MethodPost && r.URL.Path == "/fees":
		_ = json.NewEncoder(w).Encode(relayer.FeesResponse{FeeRecipient: common.HexToAddress("0xfe"), MakerFee: "0", TakerFee: "0"})
	case r.Method == http.MethodPost && r.URL.Path == "/order":
		var o relayer.Order
		if err := json.NewDecoder(r.Body).Decode(&o); err != nil || o.ECSignature == nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.orders = append(f.orders, o)
		f.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

type nopSender struct{}

func (nopSender) Send(context.Context, chain.Call, ports.GasPrice) error { return nil }

type zeroCaller struct{}

func (zeroCaller) CallContract(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
	return make([]byte, 32), nil
}

func newGateway(t *testing.T, url string) (*Gateway, *zrx.Exchange) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	erc20, err := chain.NewERC20(zeroCaller{})
	require.NoError(t, err)
	ex, err := zrx.New(zrx.Options{Address: exchangeAddr}, zeroCaller{}, nopSender{}, erc20, key, pair.Resolver(), nil)
	require.NoError(t, err)
	rc := relayer.NewClient(relayer.Options{URL: url, Exchange: exchangeAddr}, nil, pair.Resolver(), nil)
	return NewGateway(pair, ex, rc), ex
}

func TestGateway_CreatedOrderReadsBackAsLive(t *testing.T) {
	srv := httptest.NewServer(&fakeRelayer{})
	defer srv.Close()
	gw, ex := newGateway(t, srv.URL)
	ctx := context.Background()

	now := time.Now()
	intent := domain.OrderIntent{Side: domain.SideBuy, PayAmount: decimal.RequireFromString("2000"), BuyAmount: decimal.RequireFromString("1")}
	order, err := gw.CreateOrder(ctx, intent, now.Add(5*time.Minute).Unix())
	require.NoError(t, err)
	assert.Equal(t, usdc.Address, order.PayToken)
	assert.Equal(t, weth.Address, order.BuyToken)

	order, err = gw.CalculateFees(ctx, order)
	require.NoError(t, err)
	order, err = gw.SignOrder(ctx, order)
	require.NoError(t, err)
	require.NoError(t, gw.SubmitOrder(ctx, order, nil))

	orders, err := gw.OrdersByMaker(ctx, ex.Maker())
	require.NoError(t, err)
	require.Len(t, orders, 1)

	got := orders[0]
	assert.Equal(t, domain.SideBuy, pair.Classify(got))
	assert.Equal(t, order.Hash, ex.HashOrder(got))
	assert.True(t, ex.VerifySignature(got))

	unavailable, err := gw.UnavailableBuyAmount(ctx, got)
	require.NoError(t, err)
	got.UnavailableBuyAmount = unavailable
	assert.True(t, got.IsLive(now.Unix(), 0))
	assert.True(t, got.RemainingPayAmount().Equal(decimal.RequireFromString("2000")))
}

func TestGateway_CreateOrderRejectsBadIntents(t *testing.T) {
	gw, _ := newGateway(t, "http://127.0.0.1:1")
	_, err := gw.CreateOrder(context.Background(), domain.OrderIntent{Side: domain.SideNone, PayAmount: decimal.NewFromInt(1), BuyAmount: decimal.NewFromInt(1)}, 1)
	assert.Error(t, err)
	_, err = gw.CreateOrder(context.Background(), domain.OrderIntent{Side: domain.SideSell, PayAmount: decimal.Zero, BuyAmount: decimal.NewFromInt(1)}, 1)
	assert.Error(t, err)
}

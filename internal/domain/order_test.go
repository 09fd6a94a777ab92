package domain

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	weth  = Token{Name: "WETH", Address: common.HexToAddress("0x01"), Decimals: 18}
	dai   = Token{Name: "DAI", Address: common.HexToAddress("0x02"), Decimals: 18}
	other = common.HexToAddress("0x03")
	pair  = Pair{Name: "WETH-DAI", Sell: weth, Buy: dai}
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestPair_Classify(t *testing.T) {
	sell := Order{PayToken: weth.Address, BuyToken: dai.Address}
	buy := Order{PayToken: dai.Address, BuyToken: weth.Address}
	foreign := Order{PayToken: other, BuyToken: dai.Address}
	same := Order{PayToken: dai.Address, BuyToken: dai.Address}

	assert.Equal(t, SideSell, pair.Classify(sell))
	assert.Equal(t, SideBuy, pair.Classify(buy))
	assert.Equal(t, SideNone, pair.Classify(foreign))
	assert.Equal(t, SideNone, pair.Classify(same))
}

func TestPair_PartitionExcludesForeignOrders(t *testing.T) {
	orders := []Order{
		{PayToken: weth.Address, BuyToken: dai.Address, PayAmount: d("1")},
		{PayToken: dai.Address, BuyToken: weth.Address, PayAmount: d("100")},
		{PayToken: other, BuyToken: weth.Address, PayAmount: d("7")},
	}
	buys, sells := pair.Partition(orders)
	require.Len(t, buys, 1)
	require.Len(t, sells, 1)
	assert.True(t, TotalLocked(buys).Equal(d("100")))
	assert.True(t, TotalLocked(sells).Equal(d("1")))
}

func TestOrder_IsLive(t *testing.T) {
	now := int64(1_000_000)
	o := Order{BuyAmount: d("10"), Expiration: now + 100}

	assert.True(t, o.IsLive(now, 0))
	assert.True(t, o.IsLive(now, 99))
	assert.False(t, o.IsLive(now, 100), "expiring inside the threshold is not live")

	filled := o
	filled.UnavailableBuyAmount = d("10")
	assert.False(t, filled.IsLive(now, 0))

	partial := o
	partial.UnavailableBuyAmount = d("4")
	assert.True(t, partial.IsLive(now, 0))
}

func TestOrder_RemainingPayAmount(t *testing.T) {
	o := Order{PayAmount: d("2"), BuyAmount: d("400"), UnavailableBuyAmount: d("100")}
	assert.True(t, o.RemainingPayAmount().Equal(d("1.5")), o.RemainingPayAmount().String())

	o.UnavailableBuyAmount = d("500")
	assert.True(t, o.RemainingPayAmount().IsZero())
}

func TestOrderIntent_Price(t *testing.T) {
	sell := OrderIntent{Side: SideSell, PayAmount: d("2"), BuyAmount: d("200")}
	buy := OrderIntent{Side: SideBuy, PayAmount: d("300"), BuyAmount: d("3")}
	assert.True(t, sell.Price().Equal(d("100")))
	assert.True(t, buy.Price().Equal(d("100")))
}

func TestToken_WeiConversion(t *testing.T) {
	usdc := Token{Decimals: 6}
	assert.Equal(t, big.NewInt(1_500_000), usdc.ToWei(d("1.5")))
	assert.True(t, usdc.FromWei(big.NewInt(2_250_000)).Equal(d("2.25")))
	assert.Equal(t, big.NewInt(1), usdc.ToWei(d("0.0000019")), "truncates below the smallest unit")
}

package keeper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/keeper/internal/domain"
)

func TestDispatcher_CancelOrdersCollectsEveryFailure(t *testing.T) {
	orders := []domain.Order{buyOrder(1, "1", "1"), buyOrder(2, "1", "1"), buyOrder(3, "1", "1")}

	for _, serial := range []bool{false, true} {
		ex := &fakeExchange{cancelErrs: map[common.Hash]error{}}
		ex.cancelErrs[orders[0].Hash] = errors.New("reverted")
		ex.cancelErrs[orders[2].Hash] = errors.New("timeout")

		err := NewDispatcher(ex, fixedGas{}, serial, 2, time.Minute, testLog()).CancelOrders(context.Background(), orders)
		require.Error(t, err)
		assert.ErrorContains(t, err, "reverted")
		assert.ErrorContains(t, err, "timeout")

		_, cancelled := ex.snapshot()
		assert.Equal(t, hashes(orders[1]), cancelled)
	}
}

func TestDispatcher_ConcurrentCancellationIsBounded(t *testing.T) {
	var orders []domain.Order
	for i := byte(1); i <= 8; i++ {
		orders = append(orders, sellOrder(i, "1", "100"))
	}
	ex := &fakeExchange{cancelDelay: 10 * time.Millisecond}

	require.NoError(t, NewDispatcher(ex, fixedGas{}, false, 3, time.Minute, testLog()).CancelOrders(context.Background(), orders))

	_, cancelled := ex.snapshot()
	assert.ElementsMatch(t, hashes(orders...), cancelled)
	assert.LessOrEqual(t, ex.maxInFlight.Load(), int32(3))
	assert.Greater(t, ex.maxInFlight.Load(), int32(1))
}

func TestDispatcher_SerialCancellationRunsOneAtATime(t *testing.T) {
	orders := []domain.Order{sellOrder(1, "1", "100"), sellOrder(2, "1", "100"), sellOrder(3, "1", "100")}
	ex := &fakeExchange{cancelDelay: 5 * time.Millisecond}

	require.NoError(t, NewDispatcher(ex, fixedGas{}, true, 8, time.Minute, testLog()).CancelOrders(context.Background(), orders))

	_, cancelled := ex.snapshot()
	assert.Equal(t, hashes(orders...), cancelled)
	assert.Equal(t, int32(1), ex.maxInFlight.Load())
}

func TestDispatcher_CreateOrdersFailFast(t *testing.T) {
	ex := &fakeExchange{failStep: "sign"}
	intents := []domain.OrderIntent{
		{Side: domain.SideBuy, PayAmount: d("100"), BuyAmount: d("1")},
		{Side: domain.SideSell, PayAmount: d("1"), BuyAmount: d("100")},
	}

	err := NewDispatcher(ex, fixedGas{}, false, 0, time.Minute, testLog()).CreateOrders(context.Background(), intents, tickTime)
	require.Error(t, err)
	assert.ErrorContains(t, err, "sign failed")

	calls, _ := ex.snapshot()
	assert.Equal(t, []string{"create", "fees", "sign"}, calls, "nothing after the failing step")
}

func TestDispatcher_NothingToDo(t *testing.T) {
	ex := &fakeExchange{}
	disp := NewDispatcher(ex, fixedGas{}, false, 0, time.Minute, testLog())
	assert.NoError(t, disp.CancelOrders(context.Background(), nil))
	assert.NoError(t, disp.CreateOrders(context.Background(), nil, tickTime))
	calls, _ := ex.snapshot()
	assert.Empty(t, calls)
}

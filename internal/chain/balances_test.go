package chain

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/keeper/internal/domain"
)

func TestBalances_NativeAndToken(t *testing.T) {
	account := common.HexToAddress("0xaa")
	usdc := domain.Token{Name: "USDC", Address: common.HexToAddress("0xbb"), Decimals: 6}

	client := newFakeClient()
	client.balances[account] = new(big.Int).Mul(big.NewInt(5), big.NewInt(1e17)) // 0.5 ETH

	erc20, err := NewERC20(client)
	require.NoError(t, err)
	selector := erc20.abi.Methods["balanceOf"].ID
	client.callData = func(msg ethereum.CallMsg) ([]byte, error) {
		require.Equal(t, usdc.Address, *msg.To)
		require.Equal(t, selector, msg.Data[:4])
		return common.LeftPadBytes(big.NewInt(1_234_500_000).Bytes(), 32), nil
	}

	b := NewBalances(client, erc20)

	eth, err := b.NativeBalance(context.Background(), account)
	require.NoError(t, err)
	assert.True(t, eth.Equal(decimal.RequireFromString("0.5")), eth.String())

	bal, err := b.TokenBalance(context.Background(), usdc, account)
	require.NoError(t, err)
	assert.True(t, bal.Equal(decimal.RequireFromString("1234.5")), bal.String())
}

func TestERC20_AllowanceAndApprove(t *testing.T) {
	client := newFakeClient()
	erc20, err := NewERC20(client)
	require.NoError(t, err)
	client.callData = func(ethereum.CallMsg) ([]byte, error) {
		return common.LeftPadBytes(MaxUint256.Bytes(), 32), nil
	}

	allowance, err := erc20.Allowance(context.Background(), common.HexToAddress("0x1"), common.HexToAddress("0x2"), common.HexToAddress("0x3"))
	require.NoError(t, err)
	assert.Equal(t, 0, allowance.Cmp(MaxUint256))

	data, err := erc20.PackApprove(common.HexToAddress("0x3"), MaxUint256)
	require.NoError(t, err)
	assert.Len(t, data, 4+32+32)
	assert.Equal(t, erc20.abi.Methods["approve"].ID, data[:4])
}

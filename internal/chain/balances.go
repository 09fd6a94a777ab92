package chain

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/betbot/keeper/internal/domain"
)

// Balances 实时读取链上余额，实现 ports.BalanceSource
type Balances struct {
	client Client
	erc20  *ERC20
}

// NewBalances 创建余额读取器
func NewBalances(client Client, erc20 *ERC20) *Balances {
	return &Balances{client: client, erc20: erc20}
}

// NativeBalance ETH 余额（单位 ETH）
func (b *Balances) NativeBalance(ctx context.Context, account common.Address) (decimal.Decimal, error) {
	wei, err := b.client.BalanceAt(ctx, account, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("查询ETH余额失败: %w", err)
	}
	return decimal.NewFromBigInt(wei, -18), nil
}

// TokenBalance token 余额（按 token 精度换算）
func (b *Balances) TokenBalance(ctx context.Context, token domain.Token, account common.Address) (decimal.Decimal, error) {
	raw, err := b.erc20.BalanceOf(ctx, token.Address, account)
	if err != nil {
		return decimal.Zero, fmt.Errorf("查询%s余额失败: %w", token.Name, err)
	}
	return token.FromWei(raw), nil
}

package zrx

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/keeper/internal/chain"
	"github.com/betbot/keeper/internal/domain"
	"github.com/betbot/keeper/internal/ports"
)

// Sender 发送交易并等待回执（由 chain.Transactor 实现）
type Sender interface {
	Send(ctx context.Context, call chain.Call, gas ports.GasPrice) error
}

// Exchange 0x v1 Exchange 合约：订单构建、哈希、签名、链上撤单、授权
type Exchange struct {
	address common.Address
	proxy   common.Address

	abi    abi.ABI
	caller chain.Caller
	sender Sender
	erc20  *chain.ERC20
	key    *ecdsa.PrivateKey
	maker  common.Address
	tokens domain.TokenResolver
	log    *logrus.Entry
}

// Options Exchange 参数
type Options struct {
	Address            common.Address
	TokenTransferProxy common.Address
}

// New 创建 0x Exchange 客户端
func New(opts Options, caller chain.Caller, sender Sender, erc20 *chain.ERC20, key *ecdsa.PrivateKey, tokens domain.TokenResolver, log *logrus.Entry) (*Exchange, error) {
	parsed, err := abi.JSON(strings.NewReader(ExchangeABI))
	if err != nil {
		return nil, fmt.Errorf("解析0x Exchange ABI失败: %w", err)
	}
	if log == nil {
		log = logrus.WithField("component", "zrx")
	}
	return &Exchange{
		address: opts.Address,
		proxy:   opts.TokenTransferProxy,
		abi:     parsed,
		caller:  caller,
		sender:  sender,
		erc20:   erc20,
		key:     key,
		maker:   crypto.PubkeyToAddress(key.PublicKey),
		tokens:  tokens,
		log:     log,
	}, nil
}

// Address 合约地址
func (e *Exchange) Address() common.Address { return e.address }

// Maker 下单账户
func (e *Exchange) Maker() common.Address { return e.maker }

// CreateOrder 构建未签名订单（taker 与 fee 为空，随机 salt）
func (e *Exchange) CreateOrder(payToken common.Address, payAmount decimal.Decimal, buyToken common.Address, buyAmount decimal.Decimal, expiration int64) (domain.Order, error) {
	salt, err := randomSalt()
	if err != nil {
		return domain.Order{}, err
	}
	return domain.Order{
		ExchangeAddress: e.address,
		Maker:           e.maker,
		PayToken:        payToken,
		PayAmount:       payAmount,
		BuyToken:        buyToken,
		BuyAmount:       buyAmount,
		MakerFee:        decimal.Zero,
		TakerFee:        decimal.Zero,
		Expiration:      expiration,
		Salt:            salt,
	}, nil
}

func randomSalt() (*big.Int, error) {
	max := new(big.Int).Lsh(big.NewInt(1), 256)
	salt, err := rand.Int(rand.Reader, max)
	if err != nil {
		return nil, fmt.Errorf("生成salt失败: %w", err)
	}
	return salt, nil
}

// wei 把订单数量换算为链上整数
type orderWei struct {
	pay, buy, makerFee, takerFee *big.Int
}

// ZRX fee token 精度
const feeDecimals = 18

func (e *Exchange) toWei(o domain.Order) orderWei {
	fee := domain.Token{Decimals: feeDecimals}
	return orderWei{
		pay:      e.tokens(o.PayToken).ToWei(o.PayAmount),
		buy:      e.tokens(o.BuyToken).ToWei(o.BuyAmount),
		makerFee: fee.ToWei(o.MakerFee),
		takerFee: fee.ToWei(o.TakerFee),
	}
}

// HashOrder 0x v1 订单哈希：
// keccak256(exchange, maker, taker, makerToken, takerToken, feeRecipient,
// makerTokenAmount, takerTokenAmount, makerFee, takerFee, expiration, salt)，tightly packed
func (e *Exchange) HashOrder(o domain.Order) common.Hash {
	w := e.toWei(o)
	salt := o.Salt
	if salt == nil {
		salt = big.NewInt(0)
	}
	return crypto.Keccak256Hash(
		o.ExchangeAddress.Bytes(),
		o.Maker.Bytes(),
		o.Taker.Bytes(),
		o.PayToken.Bytes(),
		o.BuyToken.Bytes(),
		o.FeeRecipient.Bytes(),
		common.LeftPadBytes(w.pay.Bytes(), 32),
		common.LeftPadBytes(w.buy.Bytes(), 32),
		common.LeftPadBytes(w.makerFee.Bytes(), 32),
		common.LeftPadBytes(w.takerFee.Bytes(), 32),
		common.LeftPadBytes(big.NewInt(o.Expiration).Bytes(), 32),
		common.LeftPadBytes(salt.Bytes(), 32),
	)
}

// SignOrder 计算哈希并用 "\x19Ethereum Signed Message:\n32" 前缀签名，返回新的订单副本
func (e *Exchange) SignOrder(o domain.Order) (domain.Order, error) {
	if o.Maker != e.maker {
		return domain.Order{}, fmt.Errorf("订单 maker %s 不是当前账户 %s", o.Maker.Hex(), e.maker.Hex())
	}
	hash := e.HashOrder(o)
	sig, err := crypto.Sign(personalHash(hash), e.key)
	if err != nil {
		return domain.Order{}, fmt.Errorf("签名订单失败: %w", err)
	}
	signed := o
	signed.Hash = hash
	signed.Signature = &domain.Signature{
		V: sig[64] + 27,
		R: common.BytesToHash(sig[:32]),
		S: common.BytesToHash(sig[32:64]),
	}
	return signed, nil
}

// VerifySignature 校验订单签名是否来自 maker
func (e *Exchange) VerifySignature(o domain.Order) bool {
	if o.Signature == nil || o.Signature.V < 27 {
		return false
	}
	sig := make([]byte, 65)
	copy(sig[:32], o.Signature.R.Bytes())
	copy(sig[32:64], o.Signature.S.Bytes())
	sig[64] = o.Signature.V - 27
	pub, err := crypto.SigToPub(personalHash(e.HashOrder(o)), sig)
	if err != nil {
		return false
	}
	return crypto.PubkeyToAddress(*pub) == o.Maker
}

func personalHash(hash common.Hash) []byte {
	return crypto.Keccak256([]byte("\x19Ethereum Signed Message:\n32"), hash.Bytes())
}

// CancelOrder 链上撤销订单的全部剩余数量
func (e *Exchange) CancelOrder(ctx context.Context, o domain.Order, gas ports.GasPrice) error {
	w := e.toWei(o)
	salt := o.Salt
	if salt == nil {
		salt = big.NewInt(0)
	}
	addresses := [5]common.Address{o.Maker, o.Taker, o.PayToken, o.BuyToken, o.FeeRecipient}
	values := [6]*big.Int{w.pay, w.buy, w.makerFee, w.takerFee, big.NewInt(o.Expiration), salt}
	data, err := e.abi.Pack("cancelOrder", addresses, values, w.buy)
	if err != nil {
		return fmt.Errorf("打包cancelOrder参数失败: %w", err)
	}
	e.log.Infof("🗑️ 撤单 %s", o)
	return e.sender.Send(ctx, chain.Call{Name: "cancelOrder", To: e.address, Data: data}, gas)
}

// UnavailableBuyAmount 已成交 + 已撤销的 taker token 数量
func (e *Exchange) UnavailableBuyAmount(ctx context.Context, o domain.Order) (decimal.Decimal, error) {
	hash := o.Hash
	if hash == (common.Hash{}) {
		hash = e.HashOrder(o)
	}
	data, err := e.abi.Pack("getUnavailableTakerTokenAmount", hash)
	if err != nil {
		return decimal.Zero, fmt.Errorf("打包getUnavailableTakerTokenAmount参数失败: %w", err)
	}
	result, err := e.caller.CallContract(ctx, ethereum.CallMsg{To: &e.address, Data: data}, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("调用getUnavailableTakerTokenAmount失败: %w", err)
	}
	var out *big.Int
	if err := e.abi.UnpackIntoInterface(&out, "getUnavailableTakerTokenAmount", result); err != nil {
		return decimal.Zero, fmt.Errorf("解析getUnavailableTakerTokenAmount结果失败: %w", err)
	}
	return e.tokens(o.BuyToken).FromWei(out), nil
}

// approveThreshold 授权额度低于 max/2 时重新授权
var approveThreshold = new(big.Int).Rsh(chain.MaxUint256, 1)

// Approve 授权 token transfer proxy 无限额度（已足够的跳过）
func (e *Exchange) Approve(ctx context.Context, tokens []domain.Token, gas ports.GasPrice) error {
	for _, token := range tokens {
		allowance, err := e.erc20.Allowance(ctx, token.Address, e.maker, e.proxy)
		if err != nil {
			return fmt.Errorf("查询%s授权失败: %w", token.Name, err)
		}
		if allowance.Cmp(approveThreshold) >= 0 {
			e.log.Infof("%s 已授权给 %s，跳过", token.Name, e.proxy.Hex())
			continue
		}
		data, err := e.erc20.PackApprove(e.proxy, chain.MaxUint256)
		if err != nil {
			return err
		}
		e.log.Infof("🔓 授权 %s 给 token transfer proxy %s", token.Name, e.proxy.Hex())
		if err := e.sender.Send(ctx, chain.Call{Name: "approve", To: token.Address, Data: data}, gas); err != nil {
			return fmt.Errorf("授权%s失败: %w", token.Name, err)
		}
	}
	return nil
}

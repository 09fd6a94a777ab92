package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"

	"github.com/betbot/keeper/internal/metrics"
	"github.com/betbot/keeper/internal/ports"
)

// ErrReverted 交易已上链但执行失败
var ErrReverted = errors.New("transaction reverted")

// Call 一笔待发送的合约调用
type Call struct {
	Name  string // 日志用，例如 "cancelOrder"
	To    common.Address
	Data  []byte
	Value *big.Int
}

// TransactorOptions 交易发送参数
type TransactorOptions struct {
	ChainID      *big.Int
	PollInterval time.Duration // 轮询回执间隔
	Timeout      time.Duration // 等待上链的最长时间，0 表示只受 ctx 约束
	GasMarginPct uint64        // gas limit 在估算值上增加的百分比，默认 20
}

// Transactor 签名、发送并跟踪交易。
//
// nonce 分配与发送在同一把锁内完成，多个 goroutine 并发发送也不会拿到相同 nonce；
// 等回执和提价在锁外进行。未确认期间按 gas 策略 Price(elapsed) 以相同 nonce 重发更高 gas 的替换交易。
type Transactor struct {
	client Client
	key    *ecdsa.PrivateKey
	from   common.Address
	signer ethtypes.Signer
	opts   TransactorOptions
	log    *logrus.Entry
	now    func() time.Time

	mu        sync.Mutex
	nextNonce uint64
	hasNonce  bool
}

// NewTransactor 创建交易发送器
func NewTransactor(client Client, key *ecdsa.PrivateKey, opts TransactorOptions, log *logrus.Entry) (*Transactor, error) {
	if opts.ChainID == nil {
		return nil, fmt.Errorf("chain: chain id is required")
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.GasMarginPct == 0 {
		opts.GasMarginPct = 20
	}
	if log == nil {
		log = logrus.WithField("component", "transactor")
	}
	return &Transactor{
		client: client,
		key:    key,
		from:   crypto.PubkeyToAddress(key.PublicKey),
		signer: ethtypes.NewEIP155Signer(opts.ChainID),
		opts:   opts,
		log:    log,
		now:    time.Now,
	}, nil
}

// From 发送账户地址
func (t *Transactor) From() common.Address { return t.from }

// Transact 发送交易并等待回执
func (t *Transactor) Transact(ctx context.Context, call Call, gas ports.GasPrice) (*ethtypes.Receipt, error) {
	if t.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.opts.Timeout)
		defer cancel()
	}
	value := call.Value
	if value == nil {
		value = big.NewInt(0)
	}

	gasLimit, err := t.client.EstimateGas(ctx, ethereum.CallMsg{
		From:  t.from,
		To:    &call.To,
		Data:  call.Data,
		Value: value,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: 估算gas失败: %w", call.Name, err)
	}
	gasLimit = gasLimit * (100 + t.opts.GasMarginPct) / 100

	tx, err := t.sendNew(ctx, call, value, gasLimit, gas)
	if err != nil {
		metrics.TxFailed.Add(1)
		return nil, fmt.Errorf("%s: %w", call.Name, err)
	}
	metrics.TxSent.Add(1)

	receipt, err := t.await(ctx, call, tx, gas)
	if err != nil {
		metrics.TxFailed.Add(1)
		if !errors.Is(err, ErrReverted) {
			// 交易可能被节点丢弃，下一笔从节点重新读取 nonce
			t.resetNonce()
		}
		return nil, fmt.Errorf("%s: %w", call.Name, err)
	}
	return receipt, nil
}

// sendNew 分配 nonce 并发送第一笔交易（持锁）
func (t *Transactor) sendNew(ctx context.Context, call Call, value *big.Int, gasLimit uint64, gas ports.GasPrice) (*ethtypes.Transaction, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	pending, err := t.client.PendingNonceAt(ctx, t.from)
	if err != nil {
		return nil, fmt.Errorf("获取nonce失败: %w", err)
	}
	nonce := pending
	if t.hasNonce && t.nextNonce > nonce {
		nonce = t.nextNonce
	}

	price, err := t.gasPrice(ctx, gas, 0)
	if err != nil {
		return nil, err
	}

	tx, err := t.signAndSend(ctx, nonce, call, value, gasLimit, price)
	if err != nil {
		return nil, err
	}
	t.nextNonce = nonce + 1
	t.hasNonce = true

	t.log.WithFields(logrus.Fields{
		"tx":    tx.Hash().Hex(),
		"nonce": nonce,
		"gas":   price.String(),
	}).Infof("📤 已发送交易 %s", call.Name)
	return tx, nil
}

func (t *Transactor) resetNonce() {
	t.mu.Lock()
	t.hasNonce = false
	t.mu.Unlock()
}

func (t *Transactor) signAndSend(ctx context.Context, nonce uint64, call Call, value *big.Int, gasLimit uint64, price *big.Int) (*ethtypes.Transaction, error) {
	tx := ethtypes.NewTransaction(nonce, call.To, value, gasLimit, price, call.Data)
	signed, err := ethtypes.SignTx(tx, t.signer, t.key)
	if err != nil {
		return nil, fmt.Errorf("签名交易失败: %w", err)
	}
	if err := t.client.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("发送交易失败: %w", err)
	}
	return signed, nil
}

// gasPrice 策略返回 nil 时使用节点建议价格
func (t *Transactor) gasPrice(ctx context.Context, gas ports.GasPrice, elapsed time.Duration) (*big.Int, error) {
	if gas != nil {
		if p := gas.Price(elapsed); p != nil {
			return p, nil
		}
	}
	p, err := t.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("获取gas价格失败: %w", err)
	}
	return p, nil
}

// await 轮询回执；所有已发送的替换交易都在跟踪范围内，任何一笔上链即结束
func (t *Transactor) await(ctx context.Context, call Call, first *ethtypes.Transaction, gas ports.GasPrice) (*ethtypes.Receipt, error) {
	start := t.now()
	sent := []*ethtypes.Transaction{first}
	lastPrice := first.GasPrice()

	ticker := time.NewTicker(t.opts.PollInterval)
	defer ticker.Stop()

	for {
		for _, tx := range sent {
			receipt, err := t.client.TransactionReceipt(ctx, tx.Hash())
			if err == nil && receipt != nil {
				if receipt.Status != ethtypes.ReceiptStatusSuccessful {
					return receipt, fmt.Errorf("%w: %s", ErrReverted, tx.Hash().Hex())
				}
				t.log.WithField("tx", tx.Hash().Hex()).Infof("✅ 交易已确认 %s (block=%v)", call.Name, receipt.BlockNumber)
				return receipt, nil
			}
			if err != nil && !errors.Is(err, ethereum.NotFound) {
				t.log.WithField("tx", tx.Hash().Hex()).Warnf("查询交易回执失败: %v", err)
			}
		}

		if gas != nil {
			if p := gas.Price(t.now().Sub(start)); p != nil && p.Cmp(lastPrice) > 0 {
				last := sent[len(sent)-1]
				replacement, err := t.signAndSend(ctx, last.Nonce(), call, last.Value(), last.Gas(), p)
				if err != nil {
					// 原交易可能已经上链（nonce too low），继续等回执
					t.log.Warnf("发送替换交易失败 %s (nonce=%d gas=%s): %v", call.Name, last.Nonce(), p, err)
				} else {
					metrics.TxReplaced.Add(1)
					t.log.WithFields(logrus.Fields{
						"tx":    replacement.Hash().Hex(),
						"nonce": replacement.Nonce(),
						"gas":   p.String(),
					}).Infof("⛽ 未确认，提高 gas 重发 %s", call.Name)
					sent = append(sent, replacement)
				}
				lastPrice = p
			}
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("等待交易确认中止: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// Send 发送交易并等待确认，只关心成败
func (t *Transactor) Send(ctx context.Context, call Call, gas ports.GasPrice) error {
	_, err := t.Transact(ctx, call, gas)
	return err
}

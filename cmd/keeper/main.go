package main

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/betbot/keeper/internal/bands"
	"github.com/betbot/keeper/internal/chain"
	"github.com/betbot/keeper/internal/domain"
	"github.com/betbot/keeper/internal/exchange"
	"github.com/betbot/keeper/internal/exchange/relayer"
	"github.com/betbot/keeper/internal/exchange/zrx"
	"github.com/betbot/keeper/internal/gas"
	"github.com/betbot/keeper/internal/keeper"
	"github.com/betbot/keeper/internal/metrics"
	"github.com/betbot/keeper/internal/pricefeed"
	"github.com/betbot/keeper/pkg/config"
	"github.com/betbot/keeper/pkg/logger"
	"github.com/betbot/keeper/pkg/ratelimit"
	"github.com/betbot/keeper/pkg/secretstore"
)

// secretEnvPrefix 与 secret-import 写入 .env 条目时的默认前缀一致
const secretEnvPrefix = "env/"

func main() {
	configPath := flag.String("config", "yml/keeper.yaml", "配置文件路径（.yaml/.yml）")
	envFile := flag.String("env", ".env", ".env 文件路径（不存在则忽略）")
	flag.Parse()

	cfg, err := config.Load(*configPath, *envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	log.Infof("使用配置文件: %s", *configPath)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Errorf("keeper 异常退出: %v", err)
		os.Exit(1)
	}
	log.Info("keeper 已退出")
}

func run(ctx context.Context, cfg *config.Config, log *logrus.Logger) error {
	account := common.HexToAddress(cfg.Account.Address)
	key, err := loadSecrets(cfg, account)
	if err != nil {
		return err
	}

	dialCtx, cancelDial := context.WithTimeout(ctx, cfg.RPC.Timeout)
	client, err := chain.Dial(dialCtx, cfg.RPC.URL)
	if err != nil {
		cancelDial()
		return err
	}
	defer client.Close()
	chainID, err := client.ChainID(dialCtx)
	cancelDial()
	if err != nil {
		return fmt.Errorf("查询 chain id 失败: %w", err)
	}
	log.Infof("🔗 已连接节点 %s (chain id %s)", cfg.RPC.URL, chainID)

	transactor, err := chain.NewTransactor(client, key, chain.TransactorOptions{
		ChainID:      chainID,
		PollInterval: cfg.RPC.Poll,
		Timeout:      cfg.RPC.TxTimeout,
	}, logger.Component(log, "transactor"))
	if err != nil {
		return err
	}
	erc20, err := chain.NewERC20(client)
	if err != nil {
		return err
	}

	pair := buildPair(cfg.Pair)
	ex, err := zrx.New(zrx.Options{
		Address:            common.HexToAddress(cfg.Exchange.Address),
		TokenTransferProxy: common.HexToAddress(cfg.Exchange.TokenTransferProxy),
	}, client, transactor, erc20, key, pair.Resolver(), logger.Component(log, "zrx"))
	if err != nil {
		return err
	}

	var limiter ratelimit.Limiter = ratelimit.Unlimited{}
	if cfg.Relayer.RateLimit > 0 {
		limiter = ratelimit.NewTokenBucket(cfg.Relayer.Burst, cfg.Relayer.RateLimit)
	}
	rc := relayer.NewClient(relayer.Options{
		URL:      cfg.Relayer.URL,
		APIKey:   cfg.Relayer.APIKey,
		Timeout:  cfg.Relayer.Timeout,
		Exchange: ex.Address(),
	}, limiter, pair.Resolver(), logger.Component(log, "relayer"))
	gateway := exchange.NewGateway(pair, ex, rc)

	gasWei, err := cfg.Gas.Wei()
	if err != nil {
		return err
	}
	gasStrategy, err := gas.FromConfig(gas.Config{
		Price:         gasWei.Price,
		Increase:      gasWei.Increase,
		IncreaseEvery: cfg.Gas.IncreaseEvery,
		Max:           gasWei.Max,
	})
	if err != nil {
		return err
	}
	log.Infof("⛽ gas 策略: %v", gasStrategy)

	// 价格源与状态服务在撤单完成后才关闭
	bgCtx, cancelBg := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelBg()

	feed, err := pricefeed.Open(bgCtx, cfg.PriceFeed.Source, cfg.PriceFeed.Expiry, logger.Component(log, "pricefeed"))
	if err != nil {
		return err
	}

	k, err := keeper.New(keeper.Options{
		Account:            account,
		Pair:               pair,
		MinEthBalance:      cfg.MinEthBalance,
		OrderLifetime:      cfg.Order.Lifetime,
		ExpiryThreshold:    cfg.Order.ExpiryThreshold,
		TickInterval:       cfg.TickInterval,
		InitialDelay:       cfg.InitialDelay,
		ShutdownRetryDelay: cfg.ShutdownRetryDelay,
		SerialCancel:       cfg.CancelMode == config.CancelSerial,
		CancelConcurrency:  cfg.CancelConcurrency,
	}, keeper.Deps{
		Balances:  chain.NewBalances(client, erc20),
		Orders:    gateway,
		Exchange:  gateway,
		PriceFeed: feed,
		Bands:     bands.NewFileSource(cfg.BandsFile, logger.Component(log, "bands")),
		Gas:       gasStrategy,
	}, logger.Component(log, "keeper"))
	if err != nil {
		return err
	}

	if cfg.Metrics.Listen != "" {
		if _, err := metrics.StartAsync(bgCtx, cfg.Metrics.Listen, func() any { return k.Status() }, logger.Component(log, "metrics")); err != nil {
			return fmt.Errorf("启动状态服务失败: %w", err)
		}
	}

	return k.Run(ctx)
}

// loadSecrets 从 keystore 文件或 badger 加密库读取私钥，并核对账户地址；
// 配置了 secret_db 且环境变量中没有 relayer API key 时，从库中 env/ 前缀下补齐。
func loadSecrets(cfg *config.Config, account common.Address) (*ecdsa.PrivateKey, error) {
	var key *ecdsa.PrivateKey
	if cfg.Account.KeystoreFile != "" {
		raw, err := os.ReadFile(cfg.Account.KeystoreFile)
		if err != nil {
			return nil, fmt.Errorf("读取 keystore 失败: %w", err)
		}
		k, err := keystore.DecryptKey(raw, cfg.Account.KeystorePassword)
		if err != nil {
			return nil, fmt.Errorf("解密 keystore 失败: %w", err)
		}
		if k.Address != account {
			return nil, fmt.Errorf("keystore 地址 %s 与 account.address %s 不一致", k.Address.Hex(), account.Hex())
		}
		key = k.PrivateKey
	}
	if cfg.Account.SecretDB == "" {
		return key, nil
	}

	encKey, err := secretstore.ParseKey(cfg.Account.SecretKey)
	if err != nil {
		return nil, err
	}
	store, err := secretstore.Open(secretstore.OpenOptions{Path: cfg.Account.SecretDB, EncryptionKey: encKey, ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("打开 secret db 失败: %w", err)
	}
	defer store.Close()

	if key == nil {
		if key, err = store.PrivateKey(account); err != nil {
			return nil, fmt.Errorf("读取私钥失败: %w", err)
		}
	}
	if cfg.Relayer.APIKey == "" {
		apiKey, err := store.GetString(secretEnvPrefix + config.EnvRelayerAPIKey)
		switch {
		case err == nil:
			cfg.Relayer.APIKey = apiKey
		case !errors.Is(err, secretstore.ErrNotFound):
			return nil, fmt.Errorf("读取 relayer API key 失败: %w", err)
		}
	}
	return key, nil
}

func buildPair(cfg config.PairConfig) domain.Pair {
	token := func(t config.TokenConfig) domain.Token {
		name := t.Name
		if name == "" {
			name = common.HexToAddress(t.Address).Hex()
		}
		return domain.Token{Name: name, Address: common.HexToAddress(t.Address), Decimals: t.Decimals}
	}
	p := domain.Pair{Name: cfg.Name, Buy: token(cfg.BuyToken), Sell: token(cfg.SellToken)}
	if p.Name == "" {
		p.Name = p.Sell.Name + "-" + p.Buy.Name
	}
	return p
}

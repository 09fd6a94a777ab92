package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/betbot/keeper/pkg/logger"
)

// 敏感信息只从环境变量（或 .env）读取，不写进 YAML
const (
	EnvKeystorePassword = "KEEPER_KEYSTORE_PASSWORD"
	EnvRelayerAPIKey    = "KEEPER_RELAYER_API_KEY"
	EnvSecretKey        = "KEEPER_SECRET_KEY"
	EnvRPCURL           = "KEEPER_RPC_URL"
)

// CancelMode 撤单调度方式
type CancelMode string

const (
	CancelConcurrent CancelMode = "concurrent"
	CancelSerial     CancelMode = "serial"
)

// RPCConfig 以太坊节点
type RPCConfig struct {
	URL       string        `yaml:"url"`
	Timeout   time.Duration `yaml:"timeout"`
	TxTimeout time.Duration `yaml:"tx_timeout"` // 等待交易上链的最长时间
	Poll      time.Duration `yaml:"poll"`       // 轮询回执的间隔
}

// AccountConfig 交易账户。私钥来源二选一：keystore 文件（+ 密码），或 badger 加密库
type AccountConfig struct {
	Address      string `yaml:"address"`
	KeystoreFile string `yaml:"keystore_file"`
	PasswordFile string `yaml:"password_file"`
	SecretDB     string `yaml:"secret_db"`

	// 以下来自环境变量
	KeystorePassword string `yaml:"-"`
	SecretKey        string `yaml:"-"`
}

// ExchangeConfig 0x 合约地址
type ExchangeConfig struct {
	Address            string `yaml:"address"`
	TokenTransferProxy string `yaml:"token_transfer_proxy"`
}

// RelayerConfig SRA v0 relayer
type RelayerConfig struct {
	URL       string        `yaml:"url"`
	Timeout   time.Duration `yaml:"timeout"`
	RateLimit float64       `yaml:"rate_limit"` // 每秒请求数，0 表示不限制
	Burst     int           `yaml:"burst"`

	APIKey string `yaml:"-"`
}

// TokenConfig ERC-20 token
type TokenConfig struct {
	Name     string `yaml:"name"`
	Address  string `yaml:"address"`
	Decimals int32  `yaml:"decimals"`
}

// PairConfig 交易对：sell_token 为卖单支付的 token，buy_token 为买单支付的 token
type PairConfig struct {
	Name      string      `yaml:"name"`
	BuyToken  TokenConfig `yaml:"buy_token"`
	SellToken TokenConfig `yaml:"sell_token"`
}

// PriceFeedConfig 价格源：fixed:<n>、http(s)://...、ws(s)://...
type PriceFeedConfig struct {
	Source string        `yaml:"source"`
	Expiry time.Duration `yaml:"expiry"`
}

// OrderConfig 订单参数
type OrderConfig struct {
	Lifetime        time.Duration `yaml:"lifetime"`         // 新订单过期时间 = tick 时间 + lifetime
	ExpiryThreshold time.Duration `yaml:"expiry_threshold"` // 剩余有效期不超过该值的订单视为不再存活
}

// GasConfig gas 价格（单位 wei，字符串避免精度问题）
type GasConfig struct {
	Price         string        `yaml:"price"`
	Increase      string        `yaml:"increase"`
	IncreaseEvery time.Duration `yaml:"increase_every"`
	Max           string        `yaml:"max"`
}

// MetricsConfig 状态/指标 HTTP 服务
type MetricsConfig struct {
	Listen string `yaml:"listen"` // 为空则不启动
}

// Config 应用配置
type Config struct {
	RPC       RPCConfig       `yaml:"rpc"`
	Account   AccountConfig   `yaml:"account"`
	Exchange  ExchangeConfig  `yaml:"exchange"`
	Relayer   RelayerConfig   `yaml:"relayer"`
	Pair      PairConfig      `yaml:"pair"`
	BandsFile string          `yaml:"bands_file"`
	PriceFeed PriceFeedConfig `yaml:"price_feed"`
	Order     OrderConfig     `yaml:"order"`
	Gas       GasConfig       `yaml:"gas"`

	MinEthBalance decimal.Decimal `yaml:"min_eth_balance"`

	TickInterval       time.Duration `yaml:"tick_interval"`
	InitialDelay       time.Duration `yaml:"initial_delay"`
	ShutdownRetryDelay time.Duration `yaml:"shutdown_retry_delay"`

	CancelMode        CancelMode `yaml:"cancel_mode"`
	CancelConcurrency int        `yaml:"cancel_concurrency"`

	Log     logger.Config `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// Default 默认配置
func Default() *Config {
	return &Config{
		RPC:       RPCConfig{URL: "http://localhost:8545", Timeout: 10 * time.Second, TxTimeout: 10 * time.Minute, Poll: 2 * time.Second},
		Relayer:   RelayerConfig{Timeout: 9500 * time.Millisecond, RateLimit: 5, Burst: 10},
		PriceFeed: PriceFeedConfig{Expiry: 120 * time.Second},
		Gas:       GasConfig{IncreaseEvery: 120 * time.Second},
		Pair: PairConfig{
			BuyToken:  TokenConfig{Decimals: 18},
			SellToken: TokenConfig{Decimals: 18},
		},
		MinEthBalance:      decimal.Zero,
		TickInterval:       3 * time.Second,
		InitialDelay:       10 * time.Second,
		ShutdownRetryDelay: 5 * time.Second,
		CancelMode:         CancelConcurrent,
		CancelConcurrency:  8,
		Log:                logger.DefaultConfig(),
	}
}

// Load 加载 .env（可选）与 YAML 配置文件，应用环境变量覆盖并校验
func Load(path, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("加载 .env 失败 %s: %w", envFile, err)
		}
	}

	cfg := Default()
	if err := loadConfigFile(path, cfg); err != nil {
		return nil, fmt.Errorf("加载配置文件失败 %s: %w", path, err)
	}
	cfg.applyEnv()

	if cfg.Account.PasswordFile != "" && cfg.Account.KeystorePassword == "" {
		pw, err := readPassword(cfg.Account.PasswordFile)
		if err != nil {
			return nil, err
		}
		cfg.Account.KeystorePassword = pw
	}

	// bands 文件相对配置文件所在目录
	if cfg.BandsFile != "" && !filepath.IsAbs(cfg.BandsFile) {
		cfg.BandsFile = filepath.Join(filepath.Dir(path), cfg.BandsFile)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}
	return cfg, nil
}

func loadConfigFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("读取配置文件失败: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
	default:
		return fmt.Errorf("不支持的配置文件格式: %s (支持 .yaml, .yml)", path)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("解析 YAML 配置文件失败: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Account.KeystorePassword = getEnv(EnvKeystorePassword, c.Account.KeystorePassword)
	c.Account.SecretKey = getEnv(EnvSecretKey, c.Account.SecretKey)
	c.Relayer.APIKey = getEnv(EnvRelayerAPIKey, c.Relayer.APIKey)
	c.RPC.URL = getEnv(EnvRPCURL, c.RPC.URL)
}

// readPassword 读取密码文件，去掉每行结尾的空白后拼接
func readPassword(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("读取密码文件失败: %w", err)
	}
	var sb strings.Builder
	for _, line := range strings.Split(string(b), "\n") {
		sb.WriteString(strings.TrimRight(line, " \t\r"))
	}
	return sb.String(), nil
}

// Validate 验证配置
func (c *Config) Validate() error {
	if !common.IsHexAddress(c.Account.Address) {
		return fmt.Errorf("account.address 无效: %q", c.Account.Address)
	}
	if c.Account.KeystoreFile == "" && c.Account.SecretDB == "" {
		return fmt.Errorf("account.keystore_file 与 account.secret_db 至少配置一个")
	}
	if c.Account.SecretDB != "" && c.Account.KeystoreFile == "" && c.Account.SecretKey == "" {
		return fmt.Errorf("使用 secret_db 时必须设置 %s", EnvSecretKey)
	}
	if !common.IsHexAddress(c.Exchange.Address) {
		return fmt.Errorf("exchange.address 无效: %q", c.Exchange.Address)
	}
	if !common.IsHexAddress(c.Exchange.TokenTransferProxy) {
		return fmt.Errorf("exchange.token_transfer_proxy 无效: %q", c.Exchange.TokenTransferProxy)
	}
	if c.RPC.URL == "" {
		return fmt.Errorf("rpc.url 不能为空")
	}
	if c.RPC.TxTimeout <= 0 || c.RPC.Poll <= 0 {
		return fmt.Errorf("rpc.tx_timeout 与 rpc.poll 必须大于 0")
	}
	if c.Relayer.URL == "" {
		return fmt.Errorf("relayer.url 不能为空")
	}
	if c.Relayer.RateLimit < 0 {
		return fmt.Errorf("relayer.rate_limit 不能为负数")
	}
	for name, tok := range map[string]TokenConfig{"buy_token": c.Pair.BuyToken, "sell_token": c.Pair.SellToken} {
		if !common.IsHexAddress(tok.Address) {
			return fmt.Errorf("pair.%s.address 无效: %q", name, tok.Address)
		}
		if tok.Decimals < 0 || tok.Decimals > 36 {
			return fmt.Errorf("pair.%s.decimals 超出范围: %d", name, tok.Decimals)
		}
	}
	if strings.EqualFold(c.Pair.BuyToken.Address, c.Pair.SellToken.Address) {
		return fmt.Errorf("pair.buy_token 与 pair.sell_token 不能相同")
	}
	if c.BandsFile == "" {
		return fmt.Errorf("bands_file 不能为空")
	}
	if c.PriceFeed.Source == "" {
		return fmt.Errorf("price_feed.source 不能为空")
	}
	if c.PriceFeed.Expiry <= 0 {
		return fmt.Errorf("price_feed.expiry 必须大于 0")
	}
	if c.Order.Lifetime <= 0 {
		return fmt.Errorf("order.lifetime 必须大于 0")
	}
	if c.Order.ExpiryThreshold < 0 {
		return fmt.Errorf("order.expiry_threshold 不能为负数")
	}
	if c.MinEthBalance.IsNegative() {
		return fmt.Errorf("min_eth_balance 不能为负数")
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("tick_interval 必须大于 0")
	}
	if c.InitialDelay < 0 {
		return fmt.Errorf("initial_delay 不能为负数")
	}
	if c.ShutdownRetryDelay <= 0 {
		return fmt.Errorf("shutdown_retry_delay 必须大于 0")
	}
	switch c.CancelMode {
	case CancelConcurrent, CancelSerial:
	default:
		return fmt.Errorf("未知的 cancel_mode: %q", c.CancelMode)
	}
	if c.CancelConcurrency <= 0 {
		return fmt.Errorf("cancel_concurrency 必须大于 0")
	}
	if _, err := c.Gas.Wei(); err != nil {
		return err
	}
	return nil
}

// GasWei 解析后的 gas 配置
type GasWei struct {
	Price    *big.Int
	Increase *big.Int
	Max      *big.Int
}

// Wei 解析 gas 配置中的 wei 字符串（空字符串为 nil）
func (g GasConfig) Wei() (GasWei, error) {
	var out GasWei
	var err error
	if out.Price, err = parseWei("gas.price", g.Price); err != nil {
		return out, err
	}
	if out.Increase, err = parseWei("gas.increase", g.Increase); err != nil {
		return out, err
	}
	if out.Max, err = parseWei("gas.max", g.Max); err != nil {
		return out, err
	}
	if out.Increase != nil && g.IncreaseEvery <= 0 {
		return out, fmt.Errorf("gas.increase_every 必须大于 0")
	}
	return out, nil
}

func parseWei(field, s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("%s 必须是非负整数（wei）: %q", field, s)
	}
	return v, nil
}

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

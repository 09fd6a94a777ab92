package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
rpc:
  url: http://node:8545
account:
  address: "0x00000000000000000000000000000000000000aa"
  keystore_file: keystore.json
  password_file: %s
exchange:
  address: "0x12459c951127e0c374ff9105dda097662a027093"
  token_transfer_proxy: "0x8da0d80f5007ef1e431dd2127178d224e32c2ef4"
relayer:
  url: https://relayer.example/0x/v0
pair:
  name: WETH-DAI
  sell_token:
    name: WETH
    address: "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"
  buy_token:
    name: USDC
    address: "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"
    decimals: 6
bands_file: bands.yaml
price_feed:
  source: "fixed:250.5"
order:
  lifetime: 5m
  expiry_threshold: 30s
min_eth_balance: 0.25
gas:
  price: "20000000000"
  increase: "1000000000"
  max: "50000000000"
cancel_mode: serial
`

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	pwFile := filepath.Join(dir, "password.txt")
	require.NoError(t, os.WriteFile(pwFile, []byte("hunter2  \n"), 0o600))
	path := filepath.Join(dir, "keeper.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf(sampleYAML, pwFile)), 0o600))
	return path
}

func TestLoad_AppliesDefaultsFileAndEnv(t *testing.T) {
	path := writeConfig(t)
	envFile := filepath.Join(filepath.Dir(path), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte(EnvRelayerAPIKey+"=from-dotenv\n"), 0o600))
	t.Setenv(EnvRelayerAPIKey, "")
	os.Unsetenv(EnvRelayerAPIKey)
	t.Setenv(EnvKeystorePassword, "")

	cfg, err := Load(path, envFile)
	require.NoError(t, err)

	assert.Equal(t, "http://node:8545", cfg.RPC.URL)
	assert.Equal(t, 3*time.Second, cfg.TickInterval)
	assert.Equal(t, 10*time.Second, cfg.InitialDelay)
	assert.Equal(t, 5*time.Second, cfg.ShutdownRetryDelay)
	assert.Equal(t, 120*time.Second, cfg.PriceFeed.Expiry)
	assert.Equal(t, 5*time.Minute, cfg.Order.Lifetime)
	assert.Equal(t, CancelSerial, cfg.CancelMode)
	assert.Equal(t, "0.25", cfg.MinEthBalance.String())
	assert.Equal(t, int32(18), cfg.Pair.SellToken.Decimals)
	assert.Equal(t, int32(6), cfg.Pair.BuyToken.Decimals)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "bands.yaml"), cfg.BandsFile)
	assert.Equal(t, "hunter2", cfg.Account.KeystorePassword)
	assert.Equal(t, "from-dotenv", cfg.Relayer.APIKey)

	gas, err := cfg.Gas.Wei()
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(20_000_000_000), gas.Price)
	assert.Equal(t, big.NewInt(50_000_000_000), gas.Max)
}

func TestLoad_EnvOverridesPasswordFile(t *testing.T) {
	path := writeConfig(t)
	t.Setenv(EnvKeystorePassword, "from-env")

	cfg, err := Load(path, "")
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Account.KeystorePassword)
}

func TestLoad_MissingDotEnvIsIgnored(t *testing.T) {
	path := writeConfig(t)
	_, err := Load(path, filepath.Join(t.TempDir(), "nope.env"))
	assert.NoError(t, err)
}

func TestValidate(t *testing.T) {
	path := writeConfig(t)
	base, err := Load(path, "")
	require.NoError(t, err)

	cases := map[string]func(c *Config){
		"bad account":     func(c *Config) { c.Account.Address = "nope" },
		"no key source":   func(c *Config) { c.Account.KeystoreFile = "" },
		"same tokens":     func(c *Config) { c.Pair.BuyToken.Address = c.Pair.SellToken.Address },
		"zero lifetime":   func(c *Config) { c.Order.Lifetime = 0 },
		"unknown mode":    func(c *Config) { c.CancelMode = "parallel" },
		"bad gas":         func(c *Config) { c.Gas.Price = "-1" },
		"no price feed":   func(c *Config) { c.PriceFeed.Source = "" },
		"zero tick":       func(c *Config) { c.TickInterval = 0 },
		"secret db alone": func(c *Config) { c.Account.KeystoreFile = ""; c.Account.SecretDB = "db"; c.Account.SecretKey = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := *base
			mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

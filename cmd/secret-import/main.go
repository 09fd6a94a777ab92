package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/betbot/keeper/pkg/config"
	"github.com/betbot/keeper/pkg/secretstore"
)

// secret-import 把私钥（以及可选的 .env 条目）写入 badger 加密库，供 keeper 以 account.secret_db 方式读取。
func main() {
	var (
		dbPath     = flag.String("badger", getenv("KEEPER_SECRET_DB", "data/secrets.badger"), "badger secrets db path")
		secretKey  = flag.String("secret-key", getenv(config.EnvSecretKey, ""), "badger encryption key (32 bytes base64/hex)")
		privateKey = flag.String("private-key", getenv("KEEPER_PRIVATE_KEY", ""), "hex private key to import")
		envPath    = flag.String("env", "", "optional .env file to import")
		prefix     = flag.String("prefix", "env/", "key prefix for .env entries inside badger")
	)
	flag.Parse()

	keyBytes, err := secretstore.ParseKey(*secretKey)
	if err != nil {
		fatal(err)
	}
	if keyBytes == nil {
		fatal(fmt.Errorf("secret key is required: set %s or pass -secret-key", config.EnvSecretKey))
	}
	if *privateKey == "" && *envPath == "" {
		fatal(fmt.Errorf("nothing to import: pass -private-key and/or -env"))
	}

	var kv map[string]string
	if *envPath != "" {
		if kv, err = godotenv.Read(*envPath); err != nil {
			fatal(err)
		}
	}

	ss, err := secretstore.Open(secretstore.OpenOptions{
		Path:          *dbPath,
		EncryptionKey: keyBytes,
		ReadOnly:      false,
	})
	if err != nil {
		fatal(err)
	}
	defer ss.Close()

	if *privateKey != "" {
		addr, err := ss.PutPrivateKey(*privateKey)
		if err != nil {
			fatal(err)
		}
		fmt.Fprintf(os.Stderr, "已导入账户 %s 的私钥\n", addr.Hex())
	}

	written := 0
	for k, v := range kv {
		if err := ss.SetString((*prefix)+k, v); err != nil {
			fatal(err)
		}
		written++
	}
	if written > 0 {
		fmt.Fprintf(os.Stderr, "已导入 %d 项到 badger：%s（前缀 %s）\n", written, *dbPath, *prefix)
	}
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err.Error())
	os.Exit(1)
}

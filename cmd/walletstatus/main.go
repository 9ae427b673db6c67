// Command walletstatus is a diagnostic: it loads (or reports the would-be
// path of) a wallet key file and prints the identity it holds, without
// ever regenerating a keypair that already exists.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/kdapp-net/auth-episode/internal/config"
	"github.com/kdapp-net/auth-episode/internal/telemetry"
	"github.com/kdapp-net/auth-episode/internal/wallet"
)

func main() {
	os.Exit(run())
}

func run() int {
	keyFile := flag.String("keyfile", "", "wallet key file path (overrides AUTH_EPISODE_WALLET_PATH)")
	flag.Parse()

	logger := telemetry.NewLogger("cmd.walletstatus")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		return 2
	}
	path := cfg.WalletPath
	if *keyFile != "" {
		path = *keyFile
	}

	wal, err := wallet.Load(path)
	if err != nil {
		logger.Error("failed to load wallet", "error", err, "path", path)
		return 2
	}

	status := "existing"
	if wal.WasCreated() {
		status = "newly created"
	}
	fmt.Printf("wallet: %s\npublic_key: %s\nidentity: %s\n", path, wal.PublicKey().Address(), status)
	return 0
}

// Command httppeer runs the coordination layer for one peer: the engine,
// the ledger listener, and the HTTP/WebSocket surface browser participants
// use when they cannot submit transactions themselves. It is the
// "organizer peer" role of spec.md §2: it submits no authoritative state
// of its own, only transactions on behalf of callers.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kdapp-net/auth-episode/internal/codec"
	"github.com/kdapp-net/auth-episode/internal/config"
	"github.com/kdapp-net/auth-episode/internal/coordination"
	"github.com/kdapp-net/auth-episode/internal/devledger"
	"github.com/kdapp-net/auth-episode/internal/engine"
	"github.com/kdapp-net/auth-episode/internal/kasparpc"
	"github.com/kdapp-net/auth-episode/internal/listener"
	"github.com/kdapp-net/auth-episode/internal/telemetry"
	"github.com/kdapp-net/auth-episode/internal/wallet"
)

// ledgerBackend is the narrow surface cmd/httppeer needs from whichever
// ledger connection it builds: devledger for local development, kasparpc
// against a real node when AUTH_EPISODE_RPC_URL is set.
type ledgerBackend interface {
	listener.LedgerRPC
	listener.LedgerSubmitter
}

func main() {
	os.Exit(run())
}

func run() int {
	port := flag.Int("port", 0, "HTTP listen port (overrides AUTH_EPISODE_HTTP_PORT)")
	keyFile := flag.String("key", "", "wallet key file path (overrides AUTH_EPISODE_WALLET_PATH)")
	flag.Parse()

	logger := telemetry.NewLogger("cmd.httppeer")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		return 2
	}
	if *port != 0 {
		cfg.HTTPPort = *port
	}
	if *keyFile != "" {
		cfg.WalletPath = *keyFile
	}

	wal, err := wallet.Load(cfg.WalletPath)
	if err != nil {
		logger.Error("failed to load wallet", "error", err, "path", cfg.WalletPath)
		return 2
	}
	if wal.WasCreated() {
		logger.Info("generated new wallet identity", "path", cfg.WalletPath, "public_key", wal.PublicKey().Address())
	} else {
		logger.Info("loaded existing wallet identity", "path", cfg.WalletPath, "public_key", wal.PublicKey().Address())
	}

	eng := engine.New(
		engine.WithRollbackCap(cfg.RollbackCap),
		engine.WithPruneAfter(cfg.PruneAfter),
	)

	var ledger ledgerBackend
	if cfg.RPCURL != "" {
		ledger = kasparpc.New(cfg.RPCURL, wal)
		logger.Info("using kaspa rpc ledger backend", "url", cfg.RPCURL)
	} else {
		ledger = devledger.New(wal)
		logger.Info("using in-process dev ledger backend (set AUTH_EPISODE_RPC_URL for a real node)")
	}

	store, err := listener.OpenCheckpointStore(cfg.CheckpointPath)
	if err != nil {
		logger.Error("failed to open listener checkpoint store", "error", err, "path", cfg.CheckpointPath)
		return 2
	}

	matcher := codec.AllowAll{}
	lst := listener.New(ledger, eng, store,
		listener.WithPatternMatcher(matcher),
		listener.WithMaxBackoff(cfg.ListenerMaxBackoff),
	)

	srvOpts := []coordination.Option{coordination.WithConfirmTimeout(cfg.ConfirmTimeout)}
	if !cfg.FallbackEnabled {
		srvOpts = append(srvOpts, coordination.WithFallbackDisabled())
	}
	srv := coordination.New(eng, wal, ledger, srvOpts...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go lst.Run(ctx)

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: srv.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("coordination layer listening", "addr", httpSrv.Addr, "network", cfg.Network)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down: signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error("coordination layer failed", "error", err)
			return 3
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		return 1
	}
	return 0
}

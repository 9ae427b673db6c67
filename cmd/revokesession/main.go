// Command revokesession voids an authenticated episode's session by
// submitting a signed RevokeSession command through an organizer peer's
// coordination layer.
package main

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/kdapp-net/auth-episode/internal/kaspacrypto"
	"github.com/kdapp-net/auth-episode/internal/telemetry"
	"github.com/kdapp-net/auth-episode/internal/wallet"
	"github.com/kdapp-net/auth-episode/pkg/sign"
)

func main() {
	os.Exit(run())
}

func run() int {
	peerURL := flag.String("peer", "http://localhost:8080", "organizer peer coordination URL")
	episodeID := flag.Uint("episode-id", 0, "episode id whose session is being revoked")
	sessionToken := flag.String("session-token", "", "the session token to revoke")
	keyHex := flag.String("key", "", "32-byte secret key, hex-encoded")
	keyFile := flag.String("keyfile", "", "wallet key file path")
	timeout := flag.Duration("timeout", 30*time.Second, "HTTP client timeout")
	flag.Parse()

	logger := telemetry.NewLogger("cmd.revokesession")

	if *episodeID == 0 || *sessionToken == "" {
		logger.Error("--episode-id and --session-token are required")
		return 2
	}

	owner, err := resolveIdentity(*keyHex, *keyFile)
	if err != nil {
		logger.Error("failed to resolve episode owner identity", "error", err)
		return 2
	}

	sig, err := owner.Sign(*sessionToken)
	if err != nil {
		logger.Error("failed to sign session token", "error", err)
		return 1
	}

	req := struct {
		EpisodeID    uint32 `json:"episode_id"`
		SessionToken string `json:"session_token"`
		Signature    string `json:"signature"`
	}{
		EpisodeID:    uint32(*episodeID),
		SessionToken: *sessionToken,
		Signature:    sig.String(),
	}
	buf, err := json.Marshal(req)
	if err != nil {
		logger.Error("failed to encode request", "error", err)
		return 1
	}

	hc := &http.Client{Timeout: *timeout}
	resp, err := hc.Post(*peerURL+"/auth/revoke-session", "application/json", bytes.NewReader(buf))
	if err != nil {
		logger.Error("auth/revoke-session request failed", "error", err)
		return 3
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		logger.Error("auth/revoke-session rejected", "status", resp.StatusCode, "body", string(body))
		return 1
	}

	var result struct {
		EpisodeID     uint32 `json:"episode_id"`
		TransactionID string `json:"transaction_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		logger.Error("failed to decode response", "error", err)
		return 1
	}

	fmt.Printf("revoked: episode_id=%d transaction_id=%s\n", result.EpisodeID, result.TransactionID)
	return 0
}

// identity is the narrow signing surface this command needs, satisfied by
// both a bare in-memory signer (--key) and a mutex-guarded wallet
// (--keyfile).
type identity interface {
	Sign(msg string) (sign.Signature, error)
}

type rawSigner struct{ s *sign.Secp256k1Signer }

func (r rawSigner) Sign(msg string) (sign.Signature, error) { return kaspacrypto.Sign(r.s, msg) }

func resolveIdentity(keyHex, keyFile string) (identity, error) {
	switch {
	case keyHex != "":
		secret, err := hex.DecodeString(keyHex)
		if err != nil {
			return nil, fmt.Errorf("decode --key hex: %w", err)
		}
		signer, err := sign.NewSecp256k1Signer(secret)
		if err != nil {
			return nil, err
		}
		return rawSigner{signer}, nil
	case keyFile != "":
		return wallet.Load(keyFile)
	default:
		return nil, fmt.Errorf("one of --key or --keyfile is required")
	}
}

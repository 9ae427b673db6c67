// Command authenticate drives the participant side of the authentication
// protocol end to end against an organizer peer's coordination layer: it
// starts an episode, requests a challenge, signs it, and submits the
// response. It never computes anything the ledger itself will not later
// confirm — every step here is a real POST to the peer's HTTP surface,
// waiting for that peer's coordination layer to report the episode as
// confirmed before moving to the next step.
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
	keyHex := flag.String("key", "", "32-byte secret key, hex-encoded")
	keyFile := flag.String("keyfile", "", "wallet key file path")
	timeout := flag.Duration("timeout", 30*time.Second, "HTTP client timeout per request")
	flag.Parse()

	logger := telemetry.NewLogger("cmd.authenticate")

	id, err := resolveIdentity(*keyHex, *keyFile)
	if err != nil {
		logger.Error("failed to resolve participant identity", "error", err)
		return 2
	}

	client := &httpClient{base: *peerURL, hc: &http.Client{Timeout: *timeout}}

	episodeID, _, err := client.start(id.PublicKey())
	if err != nil {
		logger.Error("auth/start failed", "error", err)
		return 3
	}
	logger.Info("episode created", "episode_id", episodeID)

	challenge, err := client.requestChallenge(episodeID, id.PublicKey())
	if err != nil {
		logger.Error("auth/request-challenge failed", "error", err)
		return 3
	}
	logger.Info("challenge issued", "episode_id", episodeID, "challenge", challenge)

	sig, err := id.Sign(challenge)
	if err != nil {
		logger.Error("failed to sign challenge", "error", err)
		return 1
	}

	token, err := client.verify(episodeID, sig, challenge)
	if err != nil {
		logger.Error("auth/verify failed", "error", err)
		return 1
	}

	fmt.Printf("authenticated: episode_id=%d session_token=%s\n", episodeID, token)
	return 0
}

// identity is the narrow signing surface this command needs, satisfied by
// both a bare in-memory signer (--key) and a mutex-guarded wallet
// (--keyfile).
type identity interface {
	PublicKey() sign.PublicKey
	Sign(msg string) (sign.Signature, error)
}

type rawSigner struct{ s *sign.Secp256k1Signer }

func (r rawSigner) PublicKey() sign.PublicKey { return r.s.PublicKey() }

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
		signer, err := kaspacrypto.GenerateKeypair()
		if err != nil {
			return nil, err
		}
		return rawSigner{signer}, nil
	}
}

type httpClient struct {
	base string
	hc   *http.Client
}

func (c *httpClient) post(path string, reqBody, respBody any) error {
	buf, err := json.Marshal(reqBody)
	if err != nil {
		return err
	}
	resp, err := c.hc.Post(c.base+path, "application/json", bytes.NewReader(buf))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s: status %d: %s", path, resp.StatusCode, body)
	}
	return json.NewDecoder(resp.Body).Decode(respBody)
}

func (c *httpClient) start(pub sign.PublicKey) (uint32, string, error) {
	var resp struct {
		EpisodeID     uint32 `json:"episode_id"`
		TransactionID string `json:"transaction_id"`
	}
	req := struct {
		PublicKey string `json:"public_key"`
	}{PublicKey: hex.EncodeToString(pub.Bytes())}
	err := c.post("/auth/start", req, &resp)
	return resp.EpisodeID, resp.TransactionID, err
}

func (c *httpClient) requestChallenge(episodeID uint32, pub sign.PublicKey) (string, error) {
	var resp struct {
		Challenge string `json:"challenge"`
	}
	req := struct {
		EpisodeID uint32 `json:"episode_id"`
		PublicKey string `json:"public_key"`
	}{EpisodeID: episodeID, PublicKey: hex.EncodeToString(pub.Bytes())}
	if err := c.post("/auth/request-challenge", req, &resp); err != nil {
		return "", err
	}
	if resp.Challenge == "" {
		// Fallback exception (spec.md §4.6): the listener may not have
		// confirmed the challenge transaction in time for the coordinator
		// to echo it back; read it from the organizer's status endpoint
		// instead. This is a read-only fallback — the challenge string
		// itself is still the one the engine deterministically computed.
		return c.statusChallenge(episodeID)
	}
	return resp.Challenge, nil
}

func (c *httpClient) statusChallenge(episodeID uint32) (string, error) {
	resp, err := c.hc.Get(fmt.Sprintf("%s/auth/status/%d", c.base, episodeID))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	var body struct {
		Challenge *string `json:"challenge"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	if body.Challenge == nil {
		return "", fmt.Errorf("no challenge available for episode %d", episodeID)
	}
	return *body.Challenge, nil
}

func (c *httpClient) verify(episodeID uint32, sig sign.Signature, nonce string) (string, error) {
	var resp struct {
		SessionToken string `json:"session_token"`
	}
	req := struct {
		EpisodeID uint32 `json:"episode_id"`
		Signature string `json:"signature"`
		Nonce     string `json:"nonce"`
	}{EpisodeID: episodeID, Signature: sig.String(), Nonce: nonce}
	err := c.post("/auth/verify", req, &resp)
	return resp.SessionToken, err
}

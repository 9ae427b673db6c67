// Command testapiflow is a diagnostic that spins up the coordination layer
// in-process against devledger (no real ledger required) and drives the
// full HTTP flow a browser participant would: start, request-challenge,
// verify, status, revoke-session. It exercises the same endpoints
// cmd/authenticate and cmd/revokesession use against a real deployment.
package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"

	"github.com/kdapp-net/auth-episode/internal/coordination"
	"github.com/kdapp-net/auth-episode/internal/devledger"
	"github.com/kdapp-net/auth-episode/internal/engine"
	"github.com/kdapp-net/auth-episode/internal/kaspacrypto"
	"github.com/kdapp-net/auth-episode/internal/listener"
	"github.com/kdapp-net/auth-episode/internal/telemetry"
	"github.com/kdapp-net/auth-episode/internal/wallet"
)

func main() {
	os.Exit(run())
}

func run() int {
	logger := telemetry.NewLogger("cmd.testapiflow")

	tmpDir, err := os.MkdirTemp("", "auth-episode-testapiflow-*")
	if err != nil {
		logger.Error("failed to create temp dir", "error", err)
		return 2
	}
	defer os.RemoveAll(tmpDir)

	organizerWallet, err := wallet.Load(tmpDir + "/organizer.key")
	if err != nil {
		logger.Error("failed to load organizer wallet", "error", err)
		return 2
	}
	participant, err := kaspacrypto.GenerateKeypair()
	if err != nil {
		logger.Error("failed to generate participant keypair", "error", err)
		return 2
	}

	eng := engine.New()
	ledger := devledger.New(organizerWallet)

	store, err := listener.OpenCheckpointStore(tmpDir + "/checkpoint.db")
	if err != nil {
		logger.Error("failed to open checkpoint store", "error", err)
		return 2
	}
	lst := listener.New(ledger, eng, store)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go lst.Run(ctx)

	srv := coordination.New(eng, organizerWallet, ledger)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	client := &http.Client{}

	episodeID, err := httpStart(client, ts.URL, participant.PublicKey().Bytes())
	if err != nil {
		logger.Error("auth/start failed", "error", err)
		return 1
	}
	fmt.Printf("PASS start: episode_id=%d\n", episodeID)

	challenge, err := httpRequestChallenge(client, ts.URL, episodeID, participant.PublicKey().Bytes())
	if err != nil {
		logger.Error("auth/request-challenge failed", "error", err)
		return 1
	}
	fmt.Printf("PASS request-challenge: challenge=%s\n", challenge)

	sig, err := kaspacrypto.Sign(participant, challenge)
	if err != nil {
		logger.Error("failed to sign challenge", "error", err)
		return 1
	}
	token, err := httpVerify(client, ts.URL, episodeID, sig.String(), challenge)
	if err != nil {
		logger.Error("auth/verify failed", "error", err)
		return 1
	}
	fmt.Printf("PASS verify: session_token=%s\n", token)

	status, err := httpStatus(client, ts.URL, episodeID)
	if err != nil {
		logger.Error("auth/status failed", "error", err)
		return 1
	}
	if status != "Authenticated" {
		logger.Error("unexpected status after verify", "status", status)
		return 1
	}
	fmt.Printf("PASS status: %s\n", status)

	revokeSig, err := kaspacrypto.Sign(participant, token)
	if err != nil {
		logger.Error("failed to sign revocation", "error", err)
		return 1
	}
	if err := httpRevoke(client, ts.URL, episodeID, token, revokeSig.String()); err != nil {
		logger.Error("auth/revoke-session failed", "error", err)
		return 1
	}
	status, err = httpStatus(client, ts.URL, episodeID)
	if err != nil {
		logger.Error("auth/status failed after revoke", "error", err)
		return 1
	}
	if status != "Revoked" {
		logger.Error("unexpected status after revoke", "status", status)
		return 1
	}
	fmt.Printf("PASS revoke-session: status=%s\n", status)

	return 0
}

func httpStart(client *http.Client, base string, pub []byte) (uint32, error) {
	var resp struct {
		EpisodeID uint32 `json:"episode_id"`
	}
	err := postJSON(client, base+"/auth/start", map[string]string{"public_key": hex.EncodeToString(pub)}, &resp)
	return resp.EpisodeID, err
}

func httpRequestChallenge(client *http.Client, base string, episodeID uint32, pub []byte) (string, error) {
	var resp struct {
		Challenge string `json:"challenge"`
	}
	body := map[string]any{"episode_id": episodeID, "public_key": hex.EncodeToString(pub)}
	err := postJSON(client, base+"/auth/request-challenge", body, &resp)
	return resp.Challenge, err
}

func httpVerify(client *http.Client, base string, episodeID uint32, sigHex, nonce string) (string, error) {
	var resp struct {
		SessionToken string `json:"session_token"`
	}
	body := map[string]any{"episode_id": episodeID, "signature": sigHex, "nonce": nonce}
	err := postJSON(client, base+"/auth/verify", body, &resp)
	return resp.SessionToken, err
}

func httpRevoke(client *http.Client, base string, episodeID uint32, token, sigHex string) error {
	var resp struct {
		EpisodeID uint32 `json:"episode_id"`
	}
	body := map[string]any{"episode_id": episodeID, "session_token": token, "signature": sigHex}
	return postJSON(client, base+"/auth/revoke-session", body, &resp)
}

func httpStatus(client *http.Client, base string, episodeID uint32) (string, error) {
	resp, err := client.Get(fmt.Sprintf("%s/auth/status/%d", base, episodeID))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	return body.Status, nil
}

func postJSON(client *http.Client, url string, reqBody, respBody any) error {
	buf, err := json.Marshal(reqBody)
	if err != nil {
		return err
	}
	resp, err := client.Post(url, "application/json", bytes.NewReader(buf))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		var errBody struct {
			Error string `json:"error"`
			Kind  string `json:"kind"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		return fmt.Errorf("%s: status %d: %s (%s)", url, resp.StatusCode, errBody.Error, errBody.Kind)
	}
	return json.NewDecoder(resp.Body).Decode(respBody)
}

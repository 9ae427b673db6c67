package coordination_test

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kdapp-net/auth-episode/internal/codec"
	"github.com/kdapp-net/auth-episode/internal/coordination"
	"github.com/kdapp-net/auth-episode/internal/engine"
	"github.com/kdapp-net/auth-episode/internal/episode"
	"github.com/kdapp-net/auth-episode/internal/wallet"
	"github.com/kdapp-net/auth-episode/pkg/sign"
)

// loopbackSubmitter stands in for the real Kaspa RPC client: it decodes the
// submitted payload and applies it to the same in-process engine the test
// server reads from, tagging every command with the key returned by owner as the recovered
// transaction sender (mirroring what the listener would have recovered
// from the wallet's own signature on the funding transaction).
type loopbackSubmitter struct {
	eng   *engine.Engine
	owner func() []byte
	seq   int
}

func (l *loopbackSubmitter) Submit(ctx context.Context, raw []byte) (string, error) {
	l.seq++
	txID := fmt.Sprintf("tx-%d", l.seq)
	payload, err := codec.Unmarshal(raw)
	if err != nil {
		return "", err
	}
	pub, err := parsePubKey(l.owner())
	if err != nil {
		return "", err
	}
	meta := episode.Metadata{
		AcceptingTime:     uint64(1_700_000_000 + l.seq),
		AcceptingDAAScore: uint64(l.seq),
		TxID:              txID,
		TxIndex:           0,
		Sender:            pub,
	}
	if _, err := l.eng.ApplyPayload(payload, meta, meta.AcceptingDAAScore, meta.TxIndex); err != nil {
		return "", err
	}
	return txID, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *wallet.Wallet, *engine.Engine) {
	t.Helper()
	w, err := wallet.Load(filepath.Join(t.TempDir(), "wallet.bin"))
	if err != nil {
		t.Fatalf("wallet.Load: %v", err)
	}
	eng := engine.New()
	sub := &loopbackSubmitter{eng: eng, owner: func() []byte { return w.PublicKey().Bytes() }}
	srv := coordination.New(eng, w, sub, coordination.WithMetricsRegisterer(prometheus.NewRegistry()))
	return httptest.NewServer(srv.Handler()), w, eng
}

func postJSON(t *testing.T, ts *httptest.Server, path string, body any) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	resp, err := http.Post(ts.URL+path, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestFullAuthenticationFlowOverHTTP(t *testing.T) {
	ts, w, _ := newTestServer(t)
	defer ts.Close()

	pubHex := hex.EncodeToString(w.PublicKey().Bytes())

	var start struct {
		EpisodeID     uint32 `json:"episode_id"`
		TransactionID string `json:"transaction_id"`
	}
	resp := postJSON(t, ts, "/auth/start", map[string]string{"public_key": pubHex})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/auth/start status = %d", resp.StatusCode)
	}
	decodeJSON(t, resp, &start)
	if start.EpisodeID == 0 {
		t.Fatal("/auth/start did not assign an episode id")
	}

	var challengeResp struct {
		Challenge string `json:"challenge"`
	}
	resp = postJSON(t, ts, "/auth/request-challenge", map[string]any{
		"episode_id": start.EpisodeID,
		"public_key": pubHex,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/auth/request-challenge status = %d", resp.StatusCode)
	}
	decodeJSON(t, resp, &challengeResp)
	if challengeResp.Challenge == "" {
		t.Fatal("/auth/request-challenge returned an empty challenge")
	}

	sig, err := w.Sign(challengeResp.Challenge)
	if err != nil {
		t.Fatalf("sign challenge: %v", err)
	}
	var verifyResp struct {
		SessionToken string `json:"session_token"`
	}
	resp = postJSON(t, ts, "/auth/verify", map[string]any{
		"episode_id": start.EpisodeID,
		"signature":  hex.EncodeToString(sig),
		"nonce":      challengeResp.Challenge,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/auth/verify status = %d", resp.StatusCode)
	}
	decodeJSON(t, resp, &verifyResp)
	if verifyResp.SessionToken == "" {
		t.Fatal("/auth/verify returned an empty session token")
	}

	statusURL := fmt.Sprintf("%s/auth/status/%d", ts.URL, start.EpisodeID)
	statusHTTPResp, err := http.Get(statusURL)
	if err != nil {
		t.Fatalf("GET status: %v", err)
	}
	var status struct {
		Status       string `json:"status"`
		SessionToken string `json:"session_token"`
	}
	decodeJSON(t, statusHTTPResp, &status)
	if status.Status != "Authenticated" {
		t.Fatalf("status = %q, want Authenticated", status.Status)
	}
	if status.SessionToken != verifyResp.SessionToken {
		t.Fatalf("status session_token = %q, want %q", status.SessionToken, verifyResp.SessionToken)
	}

	revokeSig, err := w.Sign(verifyResp.SessionToken)
	if err != nil {
		t.Fatalf("sign session token: %v", err)
	}
	resp = postJSON(t, ts, "/auth/revoke-session", map[string]any{
		"episode_id":    start.EpisodeID,
		"session_token": verifyResp.SessionToken,
		"signature":     hex.EncodeToString(revokeSig),
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/auth/revoke-session status = %d", resp.StatusCode)
	}
}

func TestVerifyWithWrongNonceReturnsInvalidChallenge(t *testing.T) {
	ts, w, _ := newTestServer(t)
	defer ts.Close()
	pubHex := hex.EncodeToString(w.PublicKey().Bytes())

	var start struct {
		EpisodeID uint32 `json:"episode_id"`
	}
	decodeJSON(t, postJSON(t, ts, "/auth/start", map[string]string{"public_key": pubHex}), &start)
	postJSON(t, ts, "/auth/request-challenge", map[string]any{"episode_id": start.EpisodeID, "public_key": pubHex})

	sig, _ := w.Sign("auth_wrong")
	resp := postJSON(t, ts, "/auth/verify", map[string]any{
		"episode_id": start.EpisodeID,
		"signature":  hex.EncodeToString(sig),
		"nonce":      "auth_wrong",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for InvalidChallenge", resp.StatusCode)
	}
	var body struct {
		Kind string `json:"kind"`
	}
	decodeJSON(t, resp, &body)
	if body.Kind != "InvalidChallenge" {
		t.Fatalf("kind = %q, want InvalidChallenge", body.Kind)
	}
}

func TestStatusForUnknownEpisodeIsConflict(t *testing.T) {
	ts, _, _ := newTestServer(t)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/auth/status/999")
	if err != nil {
		t.Fatalf("GET status: %v", err)
	}
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409 for InvalidState (episode not found)", resp.StatusCode)
	}
}

func TestMalformedRequestBodyIsRejected(t *testing.T) {
	ts, _, _ := newTestServer(t)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/auth/start", "application/json", bytes.NewReader([]byte(`{"public_key": "not-hex"}`)))
	if err != nil {
		t.Fatalf("POST /auth/start: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestConfirmTimeoutOptionIsPlumbed(t *testing.T) {
	// Sanity check that WithConfirmTimeout is accepted without needing the
	// full flaky-network scenario: with a 5s timeout and a submitter that
	// applies the command synchronously (loopbackSubmitter), /auth/start
	// still completes with 200.
	w, err := wallet.Load(filepath.Join(t.TempDir(), "wallet.bin"))
	if err != nil {
		t.Fatalf("wallet.Load: %v", err)
	}
	eng := engine.New()
	sub := &loopbackSubmitter{eng: eng, owner: func() []byte { return w.PublicKey().Bytes() }}
	srv := coordination.New(eng, w, sub,
		coordination.WithConfirmTimeout(5*time.Second),
		coordination.WithMetricsRegisterer(prometheus.NewRegistry()),
	)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp := postJSON(t, ts, "/auth/start", map[string]string{"public_key": hex.EncodeToString(w.PublicKey().Bytes())})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func parsePubKey(b []byte) (sign.PublicKey, error) {
	return sign.ParseSecp256k1PublicKey(b)
}

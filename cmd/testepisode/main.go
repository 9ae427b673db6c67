// Command testepisode is a diagnostic that drives the AuthEpisode state
// machine directly, in-process, through spec.md §8's S1-S5 scenarios
// (happy path, wrong nonce, foreign signer, revocation, reorg) and reports
// pass/fail for each. It never touches a real ledger; it is the fastest
// way to confirm a build's episode package still satisfies the protocol's
// invariants.
package main

import (
	"fmt"
	"os"

	"github.com/kdapp-net/auth-episode/internal/codec"
	"github.com/kdapp-net/auth-episode/internal/engine"
	"github.com/kdapp-net/auth-episode/internal/episode"
	"github.com/kdapp-net/auth-episode/internal/kaspacrypto"
	"github.com/kdapp-net/auth-episode/pkg/sign"
)

const scenarioTimestamp = uint64(1_700_000_000)

func main() {
	os.Exit(run())
}

func run() int {
	scenarios := []struct {
		name string
		fn   func() error
	}{
		{"S1 happy path", scenarioHappyPath},
		{"S2 wrong nonce", scenarioWrongNonce},
		{"S3 foreign signer", scenarioForeignSigner},
		{"S4 revocation", scenarioRevocation},
		{"S5 reorg", scenarioReorg},
	}

	failed := 0
	for _, s := range scenarios {
		if err := s.fn(); err != nil {
			fmt.Printf("FAIL %s: %v\n", s.name, err)
			failed++
			continue
		}
		fmt.Printf("PASS %s\n", s.name)
	}

	if failed > 0 {
		return 1
	}
	return 0
}

func newEngineWithEpisode(t uint64) (*engine.Engine, uint32, *sign.Secp256k1Signer, error) {
	owner, err := kaspacrypto.GenerateKeypair()
	if err != nil {
		return nil, 0, nil, err
	}
	eng := engine.New()
	id, err := eng.ApplyPayload(
		codec.Payload{Tag: codec.TagNewEpisode, Body: codec.NewEpisode{OwnerPublicKey: owner.PublicKey().Bytes()}},
		episode.Metadata{AcceptingTime: t, TxID: "tx-new", Sender: owner.PublicKey()}, 1, 0)
	if err != nil {
		return nil, 0, nil, err
	}
	return eng, id, owner, nil
}

func scenarioHappyPath() error {
	eng, id, owner, err := newEngineWithEpisode(scenarioTimestamp)
	if err != nil {
		return err
	}
	if _, err := eng.ApplyPayload(
		codec.Payload{EpisodeID: id, Tag: codec.TagRequestChallenge, Body: codec.RequestChallenge{}},
		episode.Metadata{AcceptingTime: scenarioTimestamp, TxID: "tx-req", Sender: owner.PublicKey()}, 2, 0); err != nil {
		return fmt.Errorf("RequestChallenge: %w", err)
	}

	wantChallenge := kaspacrypto.DeriveChallenge(scenarioTimestamp)
	snap, _ := eng.Snapshot(id)
	if snap.Challenge == nil || *snap.Challenge != wantChallenge {
		return fmt.Errorf("challenge mismatch: got %v, want %q", snap.Challenge, wantChallenge)
	}

	sig, err := kaspacrypto.Sign(owner, wantChallenge)
	if err != nil {
		return err
	}
	if _, err := eng.ApplyPayload(
		codec.Payload{EpisodeID: id, Tag: codec.TagSubmitResponse, Body: codec.SubmitResponse{SignatureHex: sig.String(), Nonce: wantChallenge}},
		episode.Metadata{AcceptingTime: scenarioTimestamp, TxID: "tx-resp", Sender: owner.PublicKey()}, 3, 0); err != nil {
		return fmt.Errorf("SubmitResponse: %w", err)
	}

	wantToken := kaspacrypto.DeriveSessionToken(scenarioTimestamp)
	snap, _ = eng.Snapshot(id)
	if snap.Status != episode.StatusAuthenticated || snap.SessionToken == nil || *snap.SessionToken != wantToken {
		return fmt.Errorf("expected Authenticated with token %q, got status=%s token=%v", wantToken, snap.Status, snap.SessionToken)
	}
	return nil
}

func scenarioWrongNonce() error {
	eng, id, owner, err := newEngineWithEpisode(scenarioTimestamp)
	if err != nil {
		return err
	}
	if _, err := eng.ApplyPayload(
		codec.Payload{EpisodeID: id, Tag: codec.TagRequestChallenge, Body: codec.RequestChallenge{}},
		episode.Metadata{AcceptingTime: scenarioTimestamp, TxID: "tx-req", Sender: owner.PublicKey()}, 2, 0); err != nil {
		return err
	}

	sig, err := kaspacrypto.Sign(owner, "auth_wrong")
	if err != nil {
		return err
	}
	_, err = eng.ApplyPayload(
		codec.Payload{EpisodeID: id, Tag: codec.TagSubmitResponse, Body: codec.SubmitResponse{SignatureHex: sig.String(), Nonce: "auth_wrong"}},
		episode.Metadata{AcceptingTime: scenarioTimestamp, TxID: "tx-resp", Sender: owner.PublicKey()}, 3, 0)
	epErr, ok := err.(*episode.Error)
	if !ok || epErr.Kind != episode.KindInvalidChallenge {
		return fmt.Errorf("expected InvalidChallenge, got %v", err)
	}
	snap, _ := eng.Snapshot(id)
	if snap.Status != episode.StatusChallenged {
		return fmt.Errorf("expected episode to remain Challenged, got %s", snap.Status)
	}
	return nil
}

func scenarioForeignSigner() error {
	eng, id, owner, err := newEngineWithEpisode(scenarioTimestamp)
	if err != nil {
		return err
	}
	if _, err := eng.ApplyPayload(
		codec.Payload{EpisodeID: id, Tag: codec.TagRequestChallenge, Body: codec.RequestChallenge{}},
		episode.Metadata{AcceptingTime: scenarioTimestamp, TxID: "tx-req", Sender: owner.PublicKey()}, 2, 0); err != nil {
		return err
	}

	stranger, err := kaspacrypto.GenerateKeypair()
	if err != nil {
		return err
	}
	challenge := kaspacrypto.DeriveChallenge(scenarioTimestamp)
	sig, err := kaspacrypto.Sign(stranger, challenge)
	if err != nil {
		return err
	}
	_, err = eng.ApplyPayload(
		codec.Payload{EpisodeID: id, Tag: codec.TagSubmitResponse, Body: codec.SubmitResponse{SignatureHex: sig.String(), Nonce: challenge}},
		episode.Metadata{AcceptingTime: scenarioTimestamp, TxID: "tx-resp", Sender: stranger.PublicKey()}, 3, 0)
	epErr, ok := err.(*episode.Error)
	if !ok || epErr.Kind != episode.KindInvalidSignature {
		return fmt.Errorf("expected InvalidSignature (verification against owner fails for stranger's signature), got %v", err)
	}
	return nil
}

func scenarioRevocation() error {
	eng, id, owner, err := runHappyPath()
	if err != nil {
		return err
	}
	snap, _ := eng.Snapshot(id)
	token := *snap.SessionToken

	sig, err := kaspacrypto.Sign(owner, token)
	if err != nil {
		return err
	}
	if _, err := eng.ApplyPayload(
		codec.Payload{EpisodeID: id, Tag: codec.TagRevokeSession, Body: codec.RevokeSession{SessionToken: token, SignatureHex: sig.String()}},
		episode.Metadata{AcceptingTime: scenarioTimestamp, TxID: "tx-revoke", Sender: owner.PublicKey()}, 4, 0); err != nil {
		return fmt.Errorf("RevokeSession: %w", err)
	}
	snap, _ = eng.Snapshot(id)
	if snap.Status != episode.StatusRevoked || snap.SessionToken != nil {
		return fmt.Errorf("expected Revoked with no session token, got status=%s token=%v", snap.Status, snap.SessionToken)
	}

	_, err = eng.ApplyPayload(
		codec.Payload{EpisodeID: id, Tag: codec.TagRevokeSession, Body: codec.RevokeSession{SessionToken: token, SignatureHex: sig.String()}},
		episode.Metadata{AcceptingTime: scenarioTimestamp, TxID: "tx-revoke-2", Sender: owner.PublicKey()}, 5, 0)
	epErr, ok := err.(*episode.Error)
	if !ok || epErr.Kind != episode.KindInvalidState {
		return fmt.Errorf("expected second revocation to fail InvalidState, got %v", err)
	}
	return nil
}

func scenarioReorg() error {
	eng, id, owner, err := runHappyPath()
	if err != nil {
		return err
	}
	preRevokeSnap, _ := eng.Snapshot(id)

	token := *preRevokeSnap.SessionToken
	sig, err := kaspacrypto.Sign(owner, token)
	if err != nil {
		return err
	}
	if _, err := eng.ApplyPayload(
		codec.Payload{EpisodeID: id, Tag: codec.TagRevokeSession, Body: codec.RevokeSession{SessionToken: token, SignatureHex: sig.String()}},
		episode.Metadata{AcceptingTime: scenarioTimestamp, TxID: "tx-revoke", Sender: owner.PublicKey()}, 4, 0); err != nil {
		return err
	}

	eng.Reorg(1) // unwind exactly the RevokeSession transaction

	snap, _ := eng.Snapshot(id)
	if snap.Status != episode.StatusAuthenticated || snap.SessionToken == nil || *snap.SessionToken != token {
		return fmt.Errorf("expected rollback to restore Authenticated with token %q, got status=%s token=%v", token, snap.Status, snap.SessionToken)
	}
	return nil
}

func runHappyPath() (*engine.Engine, uint32, *sign.Secp256k1Signer, error) {
	eng, id, owner, err := newEngineWithEpisode(scenarioTimestamp)
	if err != nil {
		return nil, 0, nil, err
	}
	if _, err := eng.ApplyPayload(
		codec.Payload{EpisodeID: id, Tag: codec.TagRequestChallenge, Body: codec.RequestChallenge{}},
		episode.Metadata{AcceptingTime: scenarioTimestamp, TxID: "tx-req", Sender: owner.PublicKey()}, 2, 0); err != nil {
		return nil, 0, nil, err
	}
	challenge := kaspacrypto.DeriveChallenge(scenarioTimestamp)
	sig, err := kaspacrypto.Sign(owner, challenge)
	if err != nil {
		return nil, 0, nil, err
	}
	if _, err := eng.ApplyPayload(
		codec.Payload{EpisodeID: id, Tag: codec.TagSubmitResponse, Body: codec.SubmitResponse{SignatureHex: sig.String(), Nonce: challenge}},
		episode.Metadata{AcceptingTime: scenarioTimestamp, TxID: "tx-resp", Sender: owner.PublicKey()}, 3, 0); err != nil {
		return nil, 0, nil, err
	}
	return eng, id, owner, nil
}

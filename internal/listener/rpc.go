// Package listener follows the block-DAG ledger for accepted transactions
// that carry the authentication protocol's payload and feeds them to the
// engine. It owns reconnect/backoff against the ledger RPC and persists the
// last fully processed block id so it can resume after a restart without
// re-scanning the whole chain.
package listener

import "context"

// AcceptedTransaction is one ledger transaction the RPC layer has already
// confirmed. Payload/SenderPublicKey are raw bytes; the listener decodes
// and validates them before handing anything to the engine.
type AcceptedTransaction struct {
	TxID              string
	TxIndex           uint32
	BlockID           string
	AcceptingTime     uint64
	AcceptingDAAScore uint64
	Payload           []byte
	SenderPublicKey   []byte
}

// ReorgEvent is delivered when the RPC layer observes the chain head
// diverge from what the listener had been following.
type ReorgEvent struct {
	// Depth is how many previously-delivered transactions must be undone
	// before the new head's transactions can be re-applied.
	Depth int
}

// LedgerRPC is the subscription surface the listener depends on. A real
// implementation wraps the Kaspa RPC client; tests substitute a fake that
// replays a canned transaction sequence.
type LedgerRPC interface {
	// Subscribe starts streaming accepted transactions after afterBlockID
	// (empty string means from genesis). It returns a channel of
	// transactions, a channel of reorg notifications, and an error channel
	// that the listener must drain until it closes, at which point the
	// subscription has ended and a fresh Subscribe call is required.
	Subscribe(ctx context.Context, afterBlockID string) (<-chan AcceptedTransaction, <-chan ReorgEvent, <-chan error, error)
}

// LedgerSubmitter is the transaction-broadcast half of the ledger RPC
// surface, used by the coordination layer to fund and submit a command on
// a peer's behalf. It is kept separate from LedgerRPC because a process
// may submit transactions without subscribing (or vice versa), and because
// the concrete internal/kasparpc client backs both through independent
// calls over its WebSocket connection.
type LedgerSubmitter interface {
	// Submit broadcasts raw (an internal/codec-encoded payload, prefixed by
	// the episode's wire magic) as a transaction funded by the calling
	// peer's wallet, and returns the ledger's assigned transaction id. The
	// returned id is the same TxID the listener will eventually observe in
	// an AcceptedTransaction once the transaction is accepted.
	Submit(ctx context.Context, raw []byte) (txID string, err error)
}

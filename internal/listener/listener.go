package listener

import (
	"context"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/kdapp-net/auth-episode/internal/codec"
	"github.com/kdapp-net/auth-episode/internal/engine"
	"github.com/kdapp-net/auth-episode/internal/episode"
	"github.com/kdapp-net/auth-episode/internal/telemetry"
	"github.com/kdapp-net/auth-episode/pkg/log"
	"github.com/kdapp-net/auth-episode/pkg/sign"
)

// Listener follows the ledger and feeds accepted transactions to an
// Engine. It is the sole writer of the engine's episode map: Run must only
// ever be invoked from one goroutine per Engine.
type Listener struct {
	rpc        LedgerRPC
	engine     *engine.Engine
	checkpoint *CheckpointStore
	matcher    codec.PatternMatcher
	maxBackoff time.Duration
	logger     telemetry.Logger
	recorder   log.SpanEventRecorder
}

// Option configures a Listener at construction time.
type Option func(*Listener)

// WithPatternMatcher overrides the default AllowAll matcher used to filter
// transaction ids before a full payload decode is attempted.
func WithPatternMatcher(m codec.PatternMatcher) Option {
	return func(l *Listener) { l.matcher = m }
}

// WithMaxBackoff caps the exponential backoff delay between reconnect
// attempts.
func WithMaxBackoff(d time.Duration) Option {
	return func(l *Listener) { l.maxBackoff = d }
}

// WithSpanEventRecorder attaches a span recorder; the listener records
// observed reorgs onto it.
func WithSpanEventRecorder(rec log.SpanEventRecorder) Option {
	return func(l *Listener) { l.recorder = rec }
}

// WithLogger overrides the listener's logger.
func WithLogger(lg telemetry.Logger) Option {
	return func(l *Listener) { l.logger = lg }
}

const defaultMaxBackoff = 2 * time.Minute

// New constructs a Listener that applies transactions observed via rpc to
// eng, checkpointing its resume position in store.
func New(rpc LedgerRPC, eng *engine.Engine, store *CheckpointStore, opts ...Option) *Listener {
	l := &Listener{
		rpc:        rpc,
		engine:     eng,
		checkpoint: store,
		matcher:    codec.AllowAll{},
		maxBackoff: defaultMaxBackoff,
		logger:     telemetry.NewLogger("listener"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run subscribes to the ledger and applies accepted transactions until ctx
// is canceled. Disconnects never panic or propagate: they are logged and
// retried with capped exponential backoff, then the subscription resumes
// strictly after the last persisted checkpoint.
func (l *Listener) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			l.logger.Info("listener stopping: context canceled")
			return
		}
		l.runOnce(ctx)
	}
}

func (l *Listener) runOnce(ctx context.Context) {
	lastBlockID, err := l.checkpoint.LastBlockID()
	if err != nil {
		l.logger.Error("failed to read checkpoint, starting from genesis", "error", err)
		lastBlockID = ""
	}

	bo := l.newBackoff()
	for {
		if ctx.Err() != nil {
			return
		}
		txCh, reorgCh, errCh, err := l.rpc.Subscribe(ctx, lastBlockID)
		if err != nil {
			wait := bo.NextBackOff()
			if wait == backoff.Stop {
				l.logger.Error("giving up on ledger subscription", "error", err)
				return
			}
			l.logger.Warn("ledger subscription failed, retrying", "error", err, "wait", wait)
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
			continue
		}
		bo.Reset()

		lastBlockID = l.drain(ctx, txCh, reorgCh, errCh, lastBlockID)
		// drain returns when the subscription ended (error channel closed
		// or context canceled); loop around to resubscribe after the
		// updated checkpoint.
		if ctx.Err() != nil {
			return
		}
	}
}

// pending buffers transactions observed within the current subscription so
// they can be sorted by (accepting_daa_score, transaction_index) before
// being applied, tolerating out-of-order delivery from the RPC layer.
type pending struct {
	tx  AcceptedTransaction
	idx int
}

func (l *Listener) drain(ctx context.Context, txCh <-chan AcceptedTransaction, reorgCh <-chan ReorgEvent, errCh <-chan error, lastBlockID string) string {
	var buf []pending
	seq := 0

	flush := func() {
		sort.SliceStable(buf, func(i, j int) bool {
			a, b := buf[i].tx, buf[j].tx
			if a.AcceptingDAAScore != b.AcceptingDAAScore {
				return a.AcceptingDAAScore < b.AcceptingDAAScore
			}
			return a.TxIndex < b.TxIndex
		})
		for _, p := range buf {
			l.apply(p.tx)
			if p.tx.BlockID != "" {
				lastBlockID = p.tx.BlockID
			}
		}
		if lastBlockID != "" {
			if err := l.checkpoint.SetLastBlockID(lastBlockID); err != nil {
				l.logger.Error("failed to persist checkpoint", "error", err)
			}
		}
		buf = buf[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return lastBlockID
		case tx, ok := <-txCh:
			if !ok {
				flush()
				return lastBlockID
			}
			buf = append(buf, pending{tx: tx, idx: seq})
			seq++
			// Drain whatever else is already queued without blocking, so a
			// burst of near-simultaneous deliveries is sorted and applied
			// together rather than one transaction at a time.
			l.drainQueued(txCh, &buf, &seq)
			flush()
		case reorg, ok := <-reorgCh:
			if !ok {
				continue
			}
			flush()
			l.logger.Warn("reorg observed, rolling back", "depth", reorg.Depth)
			if l.recorder != nil {
				l.recorder.RecordEvent("reorg_observed", "depth", reorg.Depth)
			}
			l.engine.Reorg(reorg.Depth)
		case err, ok := <-errCh:
			if !ok {
				flush()
				return lastBlockID
			}
			if err != nil {
				l.logger.Error("ledger subscription error, resubscribing", "error", err)
			}
			flush()
			return lastBlockID
		}
	}
}

func (l *Listener) drainQueued(txCh <-chan AcceptedTransaction, buf *[]pending, seq *int) {
	for {
		select {
		case tx, ok := <-txCh:
			if !ok {
				return
			}
			*buf = append(*buf, pending{tx: tx, idx: *seq})
			*seq++
		default:
			return
		}
	}
}

func (l *Listener) apply(tx AcceptedTransaction) {
	if len(tx.Payload) < 4 || tx.Payload[0] != codec.Magic[0] || tx.Payload[1] != codec.Magic[1] ||
		tx.Payload[2] != codec.Magic[2] || tx.Payload[3] != codec.Magic[3] {
		return
	}
	if !l.matcher.Matches([]byte(tx.TxID)) {
		return
	}

	sender, err := sign.ParseSecp256k1PublicKey(tx.SenderPublicKey)
	if err != nil {
		l.logger.Warn("dropping transaction with unparseable sender key", "tx_id", tx.TxID, "error", err)
		return
	}

	meta := episode.Metadata{
		AcceptingTime:     tx.AcceptingTime,
		AcceptingDAAScore: tx.AcceptingDAAScore,
		TxID:              tx.TxID,
		TxIndex:           tx.TxIndex,
		Sender:            sender,
	}

	if _, err := l.engine.Apply(tx.Payload, meta, tx.AcceptingDAAScore, tx.TxIndex); err != nil {
		l.logger.Debug("transaction rejected by engine", "tx_id", tx.TxID, "error", err)
	}
}

func (l *Listener) newBackoff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 0 // retry forever; MaxInterval bounds the delay instead
	bo.MaxInterval = l.maxBackoff
	return bo
}

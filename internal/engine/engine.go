// Package engine dispatches confirmed ledger transactions to episodes. It
// owns the single authoritative map of EpisodeId to AuthEpisode and the
// global rollback stack reorgs unwind. The engine is single-writer: Apply
// and Reorg must only ever be called from one goroutine (the listener);
// Snapshot is safe for concurrent readers because it is taken under a
// short-held shared lock.
package engine

import (
	"encoding/hex"
	"sync"
	"time"

	"github.com/kdapp-net/auth-episode/internal/codec"
	"github.com/kdapp-net/auth-episode/internal/episode"
	"github.com/kdapp-net/auth-episode/internal/telemetry"
	"github.com/kdapp-net/auth-episode/pkg/log"
	"github.com/kdapp-net/auth-episode/pkg/sign"
)

// EventHandler is invoked synchronously on the writer goroutine after a
// successful Apply. Handlers MUST NOT mutate the episode (they receive a
// read-only Snapshot, not the live AuthEpisode) and MUST return quickly:
// the coordination layer's WebSocket fan-out uses a non-blocking channel
// for exactly this reason.
type EventHandler func(episodeID uint32, snap episode.Snapshot, tag codec.Tag, meta episode.Metadata)

// ReorgHandler is invoked synchronously after Reorg unwinds depth entries
// from the global rollback stack.
type ReorgHandler func(depth int)

// EvictionHandler is invoked synchronously when an episode is dropped
// because a command would have pushed its rollback stack past the cap.
type EvictionHandler func(episodeID uint32)

// appliedEntry is one entry in the engine's global rollback stack, ordered
// by application order (which Apply's caller is responsible for feeding in
// (accepting_daa_score, transaction_index) order).
type appliedEntry struct {
	episodeID    uint32
	txID         string
	isNewEpisode bool
	daaScore     uint64
	txIndex      uint32
}

// Engine owns the episode map and dispatches commands to it.
type Engine struct {
	mu sync.RWMutex

	episodes      map[uint32]*episode.AuthEpisode
	nextEpisodeID uint32
	rollbackCap   int

	global      []appliedEntry
	appliedTxID map[string]struct{}

	revokedAt  map[uint32]time.Time
	pruneAfter time.Duration

	handlers      []EventHandler
	reorgHandlers []ReorgHandler
	evictHandlers []EvictionHandler

	logger   telemetry.Logger
	recorder log.SpanEventRecorder
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithRollbackCap overrides the default per-episode rollback stack bound.
func WithRollbackCap(n int) Option {
	return func(e *Engine) { e.rollbackCap = n }
}

// WithPruneAfter overrides the default horizon after which Revoked episodes
// become eligible for pruning.
func WithPruneAfter(d time.Duration) Option {
	return func(e *Engine) { e.pruneAfter = d }
}

// WithSpanEventRecorder attaches a span recorder; apply/reorg events are
// recorded onto it when non-nil.
func WithSpanEventRecorder(rec log.SpanEventRecorder) Option {
	return func(e *Engine) { e.recorder = rec }
}

// WithLogger overrides the engine's logger.
func WithLogger(lg telemetry.Logger) Option {
	return func(e *Engine) { e.logger = lg }
}

const defaultPruneAfter = 24 * time.Hour

// New constructs an empty Engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		episodes:    make(map[uint32]*episode.AuthEpisode),
		appliedTxID: make(map[string]struct{}),
		revokedAt:   make(map[uint32]time.Time),
		rollbackCap: episode.DefaultRollbackCap,
		pruneAfter:  defaultPruneAfter,
		logger:      telemetry.NewLogger("engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// OnEvent registers an event handler. Handlers are invoked in registration
// order after every successful Apply.
func (e *Engine) OnEvent(h EventHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers = append(e.handlers, h)
}

// OnReorg registers a handler invoked after Reorg unwinds the rollback
// stack, for callers that only care about the fact and depth of a reorg
// (e.g. a metrics counter) rather than the individual episodes touched.
func (e *Engine) OnReorg(h ReorgHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reorgHandlers = append(e.reorgHandlers, h)
}

// OnEviction registers a handler invoked whenever an episode is dropped
// for exceeding its rollback stack cap.
func (e *Engine) OnEviction(h EvictionHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.evictHandlers = append(e.evictHandlers, h)
}

// Apply decodes and dispatches a confirmed transaction's payload to its
// target episode, creating a new episode for the NewEpisode command. It is
// idempotent: a transaction id already applied is silently skipped. raw is
// decoded via internal/codec before dispatch.
func (e *Engine) Apply(raw []byte, meta episode.Metadata, daaScore uint64, txIndex uint32) (uint32, error) {
	payload, err := codec.Unmarshal(raw)
	if err != nil {
		return 0, &episode.Error{Kind: episode.KindDecode}
	}
	return e.ApplyPayload(payload, meta, daaScore, txIndex)
}

// ApplyPayload dispatches an already-decoded payload. Exposed separately
// from Apply so tests and in-process submission paths can skip the wire
// round-trip.
func (e *Engine) ApplyPayload(payload codec.Payload, meta episode.Metadata, daaScore uint64, txIndex uint32) (uint32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, seen := e.appliedTxID[meta.TxID]; seen {
		e.logger.Debug("skipping already-applied transaction", "tx_id", meta.TxID)
		return payload.EpisodeID, nil
	}

	episodeID, err := e.applyLocked(payload, meta)
	if err != nil {
		if e.recorder != nil {
			e.recorder.RecordError("apply_failed", "episode_id", episodeID, "kind", errorKind(err))
		}
		return episodeID, err
	}

	e.appliedTxID[meta.TxID] = struct{}{}
	e.global = append(e.global, appliedEntry{
		episodeID:    episodeID,
		txID:         meta.TxID,
		isNewEpisode: payload.Tag == codec.TagNewEpisode,
		daaScore:     daaScore,
		txIndex:      txIndex,
	})

	ep := e.episodes[episodeID]
	if ep == nil {
		// Defensive only: eviction happens on applyLocked's error path,
		// which has already returned above.
		return episodeID, nil
	}
	snap := ep.Snapshot()
	if snap.Status == episode.StatusRevoked {
		e.revokedAt[episodeID] = time.Now()
	}

	if e.recorder != nil {
		e.recorder.RecordEvent("command_applied", "episode_id", episodeID, "tag", payload.Tag.String())
	}
	for _, h := range e.handlers {
		h(episodeID, snap, payload.Tag, meta)
	}
	return episodeID, nil
}

func (e *Engine) applyLocked(payload codec.Payload, meta episode.Metadata) (uint32, error) {
	switch body := payload.Body.(type) {
	case codec.NewEpisode:
		owner, err := sign.ParseSecp256k1PublicKey(body.OwnerPublicKey)
		if err != nil {
			return 0, &episode.Error{Kind: episode.KindDecode}
		}
		e.nextEpisodeID++
		id := e.nextEpisodeID
		e.episodes[id] = episode.New(owner, e.rollbackCap)
		return id, nil

	case codec.RequestChallenge:
		ep, ok := e.episodes[payload.EpisodeID]
		if !ok {
			return payload.EpisodeID, &episode.Error{Kind: episode.KindInvalidState, EpisodeID: payload.EpisodeID}
		}
		if err := ep.ApplyRequestChallenge(payload.EpisodeID, meta); err != nil {
			e.evictIfExhausted(payload.EpisodeID, err)
			return payload.EpisodeID, err
		}
		return payload.EpisodeID, nil

	case codec.SubmitResponse:
		ep, ok := e.episodes[payload.EpisodeID]
		if !ok {
			return payload.EpisodeID, &episode.Error{Kind: episode.KindInvalidState, EpisodeID: payload.EpisodeID}
		}
		sig, err := parseHexSignature(body.SignatureHex)
		if err != nil {
			return payload.EpisodeID, &episode.Error{Kind: episode.KindDecode, EpisodeID: payload.EpisodeID}
		}
		if err := ep.ApplySubmitResponse(payload.EpisodeID, body.Nonce, sig, meta); err != nil {
			e.evictIfExhausted(payload.EpisodeID, err)
			return payload.EpisodeID, err
		}
		return payload.EpisodeID, nil

	case codec.RevokeSession:
		ep, ok := e.episodes[payload.EpisodeID]
		if !ok {
			return payload.EpisodeID, &episode.Error{Kind: episode.KindInvalidState, EpisodeID: payload.EpisodeID}
		}
		sig, err := parseHexSignature(body.SignatureHex)
		if err != nil {
			return payload.EpisodeID, &episode.Error{Kind: episode.KindDecode, EpisodeID: payload.EpisodeID}
		}
		if err := ep.ApplyRevokeSession(payload.EpisodeID, body.SessionToken, sig, meta); err != nil {
			e.evictIfExhausted(payload.EpisodeID, err)
			return payload.EpisodeID, err
		}
		return payload.EpisodeID, nil

	default:
		return payload.EpisodeID, &episode.Error{Kind: episode.KindDecode, EpisodeID: payload.EpisodeID}
	}
}

// evictIfExhausted deletes an episode whose command failed with InvalidState
// while its rollback stack is at the cap. Older rollback records are never
// discarded to make room, so such an episode accepts no further commands
// and is dropped instead.
func (e *Engine) evictIfExhausted(episodeID uint32, err error) {
	epErr, ok := err.(*episode.Error)
	if !ok || epErr.Kind != episode.KindInvalidState {
		return
	}
	if ep, exists := e.episodes[episodeID]; exists && len(ep.RollbackStack) >= e.rollbackCap {
		delete(e.episodes, episodeID)
		delete(e.revokedAt, episodeID)
		e.logger.Warn("evicting episode: rollback stack exhausted", "episode_id", episodeID)
		for _, h := range e.evictHandlers {
			h(episodeID)
		}
	}
}

// Snapshot returns a read-only copy of an episode's state. ok is false if
// no episode with that id is known (never existed, or evicted/pruned).
func (e *Engine) Snapshot(episodeID uint32) (episode.Snapshot, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ep, ok := e.episodes[episodeID]
	if !ok {
		return episode.Snapshot{}, false
	}
	return ep.Snapshot(), true
}

func errorKind(err error) string {
	if epErr, ok := err.(*episode.Error); ok {
		return epErr.Kind.String()
	}
	return "Unknown"
}

func parseHexSignature(s string) (sign.Signature, error) {
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	return sign.Signature(decoded), nil
}

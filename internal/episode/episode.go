// Package episode implements the AuthEpisode state machine: the
// deterministic, ledger-replicated record of one authentication attempt.
// An AuthEpisode is mutated only by its Apply* command methods and by
// Rollback, never by wall-clock time or any
// other ambient input, so that two engines fed the same ordered sequence
// of ledger transactions always reach bit-identical state.
package episode

import (
	"github.com/kdapp-net/auth-episode/internal/kaspacrypto"
	"github.com/kdapp-net/auth-episode/pkg/sign"
)

// Status is the AuthEpisode's position in its lifecycle.
type Status int

const (
	StatusPendingChallenge Status = iota
	StatusChallenged
	StatusAuthenticated
	StatusRevoked
)

func (s Status) String() string {
	switch s {
	case StatusPendingChallenge:
		return "PendingChallenge"
	case StatusChallenged:
		return "Challenged"
	case StatusAuthenticated:
		return "Authenticated"
	case StatusRevoked:
		return "Revoked"
	default:
		return "Unknown"
	}
}

// Metadata is the ledger-derived context the engine attaches to every
// command dispatch. AcceptingTime seeds all downstream randomness and must
// be identical across every observer of the same transaction.
type Metadata struct {
	AcceptingTime     uint64
	AcceptingDAAScore uint64
	TxID              string
	TxIndex           uint32
	Sender            sign.PublicKey
}

// RollbackRecord is the minimal undo information pushed onto an episode's
// rollback stack after a successful Apply. Replaying it restores the
// episode to its exact pre-command state (invariant 5).
type RollbackRecord struct {
	PriorChallenge          *string
	PriorChallengeTimestamp uint64
	PriorStatus             Status
	PriorSessionToken       *string
}

// AuthEpisode is the authoritative record of one authentication attempt.
// Every field here is replicated state: it must be derivable solely from
// the ordered sequence of commands applied to it.
type AuthEpisode struct {
	Owner              sign.PublicKey
	Challenge          *string
	ChallengeTimestamp uint64
	Status             Status
	SessionToken       *string
	RollbackStack      []RollbackRecord

	// rollbackCap bounds RollbackStack. Records are never discarded: a
	// command that would push a record past the cap is rejected with
	// InvalidState and leaves the episode unchanged, and the engine then
	// evicts the episode.
	rollbackCap int
}

// DefaultRollbackCap is the per-episode rollback stack bound used when the
// engine does not override it.
const DefaultRollbackCap = 1024

// New creates the AuthEpisode produced by a NewEpisode transaction. It
// starts in PendingChallenge with an empty rollback stack.
func New(owner sign.PublicKey, rollbackCap int) *AuthEpisode {
	if rollbackCap <= 0 {
		rollbackCap = DefaultRollbackCap
	}
	return &AuthEpisode{
		Owner:       owner,
		Status:      StatusPendingChallenge,
		rollbackCap: rollbackCap,
	}
}

// Snapshot is a read-only copy of an episode's state, returned by the
// engine's snapshot operation for HTTP status reads.
type Snapshot struct {
	Owner              sign.PublicKey
	Challenge          *string
	ChallengeTimestamp uint64
	Status             Status
	SessionToken       *string
}

// Snapshot returns a read-only copy of the episode's current state.
func (e *AuthEpisode) Snapshot() Snapshot {
	return Snapshot{
		Owner:              e.Owner,
		Challenge:          e.Challenge,
		ChallengeTimestamp: e.ChallengeTimestamp,
		Status:             e.Status,
		SessionToken:       e.SessionToken,
	}
}

func sameSigner(a, b sign.PublicKey) bool {
	if a == nil || b == nil {
		return false
	}
	return a.Address().Equals(b.Address())
}

func strPtr(s string) *string { return &s }

// pushRollback records undo information and enforces the rollback cap.
// Returns false if the cap was exceeded and the episode should be evicted
// by the caller (the engine) rather than retain an unbounded history.
func (e *AuthEpisode) pushRollback(rec RollbackRecord) bool {
	if len(e.RollbackStack) >= e.rollbackCap {
		return false
	}
	e.RollbackStack = append(e.RollbackStack, rec)
	return true
}

// ApplyRequestChallenge handles the RequestChallenge command: only the
// owner may request a challenge, and only from PendingChallenge.
func (e *AuthEpisode) ApplyRequestChallenge(episodeID uint32, meta Metadata) error {
	if !sameSigner(meta.Sender, e.Owner) {
		return newError(KindUnauthorizedSender, episodeID, "RequestChallenge sender is not the episode owner")
	}
	if e.Status != StatusPendingChallenge {
		return newError(KindInvalidState, episodeID, "RequestChallenge not permitted in status %s", e.Status)
	}

	rec := RollbackRecord{
		PriorChallenge:          e.Challenge,
		PriorChallengeTimestamp: e.ChallengeTimestamp,
		PriorStatus:             e.Status,
		PriorSessionToken:       e.SessionToken,
	}
	if !e.pushRollback(rec) {
		return newError(KindInvalidState, episodeID, "rollback stack exhausted")
	}

	challenge := kaspacrypto.DeriveChallenge(meta.AcceptingTime)
	e.Challenge = strPtr(challenge)
	e.ChallengeTimestamp = meta.AcceptingTime
	e.Status = StatusChallenged
	return nil
}

// ApplySubmitResponse handles the SubmitResponse command: the nonce must
// equal the current challenge and the signature must verify against the
// episode owner's key over sha256(challenge).
func (e *AuthEpisode) ApplySubmitResponse(episodeID uint32, nonce string, sig sign.Signature, meta Metadata) error {
	if e.Status != StatusChallenged {
		return newError(KindInvalidState, episodeID, "SubmitResponse not permitted in status %s", e.Status)
	}
	if e.Challenge == nil || nonce != *e.Challenge {
		return newError(KindInvalidChallenge, episodeID, "nonce does not match current challenge")
	}
	if !kaspacrypto.Verify(e.Owner, *e.Challenge, sig) {
		return newError(KindInvalidSignature, episodeID, "signature does not verify against owner key")
	}

	rec := RollbackRecord{
		PriorChallenge:          e.Challenge,
		PriorChallengeTimestamp: e.ChallengeTimestamp,
		PriorStatus:             e.Status,
		PriorSessionToken:       e.SessionToken,
	}
	if !e.pushRollback(rec) {
		return newError(KindInvalidState, episodeID, "rollback stack exhausted")
	}

	token := kaspacrypto.DeriveSessionToken(e.ChallengeTimestamp)
	e.SessionToken = strPtr(token)
	e.Status = StatusAuthenticated
	return nil
}

// ApplyRevokeSession handles the RevokeSession command: the token must
// match the episode's current session token and the signature must verify
// against the owner's key over sha256(token).
func (e *AuthEpisode) ApplyRevokeSession(episodeID uint32, token string, sig sign.Signature, meta Metadata) error {
	if e.Status != StatusAuthenticated {
		return newError(KindInvalidState, episodeID, "RevokeSession not permitted in status %s", e.Status)
	}
	if e.SessionToken == nil || token != *e.SessionToken {
		return newError(KindInvalidToken, episodeID, "session token does not match")
	}
	if !kaspacrypto.Verify(e.Owner, token, sig) {
		return newError(KindInvalidSignature, episodeID, "signature does not verify against owner key")
	}

	rec := RollbackRecord{
		PriorChallenge:          e.Challenge,
		PriorChallengeTimestamp: e.ChallengeTimestamp,
		PriorStatus:             e.Status,
		PriorSessionToken:       e.SessionToken,
	}
	if !e.pushRollback(rec) {
		return newError(KindInvalidState, episodeID, "rollback stack exhausted")
	}

	e.SessionToken = nil
	e.Status = StatusRevoked
	return nil
}

// Rollback pops and reverses the most recent applied command. It is the
// engine's responsibility to invoke this in reverse chronological order
// during a reorg; Rollback itself has no notion of ordering across
// episodes.
func (e *AuthEpisode) Rollback() bool {
	n := len(e.RollbackStack)
	if n == 0 {
		return false
	}
	rec := e.RollbackStack[n-1]
	e.RollbackStack = e.RollbackStack[:n-1]

	e.Challenge = rec.PriorChallenge
	e.ChallengeTimestamp = rec.PriorChallengeTimestamp
	e.Status = rec.PriorStatus
	e.SessionToken = rec.PriorSessionToken
	return true
}

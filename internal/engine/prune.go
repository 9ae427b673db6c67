package engine

import "time"

// PruneRevoked evicts Revoked episodes whose revocation happened more than
// PruneAfter ago. It is operational housekeeping, not protocol state: which
// episodes remain in memory never affects what a fresh engine would
// compute from the same transaction history, only how far back a
// late-arriving verifier can still observe a terminal state.
func (e *Engine) PruneRevoked(now time.Time) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	pruned := 0
	for id, revokedAt := range e.revokedAt {
		if now.Sub(revokedAt) < e.pruneAfter {
			continue
		}
		delete(e.episodes, id)
		delete(e.revokedAt, id)
		pruned++
	}
	if pruned > 0 {
		e.logger.Debug("pruned revoked episodes past horizon", "count", pruned)
	}
	return pruned
}

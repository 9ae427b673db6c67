package engine

// Reorg unwinds the most recent depth entries of the global rollback stack,
// in reverse application order: each NewEpisode entry deletes its episode
// outright, every other entry pops one rollback record from its episode.
// The caller (the listener) is responsible for re-applying the new chain
// head's commands from the fork point afterward; Reorg itself only undoes.
func (e *Engine) Reorg(depth int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if depth > len(e.global) {
		depth = len(e.global)
	}
	for i := 0; i < depth; i++ {
		n := len(e.global)
		entry := e.global[n-1]
		e.global = e.global[:n-1]
		delete(e.appliedTxID, entry.txID)

		if entry.isNewEpisode {
			delete(e.episodes, entry.episodeID)
			delete(e.revokedAt, entry.episodeID)
			continue
		}
		if ep, ok := e.episodes[entry.episodeID]; ok {
			ep.Rollback()
			delete(e.revokedAt, entry.episodeID)
		}
	}

	if e.recorder != nil {
		e.recorder.RecordEvent("reorg", "depth", depth)
	}
	e.logger.Info("rolled back applied transactions for reorg", "depth", depth)
	for _, h := range e.reorgHandlers {
		h(depth)
	}
}

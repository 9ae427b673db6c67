// Package coordination is the stateless HTTP and WebSocket surface a
// browser peer uses when it cannot submit ledger transactions itself.
// Every handler that changes protocol state builds a command, submits it
// through the ledger submitter as a real transaction, and then waits for the engine to
// observe and apply that same transaction before responding — it never
// mutates engine state directly, and the engine snapshot is the only read
// source for GET /auth/status.
package coordination

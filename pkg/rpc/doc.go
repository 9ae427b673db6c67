// Package rpc talks to a single Kaspa node over a JSON-over-WebSocket
// connection: one goroutine reads and routes incoming frames by request
// id, one sends periodic pings, and Call blocks the caller until its
// frame's reply arrives or the context ends.
//
// This is a client only. The protocol has no notion of multi-party
// signatures or connection groups; a Kaspa node does not expect a caller
// to sign its own RPC requests, so Request and Response here carry a bare
// Payload and nothing else. internal/kasparpc builds the two calls this
// module actually needs, subscribing to accepted transactions and
// submitting one, on top of Dialer.
package rpc

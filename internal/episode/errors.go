package episode

import "fmt"

// Kind enumerates the semantic error categories a command apply can fail
// with. The HTTP coordination layer maps each Kind to a status code and
// JSON error shape; callers should switch on Kind rather than match error
// strings.
type Kind int

const (
	// KindInvalidSignature means the recovered signer's signature failed
	// ECDSA verification against the expected message.
	KindInvalidSignature Kind = iota
	// KindInvalidState means the command is not permitted in the
	// episode's current status.
	KindInvalidState
	// KindInvalidChallenge means the submitted nonce does not match the
	// episode's current challenge.
	KindInvalidChallenge
	// KindInvalidToken means the submitted session token does not match
	// the episode's current token.
	KindInvalidToken
	// KindUnauthorizedSender means the recovered sender is not the
	// episode's owner (or expected counterparty).
	KindUnauthorizedSender
	// KindDecode means the transaction payload was malformed or carried
	// an unknown command tag.
	KindDecode
	// KindLedgerUnavailable means an RPC to the ledger timed out or the
	// connection was lost.
	KindLedgerUnavailable
	// KindWalletUnavailable means the wallet key file was missing or
	// unreadable.
	KindWalletUnavailable
	// KindTimeout means the coordination layer gave up waiting for
	// ledger confirmation of a submitted transaction.
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindInvalidSignature:
		return "InvalidSignature"
	case KindInvalidState:
		return "InvalidState"
	case KindInvalidChallenge:
		return "InvalidChallenge"
	case KindInvalidToken:
		return "InvalidToken"
	case KindUnauthorizedSender:
		return "UnauthorizedSender"
	case KindDecode:
		return "Decode"
	case KindLedgerUnavailable:
		return "LedgerUnavailable"
	case KindWalletUnavailable:
		return "WalletUnavailable"
	case KindTimeout:
		return "Timeout"
	default:
		return "Unknown"
	}
}

// Error is a typed error carrying the semantic Kind the coordination layer
// and CLI exit codes key off. It never wraps a panic: every Error returned
// by this package corresponds to data-driven, expected rejection of a
// command, not an internal fault.
type Error struct {
	Kind      Kind
	EpisodeID uint32
	msg       string
}

func newError(kind Kind, episodeID uint32, format string, args ...any) *Error {
	return &Error{Kind: kind, EpisodeID: episodeID, msg: fmt.Sprintf(format, args...)}
}

// Wrap constructs an Error of the given Kind from an underlying error,
// for packages outside episode (wallet, listener) that need to surface a
// typed, Kind-carrying failure without duplicating the Kind taxonomy.
func Wrap(kind Kind, episodeID uint32, err error) *Error {
	return &Error{Kind: kind, EpisodeID: episodeID, msg: err.Error()}
}

func (e *Error) Error() string {
	return fmt.Sprintf("episode %d: %s: %s", e.EpisodeID, e.Kind, e.msg)
}

// Is reports whether target is an *Error with the same Kind, so
// errors.Is(err, &episode.Error{Kind: episode.KindX}) matches on Kind alone;
// most callers instead type-assert to *Error and read Kind directly.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	return ok && other.Kind == e.Kind
}

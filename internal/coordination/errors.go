package coordination

import (
	"encoding/json"
	"net/http"

	"github.com/kdapp-net/auth-episode/internal/episode"
)

// errorBody is the stable JSON error shape every failed request returns:
// {error, kind, episode_id?}. kind is always one of episode.Kind's String
// values so a client can switch on it without parsing the message text.
type errorBody struct {
	Error     string  `json:"error"`
	Kind      string  `json:"kind"`
	EpisodeID *uint32 `json:"episode_id,omitempty"`
}

// statusForKind maps a protocol error kind to the HTTP status the spec
// assigns it: 4xx for client-caused rejections, 5xx for ledger/wallet
// faults the client could not have avoided.
func statusForKind(kind episode.Kind) int {
	switch kind {
	case episode.KindInvalidSignature:
		return http.StatusUnauthorized
	case episode.KindUnauthorizedSender:
		return http.StatusForbidden
	case episode.KindInvalidState:
		return http.StatusConflict
	case episode.KindInvalidChallenge, episode.KindInvalidToken, episode.KindDecode:
		return http.StatusBadRequest
	case episode.KindLedgerUnavailable:
		return http.StatusBadGateway
	case episode.KindWalletUnavailable:
		return http.StatusInternalServerError
	case episode.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// writeError translates err into the stable JSON error shape. Errors that
// are not a *episode.Error are
// reported as Decode, since they represent a malformed request the client
// sent rather than anything the ledger or wallet did.
func writeError(w http.ResponseWriter, err error) {
	epErr, ok := err.(*episode.Error)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error(), Kind: episode.KindDecode.String()})
		return
	}
	body := errorBody{Error: epErr.Error(), Kind: epErr.Kind.String()}
	if epErr.EpisodeID != 0 {
		id := epErr.EpisodeID
		body.EpisodeID = &id
	}
	writeJSON(w, statusForKind(epErr.Kind), body)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

package coordination

import (
	"encoding/json"

	"github.com/kdapp-net/auth-episode/internal/codec"
	"github.com/kdapp-net/auth-episode/internal/episode"
)

// wsEvent is the JSON shape pushed over GET /ws: {type, episode_id, ...}.
// session_token, when present, is always copied verbatim from the engine
// snapshot — it is never synthesized by the coordination layer.
type wsEvent struct {
	Type         string  `json:"type"`
	EpisodeID    uint32  `json:"episode_id"`
	Challenge    *string `json:"challenge,omitempty"`
	SessionToken *string `json:"session_token,omitempty"`
}

func eventTypeForTag(tag codec.Tag) string {
	switch tag {
	case codec.TagNewEpisode:
		return "episode_created"
	case codec.TagRequestChallenge:
		return "challenge_issued"
	case codec.TagSubmitResponse:
		return "authentication_successful"
	case codec.TagRevokeSession:
		return "session_revoked"
	default:
		return "error"
	}
}

func marshalEvent(episodeID uint32, snap episode.Snapshot, tag codec.Tag) []byte {
	ev := wsEvent{
		Type:         eventTypeForTag(tag),
		EpisodeID:    episodeID,
		Challenge:    snap.Challenge,
		SessionToken: snap.SessionToken,
	}
	b, _ := json.Marshal(ev)
	return b
}

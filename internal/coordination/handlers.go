package coordination

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/kdapp-net/auth-episode/internal/codec"
	"github.com/kdapp-net/auth-episode/internal/episode"
)

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, d)
}

func (s *Server) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, episode.Wrap(episode.KindDecode, 0, err))
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		writeError(w, episode.Wrap(episode.KindDecode, 0, err))
		return false
	}
	return true
}

// submitAndAwait submits raw and blocks for its confirmation, translating
// a context deadline into the protocol's Timeout error kind.
func (s *Server) submitAndAwait(r *http.Request, raw []byte) (confirmation, string, error) {
	ctx, cancel := r.Context(), func() {}
	if s.confirmTimeout > 0 {
		ctx, cancel = withTimeout(r.Context(), s.confirmTimeout)
	}
	defer cancel()

	txID, err := s.submitter.Submit(ctx, raw)
	if err != nil {
		return confirmation{}, "", episode.Wrap(episode.KindLedgerUnavailable, 0, err)
	}
	c, err := s.wait.await(ctx, txID)
	return c, txID, err
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	pubKey, err := decodeHex("public_key", req.PublicKey)
	if err != nil {
		writeError(w, episode.Wrap(episode.KindDecode, 0, err))
		return
	}

	raw := codec.Marshal(0, codec.TagNewEpisode, codec.NewEpisode{OwnerPublicKey: pubKey})
	c, txID, err := s.submitAndAwait(r, raw)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, startResponse{EpisodeID: c.episodeID, TransactionID: txID})
}

func (s *Server) handleRequestChallenge(w http.ResponseWriter, r *http.Request) {
	var req requestChallengeRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	raw := codec.Marshal(req.EpisodeID, codec.TagRequestChallenge, codec.RequestChallenge{})
	c, txID, err := s.submitAndAwait(r, raw)
	if err != nil {
		writeError(w, err)
		return
	}
	challenge := ""
	if c.snapshot.Challenge != nil {
		challenge = *c.snapshot.Challenge
	}
	writeJSON(w, http.StatusOK, requestChallengeResponse{
		EpisodeID:     c.episodeID,
		TransactionID: txID,
		Challenge:     challenge,
	})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	raw := codec.Marshal(req.EpisodeID, codec.TagSubmitResponse, codec.SubmitResponse{
		SignatureHex: req.Signature,
		Nonce:        req.Nonce,
	})
	c, txID, err := s.submitAndAwait(r, raw)
	if err != nil {
		writeError(w, err)
		return
	}
	token := ""
	if c.snapshot.SessionToken != nil {
		token = *c.snapshot.SessionToken
	}
	writeJSON(w, http.StatusOK, verifyResponse{EpisodeID: c.episodeID, TransactionID: txID, SessionToken: token})
}

func (s *Server) handleRevokeSession(w http.ResponseWriter, r *http.Request) {
	var req revokeRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	raw := codec.Marshal(req.EpisodeID, codec.TagRevokeSession, codec.RevokeSession{
		SessionToken: req.SessionToken,
		SignatureHex: req.Signature,
	})
	c, txID, err := s.submitAndAwait(r, raw)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, revokeResponse{EpisodeID: c.episodeID, TransactionID: txID})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	episodeID, err := parseEpisodeIDQuery(r.PathValue("episode_id"))
	if err != nil {
		writeError(w, episode.Wrap(episode.KindDecode, 0, err))
		return
	}

	snap, ok := s.eng.Snapshot(episodeID)
	if !ok {
		writeError(w, episode.Wrap(episode.KindInvalidState, episodeID, errEpisodeNotFound))
		return
	}

	resp := statusResponse{
		EpisodeID:    episodeID,
		Status:       snap.Status.String(),
		SessionToken: snap.SessionToken,
	}
	if s.fallbackEnabled {
		resp.Challenge = snap.Challenge
	}
	writeJSON(w, http.StatusOK, resp)
}

var errEpisodeNotFound = errNotFound{}

type errNotFound struct{}

func (errNotFound) Error() string { return "episode not found" }

package kaspacrypto

import "strconv"

// DeriveChallenge computes the challenge string an episode sets when it
// processes RequestChallenge. It is a pure function of the accepting
// timestamp so every observer replaying the same transaction computes the
// identical string.
func DeriveChallenge(acceptingTime uint64) string {
	return "auth_" + strconv.FormatUint(acceptingTime, 10) + "_" + strconv.FormatUint(DeterministicU64(acceptingTime), 10)
}

// DeriveSessionToken computes the session token an episode sets on a
// successful SubmitResponse. Like DeriveChallenge, it is a pure function of
// the challenge's accepting timestamp.
func DeriveSessionToken(challengeTimestamp uint64) string {
	return "sess_" + strconv.FormatUint(DeterministicU64(challengeTimestamp), 10)
}

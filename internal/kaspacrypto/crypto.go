// Package kaspacrypto wraps pkg/sign with the two operations the authentication
// protocol treats as consensus-critical: deterministic derivation of
// protocol-visible strings from a ledger timestamp, and the secp256k1
// sign/verify pair used to authorize commands. Every function here must
// behave identically across processes and restarts; nothing in this package
// may consult a clock, an RNG, or any other ambient source of entropy except
// generate_keypair, whose output is never part of replicated episode state.
package kaspacrypto

import (
	"crypto/sha256"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/kdapp-net/auth-episode/pkg/sign"
)

// GenerateKeypair returns a fresh secp256k1 keypair backed by the OS CSPRNG.
// The result is never derived from ledger state and must not be confused
// with DeterministicU64, which is.
func GenerateKeypair() (*sign.Secp256k1Signer, error) {
	secret, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate secp256k1 keypair: %w", err)
	}
	return sign.NewSecp256k1Signer(secret.Serialize())
}

// HashChallenge returns the SHA-256 digest of a UTF-8 string, the hash
// function used everywhere the protocol signs a challenge or session token.
func HashChallenge(s string) []byte {
	h := sha256.Sum256([]byte(s))
	return h[:]
}

// Sign produces a DER-encoded ECDSA signature over the SHA-256 hash of msg.
func Sign(signer *sign.Secp256k1Signer, msg string) (sign.Signature, error) {
	return signer.Sign(HashChallenge(msg))
}

// Verify checks a DER-encoded ECDSA signature against the SHA-256 hash of
// msg and the given public key.
func Verify(pub sign.PublicKey, msg string, sig sign.Signature) bool {
	return sign.Verify(pub, HashChallenge(msg), sig)
}

package kaspacrypto

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/chacha20"
)

// chachaNonce is the all-zero 12-byte nonce used for every keystream draw.
// The seed itself is folded into the key, so the nonce carries no entropy
// and is fixed rather than derived.
var chachaNonce = make([]byte, chacha20.NonceSize)

// DeterministicU64 is the consensus point of the whole protocol: every
// implementation, in every language, must produce the same u64 for the same
// seed. The construction is SHA-256(big-endian seed) used as a 32-byte
// ChaCha20 key with an all-zero nonce; the first 8 bytes of the resulting
// keystream are interpreted little-endian.
//
// The protocol's origin specifies an 8-round ChaCha8 construction; Go's
// ecosystem ChaCha implementation (golang.org/x/crypto/chacha20) only
// exposes the standard 20-round cipher, so this pins the 20-round variant
// as the canonical cross-language point instead of hand-rolling an
// unaudited reduced-round cipher. Every peer in a deployment must agree on
// this exact construction, not merely on "ChaCha seeded from the timestamp".
func DeterministicU64(seed uint64) uint64 {
	var seedBytes [8]byte
	binary.BigEndian.PutUint64(seedBytes[:], seed)
	key := sha256.Sum256(seedBytes[:])

	cipher, err := chacha20.NewUnauthenticatedCipher(key[:], chachaNonce)
	if err != nil {
		// key and nonce are fixed-size local constants; this can only fail
		// if the constants above are wrong.
		panic(fmt.Sprintf("kaspacrypto: invalid chacha20 parameters: %v", err))
	}

	var keystream [8]byte
	cipher.XORKeyStream(keystream[:], keystream[:])
	return binary.LittleEndian.Uint64(keystream[:])
}

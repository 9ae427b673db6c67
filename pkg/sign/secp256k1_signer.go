package sign

import (
	"encoding/hex"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// Ensure our types implement the interfaces at compile time.
var _ Signer = (*Secp256k1Signer)(nil)
var _ PublicKey = (*Secp256k1PublicKey)(nil)
var _ Address = (*Secp256k1Address)(nil)

// Secp256k1Address is a hex-encoded compressed secp256k1 public key used
// as the peer's identity string.
type Secp256k1Address string

func (a Secp256k1Address) String() string { return string(a) }

// Equals returns true if this address equals the other address.
func (a Secp256k1Address) Equals(other Address) bool {
	return a.String() == other.String()
}

// Secp256k1PublicKey implements the PublicKey interface using the
// 33-byte compressed serialization of a secp256k1 point.
type Secp256k1PublicKey struct {
	key *secp256k1.PublicKey
}

// NewSecp256k1PublicKey wraps a decoded secp256k1 public key.
func NewSecp256k1PublicKey(key *secp256k1.PublicKey) Secp256k1PublicKey {
	return Secp256k1PublicKey{key: key}
}

// ParseSecp256k1PublicKey decodes a 33-byte compressed public key.
func ParseSecp256k1PublicKey(compressed []byte) (Secp256k1PublicKey, error) {
	key, err := secp256k1.ParsePubKey(compressed)
	if err != nil {
		return Secp256k1PublicKey{}, fmt.Errorf("parse secp256k1 public key: %w", err)
	}
	return Secp256k1PublicKey{key: key}, nil
}

// Address returns the hex encoding of the compressed public key.
func (p Secp256k1PublicKey) Address() Address {
	return Secp256k1Address(hex.EncodeToString(p.Bytes()))
}

// Bytes returns the 33-byte compressed point encoding.
func (p Secp256k1PublicKey) Bytes() []byte {
	return p.key.SerializeCompressed()
}

// Raw exposes the underlying decred secp256k1 key for callers (e.g. Verify)
// that need it directly rather than through the interface.
func (p Secp256k1PublicKey) Raw() *secp256k1.PublicKey { return p.key }

// Secp256k1Signer signs with a secp256k1 private key using non-recoverable
// ECDSA, matching the signature scheme embedded in a Kaspa transaction's
// signature script.
type Secp256k1Signer struct {
	private *secp256k1.PrivateKey
	public  Secp256k1PublicKey
}

// NewSecp256k1Signer constructs a signer from a 32-byte scalar.
func NewSecp256k1Signer(secret []byte) (*Secp256k1Signer, error) {
	if len(secret) != 32 {
		return nil, fmt.Errorf("secp256k1 secret key must be 32 bytes, got %d", len(secret))
	}
	priv := secp256k1.PrivKeyFromBytes(secret)
	return &Secp256k1Signer{
		private: priv,
		public:  Secp256k1PublicKey{key: priv.PubKey()},
	}, nil
}

// PublicKey returns the signer's public key.
func (s *Secp256k1Signer) PublicKey() PublicKey { return s.public }

// RawSecretKey returns the 32-byte scalar backing this signer, for callers
// that must persist it (e.g. wallet file storage). Callers must not retain
// or log the returned slice beyond that immediate use.
func (s *Secp256k1Signer) RawSecretKey() []byte {
	return s.private.Serialize()
}

// Sign produces a DER-encoded ECDSA signature over the given message hash.
// Callers are responsible for hashing (spec requires SHA-256 of the
// challenge string).
func (s *Secp256k1Signer) Sign(hash []byte) (Signature, error) {
	sig := ecdsa.Sign(s.private, hash)
	return Signature(sig.Serialize()), nil
}

// Verify checks a DER-encoded ECDSA signature against a public key and
// message hash. It is the counterpart to Secp256k1Signer.Sign and is used
// by the episode state machine to validate SubmitResponse and
// RevokeSession commands.
func Verify(pub PublicKey, hash []byte, sig Signature) bool {
	raw, ok := pub.(Secp256k1PublicKey)
	if !ok {
		return false
	}
	parsed, err := ecdsa.ParseDERSignature(sig)
	if err != nil {
		return false
	}
	return parsed.Verify(hash, raw.Raw())
}

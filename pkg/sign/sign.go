package sign

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Signer is an interface for a blockchain-agnostic signer.
type Signer interface {
	PublicKey() PublicKey                // Public key associated with this signer.
	Sign(data []byte) (Signature, error) // Sign generates a signature for the given data.
}

// PublicKey is an interface for a blockchain-agnostic public key.
type PublicKey interface {
	Address() Address
	Bytes() []byte
}

// Address is an interface for a blockchain-specific identity string derived
// from a public key. For secp256k1 identities this is simply the hex
// encoding of the compressed public key; there is no separate address
// derivation step the way there is for account-based chains.
type Address interface {
	fmt.Stringer

	// Equals returns true if this address equals the other address.
	Equals(other Address) bool
}

// Signature is a generic byte slice representing a cryptographic signature.
type Signature []byte

// Type represents the signature type/platform used for signatures.
type Type uint8

const (
	// TypeSecp256k1 identifies a DER-encoded ECDSA signature over
	// secp256k1, as used by the Kaspa transaction signature script.
	TypeSecp256k1 Type = iota
	TypeUnknown        = 255
)

// String returns the string representation of the algorithm.
func (t Type) String() string {
	switch t {
	case TypeSecp256k1:
		return "Secp256k1"
	default:
		return "Unknown"
	}
}

// Type returns the signature type for this signature. DER-encoded ECDSA
// signatures are short ASN.1 sequences; anything implausibly short or long
// is reported as unknown rather than guessed at.
func (s Signature) Type() Type {
	if len(s) >= 8 && len(s) <= 72 {
		return TypeSecp256k1
	}
	return TypeUnknown
}

// MarshalJSON implements the json.Marshaler interface, encoding the signature as a hex string.
func (s Signature) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface.
func (s *Signature) UnmarshalJSON(data []byte) error {
	var hexStr string
	if err := json.Unmarshal(data, &hexStr); err != nil {
		return err
	}
	decoded, err := hex.DecodeString(hexStr)
	if err != nil {
		return err
	}
	*s = decoded
	return nil
}

// String implements the fmt.Stringer interface.
func (s Signature) String() string {
	return hex.EncodeToString(s)
}

// Package sign provides blockchain-agnostic cryptographic signing interfaces.
//
// This package defines core interfaces for digital signatures that can be
// implemented by various blockchain ecosystems while maintaining a consistent
// API for signing operations.
//
// The primary interfaces are:
//
//   - Signer: Core interface for cryptographic signing operations
//   - PublicKey: Interface for public key operations
//   - Address: Interface for blockchain addresses
//
// # Security Design
//
// This package follows security best practices by:
//   - Never exposing private key material through interfaces
//   - Providing only necessary operations (signing and public key access)
//   - Preventing accidental private key leakage in logs or debugging
//
// Usage
//
//	// Create a new secp256k1 signer from a 32-byte secret key.
//	signer, err := sign.NewSecp256k1Signer(secretKeyBytes)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Sign a message hash (the caller is responsible for hashing).
//	hash := sha256.Sum256([]byte("auth_1700000000_9182736451"))
//	signature, err := signer.Sign(hash[:])
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Get the public key and verify independently.
//	pub := signer.PublicKey()
//	ok := sign.Verify(pub, hash[:], signature)
package sign

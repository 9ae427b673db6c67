// Package wallet persists a peer's secp256k1 identity to a fixed file path
// and guards the one signing operation that ever touches the secret key.
// Identity is the keypair: this package never regenerates one when a file
// already exists, and fails loudly rather than silently minting a new
// identity if an existing file cannot be parsed.
package wallet

import (
	"fmt"
	"os"
	"sync"

	"github.com/kdapp-net/auth-episode/internal/episode"
	"github.com/kdapp-net/auth-episode/internal/kaspacrypto"
	"github.com/kdapp-net/auth-episode/pkg/sign"
)

const (
	secretKeyLen = 32
	// fileLen is the secret key followed by a single was_created byte.
	fileLen = secretKeyLen + 1
)

// Wallet holds a loaded or freshly generated identity behind a mutex; only
// Sign ever touches the private key, and it does so for a single ECDSA
// operation at a time.
type Wallet struct {
	mu         sync.Mutex
	signer     *sign.Secp256k1Signer
	wasCreated bool
	path       string
}

func unavailable(format string, args ...any) error {
	return episode.Wrap(episode.KindWalletUnavailable, 0, fmt.Errorf(format, args...))
}

// Load reads the wallet file at path, creating a fresh keypair and writing
// it there only if the file does not exist. If the file exists but cannot
// be parsed, Load fails rather than overwrite it: an unparseable file is
// never treated as an invitation to mint a new identity.
func Load(path string) (*Wallet, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		return loadFromBytes(path, data)
	}
	if !os.IsNotExist(err) {
		return nil, unavailable("read wallet file %s: %w", path, err)
	}
	return create(path)
}

func loadFromBytes(path string, data []byte) (*Wallet, error) {
	if len(data) != fileLen {
		return nil, unavailable("wallet file %s has length %d, want %d", path, len(data), fileLen)
	}
	signer, err := sign.NewSecp256k1Signer(data[:secretKeyLen])
	if err != nil {
		return nil, unavailable("wallet file %s: %w", path, err)
	}
	// The stored was_created byte records the file's creation; an existing
	// file means no identity was minted on this call.
	return &Wallet{signer: signer, wasCreated: false, path: path}, nil
}

func create(path string) (*Wallet, error) {
	signer, err := kaspacrypto.GenerateKeypair()
	if err != nil {
		return nil, unavailable("generate wallet keypair: %w", err)
	}

	buf := make([]byte, 0, fileLen)
	buf = append(buf, signer.RawSecretKey()...)
	buf = append(buf, 1)
	if err := os.WriteFile(path, buf, 0o600); err != nil {
		return nil, unavailable("write wallet file %s: %w", path, err)
	}

	return &Wallet{signer: signer, wasCreated: true, path: path}, nil
}

// WasCreated reports whether Load minted a fresh identity on this call.
// It is informational for first-run UX only and must never gate signing.
func (w *Wallet) WasCreated() bool { return w.wasCreated }

// PublicKey returns the wallet's public identity.
func (w *Wallet) PublicKey() sign.PublicKey {
	return w.signer.PublicKey()
}

// Sign signs msg under the wallet's secret key, holding the mutex for the
// duration of the single ECDSA operation.
func (w *Wallet) Sign(msg string) (sign.Signature, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return kaspacrypto.Sign(w.signer, msg)
}

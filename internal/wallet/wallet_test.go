package wallet_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kdapp-net/auth-episode/internal/episode"
	"github.com/kdapp-net/auth-episode/internal/kaspacrypto"
	"github.com/kdapp-net/auth-episode/internal/wallet"
)

func TestLoadCreatesFreshIdentityWhenFileMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wallet.bin")

	w, err := wallet.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !w.WasCreated() {
		t.Fatal("WasCreated() = false, want true for a fresh wallet")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read wallet file: %v", err)
	}
	if len(data) != 33 {
		t.Fatalf("wallet file length = %d, want 33", len(data))
	}
	if data[32] != 1 {
		t.Fatalf("was_created byte = %d, want 1", data[32])
	}
}

func TestLoadReusesExistingIdentity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wallet.bin")

	first, err := wallet.Load(path)
	if err != nil {
		t.Fatalf("Load (create): %v", err)
	}

	second, err := wallet.Load(path)
	if err != nil {
		t.Fatalf("Load (reuse): %v", err)
	}
	if second.WasCreated() {
		t.Fatal("WasCreated() = true on second load, want false")
	}
	if first.PublicKey().Address().String() != second.PublicKey().Address().String() {
		t.Fatal("reloaded wallet has a different public key than the one that created the file")
	}
}

func TestLoadFailsLoudlyOnUnparseableFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wallet.bin")
	if err := os.WriteFile(path, []byte("not a wallet"), 0o600); err != nil {
		t.Fatalf("seed bad wallet file: %v", err)
	}

	_, err := wallet.Load(path)
	if err == nil {
		t.Fatal("Load succeeded on an unparseable file, want error")
	}
	epErr, ok := err.(*episode.Error)
	if !ok {
		t.Fatalf("error type = %T, want *episode.Error", err)
	}
	if epErr.Kind != episode.KindWalletUnavailable {
		t.Fatalf("error kind = %v, want KindWalletUnavailable", epErr.Kind)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read wallet file after failed load: %v", err)
	}
	if string(data) != "not a wallet" {
		t.Fatal("Load overwrote an unparseable wallet file instead of failing loudly")
	}
}

func TestSignProducesVerifiableSignature(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wallet.bin")
	w, err := wallet.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	const msg = "auth_1700000000_12345"
	sig, err := w.Sign(msg)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if !kaspacrypto.Verify(w.PublicKey(), msg, sig) {
		t.Fatal("signature produced by wallet failed verification against its own public key")
	}
	if kaspacrypto.Verify(w.PublicKey(), "different message", sig) {
		t.Fatal("signature verified against a different message, want failure")
	}
}

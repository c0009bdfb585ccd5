package ledger

import (
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"os"
)

// Keypair is an ed25519 signing key with its account address.
type Keypair struct {
	priv ed25519.PrivateKey
}

// LoadKeypairFile reads the standard wallet keyfile format: a JSON array of
// 64 bytes (32-byte seed followed by the 32-byte public key).
func LoadKeypairFile(path string) (*Keypair, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ledger: read keypair %s: %w", path, err)
	}
	var bytes []byte
	if err := json.Unmarshal(raw, &bytes); err != nil {
		return nil, fmt.Errorf("ledger: parse keypair %s: %w", path, err)
	}
	return KeypairFromBytes(bytes)
}

// KeypairFromBytes builds a Keypair from a 64-byte secret.
func KeypairFromBytes(b []byte) (*Keypair, error) {
	if len(b) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("ledger: keypair is %d bytes, want %d", len(b), ed25519.PrivateKeySize)
	}
	return &Keypair{priv: ed25519.PrivateKey(b)}, nil
}

// NewKeypair generates a fresh random keypair (tests and dev tooling).
func NewKeypair() (*Keypair, error) {
	_, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, fmt.Errorf("ledger: generate keypair: %w", err)
	}
	return &Keypair{priv: priv}, nil
}

// Pubkey returns the keypair's account address.
func (k *Keypair) Pubkey() PublicKey {
	var pk PublicKey
	copy(pk[:], k.priv.Public().(ed25519.PublicKey))
	return pk
}

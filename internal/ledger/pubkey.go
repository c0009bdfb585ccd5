// Package ledger is the gateway to the on-chain candle markets program: it
// derives program accounts, encodes instructions, assembles and signs
// transactions, and decodes account state back into domain types. The
// instruction encoding and address derivation are a bit-exact wire contract
// with the program and are reproduced here so state can be located and
// verified without any lookup table.
package ledger

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// PublicKey is a 32-byte ed25519 account address.
type PublicKey [32]byte

// SystemProgramID is the native system program that owns account creation.
var SystemProgramID = MustParsePubkey("11111111111111111111111111111111")

// pdaMarker is appended to the seed hash so program-derived addresses can
// never collide with addresses derived any other way.
const pdaMarker = "ProgramDerivedAddress"

// ErrNoBumpFound is returned when no bump seed in [0,255] produces an
// off-curve address. Probability ~2^-256 per seed set; it exists to keep the
// search total.
var ErrNoBumpFound = errors.New("ledger: no viable bump seed")

var errOnCurve = errors.New("ledger: derived address is on the ed25519 curve")

// ParsePubkey decodes a base58 address.
func ParsePubkey(s string) (PublicKey, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return PublicKey{}, fmt.Errorf("ledger: decode pubkey %q: %w", s, err)
	}
	if len(raw) != 32 {
		return PublicKey{}, fmt.Errorf("ledger: pubkey %q is %d bytes, want 32", s, len(raw))
	}
	var pk PublicKey
	copy(pk[:], raw)
	return pk, nil
}

// MustParsePubkey is ParsePubkey for compile-time constants.
func MustParsePubkey(s string) PublicKey {
	pk, err := ParsePubkey(s)
	if err != nil {
		panic(err)
	}
	return pk
}

// String returns the base58 form.
func (pk PublicKey) String() string {
	return base58.Encode(pk[:])
}

// IsZero reports whether the key is the all-zero address.
func (pk PublicKey) IsZero() bool {
	return pk == PublicKey{}
}

// CreateProgramAddress hashes the seeds with the program id and the PDA
// marker. It fails when the result lies on the ed25519 curve, in which case
// the caller must try another bump.
func CreateProgramAddress(seeds [][]byte, programID PublicKey) (PublicKey, error) {
	h := sha256.New()
	for _, seed := range seeds {
		if len(seed) > 32 {
			return PublicKey{}, fmt.Errorf("ledger: seed longer than 32 bytes")
		}
		h.Write(seed)
	}
	h.Write(programID[:])
	h.Write([]byte(pdaMarker))

	var pk PublicKey
	copy(pk[:], h.Sum(nil))
	if isOnCurve(pk[:]) {
		return PublicKey{}, errOnCurve
	}
	return pk, nil
}

// FindProgramAddress searches bump seeds from 255 downward for the first
// off-curve address, mirroring the program runtime's derivation exactly.
func FindProgramAddress(seeds [][]byte, programID PublicKey) (PublicKey, uint8, error) {
	for bump := 255; bump >= 0; bump-- {
		full := make([][]byte, 0, len(seeds)+1)
		full = append(full, seeds...)
		full = append(full, []byte{uint8(bump)})

		pk, err := CreateProgramAddress(full, programID)
		if err == nil {
			return pk, uint8(bump), nil
		}
	}
	return PublicKey{}, 0, ErrNoBumpFound
}

// isOnCurve reports whether b decompresses to a valid curve point. PDA
// addresses must not, so no keypair can ever sign for them.
func isOnCurve(b []byte) bool {
	_, err := new(edwards25519.Point).SetBytes(b)
	return err == nil
}

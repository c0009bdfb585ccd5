package ledger

import (
	"bytes"
	"crypto/ed25519"
	"testing"
)

func TestAppendCompactU16(t *testing.T) {
	cases := []struct {
		v    int
		want []byte
	}{
		{0, []byte{0x00}},
		{1, []byte{0x01}},
		{127, []byte{0x7f}},
		{128, []byte{0x80, 0x01}},
		{255, []byte{0xff, 0x01}},
		{16383, []byte{0xff, 0x7f}},
		{16384, []byte{0x80, 0x80, 0x01}},
	}
	for _, tc := range cases {
		if got := appendCompactU16(nil, tc.v); !bytes.Equal(got, tc.want) {
			t.Errorf("compactU16(%d) = %v, want %v", tc.v, got, tc.want)
		}
	}
}

func TestMessage_HeaderAndOrdering(t *testing.T) {
	program := MustParsePubkey("9fAJRwzjj7dBMt7fimMo6jKwwsYFD4k9eoMPD8MwBnWb")
	admin, err := NewKeypair()
	if err != nil {
		t.Fatal(err)
	}
	market, _, err := DeriveMarketAddress(program, 1756339200)
	if err != nil {
		t.Fatal(err)
	}

	ix := NewSettleMarket(program, market, admin.Pubkey(), 64000_000000)
	var blockhash [32]byte
	msg, err := NewMessage([]Instruction{ix}, admin.Pubkey(), blockhash)
	if err != nil {
		t.Fatal(err)
	}

	keys := mKeys(msg)
	if keys[0] != admin.Pubkey() {
		t.Error("fee payer must be the first account")
	}
	if msg.numSigners != 1 {
		t.Errorf("signers = %d, want 1", msg.numSigners)
	}
	// market is writable non-signer, program is readonly non-signer.
	if keys[1] != market {
		t.Errorf("second key = %s, want market", keys[1])
	}
	if keys[len(keys)-1] != program {
		t.Errorf("last key = %s, want program id", keys[len(keys)-1])
	}
	if msg.numReadonlyUnsg != 1 {
		t.Errorf("readonly unsigned = %d, want 1 (program id)", msg.numReadonlyUnsg)
	}
}

func TestSignTransaction_SignatureVerifies(t *testing.T) {
	program := MustParsePubkey("9fAJRwzjj7dBMt7fimMo6jKwwsYFD4k9eoMPD8MwBnWb")
	admin, err := NewKeypair()
	if err != nil {
		t.Fatal(err)
	}
	market, _, err := DeriveMarketAddress(program, 1756339200)
	if err != nil {
		t.Fatal(err)
	}

	ix := NewSettleMarket(program, market, admin.Pubkey(), 64000_000000)
	var blockhash [32]byte
	copy(blockhash[:], bytes.Repeat([]byte{7}, 32))

	msg, err := NewMessage([]Instruction{ix}, admin.Pubkey(), blockhash)
	if err != nil {
		t.Fatal(err)
	}
	tx, sig, err := SignTransaction(msg, admin)
	if err != nil {
		t.Fatal(err)
	}

	// Wire form: compact sig count, signature, then the signed message.
	if tx[0] != 1 {
		t.Fatalf("signature count = %d, want 1", tx[0])
	}
	if !bytes.Equal(tx[1:65], sig) {
		t.Error("first signature must match the returned signature")
	}

	body, err := msg.Serialize()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(tx[65:], body) {
		t.Error("message bytes after signatures differ from Serialize output")
	}

	pub := admin.Pubkey()
	if !ed25519.Verify(ed25519.PublicKey(pub[:]), body, sig) {
		t.Error("signature does not verify against the message")
	}
}

func TestSignTransaction_MissingSigner(t *testing.T) {
	program := MustParsePubkey("9fAJRwzjj7dBMt7fimMo6jKwwsYFD4k9eoMPD8MwBnWb")
	admin, err := NewKeypair()
	if err != nil {
		t.Fatal(err)
	}
	other, err := NewKeypair()
	if err != nil {
		t.Fatal(err)
	}
	market, _, _ := DeriveMarketAddress(program, 1756339200)

	ix := NewSettleMarket(program, market, admin.Pubkey(), 1)
	msg, err := NewMessage([]Instruction{ix}, admin.Pubkey(), [32]byte{})
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := SignTransaction(msg, other); err == nil {
		t.Error("expected error when the required signer is absent")
	}
}

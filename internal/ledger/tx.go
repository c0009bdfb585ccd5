package ledger

import (
	"crypto/ed25519"
	"fmt"
)

// Legacy transaction wire format: a compact array of 64-byte signatures
// followed by the serialized message. The message orders accounts as
// writable signers, readonly signers, writable non-signers, readonly
// non-signers, with the fee payer always first.

// compiledKey tracks the merged signer/writable flags for one account
// across all instructions in a message.
type compiledKey struct {
	pubkey   PublicKey
	signer   bool
	writable bool
}

// Message is a compiled transaction message ready for signing.
type Message struct {
	keys            []compiledKey
	numSigners      int
	numReadonlySig  int
	numReadonlyUnsg int
	blockhash       [32]byte
	instructions    []Instruction
}

// NewMessage compiles instructions into a message with payer as the fee
// payer and recentBlockhash as the replay guard.
func NewMessage(instructions []Instruction, payer PublicKey, recentBlockhash [32]byte) (*Message, error) {
	if len(instructions) == 0 {
		return nil, fmt.Errorf("ledger: message needs at least one instruction")
	}

	merged := map[PublicKey]*compiledKey{}
	order := []PublicKey{}
	upsert := func(pk PublicKey, signer, writable bool) {
		k, ok := merged[pk]
		if !ok {
			k = &compiledKey{pubkey: pk}
			merged[pk] = k
			order = append(order, pk)
		}
		k.signer = k.signer || signer
		k.writable = k.writable || writable
	}

	upsert(payer, true, true)
	for _, ix := range instructions {
		for _, m := range ix.Accounts {
			upsert(m.Pubkey, m.Signer, m.Writable)
		}
		upsert(ix.ProgramID, false, false)
	}

	// Partition while preserving first-seen order within each class; the
	// payer sorts first because it was inserted first as a writable signer.
	var keys []compiledKey
	for _, pick := range []func(compiledKey) bool{
		func(k compiledKey) bool { return k.signer && k.writable },
		func(k compiledKey) bool { return k.signer && !k.writable },
		func(k compiledKey) bool { return !k.signer && k.writable },
		func(k compiledKey) bool { return !k.signer && !k.writable },
	} {
		for _, pk := range order {
			if k := merged[pk]; pick(*k) {
				keys = append(keys, *k)
			}
		}
	}

	msg := &Message{
		keys:         keys,
		blockhash:    recentBlockhash,
		instructions: instructions,
	}
	for _, k := range keys {
		if k.signer {
			msg.numSigners++
			if !k.writable {
				msg.numReadonlySig++
			}
		} else if !k.writable {
			msg.numReadonlyUnsg++
		}
	}
	return msg, nil
}

func (m *Message) keyIndex(pk PublicKey) (byte, error) {
	for i, k := range m.keys {
		if k.pubkey == pk {
			return byte(i), nil
		}
	}
	return 0, fmt.Errorf("ledger: account %s not in message", pk)
}

// Serialize renders the message bytes that get signed.
func (m *Message) Serialize() ([]byte, error) {
	var out []byte
	out = append(out, byte(m.numSigners), byte(m.numReadonlySig), byte(m.numReadonlyUnsg))

	out = appendCompactU16(out, len(m.keys))
	for _, k := range m.keys {
		out = append(out, k.pubkey[:]...)
	}

	out = append(out, m.blockhash[:]...)

	out = appendCompactU16(out, len(m.instructions))
	for _, ix := range m.instructions {
		progIdx, err := m.keyIndex(ix.ProgramID)
		if err != nil {
			return nil, err
		}
		out = append(out, progIdx)

		out = appendCompactU16(out, len(ix.Accounts))
		for _, acc := range ix.Accounts {
			idx, err := m.keyIndex(acc.Pubkey)
			if err != nil {
				return nil, err
			}
			out = append(out, idx)
		}

		out = appendCompactU16(out, len(ix.Data))
		out = append(out, ix.Data...)
	}
	return out, nil
}

// SignTransaction serializes the message, signs it with each keypair, and
// returns the full transaction wire bytes plus the fee payer signature
// (which doubles as the transaction id).
func SignTransaction(msg *Message, signers ...*Keypair) (tx []byte, signature []byte, err error) {
	body, err := msg.Serialize()
	if err != nil {
		return nil, nil, err
	}
	if len(signers) != msg.numSigners {
		return nil, nil, fmt.Errorf("ledger: message needs %d signatures, got %d", msg.numSigners, len(signers))
	}

	keys := mKeys(msg)
	sigs := make([][]byte, msg.numSigners)
	for i := 0; i < msg.numSigners; i++ {
		want := keys[i]
		var kp *Keypair
		for _, s := range signers {
			if s.Pubkey() == want {
				kp = s
				break
			}
		}
		if kp == nil {
			return nil, nil, fmt.Errorf("ledger: missing signer for %s", want)
		}
		sigs[i] = ed25519.Sign(kp.priv, body)
	}

	tx = appendCompactU16(nil, len(sigs))
	for _, s := range sigs {
		tx = append(tx, s...)
	}
	tx = append(tx, body...)
	return tx, sigs[0], nil
}

// mKeys exposes the ordered account keys (first numSigners are signers).
func mKeys(m *Message) []PublicKey {
	out := make([]PublicKey, len(m.keys))
	for i, k := range m.keys {
		out[i] = k.pubkey
	}
	return out
}

// appendCompactU16 appends the shortvec length encoding: 7 bits per byte,
// high bit set on continuation.
func appendCompactU16(dst []byte, v int) []byte {
	u := uint16(v)
	for {
		b := byte(u & 0x7f)
		u >>= 7
		if u == 0 {
			return append(dst, b)
		}
		dst = append(dst, b|0x80)
	}
}

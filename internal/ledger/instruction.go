package ledger

import (
	"crypto/sha256"
	"encoding/binary"
	"time"

	"github.com/candlefi/candle-markets/internal/domain"
)

// Seed prefixes for the program's derived accounts.
var (
	seedMarket   = []byte("market")
	seedBet      = []byte("bet")
	seedTreasury = []byte("treasury")
)

// AccountMeta describes one account an instruction touches.
type AccountMeta struct {
	Pubkey   PublicKey
	Signer   bool
	Writable bool
}

// Instruction is one program invocation: discriminator-tagged data plus the
// accounts it reads and writes.
type Instruction struct {
	ProgramID PublicKey
	Accounts  []AccountMeta
	Data      []byte
}

// instructionTag returns the 8-byte discriminator for a program method:
// sha256("global:<method>")[:8]. This is how the program's IDL assigns them,
// so deriving instead of hardcoding keeps every method covered.
func instructionTag(method string) []byte {
	sum := sha256.Sum256([]byte("global:" + method))
	return sum[:8]
}

// accountTag returns the 8-byte discriminator prefixed to account data:
// sha256("account:<type>")[:8].
func accountTag(typeName string) []byte {
	sum := sha256.Sum256([]byte("account:" + typeName))
	return sum[:8]
}

// sideTag maps a domain side onto the program's bet side enum: the UP/green
// variant is 0, DOWN/red is 1.
func sideTag(side domain.Side) byte {
	if side == domain.SideDown {
		return 1
	}
	return 0
}

// encoder builds little-endian instruction payloads in the program's wire
// layout (fixed-width integers, length-prefixed strings).
type encoder struct{ buf []byte }

func (e *encoder) u8(v byte)  { e.buf = append(e.buf, v) }
func (e *encoder) u64(v uint64) {
	e.buf = binary.LittleEndian.AppendUint64(e.buf, v)
}
func (e *encoder) i64(v int64) { e.u64(uint64(v)) }
func (e *encoder) str(s string) {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, uint32(len(s)))
	e.buf = append(e.buf, s...)
}

// DeriveMarketAddress returns the market PDA for a market id:
// ["market", market_id LE].
func DeriveMarketAddress(programID PublicKey, marketID uint64) (PublicKey, uint8, error) {
	var seed [8]byte
	binary.LittleEndian.PutUint64(seed[:], marketID)
	return FindProgramAddress([][]byte{seedMarket, seed[:]}, programID)
}

// DeriveBetAddress returns the bet PDA for a user on a market:
// ["bet", user, market]. One address per (wallet, market) pair is what
// enforces the single-bet rule.
func DeriveBetAddress(programID, user, market PublicKey) (PublicKey, uint8, error) {
	return FindProgramAddress([][]byte{seedBet, user[:], market[:]}, programID)
}

// DeriveTreasuryAddress returns the singleton treasury PDA: ["treasury"].
func DeriveTreasuryAddress(programID PublicKey) (PublicKey, uint8, error) {
	return FindProgramAddress([][]byte{seedTreasury}, programID)
}

// NewInitializeTreasury builds the one-time treasury initialization.
func NewInitializeTreasury(programID, treasury, authority PublicKey) Instruction {
	return Instruction{
		ProgramID: programID,
		Accounts: []AccountMeta{
			{Pubkey: treasury, Writable: true},
			{Pubkey: authority, Signer: true, Writable: true},
			{Pubkey: SystemProgramID},
		},
		Data: instructionTag("initialize_treasury"),
	}
}

// NewSystemTransfer builds a native lamport transfer. The system program's
// layout differs from the market program's: a u32 instruction index (2 for
// Transfer) followed by the amount, both little-endian.
func NewSystemTransfer(from, to PublicKey, lamports uint64) Instruction {
	data := make([]byte, 0, 12)
	data = binary.LittleEndian.AppendUint32(data, 2)
	data = binary.LittleEndian.AppendUint64(data, lamports)

	return Instruction{
		ProgramID: SystemProgramID,
		Accounts: []AccountMeta{
			{Pubkey: from, Signer: true, Writable: true},
			{Pubkey: to, Writable: true},
		},
		Data: data,
	}
}

// NewCreateMarket builds market creation. Argument order and widths are the
// program's: asset string, open price u64, start i64, end i64, market id
// u64.
func NewCreateMarket(programID, market, authority PublicKey, asset string, openPrice uint64, start, end time.Time, marketID uint64) Instruction {
	e := encoder{buf: instructionTag("create_market")}
	e.str(asset)
	e.u64(openPrice)
	e.i64(start.Unix())
	e.i64(end.Unix())
	e.u64(marketID)

	return Instruction{
		ProgramID: programID,
		Accounts: []AccountMeta{
			{Pubkey: market, Writable: true},
			{Pubkey: authority, Signer: true, Writable: true},
			{Pubkey: SystemProgramID},
		},
		Data: e.buf,
	}
}

// NewPlaceBet builds a bet placement: side enum u8, amount u64.
func NewPlaceBet(programID, market, bet, user, treasury PublicKey, side domain.Side, amount uint64) Instruction {
	e := encoder{buf: instructionTag("place_bet")}
	e.u8(sideTag(side))
	e.u64(amount)

	return Instruction{
		ProgramID: programID,
		Accounts: []AccountMeta{
			{Pubkey: market, Writable: true},
			{Pubkey: bet, Writable: true},
			{Pubkey: user, Signer: true, Writable: true},
			{Pubkey: treasury, Writable: true},
			{Pubkey: SystemProgramID},
		},
		Data: e.buf,
	}
}

// NewSettleMarket builds settlement: close price u64.
func NewSettleMarket(programID, market, authority PublicKey, closePrice uint64) Instruction {
	e := encoder{buf: instructionTag("settle_market")}
	e.u64(closePrice)

	return Instruction{
		ProgramID: programID,
		Accounts: []AccountMeta{
			{Pubkey: market, Writable: true},
			{Pubkey: authority, Signer: true},
		},
		Data: e.buf,
	}
}

// NewClaimReward builds a claim; it carries no arguments, the program
// recomputes the payout from account state.
func NewClaimReward(programID, market, bet, user, treasury PublicKey) Instruction {
	return Instruction{
		ProgramID: programID,
		Accounts: []AccountMeta{
			{Pubkey: market, Writable: true},
			{Pubkey: bet, Writable: true},
			{Pubkey: user, Signer: true, Writable: true},
			{Pubkey: treasury, Writable: true},
		},
		Data: instructionTag("claim_reward"),
	}
}

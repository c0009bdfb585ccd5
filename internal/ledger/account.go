package ledger

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/candlefi/candle-markets/internal/domain"
)

// Account state layouts, byte-for-byte as the program serializes them:
// an 8-byte type discriminator, then little-endian fields in declaration
// order, strings as u32 length + bytes, bools as one byte.

// MarketState is the decoded on-chain market account.
type MarketState struct {
	Asset            string
	MarketID         uint64
	StartTime        int64
	EndTime          int64
	LockTime         int64
	OpenPrice        uint64
	ClosePrice       uint64 // zero until settled
	GreenPool        uint64
	RedPool          uint64
	VirtualLiquidity uint64
	Settled          bool
}

// BetState is the decoded on-chain bet account.
type BetState struct {
	User           PublicKey
	Market         PublicKey
	Side           byte // 0 = up/green, 1 = down/red
	Amount         uint64
	Weight         uint64
	EffectiveStake uint64
	Claimed        bool
}

type decoder struct {
	buf []byte
	err error
}

func (d *decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if len(d.buf) < n {
		d.err = fmt.Errorf("ledger: account data truncated (need %d, have %d)", n, len(d.buf))
		return nil
	}
	out := d.buf[:n]
	d.buf = d.buf[n:]
	return out
}

func (d *decoder) u8() byte {
	b := d.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (d *decoder) u64() uint64 {
	b := d.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (d *decoder) i64() int64 { return int64(d.u64()) }

func (d *decoder) str() string {
	n := d.take(4)
	if n == nil {
		return ""
	}
	return string(d.take(int(binary.LittleEndian.Uint32(n))))
}

func (d *decoder) pubkey() PublicKey {
	var pk PublicKey
	copy(pk[:], d.take(32))
	return pk
}

func (d *decoder) tag(want []byte, typeName string) {
	got := d.take(8)
	if d.err == nil && !bytes.Equal(got, want) {
		d.err = fmt.Errorf("ledger: account is not a %s", typeName)
	}
}

// DecodeMarketState parses a market account's data.
func DecodeMarketState(data []byte) (MarketState, error) {
	d := decoder{buf: data}
	d.tag(accountTag("MarketAccount"), "MarketAccount")

	s := MarketState{
		Asset:            d.str(),
		MarketID:         d.u64(),
		StartTime:        d.i64(),
		EndTime:          d.i64(),
		LockTime:         d.i64(),
		OpenPrice:        d.u64(),
		ClosePrice:       d.u64(),
		GreenPool:        d.u64(),
		RedPool:          d.u64(),
		VirtualLiquidity: d.u64(),
		Settled:          d.u8() != 0,
	}
	return s, d.err
}

// DecodeBetState parses a bet account's data.
func DecodeBetState(data []byte) (BetState, error) {
	d := decoder{buf: data}
	d.tag(accountTag("UserBetAccount"), "UserBetAccount")

	s := BetState{
		User:           d.pubkey(),
		Market:         d.pubkey(),
		Side:           d.u8(),
		Amount:         d.u64(),
		Weight:         d.u64(),
		EffectiveStake: d.u64(),
		Claimed:        d.u8() != 0,
	}
	return s, d.err
}

// Market converts the on-chain state into the domain representation.
func (s MarketState) Market() domain.Market {
	m := domain.Market{
		MarketID:         s.MarketID,
		Asset:            s.Asset,
		StartTime:        time.Unix(s.StartTime, 0).UTC(),
		EndTime:          time.Unix(s.EndTime, 0).UTC(),
		LockTime:         time.Unix(s.LockTime, 0).UTC(),
		OpenPrice:        s.OpenPrice,
		GreenPool:        s.GreenPool,
		RedPool:          s.RedPool,
		VirtualLiquidity: s.VirtualLiquidity,
		Settled:          s.Settled,
	}
	if s.Settled {
		cp := s.ClosePrice
		m.ClosePrice = &cp
	}
	return m
}

// Bet converts the on-chain state into the domain representation.
func (s BetState) Bet(marketID uint64) domain.Bet {
	side := domain.SideUp
	if s.Side == 1 {
		side = domain.SideDown
	}
	return domain.Bet{
		Wallet:         s.User.String(),
		MarketID:       marketID,
		Side:           side,
		Amount:         s.Amount,
		Weight:         s.Weight,
		EffectiveStake: s.EffectiveStake,
		Claimed:        s.Claimed,
	}
}

// EncodeMarketState renders the wire bytes for a MarketState. The gateway
// never writes accounts, but the encoder keeps the layout honest in tests
// and gives fakes a way to produce realistic reads.
func EncodeMarketState(s MarketState) []byte {
	e := encoder{buf: accountTag("MarketAccount")}
	e.str(s.Asset)
	e.u64(s.MarketID)
	e.i64(s.StartTime)
	e.i64(s.EndTime)
	e.i64(s.LockTime)
	e.u64(s.OpenPrice)
	e.u64(s.ClosePrice)
	e.u64(s.GreenPool)
	e.u64(s.RedPool)
	e.u64(s.VirtualLiquidity)
	if s.Settled {
		e.u8(1)
	} else {
		e.u8(0)
	}
	return e.buf
}

// EncodeBetState renders the wire bytes for a BetState.
func EncodeBetState(s BetState) []byte {
	e := encoder{buf: accountTag("UserBetAccount")}
	e.buf = append(e.buf, s.User[:]...)
	e.buf = append(e.buf, s.Market[:]...)
	e.u8(s.Side)
	e.u64(s.Amount)
	e.u64(s.Weight)
	e.u64(s.EffectiveStake)
	if s.Claimed {
		e.u8(1)
	} else {
		e.u8(0)
	}
	return e.buf
}

package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/candlefi/candle-markets/internal/domain"
)

// Gateway implements domain.LedgerGateway against a live node. It owns the
// admin keypair that signs lifecycle instructions; user-signed operations
// (bets, claims) never pass through here, the backend only observes their
// confirmed account state.
type Gateway struct {
	rpc       *RPCClient
	programID PublicKey
	admin     *Keypair
	treasury  PublicKey
	logger    *slog.Logger
}

// NewGateway derives the treasury address once and returns a ready gateway.
func NewGateway(rpc *RPCClient, programID PublicKey, admin *Keypair, logger *slog.Logger) (*Gateway, error) {
	treasury, _, err := DeriveTreasuryAddress(programID)
	if err != nil {
		return nil, fmt.Errorf("ledger: derive treasury: %w", err)
	}
	return &Gateway{
		rpc:       rpc,
		programID: programID,
		admin:     admin,
		treasury:  treasury,
		logger:    logger.With(slog.String("component", "ledger")),
	}, nil
}

// ProgramID returns the configured program address.
func (g *Gateway) ProgramID() PublicKey { return g.programID }

// TreasuryAddress returns the derived treasury account.
func (g *Gateway) TreasuryAddress() PublicKey { return g.treasury }

// send compiles, signs and submits a single admin-signed instruction.
func (g *Gateway) send(ctx context.Context, ix Instruction) (string, error) {
	blockhash, err := g.rpc.LatestBlockhash(ctx)
	if err != nil {
		return "", fmt.Errorf("ledger: blockhash: %w", err)
	}
	msg, err := NewMessage([]Instruction{ix}, g.admin.Pubkey(), blockhash)
	if err != nil {
		return "", err
	}
	tx, _, err := SignTransaction(msg, g.admin)
	if err != nil {
		return "", err
	}
	sig, err := g.rpc.SendTransaction(ctx, tx)
	if err != nil {
		return "", fmt.Errorf("ledger: send: %w", err)
	}
	return sig, nil
}

// InitializeTreasury creates the treasury account. One-time setup.
func (g *Gateway) InitializeTreasury(ctx context.Context) (string, error) {
	if _, err := g.rpc.GetAccountInfo(ctx, g.treasury); err == nil {
		return "", domain.ErrAlreadyExists
	} else if !errors.Is(err, domain.ErrNotFound) {
		return "", err
	}
	return g.send(ctx, NewInitializeTreasury(g.programID, g.treasury, g.admin.Pubkey()))
}

// FundTreasury transfers lamports from the admin account into the treasury
// so it can cover payouts. The treasury must already be initialized.
func (g *Gateway) FundTreasury(ctx context.Context, lamports uint64) (string, error) {
	if _, err := g.rpc.GetAccountInfo(ctx, g.treasury); err != nil {
		return "", fmt.Errorf("ledger: treasury not initialized: %w", err)
	}
	return g.send(ctx, NewSystemTransfer(g.admin.Pubkey(), g.treasury, lamports))
}

// CreateMarket submits market creation for one candle window. The market
// address is derived from the market id, so a pre-existing account means
// this window was already created; callers treat ErrAlreadyExists as a
// no-op.
func (g *Gateway) CreateMarket(ctx context.Context, asset string, openPrice uint64, start, end time.Time, marketID uint64) (string, error) {
	market, _, err := DeriveMarketAddress(g.programID, marketID)
	if err != nil {
		return "", fmt.Errorf("ledger: derive market %d: %w", marketID, err)
	}

	if _, err := g.rpc.GetAccountInfo(ctx, market); err == nil {
		return "", domain.ErrAlreadyExists
	} else if !errors.Is(err, domain.ErrNotFound) {
		return "", err
	}

	sig, err := g.send(ctx, NewCreateMarket(g.programID, market, g.admin.Pubkey(), asset, openPrice, start, end, marketID))
	if err != nil {
		return "", err
	}
	g.logger.Info("market created on ledger",
		slog.Uint64("market_id", marketID),
		slog.String("address", market.String()),
		slog.String("signature", sig),
	)
	return sig, nil
}

// SettleMarket submits settlement. The settled flag is read first so
// concurrent settlement attempts collapse to one winner and the rest see
// ErrAlreadySettled; the program enforces the same guard authoritatively.
func (g *Gateway) SettleMarket(ctx context.Context, marketID uint64, closePrice uint64) (string, error) {
	market, _, err := DeriveMarketAddress(g.programID, marketID)
	if err != nil {
		return "", fmt.Errorf("ledger: derive market %d: %w", marketID, err)
	}

	info, err := g.rpc.GetAccountInfo(ctx, market)
	if err != nil {
		return "", err
	}
	state, err := DecodeMarketState(info.Data)
	if err != nil {
		return "", err
	}
	if state.Settled {
		return "", domain.ErrAlreadySettled
	}
	if time.Now().Unix() < state.EndTime {
		return "", domain.ErrMarketNotEnded
	}

	sig, err := g.send(ctx, NewSettleMarket(g.programID, market, g.admin.Pubkey(), closePrice))
	if err != nil {
		return "", err
	}
	g.logger.Info("market settled on ledger",
		slog.Uint64("market_id", marketID),
		slog.Uint64("close_price", closePrice),
		slog.String("signature", sig),
	)
	return sig, nil
}

// GetMarket reads the market account; ground truth for reconciliation.
func (g *Gateway) GetMarket(ctx context.Context, marketID uint64) (domain.Market, error) {
	market, _, err := DeriveMarketAddress(g.programID, marketID)
	if err != nil {
		return domain.Market{}, fmt.Errorf("ledger: derive market %d: %w", marketID, err)
	}
	info, err := g.rpc.GetAccountInfo(ctx, market)
	if err != nil {
		return domain.Market{}, err
	}
	state, err := DecodeMarketState(info.Data)
	if err != nil {
		return domain.Market{}, err
	}
	return state.Market(), nil
}

// GetBet reads a wallet's bet account for a market.
func (g *Gateway) GetBet(ctx context.Context, wallet string, marketID uint64) (domain.Bet, error) {
	user, err := ParsePubkey(wallet)
	if err != nil {
		return domain.Bet{}, err
	}
	market, _, err := DeriveMarketAddress(g.programID, marketID)
	if err != nil {
		return domain.Bet{}, fmt.Errorf("ledger: derive market %d: %w", marketID, err)
	}
	bet, _, err := DeriveBetAddress(g.programID, user, market)
	if err != nil {
		return domain.Bet{}, fmt.Errorf("ledger: derive bet: %w", err)
	}

	info, err := g.rpc.GetAccountInfo(ctx, bet)
	if err != nil {
		return domain.Bet{}, err
	}
	state, err := DecodeBetState(info.Data)
	if err != nil {
		return domain.Bet{}, err
	}
	return state.Bet(marketID), nil
}

// TreasuryBalance returns the treasury balance in base units, used by the
// low-funds alert.
func (g *Gateway) TreasuryBalance(ctx context.Context) (uint64, error) {
	return g.rpc.GetBalance(ctx, g.treasury)
}

var _ domain.LedgerGateway = (*Gateway)(nil)

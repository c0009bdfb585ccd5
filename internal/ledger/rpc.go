package ledger

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/candlefi/candle-markets/internal/domain"
)

// RPCClient is a minimal JSON-RPC 2.0 client for the ledger node, covering
// only the calls the gateway needs: blockhash, account reads, balances, and
// transaction submission.
type RPCClient struct {
	endpoint   string
	commitment string
	httpClient *http.Client
}

// NewRPCClient creates a client against the given node endpoint. Reads and
// sends default to "confirmed" commitment: mirror writes must never reflect
// unconfirmed ledger state.
func NewRPCClient(endpoint string) *RPCClient {
	return &RPCClient{
		endpoint:   endpoint,
		commitment: "confirmed",
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SetCommitment overrides the commitment level for every call. Anything
// weaker than "confirmed" trades mirror safety for latency; use with care.
func (c *RPCClient) SetCommitment(level string) {
	if level != "" {
		c.commitment = level
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

func (c *RPCClient) call(ctx context.Context, method string, params []any, out any) error {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("ledger: marshal %s: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("ledger: build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ledger: %s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ledger: %s: unexpected status %d", method, resp.StatusCode)
	}

	var rr rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return fmt.Errorf("ledger: decode %s response: %w", method, err)
	}
	if rr.Error != nil {
		return fmt.Errorf("ledger: %s: %w", method, rr.Error)
	}
	if out != nil {
		if err := json.Unmarshal(rr.Result, out); err != nil {
			return fmt.Errorf("ledger: unmarshal %s result: %w", method, err)
		}
	}
	return nil
}

// LatestBlockhash fetches the recent blockhash used as a transaction replay
// guard.
func (c *RPCClient) LatestBlockhash(ctx context.Context) ([32]byte, error) {
	var result struct {
		Value struct {
			Blockhash string `json:"blockhash"`
		} `json:"value"`
	}
	params := []any{map[string]any{"commitment": c.commitment}}
	if err := c.call(ctx, "getLatestBlockhash", params, &result); err != nil {
		return [32]byte{}, err
	}
	pk, err := ParsePubkey(result.Value.Blockhash)
	if err != nil {
		return [32]byte{}, fmt.Errorf("ledger: bad blockhash: %w", err)
	}
	return [32]byte(pk), nil
}

// SendTransaction submits signed transaction bytes and waits for the node to
// accept them, returning the base58 transaction signature.
func (c *RPCClient) SendTransaction(ctx context.Context, tx []byte) (string, error) {
	var signature string
	params := []any{
		base64.StdEncoding.EncodeToString(tx),
		map[string]any{"encoding": "base64", "preflightCommitment": c.commitment},
	}
	if err := c.call(ctx, "sendTransaction", params, &signature); err != nil {
		return "", err
	}
	return signature, nil
}

// AccountInfo is a raw account read.
type AccountInfo struct {
	Data     []byte
	Lamports uint64
	Owner    PublicKey
}

// GetAccountInfo fetches and decodes an account. Returns domain.ErrNotFound
// when the account does not exist.
func (c *RPCClient) GetAccountInfo(ctx context.Context, pk PublicKey) (AccountInfo, error) {
	var result struct {
		Value *struct {
			Data     []string `json:"data"` // [payload, encoding]
			Lamports uint64   `json:"lamports"`
			Owner    string   `json:"owner"`
		} `json:"value"`
	}
	params := []any{
		pk.String(),
		map[string]any{"encoding": "base64", "commitment": c.commitment},
	}
	if err := c.call(ctx, "getAccountInfo", params, &result); err != nil {
		return AccountInfo{}, err
	}
	if result.Value == nil {
		return AccountInfo{}, fmt.Errorf("ledger: account %s: %w", pk, domain.ErrNotFound)
	}
	if len(result.Value.Data) < 1 {
		return AccountInfo{}, fmt.Errorf("ledger: account %s: empty data envelope", pk)
	}
	data, err := base64.StdEncoding.DecodeString(result.Value.Data[0])
	if err != nil {
		return AccountInfo{}, fmt.Errorf("ledger: account %s: decode data: %w", pk, err)
	}
	owner, err := ParsePubkey(result.Value.Owner)
	if err != nil {
		return AccountInfo{}, fmt.Errorf("ledger: account %s: bad owner: %w", pk, err)
	}
	return AccountInfo{Data: data, Lamports: result.Value.Lamports, Owner: owner}, nil
}

// GetBalance returns an account's balance in base units.
func (c *RPCClient) GetBalance(ctx context.Context, pk PublicKey) (uint64, error) {
	var result struct {
		Value uint64 `json:"value"`
	}
	params := []any{pk.String(), map[string]any{"commitment": c.commitment}}
	if err := c.call(ctx, "getBalance", params, &result); err != nil {
		return 0, err
	}
	return result.Value, nil
}

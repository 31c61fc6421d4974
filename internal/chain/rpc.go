package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/attestry/attestry/internal/evm"
)

// Common errors returned by the RPC client.
var (
	ErrNotFound     = errors.New("no bytecode deployed at address")
	ErrTxNotFound   = errors.New("transaction not found")
	ErrNoRPC        = errors.New("chain has no RPC endpoints configured")
	ErrAllRPCFailed = errors.New("all RPC endpoints failed")
)

// Client performs JSON-RPC reads against chain nodes. Every endpoint of a
// chain is tried in order before giving up.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a new RPC client with the given per-call timeout.
func NewClient(timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	ID      int    `json:"id"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// GetBytecode fetches the runtime bytecode deployed at an address. Returns
// ErrNotFound when no code is deployed there.
func (c *Client) GetBytecode(ctx context.Context, ch Chain, address string) ([]byte, error) {
	var result string
	if err := c.call(ctx, ch, &result, "eth_getCode", address, "latest"); err != nil {
		return nil, err
	}
	if result == "" || result == "0x" {
		return nil, ErrNotFound
	}
	code, err := evm.DecodeHex(result)
	if err != nil {
		return nil, fmt.Errorf("decoding bytecode: %w", err)
	}
	return code, nil
}

// Transaction is the subset of an Ethereum transaction the verifier needs.
type Transaction struct {
	From  string
	Input []byte
	To    string
}

// GetTransaction fetches a transaction by hash. Used to recover the creation
// input when matching creation bytecode.
func (c *Client) GetTransaction(ctx context.Context, ch Chain, txHash string) (*Transaction, error) {
	var result *struct {
		From  string `json:"from"`
		Input string `json:"input"`
		To    string `json:"to"`
	}
	if err := c.call(ctx, ch, &result, "eth_getTransactionByHash", txHash); err != nil {
		return nil, err
	}
	if result == nil {
		return nil, ErrTxNotFound
	}
	input, err := evm.DecodeHex(result.Input)
	if err != nil {
		return nil, fmt.Errorf("decoding transaction input: %w", err)
	}
	return &Transaction{From: result.From, Input: input, To: result.To}, nil
}

// call tries each RPC endpoint of the chain in order until one answers.
func (c *Client) call(ctx context.Context, ch Chain, result any, method string, params ...any) error {
	if len(ch.RPC) == 0 {
		return ErrNoRPC
	}

	payload, err := json.Marshal(rpcRequest{JSONRPC: "2.0", Method: method, Params: params, ID: 1})
	if err != nil {
		return fmt.Errorf("encoding rpc request: %w", err)
	}

	var lastErr error
	for _, endpoint := range ch.RPC {
		if err := c.callOne(ctx, endpoint, payload, result); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return fmt.Errorf("%w: %v", ErrAllRPCFailed, lastErr)
}

func (c *Client) callOne(ctx context.Context, endpoint string, payload []byte, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building rpc request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("calling %s: unexpected status %d", endpoint, resp.StatusCode)
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("decoding rpc response: %w", err)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if err := json.Unmarshal(rpcResp.Result, result); err != nil {
		return fmt.Errorf("decoding rpc result: %w", err)
	}
	return nil
}

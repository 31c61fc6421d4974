// Package compiler provides the client for the external compiler service,
// which runs solc/vyper on a standard-JSON input and returns the compiled
// artifacts. Compilation never happens in-process.
package compiler

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

// Common errors returned by the compiler client.
var (
	ErrCompilation = errors.New("compilation failed")
	ErrUnavailable = errors.New("compiler service unavailable")
)

// Output holds the artifacts for one compiled contract.
type Output struct {
	Metadata         []byte // raw metadata JSON document
	CreationBytecode []byte
	RuntimeBytecode  []byte
}

// Service compiles a standard-JSON input for a named contract.
type Service interface {
	Compile(ctx context.Context, version string, input json.RawMessage, contractName string) (*Output, error)
}

// Client talks to an attestry compiler service over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a compiler service client.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type compileRequest struct {
	Version  string          `json:"version"`
	Input    json.RawMessage `json:"input"`
	Contract string          `json:"contract"`
}

type compileResponse struct {
	Metadata         json.RawMessage `json:"metadata"`
	CreationBytecode string          `json:"creationBytecode"`
	RuntimeBytecode  string          `json:"runtimeBytecode"`
	Errors           []string        `json:"errors,omitempty"`
}

// Compile submits a compilation job and decodes the artifacts.
func (c *Client) Compile(ctx context.Context, version string, input json.RawMessage, contractName string) (*Output, error) {
	payload, err := json.Marshal(compileRequest{Version: version, Input: input, Contract: contractName})
	if err != nil {
		return nil, fmt.Errorf("encoding compile request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/compile", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building compile request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	default:
		return nil, fmt.Errorf("%w: status %d", ErrCompilation, resp.StatusCode)
	}

	var body compileResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding compile response: %w", err)
	}
	if len(body.Errors) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrCompilation, body.Errors[0])
	}

	creation, err := evm.DecodeHex(body.CreationBytecode)
	if err != nil {
		return nil, fmt.Errorf("decoding creation bytecode: %w", err)
	}
	runtime, err := evm.DecodeHex(body.RuntimeBytecode)
	if err != nil {
		return nil, fmt.Errorf("decoding runtime bytecode: %w", err)
	}

	return &Output{
		Metadata:         body.Metadata,
		CreationBytecode: creation,
		RuntimeBytecode:  runtime,
	}, nil
}

// Package importer fetches verified contract sources from Etherscan-style
// block-explorer APIs and normalizes them into a compiler standard-JSON
// input.
package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/attestry/attestry/internal/chain"
)

// Common errors returned by the importer.
var (
	ErrNotFound    = errors.New("contract not verified on block explorer")
	ErrRateLimited = errors.New("block explorer rate limit reached")
	ErrNoExplorer  = errors.New("chain has no block explorer configured")
)

// Result is a normalized block-explorer import.
type Result struct {
	CompilerVersion string
	ContractName    string
	Input           json.RawMessage // solc standard-JSON input
}

// Client talks to Etherscan-compatible explorer APIs.
type Client struct {
	apiKey     string
	httpClient *http.Client
}

// NewClient creates an importer client. The API key is optional; explorers
// throttle keyless requests aggressively.
func NewClient(apiKey string, timeout time.Duration) *Client {
	return &Client{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type explorerResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

type sourceEntry struct {
	SourceCode       string `json:"SourceCode"`
	ABI              string `json:"ABI"`
	ContractName     string `json:"ContractName"`
	CompilerVersion  string `json:"CompilerVersion"`
	OptimizationUsed string `json:"OptimizationUsed"`
	Runs             string `json:"Runs"`
	EVMVersion       string `json:"EVMVersion"`
}

// Fetch retrieves the verified source for a contract from the chain's
// explorer.
func (c *Client) Fetch(ctx context.Context, ch chain.Chain, address string) (*Result, error) {
	if ch.Explorer == "" {
		return nil, ErrNoExplorer
	}

	q := url.Values{}
	q.Set("module", "contract")
	q.Set("action", "getsourcecode")
	q.Set("address", address)
	if c.apiKey != "" {
		q.Set("apikey", c.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ch.Explorer+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("building explorer request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling explorer: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("explorer returned status %d", resp.StatusCode)
	}

	var body explorerResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding explorer response: %w", err)
	}

	if body.Status != "1" {
		var msg string
		_ = json.Unmarshal(body.Result, &msg)
		if strings.Contains(strings.ToLower(msg), "rate limit") {
			return nil, ErrRateLimited
		}
		return nil, fmt.Errorf("explorer error: %s", firstNonEmpty(msg, body.Message))
	}

	var entries []sourceEntry
	if err := json.Unmarshal(body.Result, &entries); err != nil {
		return nil, fmt.Errorf("decoding explorer result: %w", err)
	}
	if len(entries) == 0 || entries[0].SourceCode == "" {
		return nil, ErrNotFound
	}

	entry := entries[0]
	input, err := normalizeInput(entry)
	if err != nil {
		return nil, fmt.Errorf("normalizing explorer source: %w", err)
	}

	return &Result{
		CompilerVersion: strings.TrimPrefix(entry.CompilerVersion, "v"),
		ContractName:    entry.ContractName,
		Input:           input,
	}, nil
}

// normalizeInput converts the three SourceCode shapes Etherscan serves into
// a standard-JSON input: double-brace wrapped standard JSON, bare
// multi-source JSON, or a single flattened file.
func normalizeInput(entry sourceEntry) (json.RawMessage, error) {
	src := strings.TrimSpace(entry.SourceCode)

	// Standard-JSON inputs arrive wrapped in an extra brace pair: {{...}}.
	if strings.HasPrefix(src, "{{") && strings.HasSuffix(src, "}}") {
		inner := src[1 : len(src)-1]
		if !json.Valid([]byte(inner)) {
			return nil, errors.New("invalid standard-JSON source")
		}
		return json.RawMessage(inner), nil
	}

	// Bare {"sources": {...}} shape.
	if strings.HasPrefix(src, "{") {
		var multi struct {
			Sources map[string]json.RawMessage `json:"sources"`
		}
		if err := json.Unmarshal([]byte(src), &multi); err == nil && len(multi.Sources) > 0 {
			return buildStandardInput(entry, multi.Sources)
		}
	}

	// Single flattened file.
	fileName := entry.ContractName
	if fileName == "" {
		fileName = "Contract"
	}
	content, err := json.Marshal(map[string]string{"content": src})
	if err != nil {
		return nil, err
	}
	return buildStandardInput(entry, map[string]json.RawMessage{fileName + ".sol": content})
}

func buildStandardInput(entry sourceEntry, sources map[string]json.RawMessage) (json.RawMessage, error) {
	settings := map[string]any{
		"outputSelection": map[string]any{
			"*": map[string]any{"*": []string{"metadata", "evm.bytecode.object", "evm.deployedBytecode.object"}},
		},
	}
	if entry.OptimizationUsed != "" {
		settings["optimizer"] = map[string]any{
			"enabled": entry.OptimizationUsed == "1",
			"runs":    atoiDefault(entry.Runs, 200),
		}
	}
	if entry.EVMVersion != "" && !strings.EqualFold(entry.EVMVersion, "default") {
		settings["evmVersion"] = strings.ToLower(entry.EVMVersion)
	}

	return json.Marshal(map[string]any{
		"language": "Solidity",
		"sources":  sources,
		"settings": settings,
	})
}

func atoiDefault(s string, def int) int {
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
		return def
	}
	return n
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return "unknown"
}

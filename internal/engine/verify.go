package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/attestry/attestry/internal/chain"
	"github.com/attestry/attestry/internal/compiler"
	"github.com/attestry/attestry/internal/evm"
	"github.com/attestry/attestry/internal/validation"
	"github.com/attestry/attestry/internal/verification/domain"
)

// ErrUnsupportedChain means the target chain id is not in the catalog.
var ErrUnsupportedChain = errors.New("unsupported chain")

// Matcher compiles a contract and compares the result against what is
// deployed on chain. It implements domain.Engine.
type Matcher struct {
	compiler compiler.Service
	chains   *chain.Catalog
	rpc      *chain.Client
	logger   *slog.Logger
}

// NewMatcher creates a match engine.
func NewMatcher(compiler compiler.Service, chains *chain.Catalog, rpc *chain.Client, logger *slog.Logger) *Matcher {
	return &Matcher{compiler: compiler, chains: chains, rpc: rpc, logger: logger}
}

// Verify compiles the contract from its metadata and sources, fetches the
// deployed bytecode, and compares. Runtime bytecode is tried first; when it
// does not match and a creator transaction hash is known, the creation input
// is tried as a fallback. An absent contract at the address is a negative
// result, not an engine failure.
func (m *Matcher) Verify(ctx context.Context, c *domain.Contract, chainID, address, creatorTxHash string) (*domain.Match, error) {
	ch, ok := m.chains.Get(chainID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedChain, chainID)
	}

	out, err := m.compile(ctx, c)
	if err != nil {
		return nil, err
	}

	onchain, err := m.rpc.GetBytecode(ctx, ch, address)
	if err != nil {
		if errors.Is(err, chain.ErrNotFound) {
			return &domain.Match{
				Status:  domain.StatusFalse,
				Message: "no contract deployed at address",
				ChainID: chainID,
				Address: address,
			}, nil
		}
		return nil, fmt.Errorf("fetching deployed bytecode: %w", err)
	}

	cmp := evm.CompareRuntime(onchain, out.RuntimeBytecode)
	if cmp.Match {
		return &domain.Match{
			Status:  domain.StatusValidRuntime,
			Message: cmp.Message,
			ChainID: chainID,
			Address: address,
		}, nil
	}

	if creatorTxHash != "" {
		match, err := m.verifyCreation(ctx, ch, out, chainID, address, creatorTxHash)
		if err != nil {
			return nil, err
		}
		if match.Status.Success() {
			return match, nil
		}
	}

	return &domain.Match{
		Status:  domain.StatusFalse,
		Message: cmp.Message,
		ChainID: chainID,
		Address: address,
	}, nil
}

func (m *Matcher) verifyCreation(ctx context.Context, ch chain.Chain, out *compiler.Output, chainID, address, creatorTxHash string) (*domain.Match, error) {
	tx, err := m.rpc.GetTransaction(ctx, ch, creatorTxHash)
	if err != nil {
		return nil, fmt.Errorf("fetching creator transaction: %w", err)
	}

	cmp, args := evm.CompareCreation(tx.Input, out.CreationBytecode)
	if !cmp.Match {
		return &domain.Match{
			Status:  domain.StatusFalse,
			Message: cmp.Message,
			ChainID: chainID,
			Address: address,
		}, nil
	}

	if len(args) > 0 {
		m.logger.Debug("detected constructor arguments",
			"address", address,
			"args", evm.EncodeHex(args))
	}
	return &domain.Match{
		Status:  domain.StatusValidCreation,
		Message: cmp.Message,
		ChainID: chainID,
		Address: address,
	}, nil
}

// CompileCreation compiles the contract and returns its creation bytecode.
func (m *Matcher) CompileCreation(ctx context.Context, c *domain.Contract) ([]byte, error) {
	out, err := m.compile(ctx, c)
	if err != nil {
		return nil, err
	}
	return out.CreationBytecode, nil
}

func (m *Matcher) compile(ctx context.Context, c *domain.Contract) (*compiler.Output, error) {
	if err := validation.ValidateCompilerVersion(c.CompilerVersion); err != nil {
		return nil, fmt.Errorf("metadata of %s: %w", c.Name, err)
	}
	input, err := buildStandardInput(c)
	if err != nil {
		return nil, err
	}
	out, err := m.compiler.Compile(ctx, c.CompilerVersion, input, c.Name)
	if err != nil {
		return nil, fmt.Errorf("compiling %s: %w", c.Name, err)
	}
	return out, nil
}

// buildStandardInput reconstructs the solc standard-JSON input from the
// contract's metadata and resolved sources. The metadata's settings are
// reused verbatim except for compilationTarget, which is a metadata-only
// field solc rejects as input.
func buildStandardInput(c *domain.Contract) (json.RawMessage, error) {
	var meta struct {
		Language string                     `json:"language"`
		Settings map[string]json.RawMessage `json:"settings"`
	}
	if err := json.Unmarshal(c.Metadata, &meta); err != nil {
		return nil, fmt.Errorf("parsing contract metadata: %w", err)
	}
	delete(meta.Settings, "compilationTarget")

	sources := make(map[string]map[string]string, len(c.Sources))
	for path, content := range c.Sources {
		sources[path] = map[string]string{"content": content}
	}

	input, err := json.Marshal(map[string]any{
		"language": meta.Language,
		"sources":  sources,
		"settings": meta.Settings,
	})
	if err != nil {
		return nil, fmt.Errorf("building standard input: %w", err)
	}
	return input, nil
}

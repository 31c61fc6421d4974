package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/attestry/attestry/internal/chain"
	"github.com/attestry/attestry/internal/compiler"
	"github.com/attestry/attestry/internal/importer"
	"github.com/attestry/attestry/internal/validation"
	"github.com/attestry/attestry/internal/verification/domain"
)

// ImportAdapter turns an explorer's verified-source payload into the
// path/content pairs the session pipeline consumes. The explorer does not
// publish the metadata document, so the adapter recompiles the fetched
// sources once to recover it. It implements domain.Importer.
type ImportAdapter struct {
	explorer *importer.Client
	compiler compiler.Service
	chains   *chain.Catalog
	logger   *slog.Logger
}

// NewImportAdapter creates an explorer import adapter.
func NewImportAdapter(explorer *importer.Client, compiler compiler.Service, chains *chain.Catalog, logger *slog.Logger) *ImportAdapter {
	return &ImportAdapter{explorer: explorer, compiler: compiler, chains: chains, logger: logger}
}

// Import implements domain.Importer.
func (a *ImportAdapter) Import(ctx context.Context, chainID, address string) ([]domain.PathContent, error) {
	ch, ok := a.chains.Get(chainID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedChain, chainID)
	}

	res, err := a.explorer.Fetch(ctx, ch, address)
	if err != nil {
		return nil, err
	}
	if err := validation.ValidateCompilerVersion(res.CompilerVersion); err != nil {
		return nil, fmt.Errorf("explorer payload for %s: %w", address, err)
	}

	out, err := a.compiler.Compile(ctx, res.CompilerVersion, res.Input, res.ContractName)
	if err != nil {
		return nil, fmt.Errorf("recompiling imported sources: %w", err)
	}
	if len(out.Metadata) == 0 {
		return nil, fmt.Errorf("compiler returned no metadata for %s", res.ContractName)
	}

	var input struct {
		Sources map[string]struct {
			Content string `json:"content"`
		} `json:"sources"`
	}
	if err := json.Unmarshal(res.Input, &input); err != nil {
		return nil, fmt.Errorf("parsing imported sources: %w", err)
	}

	pairs := make([]domain.PathContent, 0, len(input.Sources)+1)
	for path, src := range input.Sources {
		pairs = append(pairs, domain.PathContent{Path: path, Content: src.Content})
	}
	pairs = append(pairs, domain.PathContent{
		Path:    res.ContractName + "_metadata.json",
		Content: string(out.Metadata),
	})

	a.logger.Info("imported contract from explorer",
		"chain_id", chainID,
		"address", address,
		"contract", res.ContractName,
		"files", len(pairs))
	return pairs, nil
}

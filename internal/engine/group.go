// Package engine implements the verification pipeline behind the session
// service: grouping uploaded files into candidate contracts, matching
// compiled bytecode against chains, and adapting explorer imports.
package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"strings"

	"github.com/attestry/attestry/internal/evm"
	"github.com/attestry/attestry/internal/metadata"
	"github.com/attestry/attestry/internal/verification/domain"
)

// solcMetadata is the subset of the Solidity metadata document the grouper
// reads.
type solcMetadata struct {
	Compiler struct {
		Version string `json:"version"`
	} `json:"compiler"`
	Language string `json:"language"`
	Settings struct {
		CompilationTarget map[string]string `json:"compilationTarget"`
	} `json:"settings"`
	Sources map[string]metadataSource `json:"sources"`
}

type metadataSource struct {
	Keccak256 string   `json:"keccak256"`
	Content   string   `json:"content"`
	URLs      []string `json:"urls"`
}

// Grouper partitions session files into candidate contracts. Every file
// that parses as a Solidity metadata document starts a group; its required
// sources are resolved against the other files by keccak256 hash, with an
// optional IPFS fallback for sources the metadata lists a CID for.
type Grouper struct {
	resolver *metadata.Resolver // nil disables the IPFS fallback
	logger   *slog.Logger
}

// NewGrouper creates a grouper. resolver may be nil.
func NewGrouper(resolver *metadata.Resolver, logger *slog.Logger) *Grouper {
	return &Grouper{resolver: resolver, logger: logger}
}

// Group implements domain.Grouper.
func (g *Grouper) Group(ctx context.Context, files map[string]string) ([]*domain.Contract, error) {
	paths := make([]string, 0, len(files))
	for path := range files {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	var out []*domain.Contract
	for _, path := range paths {
		meta, ok := parseMetadata(files[path])
		if !ok {
			continue
		}
		out = append(out, g.group(ctx, path, files[path], meta, files))
	}
	return out, nil
}

// parseMetadata decides whether a file is a Solidity metadata document. A
// document qualifies when it declares a language, a compilation target, and
// at least one source.
func parseMetadata(content string) (*solcMetadata, bool) {
	var meta solcMetadata
	if err := json.Unmarshal([]byte(content), &meta); err != nil {
		return nil, false
	}
	if meta.Language == "" || len(meta.Settings.CompilationTarget) == 0 || len(meta.Sources) == 0 {
		return nil, false
	}
	return &meta, true
}

// group resolves one metadata document against the uploaded files.
func (g *Grouper) group(ctx context.Context, metaPath, metaContent string, meta *solcMetadata, files map[string]string) *domain.Contract {
	c := &domain.Contract{
		MetadataDigest:  evm.Keccak256Hex([]byte(metaContent)),
		Metadata:        json.RawMessage(metaContent),
		CompilerVersion: strings.TrimPrefix(meta.Compiler.Version, "v"),
		Sources:         make(map[string]string, len(meta.Sources)),
		UsedFiles:       []string{metaPath},
	}
	for _, name := range meta.Settings.CompilationTarget {
		c.Name = name
		break
	}

	required := make([]string, 0, len(meta.Sources))
	for path := range meta.Sources {
		required = append(required, path)
	}
	sort.Strings(required)

	// Index uploads by content hash for matching sources uploaded under a
	// different path than the metadata expects.
	byDigest := make(map[string]string, len(files))
	for path, content := range files {
		byDigest[evm.Keccak256Hex([]byte(content))] = path
	}

	for _, srcPath := range required {
		src := meta.Sources[srcPath]

		if src.Content != "" {
			// Source embedded in the metadata itself.
			c.Sources[srcPath] = src.Content
			continue
		}

		expected := strings.ToLower(src.Keccak256)
		if expected != "" && !strings.HasPrefix(expected, "0x") {
			expected = "0x" + expected
		}

		if content, ok := files[srcPath]; ok {
			digest := evm.Keccak256Hex([]byte(content))
			if expected == "" || digest == expected {
				c.Sources[srcPath] = content
				c.UsedFiles = append(c.UsedFiles, srcPath)
				continue
			}
			// A file sits at the expected path but its hash disagrees.
			// Before flagging it, check whether the right content was
			// uploaded elsewhere.
			if uploadPath, ok := byDigest[expected]; ok {
				c.Sources[srcPath] = files[uploadPath]
				c.UsedFiles = append(c.UsedFiles, uploadPath)
				continue
			}
			c.Invalid = append(c.Invalid, srcPath)
			continue
		}

		if expected != "" {
			if uploadPath, ok := byDigest[expected]; ok {
				c.Sources[srcPath] = files[uploadPath]
				c.UsedFiles = append(c.UsedFiles, uploadPath)
				continue
			}
			if content, ok := g.fetchByCID(ctx, src, expected); ok {
				c.Sources[srcPath] = content
				continue
			}
		}

		c.Missing = append(c.Missing, srcPath)
	}

	return c
}

// fetchByCID tries the IPFS gateway for a source the metadata lists a CID
// for. The fetched content must hash to the expected digest.
func (g *Grouper) fetchByCID(ctx context.Context, src metadataSource, expected string) (string, bool) {
	if g.resolver == nil {
		return "", false
	}
	for _, u := range src.URLs {
		cid, ok := strings.CutPrefix(u, "dweb:/ipfs/")
		if !ok {
			continue
		}
		data, err := g.resolver.Fetch(ctx, cid)
		if err != nil {
			g.logger.Debug("ipfs source fetch failed", "cid", cid, "error", err)
			continue
		}
		if evm.Keccak256Hex(data) != expected {
			g.logger.Warn("ipfs content hash mismatch", "cid", cid)
			continue
		}
		return string(data), true
	}
	return "", false
}

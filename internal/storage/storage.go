// Package storage persists verified contracts. A verified contract is the
// full reproducible artifact set: metadata document, every source file, and
// the match outcome, keyed by (chain id, address).
package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/attestry/attestry/internal/config"
	"github.com/attestry/attestry/internal/verification/domain"
)

// VerifiedContract is a stored verification result.
type VerifiedContract struct {
	ID              string
	ChainID         string
	Address         string
	Name            string
	CompilerVersion string
	Status          string
	Metadata        []byte
	MetadataDigest  string
	CreatedAt       string
	UpdatedAt       string
}

// Store persists and reads verified contracts.
// Domain services define their own minimal interfaces based on their actual usage.
type Store interface {
	// StoreMatch upserts the full artifact set for a successful match. It is
	// an idempotent transactional write per (chain id, address): repeated
	// successes leave exactly one stored contract.
	StoreMatch(ctx context.Context, contract *domain.Contract, match *domain.Match) error
	GetMatch(ctx context.Context, chainID, address string) (*VerifiedContract, error)
	GetSources(ctx context.Context, contractID string) (map[string]string, error)
	// CheckAddresses returns the stored status for each address that has a
	// verified contract on the chain. Unknown addresses are absent from the
	// result.
	CheckAddresses(ctx context.Context, chainID string, addresses []string) (map[string]string, error)

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}

// New creates a store based on configuration.
func New(cfg config.StorageConfig, logger *slog.Logger) (Store, error) {
	switch cfg.Type {
	case "sqlite":
		return NewSQLiteStore(cfg.SQLite.Path, logger)
	case "postgres":
		return NewPostgresStore(cfg.Postgres.URL, logger)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}

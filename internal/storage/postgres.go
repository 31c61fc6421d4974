package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/attestry/attestry/internal/verification/domain"
)

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresStore creates a new Postgres store
func NewPostgresStore(url string, logger *slog.Logger) (*PostgresStore, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &PostgresStore{db: db, logger: logger}, nil
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Migrate runs database migrations
func (s *PostgresStore) Migrate(ctx context.Context) error {
	schema := `
	-- Verified contracts
	CREATE TABLE IF NOT EXISTS verified_contracts (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		chain_id TEXT NOT NULL,
		address TEXT NOT NULL,
		name TEXT,
		compiler_version TEXT,
		status TEXT NOT NULL,
		metadata JSONB NOT NULL,
		metadata_digest TEXT NOT NULL,
		created_at TIMESTAMPTZ DEFAULT NOW(),
		updated_at TIMESTAMPTZ DEFAULT NOW(),
		UNIQUE(chain_id, address)
	);

	-- Source files of verified contracts
	CREATE TABLE IF NOT EXISTS contract_sources (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		contract_id UUID REFERENCES verified_contracts(id) ON DELETE CASCADE,
		path TEXT NOT NULL,
		content TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		UNIQUE(contract_id, path)
	);

	-- Indexes
	CREATE INDEX IF NOT EXISTS idx_verified_lookup ON verified_contracts(chain_id, address);
	CREATE INDEX IF NOT EXISTS idx_verified_digest ON verified_contracts(metadata_digest);
	CREATE INDEX IF NOT EXISTS idx_sources_hash ON contract_sources(content_hash);
	`

	_, err := s.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	s.logger.Info("database migrations complete")
	return nil
}

// StoreMatch upserts the full artifact set for a match in one transaction.
func (s *PostgresStore) StoreMatch(ctx context.Context, contract *domain.Contract, match *domain.Match) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	address := normalizeAddress(match.Address)
	upsert := `
		INSERT INTO verified_contracts (chain_id, address, name, compiler_version, status, metadata, metadata_digest, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		ON CONFLICT(chain_id, address) DO UPDATE SET
			name = EXCLUDED.name,
			compiler_version = EXCLUDED.compiler_version,
			status = EXCLUDED.status,
			metadata = EXCLUDED.metadata,
			metadata_digest = EXCLUDED.metadata_digest,
			updated_at = NOW()
		RETURNING id
	`
	var contractID string
	if err := tx.QueryRowContext(ctx, upsert, match.ChainID, address, contract.Name, contract.CompilerVersion, string(match.Status), string(contract.Metadata), contract.MetadataDigest).Scan(&contractID); err != nil {
		return fmt.Errorf("upserting verified contract: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM contract_sources WHERE contract_id = $1", contractID); err != nil {
		return fmt.Errorf("clearing old sources: %w", err)
	}
	for path, content := range contract.Sources {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO contract_sources (contract_id, path, content, content_hash) VALUES ($1, $2, $3, $4)",
			contractID, path, content, contentHash(content)); err != nil {
			return fmt.Errorf("storing source %s: %w", path, err)
		}
	}

	return tx.Commit()
}

// GetMatch retrieves a verified contract by chain id and address.
func (s *PostgresStore) GetMatch(ctx context.Context, chainID, address string) (*VerifiedContract, error) {
	query := `
		SELECT id, chain_id, address, name, compiler_version, status, metadata, metadata_digest, created_at::TEXT, updated_at::TEXT
		FROM verified_contracts
		WHERE chain_id = $1 AND address = $2
	`
	var vc VerifiedContract
	var metadata string
	err := s.db.QueryRowContext(ctx, query, chainID, normalizeAddress(address)).Scan(
		&vc.ID, &vc.ChainID, &vc.Address, &vc.Name, &vc.CompilerVersion, &vc.Status, &metadata, &vc.MetadataDigest, &vc.CreatedAt, &vc.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	vc.Metadata = []byte(metadata)
	return &vc, err
}

// GetSources retrieves the source files of a verified contract.
func (s *PostgresStore) GetSources(ctx context.Context, contractID string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT path, content FROM contract_sources WHERE contract_id = $1", contractID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sources := make(map[string]string)
	for rows.Next() {
		var path, content string
		if err := rows.Scan(&path, &content); err != nil {
			return nil, err
		}
		sources[path] = content
	}
	return sources, rows.Err()
}

// CheckAddresses returns the stored status per known address.
func (s *PostgresStore) CheckAddresses(ctx context.Context, chainID string, addresses []string) (map[string]string, error) {
	out := make(map[string]string, len(addresses))
	for _, address := range addresses {
		var status string
		err := s.db.QueryRowContext(ctx,
			"SELECT status FROM verified_contracts WHERE chain_id = $1 AND address = $2",
			chainID, normalizeAddress(address)).Scan(&status)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[address] = status
	}
	return out, nil
}

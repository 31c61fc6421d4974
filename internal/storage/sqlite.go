package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/attestry/attestry/internal/verification/domain"
)

// SQLiteStore implements Store using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate runs database migrations
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	schema := `
	-- Verified contracts
	CREATE TABLE IF NOT EXISTS verified_contracts (
		id TEXT PRIMARY KEY,
		chain_id TEXT NOT NULL,
		address TEXT NOT NULL,
		name TEXT,
		compiler_version TEXT,
		status TEXT NOT NULL,
		metadata TEXT NOT NULL,
		metadata_digest TEXT NOT NULL,
		created_at TEXT DEFAULT (datetime('now')),
		updated_at TEXT DEFAULT (datetime('now')),
		UNIQUE(chain_id, address)
	);

	-- Source files of verified contracts
	CREATE TABLE IF NOT EXISTS contract_sources (
		id TEXT PRIMARY KEY,
		contract_id TEXT REFERENCES verified_contracts(id) ON DELETE CASCADE,
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
func (s *SQLiteStore) StoreMatch(ctx context.Context, contract *domain.Contract, match *domain.Match) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	address := normalizeAddress(match.Address)
	id := generateID()
	upsert := `
		INSERT INTO verified_contracts (id, chain_id, address, name, compiler_version, status, metadata, metadata_digest, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, datetime('now'), datetime('now'))
		ON CONFLICT(chain_id, address) DO UPDATE SET
			name = excluded.name,
			compiler_version = excluded.compiler_version,
			status = excluded.status,
			metadata = excluded.metadata,
			metadata_digest = excluded.metadata_digest,
			updated_at = datetime('now')
	`
	if _, err := tx.ExecContext(ctx, upsert, id, match.ChainID, address, contract.Name, contract.CompilerVersion, string(match.Status), string(contract.Metadata), contract.MetadataDigest); err != nil {
		return fmt.Errorf("upserting verified contract: %w", err)
	}

	// The upsert may have kept an existing row id; read it back.
	var contractID string
	if err := tx.QueryRowContext(ctx, "SELECT id FROM verified_contracts WHERE chain_id = ? AND address = ?", match.ChainID, address).Scan(&contractID); err != nil {
		return fmt.Errorf("reading contract id: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM contract_sources WHERE contract_id = ?", contractID); err != nil {
		return fmt.Errorf("clearing old sources: %w", err)
	}
	for path, content := range contract.Sources {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO contract_sources (id, contract_id, path, content, content_hash) VALUES (?, ?, ?, ?, ?)",
			generateID(), contractID, path, content, contentHash(content)); err != nil {
			return fmt.Errorf("storing source %s: %w", path, err)
		}
	}

	return tx.Commit()
}

// GetMatch retrieves a verified contract by chain id and address.
func (s *SQLiteStore) GetMatch(ctx context.Context, chainID, address string) (*VerifiedContract, error) {
	query := `
		SELECT id, chain_id, address, name, compiler_version, status, metadata, metadata_digest, created_at, updated_at
		FROM verified_contracts
		WHERE chain_id = ? AND address = ?
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
func (s *SQLiteStore) GetSources(ctx context.Context, contractID string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT path, content FROM contract_sources WHERE contract_id = ?", contractID)
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
func (s *SQLiteStore) CheckAddresses(ctx context.Context, chainID string, addresses []string) (map[string]string, error) {
	out := make(map[string]string, len(addresses))
	for _, address := range addresses {
		var status string
		err := s.db.QueryRowContext(ctx,
			"SELECT status FROM verified_contracts WHERE chain_id = ? AND address = ?",
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

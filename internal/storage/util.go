package storage

import (
	"strings"

	"github.com/google/uuid"

	"github.com/attestry/attestry/internal/evm"
)

// generateID generates a new UUID
func generateID() string {
	return uuid.New().String()
}

// contentHash computes the keccak256 hash of a source file, matching the
// hash the Solidity metadata format records.
func contentHash(content string) string {
	return evm.Keccak256Hex([]byte(content))
}

// normalizeAddress lowercases an address so lookups ignore EIP-55 casing.
func normalizeAddress(address string) string {
	return strings.ToLower(address)
}

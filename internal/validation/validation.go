// Package validation provides input validation for attestry.
package validation

import (
	"errors"
	"regexp"
	"strings"

	"golang.org/x/mod/semver"
)

var txHashRegex = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

// ValidateAddress validates an Ethereum address.
func ValidateAddress(addr string) error {
	if len(addr) != 42 {
		return errors.New("invalid address length: must be 42 characters (0x + 40 hex)")
	}
	if !strings.HasPrefix(addr, "0x") {
		return errors.New("invalid address: must start with 0x")
	}
	for _, c := range addr[2:] {
		isDigit := c >= '0' && c <= '9'
		isLowerHex := c >= 'a' && c <= 'f'
		isUpperHex := c >= 'A' && c <= 'F'
		if !isDigit && !isLowerHex && !isUpperHex {
			return errors.New("invalid address: contains non-hex characters")
		}
	}
	return nil
}

// ValidateChainID validates a chain ID. Chain ids travel as decimal strings
// so arbitrarily large EVM chain ids survive JSON round-trips.
func ValidateChainID(chainID string) error {
	if chainID == "" {
		return errors.New("chain ID cannot be empty")
	}
	for _, c := range chainID {
		if c < '0' || c > '9' {
			return errors.New("chain ID must be a positive decimal number")
		}
	}
	if strings.TrimLeft(chainID, "0") == "" {
		return errors.New("chain ID must be positive")
	}
	return nil
}

// ValidateTxHash validates a 32-byte transaction hash.
func ValidateTxHash(hash string) error {
	if !txHashRegex.MatchString(hash) {
		return errors.New("invalid transaction hash: must be 0x + 64 hex characters")
	}
	return nil
}

// ValidateCompilerVersion validates a solc-style version such as
// "0.8.20" or "0.8.20+commit.a1b72867".
func ValidateCompilerVersion(v string) error {
	if v == "" {
		return errors.New("compiler version cannot be empty")
	}
	base := v
	if idx := strings.IndexAny(v, "+"); idx != -1 {
		base = v[:idx]
	}
	base = strings.TrimPrefix(base, "v")
	if !semver.IsValid("v" + base) {
		return errors.New("invalid compiler version: must be in format X.Y.Z")
	}
	if strings.Count(base, ".") < 2 {
		return errors.New("invalid compiler version: must be in format X.Y.Z (major.minor.patch)")
	}
	return nil
}

// ValidateSourcePath rejects path traversal and absolute paths in uploaded
// source file names. Paths are virtual (keys in the compiler input), but
// stores may mirror them onto a filesystem.
func ValidateSourcePath(path string) error {
	if path == "" {
		return errors.New("source path cannot be empty")
	}
	if strings.Contains(path, "..") {
		return errors.New("source path must not contain '..'")
	}
	if strings.HasPrefix(path, "/") || strings.HasPrefix(path, "\\") {
		return errors.New("source path must be relative")
	}
	if strings.ContainsRune(path, 0) {
		return errors.New("source path contains a null byte")
	}
	return nil
}

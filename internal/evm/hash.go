// Package evm provides EVM-level primitives: keccak hashing, bytecode
// comparison, and deterministic CREATE2 address derivation.
package evm

import (
	"encoding/hex"
	"errors"
	"strings"

	"golang.org/x/crypto/sha3"
)

// Keccak256 computes the legacy Keccak-256 hash over the concatenation of
// all inputs. This is the hash the EVM and the Solidity metadata format use,
// not the finalized SHA3-256.
func Keccak256(data ...[]byte) []byte {
	h := sha3.NewLegacyKeccak256()
	for _, d := range data {
		h.Write(d)
	}
	return h.Sum(nil)
}

// Keccak256Hex returns the 0x-prefixed hex encoding of Keccak256(data).
func Keccak256Hex(data []byte) string {
	return "0x" + hex.EncodeToString(Keccak256(data))
}

// DecodeHex decodes a hex string with or without a 0x prefix.
func DecodeHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s)%2 != 0 {
		return nil, errors.New("odd-length hex string")
	}
	return hex.DecodeString(s)
}

// EncodeHex returns the 0x-prefixed hex encoding of b.
func EncodeHex(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}

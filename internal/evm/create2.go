package evm

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// ParseSalt normalizes a CREATE2 salt into its 32-byte form. The salt may be
// given as 0x-prefixed hex (left-padded) or as a decimal integer.
func ParseSalt(salt string) ([]byte, error) {
	salt = strings.TrimSpace(salt)
	if salt == "" {
		return nil, errors.New("salt is empty")
	}

	var n *big.Int
	if strings.HasPrefix(salt, "0x") || strings.HasPrefix(salt, "0X") {
		raw, err := DecodeHex(salt)
		if err != nil {
			return nil, fmt.Errorf("parsing salt: %w", err)
		}
		if len(raw) > 32 {
			return nil, errors.New("salt longer than 32 bytes")
		}
		padded := make([]byte, 32)
		copy(padded[32-len(raw):], raw)
		return padded, nil
	}

	n, ok := new(big.Int).SetString(salt, 10)
	if !ok || n.Sign() < 0 {
		return nil, errors.New("salt is not a valid decimal integer or hex string")
	}
	if n.BitLen() > 256 {
		return nil, errors.New("salt exceeds 256 bits")
	}
	return n.FillBytes(make([]byte, 32)), nil
}

// Create2Address derives the deterministic deployment address for a CREATE2
// transaction: keccak256(0xff ++ deployer ++ salt ++ keccak256(initCode))[12:].
// The init code is the creation bytecode followed by the ABI-encoded
// constructor arguments.
func Create2Address(deployer string, salt []byte, creationBytecode, ctorArgs []byte) (string, error) {
	deployerBytes, err := DecodeHex(deployer)
	if err != nil {
		return "", fmt.Errorf("parsing deployer address: %w", err)
	}
	if len(deployerBytes) != 20 {
		return "", errors.New("deployer address must be 20 bytes")
	}
	if len(salt) != 32 {
		return "", errors.New("salt must be 32 bytes")
	}
	if len(creationBytecode) == 0 {
		return "", errors.New("creation bytecode is empty")
	}

	initCodeHash := Keccak256(creationBytecode, ctorArgs)
	digest := Keccak256([]byte{0xff}, deployerBytes, salt, initCodeHash)
	return EncodeHex(digest[12:]), nil
}

// SameAddress compares two 0x-prefixed addresses ignoring checksum casing.
func SameAddress(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

package evm

import (
	"bytes"
)

// CBOR metadata marker emitted by solc >=0.6.0 ("ipfs" key in the CBOR map).
var metadataMarker = []byte{0xa2, 0x64, 0x69, 0x70, 0x66, 0x73}

// Comparison is the outcome of comparing two bytecode blobs.
type Comparison struct {
	Match   bool
	Exact   bool // true when the match includes the metadata tail
	Message string
}

// StripMetadata removes the CBOR metadata blob solc appends to bytecode.
// The two bytes preceding the marker encode the blob length and are removed
// with it.
func StripMetadata(bytecode []byte) []byte {
	idx := bytes.LastIndex(bytecode, metadataMarker)
	if idx == -1 {
		return bytecode
	}
	if idx >= 2 {
		return bytecode[:idx-2]
	}
	return bytecode
}

// CompareRuntime compares on-chain runtime bytecode against compiled runtime
// bytecode. An exact match includes the metadata tail; a partial match means
// the executable code agrees but the metadata differs (source paths, comments
// or build environment changed between compilations).
func CompareRuntime(onchain, compiled []byte) Comparison {
	if len(onchain) == 0 {
		return Comparison{Match: false, Message: "no bytecode deployed at address"}
	}
	if bytes.Equal(onchain, compiled) {
		return Comparison{Match: true, Exact: true, Message: "runtime bytecode matches exactly including metadata"}
	}
	if bytes.Equal(StripMetadata(onchain), StripMetadata(compiled)) {
		return Comparison{Match: true, Message: "runtime bytecode matches, metadata differs"}
	}
	return Comparison{Match: false, Message: "runtime bytecode does not match"}
}

// CompareCreation compares the transaction input that created a contract
// against compiled creation bytecode. The on-chain input may carry
// ABI-encoded constructor arguments after the creation code, so a prefix
// match is accepted; the remainder is reported back as the detected
// constructor arguments.
func CompareCreation(txInput, compiled []byte) (Comparison, []byte) {
	if len(compiled) == 0 || len(txInput) < len(compiled) {
		return Comparison{Match: false, Message: "creation bytecode does not match"}, nil
	}
	if bytes.Equal(txInput[:len(compiled)], compiled) {
		args := txInput[len(compiled):]
		exact := len(args) == 0
		return Comparison{Match: true, Exact: exact, Message: "creation bytecode matches"}, args
	}
	// Metadata may differ inside the embedded runtime blob.
	stripped := StripMetadata(compiled)
	if len(stripped) > 0 && len(txInput) >= len(stripped) && bytes.Equal(txInput[:len(stripped)], stripped) {
		return Comparison{Match: true, Message: "creation bytecode matches, metadata differs"}, nil
	}
	return Comparison{Match: false, Message: "creation bytecode does not match"}, nil
}

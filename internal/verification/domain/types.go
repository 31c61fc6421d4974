// Package domain contains the business logic for session-based contract
// verification: the wrapper registry, the grouping reconciliation, and the
// verification orchestrator.
package domain

import (
	"encoding/json"
	"sort"
	"time"
)

// Status is the verification state of a wrapper.
type Status string

// Wrapper verification states.
const (
	StatusPending       Status = "pending"
	StatusValidRuntime  Status = "valid_runtime"
	StatusValidCreation Status = "valid_creation"
	StatusFalse         Status = "false"
	StatusError         Status = "error"
)

// Success reports whether the status is a terminal success state.
func (s Status) Success() bool {
	return s == StatusValidRuntime || s == StatusValidCreation
}

// PathContent is one uploaded file.
type PathContent struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// Contract is the structural grouping result for one candidate contract:
// the metadata descriptor that defines it plus every source the metadata
// requires, partitioned into resolved, missing, and hash-mismatched.
type Contract struct {
	// MetadataDigest is the keccak256 of the raw metadata document. It is
	// the stable identity used to reconcile regrouping results with
	// existing wrappers.
	MetadataDigest  string
	Metadata        json.RawMessage
	Name            string
	CompilerVersion string

	// Sources maps required source paths to resolved content.
	Sources map[string]string
	// Missing lists required source paths with no matching upload, sorted.
	Missing []string
	// Invalid lists required source paths whose uploaded content hashes
	// differently than the metadata expects, sorted.
	Invalid []string

	// UsedFiles are the upload paths this grouping consumed (the metadata
	// file and every matched source).
	UsedFiles []string

	// CreationBytecode caches compiled creation bytecode for the CREATE2
	// pathway. Populated by the precompile step.
	CreationBytecode []byte
}

// Complete reports whether every required source is resolved.
func (c *Contract) Complete() bool {
	return c != nil && len(c.Missing) == 0 && len(c.Invalid) == 0
}

// Wrapper is the mutable per-contract verification record living inside a
// session.
type Wrapper struct {
	VerificationID string
	Contract       *Contract

	ChainID       string
	Address       string
	CreatorTxHash string

	Status           Status
	StatusMessage    string
	StorageTimestamp time.Time
}

// Verifiable reports whether the wrapper has everything a verification
// attempt needs: complete sources plus a declared target.
func (w *Wrapper) Verifiable() bool {
	return w.Contract.Complete() && w.Address != "" && w.ChainID != ""
}

// SetTarget declares (or re-declares) the verification target. The target
// freezes once the wrapper has verified successfully.
func (w *Wrapper) SetTarget(chainID, address, creatorTxHash string) bool {
	if w.Status.Success() {
		return false
	}
	w.ChainID = chainID
	w.Address = address
	if creatorTxHash != "" {
		w.CreatorTxHash = creatorTxHash
	}
	return true
}

// Match is the outcome of a bytecode or address comparison.
type Match struct {
	Status  Status // valid_runtime, valid_creation, or false
	Message string
	ChainID string
	Address string
}

// WrapperView is the caller-facing projection of a wrapper.
type WrapperView struct {
	VerificationID   string     `json:"verificationId"`
	Name             string     `json:"name,omitempty"`
	CompilerVersion  string     `json:"compilerVersion,omitempty"`
	Files            []string   `json:"files"`
	Missing          []string   `json:"missing"`
	Invalid          []string   `json:"invalid"`
	Verifiable       bool       `json:"verifiable"`
	ChainID          string     `json:"chainId,omitempty"`
	Address          string     `json:"address,omitempty"`
	CreatorTxHash    string     `json:"creatorTxHash,omitempty"`
	Status           Status     `json:"status"`
	StatusMessage    string     `json:"statusMessage,omitempty"`
	StorageTimestamp *time.Time `json:"storageTimestamp,omitempty"`
}

// View builds the caller-facing projection.
func (w *Wrapper) View() WrapperView {
	files := make([]string, 0, len(w.Contract.Sources))
	for path := range w.Contract.Sources {
		files = append(files, path)
	}
	sort.Strings(files)

	view := WrapperView{
		VerificationID:  w.VerificationID,
		Name:            w.Contract.Name,
		CompilerVersion: w.Contract.CompilerVersion,
		Files:           files,
		Missing:         append([]string{}, w.Contract.Missing...),
		Invalid:         append([]string{}, w.Contract.Invalid...),
		Verifiable:      w.Verifiable(),
		ChainID:         w.ChainID,
		Address:         w.Address,
		CreatorTxHash:   w.CreatorTxHash,
		Status:          w.Status,
		StatusMessage:   w.StatusMessage,
	}
	if !w.StorageTimestamp.IsZero() {
		ts := w.StorageTimestamp
		view.StorageTimestamp = &ts
	}
	return view
}

// Snapshot is the full session view returned by every session endpoint: all
// wrappers (verifiable or not) plus the uploaded files no grouping consumed.
type Snapshot struct {
	Contracts   []WrapperView `json:"contracts"`
	UnusedFiles []string      `json:"unusedFiles"`
}

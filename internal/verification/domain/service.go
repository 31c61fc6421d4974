package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/attestry/attestry/internal/evm"
	"github.com/attestry/attestry/internal/observability/metrics"
	"github.com/attestry/attestry/internal/validation"
)

// Common errors returned by the verification service.
var (
	ErrNotFound         = errors.New("verification id not found in session")
	ErrInvalidAddress   = errors.New("invalid address")
	ErrInvalidChainID   = errors.New("invalid chain ID")
	ErrNothingToVerify  = errors.New("no new files to verify")
	ErrNotVerifiable    = errors.New("contract is not ready for verification")
	ErrSessionTooLarge  = errors.New("session file store limit exceeded")
	ErrMalformedRequest = errors.New("malformed verification request")
)

// Grouper partitions accumulated files into candidate contracts, one per
// detected metadata descriptor.
type Grouper interface {
	Group(ctx context.Context, files map[string]string) ([]*Contract, error)
}

// Engine attempts a bytecode/source match against a target chain.
type Engine interface {
	Verify(ctx context.Context, contract *Contract, chainID, address, creatorTxHash string) (*Match, error)
	// CompileCreation compiles the contract and returns its creation
	// bytecode, for the CREATE2 pathway.
	CompileCreation(ctx context.Context, contract *Contract) ([]byte, error)
}

// Importer fetches a contract's sources from a block explorer and
// synthesizes path/content pairs that re-enter the normal pipeline.
type Importer interface {
	Import(ctx context.Context, chainID, address string) ([]PathContent, error)
}

// ResultStore persists successful matches. StoreMatch must behave as an
// idempotent upsert per (chainID, address).
type ResultStore interface {
	StoreMatch(ctx context.Context, contract *Contract, match *Match) error
}

// Create2Request describes a CREATE2 deployment claim.
type Create2Request struct {
	DeployerAddress string
	Salt            string
	Create2Address  string
	// ConstructorArgs is the 0x-hex ABI encoding of the constructor
	// arguments, empty when the constructor takes none.
	ConstructorArgs string
}

// Service orchestrates grouping, verifiability selection, and the three
// verification pathways.
type Service struct {
	grouper  Grouper
	engine   Engine
	importer Importer
	store    ResultStore
	logger   *slog.Logger

	maxBatch     int
	maxSessBytes int

	// storeLocks serializes persistence per (chainID, address) coordinate.
	storeLocks keyedMutex
}

// NewService creates a verification service.
func NewService(grouper Grouper, engine Engine, importer Importer, store ResultStore, logger *slog.Logger, maxBatch, maxSessionBytes int) *Service {
	if maxBatch <= 0 {
		maxBatch = 10
	}
	return &Service{
		grouper:      grouper,
		engine:       engine,
		importer:     importer,
		store:        store,
		logger:       logger,
		maxBatch:     maxBatch,
		maxSessBytes: maxSessionBytes,
	}
}

// SaveFiles validates and stores uploaded files, then regroups the session
// when anything actually changed. Returns the count of net-new or changed
// files. Callers must hold the session lock.
func (s *Service) SaveFiles(ctx context.Context, sess *Session, pairs []PathContent) (int, error) {
	for _, pc := range pairs {
		if err := validation.ValidateSourcePath(pc.Path); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
		}
	}

	newCount := sess.SaveFiles(pairs)
	if s.maxSessBytes > 0 && sess.TotalBytes() > s.maxSessBytes {
		return 0, ErrSessionTooLarge
	}
	if newCount == 0 {
		// Identical resubmission: skip regrouping so settled wrappers are
		// not disturbed.
		return 0, nil
	}

	if err := s.CheckContracts(ctx, sess); err != nil {
		return newCount, err
	}
	return newCount, nil
}

// CheckContracts re-runs grouping over the entire accumulated file store and
// reconciles the results into the wrapper registry. Existing wrappers are
// updated in place so user-set targets survive regrouping; unseen metadata
// digests get fresh wrappers. Callers must hold the session lock.
func (s *Service) CheckContracts(ctx context.Context, sess *Session) error {
	groups, err := s.grouper.Group(ctx, sess.Files())
	if err != nil {
		return fmt.Errorf("grouping session files: %w", err)
	}

	for _, contract := range groups {
		existing, ok := sess.wrapperByDigest(contract.MetadataDigest)
		if !ok {
			sess.addWrapper(contract)
			continue
		}
		if existing.Status.Success() {
			// Settled wrappers keep their matched contract as-is.
			continue
		}
		// Merge, don't replace: swap in the refreshed grouping but keep the
		// compiled-bytecode cache and everything the user declared.
		contract.CreationBytecode = existing.Contract.CreationBytecode
		existing.Contract = contract
	}
	return nil
}

// SelectVerifiable partitions the registry into wrappers ready for
// verification and the rest. The selector is exactly the Verifiable
// predicate; non-verifiable wrappers stay pending and are reported back
// unchanged.
func (s *Service) SelectVerifiable(sess *Session) (ready, waiting []*Wrapper) {
	for _, w := range sess.Wrappers() {
		if w.Status.Success() {
			continue
		}
		if w.Verifiable() {
			ready = append(ready, w)
		} else {
			waiting = append(waiting, w)
		}
	}
	return ready, waiting
}

// Target pairs a wrapper with a declared verification target.
type Target struct {
	VerificationID string
	ChainID        string
	Address        string
	CreatorTxHash  string
}

// validateTarget checks one target declaration and resolves its wrapper
// without mutating anything.
func (s *Service) validateTarget(sess *Session, t Target) (*Wrapper, error) {
	if err := validation.ValidateAddress(t.Address); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if err := validation.ValidateChainID(t.ChainID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidChainID, err)
	}
	if t.CreatorTxHash != "" {
		if err := validation.ValidateTxHash(t.CreatorTxHash); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
		}
	}

	w, ok := sess.Wrapper(t.VerificationID)
	if !ok {
		return nil, ErrNotFound
	}
	return w, nil
}

// SetTarget validates and declares the verification target on a wrapper.
func (s *Service) SetTarget(sess *Session, verificationID, chainID, address, creatorTxHash string) error {
	return s.SetTargets(sess, []Target{{
		VerificationID: verificationID,
		ChainID:        chainID,
		Address:        address,
		CreatorTxHash:  creatorTxHash,
	}})
}

// SetTargets validates every target before applying any of them, so one
// malformed entry rejects the whole request with the session untouched.
func (s *Service) SetTargets(sess *Session, targets []Target) error {
	wrappers := make([]*Wrapper, len(targets))
	for i, t := range targets {
		w, err := s.validateTarget(sess, t)
		if err != nil {
			return err
		}
		wrappers[i] = w
	}
	for i, t := range targets {
		wrappers[i].SetTarget(t.ChainID, t.Address, t.CreatorTxHash)
	}
	return nil
}

// VerifyWrappers runs verification for a batch of wrappers. Each wrapper is
// handled independently: one failure never blocks the others. Nothing is
// returned; the session is the result channel. Callers must hold the
// session lock.
func (s *Service) VerifyWrappers(ctx context.Context, sess *Session, wrappers []*Wrapper) {
	if len(wrappers) == 0 {
		return
	}

	type outcome struct {
		wrapper *Wrapper
		match   *Match
		err     error
	}

	sem := make(chan struct{}, s.maxBatch)
	results := make(chan outcome, len(wrappers))
	var wg sync.WaitGroup

	for _, w := range wrappers {
		wg.Add(1)
		go func(w *Wrapper) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			match, err := s.engine.Verify(ctx, w.Contract, w.ChainID, w.Address, w.CreatorTxHash)
			results <- outcome{wrapper: w, match: match, err: err}
		}(w)
	}

	wg.Wait()
	close(results)

	// Apply outcomes sequentially so each wrapper update is a single
	// all-or-nothing assignment visible to the next request.
	for res := range results {
		s.applyOutcome(ctx, res.wrapper, res.match, res.err)
		metrics.Verification("session", string(res.wrapper.Status))
	}
}

// applyOutcome moves a wrapper to its terminal state for this attempt and
// persists successes exactly once per coordinate.
func (s *Service) applyOutcome(ctx context.Context, w *Wrapper, match *Match, err error) {
	if err != nil {
		w.Status = StatusError
		w.StatusMessage = err.Error()
		s.logger.Warn("verification failed",
			"verification_id", w.VerificationID,
			"chain_id", w.ChainID,
			"address", w.Address,
			"error", err)
		return
	}

	if !match.Status.Success() {
		w.Status = StatusFalse
		w.StatusMessage = match.Message
		return
	}

	if storeErr := s.persistMatch(ctx, w.Contract, match); storeErr != nil {
		// A match was found but could not be stored; the wrapper must not
		// claim success it didn't achieve.
		w.Status = StatusError
		w.StatusMessage = fmt.Sprintf("match found but storing failed: %v", storeErr)
		s.logger.Error("storing match failed",
			"chain_id", match.ChainID,
			"address", match.Address,
			"error", storeErr)
		return
	}

	w.Status = match.Status
	// Messages accompany only false and error outcomes.
	w.StatusMessage = ""
	w.StorageTimestamp = time.Now().UTC()
	s.logger.Info("contract verified",
		"verification_id", w.VerificationID,
		"chain_id", match.ChainID,
		"address", match.Address,
		"status", match.Status)
}

// persistMatch stores a successful match under the per-coordinate lock so
// concurrent batches cannot interleave writes for the same contract.
func (s *Service) persistMatch(ctx context.Context, contract *Contract, match *Match) error {
	key := match.ChainID + "/" + match.Address
	unlock := s.storeLocks.lock(key)
	defer unlock()
	if err := s.store.StoreMatch(ctx, contract, match); err != nil {
		metrics.MatchStored(match.ChainID, "error")
		return err
	}
	metrics.MatchStored(match.ChainID, string(match.Status))
	return nil
}

// ImportFromExplorer fetches a contract's sources from the block explorer
// and feeds them into the session pipeline. Zero synthesized new files is a
// client error, not a silent success. Callers must hold the session lock.
func (s *Service) ImportFromExplorer(ctx context.Context, sess *Session, chainID, address string) error {
	if err := validation.ValidateAddress(address); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if err := validation.ValidateChainID(chainID); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidChainID, err)
	}

	pairs, err := s.importer.Import(ctx, chainID, address)
	if err != nil {
		metrics.Import(chainID, "error")
		return fmt.Errorf("importing from explorer: %w", err)
	}
	metrics.Import(chainID, "ok")

	newCount, err := s.SaveFiles(ctx, sess, pairs)
	if err != nil {
		return err
	}
	if newCount == 0 {
		return ErrNothingToVerify
	}

	// Pre-declare the target on every wrapper the import produced, so the
	// caller can verify without re-entering chain and address.
	for _, w := range sess.Wrappers() {
		if w.Status == StatusPending && w.Address == "" && w.Contract.Complete() {
			w.SetTarget(chainID, address, "")
		}
	}
	return nil
}

// create2ChainID is the pseudo chain id CREATE2 matches are stored under:
// the deployment is deterministic, not tied to any one chain.
const create2ChainID = "0"

// VerifyCreate2 checks a CREATE2 deployment claim for a session wrapper.
// The wrapper's cached creation bytecode (from a compile or precompile
// step) is the init code. Callers must hold the session lock.
func (s *Service) VerifyCreate2(ctx context.Context, sess *Session, verificationID string, req Create2Request) error {
	w, ok := sess.Wrapper(verificationID)
	if !ok {
		return ErrNotFound
	}
	if !w.Contract.Complete() {
		return ErrNotVerifiable
	}

	if len(w.Contract.CreationBytecode) == 0 {
		code, err := s.engine.CompileCreation(ctx, w.Contract)
		if err != nil {
			w.Status = StatusError
			w.StatusMessage = err.Error()
			return nil
		}
		w.Contract.CreationBytecode = code
	}

	match, err := s.checkCreate2(w.Contract.CreationBytecode, req)
	if err != nil {
		return err
	}
	s.applyOutcome(ctx, w, match, nil)
	metrics.Verification("create2", string(w.Status))
	return nil
}

// PrecompileCreate2 recompiles the wrapper's contract to refresh the cached
// creation bytecode without touching its status. Callers must hold the
// session lock.
func (s *Service) PrecompileCreate2(ctx context.Context, sess *Session, verificationID string) error {
	w, ok := sess.Wrapper(verificationID)
	if !ok {
		return ErrNotFound
	}
	if !w.Contract.Complete() {
		return ErrNotVerifiable
	}

	code, err := s.engine.CompileCreation(ctx, w.Contract)
	if err != nil {
		return fmt.Errorf("compiling contract: %w", err)
	}
	w.Contract.CreationBytecode = code
	return nil
}

// checkCreate2 recomputes the deterministic deployment address and compares
// it to the claim. This pathway is a pure computation: its only outcomes are
// match, mismatch, and malformed input.
func (s *Service) checkCreate2(creationBytecode []byte, req Create2Request) (*Match, error) {
	if err := validation.ValidateAddress(req.DeployerAddress); err != nil {
		return nil, fmt.Errorf("%w: deployer: %v", ErrMalformedRequest, err)
	}
	if err := validation.ValidateAddress(req.Create2Address); err != nil {
		return nil, fmt.Errorf("%w: create2 address: %v", ErrMalformedRequest, err)
	}
	salt, err := evm.ParseSalt(req.Salt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	var ctorArgs []byte
	if req.ConstructorArgs != "" {
		ctorArgs, err = evm.DecodeHex(req.ConstructorArgs)
		if err != nil {
			return nil, fmt.Errorf("%w: constructor arguments: %v", ErrMalformedRequest, err)
		}
	}

	computed, err := evm.Create2Address(req.DeployerAddress, salt, creationBytecode, ctorArgs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}

	if !evm.SameAddress(computed, req.Create2Address) {
		return &Match{
			Status:  StatusFalse,
			Message: fmt.Sprintf("deployment address mismatch: computed %s", computed),
			ChainID: create2ChainID,
			Address: req.Create2Address,
		}, nil
	}
	return &Match{
		Status:  StatusValidCreation,
		Message: "CREATE2 deployment address matches",
		ChainID: create2ChainID,
		Address: computed,
	}, nil
}

// VerifyCreate2Stateless checks a CREATE2 claim for a one-shot request that
// carries its own files. The match is persisted only on success.
func (s *Service) VerifyCreate2Stateless(ctx context.Context, files []PathContent, req Create2Request) (*Wrapper, error) {
	w, err := s.groupSingle(ctx, files)
	if err != nil {
		return nil, err
	}

	code, err := s.engine.CompileCreation(ctx, w.Contract)
	if err != nil {
		w.Status = StatusError
		w.StatusMessage = err.Error()
		return w, nil
	}
	w.Contract.CreationBytecode = code

	match, err := s.checkCreate2(code, req)
	if err != nil {
		return nil, err
	}
	s.applyOutcome(ctx, w, match, nil)
	metrics.Verification("create2", string(w.Status))
	return w, nil
}

// VerifyDirect handles the stateless pathway: files plus a declared target
// in a single request, no session retained.
func (s *Service) VerifyDirect(ctx context.Context, files []PathContent, chainID, address, creatorTxHash string) (*Wrapper, error) {
	if err := validation.ValidateAddress(address); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if err := validation.ValidateChainID(chainID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidChainID, err)
	}

	w, err := s.groupSingle(ctx, files)
	if err != nil {
		return nil, err
	}
	if !w.Contract.Complete() {
		return w, nil
	}

	w.SetTarget(chainID, address, creatorTxHash)
	match, verr := s.engine.Verify(ctx, w.Contract, chainID, address, creatorTxHash)
	s.applyOutcome(ctx, w, match, verr)
	metrics.Verification("direct", string(w.Status))
	return w, nil
}

// ImportAndVerify handles the stateless explorer-import pathway.
func (s *Service) ImportAndVerify(ctx context.Context, chainID, address string) (*Wrapper, error) {
	if err := validation.ValidateAddress(address); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if err := validation.ValidateChainID(chainID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidChainID, err)
	}

	pairs, err := s.importer.Import(ctx, chainID, address)
	if err != nil {
		return nil, fmt.Errorf("importing from explorer: %w", err)
	}
	if len(pairs) == 0 {
		return nil, ErrNothingToVerify
	}

	w, err := s.groupSingle(ctx, pairs)
	if err != nil {
		return nil, err
	}
	if !w.Contract.Complete() {
		return w, nil
	}

	w.SetTarget(chainID, address, "")
	match, verr := s.engine.Verify(ctx, w.Contract, chainID, address, "")
	s.applyOutcome(ctx, w, match, verr)
	metrics.Verification("etherscan", string(w.Status))
	return w, nil
}

// groupSingle runs grouping over a one-shot file set and expects exactly
// one candidate contract.
func (s *Service) groupSingle(ctx context.Context, files []PathContent) (*Wrapper, error) {
	if len(files) == 0 {
		return nil, ErrNothingToVerify
	}
	for _, pc := range files {
		if err := validation.ValidateSourcePath(pc.Path); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
		}
	}

	fileMap := make(map[string]string, len(files))
	for _, pc := range files {
		fileMap[pc.Path] = pc.Content
	}

	groups, err := s.grouper.Group(ctx, fileMap)
	if err != nil {
		return nil, fmt.Errorf("grouping files: %w", err)
	}
	switch len(groups) {
	case 0:
		return nil, fmt.Errorf("%w: no contract metadata found in files", ErrMalformedRequest)
	case 1:
	default:
		return nil, fmt.Errorf("%w: expected one contract, found %d", ErrMalformedRequest, len(groups))
	}

	return &Wrapper{
		VerificationID: newVerificationID(),
		Contract:       groups[0],
		Status:         StatusPending,
	}, nil
}

// keyedMutex provides one mutex per string key.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}

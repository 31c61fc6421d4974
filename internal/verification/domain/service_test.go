package domain

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attestry/attestry/internal/evm"
)

// mockGrouper simulates metadata-descriptor grouping: every file named
// "*.meta" is a descriptor whose content lists the source paths it
// requires, comma-separated. A required source is resolved when uploaded,
// missing otherwise.
type mockGrouper struct {
	calls int
}

func (g *mockGrouper) Group(ctx context.Context, files map[string]string) ([]*Contract, error) {
	g.calls++
	var out []*Contract
	for path, content := range files {
		if len(path) < 5 || path[len(path)-5:] != ".meta" {
			continue
		}
		c := &Contract{
			MetadataDigest: evm.Keccak256Hex([]byte(content)),
			Metadata:       []byte(`{}`),
			Name:           path[:len(path)-5],
			Sources:        make(map[string]string),
			UsedFiles:      []string{path},
		}
		for _, required := range splitList(content) {
			if src, ok := files[required]; ok {
				c.Sources[required] = src
				c.UsedFiles = append(c.UsedFiles, required)
			} else {
				c.Missing = append(c.Missing, required)
			}
		}
		out = append(out, c)
	}
	return out, nil
}

func splitList(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}

// mockEngine returns scripted matches keyed by address.
type mockEngine struct {
	mu       sync.Mutex
	matches  map[string]*Match
	errs     map[string]error
	creation []byte
	compErr  error
	verified []string
}

func (e *mockEngine) Verify(ctx context.Context, c *Contract, chainID, address, creatorTxHash string) (*Match, error) {
	e.mu.Lock()
	e.verified = append(e.verified, address)
	e.mu.Unlock()
	if err, ok := e.errs[address]; ok {
		return nil, err
	}
	if m, ok := e.matches[address]; ok {
		return m, nil
	}
	return &Match{Status: StatusFalse, Message: "bytecode does not match", ChainID: chainID, Address: address}, nil
}

func (e *mockEngine) CompileCreation(ctx context.Context, c *Contract) ([]byte, error) {
	if e.compErr != nil {
		return nil, e.compErr
	}
	return e.creation, nil
}

// mockStore records StoreMatch calls and can fail on demand.
type mockStore struct {
	mu     sync.Mutex
	stored map[string]int // chainID/address -> write count
	err    error
}

func newMockStore() *mockStore {
	return &mockStore{stored: make(map[string]int)}
}

func (m *mockStore) StoreMatch(ctx context.Context, contract *Contract, match *Match) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.stored[match.ChainID+"/"+match.Address]++
	return nil
}

type mockImporter struct {
	pairs []PathContent
	err   error
}

func (m *mockImporter) Import(ctx context.Context, chainID, address string) ([]PathContent, error) {
	return m.pairs, m.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newTestService(engine *mockEngine, store *mockStore, imp *mockImporter) (*Service, *mockGrouper) {
	grouper := &mockGrouper{}
	if engine == nil {
		engine = &mockEngine{}
	}
	if store == nil {
		store = newMockStore()
	}
	if imp == nil {
		imp = &mockImporter{}
	}
	return NewService(grouper, engine, imp, store, testLogger(), 4, 0), grouper
}

const (
	addrA = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	addrB = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	addrC = "0xcccccccccccccccccccccccccccccccccccccccc"
)

func TestSaveFiles_ResubmissionIsNoOp(t *testing.T) {
	svc, grouper := newTestService(nil, nil, nil)
	sess := NewSession()

	n, err := svc.SaveFiles(context.Background(), sess, []PathContent{
		{Path: "Token.meta", Content: "Token.sol"},
		{Path: "Token.sol", Content: "contract Token {}"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, grouper.calls)

	// Identical resubmission: zero new files, no regrouping.
	n, err = svc.SaveFiles(context.Background(), sess, []PathContent{
		{Path: "Token.sol", Content: "contract Token {}"},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 1, grouper.calls)

	// Changed content at a known path overwrites and regroups.
	n, err = svc.SaveFiles(context.Background(), sess, []PathContent{
		{Path: "Token.sol", Content: "contract Token { uint x; }"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 2, grouper.calls)
}

func TestSaveFiles_RejectsTraversalPaths(t *testing.T) {
	svc, _ := newTestService(nil, nil, nil)
	sess := NewSession()

	_, err := svc.SaveFiles(context.Background(), sess, []PathContent{
		{Path: "../escape.sol", Content: "x"},
	})
	assert.ErrorIs(t, err, ErrMalformedRequest)
	assert.Equal(t, 0, sess.FileCount())
}

func TestCheckContracts_MergeNotReplace(t *testing.T) {
	svc, _ := newTestService(nil, nil, nil)
	sess := NewSession()

	// Metadata arrives first; its source is missing.
	_, err := svc.SaveFiles(context.Background(), sess, []PathContent{
		{Path: "Token.meta", Content: "Token.sol"},
	})
	require.NoError(t, err)

	wrappers := sess.Wrappers()
	require.Len(t, wrappers, 1)
	w := wrappers[0]
	originalID := w.VerificationID
	assert.Equal(t, []string{"Token.sol"}, w.Contract.Missing)
	assert.False(t, w.Verifiable())

	// User declares the target while the source is still missing.
	require.NoError(t, svc.SetTarget(sess, originalID, "1", addrA, ""))

	// The completing source arrives: same wrapper, missing cleared, target
	// preserved.
	_, err = svc.SaveFiles(context.Background(), sess, []PathContent{
		{Path: "Token.sol", Content: "contract Token {}"},
	})
	require.NoError(t, err)

	wrappers = sess.Wrappers()
	require.Len(t, wrappers, 1)
	w = wrappers[0]
	assert.Equal(t, originalID, w.VerificationID)
	assert.Empty(t, w.Contract.Missing)
	assert.Equal(t, addrA, w.Address)
	assert.Equal(t, "1", w.ChainID)
	assert.True(t, w.Verifiable())
}

func TestCheckContracts_NewGroupingGetsFreshID(t *testing.T) {
	svc, _ := newTestService(nil, nil, nil)
	sess := NewSession()

	_, err := svc.SaveFiles(context.Background(), sess, []PathContent{
		{Path: "A.meta", Content: "A.sol"},
	})
	require.NoError(t, err)
	_, err = svc.SaveFiles(context.Background(), sess, []PathContent{
		{Path: "B.meta", Content: "B.sol"},
	})
	require.NoError(t, err)

	wrappers := sess.Wrappers()
	require.Len(t, wrappers, 2)
	assert.NotEqual(t, wrappers[0].VerificationID, wrappers[1].VerificationID)
}

func TestSelectVerifiable_IsExactlyThePredicate(t *testing.T) {
	svc, _ := newTestService(nil, nil, nil)
	sess := NewSession()

	_, err := svc.SaveFiles(context.Background(), sess, []PathContent{
		{Path: "Full.meta", Content: "Full.sol"},
		{Path: "Full.sol", Content: "contract Full {}"},
		{Path: "Partial.meta", Content: "Gone.sol"},
	})
	require.NoError(t, err)

	var full *Wrapper
	for _, w := range sess.Wrappers() {
		if w.Contract.Name == "Full" {
			full = w
		}
	}
	require.NotNil(t, full)

	// Complete sources but no target: not verifiable.
	ready, waiting := svc.SelectVerifiable(sess)
	assert.Empty(t, ready)
	assert.Len(t, waiting, 2)

	require.NoError(t, svc.SetTarget(sess, full.VerificationID, "1", addrA, ""))
	ready, waiting = svc.SelectVerifiable(sess)
	require.Len(t, ready, 1)
	assert.Equal(t, full.VerificationID, ready[0].VerificationID)
	assert.Len(t, waiting, 1)

	// The predicate in both directions.
	for _, w := range ready {
		assert.Empty(t, w.Contract.Missing)
		assert.Empty(t, w.Contract.Invalid)
		assert.NotEmpty(t, w.Address)
		assert.NotEmpty(t, w.ChainID)
	}
	for _, w := range waiting {
		assert.False(t, w.Contract.Complete() && w.Address != "" && w.ChainID != "")
	}
}

func setupVerifiableWrapper(t *testing.T, svc *Service, sess *Session, name, chainID, address string) *Wrapper {
	t.Helper()
	_, err := svc.SaveFiles(context.Background(), sess, []PathContent{
		{Path: name + ".meta", Content: name + ".sol"},
		{Path: name + ".sol", Content: "contract " + name + " {}"},
	})
	require.NoError(t, err)

	for _, w := range sess.Wrappers() {
		if w.Contract.Name == name {
			require.NoError(t, svc.SetTarget(sess, w.VerificationID, chainID, address, ""))
			return w
		}
	}
	t.Fatalf("wrapper %s not found", name)
	return nil
}

func TestVerifyWrappers_Success(t *testing.T) {
	engine := &mockEngine{matches: map[string]*Match{
		addrA: {Status: StatusValidRuntime, Message: "runtime match", ChainID: "1", Address: addrA},
	}}
	store := newMockStore()
	svc, _ := newTestService(engine, store, nil)
	sess := NewSession()

	w := setupVerifiableWrapper(t, svc, sess, "Token", "1", addrA)
	assert.Equal(t, StatusPending, w.Status)

	ready, _ := svc.SelectVerifiable(sess)
	svc.VerifyWrappers(context.Background(), sess, ready)

	assert.Equal(t, StatusValidRuntime, w.Status)
	assert.False(t, w.StorageTimestamp.IsZero())
	assert.Equal(t, 1, store.stored["1/"+addrA])

	// Target frozen after success.
	assert.False(t, w.SetTarget("5", addrB, ""))
	assert.Equal(t, "1", w.ChainID)
}

func TestVerifyWrappers_FalseIsAValidOutcome(t *testing.T) {
	engine := &mockEngine{} // no scripted match: everything is "false"
	store := newMockStore()
	svc, _ := newTestService(engine, store, nil)
	sess := NewSession()

	w := setupVerifiableWrapper(t, svc, sess, "Token", "1", addrA)
	ready, _ := svc.SelectVerifiable(sess)
	svc.VerifyWrappers(context.Background(), sess, ready)

	assert.Equal(t, StatusFalse, w.Status)
	assert.NotEmpty(t, w.StatusMessage)
	assert.True(t, w.StorageTimestamp.IsZero())
	assert.Empty(t, store.stored)
}

func TestVerifyWrappers_OneFailureDoesNotBlockOthers(t *testing.T) {
	engine := &mockEngine{
		matches: map[string]*Match{
			addrA: {Status: StatusValidRuntime, ChainID: "1", Address: addrA},
			addrC: {Status: StatusValidCreation, ChainID: "1", Address: addrC},
		},
		errs: map[string]error{
			addrB: errors.New("rpc timeout"),
		},
	}
	store := newMockStore()
	svc, _ := newTestService(engine, store, nil)
	sess := NewSession()

	wa := setupVerifiableWrapper(t, svc, sess, "Alpha", "1", addrA)
	wb := setupVerifiableWrapper(t, svc, sess, "Beta", "1", addrB)
	wc := setupVerifiableWrapper(t, svc, sess, "Gamma", "1", addrC)

	ready, _ := svc.SelectVerifiable(sess)
	require.Len(t, ready, 3)
	svc.VerifyWrappers(context.Background(), sess, ready)

	assert.Equal(t, StatusValidRuntime, wa.Status)
	assert.Equal(t, StatusError, wb.Status)
	assert.Contains(t, wb.StatusMessage, "rpc timeout")
	assert.Equal(t, StatusValidCreation, wc.Status)

	// The failed wrapper stays in the registry for inspection and retry.
	_, ok := sess.Wrapper(wb.VerificationID)
	assert.True(t, ok)
}

func TestVerifyWrappers_RepeatedSuccessStoresOncePerWrite(t *testing.T) {
	engine := &mockEngine{matches: map[string]*Match{
		addrA: {Status: StatusValidRuntime, ChainID: "1", Address: addrA},
	}}
	store := newMockStore()
	svc, _ := newTestService(engine, store, nil)

	// Two sessions verify the same coordinates; the store sees an upsert
	// per success and must keep exactly one artifact (store contract).
	for range 2 {
		sess := NewSession()
		setupVerifiableWrapper(t, svc, sess, "Token", "1", addrA)
		ready, _ := svc.SelectVerifiable(sess)
		svc.VerifyWrappers(context.Background(), sess, ready)
	}

	assert.Equal(t, 2, store.stored["1/"+addrA])
	assert.Len(t, store.stored, 1)
}

func TestVerifyWrappers_PersistenceFailureIsNotSuccess(t *testing.T) {
	engine := &mockEngine{matches: map[string]*Match{
		addrA: {Status: StatusValidRuntime, ChainID: "1", Address: addrA},
	}}
	store := newMockStore()
	store.err = errors.New("disk full")
	svc, _ := newTestService(engine, store, nil)
	sess := NewSession()

	w := setupVerifiableWrapper(t, svc, sess, "Token", "1", addrA)
	ready, _ := svc.SelectVerifiable(sess)
	svc.VerifyWrappers(context.Background(), sess, ready)

	assert.Equal(t, StatusError, w.Status)
	assert.Contains(t, w.StatusMessage, "storing failed")
	assert.True(t, w.StorageTimestamp.IsZero())
}

func TestVerifyWrappers_SettledWrapperNotReverified(t *testing.T) {
	engine := &mockEngine{matches: map[string]*Match{
		addrA: {Status: StatusValidRuntime, ChainID: "1", Address: addrA},
	}}
	svc, _ := newTestService(engine, nil, nil)
	sess := NewSession()

	setupVerifiableWrapper(t, svc, sess, "Token", "1", addrA)
	ready, _ := svc.SelectVerifiable(sess)
	svc.VerifyWrappers(context.Background(), sess, ready)
	require.Len(t, engine.verified, 1)

	// Settled wrappers are excluded from the next batch.
	ready, _ = svc.SelectVerifiable(sess)
	assert.Empty(t, ready)

	// Resubmitting identical files does not regroup or re-verify.
	n, err := svc.SaveFiles(context.Background(), sess, []PathContent{
		{Path: "Token.sol", Content: "contract Token {}"},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Len(t, engine.verified, 1)
}

func TestSetTarget_Validation(t *testing.T) {
	svc, _ := newTestService(nil, nil, nil)
	sess := NewSession()
	setupVerifiableWrapper(t, svc, sess, "Token", "1", addrA)
	id := sess.Wrappers()[0].VerificationID

	assert.ErrorIs(t, svc.SetTarget(sess, id, "1", "not-an-address", ""), ErrInvalidAddress)
	assert.ErrorIs(t, svc.SetTarget(sess, id, "mainnet", addrA, ""), ErrInvalidChainID)
	assert.ErrorIs(t, svc.SetTarget(sess, id, "1", addrA, "0x123"), ErrMalformedRequest)
	assert.ErrorIs(t, svc.SetTarget(sess, "unknown-id", "1", addrA, ""), ErrNotFound)
}

func TestSetTargets_MalformedEntryLeavesSessionUntouched(t *testing.T) {
	svc, _ := newTestService(nil, nil, nil)
	sess := NewSession()

	_, err := svc.SaveFiles(context.Background(), sess, []PathContent{
		{Path: "Alpha.meta", Content: "Alpha.sol"},
		{Path: "Alpha.sol", Content: "contract Alpha {}"},
		{Path: "Beta.meta", Content: "Beta.sol"},
		{Path: "Beta.sol", Content: "contract Beta {}"},
	})
	require.NoError(t, err)
	wrappers := sess.Wrappers()
	require.Len(t, wrappers, 2)

	// Valid first entry, malformed second: nothing may be applied.
	err = svc.SetTargets(sess, []Target{
		{VerificationID: wrappers[0].VerificationID, ChainID: "1", Address: addrA},
		{VerificationID: wrappers[1].VerificationID, ChainID: "1", Address: "not-an-address"},
	})
	assert.ErrorIs(t, err, ErrInvalidAddress)
	for _, w := range sess.Wrappers() {
		assert.Empty(t, w.Address)
		assert.Empty(t, w.ChainID)
	}

	// An unknown wrapper id rejects the batch the same way.
	err = svc.SetTargets(sess, []Target{
		{VerificationID: wrappers[0].VerificationID, ChainID: "1", Address: addrA},
		{VerificationID: "unknown-id", ChainID: "1", Address: addrB},
	})
	assert.ErrorIs(t, err, ErrNotFound)
	for _, w := range sess.Wrappers() {
		assert.Empty(t, w.Address)
	}

	// A fully valid batch applies every entry.
	require.NoError(t, svc.SetTargets(sess, []Target{
		{VerificationID: wrappers[0].VerificationID, ChainID: "1", Address: addrA},
		{VerificationID: wrappers[1].VerificationID, ChainID: "137", Address: addrB},
	}))
	assert.Equal(t, addrA, wrappers[0].Address)
	assert.Equal(t, "137", wrappers[1].ChainID)
}

func TestEndToEnd_IncrementalUploadScenario(t *testing.T) {
	engine := &mockEngine{matches: map[string]*Match{
		addrA: {Status: StatusValidRuntime, ChainID: "1", Address: addrA},
	}}
	svc, _ := newTestService(engine, nil, nil)
	sess := NewSession()

	// 1. Source alone: grouping finds nothing (no metadata descriptor).
	_, err := svc.SaveFiles(context.Background(), sess, []PathContent{
		{Path: "Token.sol", Content: "contract Token {}"},
	})
	require.NoError(t, err)
	snap := sess.Snapshot()
	assert.Empty(t, snap.Contracts)
	assert.Equal(t, []string{"Token.sol"}, snap.UnusedFiles)

	// 2. Metadata arrives: wrapper appears, complete, not verifiable.
	_, err = svc.SaveFiles(context.Background(), sess, []PathContent{
		{Path: "Token.meta", Content: "Token.sol"},
	})
	require.NoError(t, err)
	wrappers := sess.Wrappers()
	require.Len(t, wrappers, 1)
	w := wrappers[0]
	assert.True(t, w.Contract.Complete())
	assert.False(t, w.Verifiable())
	assert.Equal(t, StatusPending, w.Status)

	// 3. Target declared: verifiable, orchestrator runs, terminal state.
	require.NoError(t, svc.SetTarget(sess, w.VerificationID, "1", addrA, ""))
	ready, _ := svc.SelectVerifiable(sess)
	require.Len(t, ready, 1)
	svc.VerifyWrappers(context.Background(), sess, ready)
	assert.Equal(t, StatusValidRuntime, w.Status)
}

func TestImportFromExplorer(t *testing.T) {
	imp := &mockImporter{pairs: []PathContent{
		{Path: "Token.meta", Content: "Token.sol"},
		{Path: "Token.sol", Content: "contract Token {}"},
	}}
	svc, _ := newTestService(nil, nil, imp)
	sess := NewSession()

	require.NoError(t, svc.ImportFromExplorer(context.Background(), sess, "1", addrA))

	wrappers := sess.Wrappers()
	require.Len(t, wrappers, 1)
	// Import pre-declares the target.
	assert.Equal(t, addrA, wrappers[0].Address)
	assert.Equal(t, "1", wrappers[0].ChainID)
	assert.True(t, wrappers[0].Verifiable())

	// Importing the same contract again synthesizes zero new files.
	err := svc.ImportFromExplorer(context.Background(), sess, "1", addrA)
	assert.ErrorIs(t, err, ErrNothingToVerify)
}

func TestImportFromExplorer_ValidatesInput(t *testing.T) {
	svc, _ := newTestService(nil, nil, nil)
	sess := NewSession()

	assert.ErrorIs(t, svc.ImportFromExplorer(context.Background(), sess, "1", "bogus"), ErrInvalidAddress)
	assert.ErrorIs(t, svc.ImportFromExplorer(context.Background(), sess, "", addrA), ErrInvalidChainID)
}

func create2Fixture(t *testing.T) (creation []byte, deployer, salt string, target string) {
	t.Helper()
	creation = []byte{0x60, 0x80, 0x60, 0x40}
	deployer = "0xdeadbeef00000000000000000000000000000000"
	salt = "0x01"
	saltBytes, err := evm.ParseSalt(salt)
	require.NoError(t, err)
	target, err = evm.Create2Address(deployer, saltBytes, creation, nil)
	require.NoError(t, err)
	return creation, deployer, salt, target
}

func TestVerifyCreate2_Match(t *testing.T) {
	creation, deployer, salt, target := create2Fixture(t)
	engine := &mockEngine{creation: creation}
	store := newMockStore()
	svc, _ := newTestService(engine, store, nil)
	sess := NewSession()

	_, err := svc.SaveFiles(context.Background(), sess, []PathContent{
		{Path: "Token.meta", Content: "Token.sol"},
		{Path: "Token.sol", Content: "contract Token {}"},
	})
	require.NoError(t, err)
	w := sess.Wrappers()[0]

	require.NoError(t, svc.VerifyCreate2(context.Background(), sess, w.VerificationID, Create2Request{
		DeployerAddress: deployer,
		Salt:            salt,
		Create2Address:  target,
	}))

	assert.Equal(t, StatusValidCreation, w.Status)
	assert.Equal(t, 1, store.stored["0/"+target])
}

func TestVerifyCreate2_MismatchHasNoPersistence(t *testing.T) {
	creation, deployer, salt, _ := create2Fixture(t)
	engine := &mockEngine{creation: creation}
	store := newMockStore()
	svc, _ := newTestService(engine, store, nil)
	sess := NewSession()

	_, err := svc.SaveFiles(context.Background(), sess, []PathContent{
		{Path: "Token.meta", Content: "Token.sol"},
		{Path: "Token.sol", Content: "contract Token {}"},
	})
	require.NoError(t, err)
	w := sess.Wrappers()[0]

	require.NoError(t, svc.VerifyCreate2(context.Background(), sess, w.VerificationID, Create2Request{
		DeployerAddress: deployer,
		Salt:            salt,
		Create2Address:  addrB, // wrong claim
	}))

	assert.Equal(t, StatusFalse, w.Status)
	assert.Contains(t, w.StatusMessage, "mismatch")
	assert.Empty(t, store.stored)
}

func TestVerifyCreate2_MalformedInput(t *testing.T) {
	creation, deployer, _, target := create2Fixture(t)
	engine := &mockEngine{creation: creation}
	svc, _ := newTestService(engine, nil, nil)
	sess := NewSession()

	_, err := svc.SaveFiles(context.Background(), sess, []PathContent{
		{Path: "Token.meta", Content: "Token.sol"},
		{Path: "Token.sol", Content: "contract Token {}"},
	})
	require.NoError(t, err)
	w := sess.Wrappers()[0]

	err = svc.VerifyCreate2(context.Background(), sess, w.VerificationID, Create2Request{
		DeployerAddress: deployer,
		Salt:            "not-a-salt",
		Create2Address:  target,
	})
	assert.ErrorIs(t, err, ErrMalformedRequest)
	// Malformed input never reaches the wrapper.
	assert.Equal(t, StatusPending, w.Status)
}

func TestPrecompileCreate2_DoesNotChangeStatus(t *testing.T) {
	engine := &mockEngine{creation: []byte{0x01, 0x02}}
	svc, _ := newTestService(engine, nil, nil)
	sess := NewSession()

	_, err := svc.SaveFiles(context.Background(), sess, []PathContent{
		{Path: "Token.meta", Content: "Token.sol"},
		{Path: "Token.sol", Content: "contract Token {}"},
	})
	require.NoError(t, err)
	w := sess.Wrappers()[0]

	require.NoError(t, svc.PrecompileCreate2(context.Background(), sess, w.VerificationID))
	assert.Equal(t, []byte{0x01, 0x02}, w.Contract.CreationBytecode)
	assert.Equal(t, StatusPending, w.Status)

	// The cache survives a regroup triggered by new files.
	_, err = svc.SaveFiles(context.Background(), sess, []PathContent{
		{Path: "Other.meta", Content: "Other.sol"},
	})
	require.NoError(t, err)
	w, ok := sess.Wrapper(w.VerificationID)
	require.True(t, ok)
	assert.Equal(t, []byte{0x01, 0x02}, w.Contract.CreationBytecode)
}

func TestVerifyDirect(t *testing.T) {
	engine := &mockEngine{matches: map[string]*Match{
		addrA: {Status: StatusValidRuntime, ChainID: "1", Address: addrA},
	}}
	svc, _ := newTestService(engine, nil, nil)

	w, err := svc.VerifyDirect(context.Background(), []PathContent{
		{Path: "Token.meta", Content: "Token.sol"},
		{Path: "Token.sol", Content: "contract Token {}"},
	}, "1", addrA, "")
	require.NoError(t, err)
	assert.Equal(t, StatusValidRuntime, w.Status)
}

func TestVerifyDirect_IncompleteContractStaysPending(t *testing.T) {
	svc, _ := newTestService(nil, nil, nil)

	w, err := svc.VerifyDirect(context.Background(), []PathContent{
		{Path: "Token.meta", Content: "Token.sol"},
	}, "1", addrA, "")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, w.Status)
	assert.Equal(t, []string{"Token.sol"}, w.Contract.Missing)
}

func TestVerifyDirect_NoMetadataIsMalformed(t *testing.T) {
	svc, _ := newTestService(nil, nil, nil)

	_, err := svc.VerifyDirect(context.Background(), []PathContent{
		{Path: "Token.sol", Content: "contract Token {}"},
	}, "1", addrA, "")
	assert.ErrorIs(t, err, ErrMalformedRequest)
}

func TestImportAndVerify_Stateless(t *testing.T) {
	engine := &mockEngine{matches: map[string]*Match{
		addrA: {Status: StatusValidCreation, ChainID: "1", Address: addrA},
	}}
	imp := &mockImporter{pairs: []PathContent{
		{Path: "Token.meta", Content: "Token.sol"},
		{Path: "Token.sol", Content: "contract Token {}"},
	}}
	svc, _ := newTestService(engine, nil, imp)

	w, err := svc.ImportAndVerify(context.Background(), "1", addrA)
	require.NoError(t, err)
	assert.Equal(t, StatusValidCreation, w.Status)
}

func TestImportAndVerify_EmptyImport(t *testing.T) {
	svc, _ := newTestService(nil, nil, &mockImporter{})
	_, err := svc.ImportAndVerify(context.Background(), "1", addrA)
	assert.ErrorIs(t, err, ErrNothingToVerify)
}

func TestSessionTooLarge(t *testing.T) {
	grouper := &mockGrouper{}
	svc := NewService(grouper, &mockEngine{}, &mockImporter{}, newMockStore(), testLogger(), 4, 10)
	sess := NewSession()

	_, err := svc.SaveFiles(context.Background(), sess, []PathContent{
		{Path: "big.sol", Content: "this content is longer than ten bytes"},
	})
	assert.ErrorIs(t, err, ErrSessionTooLarge)
}

func TestSnapshot_UnusedFiles(t *testing.T) {
	svc, _ := newTestService(nil, nil, nil)
	sess := NewSession()

	_, err := svc.SaveFiles(context.Background(), sess, []PathContent{
		{Path: "Token.meta", Content: "Token.sol"},
		{Path: "Token.sol", Content: "contract Token {}"},
		{Path: "README.md", Content: "docs"},
	})
	require.NoError(t, err)

	snap := sess.Snapshot()
	require.Len(t, snap.Contracts, 1)
	assert.Equal(t, []string{"README.md"}, snap.UnusedFiles)
}

func TestStatusSuccess(t *testing.T) {
	assert.True(t, StatusValidRuntime.Success())
	assert.True(t, StatusValidCreation.Success())
	assert.False(t, StatusPending.Success())
	assert.False(t, StatusFalse.Success())
	assert.False(t, StatusError.Success())
}

func TestVerifyWrappers_EmptyBatchIsNoOp(t *testing.T) {
	svc, _ := newTestService(nil, nil, nil)
	svc.VerifyWrappers(context.Background(), NewSession(), nil)
}

func TestWrapperView(t *testing.T) {
	w := &Wrapper{
		VerificationID: "id-1",
		Contract: &Contract{
			Name:    "Token",
			Sources: map[string]string{"b.sol": "b", "a.sol": "a"},
			Missing: []string{"c.sol"},
		},
		ChainID: "1",
		Address: addrA,
		Status:  StatusPending,
	}

	view := w.View()
	assert.Equal(t, []string{"a.sol", "b.sol"}, view.Files)
	assert.Equal(t, []string{"c.sol"}, view.Missing)
	assert.False(t, view.Verifiable)
	assert.Nil(t, view.StorageTimestamp)
}

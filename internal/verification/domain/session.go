package domain

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/attestry/attestry/internal/evm"
)

// Session is the process-local state for one user interaction: an
// append-only file store plus the wrapper registry. Sessions are
// single-writer; callers hold the lock for the duration of a request.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu       sync.Mutex
	files    map[string]fileEntry // by upload path
	wrappers []*Wrapper           // insertion order
}

type fileEntry struct {
	content string
	digest  string
}

// NewSession creates an empty session.
func NewSession() *Session {
	return &Session{
		ID:        uuid.New().String(),
		CreatedAt: time.Now().UTC(),
		files:     make(map[string]fileEntry),
	}
}

// Lock acquires the session for a request. Sessions serialize requests;
// concurrent requests to different sessions proceed independently.
func (s *Session) Lock() { s.mu.Lock() }

// Unlock releases the session.
func (s *Session) Unlock() { s.mu.Unlock() }

// SaveFiles adds path/content pairs to the file store and returns how many
// were net-new or changed. Identical resubmission is a no-op; different
// content at a known path overwrites. The count gates regrouping: zero new
// files means nothing downstream can have changed.
func (s *Session) SaveFiles(pairs []PathContent) int {
	changed := 0
	for _, pc := range pairs {
		digest := evm.Keccak256Hex([]byte(pc.Content))
		if existing, ok := s.files[pc.Path]; ok && existing.digest == digest {
			continue
		}
		s.files[pc.Path] = fileEntry{content: pc.Content, digest: digest}
		changed++
	}
	return changed
}

// Files returns a copy of the accumulated file store.
func (s *Session) Files() map[string]string {
	out := make(map[string]string, len(s.files))
	for path, entry := range s.files {
		out[path] = entry.content
	}
	return out
}

// FileCount returns the number of stored files.
func (s *Session) FileCount() int { return len(s.files) }

// TotalBytes returns the accumulated size of all stored file contents.
func (s *Session) TotalBytes() int {
	total := 0
	for _, entry := range s.files {
		total += len(entry.content)
	}
	return total
}

// Wrappers returns the registry in insertion order.
func (s *Session) Wrappers() []*Wrapper {
	return append([]*Wrapper{}, s.wrappers...)
}

// Wrapper looks up a wrapper by verification id.
func (s *Session) Wrapper(verificationID string) (*Wrapper, bool) {
	for _, w := range s.wrappers {
		if w.VerificationID == verificationID {
			return w, true
		}
	}
	return nil, false
}

// wrapperByDigest looks up a wrapper by its contract's metadata digest.
func (s *Session) wrapperByDigest(digest string) (*Wrapper, bool) {
	for _, w := range s.wrappers {
		if w.Contract.MetadataDigest == digest {
			return w, true
		}
	}
	return nil, false
}

// newVerificationID mints a fresh wrapper identity. Ids are never reused
// across distinct source sets.
func newVerificationID() string {
	return uuid.New().String()
}

// addWrapper registers a new wrapper with a fresh verification id.
func (s *Session) addWrapper(contract *Contract) *Wrapper {
	w := &Wrapper{
		VerificationID: newVerificationID(),
		Contract:       contract,
		Status:         StatusPending,
	}
	s.wrappers = append(s.wrappers, w)
	return w
}

// Snapshot builds the full caller-facing view of the session. Every wrapper
// is included, verifiable or not, so the client can see exactly what is
// still missing.
func (s *Session) Snapshot() Snapshot {
	used := make(map[string]bool)
	views := make([]WrapperView, 0, len(s.wrappers))
	for _, w := range s.wrappers {
		views = append(views, w.View())
		for _, path := range w.Contract.UsedFiles {
			used[path] = true
		}
	}

	unused := make([]string, 0)
	for path := range s.files {
		if !used[path] {
			unused = append(unused, path)
		}
	}
	sort.Strings(unused)

	return Snapshot{Contracts: views, UnusedFiles: unused}
}

package store

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/jmerrifield20/acmeresponder/internal/challenge/model"
)

// Sentinel errors returned by the store.
var (
	ErrDuplicatePath    = errors.New("verification path is owned by another domain")
	ErrCapacityExceeded = errors.New("live challenge capacity exceeded")
)

// Option configures a MemoryStore.
type Option func(*MemoryStore)

// WithClock overrides the time source used for liveness checks.
func WithClock(now func() time.Time) Option {
	return func(s *MemoryStore) {
		s.now = now
	}
}

// MemoryStore is the in-memory challenge token store.
//
// byPath is the primary index and byDomain maps each domain to the path of its
// single live token. Both maps change together under mu, so a reader never
// observes one without the other.
type MemoryStore struct {
	mu       sync.Mutex
	byPath   map[string]*model.Token
	byDomain map[string]string
	now      func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{
		byPath:   make(map[string]*model.Token),
		byDomain: make(map[string]string),
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Now returns the store's current time.
func (s *MemoryStore) Now() time.Time {
	return s.now()
}

// Put inserts or replaces the token stored under tok.VerificationPath.
// Any other token held for the same domain is retired in the same step.
// ErrDuplicatePath is returned when a live token for a different domain
// already owns the path.
func (s *MemoryStore) Put(tok *model.Token) error {
	return s.PutWithLimit(tok, 0)
}

// PutWithLimit is Put with a cap on live tokens. maxLive <= 0 means unlimited.
// Tokens displaced by the insert do not count against the cap.
func (s *MemoryStore) PutWithLimit(tok *model.Token, maxLive int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	if cur, ok := s.byPath[tok.VerificationPath]; ok && cur.Live(now) && cur.Domain != tok.Domain {
		return ErrDuplicatePath
	}

	if maxLive > 0 {
		live := s.liveExcluding(now, tok)
		if live >= maxLive {
			// Expired entries may still be occupying slots until the next sweep.
			s.sweepLocked(now)
			live = s.liveExcluding(now, tok)
		}
		if live >= maxLive {
			return ErrCapacityExceeded
		}
	}

	if prev, ok := s.byDomain[tok.Domain]; ok && prev != tok.VerificationPath {
		s.deleteLocked(prev, model.StatusRetired)
	}
	if cur, ok := s.byPath[tok.VerificationPath]; ok && cur.Domain != tok.Domain {
		// Expired token from another domain; drop its index entry with it.
		s.deleteLocked(tok.VerificationPath, model.StatusExpired)
	}

	cp := *tok
	s.byPath[cp.VerificationPath] = &cp
	s.byDomain[cp.Domain] = cp.VerificationPath
	return nil
}

// Get returns a copy of the live token for path. A hit marks the token served.
func (s *MemoryStore) Get(path string) (*model.Token, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tok, ok := s.byPath[path]
	if !ok || !tok.Live(s.now()) {
		return nil, false
	}
	if tok.Status == model.StatusPending {
		tok.Status = model.StatusServed
	}
	cp := *tok
	return &cp, true
}

// GetByDomain returns a copy of the live token registered for domain.
func (s *MemoryStore) GetByDomain(domain string) (*model.Token, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path, ok := s.byDomain[domain]
	if !ok {
		return nil, false
	}
	tok := s.byPath[path]
	if !tok.Live(s.now()) {
		return nil, false
	}
	cp := *tok
	return &cp, true
}

// RemoveByDomain retires the token held for domain and returns it, or nil
// when the domain has nothing registered.
func (s *MemoryStore) RemoveByDomain(domain string) *model.Token {
	s.mu.Lock()
	defer s.mu.Unlock()

	path, ok := s.byDomain[domain]
	if !ok {
		return nil
	}
	return s.deleteLocked(path, model.StatusRetired)
}

// List returns copies of all live tokens ordered by domain.
func (s *MemoryStore) List() []model.Token {
	s.mu.Lock()
	now := s.now()
	out := make([]model.Token, 0, len(s.byPath))
	for _, tok := range s.byPath {
		if tok.Live(now) {
			out = append(out, *tok)
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Domain < out[j].Domain })
	return out
}

// Sweep removes every token whose deadline is before now and returns how
// many were removed.
func (s *MemoryStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked(now)
}

// Len returns the number of tokens held, including expired ones awaiting a sweep.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byPath)
}

// Live returns the number of tokens still servable at now.
func (s *MemoryStore) Live(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, tok := range s.byPath {
		if tok.Live(now) {
			n++
		}
	}
	return n
}

func (s *MemoryStore) sweepLocked(now time.Time) int {
	n := 0
	for path, tok := range s.byPath {
		if tok.Deadline.Before(now) {
			s.deleteLocked(path, model.StatusExpired)
			n++
		}
	}
	return n
}

// liveExcluding counts live tokens, skipping those an insert of tok would displace.
func (s *MemoryStore) liveExcluding(now time.Time, tok *model.Token) int {
	n := 0
	for path, cur := range s.byPath {
		if !cur.Live(now) || path == tok.VerificationPath || cur.Domain == tok.Domain {
			continue
		}
		n++
	}
	return n
}

// deleteLocked removes path from both indexes and returns the removed token
// stamped with status.
func (s *MemoryStore) deleteLocked(path string, status model.Status) *model.Token {
	tok, ok := s.byPath[path]
	if !ok {
		return nil
	}
	delete(s.byPath, path)
	if s.byDomain[tok.Domain] == path {
		delete(s.byDomain, tok.Domain)
	}
	tok.Status = status
	return tok
}

package store

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmerrifield20/acmeresponder/internal/challenge/model"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newToken(clock *fakeClock, domain, path string, ttl time.Duration) *model.Token {
	now := clock.Now()
	return &model.Token{
		ID:               uuid.New(),
		VerificationPath: path,
		KeyAuthorization: path + ".thumb",
		Domain:           domain,
		Status:           model.StatusPending,
		CreatedAt:        now,
		Deadline:         now.Add(ttl),
	}
}

func TestMemoryStore_PutAndGet(t *testing.T) {
	clock := newFakeClock()
	s := NewMemoryStore(WithClock(clock.Now))

	if err := s.Put(newToken(clock, "example.com", "abc123XYZ", 5*time.Minute)); err != nil {
		t.Fatalf("Put: %v", err)
	}

	tok, ok := s.Get("abc123XYZ")
	if !ok {
		t.Fatal("expected hit for abc123XYZ")
	}
	if tok.KeyAuthorization != "abc123XYZ.thumb" {
		t.Errorf("KeyAuthorization: got %q", tok.KeyAuthorization)
	}
	if tok.Status != model.StatusServed {
		t.Errorf("Status: got %q, want %q", tok.Status, model.StatusServed)
	}

	// Served tokens stay servable.
	if _, ok := s.Get("abc123XYZ"); !ok {
		t.Error("expected second hit after serve")
	}
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	clock := newFakeClock()
	s := NewMemoryStore(WithClock(clock.Now))
	_ = s.Put(newToken(clock, "example.com", "p1", time.Minute))

	tok, _ := s.Get("p1")
	tok.KeyAuthorization = "tampered"

	again, _ := s.Get("p1")
	if again.KeyAuthorization != "p1.thumb" {
		t.Errorf("store entry mutated through returned copy: %q", again.KeyAuthorization)
	}
}

func TestMemoryStore_Miss(t *testing.T) {
	s := NewMemoryStore()
	if _, ok := s.Get("nonexistent"); ok {
		t.Error("expected miss for unknown path")
	}
}

func TestMemoryStore_SameDomainReplacesPrior(t *testing.T) {
	clock := newFakeClock()
	s := NewMemoryStore(WithClock(clock.Now))

	_ = s.Put(newToken(clock, "example.com", "first", time.Minute))
	_ = s.Put(newToken(clock, "example.com", "second", time.Minute))

	if _, ok := s.Get("first"); ok {
		t.Error("first path should be retired after re-registering the domain")
	}
	if _, ok := s.Get("second"); !ok {
		t.Error("second path should be live")
	}
	if s.Len() != 1 {
		t.Errorf("Len: got %d, want 1", s.Len())
	}
}

func TestMemoryStore_DuplicatePathForeignDomain(t *testing.T) {
	clock := newFakeClock()
	s := NewMemoryStore(WithClock(clock.Now))

	_ = s.Put(newToken(clock, "a.example.com", "shared", time.Minute))
	err := s.Put(newToken(clock, "b.example.com", "shared", time.Minute))
	if !errors.Is(err, ErrDuplicatePath) {
		t.Fatalf("expected ErrDuplicatePath, got %v", err)
	}

	tok, ok := s.Get("shared")
	if !ok || tok.Domain != "a.example.com" {
		t.Errorf("foreign entry must not be overwritten, got %+v", tok)
	}
}

func TestMemoryStore_DuplicatePathExpiredOwner(t *testing.T) {
	clock := newFakeClock()
	s := NewMemoryStore(WithClock(clock.Now))

	_ = s.Put(newToken(clock, "a.example.com", "shared", time.Minute))
	clock.Advance(2 * time.Minute)

	if err := s.Put(newToken(clock, "b.example.com", "shared", time.Minute)); err != nil {
		t.Fatalf("expired owner should not block the path: %v", err)
	}
	if _, ok := s.GetByDomain("a.example.com"); ok {
		t.Error("expired domain index should be dropped with its token")
	}
	tok, ok := s.Get("shared")
	if !ok || tok.Domain != "b.example.com" {
		t.Errorf("expected b.example.com to own path, got %+v", tok)
	}
}

func TestMemoryStore_SamePathSameDomainReplaces(t *testing.T) {
	clock := newFakeClock()
	s := NewMemoryStore(WithClock(clock.Now))

	_ = s.Put(newToken(clock, "example.com", "p", time.Minute))
	tok := newToken(clock, "example.com", "p", time.Minute)
	tok.KeyAuthorization = "p.newthumb"
	if err := s.Put(tok); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, _ := s.Get("p")
	if got.KeyAuthorization != "p.newthumb" {
		t.Errorf("KeyAuthorization: got %q", got.KeyAuthorization)
	}
}

func TestMemoryStore_RemoveByDomain(t *testing.T) {
	clock := newFakeClock()
	s := NewMemoryStore(WithClock(clock.Now))
	_ = s.Put(newToken(clock, "example.com", "p1", time.Minute))

	removed := s.RemoveByDomain("example.com")
	if removed == nil || removed.VerificationPath != "p1" {
		t.Fatalf("RemoveByDomain returned %+v", removed)
	}
	if removed.Status != model.StatusRetired {
		t.Errorf("Status: got %q, want retired", removed.Status)
	}
	if _, ok := s.Get("p1"); ok {
		t.Error("expected miss after removal")
	}

	// Idempotent.
	if again := s.RemoveByDomain("example.com"); again != nil {
		t.Errorf("second RemoveByDomain: got %+v, want nil", again)
	}
	if s.Len() != 0 {
		t.Errorf("Len: got %d, want 0", s.Len())
	}
}

func TestMemoryStore_Expiry(t *testing.T) {
	clock := newFakeClock()
	s := NewMemoryStore(WithClock(clock.Now))
	_ = s.Put(newToken(clock, "example.com", "p1", time.Minute))

	clock.Advance(time.Minute)
	if _, ok := s.Get("p1"); !ok {
		t.Fatal("token should be live exactly at its deadline")
	}

	clock.Advance(time.Nanosecond)
	if _, ok := s.Get("p1"); ok {
		t.Error("expected miss after deadline")
	}
	if _, ok := s.GetByDomain("example.com"); ok {
		t.Error("expected GetByDomain miss after deadline")
	}
	// Still held until swept.
	if s.Len() != 1 {
		t.Errorf("Len before sweep: got %d, want 1", s.Len())
	}
}

func TestMemoryStore_Sweep(t *testing.T) {
	clock := newFakeClock()
	s := NewMemoryStore(WithClock(clock.Now))

	_ = s.Put(newToken(clock, "a.example.com", "a", time.Minute))
	_ = s.Put(newToken(clock, "b.example.com", "b", time.Minute))
	_ = s.Put(newToken(clock, "c.example.com", "c", time.Hour))

	clock.Advance(2 * time.Minute)

	if n := s.Sweep(clock.Now()); n != 2 {
		t.Errorf("Sweep removed %d, want 2", n)
	}
	if s.Len() != 1 {
		t.Errorf("Len after sweep: got %d, want 1", s.Len())
	}
	if _, ok := s.Get("c"); !ok {
		t.Error("unexpired token should survive the sweep")
	}
	if n := s.Sweep(clock.Now()); n != 0 {
		t.Errorf("second Sweep removed %d, want 0", n)
	}
}

func TestMemoryStore_Capacity(t *testing.T) {
	clock := newFakeClock()
	s := NewMemoryStore(WithClock(clock.Now))

	for i := 0; i < 3; i++ {
		tok := newToken(clock, fmt.Sprintf("d%d.example.com", i), fmt.Sprintf("p%d", i), time.Minute)
		if err := s.PutWithLimit(tok, 3); err != nil {
			t.Fatalf("PutWithLimit %d: %v", i, err)
		}
	}

	err := s.PutWithLimit(newToken(clock, "d3.example.com", "p3", time.Minute), 3)
	if !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded, got %v", err)
	}

	// Re-registering an existing domain displaces its own slot.
	if err := s.PutWithLimit(newToken(clock, "d0.example.com", "p0b", time.Minute), 3); err != nil {
		t.Errorf("re-register at capacity: %v", err)
	}

	// Expired entries free their slots without waiting for the reaper.
	clock.Advance(2 * time.Minute)
	if err := s.PutWithLimit(newToken(clock, "d3.example.com", "p3", time.Minute), 3); err != nil {
		t.Errorf("PutWithLimit after expiry: %v", err)
	}
	if n := s.Live(clock.Now()); n != 1 {
		t.Errorf("Live: got %d, want 1", n)
	}
}

func TestMemoryStore_ListAndLive(t *testing.T) {
	clock := newFakeClock()
	s := NewMemoryStore(WithClock(clock.Now))

	_ = s.Put(newToken(clock, "b.example.com", "b", time.Hour))
	_ = s.Put(newToken(clock, "a.example.com", "a", time.Hour))
	_ = s.Put(newToken(clock, "c.example.com", "c", time.Second))
	clock.Advance(time.Minute)

	list := s.List()
	if len(list) != 2 {
		t.Fatalf("List: got %d tokens, want 2", len(list))
	}
	if list[0].Domain != "a.example.com" || list[1].Domain != "b.example.com" {
		t.Errorf("List order: got %s, %s", list[0].Domain, list[1].Domain)
	}
	if n := s.Live(clock.Now()); n != 2 {
		t.Errorf("Live: got %d, want 2", n)
	}
}

func TestMemoryStore_ConcurrentGet(t *testing.T) {
	clock := newFakeClock()
	s := NewMemoryStore(WithClock(clock.Now))
	_ = s.Put(newToken(clock, "example.com", "p", time.Minute))

	var wg sync.WaitGroup
	errs := make(chan string, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok, ok := s.Get("p")
			if !ok || tok.KeyAuthorization != "p.thumb" {
				errs <- fmt.Sprintf("got %+v, %v", tok, ok)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for e := range errs {
		t.Error(e)
	}
}

func TestMemoryStore_ConcurrentRegisterSameDomain(t *testing.T) {
	clock := newFakeClock()
	s := NewMemoryStore(WithClock(clock.Now))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = s.Put(newToken(clock, "example.com", fmt.Sprintf("p%d", i), time.Minute))
		}(i)
	}
	wg.Wait()

	if n := s.Live(clock.Now()); n != 1 {
		t.Errorf("live tokens for one domain: got %d, want 1", n)
	}
}

package cache

import (
	"fmt"
	"testing"
	"time"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestCache(capacity int, policy Policy) (*Service, *clock) {
	c := &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	s := New(capacity, time.Hour, policy)
	s.now = c.now
	return s, c
}

func TestKeyIsOrderIndependent(t *testing.T) {
	a := map[string]interface{}{"keywords": []string{"go"}, "locations": []string{"Remote"}, "limit": 10}
	b := map[string]interface{}{"limit": 10, "locations": []string{"Remote"}, "keywords": []string{"go"}}

	ka, err := Key("linkedin", "search", a)
	if err != nil {
		t.Fatalf("Key(a): %v", err)
	}
	kb, err := Key("linkedin", "search", b)
	if err != nil {
		t.Fatalf("Key(b): %v", err)
	}
	if ka != kb {
		t.Errorf("equivalent params produced different keys:\n%s\n%s", ka, kb)
	}
}

func TestKeySeparatesPlatformAndOperation(t *testing.T) {
	params := map[string]string{"q": "golang"}
	k1, _ := Key("linkedin", "search", params)
	k2, _ := Key("catho", "search", params)
	k3, _ := Key("linkedin", "jobDetails", params)
	if k1 == k2 || k1 == k3 {
		t.Error("keys must differ across platform and operation")
	}
}

func TestGetMissThenHit(t *testing.T) {
	s, _ := newTestCache(10, LRU{})
	params := map[string]string{"q": "go"}

	if _, ok := s.Get("linkedin", "search", params); ok {
		t.Fatal("expected miss on empty cache")
	}
	s.Set("linkedin", "search", params, "jobs", 0)
	v, ok := s.Get("linkedin", "search", params)
	if !ok || v != "jobs" {
		t.Fatalf("Get after Set = (%v, %v), want (jobs, true)", v, ok)
	}
}

func TestLRUEvictsLeastRecentlyAccessed(t *testing.T) {
	s, c := newTestCache(3, LRU{})

	for i := 0; i < 3; i++ {
		s.Set("linkedin", "search", fmt.Sprintf("q%d", i), i, 0)
		c.advance(time.Second)
	}
	// Touch q0 and q2 so q1 becomes the least recently accessed.
	if _, ok := s.Get("linkedin", "search", "q0"); !ok {
		t.Fatal("q0 should be present")
	}
	c.advance(time.Second)
	if _, ok := s.Get("linkedin", "search", "q2"); !ok {
		t.Fatal("q2 should be present")
	}
	c.advance(time.Second)

	s.Set("linkedin", "search", "q3", 3, 0)

	if _, ok := s.Get("linkedin", "search", "q1"); ok {
		t.Error("q1 should have been evicted as least recently accessed")
	}
	for _, q := range []string{"q0", "q2", "q3"} {
		if _, ok := s.Get("linkedin", "search", q); !ok {
			t.Errorf("%s should have survived eviction", q)
		}
	}
}

func TestLFUEvictsLeastFrequentlyAccessed(t *testing.T) {
	s, c := newTestCache(2, LFU{})

	s.Set("linkedin", "search", "hot", "v", 0)
	c.advance(time.Second)
	s.Set("linkedin", "search", "cold", "v", 0)
	c.advance(time.Second)

	for i := 0; i < 5; i++ {
		s.Get("linkedin", "search", "hot")
		c.advance(time.Second)
	}

	s.Set("linkedin", "search", "new", "v", 0)

	if _, ok := s.Get("linkedin", "search", "cold"); ok {
		t.Error("cold entry should have been evicted under LFU")
	}
	if _, ok := s.Get("linkedin", "search", "hot"); !ok {
		t.Error("hot entry should have survived under LFU")
	}
}

func TestTTLExpiryLazyOnAccess(t *testing.T) {
	s, c := newTestCache(10, TTL{})
	s.Set("catho", "search", "q", "v", time.Minute)

	c.advance(30 * time.Second)
	if _, ok := s.Get("catho", "search", "q"); !ok {
		t.Fatal("entry should still be live before expiry")
	}
	c.advance(time.Minute)
	if _, ok := s.Get("catho", "search", "q"); ok {
		t.Error("entry should be expired")
	}
}

func TestSweepRemovesExpired(t *testing.T) {
	s, c := newTestCache(10, TTL{})
	s.Set("catho", "search", "a", "v", time.Minute)
	s.Set("catho", "search", "b", "v", time.Hour)

	c.advance(2 * time.Minute)
	if removed := s.Sweep(); removed != 1 {
		t.Errorf("Sweep removed %d, want 1", removed)
	}
	if st := s.Stats(); st.Entries != 1 {
		t.Errorf("Stats.Entries = %d, want 1", st.Entries)
	}
}

func TestInvalidateByPlatformAndOperation(t *testing.T) {
	s, _ := newTestCache(10, LRU{})
	s.Set("linkedin", "search", "a", "v", 0)
	s.Set("linkedin", "jobDetails", "b", "v", 0)
	s.Set("catho", "search", "c", "v", 0)

	if n := s.Invalidate("linkedin", "search"); n != 1 {
		t.Errorf("Invalidate(linkedin, search) = %d, want 1", n)
	}
	if n := s.Invalidate("linkedin", ""); n != 1 {
		t.Errorf("Invalidate(linkedin) = %d, want 1 remaining entry removed", n)
	}
	if _, ok := s.Get("catho", "search", "c"); !ok {
		t.Error("catho entry should be untouched")
	}
}

func TestPolicySwapKeepsMetadata(t *testing.T) {
	s, c := newTestCache(2, LRU{})

	s.Set("linkedin", "search", "frequent", "v", 0)
	c.advance(time.Second)
	s.Set("linkedin", "search", "rare", "v", 0)
	c.advance(time.Second)
	for i := 0; i < 3; i++ {
		s.Get("linkedin", "search", "frequent")
		c.advance(time.Second)
	}
	// Make "rare" the more recently accessed entry, then switch to LFU:
	// access counts recorded under LRU must still decide the victim.
	s.Get("linkedin", "search", "rare")
	c.advance(time.Second)

	s.SetPolicy(LFU{})
	s.Set("linkedin", "search", "new", "v", 0)

	if _, ok := s.Get("linkedin", "search", "rare"); ok {
		t.Error("rare should be evicted under LFU despite recent access")
	}
	if _, ok := s.Get("linkedin", "search", "frequent"); !ok {
		t.Error("frequent should survive the policy swap")
	}
}

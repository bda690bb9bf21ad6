// Package cache memoizes platform scrape results so repeated searches are
// served without re-driving a browser. Entries are keyed by a stable hash
// of (platform, operation, semantic params) and bounded by a capacity
// with a runtime-swappable eviction policy.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"autoapply/internal/logger"
)

type Entry struct {
	Platform       string
	Operation      string
	Value          interface{}
	InsertedAt     time.Time
	LastAccessedAt time.Time
	AccessCount    int64
	ExpiresAt      time.Time // zero = never expires
}

type Service struct {
	mu         sync.Mutex
	entries    map[string]*Entry
	capacity   int
	defaultTTL time.Duration
	policy     Policy
	log        *logger.Logger
	now        func() time.Time
}

func New(capacity int, defaultTTL time.Duration, policy Policy) *Service {
	if capacity <= 0 {
		capacity = 1000
	}
	if policy == nil {
		policy = LRU{}
	}
	return &Service{
		entries:    make(map[string]*Entry),
		capacity:   capacity,
		defaultTTL: defaultTTL,
		policy:     policy,
		log:        logger.New("ScraperCache"),
		now:        time.Now,
	}
}

// Key derives a stable cache key: equivalent params collapse to the same
// key regardless of struct field or map key order, because the params are
// round-tripped through encoding/json (which sorts object keys).
func Key(platform, operation string, params interface{}) (string, error) {
	canonical, err := canonicalJSON(params)
	if err != nil {
		return "", fmt.Errorf("canonicalize params: %w", err)
	}
	sum := sha256.Sum256([]byte(platform + "|" + operation + "|" + canonical))
	return hex.EncodeToString(sum[:]), nil
}

func canonicalJSON(params interface{}) (string, error) {
	if params == nil {
		return "null", nil
	}
	b, err := json.Marshal(params)
	if err != nil {
		return "", err
	}
	var generic interface{}
	if err := json.Unmarshal(b, &generic); err != nil {
		return "", err
	}
	out, err := json.Marshal(generic)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Get returns the cached value for (platform, operation, params), or
// (nil, false) on a miss. Expired entries are removed lazily here. A miss
// is never an error; callers fall through to a live scrape.
func (s *Service) Get(platform, operation string, params interface{}) (interface{}, bool) {
	key, err := Key(platform, operation, params)
	if err != nil {
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	now := s.now()
	if !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt) {
		delete(s.entries, key)
		return nil, false
	}
	e.LastAccessedAt = now
	e.AccessCount++
	return e.Value, true
}

// Set stores a value. ttl == 0 uses the cache default; ttl < 0 disables
// expiry for the entry.
func (s *Service) Set(platform, operation string, params, value interface{}, ttl time.Duration) {
	key, err := Key(platform, operation, params)
	if err != nil {
		s.log.LogWarnf("uncacheable params for %s/%s: %v", platform, operation, err)
		return
	}
	if ttl == 0 {
		ttl = s.defaultTTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	e := &Entry{
		Platform:       platform,
		Operation:      operation,
		Value:          value,
		InsertedAt:     now,
		LastAccessedAt: now,
		AccessCount:    0,
	}
	if ttl > 0 {
		e.ExpiresAt = now.Add(ttl)
	}

	if _, exists := s.entries[key]; !exists && len(s.entries) >= s.capacity {
		if victim := s.policy.Victim(s.entries, now); victim != "" {
			delete(s.entries, victim)
		}
	}
	s.entries[key] = e
}

// Invalidate drops all entries for a platform; operation narrows the
// invalidation when non-empty.
func (s *Service) Invalidate(platform, operation string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for k, e := range s.entries {
		if e.Platform != platform {
			continue
		}
		if operation != "" && e.Operation != operation {
			continue
		}
		delete(s.entries, k)
		removed++
	}
	return removed
}

func (s *Service) Clear() {
	s.mu.Lock()
	s.entries = make(map[string]*Entry)
	s.mu.Unlock()
}

// Sweep removes expired entries; called periodically by the scheduler.
func (s *Service) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for k, e := range s.entries {
		if !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt) {
			delete(s.entries, k)
			removed++
		}
	}
	if removed > 0 {
		s.log.LogDebugf("sweep removed %d expired entries", removed)
	}
	return removed
}

// SetPolicy swaps the eviction strategy at runtime. Entry metadata is
// tracked under every policy, so the swap is lossless.
func (s *Service) SetPolicy(p Policy) {
	if p == nil {
		return
	}
	s.mu.Lock()
	s.policy = p
	s.mu.Unlock()
	s.log.LogInfof("eviction policy switched to %s", p.Name())
}

type Stats struct {
	Entries  int    `json:"entries"`
	Capacity int    `json:"capacity"`
	Policy   string `json:"policy"`
}

func (s *Service) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{Entries: len(s.entries), Capacity: s.capacity, Policy: s.policy.Name()}
}

package cache

import "time"

// Policy decides which entry to evict when the cache is over capacity.
// Every entry tracks lastAccessedAt, accessCount and expiresAt regardless
// of the active policy, so policies can be swapped at runtime without
// losing the metadata the new policy needs.
type Policy interface {
	Name() string
	// Victim returns the key to evict, or "" when entries is empty.
	Victim(entries map[string]*Entry, now time.Time) string
}

// NewPolicy maps a configured policy name to its strategy. Unknown names
// fall back to LRU.
func NewPolicy(name string) Policy {
	switch name {
	case "lfu":
		return LFU{}
	case "ttl":
		return TTL{}
	default:
		return LRU{}
	}
}

// LRU evicts the entry with the oldest last access.
type LRU struct{}

func (LRU) Name() string { return "lru" }

func (LRU) Victim(entries map[string]*Entry, _ time.Time) string {
	var victim string
	var oldest time.Time
	for k, e := range entries {
		if victim == "" || e.LastAccessedAt.Before(oldest) {
			victim = k
			oldest = e.LastAccessedAt
		}
	}
	return victim
}

// LFU evicts the entry with the lowest access count, ties broken by the
// older last access.
type LFU struct{}

func (LFU) Name() string { return "lfu" }

func (LFU) Victim(entries map[string]*Entry, _ time.Time) string {
	var victim string
	var fewest int64
	var oldest time.Time
	for k, e := range entries {
		if victim == "" || e.AccessCount < fewest ||
			(e.AccessCount == fewest && e.LastAccessedAt.Before(oldest)) {
			victim = k
			fewest = e.AccessCount
			oldest = e.LastAccessedAt
		}
	}
	return victim
}

// TTL evicts an already-expired entry if one exists, otherwise the entry
// closest to expiry. Entries without expiry are considered last.
type TTL struct{}

func (TTL) Name() string { return "ttl" }

func (TTL) Victim(entries map[string]*Entry, now time.Time) string {
	var victim string
	var soonest time.Time
	for k, e := range entries {
		if e.ExpiresAt.IsZero() {
			if victim == "" {
				victim = k
				soonest = farFuture
			}
			continue
		}
		if victim == "" || e.ExpiresAt.Before(soonest) {
			victim = k
			soonest = e.ExpiresAt
		}
	}
	return victim
}

var farFuture = time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)

// Package cache provides a bounded, TTL-aware cache for synthesised audio.
//
// Entries are keyed by a fingerprint of the synthesis-relevant parameters
// (text, voice, speed, pitch, language). Volume is excluded: gain is applied
// at playback time, so the same clip serves every volume level.
//
// The cache is best-effort. Concurrent misses for the same fingerprint may
// both synthesise; the second Put simply overwrites the first. Correctness
// never depends on a hit.
package cache

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/Viker/Kokoro-TTS-Discord-Bot/pkg/provider/tts"
)

const (
	// DefaultMaxEntries bounds the cache when no capacity is configured.
	DefaultMaxEntries = 1000

	// DefaultTTL is the entry lifetime when none is configured.
	DefaultTTL = time.Hour
)

// Fingerprint identifies a unique synthesis output.
type Fingerprint string

// NewFingerprint derives the cache key for a synthesis request. Requests that
// differ only in volume map to the same fingerprint.
func NewFingerprint(req tts.Request) Fingerprint {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%.4f\x00%.4f\x00%s", req.Text, req.Voice, req.Speed, req.Pitch, req.Language)
	return Fingerprint(hex.EncodeToString(h.Sum(nil)))
}

// Stats is a point-in-time snapshot of cache effectiveness.
type Stats struct {
	Entries   int
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// entry is one cached clip plus its bookkeeping.
type entry struct {
	key     Fingerprint
	audio   *tts.Audio
	addedAt time.Time
}

// Cache is an LRU cache with per-entry TTL. Safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	order   *list.List // front = most recently used
	entries map[Fingerprint]*list.Element

	hits      uint64
	misses    uint64
	evictions uint64

	// now is the clock; overridden in tests.
	now func() time.Time
}

// Option is a functional option for configuring a Cache.
type Option func(*Cache)

// WithMaxEntries bounds the number of cached clips. Values < 1 keep the
// default.
func WithMaxEntries(n int) Option {
	return func(c *Cache) {
		if n >= 1 {
			c.maxSize = n
		}
	}
}

// WithTTL sets the entry lifetime. Values <= 0 keep the default.
func WithTTL(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.ttl = d
		}
	}
}

// WithClock overrides the time source. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// New creates a Cache with the given options.
func New(opts ...Option) *Cache {
	c := &Cache{
		maxSize: DefaultMaxEntries,
		ttl:     DefaultTTL,
		order:   list.New(),
		entries: make(map[Fingerprint]*list.Element),
		now:     time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Get returns the cached clip for key, or nil if absent or expired. A hit
// refreshes the entry's LRU position but not its TTL.
func (c *Cache) Get(key Fingerprint) *tts.Audio {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil
	}

	ent := el.Value.(*entry)
	if c.now().Sub(ent.addedAt) > c.ttl {
		c.removeLocked(el)
		c.misses++
		return nil
	}

	c.order.MoveToFront(el)
	c.hits++
	return ent.audio
}

// Put stores audio under key, evicting the least recently used entry when the
// cache is full. Storing an existing key refreshes both its value and TTL.
func (c *Cache) Put(key Fingerprint, audio *tts.Audio) {
	if audio == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		ent := el.Value.(*entry)
		ent.audio = audio
		ent.addedAt = c.now()
		c.order.MoveToFront(el)
		return
	}

	for len(c.entries) >= c.maxSize {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.removeLocked(oldest)
		c.evictions++
	}

	el := c.order.PushFront(&entry{key: key, audio: audio, addedAt: c.now()})
	c.entries[key] = el
}

// Len returns the current number of entries, including any not yet expired
// lazily.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Purge removes all entries.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	c.entries = make(map[Fingerprint]*list.Element)
}

// Stats returns a snapshot of cache counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Entries:   len(c.entries),
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}

// removeLocked unlinks el from the list and the index. Caller holds mu.
func (c *Cache) removeLocked(el *list.Element) {
	ent := el.Value.(*entry)
	c.order.Remove(el)
	delete(c.entries, ent.key)
}

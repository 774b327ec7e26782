package cache

import (
	"container/list"
	"encoding/json"
	"errors"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/shoplens/shoplens/internal/core"
)

const (
	defaultMaxEntries = 1000
	defaultShards     = 16
	snapshotKey       = "cache/snapshot"
)

// Options configures a Cache.
type Options struct {
	// MaxEntries bounds the total entry count. The bound is split across
	// shards, so eviction never needs a global lock.
	MaxEntries int
	// Shards controls lock granularity. Defaults to 16.
	Shards int
	// SweepInterval enables a periodic expiry sweep when positive. Expiry
	// is otherwise lazy, checked on Get.
	SweepInterval time.Duration
	// Persistence, when set, backs Snapshot and Restore.
	Persistence core.Persistence
	// Clock overrides time.Now for tests.
	Clock func() time.Time
}

type entry struct {
	key         string
	value       any
	category    core.CacheCategory
	policy      core.RefreshPolicy
	insertedAt  time.Time
	expiresAt   time.Time
	ttl         time.Duration
	sanitized   []string
	accessCount int64
	size        int64
	elem        *list.Element
}

type shard struct {
	mu      sync.Mutex
	entries map[string]*entry
	lru     *list.List
	max     int
}

// Cache is a categorized, TTL-bound key/value store with per-shard LRU
// eviction. Values are stored sanitized; a field listed in sanitizeFields
// never survives Put.
type Cache struct {
	shards []*shard
	opts   Options
	stop   chan struct{}
	wg     sync.WaitGroup
}

// New builds a Cache, restoring a persisted snapshot when a persistence
// port is configured.
func New(opts Options) *Cache {
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = defaultMaxEntries
	}
	if opts.Shards <= 0 {
		opts.Shards = defaultShards
	}

	perShard := opts.MaxEntries / opts.Shards
	if perShard < 1 {
		perShard = 1
	}

	c := &Cache{
		shards: make([]*shard, opts.Shards),
		opts:   opts,
		stop:   make(chan struct{}),
	}
	for i := range c.shards {
		c.shards[i] = &shard{
			entries: make(map[string]*entry),
			lru:     list.New(),
			max:     perShard,
		}
	}

	c.restore()

	if opts.SweepInterval > 0 {
		c.wg.Add(1)
		go c.sweepLoop(opts.SweepInterval)
	}

	return c
}

// Get returns the value for key. found is false on a miss; stale is true
// only for Background-policy entries served past their TTL while a
// refresh is expected.
func (c *Cache) Get(key string) (any, bool, bool) {
	s := c.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, false, false
	}

	if e.policy == core.RefreshAlways {
		return nil, false, false
	}

	if !e.expiresAt.IsZero() && c.now().After(e.expiresAt) {
		if e.policy == core.RefreshBackground {
			s.touch(e)
			return e.value, true, true
		}
		s.remove(e)
		return nil, false, false
	}

	s.touch(e)
	return e.value, true, false
}

// Put stores a sanitized copy of value. A non-positive ttl is only valid
// for the Never policy.
func (c *Cache) Put(key string, value any, category core.CacheCategory, ttl time.Duration, policy core.RefreshPolicy, sanitizeFields []string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("cache key is required")
	}
	if policy == "" {
		policy = core.RefreshOnExpire
	}
	if category == "" {
		category = core.CategoryTemporary
	}
	if ttl <= 0 && policy != core.RefreshNever {
		return errors.New("cache ttl is required")
	}

	paths, err := parsePaths(sanitizeFields)
	if err != nil {
		return err
	}

	now := c.now()
	e := &entry{
		key:        key,
		value:      sanitize(value, paths),
		category:   category,
		policy:     policy,
		insertedAt: now,
		ttl:        ttl,
		sanitized:  sanitizeFields,
	}
	if policy != core.RefreshNever {
		e.expiresAt = now.Add(ttl)
	}
	if payload, err := json.Marshal(e.value); err == nil {
		e.size = int64(len(payload))
	}

	s := c.shardFor(key)
	s.mu.Lock()
	if prev, ok := s.entries[key]; ok {
		s.remove(prev)
	}
	e.elem = s.lru.PushFront(e)
	s.entries[key] = e
	for len(s.entries) > s.max {
		victim := s.lru.Back()
		if victim == nil {
			break
		}
		s.remove(victim.Value.(*entry))
	}
	s.mu.Unlock()

	return nil
}

// Invalidate removes every entry whose key starts with prefix and
// returns the number removed. An empty prefix matches everything.
func (c *Cache) Invalidate(prefix string) int {
	removed := 0
	for _, s := range c.shards {
		s.mu.Lock()
		for key, e := range s.entries {
			if strings.HasPrefix(key, prefix) {
				s.remove(e)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// Clear drops all entries.
func (c *Cache) Clear() {
	for _, s := range c.shards {
		s.mu.Lock()
		s.entries = make(map[string]*entry)
		s.lru.Init()
		s.mu.Unlock()
	}
}

// Stats summarizes current cache contents.
type Stats struct {
	TotalEntries     int     `json:"total_entries"`
	SanitizedEntries int     `json:"sanitized_entries"`
	AvgAccessCount   float64 `json:"avg_access_count"`
	ApproxSizeBytes  int64   `json:"approx_size_bytes"`
}

// Stats aggregates entry counts, sanitization counts, access frequency,
// and approximate payload size across shards.
func (c *Cache) Stats() Stats {
	stats := Stats{}
	var accesses int64
	for _, s := range c.shards {
		s.mu.Lock()
		for _, e := range s.entries {
			stats.TotalEntries++
			if len(e.sanitized) > 0 {
				stats.SanitizedEntries++
			}
			accesses += e.accessCount
			stats.ApproxSizeBytes += e.size
		}
		s.mu.Unlock()
	}
	if stats.TotalEntries > 0 {
		stats.AvgAccessCount = float64(accesses) / float64(stats.TotalEntries)
	}
	return stats
}

// Snapshot persists the current contents through the persistence port.
func (c *Cache) Snapshot() error {
	if c.opts.Persistence == nil {
		return nil
	}

	snapshot := make([]persistedEntry, 0)
	for _, s := range c.shards {
		s.mu.Lock()
		for _, e := range s.entries {
			snapshot = append(snapshot, persistedEntry{
				Key:         e.key,
				Value:       e.value,
				Category:    e.category,
				Policy:      e.policy,
				InsertedAt:  e.insertedAt,
				ExpiresAt:   e.expiresAt,
				TTL:         e.ttl,
				Sanitized:   e.sanitized,
				AccessCount: e.accessCount,
			})
		}
		s.mu.Unlock()
	}

	payload, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	return c.opts.Persistence.Save(snapshotKey, payload)
}

// Close stops the sweep goroutine and persists a final snapshot.
func (c *Cache) Close() error {
	select {
	case <-c.stop:
	default:
		close(c.stop)
	}
	c.wg.Wait()
	return c.Snapshot()
}

type persistedEntry struct {
	Key         string             `json:"key"`
	Value       any                `json:"value"`
	Category    core.CacheCategory `json:"category"`
	Policy      core.RefreshPolicy `json:"policy"`
	InsertedAt  time.Time          `json:"inserted_at"`
	ExpiresAt   time.Time          `json:"expires_at,omitempty"`
	TTL         time.Duration      `json:"ttl"`
	Sanitized   []string           `json:"sanitized_fields,omitempty"`
	AccessCount int64              `json:"access_count"`
}

func (c *Cache) restore() {
	if c.opts.Persistence == nil {
		return
	}
	payload, err := c.opts.Persistence.Load(snapshotKey)
	if err != nil || len(payload) == 0 {
		return
	}
	var snapshot []persistedEntry
	if err := json.Unmarshal(payload, &snapshot); err != nil {
		return
	}

	now := c.now()
	for _, p := range snapshot {
		// Expired entries are not worth resurrecting.
		if !p.ExpiresAt.IsZero() && now.After(p.ExpiresAt) {
			continue
		}
		e := &entry{
			key:         p.Key,
			value:       p.Value,
			category:    p.Category,
			policy:      p.Policy,
			insertedAt:  p.InsertedAt,
			expiresAt:   p.ExpiresAt,
			ttl:         p.TTL,
			sanitized:   p.Sanitized,
			accessCount: p.AccessCount,
		}
		if payload, err := json.Marshal(e.value); err == nil {
			e.size = int64(len(payload))
		}
		s := c.shardFor(p.Key)
		s.mu.Lock()
		if _, exists := s.entries[p.Key]; !exists && len(s.entries) < s.max {
			e.elem = s.lru.PushFront(e)
			s.entries[p.Key] = e
		}
		s.mu.Unlock()
	}
}

func (c *Cache) sweepLoop(interval time.Duration) {
	defer c.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

// sweep drops hard-expired entries. Background entries stay servable as
// stale until a refresh replaces them.
func (c *Cache) sweep() {
	now := c.now()
	for _, s := range c.shards {
		s.mu.Lock()
		for _, e := range s.entries {
			if e.policy == core.RefreshBackground || e.expiresAt.IsZero() {
				continue
			}
			if now.After(e.expiresAt) {
				s.remove(e)
			}
		}
		s.mu.Unlock()
	}
}

func (c *Cache) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return c.shards[h.Sum32()%uint32(len(c.shards))]
}

func (c *Cache) now() time.Time {
	if c.opts.Clock != nil {
		return c.opts.Clock()
	}
	return time.Now().UTC()
}

// touch and remove require the shard lock to be held.

func (s *shard) touch(e *entry) {
	e.accessCount++
	s.lru.MoveToFront(e.elem)
}

func (s *shard) remove(e *entry) {
	delete(s.entries, e.key)
	if e.elem != nil {
		s.lru.Remove(e.elem)
		e.elem = nil
	}
}

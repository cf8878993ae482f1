package matchcache

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/Bazaar/internal/store"
)

type memoryEntry struct {
	match     *store.Match
	expiresAt time.Time
}

// MemoryCache is a process-local Cache.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	byJob   map[uuid.UUID]map[string]struct{}
	byUser  map[string]map[string]struct{}
	closed  bool
	now     func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		byJob:   make(map[uuid.UUID]map[string]struct{}),
		byUser:  make(map[string]map[string]struct{}),
		now:     time.Now,
	}
}

func (c *MemoryCache) Get(_ context.Context, jobID uuid.UUID, freelancerID string) (*store.Match, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}
	key := matchKey(jobID, freelancerID)
	e, ok := c.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	if !c.now().Before(e.expiresAt) {
		c.remove(key, jobID, freelancerID)
		return nil, ErrNotFound
	}
	return cloneMatch(e.match), nil
}

func (c *MemoryCache) Put(_ context.Context, m *store.Match, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	key := matchKey(m.JobID, m.FreelancerID)
	c.entries[key] = memoryEntry{match: cloneMatch(m), expiresAt: c.now().Add(ttl)}

	if c.byJob[m.JobID] == nil {
		c.byJob[m.JobID] = make(map[string]struct{})
	}
	c.byJob[m.JobID][key] = struct{}{}
	if c.byUser[m.FreelancerID] == nil {
		c.byUser[m.FreelancerID] = make(map[string]struct{})
	}
	c.byUser[m.FreelancerID][key] = struct{}{}
	return nil
}

func (c *MemoryCache) InvalidateJob(_ context.Context, jobID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.byJob[jobID] {
		if e, ok := c.entries[key]; ok {
			delete(c.byUser[e.match.FreelancerID], key)
		}
		delete(c.entries, key)
	}
	delete(c.byJob, jobID)
	return nil
}

func (c *MemoryCache) InvalidateFreelancer(_ context.Context, freelancerID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.byUser[freelancerID] {
		if e, ok := c.entries[key]; ok {
			delete(c.byJob[e.match.JobID], key)
		}
		delete(c.entries, key)
	}
	delete(c.byUser, freelancerID)
	return nil
}

func (c *MemoryCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.entries = nil
	return nil
}

// Len reports the number of live entries.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// remove drops one entry and its index references. Callers must hold mu.
func (c *MemoryCache) remove(key string, jobID uuid.UUID, freelancerID string) {
	delete(c.entries, key)
	delete(c.byJob[jobID], key)
	delete(c.byUser[freelancerID], key)
}

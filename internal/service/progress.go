package service

import (
	"sync"

	"github.com/bnema/hlsd/internal/domain"
)

// ProgressCache holds the live record of every item submitted since the
// process started. Entries survive the end of an encode until cleared or
// replaced by the next submission.
type ProgressCache struct {
	mu      sync.RWMutex
	records map[string]domain.ProgressRecord
}

func NewProgressCache() *ProgressCache {
	return &ProgressCache{records: make(map[string]domain.ProgressRecord)}
}

// Get returns a copy of the live record for id.
func (c *ProgressCache) Get(id string) (domain.ProgressRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.records[id]
	return rec, ok
}

// Set merges u into the record for id, creating it if needed, and returns
// the merged record.
func (c *ProgressCache) Set(id string, u domain.HLSUpdate) domain.ProgressRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec := c.records[id]
	rec.Apply(u)
	c.records[id] = rec
	return rec
}

// Replace overwrites the record for id.
func (c *ProgressCache) Replace(id string, rec domain.ProgressRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records[id] = rec
}

func (c *ProgressCache) Clear(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.records, id)
}

// IsActive reports whether id is queued or encoding. A run that exited
// cleanly but is still finalizing does not count.
func (c *ProgressCache) IsActive(id string) bool {
	rec, ok := c.Get(id)
	return ok && rec.Status == domain.HLSStatusProcessing && rec.Step != domain.StepFinalizing
}

func (c *ProgressCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

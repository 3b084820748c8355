package extract

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"github.com/roach88/litledger/internal/event"
	"github.com/roach88/litledger/internal/usage"
)

type cacheEntry struct {
	events []*event.Event
	meta   usage.Metadata
}

// Caching memoizes an Extractor by (text, default unit, language). Misses
// are billed to the tracker with Track; hits report the avoided cost with
// TrackSaved and return no usage.
type Caching struct {
	inner   Extractor
	tracker *usage.Tracker

	mu      sync.Mutex
	entries map[string]cacheEntry
}

// NewCaching wraps inner. tracker may be nil.
func NewCaching(inner Extractor, tracker *usage.Tracker) *Caching {
	return &Caching{inner: inner, tracker: tracker, entries: make(map[string]cacheEntry)}
}

func cacheKey(text, unit, language string) string {
	h := sha256.New()
	for _, part := range []string{text, unit, language} {
		h.Write([]byte(part))
		h.Write([]byte{0x00})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Extract implements Extractor. Callers get copies; mutating returned
// events does not affect later hits.
func (c *Caching) Extract(ctx context.Context, text, defaultUnit, language string) ([]*event.Event, usage.Metadata, error) {
	key := cacheKey(text, defaultUnit, language)

	c.mu.Lock()
	hit, ok := c.entries[key]
	c.mu.Unlock()
	if ok {
		if c.tracker != nil {
			c.tracker.TrackSaved(ctx, hit.meta)
		}
		return event.CloneAll(hit.events), usage.Metadata{}, nil
	}

	events, meta, err := c.inner.Extract(ctx, text, defaultUnit, language)
	if err != nil {
		return nil, meta, err
	}
	if c.tracker != nil {
		c.tracker.Track(ctx, meta)
	}
	c.mu.Lock()
	c.entries[key] = cacheEntry{events: event.CloneAll(events), meta: meta}
	c.mu.Unlock()
	return events, meta, nil
}

// Len returns the number of cached calls.
func (c *Caching) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

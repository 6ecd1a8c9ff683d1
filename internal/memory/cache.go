// Package memory provides TTL-bounded conversational context storage on top
// of the durable store. Tool calls save fetched data (emails, calendar,
// feeds) here so follow-up questions can be answered without refetching.
package memory

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vesper-agent/vesper/internal/store"
)

// DefaultTTL bounds entry freshness. One hour suits the cached artifacts:
// weather and feeds refresh hourly, emails and calendar shortly after fetch.
const DefaultTTL = 3600 * time.Second

// Recalled is the result of a metadata-carrying cache read.
type Recalled struct {
	Value    json.RawMessage `json:"value"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
	Age      time.Duration   `json:"-"`
}

// AgeSeconds returns the entry age in whole seconds, for voice responses.
func (r *Recalled) AgeSeconds() int {
	return int(r.Age / time.Second)
}

// Cache is the expiring key/value layer. Expiry is lazy: an entry older
// than the TTL is deleted by the read that observes it, not by a sweeper.
type Cache struct {
	store *store.Store
	ttl   time.Duration
}

// New creates a Cache with the given TTL; ttl <= 0 selects DefaultTTL.
func New(s *store.Store, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{store: s, ttl: ttl}
}

// TTL returns the configured time-to-live.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Save stores or replaces the entry for key. value must be JSON-encodable;
// metadata may be nil.
func (c *Cache) Save(key string, value, metadata any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode value for %q: %w", key, err)
	}
	var meta json.RawMessage
	if metadata != nil {
		meta, err = json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("encode metadata for %q: %w", key, err)
		}
	}
	return c.store.PutEntry(key, data, meta)
}

// SaveRaw stores an already-encoded value and metadata.
func (c *Cache) SaveRaw(key string, value, metadata json.RawMessage) error {
	return c.store.PutEntry(key, value, metadata)
}

// Get returns the stored value for key, or nil when the key is absent or
// expired.
func (c *Cache) Get(key string) (json.RawMessage, error) {
	r, err := c.GetWithMetadata(key)
	if err != nil || r == nil {
		return nil, err
	}
	return r.Value, nil
}

// GetWithMetadata returns the value, metadata, and age for key. A nil
// result with nil error means absent. Reading an entry past its TTL deletes
// it as a side effect.
func (c *Cache) GetWithMetadata(key string) (*Recalled, error) {
	e, err := c.store.GetEntry(key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	age := time.Since(e.UpdatedAt)
	if age > c.ttl {
		if err := c.store.DeleteEntry(key); err != nil {
			return nil, fmt.Errorf("expire %q: %w", key, err)
		}
		return nil, nil
	}

	return &Recalled{Value: e.Value, Metadata: e.Metadata, Age: age}, nil
}

// Clear deletes one entry. Clearing a missing key is not an error.
func (c *Cache) Clear(key string) error {
	return c.store.DeleteEntry(key)
}

// ClearAll deletes every entry.
func (c *Cache) ClearAll() error {
	return c.store.DeleteAllEntries()
}

// Keys lists the currently stored keys, expired or not.
func (c *Cache) Keys() ([]string, error) {
	return c.store.ListEntryKeys()
}

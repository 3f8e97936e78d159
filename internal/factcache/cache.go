// Package factcache caches slowly-changing upstream facts so the collector
// does not re-derive them every cycle: the funding interval of a contract
// and whether a spot market exists for a symbol. The cache is constructed
// once and shared; concurrent probes for the same unresolved key may race,
// last write wins.
package factcache

import (
	"strings"
	"sync"
	"time"
)

// Tristate is the resolution state of the spot-market-existence fact.
type Tristate int

const (
	Unknown Tristate = iota
	Yes
	No
)

// DefaultFundingTTL is how long a confirmed funding interval stays cached.
// Funding intervals practically never change, so a day is generous.
const DefaultFundingTTL = 24 * time.Hour

type fundingEntry struct {
	hours   int
	expires time.Time
}

// Cache holds the cached facts keyed by symbol.
type Cache struct {
	mu      sync.RWMutex
	funding map[string]fundingEntry
	spot    map[string]Tristate
	ttl     time.Duration
	now     func() time.Time
}

// New creates a cache with the default funding-interval TTL.
func New() *Cache {
	return NewWithTTL(DefaultFundingTTL)
}

// NewWithTTL creates a cache with an explicit funding-interval TTL.
func NewWithTTL(ttl time.Duration) *Cache {
	return &Cache{
		funding: make(map[string]fundingEntry),
		spot:    make(map[string]Tristate),
		ttl:     ttl,
		now:     time.Now,
	}
}

// FundingInterval returns the cached funding interval in hours for the
// symbol, if present and not expired.
func (c *Cache) FundingInterval(symbol string) (int, bool) {
	key := strings.ToUpper(symbol)

	c.mu.RLock()
	entry, ok := c.funding[key]
	c.mu.RUnlock()

	if !ok || c.now().After(entry.expires) {
		return 0, false
	}
	return entry.hours, true
}

// SetFundingInterval caches the funding interval for the symbol.
func (c *Cache) SetFundingInterval(symbol string, hours int) {
	key := strings.ToUpper(symbol)

	c.mu.Lock()
	c.funding[key] = fundingEntry{hours: hours, expires: c.now().Add(c.ttl)}
	c.mu.Unlock()
}

// HasSpot returns the cached spot-market-existence state for the symbol.
func (c *Cache) HasSpot(symbol string) Tristate {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.spot[strings.ToUpper(symbol)]
}

// SetHasSpot records a spot-existence observation. A spot market that has
// been seen once does not disappear in practice, so Yes is pinned and
// never downgraded. No is recorded for the benefit of the current cycle
// but callers are expected to keep re-probing a No symbol, since a
// transient probe failure must not permanently mislabel it.
func (c *Cache) SetHasSpot(symbol string, exists bool) {
	key := strings.ToUpper(symbol)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.spot[key] == Yes {
		return
	}
	if exists {
		c.spot[key] = Yes
	} else {
		c.spot[key] = No
	}
}

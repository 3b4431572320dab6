// Package cache keeps the last-known price of every product title seen by this process.
package cache

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// PriceCache maps product titles to their last-known price. It is safe for
// concurrent use and lives for the whole process; it is never persisted.
//
// The cache is bounded. An evicted title is simply re-seeded from the
// persisted record the next time it is scraped.
type PriceCache struct {
	entries *lru.Cache[string, float64]
}

// New creates a cache holding at most size titles.
func New(size int) (*PriceCache, error) {
	entries, err := lru.New[string, float64](size)
	if err != nil {
		return nil, fmt.Errorf("create price cache: %w", err)
	}
	return &PriceCache{entries: entries}, nil
}

// Price returns the cached price for title.
func (c *PriceCache) Price(title string) (float64, bool) {
	return c.entries.Get(title)
}

// SetPrice records price as the last-known price for title.
func (c *PriceCache) SetPrice(title string, price float64) {
	c.entries.Add(title, price)
}

// Apply records every title/price pair in updates.
func (c *PriceCache) Apply(updates map[string]float64) {
	for title, price := range updates {
		c.entries.Add(title, price)
	}
}

// Len reports how many titles are cached.
func (c *PriceCache) Len() int {
	return c.entries.Len()
}

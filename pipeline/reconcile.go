package pipeline

import (
	"math"

	"github.com/aluiziolira/go-scrape-shop/models"
)

// priceEpsilon absorbs floating point representation error when comparing prices.
const priceEpsilon = 1e-9

// PriceLookup is the read side of the price cache.
type PriceLookup interface {
	Price(title string) (float64, bool)
}

// Result is the outcome of one reconciliation pass.
type Result struct {
	// Merged is the full record set to persist: prior records in their original
	// order with replacements applied in place, new titles appended in scrape order.
	Merged []models.Product
	// CacheUpdates holds every cache write the pass made. The caller applies them
	// once the merged set has been saved.
	CacheUpdates map[string]float64
	// Updated counts inserted and repriced products.
	Updated int
}

// Reconcile merges scraped products into the existing record set using the price
// cache to detect new and repriced titles. It performs no I/O and does not mutate
// its arguments. Records are never removed.
func Reconcile(existing []models.Product, cache PriceLookup, scraped []models.Product) Result {
	index := make(map[string]int, len(existing)+len(scraped))
	merged := make([]models.Product, 0, len(existing)+len(scraped))
	put := func(p models.Product) {
		if i, ok := index[p.Title]; ok {
			merged[i] = p
			return
		}
		index[p.Title] = len(merged)
		merged = append(merged, p)
	}
	for _, p := range existing {
		put(p)
	}

	updates := make(map[string]float64)
	cachedPrice := func(title string) (float64, bool) {
		if price, ok := updates[title]; ok {
			return price, true
		}
		if cache == nil {
			return 0, false
		}
		return cache.Price(title)
	}

	updated := 0
	for _, p := range scraped {
		if price, ok := cachedPrice(p.Title); ok {
			if priceChanged(price, p.Price) {
				put(p)
				updates[p.Title] = p.Price
				updated++
			}
			continue
		}

		i, stored := index[p.Title]
		if !stored {
			put(p)
			updates[p.Title] = p.Price
			updated++
			continue
		}

		// Cold entry: seed the cache from durable state before comparing.
		storedPrice := merged[i].Price
		updates[p.Title] = storedPrice
		if priceChanged(storedPrice, p.Price) {
			put(p)
			updates[p.Title] = p.Price
			updated++
		}
	}

	return Result{Merged: merged, CacheUpdates: updates, Updated: updated}
}

func priceChanged(a, b float64) bool {
	return math.Abs(a-b) > priceEpsilon
}

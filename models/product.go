// Package models defines data structures for the scraper.
package models

import "time"

// Product is one catalog entry scraped from the storefront. Title is the identity key.
type Product struct {
	Title     string  `csv:"product_title" json:"product_title"`
	Price     float64 `csv:"product_price" json:"product_price"`
	ImagePath string  `csv:"path_to_image" json:"path_to_image"`
}

// RunConfig is the per-run scrape configuration. It is built fresh for every run
// and never mutated while the run is in progress.
type RunConfig struct {
	PageCount     int
	Proxy         string
	RetryAttempts int
	RetryBackoff  time.Duration
}

// RunSummary holds the overall result of a scrape-and-reconcile run.
type RunSummary struct {
	RunID      string    `json:"run_id"`
	Pages      int       `json:"pages"`
	Scraped    int       `json:"scraped"`
	Updated    int       `json:"updated"`
	Stored     int       `json:"stored"`
	Message    string    `json:"message"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

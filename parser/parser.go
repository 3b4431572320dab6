// Package parser turns storefront listing HTML into product records.
package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/aluiziolira/go-scrape-shop/models"
)

var pricePattern = regexp.MustCompile(`\d+(?:\.\d+)?`)

// ValidateProduct ensures the extractor captured a usable record.
func ValidateProduct(p *models.Product) error {
	if p == nil {
		return fmt.Errorf("product is nil")
	}
	if strings.TrimSpace(p.Title) == "" {
		return fmt.Errorf("product missing title")
	}
	if p.Price < 0 {
		return fmt.Errorf("product %q has negative price", p.Title)
	}
	return nil
}

// ParsePrice returns the first run of digits (with an optional decimal fraction)
// found in text, or 0 when there is none.
func ParsePrice(text string) float64 {
	match := pricePattern.FindString(text)
	if match == "" {
		return 0
	}
	value, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0
	}
	return value
}

// NormalizeTitle trims spacing from the heading text.
func NormalizeTitle(text string) string {
	return strings.TrimSpace(text)
}

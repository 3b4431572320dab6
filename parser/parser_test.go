package parser

import (
	"testing"

	"github.com/aluiziolira/go-scrape-shop/models"
)

func TestValidateProduct(t *testing.T) {
	tests := []struct {
		name    string
		product *models.Product
		wantErr bool
	}{
		{
			name:    "valid product",
			product: &models.Product{Title: "Dental Mirror", Price: 120.5, ImagePath: "https://cdn.test/mirror.jpg"},
			wantErr: false,
		},
		{
			name:    "zero price is accepted",
			product: &models.Product{Title: "Free Sample", Price: 0},
			wantErr: false,
		},
		{
			name:    "missing title",
			product: &models.Product{Title: "   ", Price: 10},
			wantErr: true,
		},
		{
			name:    "negative price",
			product: &models.Product{Title: "Broken", Price: -1},
			wantErr: true,
		},
		{
			name:    "nil product",
			product: nil,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateProduct(tt.product)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateProduct() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected float64
	}{
		{name: "rupee symbol", input: "₹1250.00", expected: 1250},
		{name: "decimal fraction", input: "₹ 99.95", expected: 99.95},
		{name: "integer only", input: "Rs 45", expected: 45},
		{name: "first run wins", input: "₹70.00 ₹55.00", expected: 70},
		{name: "thousands separator stops the run", input: "₹1,250.00", expected: 1},
		{name: "no digits", input: "₹", expected: 0},
		{name: "empty string", input: "", expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParsePrice(tt.input); got != tt.expected {
				t.Errorf("ParsePrice(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNormalizeTitle(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "with whitespace", input: "\n  Dental Chair  \t", expected: "Dental Chair"},
		{name: "no whitespace", input: "Scaler", expected: "Scaler"},
		{name: "empty string", input: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeTitle(tt.input); got != tt.expected {
				t.Errorf("NormalizeTitle(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

package cache

import "testing"

func TestPriceCacheSetAndGet(t *testing.T) {
	c, err := New(10)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	if _, ok := c.Price("Dental Mirror"); ok {
		t.Fatalf("empty cache should miss")
	}

	c.SetPrice("Dental Mirror", 120.5)
	c.Apply(map[string]float64{"Scaler": 45, "Dental Mirror": 99})

	if got, ok := c.Price("Dental Mirror"); !ok || got != 99 {
		t.Fatalf("Dental Mirror = %v/%v, want 99/true", got, ok)
	}
	if got, ok := c.Price("Scaler"); !ok || got != 45 {
		t.Fatalf("Scaler = %v/%v, want 45/true", got, ok)
	}
	if c.Len() != 2 {
		t.Fatalf("len = %d, want 2", c.Len())
	}
}

func TestPriceCacheEvictsOldest(t *testing.T) {
	c, err := New(2)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	c.SetPrice("a", 1)
	c.SetPrice("b", 2)
	c.SetPrice("c", 3)

	if _, ok := c.Price("a"); ok {
		t.Fatalf("oldest title should be evicted")
	}
	if _, ok := c.Price("c"); !ok {
		t.Fatalf("newest title should be cached")
	}
}

func TestNewRejectsNonPositiveSize(t *testing.T) {
	if _, err := New(0); err == nil {
		t.Fatalf("expected error for zero size")
	}
}

package cache

import (
	"testing"
	"time"
)

func TestSetGetAndExpiry(t *testing.T) {
	c := NewInMemoryCache[string, int](50 * time.Millisecond)

	c.Set("a", 1, 0)
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("Get(a) = %d, %v; want 1, true", v, ok)
	}

	c.Set("b", 2, time.Hour)
	time.Sleep(80 * time.Millisecond)

	if _, ok := c.Get("a"); ok {
		t.Error("entry a should have expired after default TTL")
	}
	if v, ok := c.Get("b"); !ok || v != 2 {
		t.Errorf("entry b with long TTL should survive, got %d, %v", v, ok)
	}
}

func TestDeleteAndClear(t *testing.T) {
	c := NewInMemoryCache[string, string](time.Hour)
	c.Set("x", "1", 0)
	c.Set("y", "2", 0)

	c.Delete("x")
	if _, ok := c.Get("x"); ok {
		t.Error("x should be gone after Delete")
	}
	if c.Size() != 1 {
		t.Errorf("Size() = %d, want 1", c.Size())
	}

	c.Clear()
	if c.Size() != 0 {
		t.Errorf("Size() after Clear = %d, want 0", c.Size())
	}
}

func TestCellKeyPrecision(t *testing.T) {
	if got := CellKey(48.137154, 11.575382, 3); got != "48.137,11.575" {
		t.Errorf("CellKey 3 decimals = %q", got)
	}
	if got := CellKey(48.137154, 11.575382, 1); got != "48.1,11.6" {
		t.Errorf("CellKey 1 decimal = %q", got)
	}
}

func TestGeoCacheSharesCell(t *testing.T) {
	g := NewGeoCache[string](time.Hour, 3)
	g.Set(48.13710, 11.57540, "Marienplatz")

	// ~20 m away, same 3-decimal cell
	if v, ok := g.Get(48.13719, 11.57536); !ok || v != "Marienplatz" {
		t.Errorf("nearby fix should hit the same cell, got %q, %v", v, ok)
	}

	// a different cell misses
	if _, ok := g.Get(48.150, 11.575); ok {
		t.Error("distant fix should miss")
	}
}

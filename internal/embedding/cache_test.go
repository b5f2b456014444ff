package embedding

import (
	"testing"
)

func TestTermCache_GetSet(t *testing.T) {
	c := NewTermCache(2)
	if v, ok := c.Get("wallet"); ok || v != nil {
		t.Fatal("expected miss")
	}
	c.Set("wallet", []float32{1, 2, 3})
	v, ok := c.Get("wallet")
	if !ok || len(v) != 3 || v[0] != 1 {
		t.Errorf("Get: got %v, %v", v, ok)
	}
	c.Set("keys", []float32{4, 5})
	c.Set("mug", []float32{6}) // evicts wallet
	if _, ok := c.Get("wallet"); ok {
		t.Error("expected wallet to be evicted")
	}
	if _, ok := c.Get("keys"); !ok {
		t.Error("expected keys to remain")
	}
	if _, ok := c.Get("mug"); !ok {
		t.Error("expected mug to be present")
	}
	if c.Len() != 2 {
		t.Errorf("Len=%d, want 2", c.Len())
	}
}

func TestTermCache_UpdateExisting(t *testing.T) {
	c := NewTermCache(2)
	c.Set("wallet", []float32{1})
	c.Set("wallet", []float32{2})
	v, ok := c.Get("wallet")
	if !ok || v[0] != 2 {
		t.Errorf("Get after update: got %v, %v", v, ok)
	}
	if c.Len() != 1 {
		t.Errorf("Len=%d, want 1", c.Len())
	}
}

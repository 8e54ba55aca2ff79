package ingest

import (
	"testing"
	"time"
)

func TestThrottleGate_Admit(t *testing.T) {
	g := NewThrottleGate(time.Minute)
	now := time.Unix(1_700_000_000, 0)
	g.now = func() time.Time { return now }

	if !g.Admit("evt-1") {
		t.Fatal("first admit for a fresh key should succeed")
	}
	if g.Admit("evt-1") {
		t.Fatal("second admit within the interval should be rejected")
	}

	now = now.Add(30 * time.Second)
	if g.Admit("evt-1") {
		t.Fatal("admit before the interval elapses should still be rejected")
	}

	now = now.Add(31 * time.Second)
	if !g.Admit("evt-1") {
		t.Fatal("admit after the interval elapses should succeed")
	}

	if !g.Admit("evt-2") {
		t.Fatal("a distinct key should not be throttled by evt-1's state")
	}
}

func TestThrottleGate_AdmitSet(t *testing.T) {
	g := NewThrottleGate(time.Minute)
	now := time.Unix(1_700_000_000, 0)
	g.now = func() time.Time { return now }

	admitted := g.AdmitSet([]string{"a", "b", "a"})
	if len(admitted) != 2 {
		t.Fatalf("expected 2 distinct admitted keys, got %d", len(admitted))
	}
	if !admitted["a"] || !admitted["b"] {
		t.Fatalf("expected both a and b admitted, got %v", admitted)
	}

	admitted = g.AdmitSet([]string{"a", "c"})
	if admitted["a"] {
		t.Fatal("a should still be within its cooldown")
	}
	if !admitted["c"] {
		t.Fatal("c is fresh and should be admitted")
	}
}

func TestClamp(t *testing.T) {
	tests := []struct {
		name           string
		seconds        float64
		min, max, want float64
	}{
		{"within bounds", 5, 1, 60, 5},
		{"below min", 0, 1, 60, 1},
		{"above max", 120, 1, 60, 60},
		{"at min", 1, 1, 60, 1},
		{"at max", 60, 1, 60, 60},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Clamp(tt.seconds, tt.min, tt.max); got != tt.want {
				t.Errorf("Clamp(%v, %v, %v) = %v, want %v", tt.seconds, tt.min, tt.max, got, tt.want)
			}
		})
	}
}

package chunking

import (
	"math"
	"testing"
)

func TestPlan_TwelveSecondsByFive(t *testing.T) {
	got := Plan(12.0, 5)
	want := []int{0, 5, 10}
	if len(got) != len(want) {
		t.Fatalf("expected %d windows, got %d: %v", len(want), len(got), got)
	}
	for i, w := range got {
		if w.Start != want[i] {
			t.Fatalf("window %d starts at %d, want %d", i, w.Start, want[i])
		}
		if w.Length != 5 {
			t.Fatalf("window %d length %d, want 5", i, w.Length)
		}
	}
	if c := Covered(got[2], 12.0); c != 2 {
		t.Fatalf("expected last window to cover 2s, got %v", c)
	}
}

func TestPlan_CountMatchesCeil(t *testing.T) {
	for _, l := range Allowed {
		for d := 1; d <= 95; d++ {
			got := len(Plan(float64(d), l))
			want := int(math.Ceil(float64(d) / float64(l)))
			if got != want {
				t.Fatalf("D=%d L=%d: got %d chunks, want %d", d, l, got, want)
			}
		}
	}
}

func TestPlan_ContiguousAndIncreasing(t *testing.T) {
	ws := Plan(61.7, 7)
	for i := 1; i < len(ws); i++ {
		if ws[i].Start != ws[i-1].End() {
			t.Fatalf("gap or overlap between %v and %v", ws[i-1], ws[i])
		}
	}
	if ws[len(ws)-1].Start >= 61 {
		t.Fatalf("last window starts past floor(duration): %v", ws[len(ws)-1])
	}
}

func TestPlan_Degenerate(t *testing.T) {
	tests := []struct {
		name string
		dur  float64
		sec  int
	}{
		{"zero duration", 0, 5},
		{"sub-second", 0.9, 5},
		{"negative", -3, 5},
		{"nan", math.NaN(), 5},
		{"zero chunk", 10, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Plan(tt.dur, tt.sec); len(got) != 0 {
				t.Fatalf("expected no windows, got %v", got)
			}
		})
	}
}

func TestValidateSeconds(t *testing.T) {
	for _, s := range Allowed {
		if err := ValidateSeconds(s); err != nil {
			t.Fatalf("%d should be allowed: %v", s, err)
		}
	}
	for _, s := range []int{0, 1, 4, 6, 20, -5} {
		if err := ValidateSeconds(s); err == nil {
			t.Fatalf("%d should be rejected", s)
		}
	}
}

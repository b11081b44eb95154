package eval

import (
	"math"
	"testing"
)

func TestExactMatch(t *testing.T) {
	cases := []struct {
		name       string
		pred, gold string
		want       float64
	}{
		{"identical", "Warsaw", "Warsaw", 1},
		{"case and punctuation", "warsaw.", "Warsaw", 1},
		{"articles dropped", "the United States", "United States", 1},
		{"unicode hyphen", "mother‑in‑law", "mother in law", 1},
		{"different", "Paris", "Warsaw", 0},
		{"extra words", "Warsaw, Poland", "Warsaw", 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ExactMatch(tc.pred, tc.gold); got != tc.want {
				t.Errorf("ExactMatch(%q, %q) = %v, want %v", tc.pred, tc.gold, got, tc.want)
			}
		})
	}
}

func TestF1(t *testing.T) {
	cases := []struct {
		name       string
		pred, gold string
		want       float64
	}{
		{"identical", "Pierre Curie", "Pierre Curie", 1},
		{"no overlap", "Paris", "Warsaw", 0},
		{"partial", "Warsaw Poland", "Warsaw", 2.0 / 3.0},
		{"both empty", "", "", 1},
		{"pred empty", "", "Warsaw", 0},
		{"repeated tokens counted once", "Warsaw Warsaw", "Warsaw", 2.0 / 3.0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := F1(tc.pred, tc.gold); math.Abs(got-tc.want) > 1e-9 {
				t.Errorf("F1(%q, %q) = %v, want %v", tc.pred, tc.gold, got, tc.want)
			}
		})
	}
}

func TestEvaluateAll(t *testing.T) {
	sum, err := EvaluateAll(
		[]string{"Warsaw", "Paris"},
		[]string{"Warsaw", "Warsaw"},
	)
	if err != nil {
		t.Fatalf("EvaluateAll: %v", err)
	}
	if sum.Count != 2 {
		t.Errorf("count = %d", sum.Count)
	}
	if math.Abs(sum.ExactMatch-0.5) > 1e-9 {
		t.Errorf("mean EM = %v, want 0.5", sum.ExactMatch)
	}
	if math.Abs(sum.F1-0.5) > 1e-9 {
		t.Errorf("mean F1 = %v, want 0.5", sum.F1)
	}
}

func TestEvaluateAllLengthMismatch(t *testing.T) {
	if _, err := EvaluateAll([]string{"a"}, nil); err == nil {
		t.Fatal("expected length mismatch error")
	}
}

func TestEvaluateAllEmpty(t *testing.T) {
	sum, err := EvaluateAll(nil, nil)
	if err != nil || sum.Count != 0 {
		t.Fatalf("sum=%+v err=%v", sum, err)
	}
}

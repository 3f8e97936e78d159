package calc

import (
	"math"
	"testing"
)

func TestBasisPct(t *testing.T) {
	tests := []struct {
		name        string
		mark, index float64
		want        float64
	}{
		{"zero index", 100, 0, 0},
		{"zero index negative mark", -5, 0, 0},
		{"premium", 101, 100, 1},
		{"discount", 99, 100, -1},
		{"flat", 250, 250, 0},
	}
	for _, tt := range tests {
		if got := BasisPct(tt.mark, tt.index); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("%s: BasisPct(%v, %v) = %v, want %v", tt.name, tt.mark, tt.index, got, tt.want)
		}
	}
}

func TestTWAP(t *testing.T) {
	if got := TWAP(nil); got != 0 {
		t.Errorf("TWAP(nil) = %v, want 0", got)
	}
	if got := TWAP([]float64{42}); got != 42 {
		t.Errorf("TWAP([42]) = %v, want 42", got)
	}
	a := TWAP([]float64{1, 2, 3, 4})
	b := TWAP([]float64{4, 2, 1, 3})
	if a != b {
		t.Errorf("TWAP not order invariant: %v vs %v", a, b)
	}
	if math.Abs(a-2.5) > 1e-9 {
		t.Errorf("TWAP([1 2 3 4]) = %v, want 2.5", a)
	}
}

func TestDominancePct(t *testing.T) {
	tests := []struct {
		name      string
		fut, spot float64
		want      float64
	}{
		{"both zero", 0, 0, 0},
		{"negative denom", -10, 5, 0},
		{"futures only", 100, 0, 100},
		{"even split", 50, 50, 50},
		{"spot heavy", 25, 75, 25},
	}
	for _, tt := range tests {
		if got := DominancePct(tt.fut, tt.spot); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("%s: DominancePct(%v, %v) = %v, want %v", tt.name, tt.fut, tt.spot, got, tt.want)
		}
	}
}

func TestOrderbookImbalance(t *testing.T) {
	if got := OrderbookImbalance(10, 0); got != 0 {
		t.Errorf("zero asks: got %v, want 0", got)
	}
	if got := OrderbookImbalance(10, 5); math.Abs(got-2) > 1e-9 {
		t.Errorf("OrderbookImbalance(10, 5) = %v, want 2", got)
	}
}

func TestDelta(t *testing.T) {
	if got := Delta(10, 3); got != 7 {
		t.Errorf("Delta(10, 3) = %v, want 7", got)
	}
	if got := Delta(3, 10); got != -7 {
		t.Errorf("Delta(3, 10) = %v, want -7", got)
	}
}

func TestCompositeScoreBounds(t *testing.T) {
	tests := []struct {
		name   string
		inputs [5]float64
	}{
		{"all zero", [5]float64{0, 0, 0, 0, 0}},
		{"all one", [5]float64{1, 1, 1, 1, 1}},
		{"overshoot", [5]float64{10, 10, 10, 10, 10}},
		{"negative", [5]float64{-5, -5, -5, -5, -5}},
		{"mixed", [5]float64{0.5, 1.2, -0.1, 0.3, 0.9}},
	}
	for _, tt := range tests {
		got := CompositeScore(tt.inputs[0], tt.inputs[1], tt.inputs[2], tt.inputs[3], tt.inputs[4])
		if got < 0 || got > 100 {
			t.Errorf("%s: CompositeScore = %d, out of [0,100]", tt.name, got)
		}
	}

	if got := CompositeScore(1, 1, 1, 1, 1); got != 100 {
		t.Errorf("saturated score = %d, want 100", got)
	}
	if got := CompositeScore(0, 0, 0, 0, 0); got != 0 {
		t.Errorf("zero score = %d, want 0", got)
	}
}

func TestCompositeScoreWeights(t *testing.T) {
	// Each sub-score alone contributes exactly its weight.
	tests := []struct {
		name   string
		inputs [5]float64
		want   int
	}{
		{"funding only", [5]float64{1, 0, 0, 0, 0}, 25},
		{"basis only", [5]float64{0, 1, 0, 0, 0}, 20},
		{"dominance only", [5]float64{0, 0, 1, 0, 0}, 20},
		{"delta oi only", [5]float64{0, 0, 0, 1, 0}, 20},
		{"depth only", [5]float64{0, 0, 0, 0, 1}, 15},
	}
	for _, tt := range tests {
		got := CompositeScore(tt.inputs[0], tt.inputs[1], tt.inputs[2], tt.inputs[3], tt.inputs[4])
		if got != tt.want {
			t.Errorf("%s: CompositeScore = %d, want %d", tt.name, got, tt.want)
		}
	}
}

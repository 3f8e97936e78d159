package calc

import (
	"testing"

	"shortradar/internal/models"
)

func TestSRS(t *testing.T) {
	tests := []struct {
		name string
		snap models.Snapshot
		want int
	}{
		{
			name: "empty snapshot",
			snap: models.Snapshot{},
			want: 0,
		},
		{
			name: "saturated everywhere",
			snap: models.Snapshot{
				Funding1hPct:       0.5,
				BasisTWAP15Pct:     -0.5,
				PerpDominancePct:   100,
				OIUSDT:             1_000_000,
				DeltaOI1hUSDT:      2_000_000,
				OrderbookImbalance: 5,
			},
			want: 100,
		},
		{
			name: "funding at half reference",
			snap: models.Snapshot{Funding1hPct: 0.1},
			// 0.25 * 0.5 = 0.125 -> 12.5 rounds half-to-even to 12
			want: 12,
		},
		{
			name: "negative oi delta ignored",
			snap: models.Snapshot{
				OIUSDT:        1_000_000,
				DeltaOI1hUSDT: -500_000,
			},
			want: 0,
		},
		{
			name: "dominance half",
			snap: models.Snapshot{PerpDominancePct: 50},
			want: 10,
		},
	}
	for _, tt := range tests {
		got := SRS(&tt.snap)
		if got != tt.want {
			t.Errorf("%s: SRS = %d, want %d", tt.name, got, tt.want)
		}
		if got < 0 || got > 100 {
			t.Errorf("%s: SRS = %d, out of [0,100]", tt.name, got)
		}
	}
}

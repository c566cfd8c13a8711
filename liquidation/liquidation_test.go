package liquidation

import "testing"

func TestCalculateLongPosition(t *testing.T) {
	got := Calculate(true, 100.0, 10.0, 1.0, 0.05, 0.0, 0.0)
	want := (100.0 - 10.0) / (1.0 - 0.05)
	if got != want {
		t.Fatalf("Calculate(long) = %v, want %v", got, want)
	}
}

func TestCalculateShortPosition(t *testing.T) {
	got := Calculate(false, 100.0, 10.0, 1.0, 0.05, 0.0, 0.0)
	want := (100.0 + 10.0) / (1.0 + 0.05)
	if got != want {
		t.Fatalf("Calculate(short) = %v, want %v", got, want)
	}
}

func TestCalculateAppliesFundingAdjustment(t *testing.T) {
	// Long: adjusted margin = margin - quantity*(marketFunding-entryFunding)
	got := Calculate(true, 100.0, 10.0, 2.0, 0.05, 5.0, 1.0)
	unrealized := 2.0 * (5.0 - 1.0)
	adjustedMargin := 10.0 - unrealized
	want := (100.0 - adjustedMargin/2.0) / (1.0 - 0.05)
	if got != want {
		t.Fatalf("Calculate(long, funding) = %v, want %v", got, want)
	}
}

func TestCalculateGuardsNonPositiveInputs(t *testing.T) {
	cases := []struct {
		name                   string
		quantity               float64
		entryPrice             float64
		maintenanceMarginRatio float64
	}{
		{"zero quantity", 0.0, 100.0, 0.05},
		{"negative quantity", -1.0, 100.0, 0.05},
		{"zero entry price", 1.0, 0.0, 0.05},
		{"negative entry price", 1.0, -100.0, 0.05},
		{"zero mmr", 1.0, 100.0, 0.0},
		{"negative mmr", 1.0, 100.0, -0.05},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Calculate(true, tc.entryPrice, 10.0, tc.quantity, tc.maintenanceMarginRatio, 0.0, 0.0)
			if got != 0.0 {
				t.Fatalf("Calculate(%s) = %v, want 0.0", tc.name, got)
			}
		})
	}
}

func TestIsLiquidatableLong(t *testing.T) {
	cases := []struct {
		name             string
		markPrice        float64
		liquidationPrice float64
		want             bool
	}{
		{"mark below liquidation", 90.0, 95.0, true},
		{"mark equal to liquidation", 95.0, 95.0, true},
		{"mark above liquidation", 100.0, 95.0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsLiquidatable(true, tc.liquidationPrice, tc.markPrice); got != tc.want {
				t.Fatalf("IsLiquidatable(long, %s) = %v, want %v", tc.name, got, tc.want)
			}
		})
	}
}

func TestIsLiquidatableShort(t *testing.T) {
	cases := []struct {
		name             string
		markPrice        float64
		liquidationPrice float64
		want             bool
	}{
		{"mark above liquidation", 100.0, 95.0, true},
		{"mark equal to liquidation", 95.0, 95.0, true},
		{"mark below liquidation", 90.0, 95.0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsLiquidatable(false, tc.liquidationPrice, tc.markPrice); got != tc.want {
				t.Fatalf("IsLiquidatable(short, %s) = %v, want %v", tc.name, got, tc.want)
			}
		})
	}
}

func TestScalePrice(t *testing.T) {
	got, ok := ScalePrice("100000000000000000000000000")
	if !ok {
		t.Fatalf("ScalePrice: expected ok")
	}
	if got != 100.0 {
		t.Fatalf("ScalePrice = %v, want 100.0", got)
	}
}

func TestScaleChain(t *testing.T) {
	got, ok := ScaleChain("5000000000000000000")
	if !ok {
		t.Fatalf("ScaleChain: expected ok")
	}
	if got != 5.0 {
		t.Fatalf("ScaleChain = %v, want 5.0", got)
	}
}

func TestScaleRejectsMalformedInput(t *testing.T) {
	if _, ok := ScalePrice("not-a-number"); ok {
		t.Fatalf("ScalePrice: expected not ok for malformed input")
	}
}

package algorithms

import "testing"

func TestCostColorEndpoints(t *testing.T) {
	if got := CostColor(0, 0, 10); got != CostLowColor {
		t.Errorf("cost 0 = %+v, want low %+v", got, CostLowColor)
	}
	if got := CostColor(10, 0, 10); got != CostHighColor {
		t.Errorf("cost 10 = %+v, want high %+v", got, CostHighColor)
	}
}

func TestCostColorMidpoint(t *testing.T) {
	got := CostColor(5, 0, 10)
	if got.R != 127 || got.G != 0 || got.B != 127 {
		t.Fatalf("cost 5 = %+v, want (127,0,127)", got)
	}
}

func TestCostColorDegenerateRange(t *testing.T) {
	for _, cost := range []float64{-1, 0, 3, 1e9} {
		if got := CostColor(cost, 3, 3); got != CostNeutralColor {
			t.Errorf("min==max cost %v = %+v, want neutral", cost, got)
		}
	}
	if got := CostColor(1, 5, 2); got != CostNeutralColor {
		t.Errorf("inverted range = %+v, want neutral", got)
	}
}

func TestCostColorClampsOutOfRange(t *testing.T) {
	if got := CostColor(-50, 0, 10); got != CostLowColor {
		t.Errorf("below range = %+v, want low", got)
	}
	if got := CostColor(50, 0, 10); got != CostHighColor {
		t.Errorf("above range = %+v, want high", got)
	}
}

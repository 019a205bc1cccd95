package algorithms

import (
	"math"
	"testing"
)

const epsilon = 1e-9

func TestTransformToPixelScenario(t *testing.T) {
	tr := Transform{OffsetX: 0, OffsetY: 50, PixelsPerUnit: 10}

	got := tr.ToPixel(Point{X: 5, Y: 2})
	if got.X != 50 || got.Y != 30 {
		t.Fatalf("ToPixel(5,2) = (%v,%v), want (50,30)", got.X, got.Y)
	}
}

func TestTransformRoundTrip(t *testing.T) {
	transforms := []Transform{
		{OffsetX: 208, OffsetY: 761, PixelsPerUnit: 20.2},
		{OffsetX: 0, OffsetY: 50, PixelsPerUnit: 10},
		{OffsetX: -13.5, OffsetY: 0.25, PixelsPerUnit: 0.003},
		{OffsetX: 1, OffsetY: 1, PixelsPerUnit: -4},
	}
	points := []Point{
		{0, 0}, {5, 2}, {-17.25, 3.5}, {1e4, -1e4}, {0.001, 123.456},
	}

	for _, tr := range transforms {
		for _, p := range points {
			back := tr.ToWorld(tr.ToPixel(p))
			tol := epsilon * math.Max(1, math.Max(math.Abs(p.X), math.Abs(p.Y))) / math.Min(1, math.Abs(tr.PixelsPerUnit))
			if math.Abs(back.X-p.X) > tol || math.Abs(back.Y-p.Y) > tol {
				t.Errorf("%+v: round trip of %+v gave %+v", tr, p, back)
			}
		}
	}
}

func TestTransformValid(t *testing.T) {
	cases := []struct {
		scale float64
		want  bool
	}{
		{20.2, true},
		{-1, true},
		{0, false},
		{math.NaN(), false},
		{math.Inf(1), false},
	}
	for _, tc := range cases {
		if got := (Transform{PixelsPerUnit: tc.scale}).Valid(); got != tc.want {
			t.Errorf("Valid() with scale %v = %v, want %v", tc.scale, got, tc.want)
		}
	}
}

func TestFitCanvas(t *testing.T) {
	cases := []struct {
		name           string
		cw, ch, rw, rh int
		wantW, wantH   int
	}{
		{"unknown raster uses container", 800, 600, 0, 0, 800, 600},
		{"fits width", 800, 600, 100, 50, 800, 400},
		{"clamped by height", 800, 300, 100, 50, 600, 300},
		{"tall raster", 400, 400, 50, 100, 200, 400},
		{"empty container", 0, 0, 100, 50, 0, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w, h := FitCanvas(tc.cw, tc.ch, tc.rw, tc.rh)
			if w != tc.wantW || h != tc.wantH {
				t.Fatalf("FitCanvas = %dx%d, want %dx%d", w, h, tc.wantW, tc.wantH)
			}
		})
	}
}

func TestYaw(t *testing.T) {
	// 90도 회전: z = sin(45°), w = cos(45°)
	half := math.Pi / 4
	got := Yaw(0, 0, math.Sin(half), math.Cos(half))
	if math.Abs(got-math.Pi/2) > 1e-9 {
		t.Fatalf("Yaw = %v, want %v", got, math.Pi/2)
	}
	if got := Yaw(0, 0, 0, 1); got != 0 {
		t.Fatalf("identity Yaw = %v, want 0", got)
	}
}

package gaussfit

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// sampleGaussian returns points on the Gaussian with the given parameters
func sampleGaussian(mu, sigma, area float64, xs ...float64) []Point {
	n := distuv.Normal{Mu: mu, Sigma: sigma}
	p := make([]Point, len(xs))
	for i, x := range xs {
		p[i] = Point{X: x, Y: area * n.Prob(x)}
	}
	return p
}

func TestFitRecoversGaussian(t *testing.T) {
	tests := []struct {
		name  string
		mu    float64
		sigma float64
		area  float64
		xs    []float64
	}{
		{"centered", 100.2, 0.05, 10.0, []float64{100.1, 100.2, 100.3}},
		{"off center", 100.23, 0.04, 250.0, []float64{100.2, 100.21, 100.25}},
		{"left of apex", 500.007, 0.01, 1e6, []float64{500.0, 500.005, 500.01}},
		{"high mz", 1500.4321, 0.02, 3e8, []float64{1500.41, 1500.43, 1500.45}},
		{"unit scale", 0.0, 1.0, 1.0, []float64{-1.0, 0.5, 1.5}},
	}
	opt := cmpopts.EquateApprox(1e-9, 0)
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := sampleGaussian(tc.mu, tc.sigma, tc.area, tc.xs...)
			r := Fit(p[0], p[1], p[2])
			if !r.Valid {
				t.Fatalf("Fit returned invalid result %+v", r)
			}
			want := Result{Mu: tc.mu, Sigma: tc.sigma, Area: tc.area, Valid: true}
			if diff := cmp.Diff(want, r, opt); diff != "" {
				t.Errorf("Fit mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

// Solve ln(y) = a*(x-x2)^2 + b*(x-x2) + c as a linear system and compare
// the vertex and curvature with the closed form fit.
func TestFitMatchesLogParabola(t *testing.T) {
	p := []Point{{400.11, 1200}, {400.12, 5400}, {400.13, 2100}}
	x0 := p[1].X

	a := mat.NewDense(3, 3, nil)
	b := mat.NewVecDense(3, nil)
	for i, pt := range p {
		dx := pt.X - x0
		a.Set(i, 0, dx*dx)
		a.Set(i, 1, dx)
		a.Set(i, 2, 1)
		b.SetVec(i, math.Log(pt.Y))
	}
	var coef mat.VecDense
	if err := coef.SolveVec(a, b); err != nil {
		t.Fatalf("SolveVec: %v", err)
	}
	qa, qb := coef.AtVec(0), coef.AtVec(1)
	wantMu := x0 - qb/(2*qa)
	wantSigma := math.Sqrt(-1 / (2 * qa))

	r := Fit(p[0], p[1], p[2])
	if !r.Valid {
		t.Fatalf("Fit returned invalid result %+v", r)
	}
	if math.Abs(r.Mu-wantMu) > 1e-8 {
		t.Errorf("Mu %v, want %v", r.Mu, wantMu)
	}
	if math.Abs(r.Sigma/wantSigma-1) > 1e-6 {
		t.Errorf("Sigma %v, want %v", r.Sigma, wantSigma)
	}
	// The fitted curve passes through all three points
	for _, pt := range p {
		y := Evaluate(pt.X, r.Mu, r.Sigma, r.Area)
		if math.Abs(y/pt.Y-1) > 1e-9 {
			t.Errorf("Evaluate(%v) = %v, want %v", pt.X, y, pt.Y)
		}
	}
}

func TestFitInvalid(t *testing.T) {
	tests := []struct {
		name string
		p    [3]Point
	}{
		{"flat", [3]Point{{1, 5}, {2, 5}, {3, 5}}},
		{"valley", [3]Point{{1, 8}, {2, 2}, {3, 8}}},
		{"zero intensity", [3]Point{{1, 0}, {2, 10}, {3, 5}}},
		{"negative intensity", [3]Point{{1, -3}, {2, 10}, {3, 5}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := Fit(tc.p[0], tc.p[1], tc.p[2])
			if r.Valid {
				t.Errorf("Fit(%v) valid with area %v, want invalid", tc.p, r.Area)
			}
		})
	}
}

func TestApexHeight(t *testing.T) {
	r := Fit(Point{100.1, 5.0}, Point{100.2, 50.0}, Point{100.3, 5.0})
	if !r.Valid {
		t.Fatalf("Fit returned invalid result %+v", r)
	}
	apex := r.ApexHeight()
	if apex != Evaluate(r.Mu, r.Mu, r.Sigma, r.Area) {
		t.Errorf("ApexHeight %v differs from Evaluate at mu", apex)
	}
	if math.Abs(apex-50.0) > 1e-9 {
		t.Errorf("ApexHeight %v, want 50", apex)
	}
	if math.Abs(r.Mu-100.2) > 1e-9 {
		t.Errorf("Mu %v, want 100.2", r.Mu)
	}
	if r.Area == apex {
		t.Errorf("Area and apex height should differ, both %v", apex)
	}
}

func TestEvaluate(t *testing.T) {
	n := distuv.Normal{Mu: 3, Sigma: 0.5}
	for _, x := range []float64{1.5, 2.9, 3, 3.7} {
		got := Evaluate(x, 3, 0.5, 7)
		want := 7 * n.Prob(x)
		if math.Abs(got/want-1) > 1e-12 {
			t.Errorf("Evaluate(%v) = %v, want %v", x, got, want)
		}
	}
}

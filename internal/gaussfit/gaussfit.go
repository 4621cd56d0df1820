// Package gaussfit computes the Gaussian that passes exactly through three
// samples.
//
// The logarithm of a Gaussian is a parabola in x, so three points with
// distinct x values determine mean, standard deviation and scale of the
// Gaussian in closed form. No iterative optimization is needed.
package gaussfit

import (
	"math"
)

// Point is a single (x, y) sample. For mass spectra, X is the m/z value
// and Y the intensity.
type Point struct {
	X float64
	Y float64
}

// Result contains the parameters of a fitted Gaussian.
// Area is the integral of the Gaussian over all x.
type Result struct {
	Mu    float64
	Sigma float64
	Area  float64
	Valid bool // false if the fit is numerically degenerate
}

// Fit returns the Gaussian through p1, p2 and p3.
// The points must satisfy p1.X < p2.X < p3.X.
// A fit is valid only if the computed area is finite; triplets that are
// collinear or convex in log space produce a NaN or infinite area and are
// reported as invalid.
func Fit(p1, p2, p3 Point) Result {
	// x values are taken relative to the middle point. The squares of
	// absolute m/z values cancel badly in the numerator of mu.
	x0 := p2.X
	x1, y1 := p1.X-x0, p1.Y
	x2, y2 := 0.0, p2.Y
	x3, y3 := p3.X-x0, p3.Y

	// ln(y1^a * y2^b * y3^c) is evaluated as a*ln(y1) + b*ln(y2) + c*ln(y3),
	// the powers themselves overflow for intense peaks
	ly1, ly2, ly3 := math.Log(y1), math.Log(y2), math.Log(y3)

	denom := (x3-x2)*ly1 + (x1-x3)*ly2 + (x2-x1)*ly3

	var r Result
	mu := 0.5 * ((x3*x3-x2*x2)*ly1 + (x1*x1-x3*x3)*ly2 + (x2*x2-x1*x1)*ly3) / denom
	r.Mu = x0 + mu
	r.Sigma = math.Sqrt(0.5 * ((x1 - x3) * (x2 - x1) * (x3 - x2)) / denom)

	s2 := r.Sigma * r.Sigma
	d1, d2, d3 := x1-mu, x2-mu, x3-mu
	r.Area = math.Sqrt(2*math.Pi*s2) * math.Cbrt(y1*y2*y3) *
		math.Exp((d1*d1+d2*d2+d3*d3)/(6*s2))

	r.Valid = !math.IsInf(r.Area, 0) && !math.IsNaN(r.Area)
	return r
}

// Evaluate returns the value at x of the Gaussian with mean mu, standard
// deviation sigma, scaled to have integral area.
func Evaluate(x, mu, sigma, area float64) float64 {
	d := x - mu
	return (area / math.Sqrt(2*math.Pi*sigma*sigma)) * math.Exp(-(d*d)/(2*sigma*sigma))
}

// ApexHeight returns the height of the fitted Gaussian at its mean
func (r Result) ApexHeight() float64 {
	return Evaluate(r.Mu, r.Mu, r.Sigma, r.Area)
}

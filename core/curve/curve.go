// Package curve evaluates dimming ramps between two intensities.
package curve

import (
	"math"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/bselee/enviroflow/core/model"
)

const (
	sigmoidSteepness     = 10.0
	exponentialRate      = 5.0
	logarithmicBase      = 9.0
	defaultProfilePoints = 2
)

// Level returns the intensity reached after elapsed time of a ramp lasting
// duration. The result always lies between start and target, for ramps up
// and down alike. A non-positive duration jumps straight to target.
func Level(start, target float64, elapsed, duration time.Duration, c model.Curve) float64 {
	if duration <= 0 || elapsed >= duration {
		return target
	}
	if elapsed <= 0 {
		return start
	}
	p := float64(elapsed) / float64(duration)
	return start + (target-start)*Fraction(p, c)
}

// Fraction maps progress p in [0,1] to the completed share of the ramp under
// curve c. Unknown curves fall back to linear.
func Fraction(p float64, c model.Curve) float64 {
	switch {
	case p <= 0:
		return 0
	case p >= 1:
		return 1
	}
	var f float64
	switch c {
	case model.CurveSigmoid:
		s := func(x float64) float64 { return 1 / (1 + math.Exp(-sigmoidSteepness*(x-0.5))) }
		f = (s(p) - s(0)) / (s(1) - s(0))
	case model.CurveExponential:
		f = (1 - math.Exp(-exponentialRate*p)) / (1 - math.Exp(-exponentialRate))
	case model.CurveLogarithmic:
		f = math.Log1p(logarithmicBase*p) / math.Log1p(logarithmicBase)
	default:
		f = p
	}
	return math.Min(1, math.Max(0, f))
}

// Point is one sample of a ramp profile.
type Point struct {
	Offset time.Duration `json:"offset"`
	Level  float64       `json:"level"`
}

// Profile samples n evenly spaced points of a ramp, both ends included.
func Profile(start, target float64, duration time.Duration, c model.Curve, n int) []Point {
	if n < defaultProfilePoints {
		n = defaultProfilePoints
	}
	fractions := floats.Span(make([]float64, n), 0, 1)
	out := make([]Point, n)
	for i, f := range fractions {
		off := time.Duration(f * float64(duration))
		if i == n-1 {
			off = duration
		}
		out[i] = Point{Offset: off, Level: Level(start, target, off, duration, c)}
	}
	return out
}

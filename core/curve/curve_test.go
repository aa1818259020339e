package curve

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bselee/enviroflow/core/model"
)

var allCurves = []model.Curve{model.CurveLinear, model.CurveSigmoid, model.CurveExponential, model.CurveLogarithmic}

func TestLevelEndpoints(t *testing.T) {
	durations := []time.Duration{time.Millisecond, time.Minute, 30 * time.Minute, 6 * time.Hour}
	for _, c := range allCurves {
		for _, d := range durations {
			assert.Equal(t, 10.0, Level(10, 90, 0, d, c), "%s start", c)
			assert.Equal(t, 90.0, Level(10, 90, d, d, c), "%s end", c)
			assert.Equal(t, 90.0, Level(10, 90, 2*d, d, c), "%s overshoot", c)
			assert.Equal(t, 10.0, Level(10, 90, -time.Second, d, c), "%s negative", c)
		}
	}
}

func TestLevelNonPositiveDuration(t *testing.T) {
	assert.Equal(t, 75.0, Level(0, 75, 0, 0, model.CurveLinear))
	assert.Equal(t, 75.0, Level(0, 75, time.Minute, -time.Minute, model.CurveSigmoid))
}

func TestLevelStaysWithinBounds(t *testing.T) {
	d := 30 * time.Minute
	for _, c := range allCurves {
		prevUp, prevDown := 0.0, 100.0
		for s := time.Duration(0); s <= d; s += time.Minute {
			up := Level(0, 100, s, d, c)
			down := Level(100, 0, s, d, c)
			assert.GreaterOrEqual(t, up, prevUp, "%s must be monotonic", c)
			assert.LessOrEqual(t, down, prevDown, "%s must be monotonic", c)
			assert.True(t, up >= 0 && up <= 100)
			assert.True(t, down >= 0 && down <= 100)
			prevUp, prevDown = up, down
		}
	}
}

func TestCurveShapes(t *testing.T) {
	d := time.Hour
	quarter := d / 4
	linear := Level(0, 100, quarter, d, model.CurveLinear)
	assert.InDelta(t, 25, linear, 1e-9)
	assert.InDelta(t, 50, Level(0, 100, d/2, d, model.CurveSigmoid), 1e-9)
	assert.Less(t, Level(0, 100, quarter, d, model.CurveSigmoid), linear)
	assert.Greater(t, Level(0, 100, quarter, d, model.CurveExponential), linear)
	assert.Greater(t, Level(0, 100, quarter, d, model.CurveLogarithmic), linear)
}

func TestUnknownCurveIsLinear(t *testing.T) {
	assert.InDelta(t, 50, Level(0, 100, 30*time.Second, time.Minute, model.Curve("bogus")), 1e-9)
}

func TestProfile(t *testing.T) {
	pts := Profile(0, 100, time.Hour, model.CurveLinear, 5)
	require.Len(t, pts, 5)
	assert.Equal(t, time.Duration(0), pts[0].Offset)
	assert.Equal(t, 0.0, pts[0].Level)
	assert.Equal(t, 15*time.Minute, pts[1].Offset)
	assert.InDelta(t, 25, pts[1].Level, 1e-9)
	assert.Equal(t, time.Hour, pts[4].Offset)
	assert.Equal(t, 100.0, pts[4].Level)

	assert.Len(t, Profile(0, 1, time.Minute, model.CurveLinear, 0), 2)
}

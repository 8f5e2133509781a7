package calibrate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// heldOut builds a set where the model is overconfident: raw 0.9+
// predictions are only right ~75% of the time.
func heldOut() []Point {
	points := []Point{}
	add := func(raw float64, correct, incorrect int) {
		for i := 0; i < correct; i++ {
			points = append(points, Point{Raw: raw, Correct: true})
		}
		for i := 0; i < incorrect; i++ {
			points = append(points, Point{Raw: raw, Correct: false})
		}
	}
	add(0.30, 1, 4)
	add(0.50, 2, 3)
	add(0.70, 3, 2)
	add(0.90, 3, 1)
	add(0.95, 3, 1)
	return points
}

func TestFit_RequiresMinimumPoints(t *testing.T) {
	_, err := Fit([]Point{{Raw: 0.5, Correct: true}})
	assert.Error(t, err)
}

func TestApply_Monotonic(t *testing.T) {
	c, err := Fit(heldOut())
	require.NoError(t, err)

	prev := -1.0
	for raw := 0.0; raw <= 1.0; raw += 0.01 {
		got := c.Apply(raw)
		assert.GreaterOrEqual(t, got, prev, "calibrated confidence regressed at raw=%.2f", raw)
		assert.GreaterOrEqual(t, got, 0.0)
		assert.LessOrEqual(t, got, 1.0)
		prev = got
	}
}

func TestApply_CorrectsOverconfidence(t *testing.T) {
	c, err := Fit(heldOut())
	require.NoError(t, err)

	// Raw 0.9 was right 3 of 4 times in the held-out set, so calibrated
	// confidence should land well below the raw value.
	assert.Less(t, c.Apply(0.90), 0.90)
	assert.Greater(t, c.Apply(0.90), c.Apply(0.30))
}

func TestIdentity_PassesThrough(t *testing.T) {
	c := Identity()
	assert.False(t, c.Fitted())
	assert.InDelta(t, 0.62, c.Apply(0.62), 1e-9)
	assert.Equal(t, 0.0, c.Apply(-0.5))
	assert.Equal(t, 1.0, c.Apply(1.5))
}

func TestReplace_InstallsFit(t *testing.T) {
	live := Identity()
	fitted, err := Fit(heldOut())
	require.NoError(t, err)

	live.Replace(fitted)
	assert.True(t, live.Fitted())
	assert.InDelta(t, fitted.Apply(0.8), live.Apply(0.8), 1e-9)
}

// ABOUTME: Tests for descriptive statistics helpers.
// ABOUTME: Verifies interpolated percentiles, population std, and edge cases.
package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMeanAndStdPop(t *testing.T) {
	xs := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	assert.InDelta(t, 5.0, Mean(xs), 1e-9)
	assert.InDelta(t, 2.0, StdPop(xs), 1e-9)

	assert.Equal(t, 0.0, Mean(nil))
	assert.Equal(t, 0.0, StdPop(nil))
	assert.Equal(t, 0.0, StdPop([]float64{3}))
}

func TestMedianEvenCount(t *testing.T) {
	assert.InDelta(t, 80.75, Median([]float64{81.0, 80.5}), 1e-9)
	assert.InDelta(t, 2.0, Median([]float64{3, 1, 2}), 1e-9)
}

func TestPercentileInterpolates(t *testing.T) {
	xs := make([]float64, 0, 101)
	for i := 0; i <= 100; i++ {
		xs = append(xs, float64(i))
	}
	got := Percentiles(xs, 10, 25, 50, 75, 90)
	want := []float64{10, 25, 50, 75, 90}
	for i := range want {
		assert.InDelta(t, want[i], got[i], 1e-9)
	}

	assert.InDelta(t, 1.4, Percentile([]float64{1, 2, 3, 4, 5}, 10), 1e-9)
	assert.Equal(t, 7.0, Percentile([]float64{7}, 90))
	assert.Equal(t, 0.0, Percentile(nil, 50))
}

func TestPercentilesDoesNotMutateInput(t *testing.T) {
	xs := []float64{5, 1, 3}
	_ = Percentiles(xs, 50)
	assert.Equal(t, []float64{5, 1, 3}, xs)
}

func TestMinMaxAndClamp(t *testing.T) {
	lo, hi := MinMax([]float64{3, -1, 8, 2})
	assert.Equal(t, -1.0, lo)
	assert.Equal(t, 8.0, hi)

	assert.Equal(t, 2.0, Clamp(5, 0, 2))
	assert.Equal(t, 0.0, Clamp(-1, 0, 2))
	assert.False(t, math.IsNaN(Clamp(1, 0, 2)))
}

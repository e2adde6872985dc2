package mathhelp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapShift(t *testing.T) {
	var tests = []struct {
		v    float64
		want float64
	}{
		0: {v: 0.25, want: 0},
		1: {v: -0.5, want: 1},
		2: {v: 1.75, want: -1},
		3: {v: -2.25, want: 3},
		4: {v: 0, want: 0},
	}
	for k, test := range tests {
		got := WrapShift(test.v)
		assert.Equalf(t, test.want, got, "test: %d", k)
		assert.GreaterOrEqualf(t, test.v+got, 0.0, "test: %d", k)
		assert.Lessf(t, test.v+got, 1.0, "test: %d", k)
	}
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0.0, Clamp(-0.5, 0.0, 1.0))
	assert.Equal(t, 1.0, Clamp(1.5, 0.0, 1.0))
	assert.Equal(t, 3, Clamp(3, 1, 5))
}

func TestEuclidianMod(t *testing.T) {
	assert.Equal(t, 1, EuclidianMod(-1, 2))
	assert.Equal(t, 0, EuclidianMod(4, 2))
	assert.Equal(t, 3, EuclidianMod(7, 4))
}

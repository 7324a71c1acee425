package embedding

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeUnitLength(t *testing.T) {
	v := Normalize([]float32{3, 4})
	require.InDelta(t, 0.6, v[0], 1e-6)
	require.InDelta(t, 0.8, v[1], 1e-6)
	require.InDelta(t, 1.0, math.Sqrt(Dot(v, v)), 1e-6)
}

func TestNormalizeZeroVector(t *testing.T) {
	v := Normalize([]float32{0, 0, 0})
	require.Equal(t, []float32{0, 0, 0}, v)
}

func TestCheckBatch(t *testing.T) {
	require.NoError(t, CheckBatch([][]float32{{1, 0}, {0, 1}}, 2, 2))
	require.Error(t, CheckBatch([][]float32{{1, 0}}, 2, 2))
	require.Error(t, CheckBatch([][]float32{{1, 0, 0}}, 1, 2))
}

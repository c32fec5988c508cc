package region

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/gopic/comm"
	"github.com/notargets/gopic/field"
	"github.com/notargets/gopic/types"
)

func TestRegionLayout(t *testing.T) {
	{ // Test a 1D split of [0,1) over 4 ranks
		w := comm.NewWorld(4)
		l, err := field.NewLayout(w.Comm(2), field.NewNDIndex(16), nil)
		require.NoError(t, err)
		m, err := field.NewMesh(field.NewNDIndex(16), []float64{1. / 16}, []float64{0})
		require.NoError(t, err)
		rl, err := NewRegionLayout(l, m)
		require.NoError(t, err)
		assert.Equal(t, 4, rl.NumRegions())
		assert.Equal(t, 1, rl.Dim())
		for r, reg := range rl.AllRegions() {
			assert.InDelta(t, 0.25*float64(r), reg.Min[0], 1e-15)
			assert.InDelta(t, 0.25*float64(r+1), reg.Max[0], 1e-15)
		}
		assert.Equal(t, 0., rl.Domain().Min[0])
		assert.Equal(t, 1., rl.Domain().Max[0])
		// Shared faces match the lower rank first
		assert.Equal(t, 0, rl.Find(types.Vector{0.25}))
		assert.Equal(t, 1, rl.Find(types.Vector{0.26}))
		assert.Equal(t, 3, rl.Find(types.Vector{1}))
		assert.Equal(t, -1, rl.Find(types.Vector{1.01}))
		assert.Equal(t, 3, rl.Nearest(types.Vector{1.01}))
		assert.Equal(t, 0, rl.Nearest(types.Vector{-3}))
	}
	{ // Test a 2D split with a non-zero origin, regions tile the domain
		w := comm.NewWorld(6)
		l, err := field.NewLayout(w.Comm(0), field.NewNDIndex(12, 8), nil)
		require.NoError(t, err)
		m, err := field.NewMesh(field.NewNDIndex(12, 8), []float64{0.5, 0.25}, []float64{-1, 2})
		require.NoError(t, err)
		rl, err := NewRegionLayout(l, m)
		require.NoError(t, err)
		var area float64
		for _, reg := range rl.AllRegions() {
			area += reg.Length(0) * reg.Length(1)
		}
		dom := rl.Domain()
		assert.InDelta(t, 12., area, 1e-12)
		assert.Equal(t, types.Vector{-1, 2, 0}, dom.Min)
		assert.Equal(t, types.Vector{5, 4, 0}, dom.Max)
		for i := 0; i < 50; i++ {
			x := types.Vector{-1 + 6*float64(i)/50, 2 + 2*float64(i*7%50)/50}
			r := rl.Find(x)
			require.NotEqual(t, -1, r)
			assert.True(t, rl.RegionFor(r).Contains(x))
		}
	}
	{ // Test mismatched dimensions
		c := comm.NewWorld(1).Comm(0)
		l, _ := field.NewLayout(c, field.NewNDIndex(4), nil)
		m, _ := field.NewMesh(field.NewNDIndex(4, 4), []float64{1, 1}, []float64{0, 0})
		_, err := NewRegionLayout(l, m)
		assert.Error(t, err)
	}
}

func TestRegion(t *testing.T) {
	r := Region{Min: types.Vector{0, 0}, Max: types.Vector{1, 2}, Dim: 2}
	assert.True(t, r.Contains(types.Vector{1, 2, 99}))
	assert.False(t, r.Contains(types.Vector{1, 2.1}))
	assert.Equal(t, 0., r.Distance2(types.Vector{0.5, 0.5}))
	assert.InDelta(t, 1.25, r.Distance2(types.Vector{2, -0.5}), 1e-15)
	assert.Equal(t, types.Vector{1, 0, 7}, r.Clamp(types.Vector{2, -0.5, 7}))
	assert.Equal(t, "{[0,1],[0,2]}", r.String())
}

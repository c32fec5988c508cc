package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTypes(t *testing.T) {
	{ // Test boundary condition names
		for _, label := range []string{"periodic", " Reflect", "SINK", "no"} {
			_, err := NewBCFLAG(label)
			assert.NoError(t, err)
		}
		bc, _ := NewBCFLAG("reflective")
		assert.Equal(t, BC_Reflective, bc)
		assert.Equal(t, "Reflective", bc.String())
		_, err := NewBCFLAG("open")
		assert.Error(t, err)
		assert.Equal(t, "BCFLAG(9)", BCFLAG(9).String())
	}
	{ // Test vector arithmetic
		v, w := Vector{1, 2, 2}, Vector{1, 0, -1}
		assert.Equal(t, Vector{2, 2, 1}, v.Add(w))
		assert.Equal(t, Vector{0, 2, 3}, v.Sub(w))
		assert.Equal(t, Vector{2, 4, 4}, v.Scale(2))
		assert.Equal(t, -1., v.Dot(w))
		assert.Equal(t, 3., v.Norm())
	}
}

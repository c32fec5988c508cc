package field

import (
	"fmt"

	"github.com/notargets/gopic/types"
)

// Mesh is a uniform Cartesian mesh: grid index i along axis d sits at
// Origin[d] + i*Spacing[d]. Cell i covers [x_i, x_i + Spacing[d]].
type Mesh struct {
	Domain  NDIndex
	Origin  types.Vector
	Spacing types.Vector
}

func NewMesh(domain NDIndex, spacing, origin []float64) (m *Mesh, err error) {
	if len(spacing) != domain.Dim() || len(origin) != domain.Dim() {
		err = fmt.Errorf("mesh of dimension %d needs %d spacings and origins, have %d and %d",
			domain.Dim(), domain.Dim(), len(spacing), len(origin))
		return
	}
	m = &Mesh{Domain: domain}
	for d := range spacing {
		if spacing[d] <= 0 {
			err = fmt.Errorf("mesh spacing along axis %d must be positive, have %g", d, spacing[d])
			return nil, err
		}
		m.Spacing[d] = spacing[d]
		m.Origin[d] = origin[d]
	}
	return
}

func (m *Mesh) Dim() int { return m.Domain.Dim() }

// Position of grid index i along axis d.
func (m *Mesh) Position(d, i int) float64 {
	return m.Origin[d] + float64(i)*m.Spacing[d]
}

// Extent is the physical length of the domain along axis d.
func (m *Mesh) Extent(d int) float64 {
	return float64(m.Domain[d].Length()) * m.Spacing[d]
}

func (m *Mesh) CellVolume() (v float64) {
	v = 1
	for d := 0; d < m.Dim(); d++ {
		v *= m.Spacing[d]
	}
	return
}

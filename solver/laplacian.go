package solver

import (
	"fmt"
	"math"

	"github.com/james-bowman/sparse"
	"gonum.org/v1/gonum/mat"

	"github.com/notargets/gopic/comm"
	"github.com/notargets/gopic/field"
)

// Laplacian is the 2nd order central difference Laplacian of the local
// block as a sparse matrix. Rows are the owned points in interior order,
// columns the ghosted storage of the field, so applying it needs a current
// halo.
type Laplacian struct {
	L      *sparse.CSR
	ext    [comm.MaxDim]int
	layout *field.Layout
}

// NewLaplacian builds the operator for fields shaped like f.
func NewLaplacian(f *field.Field[float64], mesh *field.Mesh) (lap *Laplacian, err error) {
	if f.Nghost() < 1 {
		return nil, fmt.Errorf("%w: the Laplacian needs one ghost layer", field.ErrGhostWidth)
	}
	if mesh.Dim() != f.Dim() {
		return nil, fmt.Errorf("%w: mesh of dimension %d, field %d",
			field.ErrShapeMismatch, mesh.Dim(), f.Dim())
	}
	var (
		dim = f.Dim()
		dok = sparse.NewDOK(f.InteriorSize(), len(f.Data))
		row int
	)
	f.ForEachInterior(func(k int, loc, _ [comm.MaxDim]int) {
		var diag float64
		for d := 0; d < dim; d++ {
			var (
				h2i = 1 / (mesh.Spacing[d] * mesh.Spacing[d])
				off [comm.MaxDim]int
			)
			off[d] = 1
			dok.Set(row, f.Index(loc[0]+off[0], loc[1]+off[1], loc[2]+off[2]), h2i)
			dok.Set(row, f.Index(loc[0]-off[0], loc[1]-off[1], loc[2]-off[2]), h2i)
			diag -= 2 * h2i
		}
		dok.Set(row, k, diag)
		row++
	})
	lap = &Laplacian{
		L:      dok.ToCSR(),
		ext:    f.Extents(),
		layout: f.Layout(),
	}
	return
}

// Apply writes lap(phi) at the owned points into dst. The halo of phi is
// refreshed first. Collective.
func (lap *Laplacian) Apply(phi *field.Field[float64], dst []float64) (err error) {
	if phi.Extents() != lap.ext {
		return fmt.Errorf("%w: field extents %v, operator %v",
			field.ErrShapeMismatch, phi.Extents(), lap.ext)
	}
	if r, _ := lap.L.Dims(); len(dst) != r {
		return fmt.Errorf("%w: %d rows, buffer %d", field.ErrShapeMismatch, r, len(dst))
	}
	if err = phi.ExchangeHalo(); err != nil {
		return
	}
	for i := range dst {
		dst[i] = 0
	}
	lap.L.DoNonZero(func(i, j int, v float64) {
		dst[i] += v * phi.Data[j]
	})
	return
}

// Residual is the global max norm of lap(phi) + rho/eps0. rho is expected
// to have zero mean on a periodic domain. Collective.
func (lap *Laplacian) Residual(phi, rho *field.Field[float64], eps0 float64) (res float64, err error) {
	var (
		n = rho.InteriorSize()
		r = make([]float64, n)
		q = make([]float64, n)
	)
	if err = lap.Apply(phi, r); err != nil {
		return
	}
	if err = rho.CopyInterior(q); err != nil {
		return
	}
	var local float64
	if n != 0 {
		rv := mat.NewVecDense(n, r)
		rv.AddScaledVec(rv, 1/eps0, mat.NewVecDense(n, q))
		local = mat.Norm(rv, math.Inf(1))
	}
	return lap.layout.Comm().AllreduceFloat64(local, comm.Max)
}
